package binance

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/cryptoproxy/mktproxy/business/marketdata/app"
	"github.com/cryptoproxy/mktproxy/business/marketdata/domain"
)

// SBE (Simple Binary Encoding) is the binary wire-format variant some
// Binance futures streams use instead of JSON. Every SBE message opens
// with a small fixed header: u16 block_length, u16 template_id, then the
// block's own fixed fields starting at byte 8.
//
// The registry dispatches to these decoders ahead of the JSON parsers,
// sniffing the first byte: a JSON payload always starts with '{' or
// '[', so anything else is assumed to be SBE.
const (
	sbeTemplateDepthDiff = 10003
	sbeTemplateTrade     = 10000
)

type sbeHeader struct {
	blockLength int
	templateID  uint16
	bodyOffset  int
}

func readSbeHeader(msg []byte) (sbeHeader, bool) {
	if len(msg) < 8 {
		return sbeHeader{}, false
	}
	return sbeHeader{
		blockLength: int(binary.LittleEndian.Uint16(msg[0:2])),
		templateID:  binary.LittleEndian.Uint16(msg[2:4]),
		bodyOffset:  8,
	}, true
}

func readI64LE(msg []byte, offset int) (int64, bool) {
	if len(msg) < offset+8 {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(msg[offset : offset+8])), true
}

func readU16LE(msg []byte, offset int) (uint16, bool) {
	if len(msg) < offset+2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(msg[offset : offset+2]), true
}

func readU32LE(msg []byte, offset int) (uint32, bool) {
	if len(msg) < offset+4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(msg[offset : offset+4]), true
}

func readI8(msg []byte, offset int) (int8, bool) {
	if len(msg) < offset+1 {
		return 0, false
	}
	return int8(msg[offset]), true
}

func scaleMantissa(mantissa int64, exponent int8) float64 {
	return float64(mantissa) * math.Pow10(int(exponent))
}

// readVarString8 reads a one-byte length prefix followed by that many
// bytes of UTF-8, returning the decoded string and the offset just past
// it.
func readVarString8(msg []byte, offset int) (string, int, bool) {
	if len(msg) < offset+1 {
		return "", 0, false
	}
	n := int(msg[offset])
	start := offset + 1
	if len(msg) < start+n {
		return "", 0, false
	}
	return string(msg[start : start+n]), start + n, true
}

type sbeLevel struct {
	price, amount float64
}

// readGroupLevels reads a repeating SBE group: u16 block_length, u16
// num_in_group, followed by num_in_group entries of block_length bytes
// each (price int64, qty int64, scaled by the group's shared exponents).
func readGroupLevels(msg []byte, offset int, priceExp, qtyExp int8) ([]sbeLevel, int, bool) {
	if len(msg) < offset+4 {
		return nil, 0, false
	}
	blockLength, ok := readU16LE(msg, offset)
	if !ok {
		return nil, 0, false
	}
	numInGroup, ok := readU16LE(msg, offset+2)
	if !ok {
		return nil, 0, false
	}
	pos := offset + 4
	levels := make([]sbeLevel, 0, numInGroup)
	for i := 0; i < int(numInGroup); i++ {
		if len(msg) < pos+int(blockLength) || blockLength < 16 {
			break
		}
		price, ok := readI64LE(msg, pos)
		if !ok {
			break
		}
		qty, ok := readI64LE(msg, pos+8)
		if !ok {
			break
		}
		levels = append(levels, sbeLevel{
			price:  scaleMantissa(price, priceExp),
			amount: scaleMantissa(qty, qtyExp),
		})
		pos += int(blockLength)
	}
	return levels, pos, true
}

func toDomainLevels(in []sbeLevel) []domain.Level {
	out := make([]domain.Level, len(in))
	for i, l := range in {
		out[i] = domain.Level{Price: l.price, Amount: l.amount}
	}
	return out
}

// NewSbeDepthDiffParser builds the SBE depth-diff decoder for
// template_id 10003. Byte layout after the header: i64 event_time, i64
// first_update_id, i64 last_update_id, i8 price_exponent, i8
// qty_exponent, then a bids group, an asks group, and finally a
// length-prefixed symbol string. Non-SBE payloads (leading '{' or '[')
// are passed through untouched, returning 0 so the JSON parser bound to
// the same stream key handles them.
func NewSbeDepthDiffParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		if isJSONPayload(raw) {
			return 0
		}
		header, ok := readSbeHeader(raw)
		if !ok || header.templateID != sbeTemplateDepthDiff {
			return 0
		}
		base := header.bodyOffset
		if len(raw) < base+header.blockLength {
			return 0
		}
		eventTime, ok := readI64LE(raw, base)
		if !ok {
			return 0
		}
		firstUpdateID, ok := readI64LE(raw, base+8)
		if !ok {
			return 0
		}
		lastUpdateID, ok := readI64LE(raw, base+16)
		if !ok {
			return 0
		}
		priceExp, ok := readI8(raw, base+24)
		if !ok {
			return 0
		}
		qtyExp, ok := readI8(raw, base+25)
		if !ok {
			return 0
		}

		offset := base + header.blockLength
		bids, offset, ok := readGroupLevels(raw, offset, priceExp, qtyExp)
		if !ok {
			return 0
		}
		asks, offset, ok := readGroupLevels(raw, offset, priceExp, qtyExp)
		if !ok {
			return 0
		}
		symbol, _, ok := readVarString8(raw, offset)
		if !ok {
			return 0
		}
		symbol = strings.ToUpper(symbol)
		ts := eventTime / 1000

		n := publishFrame(publish, &domain.BinanceIncSeqNo{
			Symbol:      symbol,
			PrevFinal:   0,
			FinalUpdate: lastUpdateID,
			FirstUpdate: firstUpdateID,
			Ts:          ts,
		})
		n += publishFrame(publish, &domain.OrderBookInc{
			Symbol:      symbol,
			FirstUpdate: firstUpdateID,
			FinalUpdate: lastUpdateID,
			Ts:          ts,
			IsSnapshot:  false,
			Bids:        toDomainLevels(bids),
			Asks:        toDomainLevels(asks),
		})
		return n
	}
}

// NewSbeTradeParser builds the SBE trade decoder for template_id 10000.
// Byte layout after the header: i64 event_time, i64 transact_time, i8
// price_exponent, i8 qty_exponent, then a repeating trade group (u16
// block_length, u32 num_in_group, entries of trade_id/price/qty/
// is_buyer_maker), and finally a length-prefixed symbol string shared by
// every trade in the message.
func NewSbeTradeParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		if isJSONPayload(raw) {
			return 0
		}
		header, ok := readSbeHeader(raw)
		if !ok || header.templateID != sbeTemplateTrade {
			return 0
		}
		base := header.bodyOffset
		if len(raw) < base+header.blockLength {
			return 0
		}
		_, ok = readI64LE(raw, base) // event_time: unused, kept for header-size accounting
		if !ok {
			return 0
		}
		transactTime, ok := readI64LE(raw, base+8)
		if !ok {
			return 0
		}
		priceExp, ok := readI8(raw, base+16)
		if !ok {
			return 0
		}
		qtyExp, ok := readI8(raw, base+17)
		if !ok {
			return 0
		}

		offset := base + header.blockLength
		if len(raw) < offset+6 {
			return 0
		}
		blockLength, ok := readU16LE(raw, offset)
		if !ok {
			return 0
		}
		numInGroup, ok := readU32LE(raw, offset+2)
		if !ok {
			return 0
		}
		offset += 6

		type sbeTrade struct {
			id            int64
			price, qty    int64
			isBuyerMaker  bool
		}
		trades := make([]sbeTrade, 0, numInGroup)
		for i := 0; i < int(numInGroup); i++ {
			if len(raw) < offset+int(blockLength) || blockLength < 25 {
				break
			}
			tradeID, ok := readI64LE(raw, offset)
			if !ok {
				break
			}
			price, ok := readI64LE(raw, offset+8)
			if !ok {
				break
			}
			qty, ok := readI64LE(raw, offset+16)
			if !ok {
				break
			}
			isBuyerMaker := raw[offset+24] != 0
			trades = append(trades, sbeTrade{id: tradeID, price: price, qty: qty, isBuyerMaker: isBuyerMaker})
			offset += int(blockLength)
		}

		symbol, _, ok := readVarString8(raw, offset)
		if !ok {
			return 0
		}
		symbol = strings.ToUpper(symbol)
		ts := transactTime / 1000

		total := 0
		for _, t := range trades {
			price := scaleMantissa(t.price, priceExp)
			amount := scaleMantissa(t.qty, qtyExp)
			if price <= 0 || amount <= 0 {
				continue
			}
			side := domain.SideBuy
			if t.isBuyerMaker {
				side = domain.SideSell
			}
			total += publishFrame(publish, &domain.Trade{
				Symbol: symbol,
				ID:     t.id,
				Ts:     ts,
				Side:   side,
				Price:  price,
				Amount: amount,
			})
		}
		return total
	}
}

func isJSONPayload(raw []byte) bool {
	b := jsonFirstNonSpace(raw)
	return b == '{' || b == '['
}
