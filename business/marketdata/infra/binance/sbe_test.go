package binance

import (
	"encoding/binary"
	"testing"
)

// buildSbeHeader writes the 8-byte SBE header: u16 block_length,
// u16 template_id, u32 reserved padding.
func buildSbeHeader(buf []byte, blockLength uint16, templateID uint16) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, blockLength)
	buf = binary.LittleEndian.AppendUint16(buf, templateID)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	return buf
}

func appendI64(buf []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(buf, uint64(v))
}

func appendGroup(buf []byte, levels [][2]int64) []byte {
	const entryBlockLength = 16
	buf = binary.LittleEndian.AppendUint16(buf, entryBlockLength)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(levels)))
	for _, l := range levels {
		buf = appendI64(buf, l[0])
		buf = appendI64(buf, l[1])
	}
	return buf
}

func appendVarString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	buf = append(buf, s...)
	return buf
}

func buildSbeDepthDiffMessage(eventTime, firstUpdateID, lastUpdateID int64, priceExp, qtyExp int8, bids, asks [][2]int64, symbol string) []byte {
	const bodyBlockLength = 26 // 8+8+8+1+1
	buf := make([]byte, 0, 128)
	buf = buildSbeHeader(buf, bodyBlockLength, sbeTemplateDepthDiff)
	buf = appendI64(buf, eventTime)
	buf = appendI64(buf, firstUpdateID)
	buf = appendI64(buf, lastUpdateID)
	buf = append(buf, byte(priceExp), byte(qtyExp))
	buf = appendGroup(buf, bids)
	buf = appendGroup(buf, asks)
	buf = appendVarString(buf, symbol)
	return buf
}

func buildSbeTradeMessage(eventTime, transactTime int64, priceExp, qtyExp int8, trades [][3]int64, buyerMaker []bool, symbol string) []byte {
	const bodyBlockLength = 18 // 8+8+1+1
	const entryBlockLength = 25 // id(8)+price(8)+qty(8)+isBuyerMaker(1)
	buf := make([]byte, 0, 128)
	buf = buildSbeHeader(buf, bodyBlockLength, sbeTemplateTrade)
	buf = appendI64(buf, eventTime)
	buf = appendI64(buf, transactTime)
	buf = append(buf, byte(priceExp), byte(qtyExp))
	buf = binary.LittleEndian.AppendUint16(buf, entryBlockLength)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(trades)))
	for i, tr := range trades {
		buf = appendI64(buf, tr[0])
		buf = appendI64(buf, tr[1])
		buf = appendI64(buf, tr[2])
		if buyerMaker[i] {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	buf = appendVarString(buf, symbol)
	return buf
}

func TestNewSbeDepthDiffParser_DecodesScaledLevels(t *testing.T) {
	msg := buildSbeDepthDiffMessage(
		1700000000000, 10, 12, -2, -3,
		[][2]int64{{4200050, 1000}},
		[][2]int64{{4200100, 2000}},
		"BTCUSDT",
	)

	parser := NewSbeDepthDiffParser()
	var published [][]byte
	n := parser(msg, func(b []byte) { published = append(published, b) })

	if n != 2 || len(published) != 2 {
		t.Fatalf("emitted %d frames, want 2 (BinanceIncSeqNo + OrderBookInc)", n)
	}
	// BinanceIncSeqNo: headerLen(4)+len-prefix(4)+symbol(7)+prevFinal(8)+finalUpdate(8)+firstUpdate(8)+ts(8) = 47
	if got, want := len(published[0]), 47; got != want {
		t.Fatalf("BinanceIncSeqNo len = %d, want %d", got, want)
	}
}

func TestNewSbeDepthDiffParser_RejectsJSONPayload(t *testing.T) {
	parser := NewSbeDepthDiffParser()
	n := parser([]byte(`{"e":"depthUpdate"}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames for a JSON payload, want 0 (JSON parser owns that dispatch)", n)
	}
}

func TestNewSbeDepthDiffParser_RejectsWrongTemplateID(t *testing.T) {
	msg := buildSbeDepthDiffMessage(1, 1, 1, 0, 0, nil, nil, "BTCUSDT")
	binary.LittleEndian.PutUint16(msg[2:4], sbeTemplateTrade) // wrong template id
	parser := NewSbeDepthDiffParser()
	n := parser(msg, func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames for a mismatched template id, want 0", n)
	}
}

func TestNewSbeTradeParser_ScalesAndMapsSide(t *testing.T) {
	msg := buildSbeTradeMessage(
		1700000000000, 1700000000500, -2, -3,
		[][3]int64{{1, 4200050, 1000}, {2, 4200100, 2000}},
		[]bool{true, false},
		"ETHUSDT",
	)

	parser := NewSbeTradeParser()
	var published [][]byte
	n := parser(msg, func(b []byte) { published = append(published, b) })

	if n != 2 || len(published) != 2 {
		t.Fatalf("emitted %d frames, want 2 trades", n)
	}
	// Trade: headerLen(4)+len-prefix(4)+symbol(7)+id(8)+ts(8)+side+pad(8)+price(8)+amount(8) = 55
	for _, f := range published {
		if len(f) != 55 {
			t.Fatalf("trade frame len = %d, want 55", len(f))
		}
	}
}

func TestNewSbeTradeParser_DropsNonSbePayload(t *testing.T) {
	parser := NewSbeTradeParser()
	n := parser([]byte(`[1,2,3]`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames for a JSON array payload, want 0", n)
	}
}

func TestScaleMantissa(t *testing.T) {
	cases := []struct {
		mantissa int64
		exponent int8
		want     float64
	}{
		{4200050, -2, 42000.50},
		{100, 0, 100},
		{5, 3, 5000},
	}
	for _, c := range cases {
		if got := scaleMantissa(c.mantissa, c.exponent); got != c.want {
			t.Errorf("scaleMantissa(%d, %d) = %v, want %v", c.mantissa, c.exponent, got, c.want)
		}
	}
}
