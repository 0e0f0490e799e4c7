package domain

import (
	"encoding/binary"
	"fmt"
	"math"
)

// writer fills a pre-sized buffer left to right. It never grows or
// reallocates — callers size buf with the frame's EncodedLen() up
// front, matching the "allocation-sized in one shot" contract.
type writer struct {
	buf []byte
	pos int
}

func newWriter(size int) *writer {
	return &writer{buf: make([]byte, size)}
}

func (w *writer) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
}

func (w *writer) i64(v int64) {
	binary.LittleEndian.PutUint64(w.buf[w.pos:], uint64(v))
	w.pos += 8
}

func (w *writer) f64(v float64) {
	binary.LittleEndian.PutUint64(w.buf[w.pos:], math.Float64bits(v))
	w.pos += 8
}

// boolPad writes a single byte (0/1) followed by 7 bytes of zero
// padding, keeping the following f64/i64 field 8-byte aligned.
func (w *writer) boolPad(b bool) {
	if b {
		w.buf[w.pos] = 1
	} else {
		w.buf[w.pos] = 0
	}
	w.pos += 8 // 1 byte + 7 bytes zero padding (buf is zero-valued already)
}

func (w *writer) byteVal(b byte) {
	w.buf[w.pos] = b
	w.pos += 8 // side byte + 7 bytes padding, same alignment rule
}

// str writes a u32 LE length prefix followed by the raw UTF-8 bytes.
// The length is truncated to fit u32 per the codec's edge policy.
func (w *writer) str(s string) {
	n := uint32(len(s))
	w.u32(n)
	copy(w.buf[w.pos:], s)
	w.pos += len(s)
}

func (w *writer) level(l Level) {
	w.f64(l.Price)
	w.f64(l.Amount)
}

// Encode serializes a NormalizedFrame to its fixed binary layout. It is
// pure: identical input always produces identical bytes, and the
// backing array is allocated exactly once per call.
func Encode(f Frame) ([]byte, error) {
	w := newWriter(f.EncodedLen())
	w.u32(uint32(f.Type()))

	switch v := f.(type) {
	case *Trade:
		w.str(v.Symbol)
		w.i64(v.ID)
		w.i64(v.Ts)
		w.byteVal(byte(v.Side))
		w.f64(v.Price)
		w.f64(v.Amount)

	case *OrderBookInc:
		w.str(v.Symbol)
		w.i64(v.FirstUpdate)
		w.i64(v.FinalUpdate)
		w.i64(v.Ts)
		w.boolPad(v.IsSnapshot)
		w.u32(uint32(len(v.Bids)))
		w.u32(uint32(len(v.Asks)))
		for _, l := range v.Bids {
			w.level(l)
		}
		for _, l := range v.Asks {
			w.level(l)
		}

	case *BinanceIncSeqNo:
		w.str(v.Symbol)
		w.i64(v.PrevFinal)
		w.i64(v.FinalUpdate)
		w.i64(v.FirstUpdate)
		w.i64(v.Ts)

	case *Kline:
		w.str(v.Symbol)
		w.f64(v.Open)
		w.f64(v.High)
		w.f64(v.Low)
		w.f64(v.Close)
		w.f64(v.Volume)
		w.f64(v.Turnover)
		w.i64(v.Ts)
		w.i64(v.TradeNum)
		w.f64(v.TakerBuyVol)
		w.f64(v.TakerBuyQuoteVol)

	case *MarkPrice:
		w.str(v.Symbol)
		w.f64(v.Price)
		w.i64(v.Ts)

	case *IndexPrice:
		w.str(v.Symbol)
		w.f64(v.Price)
		w.i64(v.Ts)

	case *FundingRate:
		w.str(v.Symbol)
		w.f64(v.Rate)
		w.i64(v.NextFundingTime)
		w.i64(v.Ts)

	case *LiquidationOrder:
		w.str(v.Symbol)
		w.byteVal(byte(v.Side))
		w.f64(v.Quantity)
		w.f64(v.AvgPrice)
		w.i64(v.Ts)

	case *PremiumIndexKline:
		w.str(v.Symbol)
		w.f64(v.Open)
		w.f64(v.High)
		w.f64(v.Low)
		w.f64(v.Close)
		w.f64(v.OpenInterest)
		w.i64(v.OiTimestamp)
		w.i64(v.CloseTime)

	case *TopLongShortRatio:
		w.str(v.Symbol)
		w.f64(v.LongAccount)
		w.f64(v.ShortAccount)
		w.f64(v.LongPosition)
		w.f64(v.ShortPosition)
		w.f64(v.GlobalRatio)
		w.boolPad(v.HasOpenInterest)
		w.f64(v.OpenInterest)
		w.i64(v.Ts)

	case *RestSummary1m:
		w.i64(v.CloseTime)
		w.u32(v.SymbolsOK)
		w.u32(v.SymbolsFailed)

	case *RestSummary5m:
		w.i64(v.CloseTime)
		w.u32(v.RatiosOK)
		w.u32(v.RatiosFailed)

	case *BinanceMktStatus:
		w.i64(v.Ts)
		w.u32(uint32(len(v.Assets)))
		for _, a := range v.Assets {
			w.str(a.Asset)
			w.f64(a.Available)
			w.f64(a.Borrowed)
		}

	case *TpReset:
		w.i64(v.Ts)

	case *Signal:
		w.u32(uint32(v.Source))
		w.i64(v.Ts)

	case *Error:
		w.u32(v.Code)
		w.str(v.Message)

	default:
		return nil, fmt.Errorf("domain: unknown frame type %T", f)
	}

	return w.buf, nil
}
