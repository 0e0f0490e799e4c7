package domain

import (
	"encoding/binary"
	"math"
	"testing"
)

func readU32(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off:])
}

func readI64(buf []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(buf[off:]))
}

func readF64(buf []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
}

func TestEncodeTrade_FuturesLayout(t *testing.T) {
	trade := &Trade{
		Symbol: "BTCUSDT",
		ID:     123456,
		Ts:     1700000000000,
		Side:   SideSell,
		Price:  42000.5,
		Amount: 0.01,
	}

	buf, err := Encode(trade)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if got, want := len(buf), trade.EncodedLen(); got != want {
		t.Fatalf("len(buf) = %d, want EncodedLen() = %d", got, want)
	}
	if got, want := len(buf), 55; got != want {
		t.Fatalf("len(buf) = %d, want 55 for a 7-char symbol", got)
	}

	if got, want := readU32(buf, 0), uint32(TypeTrade); got != want {
		t.Fatalf("type tag = %d, want %d", got, want)
	}
	if got, want := readU32(buf, 4), uint32(7); got != want {
		t.Fatalf("symbol length = %d, want 7", got)
	}
	if got, want := string(buf[8:15]), "BTCUSDT"; got != want {
		t.Fatalf("symbol = %q, want %q", got, want)
	}
	if got, want := readI64(buf, 15), int64(123456); got != want {
		t.Fatalf("id = %d, want %d", got, want)
	}
	if got, want := readI64(buf, 23), int64(1700000000000); got != want {
		t.Fatalf("ts = %d, want %d", got, want)
	}
	if got, want := buf[31], byte(SideSell); got != want {
		t.Fatalf("side byte = %q, want %q", got, want)
	}
	for _, padByte := range buf[32:39] {
		if padByte != 0 {
			t.Fatalf("expected zero padding after side byte, got %v", buf[32:39])
		}
	}
	if got, want := readF64(buf, 39), 42000.5; got != want {
		t.Fatalf("price = %v, want %v", got, want)
	}
	if got, want := readF64(buf, 47), 0.01; got != want {
		t.Fatalf("amount = %v, want %v", got, want)
	}
}

func TestEncodeOrderBookInc_BoolPadAndLevels(t *testing.T) {
	book := &OrderBookInc{
		Symbol:      "ETHUSDT",
		FirstUpdate: 10,
		FinalUpdate: 12,
		Ts:          1700000000000,
		IsSnapshot:  true,
		Bids:        []Level{{Price: 2000, Amount: 1}},
		Asks:        []Level{{Price: 2001, Amount: 2}, {Price: 2002, Amount: 3}},
	}

	buf, err := Encode(book)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(buf) != book.EncodedLen() {
		t.Fatalf("len(buf) = %d, want EncodedLen() = %d", len(buf), book.EncodedLen())
	}

	off := 4 + 4 + len(book.Symbol) + 8 + 8 + 8
	if buf[off] != 1 {
		t.Fatalf("is_snapshot byte = %d, want 1", buf[off])
	}
	for _, padByte := range buf[off+1 : off+8] {
		if padByte != 0 {
			t.Fatalf("expected zero padding after is_snapshot byte")
		}
	}

	bidCountOff := off + 8
	if got := readU32(buf, bidCountOff); got != 1 {
		t.Fatalf("bid count = %d, want 1", got)
	}
	if got := readU32(buf, bidCountOff+4); got != 2 {
		t.Fatalf("ask count = %d, want 2", got)
	}

	levelsOff := bidCountOff + 8
	if got := readF64(buf, levelsOff); got != 2000 {
		t.Fatalf("first bid price = %v, want 2000", got)
	}
	if got := readF64(buf, levelsOff+16); got != 2001 {
		t.Fatalf("first ask price = %v, want 2001", got)
	}
}

func TestEncode_UnknownFrameTypeErrors(t *testing.T) {
	if _, err := Encode(unknownFrame{}); err == nil {
		t.Fatal("expected an error for an unrecognized Frame implementation")
	}
}

type unknownFrame struct{}

func (unknownFrame) Type() FrameType { return FrameType(9999) }
func (unknownFrame) EncodedLen() int { return headerLen }

func TestEncode_IsDeterministic(t *testing.T) {
	trade := &Trade{Symbol: "BTCUSDT", ID: 1, Ts: 2, Side: SideBuy, Price: 3, Amount: 4}
	a, err := Encode(trade)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := Encode(trade)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(a) != string(b) {
		t.Fatal("Encode is not deterministic for identical input")
	}
}

// frameLenCases exercises the remaining frame types that TestEncodeTrade
// and TestEncodeOrderBookInc didn't already cover byte-for-byte: each
// encodes to exactly its own EncodedLen() and starts with its own type
// tag.
func TestEncode_RemainingFrameTypesMatchEncodedLen(t *testing.T) {
	cases := []struct {
		name string
		f    Frame
	}{
		{"BinanceIncSeqNo", &BinanceIncSeqNo{Symbol: "BTCUSDT", PrevFinal: 9, FinalUpdate: 12, FirstUpdate: 10, Ts: 1}},
		{"Kline", &Kline{Symbol: "BTCUSDT", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, Turnover: 15, Ts: 1, TradeNum: 3, TakerBuyVol: 5, TakerBuyQuoteVol: 7.5}},
		{"MarkPrice", &MarkPrice{Symbol: "BTCUSDT", Price: 42000, Ts: 1}},
		{"IndexPrice", &IndexPrice{Symbol: "BTCUSDT", Price: 41999, Ts: 1}},
		{"FundingRate", &FundingRate{Symbol: "BTCUSDT", Rate: 0.0001, NextFundingTime: 2, Ts: 1}},
		{"LiquidationOrder", &LiquidationOrder{Symbol: "BTCUSDT", Side: SideSell, Quantity: 1, AvgPrice: 40000, Ts: 1}},
		{"PremiumIndexKline", &PremiumIndexKline{Symbol: "BTCUSDT", Open: 1, High: 2, Low: 0.5, Close: 1.5, OpenInterest: 100, OiTimestamp: 1, CloseTime: 60000}},
		{"TopLongShortRatio", &TopLongShortRatio{Symbol: "BTCUSDT", LongAccount: 0.6, ShortAccount: 0.4, LongPosition: 0.55, ShortPosition: 0.45, GlobalRatio: 1.1, HasOpenInterest: true, OpenInterest: 100, Ts: 1}},
		{"RestSummary1m", &RestSummary1m{CloseTime: 60000, SymbolsOK: 10, SymbolsFailed: 1}},
		{"RestSummary5m", &RestSummary5m{CloseTime: 300000, RatiosOK: 8, RatiosFailed: 0}},
		{"BinanceMktStatus", &BinanceMktStatus{Ts: 1700000000000, Assets: []AssetStatus{{Asset: "USDT", Available: 1000, Borrowed: 10}}}},
		{"TpReset", &TpReset{Ts: 1700000000000}},
		{"Signal", &Signal{Source: SignalSourceTCP, Ts: 1700000000000}},
		{"Error", &Error{Code: 42, Message: "bad frame"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf, err := Encode(c.f)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if got, want := len(buf), c.f.EncodedLen(); got != want {
				t.Fatalf("len(buf) = %d, want EncodedLen() = %d", got, want)
			}
			if got, want := readU32(buf, 0), uint32(c.f.Type()); got != want {
				t.Fatalf("type tag = %d, want %d", got, want)
			}
		})
	}
}

func TestEncodeLiquidationOrder_SideBytePadding(t *testing.T) {
	liq := &LiquidationOrder{Symbol: "BTCUSDT", Side: SideSell, Quantity: 1, AvgPrice: 40000, Ts: 1}
	buf, err := Encode(liq)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	sideOff := headerLen + 4 + len(liq.Symbol)
	if buf[sideOff] != byte(SideSell) {
		t.Fatalf("side byte = %q, want %q", buf[sideOff], SideSell)
	}
	for _, padByte := range buf[sideOff+1 : sideOff+8] {
		if padByte != 0 {
			t.Fatal("expected zero padding after the side byte")
		}
	}
}

func TestEncodeBinanceMktStatus_MultipleAssets(t *testing.T) {
	status := &BinanceMktStatus{
		Ts: 1700000000000,
		Assets: []AssetStatus{
			{Asset: "USDT", Available: 1000.5, Borrowed: 10},
			{Asset: "BTC", Available: 0.2, Borrowed: 0},
		},
	}
	buf, err := Encode(status)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(buf) != status.EncodedLen() {
		t.Fatalf("len(buf) = %d, want EncodedLen() = %d", len(buf), status.EncodedLen())
	}
	if got, want := readI64(buf, headerLen), int64(1700000000000); got != want {
		t.Fatalf("ts = %d, want %d", got, want)
	}
	if got, want := readU32(buf, headerLen+8), uint32(2); got != want {
		t.Fatalf("asset count = %d, want %d", got, want)
	}
	off := headerLen + 8 + 4
	if got, want := readU32(buf, off), uint32(4); got != want {
		t.Fatalf("first asset length = %d, want 4", got)
	}
	if got, want := string(buf[off+4:off+8]), "USDT"; got != want {
		t.Fatalf("first asset = %q, want %q", got, want)
	}
	if got, want := readF64(buf, off+8), 1000.5; got != want {
		t.Fatalf("available = %v, want %v", got, want)
	}
	if got, want := readF64(buf, off+16), 10.0; got != want {
		t.Fatalf("borrowed = %v, want %v", got, want)
	}
}

func TestEncodeTopLongShortRatio_BoolPadding(t *testing.T) {
	ratio := &TopLongShortRatio{Symbol: "BTCUSDT", HasOpenInterest: true, OpenInterest: 100, Ts: 1}
	buf, err := Encode(ratio)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	boolOff := headerLen + 4 + len(ratio.Symbol) + 8*5
	if buf[boolOff] != 1 {
		t.Fatalf("has_open_interest byte = %d, want 1", buf[boolOff])
	}
	for _, padByte := range buf[boolOff+1 : boolOff+8] {
		if padByte != 0 {
			t.Fatal("expected zero padding after has_open_interest byte")
		}
	}
}
