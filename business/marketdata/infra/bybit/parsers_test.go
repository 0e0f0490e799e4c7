package bybit

import (
	"testing"

	"github.com/cryptoproxy/mktproxy/business/marketdata/domain"
)

func TestNewTradeParser_MapsBuySide(t *testing.T) {
	parser := NewTradeParser()
	var published [][]byte
	n := parser([]byte(`{"topic":"publicTrade.BTCUSDT","ts":1700000000000,"data":[
		{"T":1700000000000,"s":"BTCUSDT","S":"Buy","v":"0.01","p":"42000.5","i":"1"}
	]}`), func(b []byte) { published = append(published, b) })

	if n != 1 || len(published) != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
	if got := published[0][31]; got != byte(domain.SideBuy) {
		t.Fatalf("side byte = %q, want %q", got, domain.SideBuy)
	}
}

func TestNewTradeParser_DropsZeroQuantity(t *testing.T) {
	parser := NewTradeParser()
	n := parser([]byte(`{"topic":"publicTrade.BTCUSDT","ts":1,"data":[
		{"T":1,"s":"BTCUSDT","S":"Buy","v":"0","p":"1","i":"1"}
	]}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames for a zero quantity, want 0", n)
	}
}

func TestNewDepthParser_SnapshotType(t *testing.T) {
	parser := NewDepthParser()
	var published [][]byte
	n := parser([]byte(`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1700000000000,"data":
		{"s":"BTCUSDT","b":[["42000","1"]],"a":[["42001","2"]],"u":10,"seq":9}
	}`), func(b []byte) { published = append(published, b) })
	if n != 1 || len(published) != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
	if got := published[0][39]; got != 1 {
		t.Fatalf("is_snapshot byte = %d, want 1 for type=snapshot", got)
	}
}

func TestNewDepthParser_MissingSymbolEmitsNothing(t *testing.T) {
	parser := NewDepthParser()
	n := parser([]byte(`{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":1,"data":
		{"b":[["1","1"]],"a":[["1","1"]],"u":1,"seq":1}
	}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames without a symbol, want 0", n)
	}
}

func TestNewKlineParser_EmitsOnePerRow(t *testing.T) {
	parser := NewKlineParser("BTCUSDT")
	n := parser([]byte(`{"topic":"kline.1.BTCUSDT","ts":1,"data":[
		{"start":1700000000000,"open":"1","high":"2","low":"0.5","close":"1.5","volume":"10","turnover":"15","confirm":true}
	]}`), func([]byte) {})
	if n != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
}

func TestNewKlineParser_UnparsableFieldDropsRow(t *testing.T) {
	parser := NewKlineParser("BTCUSDT")
	n := parser([]byte(`{"topic":"kline.1.BTCUSDT","ts":1,"data":[
		{"start":1,"open":"bad","high":"2","low":"0.5","close":"1.5","volume":"10","turnover":"15","confirm":true}
	]}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames for an unparsable open, want 0", n)
	}
}

func TestNewDerivativesMetricParser_RequiresAllThreeFields(t *testing.T) {
	parser := NewDerivativesMetricParser()
	n := parser([]byte(`{"topic":"tickers.BTCUSDT","ts":1700000000000,"data":
		{"symbol":"BTCUSDT","markPrice":"42000","indexPrice":"41999","fundingRate":"0.0001","nextFundingTime":"1700003600000"}
	}`), func([]byte) {})
	if n != 3 {
		t.Fatalf("emitted %d frames, want 3 (mark/index/funding)", n)
	}
}

func TestNewDerivativesMetricParser_MissingFundingRateEmitsNothing(t *testing.T) {
	parser := NewDerivativesMetricParser()
	n := parser([]byte(`{"topic":"tickers.BTCUSDT","ts":1,"data":
		{"symbol":"BTCUSDT","markPrice":"42000","indexPrice":"41999"}
	}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames with a missing fundingRate, want 0", n)
	}
}

func TestNewLiquidationParser(t *testing.T) {
	parser := NewLiquidationParser()
	n := parser([]byte(`{"topic":"liquidation.BTCUSDT","ts":1,"data":
		{"symbol":"BTCUSDT","side":"Sell","price":"40000","size":"1","updatedTime":1700000000000}
	}`), func([]byte) {})
	if n != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
}

func TestNewLiquidationParser_UnknownSideEmitsNothing(t *testing.T) {
	parser := NewLiquidationParser()
	n := parser([]byte(`{"topic":"liquidation.BTCUSDT","ts":1,"data":
		{"symbol":"BTCUSDT","side":"Flat","price":"1","size":"1","updatedTime":1}
	}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames for an unrecognized side, want 0", n)
	}
}

func TestNewSignalParser_RequiresNonZeroTs(t *testing.T) {
	parser := NewSignalParser(domain.SignalSourceIPC)
	n := parser([]byte(`{"topic":"orderbook.50.BTCUSDT","ts":0,"data":{}}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames for a zero ts, want 0", n)
	}
	n = parser([]byte(`{"topic":"orderbook.50.BTCUSDT","ts":1700000000000,"data":{}}`), func([]byte) {})
	if n != 1 {
		t.Fatalf("emitted %d frames for a populated ts, want 1", n)
	}
}
