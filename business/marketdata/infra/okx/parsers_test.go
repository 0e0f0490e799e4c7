package okx

import (
	"encoding/binary"
	"testing"

	"github.com/cryptoproxy/mktproxy/business/marketdata/domain"
)

func TestNewTradeParser_MapsBuySide(t *testing.T) {
	parser := NewTradeParser()
	var published [][]byte
	n := parser([]byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[
		{"instId":"BTC-USDT","tradeId":"1","px":"42000.5","sz":"0.01","side":"buy","ts":"1700000000000"}
	]}`), func(b []byte) { published = append(published, b) })

	if n != 1 || len(published) != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
	if got := published[0][32]; got != byte(domain.SideBuy) {
		t.Fatalf("side byte = %q, want %q", got, domain.SideBuy)
	}
}

func TestNewTradeParser_DropsUnknownSide(t *testing.T) {
	parser := NewTradeParser()
	n := parser([]byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[
		{"instId":"BTC-USDT","tradeId":"1","px":"1","sz":"1","side":"up","ts":"1"}
	]}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames for an unrecognized side, want 0", n)
	}
}

func TestNewDepthParser_SnapshotActionSetsIsSnapshot(t *testing.T) {
	parser := NewDepthParser()
	var published [][]byte
	n := parser([]byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"snapshot","data":[
		{"asks":[["42001","1"]],"bids":[["42000","2"]],"ts":"1700000000000","seqId":5,"prevSeqId":4}
	]}`), func(b []byte) { published = append(published, b) })
	if n != 1 || len(published) != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
	if got := published[0][40]; got != 1 {
		t.Fatalf("is_snapshot byte = %d, want 1 for action=snapshot", got)
	}
}

func TestNewDepthParser_MissingInstIDEmitsNothing(t *testing.T) {
	parser := NewDepthParser()
	n := parser([]byte(`{"arg":{"channel":"books"},"action":"update","data":[
		{"asks":[["1","1"]],"bids":[["1","1"]],"ts":"1","seqId":1,"prevSeqId":0}
	]}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames without an instId, want 0", n)
	}
}

func TestNewDepthParser_MalformedLevelDropsRow(t *testing.T) {
	parser := NewDepthParser()
	n := parser([]byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"update","data":[
		{"asks":[["notanumber","1"]],"bids":[["1","1"]],"ts":"1","seqId":1,"prevSeqId":0}
	]}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames for a malformed price, want 0", n)
	}
}

func TestNewKlineParser_PositionalCandleRow(t *testing.T) {
	parser := NewKlineParser("BTC-USDT")
	n := parser([]byte(`{"arg":{"channel":"candle1m"},"data":[
		["1700000000000","1","2","0.5","1.5","10","15"]
	]}`), func([]byte) {})
	if n != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
}

func TestNewKlineParser_ShortRowDropped(t *testing.T) {
	parser := NewKlineParser("BTC-USDT")
	n := parser([]byte(`{"arg":{"channel":"candle1m"},"data":[["1","2","3"]]}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames for a short candle row, want 0", n)
	}
}

func TestNewMarkPriceParser(t *testing.T) {
	parser := NewMarkPriceParser()
	n := parser([]byte(`{"arg":{"channel":"mark-price"},"data":[
		{"instId":"BTC-USDT","markPx":"42000","ts":"1700000000000"}
	]}`), func([]byte) {})
	if n != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
}

func TestNewIndexPriceParser(t *testing.T) {
	parser := NewIndexPriceParser()
	n := parser([]byte(`{"arg":{"channel":"index-tickers"},"data":[
		{"instId":"BTC-USDT","idxPx":"41999","ts":"1700000000000"}
	]}`), func([]byte) {})
	if n != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
}

func TestNewFundingRateParser(t *testing.T) {
	parser := NewFundingRateParser()
	n := parser([]byte(`{"arg":{"channel":"funding-rate"},"data":[
		{"instId":"BTC-USDT","fundingRate":"0.0001","nextFundingTime":"1700003600000","ts":"1700000000000"}
	]}`), func([]byte) {})
	if n != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
}

func TestNewLiquidationParser_OneFramePerDetail(t *testing.T) {
	parser := NewLiquidationParser()
	n := parser([]byte(`{"arg":{"channel":"liquidation-orders"},"data":[
		{"instId":"BTC-USDT","details":[
			{"side":"sell","sz":"1","bkPx":"40000","ts":"1"},
			{"side":"buy","sz":"2","bkPx":"40001","ts":"2"}
		]}
	]}`), func([]byte) {})
	if n != 2 {
		t.Fatalf("emitted %d frames, want 2 (one per detail)", n)
	}
}

func TestNewSignalParser_UsesFirstRowTimestamp(t *testing.T) {
	parser := NewSignalParser(domain.SignalSourceTCP)
	var published [][]byte
	n := parser([]byte(`{"arg":{"channel":"books"},"action":"update","data":[
		{"asks":[],"bids":[],"ts":"1700000000000","seqId":1,"prevSeqId":0}
	]}`), func(b []byte) { published = append(published, b) })
	if n != 1 || len(published) != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
	if got := int64(binary.LittleEndian.Uint64(published[0][8:16])); got != 1700000000000 {
		t.Fatalf("signal ts = %d, want 1700000000000", got)
	}
}

func TestNewSignalParser_ZeroTimestampEmitsNothing(t *testing.T) {
	parser := NewSignalParser(domain.SignalSourceTCP)
	n := parser([]byte(`{"arg":{"channel":"books"},"action":"update","data":[
		{"asks":[],"bids":[],"ts":"0","seqId":1,"prevSeqId":0}
	]}`), func([]byte) {})
	if n != 0 {
		t.Fatalf("emitted %d frames for a zero ts, want 0", n)
	}
}
