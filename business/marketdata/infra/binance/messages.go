// Package binance implements the Binance entry in the ParserRegistry:
// one pure parse function per stream kind, all sharing the same
// NormalizedFrame vocabulary as the OKX and Bybit families.
package binance

import "encoding/json"

// tradeEvent is the "trade" stream envelope.
type tradeEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
	BuyerMaker bool  `json:"m"`
}

// depthUpdateEvent is the "depthUpdate" diff stream envelope. EventTimeFutures
// (T) takes priority over EventTime (E) when both are present, per futures
// stream convention.
type depthUpdateEvent struct {
	EventType        string     `json:"e"`
	EventTime        int64      `json:"E"`
	EventTimeFutures int64      `json:"T"`
	Symbol           string     `json:"s"`
	FirstUpdateID    int64      `json:"U"`
	FinalUpdateID    int64      `json:"u"`
	PrevFinalUpdateID *int64    `json:"pu"`
	Bids             [][]string `json:"b"`
	Asks             [][]string `json:"a"`
}

// snapshotEvent is the REST full-book response reused as an injected
// payload for the Snapshot parser.
type snapshotEvent struct {
	Symbol       string     `json:"symbol"`
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// klineEvent is the "kline" stream envelope.
type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime       int64  `json:"t"`
		Open           string `json:"o"`
		High           string `json:"h"`
		Low            string `json:"l"`
		Close          string `json:"c"`
		Volume         string `json:"v"`
		Turnover       string `json:"q"`
		TradeCount     int64  `json:"n"`
		IsClosed       bool   `json:"x"`
		TakerBuyVol    string `json:"V"`
		TakerBuyQuote  string `json:"Q"`
	} `json:"k"`
}

// markPriceEvent is a single "markPriceUpdate" envelope. The same stream
// may also deliver a JSON array of these when subscribed as !markPrice@arr.
type markPriceEvent struct {
	EventType       string `json:"e"`
	EventTime       int64  `json:"E"`
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	IndexPrice      string `json:"i"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
}

// forceOrderEvent is the "forceOrder" liquidation envelope.
type forceOrderEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Order     struct {
		Symbol   string `json:"s"`
		Side     string `json:"S"`
		Quantity string `json:"z"`
		AvgPrice string `json:"ap"`
		TradeTime int64 `json:"T"`
	} `json:"o"`
}

// signalEnvelope is the minimal shape the Signal parser needs: any
// payload carrying an event time.
type signalEnvelope struct {
	EventTime int64 `json:"E"`
}

func sniffEventType(raw []byte) string {
	var probe struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.EventType
}
