// Package bybit implements the Bybit entry in the ParserRegistry, mapping
// Bybit v5 public WebSocket topics onto the same NormalizedFrame
// vocabulary as the Binance and OKX families.
package bybit

import "encoding/json"

// envelope is the common Bybit v5 push wrapper: {"topic":..., "type":...,
// "ts":..., "data": ...}.
type envelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Ts    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

// tradeRow is one element of the publicTrade.* data array.
type tradeRow struct {
	TradeTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Side      string `json:"S"` // "Buy" | "Sell"
	Quantity  string `json:"v"`
	Price     string `json:"p"`
	TradeID   string `json:"i"`
}

// orderbookData is the orderbook.*.* data object; Type on the envelope
// distinguishes "snapshot" from "delta".
type orderbookData struct {
	Symbol       string     `json:"s"`
	Bids         [][]string `json:"b"`
	Asks         [][]string `json:"a"`
	UpdateID     int64      `json:"u"`
	SequenceNum  int64      `json:"seq"`
}

// klineRow is one element of the kline.* data array.
type klineRow struct {
	Start      int64  `json:"start"`
	Open       string `json:"open"`
	High       string `json:"high"`
	Low        string `json:"low"`
	Close      string `json:"close"`
	Volume     string `json:"volume"`
	Turnover   string `json:"turnover"`
	Confirm    bool   `json:"confirm"`
}

// tickerData is the tickers.* payload carrying mark/index price and
// funding rate for linear perpetuals.
type tickerData struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

// liquidationData is the liquidation.* payload.
type liquidationData struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"` // "Buy" | "Sell"
	Price       string `json:"price"`
	Size        string `json:"size"`
	UpdatedTime int64  `json:"updatedTime"`
}
