// Package okx implements the OKX entry in the ParserRegistry, mapping
// OKX public WebSocket channels onto the same NormalizedFrame vocabulary
// as the Binance and Bybit families.
package okx

import "encoding/json"

// envelope is the common OKX push wrapper: {"arg":{"channel":...,
// "instId":...}, "action":..., "data":[...]}.
type envelope struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Action string          `json:"action"` // "snapshot" | "update", books channel only
	Data   json.RawMessage `json:"data"`
}

// tradeRow is one element of the trades channel data array.
type tradeRow struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Price   string `json:"px"`
	Size    string `json:"sz"`
	Side    string `json:"side"` // "buy" | "sell"
	Ts      string `json:"ts"`
}

// booksRow is one element of the books channel data array.
type booksRow struct {
	Asks       [][]string `json:"asks"`
	Bids       [][]string `json:"bids"`
	Ts         string     `json:"ts"`
	SeqID      int64      `json:"seqId"`
	PrevSeqID  int64      `json:"prevSeqId"`
}

// candleRow is one element of the candle1m (etc.) channel data array:
// [ts, o, h, l, c, vol, volCcyQuote, ...].
type candleRow []string

// fundingRateRow is one element of the funding-rate channel data array.
type fundingRateRow struct {
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
	Ts              string `json:"ts"`
}

// markPriceRow is one element of the mark-price channel data array.
type markPriceRow struct {
	InstID    string `json:"instId"`
	MarkPx    string `json:"markPx"`
	Ts        string `json:"ts"`
}

// indexPriceRow is one element of the index-tickers channel data array.
type indexPriceRow struct {
	InstID string `json:"instId"`
	IdxPx  string `json:"idxPx"`
	Ts     string `json:"ts"`
}

// liquidationDetail is one detail entry inside a liquidation-orders
// channel data element.
type liquidationDetail struct {
	Side string `json:"side"` // "buy" | "sell"
	Sz   string `json:"sz"`
	Bkpx string `json:"bkPx"`
	Ts   string `json:"ts"`
}

// liquidationRow is one element of the liquidation-orders channel data
// array, grouping details per instrument.
type liquidationRow struct {
	InstID  string              `json:"instId"`
	Details []liquidationDetail `json:"details"`
}
