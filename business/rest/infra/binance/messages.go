package binance

// premiumIndexKlineRow mirrors a premiumIndexKlines REST row: a
// positional array [openTime, open, high, low, close, ...].
type premiumIndexKlineRow []interface{}

// openInterestResponse is the openInterest REST response.
type openInterestResponse struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

// exchangeSymbolInfo is one element of exchangeInfo's symbols array.
type exchangeSymbolInfo struct {
	Symbol       string `json:"symbol"`
	QuoteAsset   string `json:"quoteAsset"`
	Status       string `json:"status"`
	ContractType string `json:"contractType"`
}

// exchangeInfoResponse is the exchangeInfo REST response, trimmed to the
// fields the SymbolSet refresh needs.
type exchangeInfoResponse struct {
	Symbols []exchangeSymbolInfo `json:"symbols"`
}

// longShortRatioRow is a row shared by topLongShortAccountRatio,
// topLongShortPositionRatio and globalLongShortAccountRatio: they all
// return {symbol, longAccount|longPosition, shortAccount|shortPosition,
// longShortRatio, timestamp} with varying key names for the first two
// fields, so the two variants are decoded explicitly.
type accountRatioRow struct {
	Symbol        string `json:"symbol"`
	LongAccount   string `json:"longAccount"`
	ShortAccount  string `json:"shortAccount"`
	LongShortRatio string `json:"longShortRatio"`
	Timestamp     int64  `json:"timestamp"`
}

type positionRatioRow struct {
	Symbol         string `json:"symbol"`
	LongPosition   string `json:"longPosition"`
	ShortPosition  string `json:"shortPosition"`
	LongShortRatio string `json:"longShortRatio"`
	Timestamp      int64  `json:"timestamp"`
}

type openInterestHistRow struct {
	Symbol               string `json:"symbol"`
	SumOpenInterest      string `json:"sumOpenInterest"`
	SumOpenInterestValue string `json:"sumOpenInterestValue"`
	Timestamp            int64  `json:"timestamp"`
}

// availableInventoryResponse is the authenticated SAPI available
// inventory response, trimmed to what the merged status snapshot needs.
type availableInventoryResponse struct {
	Assets map[string]string `json:"assets"`
}

// borrowRepayRecord is one row of the authenticated SAPI borrow-repay
// history response (/sapi/v1/margin/borrow-repay), trimmed to what the
// merged status snapshot needs: the outstanding principal per asset.
type borrowRepayRecord struct {
	Asset     string `json:"asset"`
	Principal string `json:"principal"`
}

// borrowRepayResponse is the paginated envelope borrow-repay history is
// returned in.
type borrowRepayResponse struct {
	Rows []borrowRepayRecord `json:"rows"`
}
