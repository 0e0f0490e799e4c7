package bybit

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/cryptoproxy/mktproxy/business/marketdata/app"
	"github.com/cryptoproxy/mktproxy/business/marketdata/domain"
)

func publishFrame(publish app.PublishFunc, f domain.Frame) int {
	buf, err := domain.Encode(f)
	if err != nil {
		return 0
	}
	publish(buf)
	return 1
}

func parseDecimal(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

func parseLevels(raw [][]string) ([]domain.Level, bool) {
	levels := make([]domain.Level, 0, len(raw))
	for _, r := range raw {
		if len(r) < 2 {
			return nil, false
		}
		price, ok := parseDecimal(r[0])
		if !ok {
			return nil, false
		}
		amount, ok := parseDecimal(r[1])
		if !ok {
			return nil, false
		}
		levels = append(levels, domain.Level{Price: price, Amount: amount})
	}
	return levels, true
}

func mapSide(s string) (domain.Side, bool) {
	switch s {
	case "Buy":
		return domain.SideBuy, true
	case "Sell":
		return domain.SideSell, true
	default:
		return 0, false
	}
}

// NewTradeParser builds the publicTrade.* parser.
func NewTradeParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		var rows []tradeRow
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return 0
		}
		total := 0
		for _, row := range rows {
			if row.Symbol == "" {
				continue
			}
			price, ok1 := parseDecimal(row.Price)
			qty, ok2 := parseDecimal(row.Quantity)
			side, ok3 := mapSide(row.Side)
			if !ok1 || !ok2 || !ok3 || price <= 0 || qty <= 0 {
				continue
			}
			id, _ := strconv.ParseInt(row.TradeID, 10, 64)
			total += publishFrame(publish, &domain.Trade{
				Symbol: row.Symbol,
				ID:     id,
				Ts:     row.TradeTime,
				Side:   side,
				Price:  price,
				Amount: qty,
			})
		}
		return total
	}
}

// NewDepthParser builds the orderbook.* parser. The envelope's Type field
// ("snapshot" or "delta") selects IsSnapshot on the emitted OrderBookInc.
func NewDepthParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		var data orderbookData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return 0
		}
		if data.Symbol == "" {
			return 0
		}
		bids, ok := parseLevels(data.Bids)
		if !ok {
			return 0
		}
		asks, ok := parseLevels(data.Asks)
		if !ok {
			return 0
		}
		return publishFrame(publish, &domain.OrderBookInc{
			Symbol:      data.Symbol,
			FirstUpdate: data.SequenceNum,
			FinalUpdate: data.UpdateID,
			Ts:          env.Ts,
			IsSnapshot:  env.Type == "snapshot",
			Bids:        bids,
			Asks:        asks,
		})
	}
}

// NewKlineParser builds the kline.* parser, emitting one Kline frame per
// row in the data array (usually exactly one).
func NewKlineParser(symbol string) app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		var rows []klineRow
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return 0
		}
		total := 0
		for _, row := range rows {
			open, ok1 := parseDecimal(row.Open)
			high, ok2 := parseDecimal(row.High)
			low, ok3 := parseDecimal(row.Low)
			closeP, ok4 := parseDecimal(row.Close)
			vol, ok5 := parseDecimal(row.Volume)
			turn, ok6 := parseDecimal(row.Turnover)
			if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
				continue
			}
			total += publishFrame(publish, &domain.Kline{
				Symbol:   symbol,
				Open:     open,
				High:     high,
				Low:      low,
				Close:    closeP,
				Volume:   vol,
				Turnover: turn,
				Ts:       row.Start,
			})
		}
		return total
	}
}

// NewDerivativesMetricParser builds the tickers.* parser, emitting
// MarkPrice/IndexPrice/FundingRate when all three fields are present.
func NewDerivativesMetricParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		var data tickerData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return 0
		}
		if data.Symbol == "" {
			return 0
		}
		mark, ok1 := parseDecimal(data.MarkPrice)
		index, ok2 := parseDecimal(data.IndexPrice)
		rate, ok3 := parseDecimal(data.FundingRate)
		if !(ok1 && ok2 && ok3) {
			return 0
		}
		nextFunding, _ := strconv.ParseInt(data.NextFundingTime, 10, 64)
		n := publishFrame(publish, &domain.MarkPrice{Symbol: data.Symbol, Price: mark, Ts: env.Ts})
		n += publishFrame(publish, &domain.IndexPrice{Symbol: data.Symbol, Price: index, Ts: env.Ts})
		n += publishFrame(publish, &domain.FundingRate{
			Symbol:          data.Symbol,
			Rate:            rate,
			NextFundingTime: nextFunding,
			Ts:              env.Ts,
		})
		return n
	}
}

// NewLiquidationParser builds the liquidation.* parser.
func NewLiquidationParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		var data liquidationData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return 0
		}
		if data.Symbol == "" {
			return 0
		}
		side, ok := mapSide(data.Side)
		if !ok {
			return 0
		}
		qty, ok1 := parseDecimal(data.Size)
		price, ok2 := parseDecimal(data.Price)
		if !ok1 || !ok2 {
			return 0
		}
		return publishFrame(publish, &domain.LiquidationOrder{
			Symbol:   data.Symbol,
			Side:     side,
			Quantity: qty,
			AvgPrice: price,
			Ts:       data.UpdatedTime,
		})
	}
}

// NewSignalParser builds the Signal parser bound to source, for the
// designated depth channel used as a liveness heartbeat.
func NewSignalParser(source domain.SignalSource) app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		if env.Ts == 0 {
			return 0
		}
		return publishFrame(publish, &domain.Signal{Source: source, Ts: env.Ts})
	}
}
