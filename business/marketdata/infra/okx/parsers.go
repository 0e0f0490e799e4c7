package okx

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

func parseMillis(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
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
	case "buy":
		return domain.SideBuy, true
	case "sell":
		return domain.SideSell, true
	default:
		return 0, false
	}
}

// NewTradeParser builds the trades channel parser.
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
			if row.InstID == "" {
				continue
			}
			price, ok1 := parseDecimal(row.Price)
			size, ok2 := parseDecimal(row.Size)
			side, ok3 := mapSide(row.Side)
			if !ok1 || !ok2 || !ok3 || price <= 0 || size <= 0 {
				continue
			}
			id, _ := strconv.ParseInt(row.TradeID, 10, 64)
			total += publishFrame(publish, &domain.Trade{
				Symbol: row.InstID,
				ID:     id,
				Ts:     parseMillis(row.Ts),
				Side:   side,
				Price:  price,
				Amount: size,
			})
		}
		return total
	}
}

// NewDepthParser builds the books channel parser. The envelope's Action
// field ("snapshot" or "update") selects IsSnapshot on the emitted frame.
func NewDepthParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		if env.Arg.InstID == "" {
			return 0
		}
		var rows []booksRow
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return 0
		}
		total := 0
		for _, row := range rows {
			bids, ok := parseLevels(row.Bids)
			if !ok {
				continue
			}
			asks, ok := parseLevels(row.Asks)
			if !ok {
				continue
			}
			total += publishFrame(publish, &domain.OrderBookInc{
				Symbol:      env.Arg.InstID,
				FirstUpdate: row.PrevSeqID,
				FinalUpdate: row.SeqID,
				Ts:          parseMillis(row.Ts),
				IsSnapshot:  env.Action == "snapshot",
				Bids:        bids,
				Asks:        asks,
			})
		}
		return total
	}
}

// NewKlineParser builds a candle channel parser. OKX candle rows are
// positional arrays: [ts, o, h, l, c, vol, volCcyQuote, ...].
func NewKlineParser(symbol string) app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		var rows []candleRow
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return 0
		}
		total := 0
		for _, row := range rows {
			if len(row) < 7 {
				continue
			}
			open, ok1 := parseDecimal(row[1])
			high, ok2 := parseDecimal(row[2])
			low, ok3 := parseDecimal(row[3])
			closeP, ok4 := parseDecimal(row[4])
			vol, ok5 := parseDecimal(row[5])
			turn, ok6 := parseDecimal(row[6])
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
				Ts:       parseMillis(row[0]),
			})
		}
		return total
	}
}

// NewMarkPriceParser builds the mark-price channel parser.
func NewMarkPriceParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		var rows []markPriceRow
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return 0
		}
		total := 0
		for _, row := range rows {
			if row.InstID == "" {
				continue
			}
			price, ok := parseDecimal(row.MarkPx)
			if !ok {
				continue
			}
			total += publishFrame(publish, &domain.MarkPrice{
				Symbol: row.InstID,
				Price:  price,
				Ts:     parseMillis(row.Ts),
			})
		}
		return total
	}
}

// NewIndexPriceParser builds the index-tickers channel parser.
func NewIndexPriceParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		var rows []indexPriceRow
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return 0
		}
		total := 0
		for _, row := range rows {
			if row.InstID == "" {
				continue
			}
			price, ok := parseDecimal(row.IdxPx)
			if !ok {
				continue
			}
			total += publishFrame(publish, &domain.IndexPrice{
				Symbol: row.InstID,
				Price:  price,
				Ts:     parseMillis(row.Ts),
			})
		}
		return total
	}
}

// NewFundingRateParser builds the funding-rate channel parser.
func NewFundingRateParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		var rows []fundingRateRow
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return 0
		}
		total := 0
		for _, row := range rows {
			if row.InstID == "" {
				continue
			}
			rate, ok := parseDecimal(row.FundingRate)
			if !ok {
				continue
			}
			total += publishFrame(publish, &domain.FundingRate{
				Symbol:          row.InstID,
				Rate:            rate,
				NextFundingTime: parseMillis(row.NextFundingTime),
				Ts:              parseMillis(row.Ts),
			})
		}
		return total
	}
}

// NewLiquidationParser builds the liquidation-orders channel parser.
func NewLiquidationParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0
		}
		var rows []liquidationRow
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return 0
		}
		total := 0
		for _, row := range rows {
			if row.InstID == "" {
				continue
			}
			for _, d := range row.Details {
				side, ok := mapSide(d.Side)
				if !ok {
					continue
				}
				qty, ok1 := parseDecimal(d.Sz)
				price, ok2 := parseDecimal(d.Bkpx)
				if !ok1 || !ok2 {
					continue
				}
				total += publishFrame(publish, &domain.LiquidationOrder{
					Symbol:   row.InstID,
					Side:     side,
					Quantity: qty,
					AvgPrice: price,
					Ts:       parseMillis(d.Ts),
				})
			}
		}
		return total
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
		var rows []booksRow
		if err := json.Unmarshal(env.Data, &rows); err != nil || len(rows) == 0 {
			return 0
		}
		ts := parseMillis(rows[0].Ts)
		if ts == 0 {
			return 0
		}
		return publishFrame(publish, &domain.Signal{Source: source, Ts: ts})
	}
}
