package binance

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/cryptoproxy/mktproxy/business/marketdata/app"
	"github.com/cryptoproxy/mktproxy/business/marketdata/domain"
	"github.com/cryptoproxy/mktproxy/internal/symbolset"
)

// SignalSourceTag selects which wire constant a Signal parser stamps onto
// its emitted frames — bound once per ConnectionDescriptor at wiring time.
type SignalSourceTag = domain.SignalSource

const (
	SignalSourceIPC = domain.SignalSourceIPC
	SignalSourceTCP = domain.SignalSourceTCP
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

// NewTradeParser builds the Trade stream parser. Side mapping:
// buyer-is-maker → sell-initiated ('S'); else buy-initiated ('B'). Rows
// with non-positive price or quantity are dropped.
func NewTradeParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var ev tradeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return 0
		}
		if ev.Symbol == "" || ev.TradeTime == 0 {
			return 0
		}
		price, ok := parseDecimal(ev.Price)
		if !ok || price <= 0 {
			return 0
		}
		qty, ok := parseDecimal(ev.Quantity)
		if !ok || qty <= 0 {
			return 0
		}
		side := domain.SideBuy
		if ev.BuyerMaker {
			side = domain.SideSell
		}
		frame := &domain.Trade{
			Symbol: ev.Symbol,
			ID:     ev.TradeID,
			Ts:     ev.TradeTime,
			Side:   side,
			Price:  price,
			Amount: qty,
		}
		return publishFrame(publish, frame)
	}
}

// NewDepthDiffParser builds the depthUpdate parser. futures selects
// whether "pu" (previous final update id) is mandatory. A futures parse
// emits two frames, BinanceIncSeqNo then OrderBookInc; a spot parse emits
// the OrderBookInc only.
func NewDepthDiffParser(futures bool) app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var ev depthUpdateEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return 0
		}
		if ev.Symbol == "" {
			return 0
		}
		if futures && ev.PrevFinalUpdateID == nil {
			return 0
		}
		ts := ev.EventTime
		if ev.EventTimeFutures != 0 {
			ts = ev.EventTimeFutures
		}

		bids, ok := parseLevels(ev.Bids)
		if !ok {
			return 0
		}
		asks, ok := parseLevels(ev.Asks)
		if !ok {
			return 0
		}

		n := 0
		if futures {
			n += publishFrame(publish, &domain.BinanceIncSeqNo{
				Symbol:      ev.Symbol,
				PrevFinal:   *ev.PrevFinalUpdateID,
				FinalUpdate: ev.FinalUpdateID,
				FirstUpdate: ev.FirstUpdateID,
				Ts:          ts,
			})
		}
		n += publishFrame(publish, &domain.OrderBookInc{
			Symbol:       ev.Symbol,
			FirstUpdate:  ev.FirstUpdateID,
			FinalUpdate:  ev.FinalUpdateID,
			Ts:           ts,
			IsSnapshot:   false,
			Bids:         bids,
			Asks:         asks,
		})
		return n
	}
}

// NewSnapshotParser builds the REST-sourced full-book parser. Emits one
// OrderBookInc with is_snapshot=true, first_update_id = final_update_id =
// lastUpdateId+1, timestamp=0.
func NewSnapshotParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var ev snapshotEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return 0
		}
		if ev.Symbol == "" {
			return 0
		}
		bids, ok := parseLevels(ev.Bids)
		if !ok {
			return 0
		}
		asks, ok := parseLevels(ev.Asks)
		if !ok {
			return 0
		}
		updateID := ev.LastUpdateID + 1
		return publishFrame(publish, &domain.OrderBookInc{
			Symbol:      ev.Symbol,
			FirstUpdate: updateID,
			FinalUpdate: updateID,
			Ts:          0,
			IsSnapshot:  true,
			Bids:        bids,
			Asks:        asks,
		})
	}
}

// NewKlineParser builds the kline stream parser. Emits a Kline frame
// whether or not the bar is closed; the closed flag is informational
// only and not carried into the wire frame.
func NewKlineParser() app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var ev klineEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return 0
		}
		if ev.Symbol == "" {
			return 0
		}
		open, ok1 := parseDecimal(ev.Kline.Open)
		high, ok2 := parseDecimal(ev.Kline.High)
		low, ok3 := parseDecimal(ev.Kline.Low)
		closeP, ok4 := parseDecimal(ev.Kline.Close)
		vol, ok5 := parseDecimal(ev.Kline.Volume)
		turn, ok6 := parseDecimal(ev.Kline.Turnover)
		takerVol, ok7 := parseDecimal(ev.Kline.TakerBuyVol)
		takerQuote, ok8 := parseDecimal(ev.Kline.TakerBuyQuote)
		if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8) {
			return 0
		}
		return publishFrame(publish, &domain.Kline{
			Symbol:           ev.Symbol,
			Open:             open,
			High:             high,
			Low:              low,
			Close:            closeP,
			Volume:           vol,
			Turnover:         turn,
			Ts:               ev.Kline.OpenTime,
			TradeNum:         ev.Kline.TradeCount,
			TakerBuyVol:      takerVol,
			TakerBuyQuoteVol: takerQuote,
		})
	}
}

// NewDerivativesMetricParser builds the parser that accepts a single
// mark-price update, a mark-price array, or a liquidation event. symbols
// gates mark-price emissions against the current SymbolSet
// (case-insensitive); forceOrder events are not filtered.
func NewDerivativesMetricParser(symbols *symbolset.Handoff) app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		trimmed := jsonFirstNonSpace(raw)
		if trimmed == '[' {
			var evs []markPriceEvent
			if err := json.Unmarshal(raw, &evs); err != nil {
				return 0
			}
			total := 0
			for i := range evs {
				total += emitMarkPrice(&evs[i], symbols, publish)
			}
			return total
		}

		switch sniffEventType(raw) {
		case "markPriceUpdate":
			var ev markPriceEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return 0
			}
			return emitMarkPrice(&ev, symbols, publish)
		case "forceOrder":
			var ev forceOrderEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return 0
			}
			return emitLiquidation(&ev, publish)
		default:
			return 0
		}
	}
}

func emitMarkPrice(ev *markPriceEvent, symbols *symbolset.Handoff, publish app.PublishFunc) int {
	if ev.Symbol == "" {
		return 0
	}
	if set := symbols.Load(); set != nil && set.Len() > 0 && !set.Contains(ev.Symbol) {
		return 0
	}
	mark, ok1 := parseDecimal(ev.MarkPrice)
	index, ok2 := parseDecimal(ev.IndexPrice)
	rate, ok3 := parseDecimal(ev.FundingRate)
	if !(ok1 && ok2 && ok3) {
		return 0
	}
	n := publishFrame(publish, &domain.MarkPrice{Symbol: ev.Symbol, Price: mark, Ts: ev.EventTime})
	n += publishFrame(publish, &domain.IndexPrice{Symbol: ev.Symbol, Price: index, Ts: ev.EventTime})
	n += publishFrame(publish, &domain.FundingRate{
		Symbol:          ev.Symbol,
		Rate:            rate,
		NextFundingTime: ev.NextFundingTime,
		Ts:              ev.EventTime,
	})
	return n
}

func emitLiquidation(ev *forceOrderEvent, publish app.PublishFunc) int {
	if ev.Order.Symbol == "" {
		return 0
	}
	var side domain.Side
	switch ev.Order.Side {
	case "BUY":
		side = domain.SideBuy
	case "SELL":
		side = domain.SideSell
	default:
		return 0
	}
	qty, ok1 := parseDecimal(ev.Order.Quantity)
	avgPrice, ok2 := parseDecimal(ev.Order.AvgPrice)
	if !(ok1 && ok2) {
		return 0
	}
	return publishFrame(publish, &domain.LiquidationOrder{
		Symbol:   ev.Order.Symbol,
		Side:     side,
		Quantity: qty,
		AvgPrice: avgPrice,
		Ts:       ev.Order.TradeTime,
	})
}

// NewSignalParser builds the Signal parser bound to source, used on
// designated depth channels to mark liveness independent of book state.
func NewSignalParser(source domain.SignalSource) app.ParserFunc {
	return func(raw []byte, publish app.PublishFunc) int {
		var ev signalEnvelope
		if err := json.Unmarshal(raw, &ev); err != nil {
			return 0
		}
		if ev.EventTime == 0 {
			return 0
		}
		return publishFrame(publish, &domain.Signal{Source: source, Ts: ev.EventTime})
	}
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

// NewDepthDiffParserWithSBE wraps NewDepthDiffParser with the SBE
// depth-diff decoder: a payload whose first non-whitespace byte isn't
// '{' or '[' is assumed to be the binary SBE variant some futures depth
// channels deliver instead of JSON.
func NewDepthDiffParserWithSBE(futures bool) app.ParserFunc {
	jsonParser := NewDepthDiffParser(futures)
	sbeParser := NewSbeDepthDiffParser()
	return func(raw []byte, publish app.PublishFunc) int {
		if isJSONPayload(raw) {
			return jsonParser(raw, publish)
		}
		return sbeParser(raw, publish)
	}
}

// NewTradeParserWithSBE wraps NewTradeParser with the SBE trade decoder,
// dispatching on the same leading-byte sniff as NewDepthDiffParserWithSBE.
func NewTradeParserWithSBE() app.ParserFunc {
	jsonParser := NewTradeParser()
	sbeParser := NewSbeTradeParser()
	return func(raw []byte, publish app.PublishFunc) int {
		if isJSONPayload(raw) {
			return jsonParser(raw, publish)
		}
		return sbeParser(raw, publish)
	}
}

func jsonFirstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}
