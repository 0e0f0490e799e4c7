// Package app implements the RestFetcher: a wall-clock-aligned batch
// poller that turns Binance futures REST endpoints into the same
// NormalizedFrame vocabulary the WebSocket parsers emit.
package app

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mdapp "github.com/cryptoproxy/mktproxy/business/marketdata/app"
	"github.com/cryptoproxy/mktproxy/business/marketdata/domain"
	restbinance "github.com/cryptoproxy/mktproxy/business/rest/infra/binance"
	"github.com/cryptoproxy/mktproxy/internal/circuitbreaker"
	"github.com/cryptoproxy/mktproxy/internal/logger"
	"github.com/cryptoproxy/mktproxy/internal/ratelimit"
	"github.com/cryptoproxy/mktproxy/internal/symbolset"
)

const (
	defaultRequestDelay     = 1 * time.Second
	defaultRatioFanoutDelay = 180 * time.Second
)

// Fetcher owns the wall-clock scheduling loop described for the futures
// derivative metrics: a 1-minute pass for premium index + open interest,
// and (every 5 minutes) a SymbolSet refresh followed by a 180s-delayed
// ratio fan-out.
type Fetcher struct {
	client             *restbinance.Client
	signer             *restbinance.SAPISigner
	bus                *mdapp.Bus
	symbols            *symbolset.Handoff
	limiter            *ratelimit.Limiter
	log                logger.LoggerInterface
	inventoryBreaker   *circuitbreaker.CircuitBreaker[map[string]float64]
	borrowRepayBreaker *circuitbreaker.CircuitBreaker[map[string]float64]

	requestDelay time.Duration
	ratioDelay   time.Duration

	sapiMu          sync.Mutex
	cachedInventory map[string]float64
	cachedBorrow    map[string]float64

	lastTickAt atomic.Int64
	lastTickOK atomic.Bool
}

// LastTick reports when the most recent 1-minute pass finished and
// whether every symbol in it succeeded, for the process health server's
// RestFetcher check. Zero time means no pass has completed yet.
func (f *Fetcher) LastTick() (at time.Time, ok bool) {
	ms := f.lastTickAt.Load()
	if ms == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), f.lastTickOK.Load()
}

// Config configures a Fetcher. RatioDelay defaults to 180s and
// RequestDelay to 1s but both are parameterized so an operator can
// retune them without a code change.
type Config struct {
	RequestDelay time.Duration
	RatioDelay   time.Duration
}

// New builds a Fetcher. signer may be nil, in which case the
// available-inventory SAPI call is skipped entirely.
func New(client *restbinance.Client, signer *restbinance.SAPISigner, bus *mdapp.Bus, symbols *symbolset.Handoff, limiter *ratelimit.Limiter, log logger.LoggerInterface, cfg Config) *Fetcher {
	ratioDelay := cfg.RatioDelay
	if ratioDelay <= 0 {
		ratioDelay = defaultRatioFanoutDelay
	}
	requestDelay := cfg.RequestDelay
	if requestDelay <= 0 {
		requestDelay = defaultRequestDelay
	}
	return &Fetcher{
		client:             client,
		signer:             signer,
		bus:                bus,
		symbols:            symbols,
		limiter:            limiter,
		log:                log,
		inventoryBreaker:   circuitbreaker.New[map[string]float64](circuitbreaker.DefaultConfig("rest.sapi.available_inventory")),
		borrowRepayBreaker: circuitbreaker.New[map[string]float64](circuitbreaker.DefaultConfig("rest.sapi.borrow_repay")),
		requestDelay:       requestDelay,
		ratioDelay:         ratioDelay,
	}
}

func (f *Fetcher) publish(frame domain.Frame) {
	buf, err := domain.Encode(frame)
	if err != nil {
		return
	}
	f.bus.Publish(buf)
}

// Run executes the scheduling loop until ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context) {
	for {
		closeTime, err := sleepUntilNextMinuteBoundary(ctx)
		if err != nil {
			return
		}

		if isFiveMinuteBoundary(closeTime) {
			f.refreshSymbolSet(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.requestDelay):
		}

		_, failed := f.runOneMinutePass(ctx, closeTime)
		f.lastTickAt.Store(closeTime)
		f.lastTickOK.Store(failed == 0)

		if isFiveMinuteBoundary(closeTime) {
			go f.runRatioFanoutAfterDelay(ctx, closeTime)
		}

		f.maybeFetchSAPIStatus(ctx, closeTime)
	}
}

func sleepUntilNextMinuteBoundary(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	next := now.Truncate(time.Minute).Add(time.Minute)
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(time.Until(next)):
		return next.UnixMilli(), nil
	}
}

func isFiveMinuteBoundary(closeTimeMs int64) bool {
	return (closeTimeMs/1000/60)%5 == 0
}

func (f *Fetcher) refreshSymbolSet(ctx context.Context) {
	symbols, err := f.client.FetchTradableSymbols(ctx)
	if err != nil {
		f.log.Warn(ctx, "exchangeInfo refresh failed, keeping previous SymbolSet", "error", err)
		return
	}
	f.symbols.Store(symbolset.New(symbols))
	f.log.Info(ctx, "symbol set refreshed", "count", len(symbols))
}

// runOneMinutePass fetches premiumIndexKlines + openInterest for every
// symbol in the current SymbolSet, concurrently, joined by a barrier with
// per-task timeouts independent of that barrier. Exactly one
// RestSummary1m frame is emitted carrying closeTime regardless of how
// many per-symbol fetches succeeded.
func (f *Fetcher) runOneMinutePass(ctx context.Context, closeTime int64) (okCount, failedCount uint32) {
	symbols := f.symbols.Load().Symbols()

	var mu sync.Mutex
	var ok, failed uint32
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			if f.limiter != nil {
				if err := f.limiter.Wait(ctx); err != nil {
					return
				}
			}
			success := f.fetchOneSymbol(ctx, symbol, closeTime)
			mu.Lock()
			if success {
				ok++
			} else {
				failed++
			}
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	f.publish(&domain.RestSummary1m{CloseTime: closeTime, SymbolsOK: ok, SymbolsFailed: failed})
	f.log.Info(ctx, "1m rest pass complete", "close_time", closeTime, "ok", ok, "failed", failed)
	return ok, failed
}

func (f *Fetcher) fetchOneSymbol(ctx context.Context, symbol string, closeTime int64) bool {
	var wg sync.WaitGroup
	var klines []restbinance.PremiumIndexRecord
	var klinesErr error
	var oi restbinance.OpenInterestRecord
	var oiErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		klines, klinesErr = f.client.FetchPremiumIndexKlines(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		oi, oiErr = f.client.FetchOpenInterest(ctx, symbol)
	}()
	wg.Wait()

	if klinesErr != nil || oiErr != nil || len(klines) == 0 {
		return false
	}

	rec, ok := matchPremiumIndexRecord(klines, closeTime)
	if !ok {
		return false
	}

	f.publish(&domain.PremiumIndexKline{
		Symbol:       symbol,
		Open:         rec.Open,
		High:         rec.High,
		Low:          rec.Low,
		Close:        rec.Close,
		OpenInterest: oi.OpenInterest,
		OiTimestamp:  oi.Timestamp,
		CloseTime:    closeTime,
	})
	return true
}

// matchPremiumIndexRecord finds the record with expected open_time =
// close_time - 60000. Prefers the exact match; if two records are
// returned and neither matches exactly, falls back to the latest record.
func matchPremiumIndexRecord(records []restbinance.PremiumIndexRecord, closeTime int64) (restbinance.PremiumIndexRecord, bool) {
	expected := closeTime - 60_000
	var latest restbinance.PremiumIndexRecord
	haveLatest := false
	for _, rec := range records {
		if rec.OpenTime == expected {
			return rec, true
		}
		if !haveLatest || rec.OpenTime > latest.OpenTime {
			latest = rec
			haveLatest = true
		}
	}
	return latest, haveLatest
}

func (f *Fetcher) runRatioFanoutAfterDelay(ctx context.Context, closeTime int64) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(f.ratioDelay):
	}
	f.runRatioFanout(ctx, closeTime)
}

// runRatioFanout issues the four 5-minute ratio endpoint fetches
// concurrently for every symbol, matching by timestamp in
// {closeTime, closeTime+1} and composing one TopLongShortRatio frame per
// symbol where account, position and global data are all present.
func (f *Fetcher) runRatioFanout(ctx context.Context, closeTime int64) {
	symbols := f.symbols.Load().Symbols()

	var mu sync.Mutex
	var ok, failed uint32
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			success := f.fetchOneRatio(ctx, symbol, closeTime)
			mu.Lock()
			if success {
				ok++
			} else {
				failed++
			}
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	f.publish(&domain.RestSummary5m{CloseTime: closeTime, RatiosOK: ok, RatiosFailed: failed})
	f.log.Info(ctx, "5m ratio fanout complete", "close_time", closeTime, "ok", ok, "failed", failed)
}

func (f *Fetcher) fetchOneRatio(ctx context.Context, symbol string, closeTime int64) bool {
	var wg sync.WaitGroup
	var account, position, global, oiHist []restbinance.RatioRecord

	wg.Add(4)
	go func() { defer wg.Done(); account, _ = f.client.FetchTopLongShortAccountRatio(ctx, symbol) }()
	go func() { defer wg.Done(); position, _ = f.client.FetchTopLongShortPositionRatio(ctx, symbol) }()
	go func() { defer wg.Done(); global, _ = f.client.FetchGlobalLongShortAccountRatio(ctx, symbol) }()
	go func() { defer wg.Done(); oiHist, _ = f.client.FetchOpenInterestHist(ctx, symbol) }()
	wg.Wait()

	acctRec, ok1 := matchByTimestamp(account, closeTime)
	posRec, ok2 := matchByTimestamp(position, closeTime)
	globalRec, ok3 := matchByTimestamp(global, closeTime)
	if !ok1 || !ok2 || !ok3 {
		return false
	}

	frame := &domain.TopLongShortRatio{
		Symbol:        symbol,
		LongAccount:   acctRec.PrimaryValue,
		ShortAccount:  acctRec.SecondaryValue,
		LongPosition:  posRec.PrimaryValue,
		ShortPosition: posRec.SecondaryValue,
		GlobalRatio:   globalRec.Ratio,
		Ts:            closeTime,
	}
	if oiRec, ok := matchByTimestamp(oiHist, closeTime); ok {
		frame.HasOpenInterest = true
		frame.OpenInterest = oiRec.OpenInterest
	}

	f.publish(frame)
	return true
}

func matchByTimestamp(records []restbinance.RatioRecord, closeTime int64) (restbinance.RatioRecord, bool) {
	for _, rec := range records {
		if rec.Timestamp == closeTime || rec.Timestamp == closeTime+1 {
			return rec, true
		}
	}
	return restbinance.RatioRecord{}, false
}

// maybeFetchSAPIStatus issues the authenticated available-inventory call
// alongside the borrow-repay call, once per minute, each circuit-broken
// so a run of auth failures doesn't keep retrying every tick. A
// successful result replaces that side's cached snapshot; a failed side
// falls back to whatever was last cached. The merged snapshot (by
// asset) is composed into one BinanceMktStatus frame and published,
// regardless of which side (if either) refreshed this tick.
func (f *Fetcher) maybeFetchSAPIStatus(ctx context.Context, closeTime int64) {
	if f.signer == nil {
		return
	}

	inventory, err := f.inventoryBreaker.Execute(func() (map[string]float64, error) {
		return f.client.FetchAvailableInventory(ctx, f.signer)
	})
	if err != nil {
		f.log.Warn(ctx, "available-inventory fetch failed, using cached snapshot", "error", err)
	}

	borrow, err := f.borrowRepayBreaker.Execute(func() (map[string]float64, error) {
		return f.client.FetchBorrowRepay(ctx, f.signer)
	})
	if err != nil {
		f.log.Warn(ctx, "borrow-repay fetch failed, using cached snapshot", "error", err)
	}

	f.sapiMu.Lock()
	if inventory != nil {
		f.cachedInventory = inventory
	}
	if borrow != nil {
		f.cachedBorrow = borrow
	}
	inventorySnapshot, borrowSnapshot := f.cachedInventory, f.cachedBorrow
	f.sapiMu.Unlock()

	if inventorySnapshot == nil && borrowSnapshot == nil {
		return
	}

	byAsset := make(map[string]*domain.AssetStatus, len(inventorySnapshot))
	for asset, qty := range inventorySnapshot {
		byAsset[asset] = &domain.AssetStatus{Asset: asset, Available: qty}
	}
	for asset, qty := range borrowSnapshot {
		a, ok := byAsset[asset]
		if !ok {
			a = &domain.AssetStatus{Asset: asset}
			byAsset[asset] = a
		}
		a.Borrowed = qty
	}

	assets := make([]domain.AssetStatus, 0, len(byAsset))
	for _, a := range byAsset {
		assets = append(assets, *a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Asset < assets[j].Asset })

	f.publish(&domain.BinanceMktStatus{Ts: closeTime, Assets: assets})
}
