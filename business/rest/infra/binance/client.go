package binance

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cryptoproxy/mktproxy/internal/apperror"
	"github.com/cryptoproxy/mktproxy/internal/httpclient"
)

const (
	defaultMaxCallTimeout     = 1000 * time.Millisecond
	defaultMaxAttempts        = 2
	defaultInterAttemptSleep  = 100 * time.Millisecond
	defaultPoolMaxIdlePerHost = 100
	defaultExchangeInfoPath   = "/fapi/v1/exchangeInfo"
)

// Config tunes the per-call timeout, retry and connection-pool behavior
// of a Client. A zero Config value falls back to the defaults above.
type Config struct {
	PerCallTimeoutMax  time.Duration
	MaxAttempts        int
	InterAttemptSleep  time.Duration
	PoolMaxIdlePerHost int
	ExchangeInfoPath   string
}

func (cfg Config) withDefaults() Config {
	if cfg.PerCallTimeoutMax <= 0 {
		cfg.PerCallTimeoutMax = defaultMaxCallTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InterAttemptSleep <= 0 {
		cfg.InterAttemptSleep = defaultInterAttemptSleep
	}
	if cfg.PoolMaxIdlePerHost <= 0 {
		cfg.PoolMaxIdlePerHost = defaultPoolMaxIdlePerHost
	}
	if cfg.ExchangeInfoPath == "" {
		cfg.ExchangeInfoPath = defaultExchangeInfoPath
	}
	return cfg
}

// Client wraps the futures REST base URL with the instrumented HTTP
// client, owning its own connection pool sized for the per-tick fan-out
// (pool_max_idle_per_host ~= 100).
type Client struct {
	futuresBaseURL string
	http           httpclient.Client
	cfg            Config
}

// NewClient builds a REST client bound to futuresBaseURL.
func NewClient(futuresBaseURL string, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			KeepAlive: 10 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost: cfg.PoolMaxIdlePerHost,
		MaxConnsPerHost:     cfg.PoolMaxIdlePerHost,
		IdleConnTimeout:     2 * time.Minute,
	}
	c, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("binance-rest"),
		httpclient.WithBaseURL(futuresBaseURL),
		httpclient.WithRoundTripper(transport),
		httpclient.WithRequestTimeout(cfg.PerCallTimeoutMax),
	)
	if err != nil {
		return nil, err
	}
	return &Client{futuresBaseURL: futuresBaseURL, http: c, cfg: cfg}, nil
}

// withAttempts retries fn up to cfg.MaxAttempts times with
// cfg.InterAttemptSleep between tries, bounding each attempt
// independently by cfg.PerCallTimeoutMax.
func (c *Client) withAttempts(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.PerCallTimeoutMax)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < c.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.InterAttemptSleep):
			}
		}
	}
	return lastErr
}

// PremiumIndexRecord is one decoded premiumIndexKlines row.
type PremiumIndexRecord struct {
	OpenTime int64
	Open, High, Low, Close float64
}

// FetchPremiumIndexKlines fetches the last two 1-minute premium index
// kline bars for symbol.
func (c *Client) FetchPremiumIndexKlines(ctx context.Context, symbol string) ([]PremiumIndexRecord, error) {
	var rows []premiumIndexKlineRow
	err := c.withAttempts(ctx, func(ctx context.Context) error {
		resp, err := c.http.NewRequest().
			SetQueryParam("symbol", symbol).
			SetQueryParam("interval", "1m").
			SetQueryParam("limit", "2").
			SetResult(&rows).
			Get(ctx, "/fapi/v1/premiumIndexKlines")
		if err != nil {
			return apperror.New(apperror.CodeRestRequestFailed, apperror.WithCause(err))
		}
		if resp.IsError() {
			return apperror.New(apperror.CodeRestBadResponse,
				apperror.WithContext(fmt.Sprintf("status=%d body=%s", resp.StatusCode, resp.String())))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]PremiumIndexRecord, 0, len(rows))
	for _, row := range rows {
		rec, ok := decodePremiumIndexRow(row)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodePremiumIndexRow(row premiumIndexKlineRow) (PremiumIndexRecord, bool) {
	if len(row) < 5 {
		return PremiumIndexRecord{}, false
	}
	openTime, ok := asInt64(row[0])
	if !ok {
		return PremiumIndexRecord{}, false
	}
	open, ok1 := asFloat(row[1])
	high, ok2 := asFloat(row[2])
	low, ok3 := asFloat(row[3])
	closeP, ok4 := asFloat(row[4])
	if !(ok1 && ok2 && ok3 && ok4) {
		return PremiumIndexRecord{}, false
	}
	return PremiumIndexRecord{OpenTime: openTime, Open: open, High: high, Low: low, Close: closeP}, true
}

func asInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	default:
		return 0, false
	}
}

func asFloat(v interface{}) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		if f, ok := v.(float64); ok {
			return f, true
		}
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// OpenInterestRecord is the decoded openInterest response.
type OpenInterestRecord struct {
	OpenInterest float64
	Timestamp    int64
}

// FetchOpenInterest fetches the current open interest for symbol.
func (c *Client) FetchOpenInterest(ctx context.Context, symbol string) (OpenInterestRecord, error) {
	var resp openInterestResponse
	err := c.withAttempts(ctx, func(ctx context.Context) error {
		r, err := c.http.NewRequest().
			SetQueryParam("symbol", symbol).
			SetResult(&resp).
			Get(ctx, "/fapi/v1/openInterest")
		if err != nil {
			return apperror.New(apperror.CodeRestRequestFailed, apperror.WithCause(err))
		}
		if r.IsError() {
			return apperror.New(apperror.CodeRestBadResponse,
				apperror.WithContext(fmt.Sprintf("status=%d body=%s", r.StatusCode, r.String())))
		}
		return nil
	})
	if err != nil {
		return OpenInterestRecord{}, err
	}
	oi, ok := asFloat(resp.OpenInterest)
	if !ok {
		return OpenInterestRecord{}, apperror.New(apperror.CodeParseBadNumber)
	}
	return OpenInterestRecord{OpenInterest: oi, Timestamp: resp.Time}, nil
}

// FetchTradableSymbols fetches exchangeInfo and returns the symbols with
// quoteAsset=USDT, status=TRADING, contractType=PERPETUAL.
func (c *Client) FetchTradableSymbols(ctx context.Context) ([]string, error) {
	var resp exchangeInfoResponse
	err := c.withAttempts(ctx, func(ctx context.Context) error {
		r, err := c.http.NewRequest().
			SetResult(&resp).
			Get(ctx, c.cfg.ExchangeInfoPath)
		if err != nil {
			return apperror.New(apperror.CodeRestRequestFailed, apperror.WithCause(err))
		}
		if r.IsError() {
			return apperror.New(apperror.CodeRestBadResponse,
				apperror.WithContext(fmt.Sprintf("status=%d", r.StatusCode)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		if s.QuoteAsset == "USDT" && s.Status == "TRADING" && s.ContractType == "PERPETUAL" {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

// RatioRecord is the decoded form shared by the three 5-minute ratio
// endpoints plus openInterestHist, normalized to one shape.
type RatioRecord struct {
	Symbol         string
	PrimaryValue   float64 // longAccount or longPosition
	SecondaryValue float64 // shortAccount or shortPosition
	Ratio          float64
	OpenInterest   float64
	HasOpenInterest bool
	Timestamp      int64
}

func (c *Client) fetchRatio(ctx context.Context, path, symbol string) ([]RatioRecord, error) {
	var rows []accountRatioRow
	err := c.withAttempts(ctx, func(ctx context.Context) error {
		r, err := c.http.NewRequest().
			SetQueryParam("symbol", symbol).
			SetQueryParam("period", "5m").
			SetQueryParam("limit", "2").
			SetResult(&rows).
			Get(ctx, path)
		if err != nil {
			return apperror.New(apperror.CodeRestRequestFailed, apperror.WithCause(err))
		}
		if r.IsError() {
			return apperror.New(apperror.CodeRestBadResponse,
				apperror.WithContext(fmt.Sprintf("status=%d", r.StatusCode)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]RatioRecord, 0, len(rows))
	for _, row := range rows {
		primary, ok1 := asFloat(row.LongAccount)
		secondary, ok2 := asFloat(row.ShortAccount)
		ratio, ok3 := asFloat(row.LongShortRatio)
		if !(ok1 && ok2 && ok3) {
			continue
		}
		out = append(out, RatioRecord{
			Symbol: row.Symbol, PrimaryValue: primary, SecondaryValue: secondary,
			Ratio: ratio, Timestamp: row.Timestamp,
		})
	}
	return out, nil
}

// FetchTopLongShortAccountRatio fetches topLongShortAccountRatio.
func (c *Client) FetchTopLongShortAccountRatio(ctx context.Context, symbol string) ([]RatioRecord, error) {
	return c.fetchRatio(ctx, "/futures/data/topLongShortAccountRatio", symbol)
}

// FetchGlobalLongShortAccountRatio fetches globalLongShortAccountRatio.
func (c *Client) FetchGlobalLongShortAccountRatio(ctx context.Context, symbol string) ([]RatioRecord, error) {
	return c.fetchRatio(ctx, "/futures/data/globalLongShortAccountRatio", symbol)
}

// FetchTopLongShortPositionRatio fetches topLongShortPositionRatio. The
// response uses longPosition/shortPosition keys instead of
// longAccount/shortAccount, decoded with a distinct row shape.
func (c *Client) FetchTopLongShortPositionRatio(ctx context.Context, symbol string) ([]RatioRecord, error) {
	var rows []positionRatioRow
	err := c.withAttempts(ctx, func(ctx context.Context) error {
		r, err := c.http.NewRequest().
			SetQueryParam("symbol", symbol).
			SetQueryParam("period", "5m").
			SetQueryParam("limit", "2").
			SetResult(&rows).
			Get(ctx, "/futures/data/topLongShortPositionRatio")
		if err != nil {
			return apperror.New(apperror.CodeRestRequestFailed, apperror.WithCause(err))
		}
		if r.IsError() {
			return apperror.New(apperror.CodeRestBadResponse,
				apperror.WithContext(fmt.Sprintf("status=%d", r.StatusCode)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]RatioRecord, 0, len(rows))
	for _, row := range rows {
		primary, ok1 := asFloat(row.LongPosition)
		secondary, ok2 := asFloat(row.ShortPosition)
		ratio, ok3 := asFloat(row.LongShortRatio)
		if !(ok1 && ok2 && ok3) {
			continue
		}
		out = append(out, RatioRecord{
			Symbol: row.Symbol, PrimaryValue: primary, SecondaryValue: secondary,
			Ratio: ratio, Timestamp: row.Timestamp,
		})
	}
	return out, nil
}

// FetchOpenInterestHist fetches openInterestHist, used to optionally
// augment a TopLongShortRatio frame with open_interest data.
func (c *Client) FetchOpenInterestHist(ctx context.Context, symbol string) ([]RatioRecord, error) {
	var rows []openInterestHistRow
	err := c.withAttempts(ctx, func(ctx context.Context) error {
		r, err := c.http.NewRequest().
			SetQueryParam("symbol", symbol).
			SetQueryParam("period", "5m").
			SetQueryParam("limit", "2").
			SetResult(&rows).
			Get(ctx, "/futures/data/openInterestHist")
		if err != nil {
			return apperror.New(apperror.CodeRestRequestFailed, apperror.WithCause(err))
		}
		if r.IsError() {
			return apperror.New(apperror.CodeRestBadResponse,
				apperror.WithContext(fmt.Sprintf("status=%d", r.StatusCode)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]RatioRecord, 0, len(rows))
	for _, row := range rows {
		oi, ok := asFloat(row.SumOpenInterest)
		if !ok {
			continue
		}
		out = append(out, RatioRecord{
			Symbol: row.Symbol, OpenInterest: oi, HasOpenInterest: true, Timestamp: row.Timestamp,
		})
	}
	return out, nil
}

// FetchAvailableInventory issues the Ed25519-signed SAPI available
// inventory call, used alongside the borrow-repay call to build the
// merged account-status snapshot.
func (c *Client) FetchAvailableInventory(ctx context.Context, signer *SAPISigner) (map[string]float64, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	const recvWindow = "5000"
	query := fmt.Sprintf("type=MARGIN&timestamp=%s&recvWindow=%s", timestamp, recvWindow)

	signature, err := signer.Sign(query)
	if err != nil {
		return nil, apperror.New(apperror.CodeAuthSignFailed, apperror.WithCause(err))
	}

	var resp availableInventoryResponse
	err = c.withAttempts(ctx, func(ctx context.Context) error {
		r, err := c.http.NewRequest().
			SetHeader("X-MBX-APIKEY", signer.APIKey()).
			SetQueryParam("type", "MARGIN").
			SetQueryParam("timestamp", timestamp).
			SetQueryParam("recvWindow", recvWindow).
			SetQueryParam("signature", signature).
			SetResult(&resp).
			Get(ctx, "/sapi/v1/margin/available-inventory")
		if err != nil {
			return apperror.New(apperror.CodeRestRequestFailed, apperror.WithCause(err))
		}
		if r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden {
			return apperror.New(apperror.CodeAuthRejected,
				apperror.WithContext(fmt.Sprintf("status=%d", r.StatusCode)))
		}
		if r.IsError() {
			return apperror.New(apperror.CodeRestBadResponse,
				apperror.WithContext(fmt.Sprintf("status=%d", r.StatusCode)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(resp.Assets))
	for asset, qty := range resp.Assets {
		f, ok := asFloat(qty)
		if !ok {
			continue
		}
		out[asset] = f
	}
	return out, nil
}

// FetchBorrowRepay issues the Ed25519-signed SAPI borrow-repay history
// call, used alongside available-inventory to build the merged
// account-status snapshot: outstanding principal per margin asset.
func (c *Client) FetchBorrowRepay(ctx context.Context, signer *SAPISigner) (map[string]float64, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	const recvWindow = "5000"
	query := fmt.Sprintf("type=BORROW&timestamp=%s&recvWindow=%s", timestamp, recvWindow)

	signature, err := signer.Sign(query)
	if err != nil {
		return nil, apperror.New(apperror.CodeAuthSignFailed, apperror.WithCause(err))
	}

	var resp borrowRepayResponse
	err = c.withAttempts(ctx, func(ctx context.Context) error {
		r, err := c.http.NewRequest().
			SetHeader("X-MBX-APIKEY", signer.APIKey()).
			SetQueryParam("type", "BORROW").
			SetQueryParam("timestamp", timestamp).
			SetQueryParam("recvWindow", recvWindow).
			SetQueryParam("signature", signature).
			SetResult(&resp).
			Get(ctx, "/sapi/v1/margin/borrow-repay")
		if err != nil {
			return apperror.New(apperror.CodeRestRequestFailed, apperror.WithCause(err))
		}
		if r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden {
			return apperror.New(apperror.CodeAuthRejected,
				apperror.WithContext(fmt.Sprintf("status=%d", r.StatusCode)))
		}
		if r.IsError() {
			return apperror.New(apperror.CodeRestBadResponse,
				apperror.WithContext(fmt.Sprintf("status=%d", r.StatusCode)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(resp.Rows))
	for _, row := range resp.Rows {
		f, ok := asFloat(row.Principal)
		if !ok {
			continue
		}
		out[row.Asset] += f
	}
	return out, nil
}
