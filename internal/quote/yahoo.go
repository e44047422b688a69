package quote

import (
	"context"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	fquote "github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/AnalystCouncil/models"
)

// QuoteGetter fetches a Yahoo Finance quote; a nil quote with nil error means unknown symbol.
type QuoteGetter func(symbol string) (*finance.Quote, error)

// Yahoo reads snapshots from Yahoo Finance through finance-go.
type Yahoo struct {
	get   QuoteGetter
	cache *Cache
	retry RetryConfig
}

type YahooOption func(*Yahoo)

func WithQuoteGetter(get QuoteGetter) YahooOption {
	return func(y *Yahoo) {
		if get != nil {
			y.get = get
		}
	}
}

func WithCache(c *Cache) YahooOption {
	return func(y *Yahoo) { y.cache = c }
}

func WithRetryConfig(cfg RetryConfig) YahooOption {
	return func(y *Yahoo) { y.retry = cfg }
}

func NewYahoo(opts ...YahooOption) *Yahoo {
	y := &Yahoo{
		get:   fquote.Get,
		retry: DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

func (y *Yahoo) Snapshot(ctx context.Context, subject string) (*models.QuoteSnapshot, error) {
	if err := ValidateSymbol(subject); err != nil {
		return nil, err
	}
	symbol := NormalizeSymbol(subject)

	var cached models.QuoteSnapshot
	if y.cache.Get("yahoo", "quote", symbol, &cached) {
		return &cached, nil
	}

	snapshot, err := withRetry(ctx, y.retry, func() (*models.QuoteSnapshot, error) {
		q, err := y.get(symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
		}
		if q == nil || q.RegularMarketPrice == 0 {
			return nil, fmt.Errorf("%w: no yahoo quote for %s", ErrUnavailable, symbol)
		}
		return yahooSnapshot(symbol, q), nil
	})
	if err != nil {
		return nil, err
	}

	_ = y.cache.Set("yahoo", "quote", symbol, snapshot)
	return snapshot, nil
}

func yahooSnapshot(symbol string, q *finance.Quote) *models.QuoteSnapshot {
	ts := time.Now()
	if q.RegularMarketTime > 0 {
		ts = time.Unix(int64(q.RegularMarketTime), 0)
	}
	name := q.ShortName
	if name == "" {
		name = symbol
	}
	return &models.QuoteSnapshot{
		Symbol:        symbol,
		Name:          name,
		Exchange:      q.FullExchangeName,
		Currency:      q.CurrencyID,
		LastPrice:     decimal.NewFromFloat(q.RegularMarketPrice),
		PreviousClose: decimal.NewFromFloat(q.RegularMarketPreviousClose),
		DayHigh:       decimal.NewFromFloat(q.RegularMarketDayHigh),
		DayLow:        decimal.NewFromFloat(q.RegularMarketDayLow),
		Volume:        int64(q.RegularMarketVolume),
		Source:        "yahoo",
		Timestamp:     ts,
	}
}
