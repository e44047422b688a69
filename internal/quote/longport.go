package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	lpquote "github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/AnalystCouncil/models"
)

// longportQuotes is the part of *lpquote.QuoteContext the provider uses.
type longportQuotes interface {
	StaticInfo(ctx context.Context, symbols []string) ([]*lpquote.StaticInfo, error)
	Candlesticks(ctx context.Context, symbol string, period lpquote.Period, count int32, adjustType lpquote.AdjustType) ([]*lpquote.Candlestick, error)
}

// Longport reads snapshots from the Longport OpenAPI quote context.
type Longport struct {
	quotes longportQuotes
	close  func()
}

type LongportCredentials struct {
	AppKey      string
	AppSecret   string
	AccessToken string
}

func NewLongport(creds LongportCredentials) (*Longport, error) {
	if creds.AppKey == "" || creds.AppSecret == "" || creds.AccessToken == "" {
		return nil, errors.New("longport API credentials not configured")
	}
	conf, err := lpconfig.New(lpconfig.WithConfigKey(creds.AppKey, creds.AppSecret, creds.AccessToken))
	if err != nil {
		return nil, err
	}
	quoteContext, err := lpquote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}
	return &Longport{quotes: quoteContext, close: func() { _ = quoteContext.Close() }}, nil
}

func (l *Longport) Close() error {
	if l.close != nil {
		l.close()
	}
	return nil
}

// LongportSymbol adds the US market suffix to bare tickers.
func LongportSymbol(subject string) string {
	s := NormalizeSymbol(subject)
	if strings.Contains(s, ".") {
		return s
	}
	return s + ".US"
}

func (l *Longport) Snapshot(ctx context.Context, subject string) (*models.QuoteSnapshot, error) {
	if err := ValidateSymbol(subject); err != nil {
		return nil, err
	}
	symbol := LongportSymbol(subject)

	infos, err := l.quotes.StaticInfo(ctx, []string{symbol})
	if err != nil {
		return nil, fmt.Errorf("longport static info %s: %w", symbol, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: longport has no instrument %s", ErrUnavailable, symbol)
	}
	info := infos[0]

	sticks, err := l.quotes.Candlesticks(ctx, symbol, lpquote.PeriodDay, 2, lpquote.AdjustTypeNo)
	if err != nil {
		return nil, fmt.Errorf("longport candlesticks %s: %w", symbol, err)
	}
	if len(sticks) == 0 {
		return nil, fmt.Errorf("%w: longport returned no candlesticks for %s", ErrUnavailable, symbol)
	}
	last := sticks[len(sticks)-1]

	snapshot := &models.QuoteSnapshot{
		Symbol:    symbol,
		Name:      firstNonEmpty(info.NameEn, info.NameHk, info.NameCn, symbol),
		Exchange:  info.Exchange,
		Currency:  info.Currency,
		LastPrice: dec(last.Close),
		DayHigh:   dec(last.High),
		DayLow:    dec(last.Low),
		Volume:    last.Volume,
		Source:    "longport",
		Timestamp: time.Unix(last.Timestamp, 0),
	}
	if len(sticks) > 1 {
		snapshot.PreviousClose = dec(sticks[len(sticks)-2].Close)
	}
	return snapshot, nil
}

func dec(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
