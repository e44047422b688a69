package quote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	lpquote "github.com/longportapp/openapi-go/quote"
	finance "github.com/piquette/finance-go"
	"github.com/shopspring/decimal"

	"github.com/dyike/AnalystCouncil/config"
	"github.com/dyike/AnalystCouncil/models"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestValidateSymbol(t *testing.T) {
	valid := []string{"AAPL", "brk.b", "005930.KS", "^GSPC", "BTC-USD"}
	for _, s := range valid {
		if err := ValidateSymbol(s); err != nil {
			t.Errorf("ValidateSymbol(%q): %v", s, err)
		}
	}
	invalid := []string{"", "Apple Inc", "삼성전자", "THIS-IS-WAY-TOO-LONG"}
	for _, s := range invalid {
		if err := ValidateSymbol(s); !errors.Is(err, ErrUnavailable) {
			t.Errorf("ValidateSymbol(%q) = %v, want ErrUnavailable", s, err)
		}
	}
}

func TestYahooSnapshotRetriesAndCaches(t *testing.T) {
	calls := 0
	getter := func(symbol string) (*finance.Quote, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset")
		}
		return &finance.Quote{
			Symbol:                     symbol,
			ShortName:                  "Apple Inc.",
			CurrencyID:                 "USD",
			FullExchangeName:           "NasdaqGS",
			RegularMarketPrice:         190.5,
			RegularMarketPreviousClose: 188,
			RegularMarketVolume:        1000,
			RegularMarketTime:          1710432000,
		}, nil
	}
	cache := NewCache(t.TempDir(), time.Hour, true)
	y := NewYahoo(WithQuoteGetter(getter), WithCache(cache), WithRetryConfig(fastRetry()))

	q, err := y.Snapshot(context.Background(), " aapl ")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
	if q.Symbol != "AAPL" || q.Name != "Apple Inc." || !q.LastPrice.Equal(decimal.NewFromFloat(190.5)) || q.Source != "yahoo" {
		t.Fatalf("unexpected snapshot %+v", q)
	}

	again, err := y.Snapshot(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("cached Snapshot: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected cache hit, got %d calls", calls)
	}
	if !again.PreviousClose.Equal(q.PreviousClose) {
		t.Fatalf("cached snapshot differs: %+v", again)
	}
}

func TestYahooUnknownSymbolIsNotRetried(t *testing.T) {
	calls := 0
	y := NewYahoo(WithQuoteGetter(func(string) (*finance.Quote, error) {
		calls++
		return nil, nil
	}), WithRetryConfig(fastRetry()))

	if _, err := y.Snapshot(context.Background(), "ZZZZZ"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("unknown symbol must not be retried, got %d calls", calls)
	}
	if _, err := y.Snapshot(context.Background(), "Apple Inc"); !errors.Is(err, ErrUnavailable) || calls != 1 {
		t.Fatalf("company names must be rejected before any call")
	}
}

type stubProvider struct {
	q   *models.QuoteSnapshot
	err error
	n   int
}

func (s *stubProvider) Snapshot(context.Context, string) (*models.QuoteSnapshot, error) {
	s.n++
	return s.q, s.err
}

func TestChain(t *testing.T) {
	first := &stubProvider{err: errors.New("longport down")}
	second := &stubProvider{q: &models.QuoteSnapshot{Symbol: "AAPL"}}
	third := &stubProvider{q: &models.QuoteSnapshot{Symbol: "never"}}

	q, err := Chain{first, second, third}.Snapshot(context.Background(), "AAPL")
	if err != nil || q.Symbol != "AAPL" {
		t.Fatalf("Chain = %+v, %v", q, err)
	}
	if third.n != 0 {
		t.Fatalf("chain must stop at the first snapshot")
	}

	_, err = Chain{first, &stubProvider{err: ErrUnavailable}}.Snapshot(context.Background(), "AAPL")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := (None{}).Snapshot(context.Background(), "AAPL"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("None must be unavailable")
	}
}

type fakeLongport struct {
	infos  []*lpquote.StaticInfo
	sticks []*lpquote.Candlestick
	symbol string
}

func (f *fakeLongport) StaticInfo(ctx context.Context, symbols []string) ([]*lpquote.StaticInfo, error) {
	f.symbol = symbols[0]
	return f.infos, nil
}

func (f *fakeLongport) Candlesticks(ctx context.Context, symbol string, period lpquote.Period, count int32, adjustType lpquote.AdjustType) ([]*lpquote.Candlestick, error) {
	return f.sticks, nil
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestLongportSnapshot(t *testing.T) {
	fake := &fakeLongport{
		infos: []*lpquote.StaticInfo{{Symbol: "AAPL.US", NameEn: "Apple", Exchange: "NASD", Currency: "USD"}},
		sticks: []*lpquote.Candlestick{
			{Close: decPtr("100"), High: decPtr("101"), Low: decPtr("99"), Volume: 10, Timestamp: 1710345600},
			{Close: decPtr("105"), High: decPtr("106"), Low: nil, Volume: 20, Timestamp: 1710432000},
		},
	}
	lp := &Longport{quotes: fake}

	q, err := lp.Snapshot(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if fake.symbol != "AAPL.US" {
		t.Fatalf("expected US suffix, got %s", fake.symbol)
	}
	if !q.LastPrice.Equal(decimal.NewFromInt(105)) || !q.PreviousClose.Equal(decimal.NewFromInt(100)) || !q.DayLow.IsZero() {
		t.Fatalf("unexpected snapshot %+v", q)
	}
	if q.Name != "Apple" || q.Volume != 20 || q.Source != "longport" {
		t.Fatalf("unexpected snapshot %+v", q)
	}

	empty := &Longport{quotes: &fakeLongport{}}
	if _, err := empty.Snapshot(context.Background(), "AAPL"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for unknown instrument, got %v", err)
	}
	if LongportSymbol("700.HK") != "700.HK" {
		t.Fatalf("existing market suffix must be kept")
	}
}

func TestResolver(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/finance/search" || r.URL.Query().Get("q") != "apple" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"quotes":[
			{"symbol":"AAPL","shortname":"Apple Inc.","longname":"Apple Inc.","exchange":"NMS","quoteType":"EQUITY"},
			{"symbol":"AAPL250321C00100000","quoteType":"OPTION"},
			{"symbol":"APLE","shortname":"Apple Hospitality","exchange":"NYQ","quoteType":"EQUITY"}
		]}`))
	}))
	defer server.Close()

	matches, err := NewResolver(server.URL).Resolve(context.Background(), "apple")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(matches) != 2 || matches[0].Symbol != "AAPL" || matches[1].Name() != "Apple Hospitality" {
		t.Fatalf("unexpected matches %+v", matches)
	}
}

func TestResolverNoMatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"quotes":[]}`))
	}))
	defer server.Close()

	if _, err := NewResolver(server.URL).Resolve(context.Background(), "nothing here"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())

	cfg.QuoteProvider = config.QuoteProviderNone
	p, closeFn := New(cfg, nil)
	defer closeFn()
	if _, ok := p.(None); !ok {
		t.Fatalf("expected None provider, got %T", p)
	}

	cfg.QuoteProvider = config.QuoteProviderLongport
	p, _ = New(cfg, nil)
	if _, ok := p.(None); !ok {
		t.Fatalf("longport without credentials must degrade to None, got %T", p)
	}

	cfg.QuoteProvider = config.QuoteProviderYahoo
	p, _ = New(cfg, nil)
	if _, ok := p.(*Yahoo); !ok {
		t.Fatalf("expected Yahoo provider, got %T", p)
	}
}
