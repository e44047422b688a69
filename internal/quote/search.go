package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Match is one candidate instrument for a free-text subject.
type Match struct {
	Symbol    string `json:"symbol"`
	ShortName string `json:"shortname"`
	LongName  string `json:"longname"`
	Exchange  string `json:"exchange"`
	QuoteType string `json:"quoteType"`
}

func (m Match) Name() string {
	return firstNonEmpty(m.LongName, m.ShortName, m.Symbol)
}

type searchResponse struct {
	Quotes []Match `json:"quotes"`
}

// Resolver turns a company name or ticker into candidate symbols using the Yahoo search endpoint.
type Resolver struct {
	client *resty.Client
}

func NewResolver(baseURL string) *Resolver {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; AnalystCouncil)")
	return &Resolver{client: client}
}

// Resolve returns equity and ETF matches, best first.
func (r *Resolver) Resolve(ctx context.Context, query string) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty query")
	}

	var out searchResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":           query,
			"quotesCount": "6",
			"newsCount":   "0",
		}).
		SetResult(&out).
		Get("/v1/finance/search")
	if err != nil {
		return nil, fmt.Errorf("symbol search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("symbol search: status %d", resp.StatusCode())
	}

	matches := make([]Match, 0, len(out.Quotes))
	for _, m := range out.Quotes {
		if m.Symbol == "" {
			continue
		}
		switch strings.ToUpper(m.QuoteType) {
		case "EQUITY", "ETF", "":
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no instrument matches %q", ErrUnavailable, query)
	}
	return matches, nil
}
