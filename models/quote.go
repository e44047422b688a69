package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSnapshot is a best-effort view of the latest trading session for a symbol.
type QuoteSnapshot struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name,omitempty"`
	Exchange      string          `json:"exchange,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	LastPrice     decimal.Decimal `json:"last_price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	DayHigh       decimal.Decimal `json:"day_high"`
	DayLow        decimal.Decimal `json:"day_low"`
	Volume        int64           `json:"volume"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
}

// ChangePercent returns the move from the previous close, or zero when it is unknown.
func (q *QuoteSnapshot) ChangePercent() decimal.Decimal {
	if q == nil || q.PreviousClose.IsZero() {
		return decimal.Zero
	}
	return q.LastPrice.Sub(q.PreviousClose).Div(q.PreviousClose).Mul(decimal.NewFromInt(100)).Round(2)
}

// DisplayName returns "Name (SYMBOL)" or just the symbol.
func (q *QuoteSnapshot) DisplayName() string {
	if q == nil {
		return ""
	}
	if q.Name == "" || strings.EqualFold(q.Name, q.Symbol) {
		return q.Symbol
	}
	return fmt.Sprintf("%s (%s)", q.Name, q.Symbol)
}

// Context renders the snapshot as the reference block injected into expert prompts.
// A nil snapshot yields an empty string.
func (q *QuoteSnapshot) Context() string {
	if q == nil {
		return ""
	}
	currency := q.Currency
	if currency == "" {
		currency = "USD"
	}

	var sb strings.Builder
	sb.WriteString("Analysis reference\n")
	fmt.Fprintf(&sb, "Reference date: %s\n", q.Timestamp.Format("2006-01-02"))
	fmt.Fprintf(&sb, "Instrument: %s", q.DisplayName())
	if q.Exchange != "" {
		fmt.Fprintf(&sb, " on %s", q.Exchange)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Last close: %s %s\n", q.LastPrice.StringFixed(2), currency)
	if !q.PreviousClose.IsZero() {
		fmt.Fprintf(&sb, "Previous close: %s %s (change %s%%)\n",
			q.PreviousClose.StringFixed(2), currency, q.ChangePercent().StringFixed(2))
	}
	if !q.DayHigh.IsZero() || !q.DayLow.IsZero() {
		fmt.Fprintf(&sb, "Day range: %s - %s\n", q.DayLow.StringFixed(2), q.DayHigh.StringFixed(2))
	}
	if q.Volume > 0 {
		fmt.Fprintf(&sb, "Volume: %d\n", q.Volume)
	}
	if q.Source != "" {
		fmt.Fprintf(&sb, "Source: %s\n", q.Source)
	}
	return sb.String()
}
