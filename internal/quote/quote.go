package quote

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dyike/AnalystCouncil/models"
)

// ErrUnavailable means no snapshot could be produced; callers continue without price context.
var ErrUnavailable = errors.New("quote unavailable")

type Provider interface {
	Snapshot(ctx context.Context, subject string) (*models.QuoteSnapshot, error)
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-=^]{0,14}$`)

// NormalizeSymbol converts symbol to standard format
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// ValidateSymbol rejects subjects that cannot be a ticker, such as company names with spaces.
func ValidateSymbol(symbol string) error {
	s := NormalizeSymbol(symbol)
	if s == "" {
		return fmt.Errorf("%w: symbol cannot be empty", ErrUnavailable)
	}
	if !symbolPattern.MatchString(s) {
		return fmt.Errorf("%w: %q is not a ticker symbol", ErrUnavailable, symbol)
	}
	return nil
}

// Chain asks each provider in turn and returns the first snapshot.
type Chain []Provider

func (c Chain) Snapshot(ctx context.Context, subject string) (*models.QuoteSnapshot, error) {
	var errs []error
	for _, p := range c {
		if p == nil {
			continue
		}
		q, err := p.Snapshot(ctx, subject)
		if err == nil && q != nil {
			return q, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil, ErrUnavailable
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

// None never returns a snapshot.
type None struct{}

func (None) Snapshot(context.Context, string) (*models.QuoteSnapshot, error) {
	return nil, ErrUnavailable
}
