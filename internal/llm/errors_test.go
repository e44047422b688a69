package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	var syntaxErr error
	if err := json.Unmarshal([]byte("{"), &struct{}{}); err != nil {
		syntaxErr = err
	}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"status 401", errors.New("error, status code: 401, message: invalid key"), KindAuth},
		{"status 403", errors.New("status code: 403"), KindAuth},
		{"status 429", errors.New("error, status code: 429, message: slow down"), KindRateLimit},
		{"status 504", errors.New("status 504: gateway timeout"), KindTimeout},
		{"status 500", errors.New("status code: 500"), KindProvider},
		{"auth keyword", errors.New("Incorrect API key provided"), KindAuth},
		{"rate keyword", errors.New("Rate limit reached for requests"), KindRateLimit},
		{"json syntax", syntaxErr, KindMalformed},
		{"unknown", errors.New("connection reset by peer"), KindProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("openai", "gpt-5", tt.err)
			if got.Kind != tt.want {
				t.Fatalf("Classify(%v) = %s, want %s", tt.err, got.Kind, tt.want)
			}
			if !errors.Is(got, sentinel(tt.want)) {
				t.Fatalf("expected errors.Is to match the %s sentinel", tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("expected the cause to stay reachable")
			}
		})
	}
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	inner := newError(KindRateLimit, "", "", errors.New("429"))
	got := Classify("openrouter", "anthropic/claude-sonnet-4", fmt.Errorf("wrapped: %w", inner))
	if got.Kind != KindRateLimit || got.Provider != "openrouter" || got.Model != "anthropic/claude-sonnet-4" {
		t.Fatalf("unexpected classification %+v", got)
	}
	if KindOf(got) != KindRateLimit {
		t.Fatalf("KindOf = %s", KindOf(got))
	}
	if KindOf(nil) != "" {
		t.Fatalf("KindOf(nil) must be empty")
	}
}

func TestErrorMessage(t *testing.T) {
	err := newError(KindAuth, "openai", "gpt-5", errors.New("missing key"))
	if got := err.Error(); got != "openai gpt-5 auth: missing key" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(err, ErrAuth) || errors.Is(err, ErrProvider) {
		t.Fatalf("sentinel matching is wrong")
	}
}
