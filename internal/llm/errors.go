package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the closed set of transport failures every provider binding is normalized into.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindRateLimit Kind = "rate_limit"
	KindTimeout   Kind = "timeout"
	KindProvider  Kind = "provider"
	KindMalformed Kind = "malformed_response"
)

var (
	ErrAuth              = errors.New("authentication failed")
	ErrRateLimit         = errors.New("rate limited")
	ErrTimeout           = errors.New("request timed out")
	ErrProvider          = errors.New("provider error")
	ErrMalformedResponse = errors.New("malformed response")
)

type Error struct {
	Kind     Kind
	Provider string
	Model    string
	Err      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Provider != "" {
		sb.WriteString(e.Provider)
		sb.WriteString(" ")
	}
	if e.Model != "" {
		sb.WriteString(e.Model)
		sb.WriteString(" ")
	}
	sb.WriteString(string(e.Kind))
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is.
func (e *Error) Unwrap() []error {
	errs := []error{sentinel(e.Kind)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func sentinel(k Kind) error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindRateLimit:
		return ErrRateLimit
	case KindTimeout:
		return ErrTimeout
	case KindMalformed:
		return ErrMalformedResponse
	default:
		return ErrProvider
	}
}

func newError(kind Kind, provider, model string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Model: model, Err: err}
}

// KindOf reports the transport kind of err, or an empty Kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Classify("", "", err).Kind
}

var statusCodePattern = regexp.MustCompile(`(?i)status(?: code)?[:= ]+(\d{3})`)

// Classify normalizes any binding error into *Error. Errors that are already classified pass through
// with provider and model filled in when missing.
func Classify(provider, model string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		out := *e
		if out.Provider == "" {
			out.Provider = provider
		}
		if out.Model == "" {
			out.Model = model
		}
		return &out
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(KindTimeout, provider, model, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, provider, model, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return newError(KindMalformed, provider, model, err)
	}

	msg := err.Error()
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return newError(KindFromStatus(code), provider, model, err)
	}

	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "unauthorized", "invalid api key", "invalid_api_key", "incorrect api key", "permission denied", "authentication"):
		return newError(KindAuth, provider, model, err)
	case containsAny(lower, "rate limit", "rate_limit", "too many requests", "quota"):
		return newError(KindRateLimit, provider, model, err)
	case containsAny(lower, "timeout", "timed out", "deadline exceeded"):
		return newError(KindTimeout, provider, model, err)
	case containsAny(lower, "unexpected end of json", "invalid character", "cannot unmarshal", "empty response", "no choices"):
		return newError(KindMalformed, provider, model, err)
	}
	return newError(KindProvider, provider, model, err)
}

// KindFromStatus maps an HTTP status code onto the transport error set.
func KindFromStatus(code int) Kind {
	switch {
	case code == 401 || code == 403:
		return KindAuth
	case code == 429:
		return KindRateLimit
	case code == 408 || code == 504:
		return KindTimeout
	default:
		return KindProvider
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func errMissingKey(provider string) error {
	return fmt.Errorf("%s api key is not configured", provider)
}
