package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Route sends every model id starting with Prefix to the named provider.
type Route struct {
	Prefix   string
	Provider string
}

// DefaultRoutes: vendor-qualified ids and Anthropic/Google models go through OpenRouter.
var DefaultRoutes = []Route{
	{Prefix: "deepseek", Provider: "deepseek"},
	{Prefix: "gpt", Provider: "openai"},
	{Prefix: "chatgpt", Provider: "openai"},
	{Prefix: "o1", Provider: "openai"},
	{Prefix: "o3", Provider: "openai"},
	{Prefix: "o4", Provider: "openai"},
	{Prefix: "claude", Provider: "openrouter"},
	{Prefix: "gemini", Provider: "openrouter"},
}

type BreakerSettings struct {
	// Failures is the number of consecutive failures that opens a model's breaker.
	Failures uint32
	Cooldown time.Duration
}

// Router is the Client used by agents. It picks a provider per model id, guards each model with a
// circuit breaker and normalizes every failure into *Error.
type Router struct {
	providers map[string]Provider
	routes    []Route
	fallback  string
	breaker   *BreakerSettings
	log       logrus.FieldLogger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

type RouterOption func(*Router)

func WithProvider(p Provider) RouterOption {
	return func(r *Router) {
		r.providers[p.Name()] = p
	}
}

func WithRoutes(routes ...Route) RouterOption {
	return func(r *Router) {
		r.routes = routes
	}
}

// WithDefaultProvider names the provider used for ids no route matches.
func WithDefaultProvider(name string) RouterOption {
	return func(r *Router) {
		r.fallback = name
	}
}

func WithBreaker(settings BreakerSettings) RouterOption {
	return func(r *Router) {
		if settings.Failures == 0 {
			return
		}
		r.breaker = &settings
	}
}

func WithRouterLogger(log logrus.FieldLogger) RouterOption {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		providers: make(map[string]Provider),
		routes:    DefaultRoutes,
		log:       logrus.StandardLogger(),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Generate(ctx context.Context, modelID string, msgs []*schema.Message, opts ...model.Option) (string, error) {
	p, err := r.resolve(modelID)
	if err != nil {
		return "", newError(KindProvider, "", modelID, err)
	}

	cb := r.breakerFor(modelID)
	if cb == nil {
		text, err := p.Generate(ctx, modelID, msgs, opts...)
		if err != nil {
			return "", Classify(p.Name(), modelID, err)
		}
		return text, nil
	}

	out, err := cb.Execute(func() (interface{}, error) {
		return p.Generate(ctx, modelID, msgs, opts...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", newError(KindProvider, p.Name(), modelID, fmt.Errorf("circuit breaker: %w", err))
	}
	if err != nil {
		return "", Classify(p.Name(), modelID, err)
	}
	return out.(string), nil
}

// ProviderFor reports which provider would serve modelID.
func (r *Router) ProviderFor(modelID string) (string, error) {
	p, err := r.resolve(modelID)
	if err != nil {
		return "", err
	}
	return p.Name(), nil
}

func (r *Router) resolve(modelID string) (Provider, error) {
	id := strings.ToLower(strings.TrimSpace(modelID))
	if id == "" {
		return nil, errors.New("empty model id")
	}

	name := ""
	if strings.Contains(id, "/") {
		name = "openrouter"
	} else {
		for _, route := range r.routes {
			if strings.HasPrefix(id, strings.ToLower(route.Prefix)) {
				name = route.Provider
				break
			}
		}
	}
	if name == "" {
		name = r.fallback
	}
	if name == "" {
		return nil, fmt.Errorf("no provider route for model %q", modelID)
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q for model %q is not registered", name, modelID)
	}
	return p, nil
}

func (r *Router) breakerFor(modelID string) *gobreaker.CircuitBreaker {
	if r.breaker == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[modelID]; ok {
		return cb
	}
	failures := r.breaker.Failures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        modelID,
		MaxRequests: 1,
		Timeout:     r.breaker.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.WithFields(logrus.Fields{"model": name, "from": from.String(), "to": to.String()}).Warn("model circuit breaker state changed")
		},
	})
	r.breakers[modelID] = cb
	return cb
}
