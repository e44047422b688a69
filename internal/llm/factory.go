package llm

import (
	"github.com/dyike/AnalystCouncil/config"
	"github.com/sirupsen/logrus"
)

// NewFromConfig registers every provider binding the config has settings for.
// Providers without an API key stay registered and fail with ErrAuth, which lets the fallback model run.
func NewFromConfig(cfg *config.Config, log logrus.FieldLogger) *Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "llm")

	opts := []RouterOption{
		WithRouterLogger(log),
		WithProvider(NewOpenAIProvider(OpenAIOptions{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			MaxTokens: cfg.MaxTokens,
		}, log)),
		WithProvider(NewDeepSeekProvider(DeepSeekOptions{
			APIKey:    cfg.DeepSeekAPIKey,
			MaxTokens: cfg.MaxTokens,
		}, log)),
		WithProvider(NewOpenRouterProvider(OpenRouterOptions{
			APIKey:    cfg.OpenRouterAPIKey,
			BaseURL:   cfg.OpenRouterBaseURL,
			MaxTokens: cfg.MaxTokens,
		})),
		WithDefaultProvider("openrouter"),
	}
	if cfg.BreakerEnabled {
		opts = append(opts, WithBreaker(BreakerSettings{
			Failures: uint32(cfg.BreakerFailures),
			Cooldown: cfg.BreakerCooldown(),
		}))
	}
	return NewRouter(opts...)
}
