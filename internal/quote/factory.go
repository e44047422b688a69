package quote

import (
	"path/filepath"
	"time"

	"github.com/dyike/AnalystCouncil/config"
	"github.com/sirupsen/logrus"
)

// New builds the provider selected by cfg.QuoteProvider. The returned close func releases
// provider connections and is never nil.
func New(cfg *config.Config, log logrus.FieldLogger) (Provider, func()) {
	noop := func() {}
	if log == nil {
		log = logrus.StandardLogger()
	}

	yahoo := func() Provider {
		retry := DefaultRetryConfig()
		if cfg.QuoteRetries >= 0 {
			retry.MaxRetries = uint(cfg.QuoteRetries)
		}
		cache := NewCache(filepath.Join(cfg.DataCacheDir, "quotes"), 15*time.Minute, cfg.CacheEnabled)
		return NewYahoo(WithCache(cache), WithRetryConfig(retry))
	}
	longport := func() (*Longport, bool) {
		lp, err := NewLongport(LongportCredentials{
			AppKey:      cfg.LongportAppKey,
			AppSecret:   cfg.LongportAppSecret,
			AccessToken: cfg.LongportAccessToken,
		})
		if err != nil {
			log.WithError(err).Warn("longport quotes disabled")
			return nil, false
		}
		return lp, true
	}

	switch cfg.QuoteProvider {
	case config.QuoteProviderNone:
		return None{}, noop
	case config.QuoteProviderLongport:
		if lp, ok := longport(); ok {
			return lp, func() { _ = lp.Close() }
		}
		return None{}, noop
	case config.QuoteProviderChain:
		if lp, ok := longport(); ok {
			return Chain{lp, yahoo()}, func() { _ = lp.Close() }
		}
		return yahoo(), noop
	default:
		return yahoo(), noop
	}
}
