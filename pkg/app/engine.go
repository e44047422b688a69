package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyike/AnalystCouncil/config"
	"github.com/dyike/AnalystCouncil/internal/agents"
	"github.com/dyike/AnalystCouncil/internal/council"
	"github.com/dyike/AnalystCouncil/internal/history"
	"github.com/dyike/AnalystCouncil/internal/llm"
	"github.com/dyike/AnalystCouncil/internal/logger"
	"github.com/dyike/AnalystCouncil/internal/personas"
	"github.com/dyike/AnalystCouncil/internal/quote"
	"github.com/dyike/AnalystCouncil/models"
)

// Engine is one fully wired council built from a config snapshot.
type Engine struct {
	Config   config.Config
	Council  *council.Council
	History  history.Reader
	Resolver *quote.Resolver
	Log      *logrus.Logger
	BuiltAt  time.Time
	Version  uint64

	closeOnce sync.Once
	closers   []func()
}

var engineSeq atomic.Uint64

type buildOptions struct {
	log        *logrus.Logger
	client     llm.Client
	quotes     quote.Provider
	councilOps []council.Option
}

type BuildOption func(*buildOptions)

func WithLogger(log *logrus.Logger) BuildOption {
	return func(o *buildOptions) { o.log = log }
}

// WithClient replaces the provider router built from config.
func WithClient(client llm.Client) BuildOption {
	return func(o *buildOptions) { o.client = client }
}

// WithQuotes replaces the quote provider selected by config.
func WithQuotes(p quote.Provider) BuildOption {
	return func(o *buildOptions) { o.quotes = p }
}

// WithCouncilOptions passes extra options (approver, observer) to the council.
func WithCouncilOptions(opts ...council.Option) BuildOption {
	return func(o *buildOptions) { o.councilOps = append(o.councilOps, opts...) }
}

func BuildEngine(cfg config.Config, opts ...BuildOption) (*Engine, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	engine := &Engine{
		Config:   cfg,
		Resolver: quote.NewResolver(cfg.SymbolSearchURL),
		BuiltAt:  time.Now(),
		Version:  engineSeq.Add(1),
	}

	log := o.log
	if log == nil {
		level := cfg.LogLevel
		if cfg.Debug {
			level = "debug"
		}
		var closeLog func()
		log, closeLog = logger.Open(logger.Options{Level: level, File: cfg.LogFile})
		engine.closers = append(engine.closers, closeLog)
	}
	engine.Log = log

	roster, err := personas.Load(cfg.RosterPath)
	if err != nil {
		engine.Close()
		return nil, err
	}

	client := o.client
	if client == nil {
		client = llm.NewFromConfig(&cfg, log)
	}

	expertIDs, chairID := roster.Identities(&cfg)
	expertOpts := agents.Options{Timeout: cfg.ExpertTimeout(), Temperature: cfg.ExpertTemperature, MaxTokens: cfg.MaxTokens}
	experts := make([]council.Analyst, 0, len(expertIDs))
	for _, id := range expertIDs {
		experts = append(experts, agents.NewExpert(id, client, expertOpts, log))
	}
	chairOpts := agents.Options{Timeout: cfg.ChairTimeout(), Temperature: cfg.ChairTemperature, MaxTokens: cfg.MaxTokens}
	chair := agents.NewChair(chairID, client, chairOpts, cfg.ChairQuorum, log)

	quotes := o.quotes
	if quotes == nil {
		var closeQuotes func()
		quotes, closeQuotes = quote.New(&cfg, log)
		engine.closers = append(engine.closers, closeQuotes)
	}

	sink := engine.openSinks(cfg, log)

	councilOpts := []council.Option{
		council.WithQuoteSource(quotes),
		council.WithLogger(log),
	}
	if len(sink) > 0 {
		councilOpts = append(councilOpts, council.WithSink(sink))
	}
	councilOpts = append(councilOpts, o.councilOps...)

	c, err := council.New(experts, chair, councilOpts...)
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.Council = c
	return engine, nil
}

// openSinks opens every configured history sink. A sink that cannot be opened is skipped with an error log.
func (e *Engine) openSinks(cfg config.Config, log logrus.FieldLogger) history.Multi {
	var sinks history.Multi
	if cfg.HistoryFile != "" {
		sinks = append(sinks, history.NewMarkdown(cfg.HistoryFile))
	}
	if cfg.HistoryDBPath != "" {
		store, err := history.OpenSQLite(cfg.HistoryDBPath)
		if err != nil {
			log.WithError(err).Error("sqlite history disabled")
		} else {
			sinks = append(sinks, store)
			e.History = store
			e.closers = append(e.closers, func() { _ = store.Close() })
		}
	}
	if cfg.RedisAddr != "" {
		r, err := history.NewRedis(history.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Key:      cfg.RedisKey,
			MaxItems: cfg.RedisMaxItems,
		})
		if err != nil {
			log.WithError(err).Error("redis history disabled")
		} else {
			sinks = append(sinks, r)
			if e.History == nil {
				e.History = r
			}
			e.closers = append(e.closers, func() { _ = r.Close() })
		}
	}
	return sinks
}

func (e *Engine) Analyze(ctx context.Context, subject string, requireApproval bool) (*models.CouncilReport, error) {
	return e.Council.Analyze(ctx, subject, requireApproval)
}

func (e *Engine) Recent(ctx context.Context, limit int) ([]models.ReportRecord, error) {
	if e.History == nil {
		return nil, history.ErrDisabled
	}
	return e.History.Recent(ctx, limit)
}

func (e *Engine) Members() ([]models.AgentIdentity, models.AgentIdentity) {
	return e.Council.Experts(), e.Council.Chair()
}

// Close refuses new runs, waits for runs in flight and their history writes, then releases
// connections. It is safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.Council != nil {
			e.Council.Close()
		}
		for i := len(e.closers) - 1; i >= 0; i-- {
			e.closers[i]()
		}
	})
}
