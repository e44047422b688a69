package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyike/AnalystCouncil/config"
	"github.com/dyike/AnalystCouncil/internal/council"
	"github.com/dyike/AnalystCouncil/models"
)

type EngineBuilder func(config.Config) (*Engine, error)

type Option func(*Runtime)

func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.builder = builder
		}
	}
}

func WithNotifier(fn func(topic, payload string)) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

func WithRuntimeLogger(log logrus.FieldLogger) Option {
	return func(r *Runtime) {
		if log != nil {
			r.log = log
		}
	}
}

// Runtime keeps the current engine and rebuilds it whenever the config file changes.
type Runtime struct {
	cfgMgr *config.Manager
	engine atomic.Pointer[Engine]

	builder EngineBuilder
	notify  func(string, string)
	log     logrus.FieldLogger
	cancel  context.CancelFunc
}

func NewRuntime(cfgMgr *config.Manager, opts ...Option) (*Runtime, error) {
	if cfgMgr == nil {
		return nil, fmt.Errorf("config manager is required")
	}

	rt := &Runtime{
		cfgMgr: cfgMgr,
		builder: func(cfg config.Config) (*Engine, error) {
			return BuildEngine(cfg.WithEnv())
		},
		log: logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(rt)
	}
	rt.log = rt.log.WithField("component", "runtime")

	if err := rt.reload(cfgMgr.Get()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	if err := cfgMgr.Watch(ctx, func(cfg config.Config) {
		if err := rt.reload(cfg); err != nil {
			rt.log.WithError(err).Error("engine reload failed, keeping previous engine")
		}
	}); err != nil {
		cancel()
		rt.Engine().Close()
		return nil, err
	}

	return rt, nil
}

func (r *Runtime) Engine() *Engine {
	return r.engine.Load()
}

// Close stops watching the config and closes the current engine.
func (r *Runtime) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if e := r.engine.Swap(nil); e != nil {
		e.Close()
	}
}

func (r *Runtime) UpdateConfigJSON(jsonStr string) error {
	return r.cfgMgr.UpdateFromJSON(jsonStr)
}

// Analyze runs on the current engine. A run that lands on an engine closed by a concurrent reload
// is retried once on its replacement.
func (r *Runtime) Analyze(ctx context.Context, subject string, requireApproval bool) (*models.CouncilReport, error) {
	for range 2 {
		e := r.Engine()
		if e == nil {
			return nil, fmt.Errorf("runtime closed")
		}
		report, err := e.Analyze(ctx, subject, requireApproval)
		if !errors.Is(err, council.ErrClosed) {
			return report, err
		}
	}
	return nil, council.ErrClosed
}

func (r *Runtime) Recent(ctx context.Context, limit int) ([]models.ReportRecord, error) {
	e := r.Engine()
	if e == nil {
		return nil, fmt.Errorf("runtime closed")
	}
	return e.Recent(ctx, limit)
}

func (r *Runtime) Members() ([]models.AgentIdentity, models.AgentIdentity) {
	e := r.Engine()
	if e == nil {
		return nil, models.AgentIdentity{}
	}
	return e.Members()
}

func (r *Runtime) reload(cfg config.Config) error {
	engine, err := r.builder(cfg)
	if err != nil {
		r.notifyFailure(err)
		return err
	}
	if old := r.engine.Swap(engine); old != nil {
		// runs in flight on the old engine finish and persist before its sinks close
		go old.Close()
	}
	r.log.WithField("version", engine.Version).Info("engine ready")
	r.notifySuccess(engine)
	return nil
}

func (r *Runtime) notifySuccess(engine *Engine) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"version":  engine.Version,
		"built_at": engine.BuiltAt.UTC().Format(time.RFC3339),
	})
	r.notify("engine.reloaded", string(payload))
}

func (r *Runtime) notifyFailure(err error) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
	})
	r.notify("engine.reload_failed", string(payload))
}
