package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/AnalystCouncil/internal/llm"
	"github.com/dyike/AnalystCouncil/models"
	"github.com/sirupsen/logrus"
)

// Options carries the per-agent generation settings taken from config.
type Options struct {
	// Timeout bounds each model attempt separately; zero means no per-call bound.
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
}

// runner applies the primary/fallback policy shared by experts and the chair.
// It never returns an error: every outcome becomes an AnalysisResult.
type runner struct {
	identity models.AgentIdentity
	client   llm.Client
	opts     Options
	log      logrus.FieldLogger
}

func newRunner(identity models.AgentIdentity, client llm.Client, opts Options, log logrus.FieldLogger) runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return runner{
		identity: identity,
		client:   client,
		opts:     opts,
		log:      log.WithField("agent", identity.ID),
	}
}

func (r *runner) run(ctx context.Context, msgs []*schema.Message) models.AnalysisResult {
	start := time.Now()
	result := models.AnalysisResult{Agent: r.identity}
	defer func() {
		result.ElapsedMS = time.Since(start).Milliseconds()
	}()

	text, primaryErr := r.attempt(ctx, r.identity.PrimaryModel, msgs)
	if primaryErr == nil {
		result.Status = models.StatusOK
		result.ModelUsed = r.identity.PrimaryModel
		result.Analysis = text
		return result
	}
	r.log.WithFields(logrus.Fields{
		"model": r.identity.PrimaryModel,
		"kind":  llm.KindOf(primaryErr),
	}).WithError(primaryErr).Warn("primary model failed")

	if strings.TrimSpace(r.identity.FallbackModel) == "" {
		result.Status = models.StatusFailed
		result.ModelUsed = r.identity.PrimaryModel
		result.Error = fmt.Sprintf("primary %s: %v; no fallback model configured", r.identity.PrimaryModel, primaryErr)
		r.log.Error("no fallback model configured, giving up")
		return result
	}

	r.log.WithField("model", r.identity.FallbackModel).Info("retrying with fallback model")
	text, fallbackErr := r.attempt(ctx, r.identity.FallbackModel, msgs)
	if fallbackErr == nil {
		result.Status = models.StatusFallbackOK
		result.ModelUsed = r.identity.FallbackModel
		result.Analysis = text
		return result
	}

	r.log.WithFields(logrus.Fields{
		"model": r.identity.FallbackModel,
		"kind":  llm.KindOf(fallbackErr),
	}).WithError(fallbackErr).Error("fallback model failed")
	result.Status = models.StatusFailed
	result.ModelUsed = r.identity.FallbackModel
	result.Error = fmt.Sprintf("primary %s: %v; fallback %s: %v",
		r.identity.PrimaryModel, primaryErr, r.identity.FallbackModel, fallbackErr)
	return result
}

func (r *runner) attempt(ctx context.Context, modelID string, msgs []*schema.Message) (string, error) {
	if r.client == nil {
		return "", &llm.Error{Kind: llm.KindProvider, Model: modelID, Err: errors.New("no model client configured")}
	}
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	var opts []model.Option
	if r.opts.Temperature > 0 {
		opts = append(opts, model.WithTemperature(r.opts.Temperature))
	}
	if r.opts.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(r.opts.MaxTokens))
	}
	return r.client.Generate(ctx, modelID, msgs, opts...)
}

// failed builds a failed result for problems detected before any model call.
func (r *runner) failed(reason string) models.AnalysisResult {
	return models.AnalysisResult{
		Agent:  r.identity,
		Status: models.StatusFailed,
		Error:  reason,
	}
}
