package council

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/dyike/AnalystCouncil/consts"
	"github.com/dyike/AnalystCouncil/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidSubject = errors.New("invalid subject")
	// ErrApprovalDeclined is returned with the report when the operator stops the run before synthesis.
	ErrApprovalDeclined = errors.New("synthesis declined by operator")
	ErrNoApprover       = errors.New("approval required but no approver configured")
	ErrClosed           = errors.New("council closed")
)

const maxSubjectLen = 100

type Analyst interface {
	Identity() models.AgentIdentity
	Analyze(ctx context.Context, req models.AnalysisRequest) models.AnalysisResult
}

type Synthesizer interface {
	Identity() models.AgentIdentity
	Synthesize(ctx context.Context, req models.AnalysisRequest, results []models.AnalysisResult) models.AnalysisResult
}

// QuoteSource returns a best-effort snapshot; any error is treated as missing context.
type QuoteSource interface {
	Snapshot(ctx context.Context, subject string) (*models.QuoteSnapshot, error)
}

type Sink interface {
	Append(ctx context.Context, report *models.CouncilReport) error
}

type Council struct {
	experts     []Analyst
	chair       Synthesizer
	quotes      QuoteSource
	sink        Sink
	approver    Approver
	observer    func(models.AnalysisResult)
	log         logrus.FieldLogger
	sinkTimeout time.Duration
	now         func() time.Time

	// pending counts runs in flight and history writes not yet finished.
	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

type Option func(*Council)

func WithQuoteSource(q QuoteSource) Option {
	return func(c *Council) { c.quotes = q }
}

func WithSink(s Sink) Option {
	return func(c *Council) { c.sink = s }
}

func WithApprover(a Approver) Option {
	return func(c *Council) { c.approver = a }
}

// WithObserver registers a callback invoked as each expert finishes. It runs on the expert's goroutine.
func WithObserver(fn func(models.AnalysisResult)) Option {
	return func(c *Council) { c.observer = fn }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Council) {
		if log != nil {
			c.log = log
		}
	}
}

func WithSinkTimeout(d time.Duration) Option {
	return func(c *Council) {
		if d > 0 {
			c.sinkTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Council) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a council over exactly five experts, consulted and reported in the given order.
func New(experts []Analyst, chair Synthesizer, opts ...Option) (*Council, error) {
	if len(experts) != consts.ExpertCount {
		return nil, fmt.Errorf("council needs exactly %d experts, got %d", consts.ExpertCount, len(experts))
	}
	if chair == nil {
		return nil, errors.New("council needs a chair")
	}
	for i, e := range experts {
		if e == nil {
			return nil, fmt.Errorf("expert %d is nil", i+1)
		}
	}
	c := &Council{
		experts:     append([]Analyst(nil), experts...),
		chair:       chair,
		log:         logrus.StandardLogger(),
		sinkTimeout: 30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "council")
	return c, nil
}

func (c *Council) Experts() []models.AgentIdentity {
	ids := make([]models.AgentIdentity, len(c.experts))
	for i, e := range c.experts {
		ids[i] = e.Identity()
	}
	return ids
}

func (c *Council) Chair() models.AgentIdentity {
	return c.chair.Identity()
}

// Analyze runs one council session for subject. Partial failure is reported through the report's
// SystemStatus, never as an error. Errors are returned only for invalid input, a missing approver,
// a closed council, or a declined approval (in which case the report is returned too). A decline
// caused by an approver error wraps that error as well.
func (c *Council) Analyze(ctx context.Context, subject string, requireApproval bool) (*models.CouncilReport, error) {
	subject, err := NormalizeSubject(subject)
	if err != nil {
		return nil, err
	}
	if requireApproval && c.approver == nil {
		return nil, ErrNoApprover
	}
	if !c.begin() {
		return nil, ErrClosed
	}
	defer c.pending.Done()

	start := c.now()
	log := c.log.WithField("subject", subject)

	quote := c.fetchQuote(ctx, subject, log)
	req := models.AnalysisRequest{
		Subject:      subject,
		QuoteContext: quote.Context(),
		Timestamp:    start,
	}

	// Once launched, agents are bounded by their own attempt timeouts, not by the caller.
	runCtx := context.WithoutCancel(ctx)

	log.WithField("experts", len(c.experts)).Info("council session started")
	results := c.fanOut(runCtx, req)

	report := &models.CouncilReport{
		ID:             uuid.NewString(),
		Subject:        subject,
		Quote:          quote,
		ExpertAnalyses: results,
		Timestamp:      start,
	}

	succeeded := report.SucceededExperts()
	if requireApproval && succeeded > 0 {
		approved, err := c.approver.Approve(ctx, Checkpoint{
			Subject:   subject,
			Quote:     quote,
			Results:   results,
			Succeeded: succeeded,
			Total:     len(results),
		})
		if err != nil {
			log.WithError(err).Warn("approval hook failed, treating as declined")
		}
		if err != nil || !approved {
			report.Chair = models.AnalysisResult{
				Agent:  c.chair.Identity(),
				Status: models.StatusFailed,
				Error:  "synthesis declined by operator",
			}
			report.SystemStatus = SystemStatus(results, report.Chair)
			report.StatusMessage = fmt.Sprintf("Synthesis declined after %d of %d experts reported.", succeeded, len(results))
			log.Info("council session stopped at approval checkpoint")
			if err != nil {
				return report, fmt.Errorf("%w: %w", ErrApprovalDeclined, err)
			}
			return report, ErrApprovalDeclined
		}
	}

	report.Chair = c.chair.Synthesize(runCtx, req, results)
	report.SystemStatus = SystemStatus(results, report.Chair)
	report.StatusMessage = StatusMessage(report)

	log.WithFields(logrus.Fields{
		"status":    report.SystemStatus,
		"succeeded": succeeded,
		"elapsed":   c.now().Sub(start).Round(time.Millisecond),
	}).Info("council session finished")

	c.appendHistory(ctx, report)
	return report, nil
}

// Wait blocks until every run in flight and every pending history append has finished.
func (c *Council) Wait() {
	c.pending.Wait()
}

// Close stops new runs with ErrClosed and waits for the ones in flight, including their history writes.
func (c *Council) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.pending.Wait()
}

func (c *Council) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.pending.Add(1)
	return true
}

func (c *Council) fetchQuote(ctx context.Context, subject string, log logrus.FieldLogger) *models.QuoteSnapshot {
	if c.quotes == nil {
		return nil
	}
	quote, err := c.quotes.Snapshot(ctx, subject)
	if err != nil {
		log.WithError(err).Warn("quote unavailable, continuing without price context")
		return nil
	}
	return quote
}

// fanOut runs every expert concurrently and waits for all of them. Siblings are never cancelled.
func (c *Council) fanOut(ctx context.Context, req models.AnalysisRequest) []models.AnalysisResult {
	results := make([]models.AnalysisResult, len(c.experts))
	var g errgroup.Group
	for i, expert := range c.experts {
		g.Go(func() error {
			results[i] = c.runExpert(ctx, expert, req)
			if c.observer != nil {
				c.observer(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Council) runExpert(ctx context.Context, expert Analyst, req models.AnalysisRequest) (res models.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("agent", expert.Identity().ID).
				WithField("stack", string(debug.Stack())).
				Errorf("expert panicked: %v", r)
			res = models.AnalysisResult{
				Agent:  expert.Identity(),
				Status: models.StatusFailed,
				Error:  fmt.Sprintf("internal error: %v", r),
			}
		}
	}()
	return expert.Analyze(ctx, req)
}

func (c *Council) appendHistory(ctx context.Context, report *models.CouncilReport) {
	if c.sink == nil {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sinkTimeout)
		defer cancel()
		if err := c.sink.Append(sinkCtx, report); err != nil {
			c.log.WithField("report_id", report.ID).WithError(err).Error("history append failed")
		}
	}()
}

// NormalizeSubject trims the subject and rejects empty, oversized or control-character input.
func NormalizeSubject(subject string) (string, error) {
	s := strings.TrimSpace(subject)
	if s == "" {
		return "", fmt.Errorf("%w: subject is empty", ErrInvalidSubject)
	}
	if len(s) > maxSubjectLen {
		return "", fmt.Errorf("%w: subject longer than %d bytes", ErrInvalidSubject, maxSubjectLen)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: subject contains control characters", ErrInvalidSubject)
		}
	}
	return s, nil
}
