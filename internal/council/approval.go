package council

import (
	"context"

	"github.com/dyike/AnalystCouncil/models"
)

// Checkpoint is what the operator sees between the expert phase and synthesis.
type Checkpoint struct {
	Subject   string
	Quote     *models.QuoteSnapshot
	Results   []models.AnalysisResult
	Succeeded int
	Total     int
}

// Approver decides whether the chair runs. Approve may block until the operator answers;
// an error is treated as a refusal.
type Approver interface {
	Approve(ctx context.Context, cp Checkpoint) (bool, error)
}

type ApproverFunc func(ctx context.Context, cp Checkpoint) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, cp Checkpoint) (bool, error) {
	return f(ctx, cp)
}

// AutoApprove approves every checkpoint.
var AutoApprove = ApproverFunc(func(context.Context, Checkpoint) (bool, error) { return true, nil })

// ChannelApprover waits for a decision on Decisions, for callers that drive approval from another goroutine.
type ChannelApprover struct {
	Checkpoints chan<- Checkpoint
	Decisions   <-chan bool
}

func (a ChannelApprover) Approve(ctx context.Context, cp Checkpoint) (bool, error) {
	if a.Checkpoints != nil {
		select {
		case a.Checkpoints <- cp:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	select {
	case ok := <-a.Decisions:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
