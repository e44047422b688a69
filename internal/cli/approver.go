package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyike/AnalystCouncil/consts"
	"github.com/dyike/AnalystCouncil/internal/council"
	"github.com/dyike/AnalystCouncil/internal/display"
	"github.com/dyike/AnalystCouncil/models"
)

// consoleApprover shows the expert phase and asks whether the chair should synthesise.
type consoleApprover struct {
	prompter Prompter
	display  *display.ResultsDisplay
}

func (a consoleApprover) Approve(ctx context.Context, cp council.Checkpoint) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.display.Checkpoint(cp.Subject, cp.Results)
	return a.prompter.Confirm(
		fmt.Sprintf("%d of %d experts reported. Proceed with the chair's synthesis?", cp.Succeeded, cp.Total), true)
}

// progress prints each expert as it finishes. Observer calls arrive from the expert goroutines.
type progress struct {
	mu      sync.Mutex
	done    int
	quiet   bool
	display *display.ResultsDisplay
}

func (p *progress) reset(quiet bool) {
	p.mu.Lock()
	p.done = 0
	p.quiet = quiet
	p.mu.Unlock()
}

func (p *progress) observe(res models.AnalysisResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if p.quiet {
		return
	}
	p.display.Progress(res, p.done, consts.ExpertCount)
}
