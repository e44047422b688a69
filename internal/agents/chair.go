package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/AnalystCouncil/internal/llm"
	"github.com/dyike/AnalystCouncil/models"
	"github.com/sirupsen/logrus"
)

// Chair synthesizes the expert results into the final verdict.
type Chair struct {
	runner
	template prompt.ChatTemplate
	quorum   int
}

// NewChair returns a chair that needs at least quorum successful experts before it calls a model.
func NewChair(identity models.AgentIdentity, client llm.Client, opts Options, quorum int, log logrus.FieldLogger) *Chair {
	if quorum < 1 {
		quorum = 1
	}
	return &Chair{
		runner: newRunner(identity, client, opts, log),
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage("{system_message}"),
			schema.UserMessage("{briefing}"),
		),
		quorum: quorum,
	}
}

func (c *Chair) Identity() models.AgentIdentity {
	return c.identity
}

func (c *Chair) Synthesize(ctx context.Context, req models.AnalysisRequest, results []models.AnalysisResult) models.AnalysisResult {
	succeeded := countSucceeded(results)
	if succeeded == 0 {
		c.log.Error("every expert failed, skipping synthesis")
		return c.failed(fmt.Sprintf("no synthesis possible: all %d experts failed", len(results)))
	}
	if succeeded < c.quorum {
		c.log.WithField("succeeded", succeeded).Warn("chair quorum not met")
		return c.failed(fmt.Sprintf("no synthesis possible: %d of %d experts reported, at least %d required",
			succeeded, len(results), c.quorum))
	}

	msgs, err := c.template.Format(ctx, map[string]any{
		"system_message": c.identity.Persona,
		"briefing":       Briefing(req, results),
	})
	if err != nil {
		return c.failed(fmt.Sprintf("build prompt: %v", err))
	}
	return c.run(ctx, msgs)
}

// Briefing renders the meta-prompt input: every expert in registration order, with failed experts
// replaced by an unavailable marker so the chair can state how many opinions it rests on.
func Briefing(req models.AnalysisRequest, results []models.AnalysisResult) string {
	succeeded := countSucceeded(results)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Subject: %s\n", req.Subject)
	fmt.Fprintf(&sb, "Analysis date: %s\n\n", req.Timestamp.Format("2006-01-02"))
	if req.QuoteContext != "" {
		sb.WriteString(req.QuoteContext)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "%d of %d experts reported.", succeeded, len(results))
	if succeeded < len(results) {
		sb.WriteString(" Base the verdict only on the available reports and acknowledge the missing members.")
	}
	sb.WriteString("\n\n---\n\n")

	for i, res := range results {
		label := expertLabel(i, res.Agent)
		if !res.Succeeded() {
			reason := res.Error
			if reason == "" {
				reason = "no analysis returned"
			}
			fmt.Fprintf(&sb, "## %s unavailable: %s\n\n---\n\n", label, reason)
			continue
		}
		fmt.Fprintf(&sb, "## %s report (model used: %s)\n\n%s\n\n---\n\n", label, res.ModelUsed, strings.TrimSpace(res.Analysis))
	}

	sb.WriteString("Expert summary table rows, in this order:\n")
	for i, res := range results {
		model := res.ModelUsed
		if !res.Succeeded() {
			model = "unavailable"
		}
		fmt.Fprintf(&sb, "- %s | %s\n", expertLabel(i, res.Agent), model)
	}
	return sb.String()
}

func expertLabel(i int, id models.AgentIdentity) string {
	if id.Style != "" {
		return fmt.Sprintf("Expert %d (%s, %s)", i+1, id.Name, id.Style)
	}
	return fmt.Sprintf("Expert %d (%s)", i+1, id.Name)
}

func countSucceeded(results []models.AnalysisResult) int {
	n := 0
	for _, r := range results {
		if r.Succeeded() {
			n++
		}
	}
	return n
}
