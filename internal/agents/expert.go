package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/AnalystCouncil/internal/llm"
	"github.com/dyike/AnalystCouncil/models"
	"github.com/sirupsen/logrus"
)

const expertUserTemplate = `{quote_block}Subject
Instrument: {subject}
Analysis date: {date}

Please cover:
1. Business model and core competitive advantage
2. Financial health and profitability
3. Valuation{valuation_basis}
4. Investment opinion (Strong Buy / Buy / Hold / Sell / Strong Sell), on its own line as "Investment opinion: ..."
5. Key risk factors

Give specific, practical advice.`

// Expert is one council persona. All five experts share this type and differ only by identity.
type Expert struct {
	runner
	template prompt.ChatTemplate
}

func NewExpert(identity models.AgentIdentity, client llm.Client, opts Options, log logrus.FieldLogger) *Expert {
	return &Expert{
		runner: newRunner(identity, client, opts, log),
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage("{system_message}"),
			schema.UserMessage(expertUserTemplate),
		),
	}
}

func (e *Expert) Identity() models.AgentIdentity {
	return e.identity
}

// Analyze runs the persona against req. A missing quote context only drops the price block.
func (e *Expert) Analyze(ctx context.Context, req models.AnalysisRequest) models.AnalysisResult {
	msgs, err := e.Messages(ctx, req)
	if err != nil {
		return e.failed(fmt.Sprintf("build prompt: %v", err))
	}
	return e.run(ctx, msgs)
}

// Messages renders the prompt sent to the model for req.
func (e *Expert) Messages(ctx context.Context, req models.AnalysisRequest) ([]*schema.Message, error) {
	quoteBlock := ""
	valuationBasis := " based on current public information"
	if req.QuoteContext != "" {
		quoteBlock = "Base your evaluation on the reference information below.\n\n" + req.QuoteContext + "\n"
		valuationBasis = " against the most recent close given above"
	}
	return e.template.Format(ctx, map[string]any{
		"system_message":  e.identity.Persona,
		"quote_block":     quoteBlock,
		"subject":         req.Subject,
		"date":            req.Timestamp.Format("2006-01-02"),
		"valuation_basis": valuationBasis,
	})
}
