package models

import "time"

// AgentStatus is the outcome of one agent run after the primary/fallback policy has been applied.
type AgentStatus string

const (
	StatusOK         AgentStatus = "ok"
	StatusFallbackOK AgentStatus = "fallback_ok"
	StatusFailed     AgentStatus = "failed"
)

func (s AgentStatus) Succeeded() bool {
	return s == StatusOK || s == StatusFallbackOK
}

type SystemStatus string

const (
	SystemAllOK     SystemStatus = "all_ok"
	SystemPartial   SystemStatus = "partial"
	SystemAllFailed SystemStatus = "all_failed"
)

// AgentIdentity is fixed at council construction and never mutated.
type AgentIdentity struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Style         string `json:"style,omitempty"`
	Persona       string `json:"-"`
	PrimaryModel  string `json:"primary_model"`
	FallbackModel string `json:"fallback_model,omitempty"`
}

type AnalysisRequest struct {
	Subject string `json:"subject"`
	// QuoteContext is empty when no market data could be fetched.
	QuoteContext string    `json:"quote_context,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type AnalysisResult struct {
	Agent     AgentIdentity `json:"agent"`
	Status    AgentStatus   `json:"status"`
	ModelUsed string        `json:"model_used,omitempty"`
	// Analysis is empty when Status is failed.
	Analysis  string `json:"analysis,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func (r AnalysisResult) Succeeded() bool {
	return r.Status.Succeeded()
}

type CouncilReport struct {
	ID             string           `json:"id"`
	Subject        string           `json:"subject"`
	Quote          *QuoteSnapshot   `json:"quote,omitempty"`
	ExpertAnalyses []AnalysisResult `json:"expert_analyses"`
	Chair          AnalysisResult   `json:"chair"`
	SystemStatus   SystemStatus     `json:"system_status"`
	StatusMessage  string           `json:"status_message"`
	Timestamp      time.Time        `json:"timestamp"`
}

func (r *CouncilReport) SucceededExperts() int {
	n := 0
	for _, res := range r.ExpertAnalyses {
		if res.Succeeded() {
			n++
		}
	}
	return n
}

func (r *CouncilReport) FailedExperts() []AnalysisResult {
	var failed []AnalysisResult
	for _, res := range r.ExpertAnalyses {
		if !res.Succeeded() {
			failed = append(failed, res)
		}
	}
	return failed
}
