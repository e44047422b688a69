package models

import "time"

// ReportRecord is one stored council run as listed by the history command and API.
type ReportRecord struct {
	ID           string       `json:"id"`
	Subject      string       `json:"subject"`
	SystemStatus SystemStatus `json:"system_status"`
	Succeeded    int          `json:"succeeded"`
	ChairModel   string       `json:"chair_model,omitempty"`
	Verdict      string       `json:"verdict,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
