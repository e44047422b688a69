package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dyike/AnalystCouncil/models"
)

const markdownHeader = "# Analyst Council - Analysis History\n\n" +
	"This file records each expert's analysis and the chair's combined report.\n\n" +
	"## History\n\n---\n"

// Markdown appends human-readable entries to a single file, writing the header once.
type Markdown struct {
	path string
	mu   sync.Mutex
}

func NewMarkdown(path string) *Markdown {
	return &Markdown{path: path}
}

func (m *Markdown) Path() string {
	return m.path
}

func (m *Markdown) Append(ctx context.Context, report *models.CouncilReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat history file: %w", err)
	}
	var b strings.Builder
	if info.Size() == 0 {
		b.WriteString(markdownHeader)
	}
	writeEntry(&b, report)

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	return nil
}

func writeEntry(b *strings.Builder, report *models.CouncilReport) {
	fmt.Fprintf(b, "\n## %s - %s\n\n", report.Timestamp.Format("2006-01-02 15:04:05"), report.Subject)

	if q := report.Quote; q != nil {
		fmt.Fprintf(b, "**Instrument**: %s\n", q.DisplayName())
		fmt.Fprintf(b, "**Reference date**: %s\n", q.Timestamp.Format("2006-01-02"))
		fmt.Fprintf(b, "**Last close**: %s %s\n\n", q.LastPrice.StringFixed(2), q.Currency)
	}
	fmt.Fprintf(b, "**System status**: %s (%s)\n\n", report.SystemStatus, report.StatusMessage)

	if report.Chair.Succeeded() {
		fmt.Fprintf(b, "### Council Chair Final Report (%s)\n\n%s\n\n---\n\n### Individual Expert Analyses\n\n",
			report.Chair.ModelUsed, strings.TrimSpace(report.Chair.Analysis))
	} else {
		b.WriteString("### Expert Analyses\n\n")
	}

	for _, res := range report.ExpertAnalyses {
		if !res.Succeeded() {
			continue
		}
		text := strings.TrimSpace(res.Analysis)
		if text == "" {
			text = "No analysis text was returned."
		}
		fmt.Fprintf(b, "#### %s (%s)\n%s\n\n---\n", res.Agent.Name, res.ModelUsed, text)
	}

	failed := report.FailedExperts()
	if !report.Chair.Succeeded() && report.Chair.Error != "" {
		failed = append(failed, report.Chair)
	}
	if len(failed) > 0 {
		b.WriteString("\n### Failed Agents\n")
		for _, res := range failed {
			fmt.Fprintf(b, "- **%s**: %s\n", res.Agent.Name, res.Error)
		}
		b.WriteString("\n")
	}
}
