package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dyike/AnalystCouncil/internal/processing"
	"github.com/dyike/AnalystCouncil/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F59E0B"))

	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	fallbackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// ResultsDisplay renders council output to a terminal.
type ResultsDisplay struct {
	out io.Writer
}

func NewResultsDisplay(out io.Writer) *ResultsDisplay {
	if out == nil {
		out = os.Stdout
	}
	return &ResultsDisplay{out: out}
}

// Report prints the status banner, the chair synthesis, the summary table and every expert analysis.
func (d *ResultsDisplay) Report(report *models.CouncilReport) {
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, headerStyle.Render(reportHeader(report)))
	fmt.Fprintln(d.out, statusStyle(report.SystemStatus).Render(report.StatusMessage))
	fmt.Fprintln(d.out)

	if report.Chair.Succeeded() {
		fmt.Fprintln(d.out, titleStyle.Render(fmt.Sprintf("Council Chair (%s)", report.Chair.ModelUsed)))
		fmt.Fprintln(d.out, strings.TrimSpace(report.Chair.Analysis))
	} else {
		fmt.Fprintln(d.out, failedStyle.Render("Council Chair: "+report.Chair.Error))
	}
	fmt.Fprintln(d.out)

	fmt.Fprintln(d.out, sectionStyle.Render("Expert summary"))
	fmt.Fprintln(d.out, Summary(report.ExpertAnalyses))
	fmt.Fprintln(d.out)

	for _, res := range report.ExpertAnalyses {
		if !res.Succeeded() {
			continue
		}
		fmt.Fprintln(d.out, sectionStyle.Render(fmt.Sprintf("%s (%s)", res.Agent.Name, res.ModelUsed)))
		fmt.Fprintln(d.out, strings.TrimSpace(res.Analysis))
		fmt.Fprintln(d.out)
	}
}

// Checkpoint prints what the operator sees before approving the chair synthesis.
func (d *ResultsDisplay) Checkpoint(subject string, results []models.AnalysisResult) {
	succeeded := 0
	for _, res := range results {
		if res.Succeeded() {
			succeeded++
		}
	}
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, headerStyle.Render(fmt.Sprintf("%s: %d of %d experts reported", subject, succeeded, len(results))))
	fmt.Fprintln(d.out, Summary(results))
	for _, res := range results {
		if res.Succeeded() {
			fmt.Fprintf(d.out, "  %s: %s\n", res.Agent.Name, mutedStyle.Render(processing.OneLine(res.Analysis, 100)))
		}
	}
	fmt.Fprintln(d.out)
}

// Progress prints one line as each expert finishes.
func (d *ResultsDisplay) Progress(res models.AnalysisResult, done, total int) {
	line := fmt.Sprintf("[%d/%d] %s %s", done, total, res.Agent.Name, statusLabel(res))
	if !res.Succeeded() {
		line += ": " + processing.OneLine(res.Error, 80)
	}
	fmt.Fprintln(d.out, statusStyleFor(res.Status).Render(line))
}

func (d *ResultsDisplay) Info(message string) {
	fmt.Fprintln(d.out, lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Render(message))
}

func (d *ResultsDisplay) Error(err error) {
	fmt.Fprintln(d.out, failedStyle.Render("Error: "+err.Error()))
}

// Summary renders one row per expert: name, model actually used, extracted stance.
func Summary(results []models.AnalysisResult) string {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		model, stance := "-", "unavailable"
		if res.Succeeded() {
			model = res.ModelUsed
			stance = processing.Stance(res.Analysis)
		}
		rows = append(rows, []string{res.Agent.Name, model, stance, statusLabel(res)})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("Expert", "Model used", "Opinion", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return base.Bold(true)
			}
			if col == 3 && row >= 0 && row < len(results) {
				return base.Inherit(statusStyleFor(results[row].Status))
			}
			return base
		})
	return t.String()
}

func reportHeader(report *models.CouncilReport) string {
	subject := report.Subject
	if report.Quote != nil {
		subject = report.Quote.DisplayName()
	}
	header := fmt.Sprintf("Analyst Council | %s | %s", subject, report.Timestamp.Format("2006-01-02 15:04"))
	if q := report.Quote; q != nil && !q.LastPrice.IsZero() {
		header += fmt.Sprintf(" | %s %s", q.LastPrice.StringFixed(2), q.Currency)
	}
	return header
}

func statusLabel(res models.AnalysisResult) string {
	switch res.Status {
	case models.StatusOK:
		return "ok"
	case models.StatusFallbackOK:
		return "fallback"
	}
	return "failed"
}

func statusStyleFor(status models.AgentStatus) lipgloss.Style {
	switch status {
	case models.StatusOK:
		return okStyle
	case models.StatusFallbackOK:
		return fallbackStyle
	}
	return failedStyle
}

func statusStyle(status models.SystemStatus) lipgloss.Style {
	switch status {
	case models.SystemAllOK:
		return okStyle
	case models.SystemPartial:
		return fallbackStyle
	}
	return failedStyle
}
