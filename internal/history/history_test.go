package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/AnalystCouncil/models"
)

func sampleReport(id string, at time.Time, failed ...int) *models.CouncilReport {
	names := []string{"Warren Buffett", "Peter Lynch", "Ray Dalio", "James Simons", "Mark Minervini"}
	report := &models.CouncilReport{
		ID:      id,
		Subject: "AAPL",
		Quote: &models.QuoteSnapshot{
			Symbol:    "AAPL",
			Name:      "Apple Inc.",
			Currency:  "USD",
			LastPrice: decimal.RequireFromString("190.5"),
			Timestamp: at,
		},
		Timestamp: at,
		Chair: models.AnalysisResult{
			Agent:     models.AgentIdentity{ID: "chairman", Name: "Council Chair"},
			Status:    models.StatusOK,
			ModelUsed: "anthropic/claude-sonnet-4",
			Analysis:  "## Final Report\n* **Investment opinion**: Cautious Buy",
		},
	}
	for i, name := range names {
		res := models.AnalysisResult{
			Agent:     models.AgentIdentity{ID: strings.ToLower(strings.ReplaceAll(name, " ", "_")), Name: name},
			Status:    models.StatusOK,
			ModelUsed: "anthropic/claude-sonnet-4",
			Analysis:  name + " says: Investment opinion: Hold",
		}
		for _, f := range failed {
			if f == i {
				res.Status = models.StatusFailed
				res.ModelUsed = "gpt-5"
				res.Analysis = ""
				res.Error = "primary anthropic/claude-sonnet-4: timeout; fallback gpt-5: timeout"
			}
		}
		report.ExpertAnalyses = append(report.ExpertAnalyses, res)
	}
	report.SystemStatus = models.SystemAllOK
	if len(failed) > 0 {
		report.SystemStatus = models.SystemPartial
	}
	report.StatusMessage = "status"
	return report
}

func TestMarkdownHeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ANALYSIS_HISTORY.md")
	sink := NewMarkdown(path)
	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.Local)

	if err := sink.Append(context.Background(), sampleReport("r1", at)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := sink.Append(context.Background(), sampleReport("r2", at.Add(time.Hour), 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)
	if n := strings.Count(text, "# Analyst Council - Analysis History"); n != 1 {
		t.Fatalf("header written %d times", n)
	}
	if !strings.Contains(text, "## 2024-03-15 10:30:00 - AAPL") || !strings.Contains(text, "## 2024-03-15 11:30:00 - AAPL") {
		t.Fatalf("missing entry headings:\n%s", text)
	}
	if !strings.Contains(text, "**Last close**: 190.50 USD") {
		t.Fatalf("missing quote block:\n%s", text)
	}

	second := text[strings.Index(text, "11:30:00"):]
	chair := strings.Index(second, "Council Chair Final Report")
	expert := strings.Index(second, "#### Warren Buffett")
	if chair < 0 || expert < 0 || chair > expert {
		t.Fatalf("chair report must precede expert sections:\n%s", second)
	}
	if strings.Contains(second, "#### Ray Dalio") {
		t.Fatalf("failed expert must not get an analysis section")
	}
	if !strings.Contains(second, "### Failed Agents\n- **Ray Dalio**: primary") {
		t.Fatalf("failed expert not listed:\n%s", second)
	}
}

func TestMarkdownConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.md")
	sink := NewMarkdown(path)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sink.Append(context.Background(), sampleReport("r", time.Now()))
		}()
	}
	wg.Wait()

	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "# Analyst Council - Analysis History"); n != 1 {
		t.Fatalf("header written %d times", n)
	}
	if n := strings.Count(string(data), "### Council Chair Final Report"); n != 8 {
		t.Fatalf("expected 8 entries, got %d", n)
	}
}

func TestSQLiteAppendAndRecent(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "council.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)
	ctx := context.Background()
	if err := store.Append(ctx, sampleReport("older", base)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	newer := sampleReport("newer", base.Add(time.Hour), 0, 1)
	newer.Chair = models.AnalysisResult{Status: models.StatusFailed, Error: "timeout"}
	if err := store.Append(ctx, newer); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// the same report id is stored once
	if err := store.Append(ctx, newer); err != nil {
		t.Fatalf("duplicate Append: %v", err)
	}

	recs, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ID != "newer" || recs[0].Succeeded != 3 || recs[0].Verdict != "" || recs[0].SystemStatus != models.SystemPartial {
		t.Fatalf("unexpected newest record %+v", recs[0])
	}
	if recs[1].ID != "older" || recs[1].Verdict != "Buy" || recs[1].ChairModel != "anthropic/claude-sonnet-4" {
		t.Fatalf("unexpected older record %+v", recs[1])
	}

	var rows int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM expert_results WHERE report_id = ? AND stance = 'Hold'`, "older").Scan(&rows); err != nil || rows != 5 {
		t.Fatalf("expert rows = %d, %v", rows, err)
	}

	limited, err := store.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit not applied: %d, %v", len(limited), err)
	}
}

type recordingSink struct {
	n   int
	err error
}

func (r *recordingSink) Append(context.Context, *models.CouncilReport) error {
	r.n++
	return r.err
}

func TestMultiAppendsToEverySink(t *testing.T) {
	boom := errors.New("disk full")
	a, b, c := &recordingSink{}, &recordingSink{err: boom}, &recordingSink{}

	err := Multi{a, nil, b, c}.Append(context.Background(), sampleReport("x", time.Now()))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if a.n != 1 || b.n != 1 || c.n != 1 {
		t.Fatalf("every sink must be called once: %d %d %d", a.n, b.n, c.n)
	}
}

func TestRecordOmitsVerdictWithoutChair(t *testing.T) {
	report := sampleReport("x", time.Now(), 0, 1, 2, 3, 4)
	report.Chair = models.AnalysisResult{Status: models.StatusFailed}
	rec := Record(report, "Buy")
	if rec.Verdict != "" || rec.ChairModel != "" || rec.Succeeded != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestNewRedisUnreachable(t *testing.T) {
	if _, err := NewRedis(RedisOptions{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected connection error")
	}
}
