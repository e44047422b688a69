package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dyike/AnalystCouncil/internal/processing"
	"github.com/dyike/AnalystCouncil/models"
	"github.com/dyike/AnalystCouncil/pkg/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    subject TEXT NOT NULL,
    quote_symbol TEXT,
    system_status TEXT NOT NULL,
    status_message TEXT,
    succeeded INTEGER NOT NULL,
    chair_status TEXT NOT NULL,
    chair_model TEXT,
    chair_report TEXT,
    verdict TEXT,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS expert_results (
    report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    agent_id TEXT NOT NULL,
    agent_name TEXT NOT NULL,
    status TEXT NOT NULL,
    model_used TEXT,
    stance TEXT,
    analysis TEXT NOT NULL DEFAULT '',
    error TEXT,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (report_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
`

// SQLite stores one reports row and five expert_results rows per run.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sqlite.Open(path, sqliteSchema)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Append(ctx context.Context, report *models.CouncilReport) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var symbol, verdict string
	if report.Quote != nil {
		symbol = report.Quote.Symbol
	}
	if report.Chair.Succeeded() {
		verdict = processing.Stance(report.Chair.Analysis)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO reports (id, subject, quote_symbol, system_status, status_message, succeeded,
    chair_status, chair_model, chair_report, verdict, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, report.ID, report.Subject, symbol, string(report.SystemStatus), report.StatusMessage,
		report.SucceededExperts(), string(report.Chair.Status), report.Chair.ModelUsed,
		report.Chair.Analysis, verdict, report.Timestamp)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	for i, res := range report.ExpertAnalyses {
		var stance string
		if res.Succeeded() {
			stance = processing.Stance(res.Analysis)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO expert_results (report_id, seq, agent_id, agent_name, status, model_used, stance, analysis, error, elapsed_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(report_id, seq) DO NOTHING
`, report.ID, i+1, res.Agent.ID, res.Agent.Name, string(res.Status), res.ModelUsed, stance,
			res.Analysis, res.Error, res.ElapsedMS)
		if err != nil {
			return fmt.Errorf("insert expert result: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	return nil
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]models.ReportRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, subject, system_status, succeeded, COALESCE(chair_model, ''), COALESCE(verdict, ''), created_at
FROM reports
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []models.ReportRecord
	for rows.Next() {
		var (
			rec       models.ReportRecord
			status    string
			createdAt time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.Subject, &status, &rec.Succeeded, &rec.ChairModel, &rec.Verdict, &createdAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		rec.SystemStatus = models.SystemStatus(status)
		rec.CreatedAt = createdAt
		out = append(out, rec)
	}
	return out, rows.Err()
}
