// Package history persists council reports. Every sink is append-only; a failing sink never
// affects the report a caller already holds.
package history

import (
	"context"
	"errors"

	"github.com/dyike/AnalystCouncil/models"
)

// ErrDisabled is returned by readers when no queryable history store is configured.
var ErrDisabled = errors.New("history store not configured")

type Sink interface {
	Append(ctx context.Context, report *models.CouncilReport) error
}

// Reader lists stored runs, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]models.ReportRecord, error)
}

// Multi appends to every sink and joins their errors.
type Multi []Sink

func (m Multi) Append(ctx context.Context, report *models.CouncilReport) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Record summarises report for listings.
func Record(report *models.CouncilReport, verdict string) models.ReportRecord {
	rec := models.ReportRecord{
		ID:           report.ID,
		Subject:      report.Subject,
		SystemStatus: report.SystemStatus,
		Succeeded:    report.SucceededExperts(),
		CreatedAt:    report.Timestamp,
	}
	if report.Chair.Succeeded() {
		rec.ChairModel = report.Chair.ModelUsed
		rec.Verdict = verdict
	}
	return rec
}
