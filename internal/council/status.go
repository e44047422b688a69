package council

import (
	"fmt"
	"strings"

	"github.com/dyike/AnalystCouncil/models"
)

// SystemStatus is all_ok when every expert and the chair succeeded, all_failed when every expert
// failed, and partial otherwise.
func SystemStatus(experts []models.AnalysisResult, chair models.AnalysisResult) models.SystemStatus {
	succeeded := 0
	for _, r := range experts {
		if r.Succeeded() {
			succeeded++
		}
	}
	switch {
	case succeeded == 0:
		return models.SystemAllFailed
	case succeeded == len(experts) && chair.Succeeded():
		return models.SystemAllOK
	default:
		return models.SystemPartial
	}
}

func StatusMessage(report *models.CouncilReport) string {
	total := len(report.ExpertAnalyses)
	succeeded := report.SucceededExperts()

	switch report.SystemStatus {
	case models.SystemAllOK:
		return fmt.Sprintf("This verdict combines the views of all %d experts.", total)
	case models.SystemAllFailed:
		return fmt.Sprintf("All %d experts failed; no verdict could be produced.", total)
	}

	var parts []string
	if succeeded < total {
		var missing []string
		for _, r := range report.FailedExperts() {
			missing = append(missing, r.Agent.Name)
		}
		parts = append(parts, fmt.Sprintf("Only %d of %d experts reported (missing: %s).",
			succeeded, total, strings.Join(missing, ", ")))
	} else {
		parts = append(parts, fmt.Sprintf("All %d experts reported.", total))
	}
	if !report.Chair.Succeeded() {
		parts = append(parts, "The chair could not produce a synthesis.")
	}
	return strings.Join(parts, " ")
}
