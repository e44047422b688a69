package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dyike/AnalystCouncil/internal/council"
	"github.com/dyike/AnalystCouncil/internal/history"
	"github.com/dyike/AnalystCouncil/models"
)

type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// Backend is the subset of the runtime the bridge calls.
type Backend interface {
	Analyze(ctx context.Context, subject string, requireApproval bool) (*models.CouncilReport, error)
	Recent(ctx context.Context, limit int) ([]models.ReportRecord, error)
	Members() ([]models.AgentIdentity, models.AgentIdentity)
}

type analyzeParams struct {
	Subject string `json:"subject"`
}

type historyParams struct {
	Limit int `json:"limit"`
}

// Dispatch runs method with JSON params and returns a JSON Response.
func Dispatch(ctx context.Context, backend Backend, method string, paramsJSON string) string {
	if backend == nil {
		return jsonResp(503, "SDK not initialized", nil)
	}

	var result any
	var err error

	switch method {
	case "system.info":
		experts, chair := backend.Members()
		result = map[string]any{
			"experts": len(experts),
			"chair":   chair.Name,
			"time":    time.Now().Format(time.RFC3339),
		}
	case "council.members":
		experts, chair := backend.Members()
		result = map[string]any{"experts": experts, "chair": chair}
	case "council.analyze":
		var p analyzeParams
		if err := decode(paramsJSON, &p); err != nil {
			return jsonResp(400, err.Error(), nil)
		}
		var report *models.CouncilReport
		report, err = backend.Analyze(ctx, p.Subject, false)
		if errors.Is(err, council.ErrInvalidSubject) {
			return jsonResp(400, err.Error(), nil)
		}
		if err == nil {
			payload, _ := json.Marshal(map[string]any{"id": report.ID, "subject": report.Subject, "system_status": report.SystemStatus})
			Notify("council.finished", string(payload))
		}
		result = report
	case "council.history":
		p := historyParams{Limit: 20}
		if err := decode(paramsJSON, &p); err != nil {
			return jsonResp(400, err.Error(), nil)
		}
		result, err = backend.Recent(ctx, p.Limit)
		if errors.Is(err, history.ErrDisabled) {
			return jsonResp(503, err.Error(), nil)
		}
	default:
		return jsonResp(404, "Method not found", nil)
	}
	if err != nil {
		return jsonResp(500, err.Error(), nil)
	}
	return jsonResp(200, "Ok", result)
}

func decode(paramsJSON string, v any) error {
	if paramsJSON == "" {
		return nil
	}
	return json.Unmarshal([]byte(paramsJSON), v)
}

func jsonResp(code int, msg string, data any) string {
	resp := Response{Code: code, Msg: msg, Data: data}
	b, _ := json.Marshal(resp)
	return string(b)
}
