// Package bridge exposes the council to a host application through string-in, string-out calls
// and a single event callback.
package bridge

import (
	"encoding/json"

	"github.com/dyike/AnalystCouncil/models"
)

type NotifyFunc func(topic string, payload string)

var impl NotifyFunc

// SetNotifyImpl installs the host callback; the cgo entry point calls it once.
func SetNotifyImpl(f NotifyFunc) {
	impl = f
}

// Notify sends one event to the host, if a callback is installed.
func Notify(topic string, payload string) {
	if impl != nil {
		impl(topic, payload)
	}
}

// ObserveExpert publishes each finished expert as a council.expert_finished event.
func ObserveExpert(res models.AnalysisResult) {
	payload, err := json.Marshal(map[string]any{
		"agent_id":   res.Agent.ID,
		"agent_name": res.Agent.Name,
		"status":     res.Status,
		"model_used": res.ModelUsed,
		"error":      res.Error,
		"elapsed_ms": res.ElapsedMS,
	})
	if err != nil {
		return
	}
	Notify("council.expert_finished", string(payload))
}
