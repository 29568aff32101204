package handler

import (
	"net/http"
)

// StatusHandler serves the backend status (mode, trigger policy) for UIs.
type StatusHandler struct {
	Mode          string
	TriggerPolicy string
}

// NewStatusHandler creates a StatusHandler with the given mode and policy name.
func NewStatusHandler(mode, triggerPolicy string) *StatusHandler {
	return &StatusHandler{Mode: mode, TriggerPolicy: triggerPolicy}
}

// GetStatus responds with the current backend mode and funding trigger policy.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"trigger_policy": h.TriggerPolicy,
	})
}
