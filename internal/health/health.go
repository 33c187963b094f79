// Package health exposes the reconciler's status over HTTP, for the menu
// bar app (or anything else) to display.
package health

import (
	"encoding/json"
	"net/http"

	"github.com/clambin/meeting-light/internal/reconciler"
)

// StatusReporter returns the current reconciler status.
type StatusReporter interface {
	GetStatus() reconciler.Status
}

// Health serves the reconciler's status as JSON.
type Health struct {
	Reporter StatusReporter
}

func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(h.Reporter.GetStatus()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
