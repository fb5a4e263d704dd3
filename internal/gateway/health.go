package gateway

import (
	"encoding/json"
	"net/http"
)

// healthResponse is the JSON body for GET /healthz.
type healthResponse struct {
	Status string `json:"status"`
}

// handleHealthz always reports ok: ccrelay has no upstream health probing
// of its own, so the only thing worth reporting is that the process is
// accepting connections.
func (g *Gateway) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}
