package api

import (
	"encoding/json"
	"net/http"

	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/relay"
)

type energyReportRequest struct {
	Level int `json:"level"`
}

// handleEnergy serves POST /energy: a user-reported energy override,
// valid for the 2h decay window.
func (s *Server) handleEnergy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, domain.ErrInvalidInput, "method not allowed")
		return
	}
	var req energyReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput, "malformed request body: "+err.Error())
		return
	}
	if req.Level < 1 || req.Level > 5 {
		writeError(w, domain.ErrInvalidInput, "level must be in [1,5]")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	level, err := s.orchestrator.HandleEnergyReport(ctx, req.Level)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, relay.NewEnergyView(level))
}

// handleEnergyStatus serves GET /energy/status: the currently computed
// EnergyLevel without mutating anything.
func (s *Server) handleEnergyStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, domain.ErrInvalidInput, "method not allowed")
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	level := s.energyMon.Current(ctx)
	writeJSON(w, http.StatusOK, relay.NewEnergyView(level))
}
