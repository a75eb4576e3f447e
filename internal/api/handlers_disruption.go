package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dayforge/dayforge/internal/domain"
)

// disruptionRequest is the POST /disruption body: a raw context-change
// signal, submitted either by a real Context Poller or by a client
// simulating one for testing.
type disruptionRequest struct {
	EventType       string         `json:"event_type"`
	Source          string         `json:"source"`
	AffectedTaskIDs []string       `json:"affected_task_ids"`
	Metadata        map[string]any `json:"metadata"`
}

func (req disruptionRequest) validate() error {
	if req.EventType == "" {
		return domain.NewError(domain.ErrInvalidInput, "event_type is required")
	}
	if req.Source == "" {
		return domain.NewError(domain.ErrInvalidInput, "source is required")
	}
	return nil
}

// handleDisruption serves POST /disruption, feeding a raw event through the
// same classify -> MTS/LTS -> STS -> broadcast pipeline the Context Poller
// drives internally.
func (s *Server) handleDisruption(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, domain.ErrInvalidInput, "method not allowed")
		return
	}
	var req disruptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput, "malformed request body: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeDomainErr(w, err)
		return
	}

	event := domain.ContextChangeEvent{
		EventType:       domain.ContextChangeEventType(req.EventType),
		Source:          req.Source,
		Timestamp:       time.Now(),
		AffectedTaskIDs: req.AffectedTaskIDs,
		Metadata:        req.Metadata,
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	disruption := s.orchestrator.HandleContextChange(ctx, event)
	writeJSON(w, http.StatusOK, disruption)
}
