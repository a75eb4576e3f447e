package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dayforge/dayforge/internal/auth"
	"github.com/dayforge/dayforge/internal/buffer"
	"github.com/dayforge/dayforge/internal/delegation"
	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/energy"
	"github.com/dayforge/dayforge/internal/profiler"
	"github.com/dayforge/dayforge/internal/relay"
	"github.com/dayforge/dayforge/internal/store"
)

// Server is the single API struct every handler hangs off, routing
// requests to the owning subsystem (tasks, drafts, energy, profile).
type Server struct {
	buf          *buffer.Buffer
	kv           store.KV
	orchestrator *relay.Orchestrator
	energyMon    *energy.Monitor
	delegation   *delegation.Worker
	profiler     *profiler.Engine
	hub          *relay.ClientHub
	issuer       *auth.Issuer
	idempotency  *IdempotencyStore
	history      *store.HistoryStore

	upgrader websocket.Upgrader
}

// Deps bundles every collaborator the Server routes requests to.
type Deps struct {
	Buffer       *buffer.Buffer
	KV           store.KV
	Orchestrator *relay.Orchestrator
	EnergyMon    *energy.Monitor
	Delegation   *delegation.Worker
	Profiler     *profiler.Engine
	Hub          *relay.ClientHub
	Issuer       *auth.Issuer
	History      *store.HistoryStore // optional, nil when DAYFORGE_POSTGRES_DSN is unset
}

// NewServer constructs a Server wired to deps.
func NewServer(deps Deps) *Server {
	return &Server{
		buf:          deps.Buffer,
		kv:           deps.KV,
		orchestrator: deps.Orchestrator,
		energyMon:    deps.EnergyMon,
		delegation:   deps.Delegation,
		profiler:     deps.Profiler,
		hub:          deps.Hub,
		issuer:       deps.Issuer,
		history:      deps.History,
		idempotency:  NewIdempotencyStore(time.Hour),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the full http.Handler, authenticated via
// s.issuer.Middleware on everything but /health and /metrics.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("/schedule", s.handleGetSchedule)
	protected.HandleFunc("/schedule/plan-day", s.withIdempotency(s.handlePlanDay))
	protected.HandleFunc("/schedule/intelligence", s.handleScheduleIntelligence)
	protected.HandleFunc("/schedule/timeline", s.handleTimeline)
	protected.HandleFunc("/disruption", s.withIdempotency(s.handleDisruption))
	protected.HandleFunc("/energy", s.handleEnergy)
	protected.HandleFunc("/energy/status", s.handleEnergyStatus)
	protected.HandleFunc("/tasks", s.withIdempotency(s.handleTasks))
	protected.HandleFunc("/tasks/", s.handleTaskByID)
	protected.HandleFunc("/drafts", s.handleDrafts)
	protected.HandleFunc("/drafts/", s.handleDraftByID)
	protected.HandleFunc("/profile", s.handleProfile)
	protected.HandleFunc("/profile/linkedin", s.handleLinkedInProfile)
	protected.HandleFunc("/ws", s.handleWebSocket)

	mux.Handle("/", s.issuer.Middleware(protected))

	return corsMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a structured error object; invalid client input
// responds with one and never mutates state.
func writeError(w http.ResponseWriter, kind domain.ErrorKind, message string) {
	status := http.StatusInternalServerError
	switch kind {
	case domain.ErrNotFound:
		status = http.StatusNotFound
	case domain.ErrInvalidInput:
		status = http.StatusBadRequest
	case domain.ErrConflict:
		status = http.StatusConflict
	case domain.ErrCapacity:
		status = http.StatusConflict
	case domain.ErrAuth:
		status = http.StatusUnauthorized
	case domain.ErrTimeout:
		status = http.StatusGatewayTimeout
	case domain.ErrExternalUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": string(kind), "message": message})
}

func writeDomainErr(w http.ResponseWriter, err error) {
	if de, ok := err.(*domain.DomainError); ok {
		writeError(w, de.Kind, de.Message)
		return
	}
	writeError(w, domain.ErrExternalUnavailable, err.Error())
}

// requestContext returns a context bounded by the default 10s
// external-call deadline for handlers that fan out to I/O.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 10*time.Second)
}
