package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/relay"
)

// handleGetSchedule serves GET /schedule: the active/in-progress task,
// ordered queue, backlog, current energy and per-class queue counts, under
// its own keys (current, queue, backlog, energy, queue_counts) rather than
// the `updated_schedule` envelope's shape.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, domain.ErrInvalidInput, "method not allowed")
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	now := time.Now()
	level := s.energyMon.Current(ctx)
	scheduler := s.orchestrator.Scheduler()
	ordered := scheduler.GetOrderedSchedule(level.Level)

	views := make([]relay.TaskView, 0, len(ordered))
	for _, t := range ordered {
		views = append(views, relay.NewTaskView(t, now))
	}

	backlog := s.buf.ListBacklog()
	backlogViews := make([]relay.TaskView, 0, len(backlog))
	for _, t := range backlog {
		backlogViews = append(backlogViews, relay.NewTaskView(t, now))
	}

	var current *relay.TaskView
	if cur := scheduler.GetCurrent(); cur != nil {
		v := relay.NewTaskView(cur, now)
		current = &v
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current":      current,
		"queue":        views,
		"backlog":      backlogViews,
		"energy":       relay.NewEnergyView(level),
		"queue_counts": scheduler.QueueCounts(),
	})
}

type planDayRequest struct {
	AvailableHours int `json:"available_hours"`
}

// handlePlanDay serves POST /schedule/plan-day, running the Long-Term
// Scheduler for the day and installing the resulting STS.
func (s *Server) handlePlanDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, domain.ErrInvalidInput, "method not allowed")
		return
	}
	var req planDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput, "malformed request body: "+err.Error())
		return
	}
	if req.AvailableHours <= 0 {
		writeError(w, domain.ErrInvalidInput, "available_hours must be a positive integer")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	selected := s.orchestrator.PlanDay(ctx, req.AvailableHours)

	now := time.Now()
	views := make([]relay.TaskView, 0, len(selected))
	for _, t := range selected {
		views = append(views, relay.NewTaskView(t, now))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"selected": views})
}

// handleScheduleIntelligence serves GET /schedule/intelligence: the current
// STS class distribution plus the profile-derived planning parameters in
// effect, so a client can explain *why* the schedule looks the way it does.
func (s *Server) handleScheduleIntelligence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, domain.ErrInvalidInput, "method not allowed")
		return
	}
	scheduler := s.orchestrator.Scheduler()
	peakHours, estBias := s.orchestrator.Profile()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue_counts":        scheduler.QueueCounts(),
		"total_tasks":         scheduler.TotalCount(),
		"bucket_distribution": s.buf.BucketDistribution(),
		"peak_hours":          peakHours,
		"estimation_bias":     estBias,
	})
}

// handleTimeline serves GET /schedule/timeline: the bounded disruption
// ledger, optionally filtered to a single `disruption_id`, for post-hoc
// debugging of how a disruption was handled.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, domain.ErrInvalidInput, "method not allowed")
		return
	}
	if id := r.URL.Query().Get("disruption_id"); id != "" {
		writeJSON(w, http.StatusOK, s.orchestrator.Timeline().ForDisruption(id))
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.Timeline().Recent(200))
}
