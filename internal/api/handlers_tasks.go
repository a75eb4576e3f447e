package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dayforge/dayforge/internal/domain"
)

// createTaskRequest is the POST /tasks body.
type createTaskRequest struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Priority       *int       `json:"priority,omitempty"`
	EnergyCost     int        `json:"energy_cost"`
	CognitiveLoad  int        `json:"cognitive_load"`
	EstimatedMins  int        `json:"estimated_duration"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	PreferredStart *time.Time `json:"preferred_start,omitempty"`
	TaskType       string     `json:"task_type"`
}

func (req createTaskRequest) validate() error {
	if strings.TrimSpace(req.Title) == "" {
		return domain.NewError(domain.ErrInvalidInput, "title is required")
	}
	if req.EstimatedMins <= 0 {
		return domain.NewError(domain.ErrInvalidInput, "estimated_duration must be a positive integer")
	}
	if req.EnergyCost < 1 || req.EnergyCost > 5 {
		return domain.NewError(domain.ErrInvalidInput, "energy_cost must be in [1,5]")
	}
	if req.CognitiveLoad < 1 || req.CognitiveLoad > 5 {
		return domain.NewError(domain.ErrInvalidInput, "cognitive_load must be in [1,5]")
	}
	return nil
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createTask(w, r)
	default:
		writeError(w, domain.ErrInvalidInput, "method not allowed")
	}
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput, "malformed request body: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeDomainErr(w, err)
		return
	}

	priority := domain.PriorityP2Normal
	if req.Priority != nil {
		priority = domain.Priority(*req.Priority)
	}

	now := time.Now()
	task := &domain.Task{
		ID:             "task-" + uuid.NewString(),
		Title:          req.Title,
		Description:    req.Description,
		Priority:       priority,
		EnergyCost:     req.EnergyCost,
		CognitiveLoad:  req.CognitiveLoad,
		EstimatedMins:  req.EstimatedMins,
		Deadline:       req.Deadline,
		PreferredStart: req.PreferredStart,
		TaskType:       req.TaskType,
		Status:         domain.StatusBacklog,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	if err := s.buf.Put(ctx, task); err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleTaskByID dispatches /tasks/{id}, /tasks/{id}/start, and
// /tasks/{id}/complete by splitting the path manually.
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/tasks/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, domain.ErrInvalidInput, "task id is required")
		return
	}
	taskID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.deleteTask(w, r, taskID)
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getTask(w, r, taskID)
	case len(parts) == 2 && parts[1] == "start" && r.Method == http.MethodPost:
		s.startTask(w, r, taskID)
	case len(parts) == 2 && parts[1] == "complete" && r.Method == http.MethodPost:
		s.completeTask(w, r, taskID)
	default:
		writeError(w, domain.ErrNotFound, "no matching route")
	}
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request, taskID string) {
	t, ok := s.buf.Get(taskID)
	if !ok {
		writeError(w, domain.ErrNotFound, "task not found: "+taskID)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request, taskID string) {
	ctx, cancel := requestContext(r)
	defer cancel()
	if err := s.buf.Delete(ctx, taskID); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startTask(w http.ResponseWriter, r *http.Request, taskID string) {
	t, ok := s.buf.Get(taskID)
	if !ok {
		writeError(w, domain.ErrNotFound, "task not found: "+taskID)
		return
	}
	if t.Status != domain.StatusActive {
		writeError(w, domain.ErrConflict, "task is not active: "+string(t.Status))
		return
	}
	s.orchestrator.Scheduler().SetCurrent(t)
	ctx, cancel := requestContext(r)
	defer cancel()
	if err := s.buf.Put(ctx, t); err != nil {
		writeDomainErr(w, err)
		return
	}
	s.orchestrator.BroadcastSchedule(ctx)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request, taskID string) {
	t, ok := s.buf.Get(taskID)
	if !ok {
		writeError(w, domain.ErrNotFound, "task not found: "+taskID)
		return
	}
	if t.Status == domain.StatusCompleted {
		writeError(w, domain.ErrConflict, "task already completed")
		return
	}
	t.Status = domain.StatusCompleted
	ctx, cancel := requestContext(r)
	defer cancel()
	if err := s.buf.Put(ctx, t); err != nil {
		writeDomainErr(w, err)
		return
	}
	if err := s.energyMon.RecordCompletion(ctx, t.ID, t.EstimatedMins, t.EstimatedMins); err != nil {
		s.orchestrator.EmitActivity(ctx, "energy_monitor", "failed to record completion: "+err.Error(), "warning")
	}
	if s.history != nil {
		if err := s.history.RecordTaskCompletion(ctx, t); err != nil {
			s.orchestrator.EmitActivity(ctx, "history", "failed to record task history: "+err.Error(), "warning")
		}
	}
	s.orchestrator.Scheduler().ClearCurrent()
	s.orchestrator.BroadcastSchedule(ctx)
	writeJSON(w, http.StatusOK, t)
}
