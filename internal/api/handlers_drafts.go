package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dayforge/dayforge/internal/delegation"
	"github.com/dayforge/dayforge/internal/domain"
)

// handleDrafts serves GET /drafts (list pending) and POST /drafts (manual
// delegation request) against the Delegation Worker.
func (s *Server) handleDrafts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ctx, cancel := requestContext(r)
		defer cancel()
		drafts, err := s.delegation.ListPending(ctx)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, drafts)
	case http.MethodPost:
		s.createDraft(w, r)
	default:
		writeError(w, domain.ErrInvalidInput, "method not allowed")
	}
}

// createDraftRequest is the POST /drafts body: a manual delegation of an
// existing task, bypassing the MTS/STS auto-delegation paths.
type createDraftRequest struct {
	TaskID           string            `json:"task_id"`
	Context          map[string]string `json:"context"`
	ApprovalRequired *bool             `json:"approval_required,omitempty"`
	MaxCost          float64           `json:"max_cost"`
}

func (s *Server) createDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput, "malformed request body: "+err.Error())
		return
	}
	task, ok := s.buf.Get(req.TaskID)
	if !ok {
		writeError(w, domain.ErrNotFound, "task not found: "+req.TaskID)
		return
	}
	if !domain.AutomatableTaskTypes[task.TaskType] {
		writeError(w, domain.ErrConflict, "task_type is not automatable: "+task.TaskType)
		return
	}
	if task.Status == domain.StatusCompleted || task.Status == domain.StatusDelegated {
		writeError(w, domain.ErrConflict, "task is not in a delegatable status: "+string(task.Status))
		return
	}

	delegationCtx := map[string]string{"title": task.Title, "description": task.Description}
	for k, v := range req.Context {
		delegationCtx[k] = v
	}
	approval := true
	if req.ApprovalRequired != nil {
		approval = *req.ApprovalRequired
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	task.Status = domain.StatusDelegated
	if err := s.buf.Put(ctx, task); err != nil {
		writeDomainErr(w, err)
		return
	}
	if err := s.delegation.HandleDelegation(ctx, delegation.DelegationTask{
		TaskID:           task.ID,
		TaskType:         task.TaskType,
		Context:          delegationCtx,
		ApprovalRequired: approval,
		MaxCost:          req.MaxCost,
	}); err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID, "status": "delegated"})
}

type approvalRequest struct {
	EditedBody string `json:"edited_body,omitempty"`
}

// handleDraftByID dispatches /drafts/{id}, /drafts/{id}/approve, and
// /drafts/{id}/reject, following the same manual-path-split style as
// handleTaskByID.
func (s *Server) handleDraftByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/drafts/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, domain.ErrInvalidInput, "draft id is required")
		return
	}
	draftID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getDraft(w, r, draftID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.deleteDraft(w, r, draftID)
	case len(parts) == 2 && parts[1] == "approve" && r.Method == http.MethodPost:
		s.resolveDraft(w, r, draftID, "approve")
	case len(parts) == 2 && parts[1] == "reject" && r.Method == http.MethodPost:
		s.resolveDraft(w, r, draftID, "reject")
	default:
		writeError(w, domain.ErrNotFound, "no matching route")
	}
}

func (s *Server) deleteDraft(w http.ResponseWriter, r *http.Request, draftID string) {
	ctx, cancel := requestContext(r)
	defer cancel()
	if err := s.delegation.DeleteDraft(ctx, draftID); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getDraft(w http.ResponseWriter, r *http.Request, draftID string) {
	ctx, cancel := requestContext(r)
	defer cancel()
	d, err := s.delegation.LoadDraft(ctx, draftID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) resolveDraft(w http.ResponseWriter, r *http.Request, draftID, action string) {
	var req approvalRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput, "malformed request body: "+err.Error())
			return
		}
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	if err := s.delegation.HandleApproval(ctx, domain.ApprovalMessage{
		Action:     action,
		DraftID:    draftID,
		EditedBody: req.EditedBody,
	}); err != nil {
		writeDomainErr(w, err)
		return
	}
	d, err := s.delegation.LoadDraft(ctx, draftID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
