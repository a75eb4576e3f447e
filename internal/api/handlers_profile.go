package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/profiler"
	"github.com/dayforge/dayforge/internal/store"
)

// rebuildProfileRequest is the POST /profile body: the full raw-signal set
// the Profiler reduces into a UserProfile, exactly BuildFullProfile's
// parameters.
type rebuildProfileRequest struct {
	Goals              []profiler.DailyGoalEntry       `json:"goals"`
	Completions        []profiler.TaskCompletionRecord `json:"completions"`
	SocialPostingHours map[string][]int                `json:"social_posting_hours"`
	Reflection         profiler.ReflectionData         `json:"reflection"`
	Outcomes           []profiler.DelegationOutcome    `json:"outcomes"`
}

// handleProfile serves GET (last computed profile) and POST (recompute from
// a fresh signal batch) against /profile.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getProfile(w, r)
	case http.MethodPost:
		s.rebuildProfile(w, r)
	default:
		writeError(w, domain.ErrInvalidInput, "method not allowed")
	}
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()
	raw, found, err := s.kv.Get(ctx, store.ProfilerLastResultKey)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, domain.UserProfile{
			PeakHours:        profiler.DefaultPeakHours,
			EnergyCurve:      profiler.DefaultEnergyCurve,
			AvgTaskDurations: profiler.DefaultAvgTaskDurations,
			AdherenceScore:   profiler.DefaultAdherence,
			EstimationBias:   profiler.DefaultEstimationBias,
		})
		return
	}
	var result profiler.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		writeError(w, domain.ErrExternalUnavailable, "stored profile is corrupt: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) rebuildProfile(w http.ResponseWriter, r *http.Request) {
	var req rebuildProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput, "malformed request body: "+err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	// A stored LinkedIn export contributes its posting-hour histogram
	// unless the request already carries one for that platform.
	if _, ok := req.SocialPostingHours["linkedin"]; !ok {
		if li, found := s.loadLinkedInProfile(ctx); found && len(li.PostingHours) > 0 {
			if req.SocialPostingHours == nil {
				req.SocialPostingHours = make(map[string][]int, 1)
			}
			req.SocialPostingHours["linkedin"] = li.PostingHours
		}
	}
	result, err := s.profiler.BuildFullProfile(ctx, req.Goals, req.Completions, req.SocialPostingHours, req.Reflection, req.Outcomes)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		writeError(w, domain.ErrExternalUnavailable, "failed to encode profile: "+err.Error())
		return
	}
	if err := s.kv.Set(ctx, store.ProfilerLastResultKey, string(encoded), 0); err != nil {
		writeDomainErr(w, err)
		return
	}

	s.orchestrator.SetProfile(result.Profile.PeakHours, result.Profile.EstimationBias)
	s.energyMon.SetProfilerCurve(result.Profile.EnergyCurve)

	writeJSON(w, http.StatusOK, result)
}

// handleLinkedInProfile serves GET and POST against /profile/linkedin: the
// stored LinkedIn export summary whose posting-hour histogram feeds the
// next profile recomputation.
func (s *Server) handleLinkedInProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ctx, cancel := requestContext(r)
		defer cancel()
		li, found := s.loadLinkedInProfile(ctx)
		if !found {
			writeError(w, domain.ErrNotFound, "no linkedin profile stored")
			return
		}
		writeJSON(w, http.StatusOK, li)

	case http.MethodPost:
		var li profiler.LinkedInProfile
		if err := json.NewDecoder(r.Body).Decode(&li); err != nil {
			writeError(w, domain.ErrInvalidInput, "malformed request body: "+err.Error())
			return
		}
		for _, h := range li.PostingHours {
			if h < 0 || h > 23 {
				writeError(w, domain.ErrInvalidInput, "posting_hours entries must be hours of day in [0,23]")
				return
			}
		}
		encoded, err := json.Marshal(li)
		if err != nil {
			writeError(w, domain.ErrInvalidInput, "failed to encode profile: "+err.Error())
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()
		if err := s.kv.Set(ctx, store.ProfilerLinkedInKey, string(encoded), 0); err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, li)

	default:
		writeError(w, domain.ErrInvalidInput, "method not allowed")
	}
}

func (s *Server) loadLinkedInProfile(ctx context.Context) (profiler.LinkedInProfile, bool) {
	var li profiler.LinkedInProfile
	raw, found, err := s.kv.Get(ctx, store.ProfilerLinkedInKey)
	if err != nil || !found {
		return li, false
	}
	if err := json.Unmarshal([]byte(raw), &li); err != nil {
		return li, false
	}
	return li, true
}
