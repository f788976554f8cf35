package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/stageline-io/stageline/internal/expander"
	"github.com/stageline-io/stageline/internal/logbuf"
	"github.com/stageline-io/stageline/internal/planner"
	"github.com/stageline-io/stageline/internal/session"
	"github.com/stageline-io/stageline/internal/tracker"
	"github.com/stageline-io/stageline/pkg/protocol"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeRaw sends a generation result verbatim. The payload is model output
// and may or may not be valid JSON, so it goes out as plain text.
func writeRaw(w http.ResponseWriter, raw string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(raw))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Generation ---

type stagesRequest struct {
	ProjectDescription string                     `json:"projectDescription"`
	Images             []protocol.ImageAttachment `json:"images,omitempty"`
}

func (s *Server) handleCreateStages(w http.ResponseWriter, r *http.Request) {
	var req stagesRequest
	if !decodeBody(w, r, &req, maxGenerationBody) {
		return
	}
	if req.ProjectDescription == "" {
		writeError(w, http.StatusBadRequest, "projectDescription is required")
		return
	}

	raw, err := s.planner.Plan(r.Context(), req.ProjectDescription, req.Images)
	if err != nil {
		s.logger.Error("stage plan generation failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	// Opt-in server-side validation. The default contract hands the raw
	// generated text back untouched.
	if r.URL.Query().Get("parse") == "1" {
		if _, err := planner.ParsePlan(raw); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error": err.Error(),
				"raw":   raw,
			})
			return
		}
	}
	writeRaw(w, raw)
}

type ticketsRequest struct {
	ProjectDescription    string                     `json:"projectDescription"`
	StagesJSON            string                     `json:"stagesJson"`
	TargetStage           string                     `json:"targetStage"`
	Images                []protocol.ImageAttachment `json:"images,omitempty"`
	PreviousStagesTickets []*protocol.TicketSet      `json:"previousStagesTickets,omitempty"`
}

func (s *Server) handleCreateTickets(w http.ResponseWriter, r *http.Request) {
	var req ticketsRequest
	if !decodeBody(w, r, &req, maxGenerationBody) {
		return
	}
	if req.ProjectDescription == "" || req.StagesJSON == "" || req.TargetStage == "" {
		writeError(w, http.StatusBadRequest, "projectDescription, stagesJson and targetStage are required")
		return
	}

	raw, err := s.expander.Expand(r.Context(), expander.ExpansionContext{
		ProjectDescription: req.ProjectDescription,
		Images:             req.Images,
		StagePlanJSON:      req.StagesJSON,
		TargetStageID:      req.TargetStage,
		Prior:              req.PreviousStagesTickets,
	})
	if err != nil {
		var unknown *expander.UnknownStageError
		var notReady *expander.DependencyNotReadyError
		switch {
		case errors.As(err, &unknown):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &notReady):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("ticket generation failed", "stage", req.TargetStage, "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeRaw(w, raw)
}

// --- Tracker ---

type projectIssuesRequest struct {
	Tickets    []protocol.Ticket `json:"tickets"`
	TeamID     string            `json:"teamId"`
	ProjectID  string            `json:"projectId,omitempty"`
	StateID    string            `json:"stateId,omitempty"`
	Priority   *int              `json:"priority,omitempty"`
	AssigneeID string            `json:"assigneeId,omitempty"`
	LabelIDs   []string          `json:"labelIds,omitempty"`
}

type projectIssuesResponse struct {
	Success    bool                  `json:"success"`
	Results    []tracker.IssueResult `json:"results"`
	Total      int                   `json:"total"`
	Successful int                   `json:"successful"`
	Failed     int                   `json:"failed"`
}

func (s *Server) handleProjectIssues(w http.ResponseWriter, r *http.Request) {
	var req projectIssuesRequest
	if !decodeBody(w, r, &req, maxGenerationBody) {
		return
	}
	if len(req.Tickets) == 0 {
		writeError(w, http.StatusBadRequest, "tickets are required")
		return
	}

	teamID := req.TeamID
	if teamID == "" {
		teamID = s.cfg.DefaultTeamID
	}
	projectID := req.ProjectID
	if projectID == "" {
		projectID = s.cfg.DefaultProjectID
	}

	var results []tracker.IssueResult
	if s.projector == nil {
		results = make([]tracker.IssueResult, len(req.Tickets))
		for i := range results {
			results[i] = tracker.IssueResult{Success: false, Error: "tracker is not configured"}
		}
	} else {
		results = s.projector.Project(r.Context(), req.Tickets, teamID, tracker.Options{
			ProjectID:  projectID,
			StateID:    req.StateID,
			Priority:   req.Priority,
			AssigneeID: req.AssigneeID,
			LabelIDs:   req.LabelIDs,
		})
	}

	sum := tracker.Summarize(results)
	if s.notifier != nil {
		s.notifier.ProjectionDone(r.Context(), teamID, sum)
	}

	writeJSON(w, http.StatusOK, projectIssuesResponse{
		Success:    sum.Failed == 0,
		Results:    results,
		Total:      sum.Total,
		Successful: sum.Successful,
		Failed:     sum.Failed,
	})
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		writeJSON(w, http.StatusOK, []tracker.Team{})
		return
	}
	teams, err := s.directory.Teams(r.Context())
	if err != nil {
		s.logger.Error("team listing failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if teams == nil {
		teams = []tracker.Team{}
	}
	writeJSON(w, http.StatusOK, teams)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		writeJSON(w, http.StatusOK, []tracker.Project{})
		return
	}
	projects, err := s.directory.Projects(r.Context(), r.URL.Query().Get("teamId"))
	if err != nil {
		s.logger.Error("project listing failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if projects == nil {
		projects = []tracker.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// --- Sessions ---

type sessionRequest struct {
	ProjectDescription string                     `json:"projectDescription"`
	Images             []protocol.ImageAttachment `json:"images,omitempty"`
	PlanRaw            string                     `json:"steps,omitempty"`
	SelectedTeamID     string                     `json:"selectedTeamId,omitempty"`
	SelectedProjectID  string                     `json:"selectedProjectId,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions are not configured")
		return
	}
	var req sessionRequest
	if !decodeBody(w, r, &req, maxGenerationBody) {
		return
	}

	now := time.Now().UTC()
	snap := &session.Snapshot{
		ID:                 session.NewID(),
		ProjectDescription: req.ProjectDescription,
		Images:             req.Images,
		PlanRaw:            req.PlanRaw,
		SelectedTeamID:     req.SelectedTeamID,
		SelectedProjectID:  req.SelectedProjectID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.sessions.Save(snap); err != nil {
		s.logger.Error("session save failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusOK, []*session.Snapshot{})
		return
	}
	snaps, err := s.sessions.List()
	if err != nil {
		s.logger.Error("session listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snaps == nil {
		snaps = []*session.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) *session.Snapshot {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions are not configured")
		return nil
	}
	snap, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
		} else {
			s.logger.Error("session load failed", "id", r.PathValue("id"), "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil
	}
	return snap
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap := s.loadSession(w, r)
	if snap == nil {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	snap := s.loadSession(w, r)
	if snap == nil {
		return
	}
	var req sessionRequest
	if !decodeBody(w, r, &req, maxGenerationBody) {
		return
	}

	if req.ProjectDescription != "" {
		snap.ProjectDescription = req.ProjectDescription
	}
	if req.Images != nil {
		snap.Images = req.Images
	}
	if req.PlanRaw != "" {
		snap.PlanRaw = req.PlanRaw
	}
	if req.SelectedTeamID != "" {
		snap.SelectedTeamID = req.SelectedTeamID
	}
	if req.SelectedProjectID != "" {
		snap.SelectedProjectID = req.SelectedProjectID
	}
	snap.UpdatedAt = time.Now().UTC()

	if err := s.sessions.Save(snap); err != nil {
		s.logger.Error("session save failed", "id", snap.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions are not configured")
		return
	}
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		s.logger.Error("session delete failed", "id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleExpandSessionStage runs the readiness-gated expansion for one stage
// of a stored session and persists the resulting ticket set.
func (s *Server) handleExpandSessionStage(w http.ResponseWriter, r *http.Request) {
	snap := s.loadSession(w, r)
	if snap == nil {
		return
	}
	stageID := r.PathValue("stage")

	if snap.PlanRaw == "" {
		writeError(w, http.StatusConflict, "session has no stage plan yet")
		return
	}
	plan, err := planner.ParsePlan(snap.PlanRaw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	readiness, err := expander.StageReadiness(plan, snap.TicketsByStage, stageID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if !readiness.Allowed {
		writeError(w, http.StatusConflict, "prior stages are missing ticket sets")
		return
	}

	raw, err := s.expander.Expand(r.Context(), expander.ExpansionContext{
		ProjectDescription: snap.ProjectDescription,
		Images:             snap.Images,
		StagePlanJSON:      snap.PlanRaw,
		TargetStageID:      stageID,
		Prior:              readiness.Prior,
	})
	if err != nil {
		s.logger.Error("ticket generation failed", "session", snap.ID, "stage", stageID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	set, err := expander.ParseTicketSet(raw)
	if err != nil {
		s.logger.Error("ticket set unparseable", "session", snap.ID, "stage", stageID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if err := s.sessions.PutTicketSet(snap.ID, stageID, set); err != nil {
		s.logger.Error("ticket set save failed", "session", snap.ID, "stage", stageID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// --- Logs ---

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	minLevel := slog.LevelDebug
	if v := r.URL.Query().Get("level"); v != "" {
		minLevel = logbuf.LevelFromString(v)
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		}
	}

	entries := s.logs.Query(since, minLevel, limit)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
