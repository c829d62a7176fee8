// Package api provides HTTP handlers for Onboard endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/entrylane/onboard/internal/models"
)

// sessionEngine is the slice of the flow engine the handlers drive. Narrowed
// to an interface so handler tests can substitute a stub.
type sessionEngine interface {
	Editing() bool
	Sections() []models.Section
	Answers() models.AnswerMap
	State() models.NavigationState
	ValidateAnswer(alias string, value interface{}) models.ValidationResult
	SetAnswer(alias string, value interface{}) error
	Advance() models.ValidationResult
	Retreat()
	SyncErr() error
	Submit(ctx context.Context, role string) (models.ValidationResult, error)
}

// userID extracts the authenticated user id forwarded by the auth layer.
// An empty id is a client error; handlers respond 401 and stop.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		slog.Warn("Server: missing X-User-ID header", "path", r.URL.Path)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Missing X-User-ID header"))
		return "", false
	}
	return id, true
}

// flowsHandler serves the flow collection (GET /flows, POST /flows).
func (s *Server) flowsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.flowsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		flows, err := s.defs.ListFlows()
		if err != nil {
			slog.Error("Server.flowsHandler: failed to list flows", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list flows"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(flows))
	case http.MethodPost:
		var req models.CreateFlowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.flowsHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := s.validate.Struct(req); err != nil {
			slog.Warn("Server.flowsHandler: validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: name"))
			return
		}
		if err := s.defs.CreateFlow(req.Name); err != nil {
			if errors.Is(err, models.ErrFlowExists) {
				writeJSONResponse(w, http.StatusConflict, models.Error("Flow already exists"))
				return
			}
			slog.Error("Server.flowsHandler: failed to create flow", "error", err, "flow", req.Name)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create flow"))
			return
		}
		slog.Info("Server.flowsHandler: flow created", "flow", req.Name)
		writeJSONResponse(w, http.StatusCreated, models.Recorded(req.Name))
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.flowsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// flowHandler serves a single flow and its section definition:
// DELETE /flows/{name}, GET /flows/{name}/sections, PUT /flows/{name}/sections.
func (s *Server) flowHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.flowHandler: processing request", "method", r.Method, "path", r.URL.Path)

	rest := strings.TrimPrefix(r.URL.Path, "/flows/")
	name, sub, _ := strings.Cut(rest, "/")
	if name == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodDelete:
		if err := s.defs.DeleteFlow(name); err != nil {
			if errors.Is(err, models.ErrUnknownFlow) {
				writeJSONResponse(w, http.StatusNotFound, models.Error("Flow not found"))
				return
			}
			slog.Error("Server.flowHandler: failed to delete flow", "error", err, "flow", name)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete flow"))
			return
		}
		slog.Info("Server.flowHandler: flow deleted", "flow", name)
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
	case sub == "sections" && r.Method == http.MethodGet:
		sections, err := s.defs.FetchSections(name)
		if err != nil {
			if errors.Is(err, models.ErrUnknownFlow) {
				writeJSONResponse(w, http.StatusNotFound, models.Error("Flow not found"))
				return
			}
			slog.Error("Server.flowHandler: failed to fetch sections", "error", err, "flow", name)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch sections"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(sections))
	case sub == "sections" && r.Method == http.MethodPut:
		var req models.UpdateSectionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.flowHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := s.validate.Struct(req); err != nil {
			slog.Warn("Server.flowHandler: validation failed", "error", err, "flow", name)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid section deltas"))
			return
		}
		sections, err := s.defs.UpdateSections(name, req.Deltas)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrUnknownFlow):
				writeJSONResponse(w, http.StatusNotFound, models.Error("Flow not found"))
			case errors.Is(err, models.ErrDuplicateAlias), errors.Is(err, models.ErrEmptyAlias):
				writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			default:
				slog.Error("Server.flowHandler: failed to update sections", "error", err, "flow", name)
				writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update sections"))
			}
			return
		}
		slog.Info("Server.flowHandler: sections updated", "flow", name, "sections", len(sections))
		writeJSONResponse(w, http.StatusOK, models.Success(sections))
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		slog.Warn("Server.flowHandler: method not allowed", "method", r.Method, "path", r.URL.Path)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// sessionView is the envelope returned when a session is opened or inspected.
type sessionView struct {
	Flow     string                 `json:"flow"`
	Editing  bool                   `json:"editing"`
	Sections []models.Section       `json:"sections,omitempty"`
	Answers  models.AnswerMap       `json:"answers,omitempty"`
	State    models.NavigationState `json:"state"`
}

// startSessionHandler opens an engine session for the caller (POST /session).
func (s *Server) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.startSessionHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.startSessionHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req models.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.startSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		slog.Warn("Server.startSessionHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: flow"))
		return
	}

	engine, err := s.sessions.Open(uid, req.Flow, req.Editing)
	if err != nil {
		if errors.Is(err, models.ErrUnknownFlow) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Flow not found"))
			return
		}
		slog.Error("Server.startSessionHandler: failed to open session", "error", err, "userID", uid, "flow", req.Flow)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to open session"))
		return
	}

	slog.Info("Server.startSessionHandler: session opened", "userID", uid, "flow", req.Flow, "editing", req.Editing)
	writeJSONResponse(w, http.StatusCreated, models.Success(sessionView{
		Flow:     req.Flow,
		Editing:  engine.Editing(),
		Sections: engine.Sections(),
		Answers:  engine.Answers(),
		State:    engine.State(),
	}))
}

// sessionHandler serves an open session:
// GET /session/{flow}/state, POST /session/{flow}/answers,
// POST /session/{flow}/advance, POST /session/{flow}/retreat,
// POST /session/{flow}/submit, DELETE /session/{flow}.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.sessionHandler: processing request", "method", r.Method, "path", r.URL.Path)
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/session/")
	flowName, action, _ := strings.Cut(rest, "/")
	if flowName == "" {
		http.NotFound(w, r)
		return
	}

	if action == "" && r.Method == http.MethodDelete {
		s.sessions.Close(uid, flowName)
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
		return
	}

	engine := s.sessions.Engine(uid, flowName)
	if engine == nil {
		slog.Warn("Server.sessionHandler: no open session", "userID", uid, "flow", flowName)
		writeJSONResponse(w, http.StatusNotFound, models.Error("No open session for flow"))
		return
	}

	switch {
	case action == "state" && r.Method == http.MethodGet:
		writeJSONResponse(w, http.StatusOK, models.Success(sessionView{
			Flow:    flowName,
			Editing: engine.Editing(),
			Answers: engine.Answers(),
			State:   engine.State(),
		}))
	case action == "answers" && r.Method == http.MethodPost:
		s.recordAnswer(w, r, uid, flowName, engine)
	case action == "advance" && r.Method == http.MethodPost:
		if res := engine.Advance(); !res.Valid {
			writeJSONResponse(w, http.StatusUnprocessableEntity, models.Invalid(res))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(engine.State()))
	case action == "retreat" && r.Method == http.MethodPost:
		engine.Retreat()
		writeJSONResponse(w, http.StatusOK, models.Success(engine.State()))
	case action == "submit" && r.Method == http.MethodPost:
		s.submitSession(w, r, uid, flowName, engine)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		slog.Warn("Server.sessionHandler: method not allowed", "method", r.Method, "path", r.URL.Path)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// recordAnswer stores one answer value on the live engine. The write is
// applied immediately and persisted in the background; a prior background
// persistence failure is surfaced as a warning field, never as a failure.
func (s *Server) recordAnswer(w http.ResponseWriter, r *http.Request, uid, flowName string, engine sessionEngine) {
	var req models.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.recordAnswer: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		slog.Warn("Server.recordAnswer: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: alias"))
		return
	}
	if res := engine.ValidateAnswer(req.Alias, req.Value); !res.Valid {
		writeJSONResponse(w, http.StatusUnprocessableEntity, models.Invalid(res))
		return
	}
	if err := engine.SetAnswer(req.Alias, req.Value); err != nil {
		slog.Warn("Server.recordAnswer: rejected answer", "error", err, "userID", uid, "flow", flowName, "alias", req.Alias)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if syncErr := engine.SyncErr(); syncErr != nil {
		slog.Warn("Server.recordAnswer: background persistence degraded", "error", syncErr, "userID", uid, "flow", flowName)
	}
	writeJSONResponse(w, http.StatusOK, models.Recorded(engine.State()))
}

// submitSession finalizes the flow for the caller using their stored role.
func (s *Server) submitSession(w http.ResponseWriter, r *http.Request, uid, flowName string, engine sessionEngine) {
	profile, err := s.sessions.Resolve(uid)
	if err != nil {
		slog.Error("Server.submitSession: failed to resolve profile", "error", err, "userID", uid)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve user profile"))
		return
	}
	res, err := engine.Submit(r.Context(), profile.Role)
	if err != nil {
		if errors.Is(err, models.ErrMissingStageMapping) || errors.Is(err, models.ErrMissingWorkflow) {
			slog.Error("Server.submitSession: workflow configuration error", "error", err, "flow", flowName)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Workflow configuration error"))
			return
		}
		slog.Error("Server.submitSession: submission failed", "error", err, "userID", uid, "flow", flowName)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to submit flow"))
		return
	}
	if !res.Valid {
		writeJSONResponse(w, http.StatusUnprocessableEntity, models.Invalid(res))
		return
	}
	slog.Info("Server.submitSession: flow submitted", "userID", uid, "flow", flowName, "role", profile.Role)
	writeJSONResponse(w, http.StatusOK, models.Success(engine.State()))
}

// stagesHandler lists the caller's stage progress records in creation order
// (GET /stages).
func (s *Server) stagesHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.stagesHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.stagesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	records, err := s.st.ListStageProgress(uid)
	if err != nil {
		slog.Error("Server.stagesHandler: failed to list stage progress", "error", err, "userID", uid)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list stage progress"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

// advanceStageHandler advances the caller's workflow from their latest stage
// (POST /stages/advance). Users with no records are seeded with their first
// workflow stage.
func (s *Server) advanceStageHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.advanceStageHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.advanceStageHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	profile, err := s.sessions.Resolve(uid)
	if err != nil {
		slog.Error("Server.advanceStageHandler: failed to resolve profile", "error", err, "userID", uid)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve user profile"))
		return
	}
	if err := s.orch.MoveToNextStage(r.Context(), uid, profile.Role); err != nil {
		if errors.Is(err, models.ErrMissingWorkflow) {
			slog.Error("Server.advanceStageHandler: workflow configuration error", "error", err, "role", profile.Role)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Workflow configuration error"))
			return
		}
		slog.Error("Server.advanceStageHandler: failed to advance stage", "error", err, "userID", uid)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to advance stage"))
		return
	}
	records, err := s.st.ListStageProgress(uid)
	if err != nil {
		slog.Error("Server.advanceStageHandler: failed to reload stage progress", "error", err, "userID", uid)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list stage progress"))
		return
	}
	slog.Info("Server.advanceStageHandler: stage advanced", "userID", uid, "role", profile.Role)
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}
