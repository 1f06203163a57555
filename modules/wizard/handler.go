package wizard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"clip-wizard-server/modules/common/apperr"
	"clip-wizard-server/modules/common/database"
	"clip-wizard-server/modules/pipeline"
	"github.com/gorilla/mux"
)

// Handler - wizard HTTP and websocket surface
type Handler struct {
	manager  *Manager
	recorder AssemblyRecorder
}

// NewHandler - recorder may be nil when the archive is not configured
func NewHandler(manager *Manager, recorder AssemblyRecorder) *Handler {
	return &Handler{manager: manager, recorder: recorder}
}

// StateResponse - every successful session call returns the full state
type StateResponse struct {
	Success   bool                      `json:"success"`
	SessionID string                    `json:"sessionId"`
	State     pipeline.State            `json:"state"`
	Assembled []pipeline.GeneratedVideo `json:"assembled,omitempty"`
}

type conceptRequest struct {
	Concept string `json:"concept"`
}

type editClipRequest struct {
	Text string `json:"text"`
}

type reviewRequest struct {
	Approved *bool `json:"approved"`
}

// RegisterRoutes mounts the session API and the websocket stream. OPTIONS is
// listed so preflight requests reach the CORS middleware.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/sessions").Subrouter()
	api.HandleFunc("", h.CreateSession).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/{id}", h.GetSession).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/{id}", h.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/{id}/script", h.RequestScript).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/{id}/clips/{clipId}", h.EditClip).Methods(http.MethodPut, http.MethodOptions)
	api.HandleFunc("/{id}/clips/{clipId}/toggle", h.ToggleClip).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/{id}/generate", h.StartGeneration).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/{id}/videos/{videoId}/review", h.ReviewVideo).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/{id}/videos/{videoId}/regenerate", h.RegenerateVideo).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/{id}/assemble", h.Assemble).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/{id}/assemblies", h.ListAssemblies).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/{id}/reset", h.Reset).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/ws", h.HandleWebSocket)
	r.HandleFunc("/metrics", h.GetMetrics).Methods(http.MethodGet)
	r.HandleFunc("/admin/cleanup", h.ForceCleanup).Methods(http.MethodPost)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*pipeline.Session, bool) {
	session, err := h.manager.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		apperr.WriteJSON(w, err)
		return nil, false
	}
	return session, true
}

func clipIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["clipId"])
	if err != nil {
		apperr.WriteJSON(w, apperr.New(apperr.CodeBadRequest, "clip id must be a number"))
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.CodeBadRequest, "invalid request body", err))
		return false
	}
	return true
}

func writeState(w http.ResponseWriter, status int, sessionID string, st pipeline.State, assembled []pipeline.GeneratedVideo) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(StateResponse{
		Success:   true,
		SessionID: sessionID,
		State:     st,
		Assembled: assembled,
	})
}

// respond writes the state on success, the error envelope otherwise
func respond(w http.ResponseWriter, sessionID string, st pipeline.State, err error) {
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeState(w, http.StatusOK, sessionID, st, nil)
}

// CreateSession - POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.manager.Create()
	writeState(w, http.StatusCreated, session.ID(), session.Snapshot(), nil)
}

// GetSession - GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeState(w, http.StatusOK, session.ID(), session.Snapshot(), nil)
}

// DeleteSession - DELETE /api/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.Delete(id); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestScript - POST /api/sessions/{id}/script {concept}
func (h *Handler) RequestScript(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req conceptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	st, err := session.RequestScript(r.Context(), req.Concept)
	respond(w, session.ID(), st, err)
}

// EditClip - PUT /api/sessions/{id}/clips/{clipId} {text}
func (h *Handler) EditClip(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	clipID, ok := clipIDParam(w, r)
	if !ok {
		return
	}
	var req editClipRequest
	if !decodeBody(w, r, &req) {
		return
	}

	st, err := session.EditClip(clipID, req.Text)
	respond(w, session.ID(), st, err)
}

// ToggleClip - POST /api/sessions/{id}/clips/{clipId}/toggle
func (h *Handler) ToggleClip(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	clipID, ok := clipIDParam(w, r)
	if !ok {
		return
	}

	st, err := session.ToggleClip(clipID)
	respond(w, session.ID(), st, err)
}

// StartGeneration - POST /api/sessions/{id}/generate. Answers 202 once the
// requests are dispatched; progress arrives over the websocket.
func (h *Handler) StartGeneration(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	st, err := session.StartGeneration()
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeState(w, http.StatusAccepted, session.ID(), st, nil)
}

// ReviewVideo - POST /api/sessions/{id}/videos/{videoId}/review {approved}
func (h *Handler) ReviewVideo(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Approved == nil {
		apperr.WriteJSON(w, apperr.New(apperr.CodeBadRequest, "approved must be true or false"))
		return
	}

	st, err := session.ReviewVideo(mux.Vars(r)["videoId"], *req.Approved)
	respond(w, session.ID(), st, err)
}

// RegenerateVideo - POST /api/sessions/{id}/videos/{videoId}/regenerate
func (h *Handler) RegenerateVideo(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	st, err := session.Regenerate(mux.Vars(r)["videoId"])
	respond(w, session.ID(), st, err)
}

// Assemble - POST /api/sessions/{id}/assemble
func (h *Handler) Assemble(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	st, approved, err := session.Assemble()
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	log.Printf("🎞️ [Wizard] Session %s assembled %d video(s)", session.ID(), len(approved))
	h.archive(session.ID(), st, approved)
	writeState(w, http.StatusOK, session.ID(), st, approved)
}

// archive never fails the request. It runs detached from the request context
// so a client hanging up does not lose the record.
func (h *Handler) archive(sessionID string, st pipeline.State, approved []pipeline.GeneratedVideo) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.InsertAssembly(context.Background(), assemblyRecord(sessionID, st, approved)); err != nil {
		log.Printf("⚠️ [Wizard] Failed to archive assembly of %s: %v", sessionID, err)
	}
}

// ListAssemblies - GET /api/sessions/{id}/assemblies
func (h *Handler) ListAssemblies(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		apperr.WriteJSON(w, apperr.New(apperr.CodeNotImplemented, "assembly archive is not configured"))
		return
	}

	records, err := h.recorder.ListAssemblies(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		log.Printf("❌ [Wizard] %v", err)
		apperr.WriteJSON(w, apperr.Wrap(apperr.CodeInternal, "failed to read the assembly archive", err))
		return
	}
	if records == nil {
		records = []database.AssemblyRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":    true,
		"sessionId":  mux.Vars(r)["id"],
		"assemblies": records,
	})
}

// Reset - POST /api/sessions/{id}/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeState(w, http.StatusOK, session.ID(), session.Reset(), nil)
}

// GetMetrics - GET /metrics
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := h.manager.Metrics()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"server": map[string]interface{}{
			"uptime":            time.Since(metrics.StartTime).String(),
			"startTime":         metrics.StartTime,
			"totalSessions":     metrics.TotalSessions,
			"activeSessions":    metrics.ActiveSessions,
			"restoredSessions":  metrics.RestoredSessions,
			"evictedSessions":   metrics.EvictedSessions,
			"totalConnections":  metrics.TotalConnections,
			"activeConnections": metrics.ActiveConnections,
			"droppedSnapshots":  metrics.DroppedSnapshots,
		},
		"sessions": h.manager.Sessions(),
	})
}

// ForceCleanup - POST /admin/cleanup runs the eviction pass immediately
func (h *Handler) ForceCleanup(w http.ResponseWriter, r *http.Request) {
	log.Printf("🧹 [Wizard] Manual cleanup triggered")
	evicted := h.manager.CleanupInactive()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"evicted": evicted,
		"active":  h.manager.Metrics().ActiveSessions,
	})
}
