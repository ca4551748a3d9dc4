// Package server exposes the HTTP surface: job intake and polling,
// memory CRUD plus review, stats and the websocket push endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/axonworks/cortexd/internal/bus"
	"github.com/axonworks/cortexd/internal/lobe"
	"github.com/axonworks/cortexd/internal/notify"
	"github.com/axonworks/cortexd/internal/store"
)

type Server struct {
	engine *store.Engine
	stream *bus.Stream
	hub    *notify.Hub
	modes  *lobe.ModeSet
	http   *http.Server
}

func New(engine *store.Engine, stream *bus.Stream, hub *notify.Hub, modes *lobe.ModeSet, port int) *Server {
	if modes == nil {
		modes = lobe.NewModeSet()
	}
	s := &Server{engine: engine, stream: stream, hub: hub, modes: modes}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/users", s.handleCreateUser)
	mux.HandleFunc("PATCH /api/v1/users/settings", s.handleUpdateSettings)
	mux.HandleFunc("POST /api/v1/brain/intake", s.handleIntake)
	mux.HandleFunc("GET /api/v1/brain/requests/{id}", s.handleGetJob)
	mux.HandleFunc("POST /api/v1/memories", s.handleSaveMemory)
	mux.HandleFunc("GET /api/v1/memories", s.handleListMemories)
	mux.HandleFunc("GET /api/v1/memories/search", s.handleSearchMemories)
	mux.HandleFunc("GET /api/v1/memories/{id}", s.handleGetMemory)
	mux.HandleFunc("DELETE /api/v1/memories/{id}", s.handleDeleteMemory)
	mux.HandleFunc("POST /api/v1/memories/{id}/review", s.handleReview)
	mux.HandleFunc("POST /api/v1/files", s.handleRegisterFile)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("/ws", hub.HandleWS)

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Start() {
	go func() {
		log.Printf("[server] listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[server] serve error: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "ERROR", "message": msg})
}

// userID resolves the calling user from the X-User-ID header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := userID(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return "", false
	}
	return id, true
}

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	user, err := s.engine.CreateUser(r.Context(), req.Name, req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type settingsRequest struct {
	MemoryEnabled *bool `json:"memoryEnabled"`
	VisionEnabled *bool `json:"visionEnabled"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := s.engine.GetUser(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	memoryEnabled := user.MemoryEnabled
	visionEnabled := user.VisionEnabled
	if req.MemoryEnabled != nil {
		memoryEnabled = *req.MemoryEnabled
	}
	if req.VisionEnabled != nil {
		visionEnabled = *req.VisionEnabled
	}
	if err := s.engine.UpdateUserSettings(r.Context(), uid, memoryEnabled, visionEnabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"memoryEnabled": memoryEnabled,
		"visionEnabled": visionEnabled,
	})
}

type intakeRequest struct {
	Query          string `json:"query"`
	FileID         string `json:"fileId"`
	InputType      string `json:"inputType"`
	Mode           string `json:"mode"`
	TargetLanguage string `json:"targetLanguage"`
	Lobe           string `json:"lobe"`
	WorkspaceID    string `json:"workspaceId"`
}

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req intakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" && req.FileID == "" {
		writeError(w, http.StatusBadRequest, "query or fileId is required")
		return
	}
	if req.Lobe != "" {
		if _, ok := lobe.ParseKind(req.Lobe); !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown lobe %q", req.Lobe))
			return
		}
	}
	if !s.modes.Valid(req.Mode) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}

	job, err := s.engine.CreateJob(r.Context(), store.CreateJobParams{
		UserID:         uid,
		WorkspaceID:    req.WorkspaceID,
		Query:          req.Query,
		FileID:         req.FileID,
		InputType:      req.InputType,
		Mode:           req.Mode,
		TargetLanguage: req.TargetLanguage,
		RequestedLobe:  req.Lobe,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"requestId": job.ID,
		"status":    job.Status,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	job, err := s.engine.GetJob(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job.UserID != uid {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type saveMemoryRequest struct {
	Content     string   `json:"content"`
	Context     string   `json:"context"`
	Types       string   `json:"types"`
	WorkspaceID string   `json:"workspaceId"`
	Tags        []string `json:"tags"`
}

func (s *Server) handleSaveMemory(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req saveMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	mem, err := s.engine.AddMemory(r.Context(), store.AddMemoryParams{
		UserID:      uid,
		WorkspaceID: req.WorkspaceID,
		Content:     req.Content,
		Context:     req.Context,
		Types:       req.Types,
		Tags:        req.Tags,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.stream.Publish(r.Context(), bus.EventMemoryIngested, bus.MemoryIngestedPayload{
		ID:      mem.ID,
		UserID:  mem.UserID,
		Content: mem.Content,
	})
	writeJSON(w, http.StatusCreated, mem)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	memories, err := s.engine.ListMemories(r.Context(), uid, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, memories)
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	memories, err := s.engine.SearchMemories(r.Context(), uid, q, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, memories)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	mem, err := s.engine.GetMemory(r.Context(), uid, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	err := s.engine.DeleteMemory(r.Context(), uid, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type reviewRequest struct {
	Score int `json:"score"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Score < 0 || req.Score > 5 {
		writeError(w, http.StatusBadRequest, "score must be between 0 and 5")
		return
	}
	next, err := s.engine.ReviewMemory(r.Context(), uid, r.PathValue("id"), req.Score)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"nextReviewDate": next.UTC().Format(time.RFC3339),
	})
}

type registerFileRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Storage  string `json:"storage"`
	Path     string `json:"path"`
}

func (s *Server) handleRegisterFile(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req registerFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, "name and path are required")
		return
	}
	file, err := s.engine.AddFile(r.Context(), uid, req.Name, req.MimeType, req.Storage, req.Path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	stats, err := s.engine.UserStats(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
