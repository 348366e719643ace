package server

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"mediagrab/api"
	"mediagrab/config"
	"mediagrab/models"
)

const sessionCookie = "sessionId"

// Server is thin HTTP glue over api.Service: cookie handling, status
// code mapping, and JSON encoding. No orchestration logic lives here.
type Server struct {
	svc *api.Service
	cfg *config.Config
}

func New(svc *api.Service, cfg *config.Config) *Server {
	return &Server{svc: svc, cfg: cfg}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/session", s.handleCreateSession)
	mux.HandleFunc("GET /api/session", s.handleValidateSession)
	mux.HandleFunc("POST /api/download", s.handleCreateJob)
	mux.HandleFunc("GET /api/status/{jobId}", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/download/{jobId}", s.handleDownload)
	mux.HandleFunc("POST /api/cleanup", s.handleCleanup)
	return mux
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := s.svc.CreateSession()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

func (s *Server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

type createJobRequest struct {
	URL    string              `json:"url"`
	Format models.Format       `json:"format"`
	Type   models.DownloadType `json:"type"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if !s.svc.CheckRateLimit(clientID(r)) {
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URL == "" || req.Format == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: url, format, type")
		return
	}
	if !req.Format.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid format. Must be mp3 or mp4")
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid type. Must be video or playlist")
		return
	}

	sessionID, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}

	jobID, err := s.svc.CreateJob(r.Context(), sessionID, req.URL, req.Format, req.Type)
	if err != nil {
		if errors.Is(err, api.ErrInvalidURL) {
			writeError(w, http.StatusBadRequest, "Invalid YouTube URL")
			return
		}
		log.Printf("[HTTP] create job: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"jobId": jobID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}

	jobID := r.PathValue("jobId")
	if !s.authorize(w, jobID, sessionID) {
		return
	}

	view, err := s.svc.GetJob(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}
	views := s.svc.ListJobs(sessionID)
	writeJSON(w, http.StatusOK, map[string]any{"history": views})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}

	jobID := r.PathValue("jobId")
	if !s.authorize(w, jobID, sessionID) {
		return
	}

	artifact, err := s.svc.GetArtifact(jobID)
	switch {
	case errors.Is(err, api.ErrNotReady):
		writeError(w, http.StatusBadRequest, "Download not ready")
		return
	case errors.Is(err, api.ErrNotFound):
		writeError(w, http.StatusNotFound, "File not found or expired")
		return
	case err != nil:
		log.Printf("[HTTP] artifact for job %s: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", artifact.MimeHint)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(artifact.Path)+`"`)
	http.ServeFile(w, r, artifact.Path)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if auth != "Bearer "+s.cfg.CleanupToken {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.svc.RunMaintenanceSweep()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cleanup completed successfully"})
}

// session reads and validates the session cookie.
func (s *Server) session(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	if !s.svc.ValidateSession(cookie.Value) {
		return "", false
	}
	return cookie.Value, true
}

// authorize writes 404/403 and returns false unless sessionID owns the
// job.
func (s *Server) authorize(w http.ResponseWriter, jobID, sessionID string) bool {
	owner, err := s.svc.OwnerOf(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return false
	}
	if owner != sessionID {
		writeError(w, http.StatusForbidden, "Unauthorized")
		return false
	}
	return true
}

// clientID is the best-effort network origin used for rate limiting.
func clientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[HTTP] encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
