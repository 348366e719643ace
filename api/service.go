package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediagrab/models"
	"mediagrab/queue"
	"mediagrab/services"
)

var (
	// ErrInvalidURL rejects job creation before any state exists.
	ErrInvalidURL = errors.New("unsupported media url")

	// ErrNotFound covers absent and expired entities alike.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited signals a throttled client.
	ErrRateLimited = errors.New("too many requests")

	// ErrNotReady means the job has not completed yet.
	ErrNotReady = errors.New("download not ready")
)

// JobView is the client-facing projection of a job.
type JobView struct {
	ID        string              `json:"id"`
	URL       string              `json:"url,omitempty"`
	Format    models.Format       `json:"format,omitempty"`
	Type      models.DownloadType `json:"type,omitempty"`
	Status    models.JobStatus    `json:"status"`
	Progress  float64             `json:"progress"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// Artifact points at a completed job's output file.
type Artifact struct {
	Path     string
	MimeHint string
}

// Service is the contract consumed by the routing layer. It composes
// the stores and the queue; it holds no state of its own.
type Service struct {
	sessions *services.SessionStore
	limiter  *services.RateLimiter
	registry *services.JobRegistry
	queue    queue.Queue
	reaper   *services.Reaper
}

func NewService(sessions *services.SessionStore, limiter *services.RateLimiter, registry *services.JobRegistry, q queue.Queue, reaper *services.Reaper) *Service {
	return &Service{
		sessions: sessions,
		limiter:  limiter,
		registry: registry,
		queue:    q,
		reaper:   reaper,
	}
}

// CreateSession issues a fresh session id.
func (s *Service) CreateSession() string {
	return s.sessions.Create()
}

// ValidateSession reports whether the session exists and is unexpired.
func (s *Service) ValidateSession(id string) bool {
	_, ok := s.sessions.Get(id)
	return ok
}

// CheckRateLimit records one job-creation attempt for the client.
func (s *Service) CheckRateLimit(clientID string) bool {
	return s.limiter.Allow(clientID)
}

// CreateJob validates the URL, registers a pending job, and enqueues it
// for dispatch. Creation never blocks on execution. An enqueue failure
// marks the job failed but still returns the id, so the job is never
// silently dropped and callers observe the outcome by polling.
func (s *Service) CreateJob(ctx context.Context, sessionID, rawURL string, format models.Format, typ models.DownloadType) (string, error) {
	url := services.SanitizeURL(rawURL)
	if !services.IsSupportedURL(url) {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	job := s.registry.Create(sessionID, url, format, typ)

	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		log.Printf("[API] enqueue failed for job %s: %v", job.ID, err)
		s.registry.SetStatus(job.ID, models.JobStatusFailed, fmt.Sprintf("enqueue failed: %v", err), "")
	}

	return job.ID, nil
}

// GetJob returns the job's client view.
func (s *Service) GetJob(jobID string) (JobView, error) {
	job, ok := s.registry.Get(jobID)
	if !ok {
		return JobView{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return viewOf(job), nil
}

// OwnerOf reports the session owning the job, for the routing layer's
// authorization check.
func (s *Service) OwnerOf(jobID string) (string, error) {
	job, ok := s.registry.Get(jobID)
	if !ok {
		return "", fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return job.SessionID, nil
}

// ListJobs returns the session's history in creation order.
func (s *Service) ListJobs(sessionID string) []JobView {
	jobs := s.registry.ListBySession(sessionID)
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	return views
}

// GetArtifact resolves a completed job's output file. The file may
// have raced the reaper, so its presence is re-checked on every call.
func (s *Service) GetArtifact(jobID string) (Artifact, error) {
	job, ok := s.registry.Get(jobID)
	if !ok {
		return Artifact{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if job.Status != models.JobStatusCompleted || job.FilePath == "" {
		return Artifact{}, fmt.Errorf("job %s is %s: %w", jobID, job.Status, ErrNotReady)
	}
	if _, err := os.Stat(job.FilePath); err != nil {
		return Artifact{}, fmt.Errorf("artifact for job %s: %w", jobID, ErrNotFound)
	}
	return Artifact{
		Path:     job.FilePath,
		MimeHint: mimeHint(job.FilePath, job.Format),
	}, nil
}

// RunMaintenanceSweep runs one reaper pass. Idempotent; intended for a
// periodic external trigger.
func (s *Service) RunMaintenanceSweep() {
	s.reaper.Sweep(time.Now())
}

func viewOf(job models.DownloadJob) JobView {
	return JobView{
		ID:        job.ID,
		URL:       job.URL,
		Format:    job.Format,
		Type:      job.Type,
		Status:    job.Status,
		Progress:  job.Progress,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		ExpiresAt: job.ExpiresAt,
	}
}

func mimeHint(path string, format models.Format) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".opus", ".ogg":
		return "audio/ogg"
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	}
	if format == models.FormatMP3 {
		return "audio/mpeg"
	}
	return "video/mp4"
}
