package services

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediagrab/models"
)

// JobRegistry is the single source of truth for job state. Records are
// created by request handlers, mutated by the worker that owns them,
// and removed by the reaper once expired.
type JobRegistry struct {
	mu    sync.RWMutex
	jobs  map[string]*models.DownloadJob
	order []string
	ttl   time.Duration
}

func NewJobRegistry(ttl time.Duration) *JobRegistry {
	return &JobRegistry{
		jobs: make(map[string]*models.DownloadJob),
		ttl:  ttl,
	}
}

// Create allocates a new pending job and returns a copy of the record.
func (r *JobRegistry) Create(sessionID, url string, format models.Format, typ models.DownloadType) models.DownloadJob {
	now := time.Now()
	job := &models.DownloadJob{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		URL:       url,
		Format:    format,
		Type:      typ,
		Progress:  0,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	r.mu.Unlock()

	return *job
}

// Get returns a copy of the job, if present.
func (r *JobRegistry) Get(id string) (models.DownloadJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return models.DownloadJob{}, false
	}
	return *job, true
}

// ListBySession returns the session's jobs in insertion order.
func (r *JobRegistry) ListBySession(sessionID string) []models.DownloadJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var jobs []models.DownloadJob
	for _, id := range r.order {
		if job, ok := r.jobs[id]; ok && job.SessionID == sessionID {
			jobs = append(jobs, *job)
		}
	}
	return jobs
}

// SetProgress overwrites the job's progress, clamped to [0, 100].
// Absent jobs (already reaped) are a no-op.
func (r *JobRegistry) SetProgress(id string, percent float64) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[id]; ok {
		job.Progress = percent
	}
}

// SetStatus transitions the job forward in the state machine. A failed
// job records errMsg; a completed job records filePath and has its
// progress forced to 100. Backward transitions are refused so a stale
// write can never resurrect or regress a record.
func (r *JobRegistry) SetStatus(id string, status models.JobStatus, errMsg, filePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return
	}
	if !job.Status.CanTransitionTo(status) {
		log.Printf("[Registry] refusing transition %s -> %s for job %s", job.Status, status, id)
		return
	}

	job.Status = status
	switch status {
	case models.JobStatusFailed:
		job.Error = errMsg
	case models.JobStatusCompleted:
		job.FilePath = filePath
		job.Progress = 100
	}
}

// DeleteExpired removes every job whose expiry has passed and returns
// copies of the removed records so the caller can reclaim artifacts.
func (r *JobRegistry) DeleteExpired(now time.Time) []models.DownloadJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []models.DownloadJob
	kept := r.order[:0]
	for _, id := range r.order {
		job, ok := r.jobs[id]
		if !ok {
			continue
		}
		if job.Expired(now) {
			removed = append(removed, *job)
			delete(r.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept

	return removed
}
