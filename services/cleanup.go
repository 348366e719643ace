package services

import (
	"context"
	"log"
	"os"
	"time"
)

// Reaper periodically evicts expired jobs (deleting their artifacts),
// expired sessions, and stale rate-limit windows. It only ever deletes
// expired state, so running it concurrently with ordinary reads and
// writes is safe.
type Reaper struct {
	registry *JobRegistry
	sessions *SessionStore
	limiter  *RateLimiter
}

func NewReaper(registry *JobRegistry, sessions *SessionStore, limiter *RateLimiter) *Reaper {
	return &Reaper{
		registry: registry,
		sessions: sessions,
		limiter:  limiter,
	}
}

// Sweep runs one maintenance pass. A failure to remove one artifact is
// logged and does not abort the rest of the sweep.
func (r *Reaper) Sweep(now time.Time) {
	jobs := r.registry.DeleteExpired(now)
	for _, job := range jobs {
		if job.FilePath == "" {
			continue
		}
		if err := os.Remove(job.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("[Reaper] failed to remove artifact for job %s: %v", job.ID, err)
		}
	}

	sessions := r.sessions.SweepExpired(now)
	windows := r.limiter.SweepStale(now)

	if len(jobs) > 0 || sessions > 0 || windows > 0 {
		log.Printf("[Reaper] removed %d jobs, %d sessions, %d rate windows", len(jobs), sessions, windows)
	}
}

// Run sweeps on a fixed period until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[Reaper] sweeping every %v", interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("[Reaper] shutting down")
			return
		case <-ticker.C:
			r.Sweep(time.Now())
		}
	}
}
