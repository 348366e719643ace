package models

import "time"

// JobStatus represents the lifecycle stage of a download job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// rank orders statuses along the only legal transition direction:
// pending -> processing -> {completed | failed}.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next goes forward in
// the state machine. Terminal states never transition.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// IsTerminal reports whether the job reached a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Format selects the requested output kind.
type Format string

const (
	FormatMP3 Format = "mp3" // audio-only extraction
	FormatMP4 Format = "mp4" // best available combined video+audio
)

// Valid reports whether f is a recognised output format.
func (f Format) Valid() bool {
	return f == FormatMP3 || f == FormatMP4
}

// DownloadType selects whether a request targets a single item or a
// whole playlist.
type DownloadType string

const (
	TypeVideo    DownloadType = "video"
	TypePlaylist DownloadType = "playlist"
)

// Valid reports whether t is a recognised download type.
func (t DownloadType) Valid() bool {
	return t == TypeVideo || t == TypePlaylist
}

// DownloadJob tracks one requested fetch operation from creation until
// the reaper removes it.
type DownloadJob struct {
	ID        string       `json:"id"`
	SessionID string       `json:"sessionId"`
	URL       string       `json:"url"`
	Format    Format       `json:"format"`
	Type      DownloadType `json:"type"`
	Progress  float64      `json:"progress"`
	Status    JobStatus    `json:"status"`
	Error     string       `json:"error,omitempty"`
	FilePath  string       `json:"filePath,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// Expired reports whether the job's retention window has passed.
func (j *DownloadJob) Expired(now time.Time) bool {
	return now.After(j.ExpiresAt)
}
