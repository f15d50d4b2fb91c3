package jobs

import "time"

const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Job is the outer lifecycle record of one generation run.
// COMPLETED implies Result is set and Error is nil; FAILED implies Error is set.
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	SubjectID   string     `json:"subjectId"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Error       *string    `json:"error,omitempty"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	RetryCount  int        `json:"retryCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Result references the document version a completed job produced.
type Result struct {
	DocumentVersionID string `json:"documentVersionId"`
	Version           int    `json:"version"`
	Sections          int    `json:"sections"`
}

// Terminal reports whether the job has reached COMPLETED or FAILED.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
