package activity

import (
	"context"
	"time"
)

// Entry is one audit line attached to a subject.
type Entry struct {
	ID          int64     `json:"id"`
	SubjectID   string    `json:"subjectId"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Recorder appends audit entries.
type Recorder interface {
	Record(ctx context.Context, subjectID, description string) error
}

// Log is a Recorder that can also list what it recorded.
type Log interface {
	Recorder
	List(ctx context.Context, subjectID string, limit int) ([]Entry, error)
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return defaultListLimit
	}
	return limit
}
