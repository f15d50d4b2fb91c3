package activity

import (
	"context"
	"sync"
	"time"
)

// MemoryLog keeps entries in memory.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int64
}

// NewMemoryLog constructs a MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Record(ctx context.Context, subjectID, description string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.entries = append(l.entries, Entry{
		ID:          l.nextID,
		SubjectID:   subjectID,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

// List returns a subject's entries newest first.
func (l *MemoryLog) List(ctx context.Context, subjectID string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []Entry{}
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if l.entries[i].SubjectID == subjectID {
			out = append(out, l.entries[i])
		}
	}
	return out, nil
}

var _ Log = (*MemoryLog)(nil)
