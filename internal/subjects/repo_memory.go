package subjects

import (
	"context"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu       sync.RWMutex
	subjects map[string]Subject
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{subjects: make(map[string]Subject)}
}

func (r *MemoryRepo) Upsert(ctx context.Context, subject Subject) (Subject, error) {
	if err := ctx.Err(); err != nil {
		return Subject{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.subjects[subject.ID]
	now := time.Now().UTC()
	if !ok {
		subject.CreatedAt = now
	} else {
		subject.CreatedAt = existing.CreatedAt
	}
	subject.UpdatedAt = now
	r.subjects[subject.ID] = subject
	return subject, nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, subjectID string) (Subject, error) {
	if err := ctx.Err(); err != nil {
		return Subject{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	subject, ok := r.subjects[subjectID]
	if !ok {
		return Subject{}, ErrNotFound
	}
	return subject, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subjects[subjectID]; !ok {
		return ErrNotFound
	}
	delete(r.subjects, subjectID)
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
