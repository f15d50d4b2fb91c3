package documents

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data []DocumentVersion
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Create(ctx context.Context, doc DocumentVersion) (DocumentVersion, error) {
	if err := ctx.Err(); err != nil {
		return DocumentVersion{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := 0
	for _, d := range r.data {
		if d.SubjectID == doc.SubjectID && d.JobType == doc.JobType && d.Version > latest {
			latest = d.Version
		}
	}
	doc.Version = latest + 1
	r.data = append(r.data, doc)
	return doc, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (DocumentVersion, error) {
	return r.find(ctx, func(d DocumentVersion) bool { return d.ID == id })
}

func (r *MemoryRepo) GetByJob(ctx context.Context, jobID string) (DocumentVersion, error) {
	return r.find(ctx, func(d DocumentVersion) bool { return d.JobID == jobID })
}

func (r *MemoryRepo) find(ctx context.Context, match func(DocumentVersion) bool) (DocumentVersion, error) {
	if err := ctx.Err(); err != nil {
		return DocumentVersion{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.data {
		if match(d) {
			return d, nil
		}
	}
	return DocumentVersion{}, ErrNotFound
}

// ListBySubject returns versions newest first. An empty jobType matches every type.
func (r *MemoryRepo) ListBySubject(ctx context.Context, subjectID, jobType string, limit, offset int) ([]DocumentVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	docs := []DocumentVersion{}
	for _, d := range r.data {
		if d.SubjectID == subjectID && (jobType == "" || d.JobType == jobType) {
			docs = append(docs, d)
		}
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].Version > docs[j].Version
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	if offset >= len(docs) {
		return []DocumentVersion{}, nil
	}
	end := len(docs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return docs[offset:end], nil
}

var _ Repo = (*MemoryRepo)(nil)
