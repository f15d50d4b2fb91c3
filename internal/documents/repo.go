package documents

import "context"

// Repo defines persistence operations for document versions.
type Repo interface {
	// Create stores doc, assigning the next version number for its subject and job type.
	Create(ctx context.Context, doc DocumentVersion) (DocumentVersion, error)
	Get(ctx context.Context, id string) (DocumentVersion, error)
	GetByJob(ctx context.Context, jobID string) (DocumentVersion, error)
	ListBySubject(ctx context.Context, subjectID, jobType string, limit, offset int) ([]DocumentVersion, error)
}
