package subjects

import "context"

type Repo interface {
	Upsert(ctx context.Context, subject Subject) (Subject, error)
	GetByID(ctx context.Context, subjectID string) (Subject, error)
	// Delete soft-deletes a subject. In-flight jobs for it fail permanently.
	Delete(ctx context.Context, subjectID string) error
}
