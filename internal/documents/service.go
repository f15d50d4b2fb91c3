package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"docgen-backend/internal/shared/storage/object"
	"docgen-backend/internal/shared/telemetry"
	"docgen-backend/internal/shared/util"
)

const maxBodyBytes = 8 << 20

// Service persists assembled documents: the body goes to object storage and
// the version row to Repo.
type Service struct {
	Store object.ObjectStore
	Repo  Repo
	Now   func() time.Time
}

// NewService constructs a Service.
func NewService(store object.ObjectStore, repo Repo) *Service {
	return &Service{Store: store, Repo: repo}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// SaveVersion stores body as the next version of the subject's document. Saving
// twice for the same job returns the first version, so a job that completes
// after a retry never produces a duplicate.
func (s *Service) SaveVersion(ctx context.Context, jobID, subjectID, jobType, body string) (DocumentVersion, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" || jobType == "" || body == "" {
		return DocumentVersion{}, ErrInvalidInput
	}

	if jobID != "" {
		existing, err := s.Repo.GetByJob(ctx, jobID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return DocumentVersion{}, err
		}
	}

	doc := DocumentVersion{
		ID:          uuid.NewString(),
		JobID:       jobID,
		SubjectID:   subjectID,
		JobType:     jobType,
		ContentType: ContentType,
		Checksum:    util.HashKey(body),
		CreatedAt:   s.now(),
	}
	doc.StorageKey = storageKey(subjectID, jobType, doc.ID)

	size, err := s.Store.Put(ctx, doc.StorageKey, doc.ContentType, strings.NewReader(body))
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("store document body: %w", err)
	}
	doc.SizeBytes = size

	saved, err := s.Repo.Create(ctx, doc)
	if err != nil {
		if delErr := s.Store.Delete(context.WithoutCancel(ctx), doc.StorageKey); delErr != nil {
			telemetry.Warn("document.body.orphaned", map[string]any{
				"job_id":      jobID,
				"storage_key": doc.StorageKey,
				"error":       delErr.Error(),
			})
		}
		return DocumentVersion{}, fmt.Errorf("record document version: %w", err)
	}

	telemetry.Info("document.version.saved", map[string]any{
		"document_id": saved.ID,
		"job_id":      jobID,
		"subject_id":  subjectID,
		"job_type":    jobType,
		"version":     saved.Version,
		"size_bytes":  saved.SizeBytes,
	})
	return saved, nil
}

// Get returns version metadata by ID.
func (s *Service) Get(ctx context.Context, id string) (DocumentVersion, error) {
	if strings.TrimSpace(id) == "" {
		return DocumentVersion{}, ErrInvalidInput
	}
	// Version ids are always issued as uuids; anything else cannot exist.
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return DocumentVersion{}, fmt.Errorf("%w: malformed document id", ErrNotFound)
	}
	return s.Repo.Get(ctx, id)
}

// Body returns the stored markdown for a version.
func (s *Service) Body(ctx context.Context, id string) (DocumentVersion, string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return DocumentVersion{}, "", err
	}
	rc, err := s.Store.Open(ctx, doc.StorageKey)
	if errors.Is(err, object.ErrNotFound) {
		telemetry.Warn("document.body.missing", map[string]any{"document_id": doc.ID, "storage_key": doc.StorageKey})
		return DocumentVersion{}, "", fmt.Errorf("%w: body missing", ErrNotFound)
	}
	if err != nil {
		return DocumentVersion{}, "", fmt.Errorf("open document body: %w", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxBodyBytes))
	if err != nil {
		return DocumentVersion{}, "", fmt.Errorf("read document body: %w", err)
	}
	return doc, string(b), nil
}

// List returns a subject's versions newest first.
func (s *Service) List(ctx context.Context, subjectID, jobType string, limit, offset int) ([]DocumentVersion, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListBySubject(ctx, subjectID, jobType, limit, offset)
}

func storageKey(subjectID, jobType, id string) string {
	return path.Join("documents", util.HashKey(subjectID), strings.ToLower(jobType), id+".md")
}
