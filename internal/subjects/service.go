package subjects

import (
	"context"
	"errors"
	"strings"
)

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

func (s *Service) Upsert(ctx context.Context, subject Subject) (Subject, error) {
	if s == nil || s.Repo == nil {
		return Subject{}, errors.New("subjects service not configured")
	}
	subject.ID = strings.TrimSpace(subject.ID)
	subject.Name = strings.TrimSpace(subject.Name)
	subject.Industry = strings.TrimSpace(subject.Industry)
	if subject.ID == "" || subject.Name == "" {
		return Subject{}, ErrInvalidInput
	}
	return s.Repo.Upsert(ctx, subject)
}

func (s *Service) GetByID(ctx context.Context, subjectID string) (Subject, error) {
	if s == nil || s.Repo == nil {
		return Subject{}, errors.New("subjects service not configured")
	}
	if strings.TrimSpace(subjectID) == "" {
		return Subject{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, subjectID)
}

func (s *Service) Delete(ctx context.Context, subjectID string) error {
	if strings.TrimSpace(subjectID) == "" {
		return ErrInvalidInput
	}
	return s.Repo.Delete(ctx, subjectID)
}

// Exists reports whether the subject is registered and not deleted.
func (s *Service) Exists(ctx context.Context, subjectID string) (bool, error) {
	_, err := s.GetByID(ctx, subjectID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
		return false, nil
	default:
		return false, err
	}
}
