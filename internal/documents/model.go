package documents

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a document version does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidInput is returned for missing identifiers or empty bodies.
	ErrInvalidInput = errors.New("invalid document input")
)

// ContentType is the media type of assembled documents.
const ContentType = "text/markdown; charset=utf-8"

// DocumentVersion is one immutable, numbered rendition of a generated document.
// Versions count up per (subject, job type).
type DocumentVersion struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	SubjectID   string    `json:"subjectId"`
	JobType     string    `json:"jobType"`
	Version     int       `json:"version"`
	StorageKey  string    `json:"-"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"createdAt"`
}
