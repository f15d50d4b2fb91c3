package subjects

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown or deleted subjects.
	ErrNotFound = errors.New("subject not found")
	// ErrInvalidInput is returned when the id or name is missing.
	ErrInvalidInput = errors.New("invalid subject input")
)

// Subject is the entity documents are generated for, typically a client.
type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Industry  string    `json:"industry,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
