package engine

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"docgen-backend/internal/catalog"
	"docgen-backend/internal/generation"
)

// Stable error codes stored on jobs and returned by the API.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeNotResumable      = "NOT_RESUMABLE"
	CodeClaimConflict     = "CLAIM_CONFLICT"
	CodeUnknownJobType    = "UNKNOWN_JOB_TYPE"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeSubjectNotFound   = "SUBJECT_NOT_FOUND"
	CodeCatalogError      = "CATALOG_ERROR"
	CodeGenerationTimeout = "GENERATION_TIMEOUT"
	CodeRateLimited       = "RATE_LIMITED"
	CodeUpstreamError     = "UPSTREAM_ERROR"
	CodeUpstreamRejected  = "UPSTREAM_REJECTED"
	CodeProviderMissing   = "PROVIDER_NOT_CONFIGURED"
	CodeStorageError      = "STORAGE_ERROR"
	CodeCancelled         = "CANCELLED"
	CodeStaleWorker       = "STALE_WORKER"
	CodeRetryExhausted    = "RETRY_EXHAUSTED"
	CodeInternalError     = "INTERNAL_ERROR"
)

const maxErrorMessageLength = 500

// Classify maps a run error to its code and whether the checkpoint may be resumed.
// Transient failures keep the checkpoint resumable; permanent ones do not.
func Classify(err error) (code string, canResume bool) {
	switch {
	case err == nil:
		return CodeInternalError, false

	case errors.Is(err, ErrSubjectNotFound):
		return CodeSubjectNotFound, false
	case errors.Is(err, catalog.ErrUnknownJobType):
		return CodeUnknownJobType, false
	case errors.Is(err, catalog.ErrInvalidContext):
		return CodeInvalidInput, false
	case errors.Is(err, catalog.ErrTemplate):
		return CodeCatalogError, false
	case errors.Is(err, generation.ErrRejected):
		return CodeUpstreamRejected, false
	case errors.Is(err, generation.ErrNotConfigured):
		return CodeProviderMissing, false

	case errors.Is(err, ErrStaleLease):
		return CodeStaleWorker, true
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return CodeCancelled, true
	case errors.Is(err, generation.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeGenerationTimeout, true
	case errors.Is(err, generation.ErrRateLimited):
		return CodeRateLimited, true
	case errors.Is(err, generation.ErrUpstream):
		return CodeUpstreamError, true
	case errors.Is(err, errStorage):
		return CodeStorageError, true

	default:
		return CodeInternalError, false
	}
}

// sanitizeError flattens an error to a single line capped at 500 bytes,
// cut on a rune boundary so the text stays valid UTF-8.
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorMessageLength {
		cut := maxErrorMessageLength
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
