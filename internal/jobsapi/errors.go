package jobsapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docgen-backend/internal/engine"
	"docgen-backend/internal/shared/server/respond"
)

// respondError maps engine errors to status codes and stable error codes.
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		respond.Error(c, http.StatusNotFound, engine.CodeNotFound, "job not found", nil)
	case errors.Is(err, engine.ErrNotResumable):
		respond.Error(c, http.StatusConflict, engine.CodeNotResumable, "job cannot be resumed", nil)
	case errors.Is(err, engine.ErrClaimConflict):
		respond.Error(c, http.StatusConflict, engine.CodeClaimConflict, "job is already being processed", nil)
	case errors.Is(err, engine.ErrUnknownJobType):
		respond.Error(c, http.StatusBadRequest, engine.CodeUnknownJobType, err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, engine.CodeInvalidInput, err.Error(), nil)
	case errors.Is(err, engine.ErrSubjectNotFound):
		respond.Error(c, http.StatusUnprocessableEntity, engine.CodeSubjectNotFound, "subject not found", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, engine.CodeInternalError, fallback, nil)
	}
}
