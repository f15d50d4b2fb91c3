package documents

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docgen-backend/internal/shared/server/respond"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Handler serves read access to generated document versions.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes mounts GET /documents/:id and GET /subjects/:subjectId/documents.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents/:id", h.get)
	rg.GET("/subjects/:subjectId/documents", h.list)
}

type documentResponse struct {
	DocumentVersion
	Content string `json:"content"`
}

// get returns metadata plus body as JSON, or the raw markdown with
// ?format=markdown.
func (h *Handler) get(c *gin.Context) {
	doc, body, err := h.Svc.Body(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to fetch document")
		return
	}
	c.Set("subjectId", doc.SubjectID)
	c.Set("jobId", doc.JobID)
	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(body))
		return
	}
	respond.OK(c, documentResponse{DocumentVersion: doc, Content: body})
}

func (h *Handler) list(c *gin.Context) {
	subjectID := c.Param("subjectId")
	c.Set("subjectId", subjectID)
	limit := clampQuery(c, "limit", defaultPageSize, 1, maxPageSize)
	offset := clampQuery(c, "offset", 0, 0, -1)

	docs, err := h.Svc.List(c.Request.Context(), subjectID, c.Query("jobType"), limit, offset)
	if err != nil {
		h.fail(c, err, "failed to list documents")
		return
	}
	respond.OK(c, gin.H{"items": docs, "limit": limit, "offset": offset})
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "NOT_FOUND", "document not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", fallback, nil)
	}
}

// clampQuery parses an int query parameter, falling back to def when absent
// or malformed. A negative hi means unbounded.
func clampQuery(c *gin.Context, name string, def, lo, hi int) int {
	v := def
	if raw := c.Query(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			v = parsed
		}
	}
	if v < lo {
		v = lo
	}
	if hi >= 0 && v > hi {
		v = hi
	}
	return v
}
