package subjects

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docgen-backend/internal/activity"
	"docgen-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc      *Service
	Activity activity.Log
}

func NewHandler(svc *Service, log activity.Log) *Handler {
	return &Handler{Svc: svc, Activity: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.PUT("/subjects/:subjectId", h.upsert)
	rg.GET("/subjects/:subjectId", h.get)
	rg.DELETE("/subjects/:subjectId", h.delete)
	rg.GET("/subjects/:subjectId/activity", h.activity)
}

type upsertRequest struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

func (h *Handler) upsert(c *gin.Context) {
	var req upsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}
	subject, err := h.Svc.Upsert(c.Request.Context(), Subject{
		ID:       c.Param("subjectId"),
		Name:     req.Name,
		Industry: req.Industry,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, "INVALID_INPUT", "name is required", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save subject", nil)
		return
	}
	respond.OK(c, subject)
}

func (h *Handler) get(c *gin.Context) {
	subject, err := h.Svc.GetByID(c.Request.Context(), c.Param("subjectId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "NOT_FOUND", "subject not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load subject", nil)
		return
	}
	respond.OK(c, subject)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), c.Param("subjectId")); err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "NOT_FOUND", "subject not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete subject", nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) activity(c *gin.Context) {
	if h.Activity == nil {
		respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "service unavailable", nil)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.Activity.List(c.Request.Context(), c.Param("subjectId"), limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list activity", nil)
		return
	}
	respond.OK(c, gin.H{"items": entries})
}
