package jobsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docgen-backend/internal/catalog"
	"docgen-backend/internal/engine"
	"docgen-backend/internal/jobs"
	"docgen-backend/internal/shared/server/middleware"
	"docgen-backend/internal/shared/server/respond"
)

// JobService is the engine surface the HTTP layer needs.
type JobService interface {
	Enqueue(ctx context.Context, jobType, subjectID string, input json.RawMessage) (jobs.Job, error)
	GetStatus(ctx context.Context, jobID string) (engine.Status, error)
	Resume(ctx context.Context, jobID string) (engine.Outcome, error)
	ResumeAsync(ctx context.Context, jobID string) (jobs.Job, error)
	ListResumable(ctx context.Context, subjectID string) ([]engine.ResumableJob, error)
	WaitForStatus(ctx context.Context, jobID string, opts engine.PollOptions) (engine.Status, error)
}

// Handler wires HTTP handlers to the job engine.
type Handler struct {
	Svc  JobService
	Wait engine.PollOptions

	poll *pollLimiter
}

// NewHandler constructs a Handler. wait bounds the long-poll endpoint.
func NewHandler(svc JobService, wait engine.PollOptions) *Handler {
	return &Handler{Svc: svc, Wait: wait, poll: newPollLimiter(pollLimitWindow, nil)}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/catalog", h.listCatalog)
	rg.POST("/jobs", h.enqueue)
	rg.GET("/jobs/:jobId", h.getStatus)
	rg.GET("/jobs/:jobId/wait", h.waitStatus)
	rg.POST("/jobs/:jobId/resume", h.resume)
	rg.GET("/resumable-jobs", h.listResumable)
}

type enqueueRequest struct {
	Type      string          `json:"type"`
	SubjectID string          `json:"subjectId"`
	Input     json.RawMessage `json:"input"`
}

func (h *Handler) enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, engine.CodeInvalidInput, "invalid request body", nil)
		return
	}
	c.Set("subjectId", req.SubjectID)

	job, err := h.Svc.Enqueue(requestContext(c), req.Type, req.SubjectID, req.Input)
	if err != nil {
		respondError(c, err, "failed to enqueue job")
		return
	}
	c.Set("jobId", job.ID)
	c.Set("statusTransition", "->"+job.Status)
	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *Handler) getStatus(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("jobId"))
	c.Set("jobId", jobID)
	if !h.poll.Allow(middleware.PrincipalFromContext(c), jobID) {
		c.Header("Retry-After", strconv.Itoa(h.poll.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, engine.CodeRateLimited, "status polled too often", nil)
		return
	}

	st, err := h.Svc.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err, "failed to fetch job")
		return
	}
	respond.OK(c, st)
}

// waitStatus long-polls until the job is terminal or the window closes. A
// timeout is not a job failure: the response carries the latest status with
// timedOut set.
func (h *Handler) waitStatus(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("jobId"))
	c.Set("jobId", jobID)

	opts := h.Wait
	if v := c.Query("timeout"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 && (opts.Window <= 0 || d < opts.Window) {
			opts.Window = d
		}
	}

	st, err := h.Svc.WaitForStatus(c.Request.Context(), jobID, opts)
	switch {
	case err == nil:
		respond.OK(c, gin.H{"status": st, "timedOut": false})
	case errors.Is(err, engine.ErrPollTimeout):
		respond.JSON(c, http.StatusAccepted, gin.H{"status": st, "timedOut": true})
	default:
		respondError(c, err, "failed to fetch job")
	}
}

func (h *Handler) resume(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("jobId"))
	c.Set("jobId", jobID)
	c.Set("statusTransition", jobs.StatusFailed+"->"+jobs.StatusProcessing)

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		out, err := h.Svc.Resume(requestContext(c), jobID)
		if err != nil {
			respondError(c, err, "failed to resume job")
			return
		}
		respond.OK(c, out)
		return
	}

	job, err := h.Svc.ResumeAsync(requestContext(c), jobID)
	if err != nil {
		respondError(c, err, "failed to resume job")
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *Handler) listResumable(c *gin.Context) {
	items, err := h.Svc.ListResumable(c.Request.Context(), c.Query("subjectId"))
	if err != nil {
		respondError(c, err, "failed to list resumable jobs")
		return
	}
	respond.OK(c, gin.H{"items": items})
}

type catalogSection struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Order int    `json:"order"`
}

type catalogEntry struct {
	Type     catalog.JobType  `json:"type"`
	Title    string           `json:"title"`
	Version  int              `json:"version"`
	Sections []catalogSection `json:"sections"`
}

func (h *Handler) listCatalog(c *gin.Context) {
	types := catalog.Types()
	out := make([]catalogEntry, 0, len(types))
	for _, t := range types {
		e, err := catalog.Lookup(t)
		if err != nil {
			continue
		}
		entry := catalogEntry{Type: e.Type, Title: e.Title, Version: e.Version}
		for _, s := range e.Sections {
			entry.Sections = append(entry.Sections, catalogSection{Name: s.Name, Title: s.Title, Order: s.Order})
		}
		out = append(out, entry)
	}
	respond.OK(c, gin.H{"items": out})
}

func requestContext(c *gin.Context) context.Context {
	return engine.WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}
