package jobs

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	CheckpointInProgress = "IN_PROGRESS"
	CheckpointCompleted  = "COMPLETED"
	CheckpointFailed     = "FAILED"
)

// Section is one generated unit of content, in catalog order.
type Section struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Checkpoint is the append-only progress record of a job.
// At every persisted point len(GeneratedContent) == CompletedSections == CurrentSection <= TotalSections.
type Checkpoint struct {
	JobID             string          `json:"jobId"`
	JobType           string          `json:"jobType"`
	SubjectID         string          `json:"subjectId"`
	TotalSections     int             `json:"totalSections"`
	CompletedSections int             `json:"completedSections"`
	CurrentSection    int             `json:"currentSection"`
	GeneratedContent  []Section       `json:"generatedContent"`
	PromptContext     json.RawMessage `json:"promptContext"`
	Status            string          `json:"status"`
	CanResume         bool            `json:"canResume"`
	ErrorMessage      *string         `json:"errorMessage,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// NewCheckpoint returns the cursor-zero checkpoint created alongside a job.
func NewCheckpoint(jobID, jobType, subjectID string, totalSections int, promptContext []byte, now time.Time) Checkpoint {
	return Checkpoint{
		JobID:            jobID,
		JobType:          jobType,
		SubjectID:        subjectID,
		TotalSections:    totalSections,
		GeneratedContent: []Section{},
		PromptContext:    append(json.RawMessage(nil), promptContext...),
		Status:           CheckpointInProgress,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Remaining is the number of sections still to generate.
func (c Checkpoint) Remaining() int {
	return c.TotalSections - c.CurrentSection
}

// Validate checks the cursor and content invariants.
func (c Checkpoint) Validate() error {
	if c.TotalSections <= 0 {
		return fmt.Errorf("checkpoint %s: total sections must be positive, got %d", c.JobID, c.TotalSections)
	}
	if len(c.GeneratedContent) != c.CompletedSections || c.CompletedSections != c.CurrentSection {
		return fmt.Errorf("checkpoint %s: cursor %d, completed %d and content length %d disagree",
			c.JobID, c.CurrentSection, c.CompletedSections, len(c.GeneratedContent))
	}
	if c.CurrentSection < 0 || c.CurrentSection > c.TotalSections {
		return fmt.Errorf("checkpoint %s: cursor %d outside 0..%d", c.JobID, c.CurrentSection, c.TotalSections)
	}
	if c.Status == CheckpointCompleted && c.CanResume {
		return fmt.Errorf("checkpoint %s: completed checkpoint marked resumable", c.JobID)
	}
	return nil
}

func (c Checkpoint) clone() Checkpoint {
	out := c
	out.GeneratedContent = append([]Section(nil), c.GeneratedContent...)
	if out.GeneratedContent == nil {
		out.GeneratedContent = []Section{}
	}
	out.PromptContext = append(json.RawMessage(nil), c.PromptContext...)
	return out
}
