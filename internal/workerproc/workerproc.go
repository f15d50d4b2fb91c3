package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"docgen-backend/internal/engine"
	"docgen-backend/internal/queue"
)

// Processor runs a claimed job. engine.Service satisfies it.
type Processor interface {
	ProcessJob(ctx context.Context, jobID string) (engine.Outcome, error)
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingJobID indicates a message without a job id.
type ErrMissingJobID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingJobID) Error() string { return "missing job id" }

// ErrProcess indicates the job could not be claimed or run after successful parsing.
type ErrProcess struct {
	JobID     string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process job"
	}
	return "process job: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	msg.JobID = strings.TrimSpace(msg.JobID)
	if msg.JobID == "" {
		return msg, meta, ErrMissingJobID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// Disposition tells the consumer what to do with a handled message.
type Disposition int

const (
	// Retry leaves the message for redelivery after the visibility timeout.
	Retry Disposition = iota
	// Done deletes the message: the job reached a terminal state.
	Done
	// Skip deletes the message: the job is owned elsewhere or already finished.
	Skip
	// Drop deletes a message that can never be processed.
	Drop
)

// HandleMessage runs the job a decoded message points at.
// A FAILED outcome is still Done: the failure is recorded on the job and
// recovery goes through an explicit resume, not redelivery.
func HandleMessage(ctx context.Context, processor Processor, msg queue.Message) (engine.Outcome, Disposition, error) {
	if processor == nil {
		return engine.Outcome{}, Retry, errors.New("job processor not configured")
	}
	ctx = engine.WithRequestID(ctx, msg.RequestID)
	out, err := processor.ProcessJob(ctx, msg.JobID)
	switch {
	case err == nil:
		return out, Done, nil
	case errors.Is(err, engine.ErrClaimConflict):
		return out, Skip, nil
	case errors.Is(err, engine.ErrNotFound):
		return out, Drop, ErrProcess{JobID: msg.JobID, RequestID: msg.RequestID, Err: err}
	default:
		return out, Retry, ErrProcess{JobID: msg.JobID, RequestID: msg.RequestID, Err: err}
	}
}
