package queue

import "context"

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Nop drops every message. Workers then discover jobs by polling.
type Nop struct{}

func (Nop) Send(context.Context, Message) error { return nil }
