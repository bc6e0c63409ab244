// Package queue implements the request queue the completion handler
// emits final replies to. Client-facing transport/IPC is a collaborator
// with its own contract; ResultQueue is the in-process queue
// cmd/secretsd wires the processor to, single-producer (the actor) and
// single-consumer.
package queue

import (
	"context"
	"fmt"

	"github.com/sealbox/secretsd/internal/apperr"
)

// Entry pairs a completed request's id with its final Result.
type Entry struct {
	RequestID string
	Result    apperr.Result
}

// ResultQueue is a bounded, ordered channel of completed request
// results.
type ResultQueue struct {
	ch chan Entry
}

// New returns a ResultQueue buffering up to capacity entries before
// Emit blocks.
func New(capacity int) *ResultQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &ResultQueue{ch: make(chan Entry, capacity)}
}

// Emit posts entry to the queue, blocking if it is full. Called only
// from the actor goroutine.
func (q *ResultQueue) Emit(entry Entry) {
	q.ch <- entry
}

// Receive blocks until an entry is available or ctx is done.
func (q *ResultQueue) Receive(ctx context.Context) (Entry, error) {
	select {
	case e := <-q.ch:
		return e, nil
	case <-ctx.Done():
		return Entry{}, fmt.Errorf("receive result: %w", ctx.Err())
	}
}

// Chan exposes the underlying channel for callers that want to select
// on it directly alongside other event sources.
func (q *ResultQueue) Chan() <-chan Entry {
	return q.ch
}
