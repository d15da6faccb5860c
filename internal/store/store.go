package store

import (
	"context"
	"errors"
	"time"
)

// Record is one comment fetched from the shared thread. CreatedAt is
// informational; append order as returned by FetchRecords is authoritative.
type Record struct {
	ID        int64
	Body      string
	CreatedAt time.Time
}

// RecordStore is the narrow interface to the comment-thread collaborator.
// Implementations are bound to one target (a single PR) at construction.
type RecordStore interface {
	// FetchRecords returns all comments on the target in stable append order.
	FetchRecords(ctx context.Context) ([]Record, error)

	// AppendRecord appends one opaque text record to the target.
	AppendRecord(ctx context.Context, body string) error
}

var (
	// ErrUnavailable indicates the collaborator could not be reached
	// (transport or auth failure). Callers must surface it, never treat it
	// as an empty thread.
	ErrUnavailable = errors.New("comment store unavailable")

	// ErrRejected indicates the collaborator refused an append, e.g.
	// permission denied. Not retryable.
	ErrRejected = errors.New("comment store rejected the record")
)
