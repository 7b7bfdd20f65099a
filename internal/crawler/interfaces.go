package crawler

import (
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned by Dequeue once a queue is closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// ErrUnsupportedRecord is returned by sinks that only store some record kinds.
var ErrUnsupportedRecord = errors.New("unsupported record kind")

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Queue provides enqueue/dequeue semantics for crawl tasks.
type Queue[T any] interface {
	Enqueue(ctx context.Context, item T) error
	Dequeue(ctx context.Context) (T, error)
}

// RecordSink persists finalized records downstream.
type RecordSink interface {
	Write(ctx context.Context, record Record) error
}

// Publisher pushes record notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
