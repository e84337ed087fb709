package api

import (
	"context"
	"log/slog"
)

// ExecutorBuilder constructs the server-side state-machine executor (C1-C6).
// Mirrors the teacher's NodeBuilder fluent-configuration pattern.
type ExecutorBuilder interface {
	Build() (Executor, error)

	WithConfig(*RuntimeConfig) ExecutorBuilder
	WithPersister(Persister) ExecutorBuilder
	WithLogger(*slog.Logger) ExecutorBuilder
}

// Executor is the public handle on a running server-side executor.
type Executor interface {
	// Start begins draining the LogFeed. Safe to call once.
	Start() error

	// Stop stops the executor goroutine and waits for it to exit. Entries
	// and tasks not yet taken from their channels are not processed.
	Stop() error

	// LastApplied returns the highest log index applied so far.
	LastApplied() int64

	// Subscribe registers sink to receive Publish events addressed to
	// sessionID. Returns an unsubscribe function.
	Subscribe(sessionID int64, sink PublishSink) (unsubscribe func())

	// SubmitQuery runs a query that bypasses the log, per spec.md §4.4.
	SubmitQuery(entry *QueryEntry) ([]byte, error)

	// TakeSnapshot persists the current state, if a Persister is configured.
	TakeSnapshot() error
}

// ClientBuilder constructs the client-side session runtime (C7/C8).
type ClientBuilder interface {
	Build() (Client, error)

	WithConfig(*RuntimeConfig) ClientBuilder
	WithLogger(*slog.Logger) ClientBuilder
}

// Client is the public handle on a running client session runtime.
type Client interface {
	// SubmitCommand assigns the next request number, registering first if
	// necessary, and returns the result once the server has applied it.
	SubmitCommand(ctx context.Context, payload []byte) ([]byte, error)

	// SubmitQuery issues a non-mutating read.
	SubmitQuery(ctx context.Context, payload []byte) ([]byte, error)

	// Version returns the highest last_applied this client has observed.
	Version() int64

	// Close cancels timers and releases the active connection.
	Close() error
}
