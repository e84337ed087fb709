package api

// Commit is the argument passed to StateMachine.Apply for both commands and
// queries. Queries and commands share this shape; Apply cannot tell which
// produced it and must not need to.
type Commit struct {
	Index     int64
	Session   *Session
	Timestamp int64
	Payload   []byte
}

// CompactionContext carries whatever information the log layer's compactor
// supplies about the entry under consideration (e.g. snapshot boundaries).
// Its contents are opaque to this module.
type CompactionContext struct {
	SnapshotIndex int64
}

// StateMachine is the extension point this runtime serves. The application
// embedding this module implements it; every method runs on the server's
// single serial executor goroutine, so implementations need no internal
// locking against concurrent callbacks on the same instance.
type StateMachine interface {
	// Register is called once per session creation, after the session has
	// been added to the registry.
	Register(session *Session)

	// Expire is called once when a session transitions to Expired.
	Expire(session *Session)

	// Apply advances the state machine for a Command, or answers a Query.
	// A non-nil error is surfaced to the requesting client as UserError;
	// the session remains open.
	Apply(commit Commit) ([]byte, error)

	// Filter decides, during log compaction, whether a CommandEntry should
	// be retained. It runs on the serial executor like Apply. If the
	// entry's session is gone, commit.Session is a synthesized session with
	// State == Expired so the filter can still decide; implementations
	// must tolerate that.
	Filter(commit Commit, ctx CompactionContext) bool

	// Snapshot serializes current application state for the log layer's
	// compaction/restore cycle.
	Snapshot() ([]byte, error)

	// Restore replaces application state with a blob previously returned
	// by Snapshot (or a zero-length blob meaning "initial state").
	Restore(snapshot []byte) error
}
