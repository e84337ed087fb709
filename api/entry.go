package api

// Entry is the closed sum type produced by the Raft log (or a bypassing
// query path). The only implementations are the five types below; the
// unexported marker method keeps the set closed so the dispatcher's type
// switch (see server/dispatch.go) is exhaustive by construction.
type Entry interface {
	// Index returns the log index this entry was committed at.
	Index() int64

	entryTag()
}

// RegisterEntry creates a new session. The session's id equals Index.
type RegisterEntry struct {
	LogIndex  int64
	Timestamp int64
	Member    string
}

func (e *RegisterEntry) Index() int64 { return e.LogIndex }
func (*RegisterEntry) entryTag()      {}

// KeepAliveEntry refreshes a session's liveness.
type KeepAliveEntry struct {
	LogIndex  int64
	SessionID int64
	Timestamp int64
}

func (e *KeepAliveEntry) Index() int64 { return e.LogIndex }
func (*KeepAliveEntry) entryTag()      {}

// CommandEntry is a state-mutating, linearizable operation, exactly-once
// per (SessionID, RequestNo).
type CommandEntry struct {
	LogIndex    int64
	SessionID   int64
	RequestNo   int64
	ResponseAck int64
	Timestamp   int64
	Payload     []byte
}

func (e *CommandEntry) Index() int64 { return e.LogIndex }
func (*CommandEntry) entryTag()      {}

// QueryEntry is a non-mutating read with a staleness bound expressed as
// RequiredVersion. Queries may bypass the log entirely; when they do,
// LogIndex is left zero, the query is answered at the executor's current
// last_applied, and other replicas never observe it.
type QueryEntry struct {
	LogIndex        int64
	SessionID       int64
	RequiredVersion int64
	Timestamp       int64
	Payload         []byte
}

func (e *QueryEntry) Index() int64 { return e.LogIndex }
func (*QueryEntry) entryTag()      {}

// NoOpEntry carries no side effects. It exists to let a query wait for a
// committed index beyond the last real mutation.
type NoOpEntry struct {
	LogIndex int64
}

func (e *NoOpEntry) Index() int64 { return e.LogIndex }
func (*NoOpEntry) entryTag()      {}
