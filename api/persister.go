package api

// Persister is the snapshot/restore boundary to durable storage, used by
// the executor's builder when durability across restarts is wanted. It
// persists the executor's own bookkeeping (last applied index, session
// table) separately from the user state machine's Snapshot()/Restore()
// blob, which it stores alongside.
type Persister interface {
	// SaveSnapshot atomically persists execState (the executor's encoded
	// bookkeeping) together with smState (the user state machine's
	// snapshot blob).
	SaveSnapshot(execState, smState []byte) error

	// ReadSnapshot returns the most recently saved pair, or (nil, nil, nil)
	// if none has been saved yet.
	ReadSnapshot() (execState, smState []byte, err error)

	// Close releases any underlying resources.
	Close() error
}
