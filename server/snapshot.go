package server

import (
	"encoding/json"
	"fmt"

	"github.com/shrtyk/rsm/api"
)

// execSnapshot is the executor's own durable state: last_applied and the
// live session registry. It is serialized separately from the user state
// machine's opaque snapshot blob (spec.md §4.11).
type execSnapshot struct {
	LastApplied int64          `json:"last_applied"`
	Sessions    []*api.Session `json:"sessions"`
}

// restore loads the most recent snapshot pair from the persister, if any,
// and feeds the state machine half to sm.Restore. Called once from Start,
// before the run loop begins draining the log feed.
func (e *Executor) restore() error {
	execBytes, smBytes, err := e.pst.ReadSnapshot()
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if execBytes == nil {
		return nil
	}

	var snap execSnapshot
	if err := json.Unmarshal(execBytes, &snap); err != nil {
		return fmt.Errorf("unmarshal exec snapshot: %w", err)
	}

	e.lastApplied = snap.LastApplied
	for _, s := range snap.Sessions {
		e.registry.sessions[s.ID] = s
	}

	if smBytes != nil {
		if err := e.sm.Restore(smBytes); err != nil {
			return fmt.Errorf("restore state machine: %w", err)
		}
	}
	return nil
}

// snapshot captures the current executor and state-machine state and
// persists it through e.pst. Must run on the executor goroutine, since it
// reads registry state directly and calls the user Snapshot callback.
func (e *Executor) snapshot() error {
	sessions := make([]*api.Session, 0, len(e.registry.sessions))
	for _, s := range e.registry.sessions {
		sessions = append(sessions, s)
	}

	execBytes, err := json.Marshal(execSnapshot{LastApplied: e.lastApplied, Sessions: sessions})
	if err != nil {
		return fmt.Errorf("marshal exec snapshot: %w", err)
	}

	smBytes, err := e.sm.Snapshot()
	if err != nil {
		return fmt.Errorf("state machine snapshot: %w", err)
	}

	return e.pst.SaveSnapshot(execBytes, smBytes)
}

// TakeSnapshot requests a snapshot from outside the executor goroutine
// (e.g. a periodic timer driven by RuntimeConfig.Snapshot.Interval).
func (e *Executor) TakeSnapshot() error {
	if e.pst == nil {
		return nil
	}
	errCh := make(chan error, 1)
	e.submitTask(func() { errCh <- e.snapshot() })
	return <-errCh
}
