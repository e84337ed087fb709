package server

import "github.com/shrtyk/rsm/api"

// Filter decides, for an entry staged for compaction, whether the log layer
// should retain it. Results must be deterministic given identical
// (entry, ctx) across replicas (spec.md §4.5).
//
// All three branches (RegisterEntry, KeepAliveEntry, CommandEntry) route
// through the executor's serial queue via submitTask: the registry they
// read is owned by the executor goroutine, and CommandEntry additionally
// invokes the user StateMachine.Filter callback there.
func (e *Executor) Filter(entry api.Entry, ctx api.CompactionContext) bool {
	switch v := entry.(type) {
	case *api.RegisterEntry:
		return e.filterRegister(v)
	case *api.KeepAliveEntry:
		return e.filterKeepAlive(v)
	case *api.CommandEntry:
		return e.filterCommand(v, ctx)
	case *api.NoOpEntry:
		return false
	default:
		return false
	}
}

func (e *Executor) filterRegister(entry *api.RegisterEntry) bool {
	result := make(chan bool, 1)
	e.submitTask(func() {
		_, ok := e.registry.lookup(entry.LogIndex)
		result <- ok
	})
	return <-result
}

func (e *Executor) filterKeepAlive(entry *api.KeepAliveEntry) bool {
	result := make(chan bool, 1)
	e.submitTask(func() {
		s, ok := e.registry.lookup(entry.SessionID)
		result <- ok && s.LastIndex == entry.LogIndex
	})
	return <-result
}

func (e *Executor) filterCommand(entry *api.CommandEntry, ctx api.CompactionContext) bool {
	result := make(chan bool, 1)
	e.submitTask(func() {
		session, ok := e.registry.lookup(entry.SessionID)
		if !ok {
			// Synthesize a short-lived expired session so the user filter
			// can still decide (spec.md §4.5, Design Notes §9).
			session = api.NewSession(entry.SessionID, "", entry.Timestamp)
			session.State = api.Expired
		}
		commit := api.Commit{
			Index:     entry.LogIndex,
			Session:   session,
			Timestamp: entry.Timestamp,
			Payload:   entry.Payload,
		}
		result <- e.sm.Filter(commit, ctx)
	})
	return <-result
}
