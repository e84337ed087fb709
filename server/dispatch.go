package server

import "github.com/shrtyk/rsm/api"

// dispatch implements the entry dispatcher (C2). It runs on the executor's
// single goroutine. Order, per spec.md §4.2:
//  1. advance last_applied (strictly monotonic)
//  2. fire any pending queries whose required version <= last_applied
//  3. expire any session whose idle window has elapsed as of this entry's
//     timestamp (C1's expire_all_due, applied opportunistically at any
//     entry per spec.md §3)
//  4. perform entry-specific logic
//
// An unrecognized tag is a protocol violation: last_applied does not
// advance past it. NoOpEntry carries no timestamp, so it only advances
// last_applied and fires queries; it never decides session liveness.
func (e *Executor) dispatch(entry api.Entry) {
	switch v := entry.(type) {
	case *api.RegisterEntry:
		e.advance(v.LogIndex)
		e.fireReadyQueries()
		e.expireDueSessions(v.Timestamp)
		e.applyRegister(v)
	case *api.KeepAliveEntry:
		e.advance(v.LogIndex)
		e.fireReadyQueries()
		e.expireDueSessions(v.Timestamp)
		e.applyKeepAlive(v)
	case *api.CommandEntry:
		e.advance(v.LogIndex)
		e.fireReadyQueries()
		e.expireDueSessions(v.Timestamp)
		e.applyCommand(v)
	case *api.QueryEntry:
		e.advance(v.LogIndex)
		e.fireReadyQueries()
		e.expireDueSessions(v.Timestamp)
		e.applyQueryFromLog(v)
	case *api.NoOpEntry:
		e.advance(v.LogIndex)
		e.fireReadyQueries()
	default:
		e.logger.Error("dropping entry with unrecognized tag; last_applied not advanced")
	}
}

// expireDueSessions implements C1's expire_all_due: every session whose
// idle window has elapsed as of timestamp is expired and reported to the
// user state machine, regardless of whether this entry names it. Without
// this, a session that is never again named by a KeepAliveEntry or
// CommandEntry would never expire and its Expire callback would never
// fire.
func (e *Executor) expireDueSessions(timestamp int64) {
	for _, s := range e.registry.expireAllDue(timestamp, e.cfg.SessionTimeout.Milliseconds()) {
		e.sm.Expire(s)
	}
}

// advance sets last_applied to index, which must be strictly greater than
// the current value.
func (e *Executor) advance(index int64) {
	if index <= e.lastApplied {
		e.logger.Error("non-monotonic log index presented to executor",
			"last_applied", e.lastApplied, "index", index)
		return
	}
	e.lastApplied = index
	e.fireIndexWaiters()
}

// fireReadyQueries fires every query parked at or below last_applied, in
// required-version order and insertion order within a version.
func (e *Executor) fireReadyQueries() {
	for _, pq := range e.queries.fireUpTo(e.lastApplied) {
		e.runQuery(pq)
	}
}
