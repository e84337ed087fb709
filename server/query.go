package server

import "github.com/shrtyk/rsm/api"

// SubmitQuery implements spec.md §4.4's apply_query operation for queries
// that bypass the log. It runs on the executor's serial queue so it
// interleaves correctly with log-driven entry application.
func (e *Executor) SubmitQuery(entry *api.QueryEntry) ([]byte, error) {
	result := make(chan queryResult, 1)
	e.submitTask(func() {
		e.applyQuery(entry, result)
	})
	r := <-result
	return r.result, r.err
}

// applyQueryFromLog handles a QueryEntry that arrived through the log feed
// (the log layer chose to replicate it rather than let it bypass). Its
// result has nowhere synchronous to go, so it is delivered only via the
// event publisher; most deployments never produce QueryEntry through the
// log feed at all.
//
// applyQuery may park entry rather than resolve it immediately, and parked
// queries are only resolved later by fireReadyQueries on this same
// goroutine. Waiting on result here directly would block dispatch forever
// on a RequiredVersion the executor itself needs to keep running to reach,
// so the wait is handed off to a throwaway goroutine and the publish is
// marshaled back through submitTask once it fires.
func (e *Executor) applyQueryFromLog(entry *api.QueryEntry) {
	result := make(chan queryResult, 1)
	e.applyQuery(entry, result)
	go func() {
		r := <-result
		if r.err == nil {
			e.submitTask(func() { e.pub.publish(entry.SessionID, r.result) })
		}
	}()
}

// applyQuery is the shared core of SubmitQuery and applyQueryFromLog. It
// must run on the executor goroutine.
func (e *Executor) applyQuery(entry *api.QueryEntry, result chan queryResult) {
	if entry.RequiredVersion > e.lastApplied {
		pq := &pendingQuery{entry: entry, done: result}
		e.queries.pending[entry.RequiredVersion] = append(e.queries.pending[entry.RequiredVersion], pq)
		return
	}
	e.runQuery(&pendingQuery{entry: entry, done: result})
}

// runQuery touches the session (if any) and invokes the user Apply
// callback. Queries never mutate responses and are never cached.
func (e *Executor) runQuery(pq *pendingQuery) {
	entry := pq.entry
	var session *api.Session
	if entry.SessionID != 0 {
		touchResult, s := e.registry.touchQuery(entry.SessionID, entry.Timestamp, e.cfg.SessionTimeout.Milliseconds())
		switch touchResult {
		case touchExpired:
			e.sm.Expire(s)
			pq.done <- queryResult{err: api.ErrUnknownSession}
			return
		case touchUnknown:
			pq.done <- queryResult{err: api.ErrUnknownSession}
			return
		}
		session = s
	}

	commit := api.Commit{
		Index:     e.lastApplied,
		Session:   session,
		Timestamp: entry.Timestamp,
		Payload:   entry.Payload,
	}
	res, err := e.sm.Apply(commit)
	pq.done <- queryResult{result: res, err: api.NewUserError(err)}
}
