package server

import (
	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/pkg/logger"
	"github.com/shrtyk/rsm/storage"
)

// applyRegister implements spec.md §4.3.2: create a session, invoke the
// user Register callback.
func (e *Executor) applyRegister(entry *api.RegisterEntry) {
	s := e.registry.register(entry.LogIndex, entry.Timestamp, entry.Member)
	e.sm.Register(s)
}

// applyKeepAlive implements spec.md §4.3.3. Absent or just-expired sessions
// fail UnknownSession, which signals the client to re-register.
func (e *Executor) applyKeepAlive(entry *api.KeepAliveEntry) {
	result, session := e.registry.touch(entry.SessionID, entry.LogIndex, entry.Timestamp, e.cfg.SessionTimeout.Milliseconds())
	switch result {
	case touchUnknown:
		e.logger.Debug("keep-alive for unknown session", "session_id", entry.SessionID)
	case touchExpired:
		e.sm.Expire(session)
	case touchOK:
	}
}

// applyCommand implements spec.md §4.3.1.
func (e *Executor) applyCommand(entry *api.CommandEntry) {
	if _, ok := e.registry.lookup(entry.SessionID); !ok {
		e.logger.Debug("command for unknown session", "session_id", entry.SessionID)
		return
	}

	result, session := e.registry.touch(entry.SessionID, entry.LogIndex, entry.Timestamp, e.cfg.SessionTimeout.Milliseconds())
	switch result {
	case touchExpired:
		e.sm.Expire(session)
		return
	case touchUnknown:
		return
	}

	if _, ok := session.CachedResponse(entry.RequestNo); ok {
		// Already applied: the cached result stands, Apply is not
		// re-invoked (spec.md §8 idempotence property).
		return
	}

	commit := api.Commit{
		Index:     entry.LogIndex,
		Session:   session,
		Timestamp: entry.Timestamp,
		Payload:   entry.Payload,
	}
	applied, err := e.sm.Apply(commit)
	session.CacheResponse(entry.RequestNo, api.CachedResponse{Result: applied, Err: api.NewUserError(err)})
	session.TrimResponses(entry.ResponseAck)
	e.recordCommand(entry, applied, err)
}

// recordCommand best-effort audits a freshly-applied command. A WAL write
// failure is logged but never fails the apply path: the audit log is a
// diagnostic trail, not the source of truth for state-machine state.
func (e *Executor) recordCommand(entry *api.CommandEntry, result []byte, applyErr error) {
	if e.cmdLog == nil {
		return
	}
	rec := storage.CommandRecord{
		Index:     entry.LogIndex,
		SessionID: entry.SessionID,
		RequestNo: entry.RequestNo,
		Timestamp: entry.Timestamp,
		Payload:   entry.Payload,
		Result:    result,
	}
	if applyErr != nil {
		rec.Err = applyErr.Error()
	}
	if err := e.cmdLog.Append(rec); err != nil {
		e.logger.Warn("command audit log append failed", logger.ErrAttr(err))
	}
}

// commandResult looks up the outcome of a command that has already been
// applied (or was served from cache), for the transport layer to answer an
// RPC with. Marshaled through submitTask like sessionLookup: the registry
// and its sessions' response caches are owned by the executor goroutine,
// which keeps mutating them concurrently with any caller of this method.
func (e *Executor) commandResult(sessionID, requestNo int64) (api.CachedResponse, bool) {
	type result struct {
		resp api.CachedResponse
		ok   bool
	}
	out := make(chan result, 1)
	e.submitTask(func() {
		s, ok := e.registry.lookup(sessionID)
		if !ok {
			out <- result{}
			return
		}
		resp, ok := s.CachedResponse(requestNo)
		out <- result{resp, ok}
	})
	r := <-out
	return r.resp, r.ok
}
