package server

import "github.com/shrtyk/rsm/api"

// registry tracks live sessions. It is owned exclusively by the executor
// goroutine and is never touched from another thread (spec.md §5).
type registry struct {
	sessions map[int64]*api.Session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[int64]*api.Session)}
}

// register creates a new Open session keyed by index. Never fails.
func (r *registry) register(index, timestamp int64, member string) *api.Session {
	s := api.NewSession(index, member, timestamp)
	r.sessions[index] = s
	return s
}

// touchResult is the outcome of touch.
type touchResult int

const (
	touchOK touchResult = iota
	touchExpired
	touchUnknown
)

// touch refreshes a session's liveness at index/timestamp. If the idle
// window has elapsed, the session is marked Expired and removed; the caller
// is responsible for invoking the user Expire callback on the returned
// session. On touchUnknown the returned session is nil.
func (r *registry) touch(sessionID, index, timestamp int64, timeout int64) (touchResult, *api.Session) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return touchUnknown, nil
	}
	if timestamp-s.LastTimestamp > timeout {
		s.State = api.Expired
		delete(r.sessions, sessionID)
		return touchExpired, s
	}
	s.LastIndex = index
	s.LastTimestamp = timestamp
	return touchOK, s
}

// touchQuery refreshes a session's liveness for a log-bypassing query. It
// updates only LastTimestamp, never LastIndex: a query carries no log
// position of its own, and bumping LastIndex here would perturb the
// compaction keep-alive rule (spec.md §4.5/§8, "keep iff last_index ==
// idx"), which must depend only on commands actually applied from the log.
func (r *registry) touchQuery(sessionID, timestamp int64, timeout int64) (touchResult, *api.Session) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return touchUnknown, nil
	}
	if timestamp-s.LastTimestamp > timeout {
		s.State = api.Expired
		delete(r.sessions, sessionID)
		return touchExpired, s
	}
	s.LastTimestamp = timestamp
	return touchOK, s
}

func (r *registry) lookup(sessionID int64) (*api.Session, bool) {
	s, ok := r.sessions[sessionID]
	return s, ok
}

func (r *registry) remove(sessionID int64) {
	delete(r.sessions, sessionID)
}

// expireAllDue expires every session whose idle window has elapsed as of
// timestamp, returning the expired sessions so callers can run the user
// Expire callback for each. Applied opportunistically on every entry.
func (r *registry) expireAllDue(timestamp int64, timeout int64) []*api.Session {
	var expired []*api.Session
	for id, s := range r.sessions {
		if timestamp-s.LastTimestamp > timeout {
			s.State = api.Expired
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	return expired
}

func (r *registry) count() int { return len(r.sessions) }
