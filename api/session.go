package api

import (
	"encoding/json"
	"errors"
)

// SessionState is one of Open, Expired, Closed. Once Expired a session never
// re-opens; a new one must be registered.
type SessionState int

const (
	Open SessionState = iota
	Expired
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Open:
		return "open"
	case Expired:
		return "expired"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// CachedResponse is the result of a previously-applied Command, kept so a
// retransmitted request with the same RequestNo can be answered without
// re-invoking the user state machine.
type CachedResponse struct {
	Result []byte
	Err    error
}

// Session is a logical client identity established by a RegisterEntry and
// kept alive by KeepAliveEntry/CommandEntry traffic. It carries the command
// response cache that makes replay of a duplicate request free of
// side effects.
//
// A Session is owned exclusively by the server executor goroutine; nothing
// outside it ever mutates a Session's fields.
type Session struct {
	ID            int64
	Member        string
	LastIndex     int64
	LastTimestamp int64
	State         SessionState

	responses    map[int64]CachedResponse
	responseKeys []int64 // ascending, mirrors responses' keys
}

// NewSession creates an Open session keyed by the log index of the
// RegisterEntry that created it.
func NewSession(id int64, member string, timestamp int64) *Session {
	return &Session{
		ID:            id,
		Member:        member,
		LastIndex:     id,
		LastTimestamp: timestamp,
		State:         Open,
		responses:     make(map[int64]CachedResponse),
	}
}

// CacheResponse records the result of request requestNo. Callers must only
// call this with strictly increasing requestNo per session (guaranteed by
// the log's total order over a single client's pipeline).
func (s *Session) CacheResponse(requestNo int64, resp CachedResponse) {
	if _, exists := s.responses[requestNo]; exists {
		return
	}
	s.responses[requestNo] = resp
	s.responseKeys = append(s.responseKeys, requestNo)
}

// CachedResponse returns the cached result for requestNo, if any.
func (s *Session) CachedResponse(requestNo int64) (CachedResponse, bool) {
	r, ok := s.responses[requestNo]
	return r, ok
}

// TrimResponses drops every cached response with key <= ack.
func (s *Session) TrimResponses(ack int64) {
	i := 0
	for i < len(s.responseKeys) && s.responseKeys[i] <= ack {
		delete(s.responses, s.responseKeys[i])
		i++
	}
	s.responseKeys = s.responseKeys[i:]
}

// PendingResponses returns the number of cached responses not yet trimmed.
// Used by the monitoring endpoint.
func (s *Session) PendingResponses() int { return len(s.responseKeys) }

// jsonCachedResponse mirrors CachedResponse with Err flattened to a string,
// since error is not itself JSON-serializable.
type jsonCachedResponse struct {
	Result []byte `json:"result,omitempty"`
	Err    string `json:"err,omitempty"`
}

type jsonSession struct {
	ID            int64                        `json:"id"`
	Member        string                       `json:"member"`
	LastIndex     int64                         `json:"last_index"`
	LastTimestamp int64                         `json:"last_timestamp"`
	State         SessionState                  `json:"state"`
	ResponseKeys  []int64                       `json:"response_keys"`
	Responses     map[int64]jsonCachedResponse `json:"responses"`
}

// MarshalJSON lets Session round-trip through snapshots despite its
// unexported response cache fields.
func (s *Session) MarshalJSON() ([]byte, error) {
	responses := make(map[int64]jsonCachedResponse, len(s.responses))
	for k, v := range s.responses {
		jr := jsonCachedResponse{Result: v.Result}
		if v.Err != nil {
			jr.Err = v.Err.Error()
		}
		responses[k] = jr
	}
	return json.Marshal(jsonSession{
		ID:            s.ID,
		Member:        s.Member,
		LastIndex:     s.LastIndex,
		LastTimestamp: s.LastTimestamp,
		State:         s.State,
		ResponseKeys:  s.responseKeys,
		Responses:     responses,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Session) UnmarshalJSON(data []byte) error {
	var js jsonSession
	if err := json.Unmarshal(data, &js); err != nil {
		return err
	}
	s.ID = js.ID
	s.Member = js.Member
	s.LastIndex = js.LastIndex
	s.LastTimestamp = js.LastTimestamp
	s.State = js.State
	s.responseKeys = js.ResponseKeys
	s.responses = make(map[int64]CachedResponse, len(js.Responses))
	for k, v := range js.Responses {
		cr := CachedResponse{Result: v.Result}
		if v.Err != "" {
			cr.Err = errors.New(v.Err)
		}
		s.responses[k] = cr
	}
	return nil
}
