package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCacheAndTrimResponses(t *testing.T) {
	s := NewSession(1, "node-a", 1000)

	s.CacheResponse(1, CachedResponse{Result: []byte("r1")})
	s.CacheResponse(2, CachedResponse{Err: errors.New("boom")})
	s.CacheResponse(3, CachedResponse{Result: []byte("r3")})

	// Re-caching an existing requestNo is a no-op.
	s.CacheResponse(1, CachedResponse{Result: []byte("ignored")})

	r, ok := s.CachedResponse(1)
	require.True(t, ok)
	assert.Equal(t, []byte("r1"), r.Result)
	assert.Equal(t, 3, s.PendingResponses())

	s.TrimResponses(2)
	assert.Equal(t, 1, s.PendingResponses())
	_, ok = s.CachedResponse(1)
	assert.False(t, ok)
	_, ok = s.CachedResponse(3)
	assert.True(t, ok)
}

func TestSessionJSONRoundTrip(t *testing.T) {
	s := NewSession(5, "node-b", 42)
	s.CacheResponse(1, CachedResponse{Result: []byte("ok")})
	s.CacheResponse(2, CachedResponse{Err: errors.New("user error")})
	s.State = Closed

	data, err := json.Marshal(s)
	require.NoError(t, err)

	restored := &Session{}
	require.NoError(t, json.Unmarshal(data, restored))

	assert.Equal(t, s.ID, restored.ID)
	assert.Equal(t, s.Member, restored.Member)
	assert.Equal(t, s.State, restored.State)
	assert.Equal(t, s.PendingResponses(), restored.PendingResponses())

	r1, ok := restored.CachedResponse(1)
	require.True(t, ok)
	assert.Equal(t, []byte("ok"), r1.Result)
	assert.NoError(t, r1.Err)

	r2, ok := restored.CachedResponse(2)
	require.True(t, ok)
	require.Error(t, r2.Err)
	assert.Equal(t, "user error", r2.Err.Error())
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "expired", Expired.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "unknown", SessionState(99).String())
}
