package server

import (
	"context"
	"testing"
	"time"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/pkg/logger"
	"github.com/shrtyk/rsm/transport/simtransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, sm api.StateMachine) (*Executor, *simtransport.Log) {
	t.Helper()
	_, log := logger.NewTestLogger()
	feed := simtransport.NewLog(16)
	exec := newExecutor(api.TestRuntimeConfig(), sm, feed, nil, nil, log)
	require.NoError(t, exec.Start())
	t.Cleanup(func() {
		exec.Stop()
		feed.Close()
	})
	return exec, feed
}

func proposeAndAwait(t *testing.T, exec *Executor, feed *simtransport.Log, entry api.Entry) int64 {
	t.Helper()
	index, err := feed.Propose(context.Background(), entry)
	require.NoError(t, err)
	select {
	case <-exec.AwaitIndex(index):
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for index %d to apply", index)
	}
	return index
}

func TestExecutorRegisterAndCommand(t *testing.T) {
	sm := &fakeStateMachine{}
	exec, feed := newTestExecutor(t, sm)

	sessionID := proposeAndAwait(t, exec, feed, &api.RegisterEntry{Timestamp: 1, Member: "node-a"})
	assert.Equal(t, 1, sm.registerCount())

	proposeAndAwait(t, exec, feed, &api.CommandEntry{
		SessionID: sessionID,
		RequestNo: 1,
		Timestamp: 2,
		Payload:   []byte("hello"),
	})

	result, ok := exec.commandResult(sessionID, 1)
	require.True(t, ok)
	require.NoError(t, result.Err)
	assert.Equal(t, "echo:hello:1", string(result.Result))
}

func TestExecutorCommandIsIdempotent(t *testing.T) {
	sm := &fakeStateMachine{}
	exec, feed := newTestExecutor(t, sm)
	sessionID := proposeAndAwait(t, exec, feed, &api.RegisterEntry{Timestamp: 1, Member: "node-a"})

	cmd := &api.CommandEntry{SessionID: sessionID, RequestNo: 1, Timestamp: 2, Payload: []byte("x")}
	proposeAndAwait(t, exec, feed, cmd)

	first, _ := exec.commandResult(sessionID, 1)

	// Re-deliver the exact same RequestNo: must not re-invoke Apply.
	cmd2 := &api.CommandEntry{SessionID: sessionID, RequestNo: 1, Timestamp: 3, Payload: []byte("x")}
	proposeAndAwait(t, exec, feed, cmd2)

	second, _ := exec.commandResult(sessionID, 1)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, "echo:x:1", string(second.Result))
}

func TestExecutorCommandUserError(t *testing.T) {
	sm := &fakeStateMachine{}
	exec, feed := newTestExecutor(t, sm)
	sessionID := proposeAndAwait(t, exec, feed, &api.RegisterEntry{Timestamp: 1, Member: "node-a"})

	proposeAndAwait(t, exec, feed, &api.CommandEntry{
		SessionID: sessionID,
		RequestNo: 1,
		Timestamp: 2,
		Payload:   []byte("fail"),
	})

	result, ok := exec.commandResult(sessionID, 1)
	require.True(t, ok)
	require.Error(t, result.Err)
	var ue *api.UserError
	require.ErrorAs(t, result.Err, &ue)
}

func TestExecutorKeepAliveExpiresIdleSession(t *testing.T) {
	sm := &fakeStateMachine{}
	exec, feed := newTestExecutor(t, sm)
	sessionID := proposeAndAwait(t, exec, feed, &api.RegisterEntry{Timestamp: 0, Member: "node-a"})

	timeout := int64(api.TestRuntimeConfig().SessionTimeout / time.Millisecond)
	proposeAndAwait(t, exec, feed, &api.KeepAliveEntry{SessionID: sessionID, Timestamp: timeout + 1000})

	assert.Equal(t, 1, sm.expireCount())
	_, ok := exec.sessionLookup(sessionID)
	assert.False(t, ok)
}

func TestExecutorLastAppliedAdvancesMonotonically(t *testing.T) {
	sm := &fakeStateMachine{}
	exec, feed := newTestExecutor(t, sm)
	assert.Equal(t, int64(0), exec.LastApplied())

	idx := proposeAndAwait(t, exec, feed, &api.NoOpEntry{})
	assert.Equal(t, idx, exec.LastApplied())

	idx2 := proposeAndAwait(t, exec, feed, &api.NoOpEntry{})
	assert.Greater(t, idx2, idx)
	assert.Equal(t, idx2, exec.LastApplied())
}
