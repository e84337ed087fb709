package client

import (
	"context"
	"testing"
	"time"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/pkg/logger"
	"github.com/shrtyk/rsm/server"
	"github.com/shrtyk/rsm/transport/simtransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoStateMachine is a trivial state machine used to exercise the client
// runtime end-to-end over an in-process transport, without a network hop.
type echoStateMachine struct{}

func (echoStateMachine) Register(*api.Session) {}
func (echoStateMachine) Expire(*api.Session)    {}
func (echoStateMachine) Apply(commit api.Commit) ([]byte, error) {
	return append([]byte("echo:"), commit.Payload...), nil
}
func (echoStateMachine) Filter(api.Commit, api.CompactionContext) bool { return true }
func (echoStateMachine) Snapshot() ([]byte, error)                    { return nil, nil }
func (echoStateMachine) Restore([]byte) error                         { return nil }

func newTestCluster(t *testing.T) (api.Client, api.Executor) {
	t.Helper()
	cfg := api.TestRuntimeConfig()
	feed := simtransport.NewLog(16)

	execIface, err := server.NewExecutorBuilder(echoStateMachine{}, feed).WithConfig(cfg).Build()
	require.NoError(t, err)
	require.NoError(t, execIface.Start())

	exec := execIface.(*server.Executor)
	gw := server.NewGateway(exec, feed, "self", []string{"self"})
	transport := simtransport.NewInProcess(gw, "self")

	cl, err := NewClientBuilder(transport).WithConfig(cfg).Build()
	require.NoError(t, err)

	t.Cleanup(func() {
		cl.Close()
		execIface.Stop()
		feed.Close()
	})
	return cl, execIface
}

func TestRuntimeSubmitCommandRegistersLazily(t *testing.T) {
	cl, _ := newTestCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := cl.SubmitCommand(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", string(result))
}

func TestRuntimeSubmitCommandIsSequential(t *testing.T) {
	cl, _ := newTestCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		result, err := cl.SubmitCommand(ctx, []byte("x"))
		require.NoError(t, err)
		assert.Equal(t, "echo:x", string(result))
	}
}

func TestRuntimeSubmitQuery(t *testing.T) {
	cl, _ := newTestCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := cl.SubmitCommand(ctx, []byte("warm-up"))
	require.NoError(t, err)

	result, err := cl.SubmitQuery(ctx, []byte("q"))
	require.NoError(t, err)
	assert.Equal(t, "echo:q", string(result))
}

func TestRuntimeVersionAdvances(t *testing.T) {
	cl, _ := newTestCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	before := cl.Version()
	_, err := cl.SubmitCommand(ctx, []byte("bump"))
	require.NoError(t, err)
	assert.Greater(t, cl.Version(), before)
}

func TestExecutorBuilderWithLogger(t *testing.T) {
	_, log := logger.NewTestLogger()
	feed := simtransport.NewLog(4)
	execIface, err := server.NewExecutorBuilder(echoStateMachine{}, feed).
		WithConfig(api.TestRuntimeConfig()).
		WithLogger(log).
		Build()
	require.NoError(t, err)
	require.NoError(t, execIface.Start())
	defer func() {
		execIface.Stop()
		feed.Close()
	}()
	assert.Equal(t, int64(0), execIface.LastApplied())
}
