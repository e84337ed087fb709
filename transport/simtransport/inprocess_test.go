package simtransport

import (
	"context"
	"testing"
	"time"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/pkg/logger"
	"github.com/shrtyk/rsm/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoStateMachine struct{}

func (echoStateMachine) Register(*api.Session) {}
func (echoStateMachine) Expire(*api.Session)    {}
func (echoStateMachine) Apply(commit api.Commit) ([]byte, error) {
	return append([]byte("echo:"), commit.Payload...), nil
}
func (echoStateMachine) Filter(api.Commit, api.CompactionContext) bool { return true }
func (echoStateMachine) Snapshot() ([]byte, error)                    { return nil, nil }
func (echoStateMachine) Restore([]byte) error                         { return nil }

func newTestGateway(t *testing.T) *server.Gateway {
	t.Helper()
	_, log := logger.NewTestLogger()
	feed := NewLog(16)
	execIface, err := server.NewExecutorBuilder(echoStateMachine{}, feed).
		WithConfig(api.TestRuntimeConfig()).
		WithLogger(log).
		Build()
	require.NoError(t, err)
	require.NoError(t, execIface.Start())

	t.Cleanup(func() {
		execIface.Stop()
		feed.Close()
	})
	return server.NewGateway(execIface.(*server.Executor), feed, "self", []string{"self"})
}

func TestInProcessRegisterSubscribesSink(t *testing.T) {
	gw := newTestGateway(t)
	tr := NewInProcess(gw, "self")
	tr.SetPublishSink(sinkFunc(func(msg *api.PublishMessage) {}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := tr.SendRegister(ctx, "self", &api.RegisterRequest{})
	require.NoError(t, err)
	require.Equal(t, api.StatusOK, resp.Status)

	_, err = tr.SendCommand(ctx, "self", &api.CommandRequest{SessionID: resp.SessionID, RequestNo: 1, Payload: []byte("x")})
	require.NoError(t, err)
}

func TestInProcessCommandAndQuery(t *testing.T) {
	gw := newTestGateway(t)
	tr := NewInProcess(gw, "self")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := tr.SendRegister(ctx, "self", &api.RegisterRequest{})
	require.NoError(t, err)

	cmdResp, err := tr.SendCommand(ctx, "self", &api.CommandRequest{SessionID: resp.SessionID, RequestNo: 1, Payload: []byte("a")})
	require.NoError(t, err)
	assert.Equal(t, "echo:a", string(cmdResp.Result))

	queryResp, err := tr.SendQuery(ctx, "self", &api.QueryRequest{SessionID: resp.SessionID, Payload: []byte("b")})
	require.NoError(t, err)
	assert.Equal(t, "echo:b", string(queryResp.Result))
}

type sinkFunc func(msg *api.PublishMessage)

func (f sinkFunc) OnPublish(msg *api.PublishMessage) { f(msg) }
