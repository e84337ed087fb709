package simtransport

import (
	"context"
	"sync"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/server"
)

// InProcess is an api.Transport that calls straight into a Gateway without
// a network hop, for tests that want the real dispatch/executor/session
// logic without grpc serialization overhead.
type InProcess struct {
	gw      *server.Gateway
	members []string

	mu   sync.Mutex
	sink api.PublishSink
}

var _ api.Transport = (*InProcess)(nil)

func NewInProcess(gw *server.Gateway, selfAddr string) *InProcess {
	return &InProcess{gw: gw, members: []string{selfAddr}}
}

func (t *InProcess) Members() []string { return t.members }

func (t *InProcess) SendRegister(ctx context.Context, member string, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	resp, err := t.gw.HandleRegister(ctx, req)
	if err == nil && resp.Status == api.StatusOK {
		t.mu.Lock()
		sink := t.sink
		t.mu.Unlock()
		if sink != nil {
			t.gw.Subscribe(resp.SessionID, sink)
		}
	}
	return resp, err
}

func (t *InProcess) SendKeepAlive(ctx context.Context, member string, req *api.KeepAliveRequest) (*api.KeepAliveResponse, error) {
	return t.gw.HandleKeepAlive(ctx, req)
}

func (t *InProcess) SendCommand(ctx context.Context, member string, req *api.CommandRequest) (*api.CommandResponse, error) {
	return t.gw.HandleCommand(ctx, req)
}

func (t *InProcess) SendQuery(ctx context.Context, member string, req *api.QueryRequest) (*api.QueryResponse, error) {
	return t.gw.HandleQuery(ctx, req)
}

func (t *InProcess) SetPublishSink(sink api.PublishSink) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

func (t *InProcess) Close() error { return nil }
