package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Transport implements api.Transport over grpc.ClientConn, one connection
// per member, dialed lazily and kept open. Grounded in the teacher's
// pkg/transport/connections.go dialing pattern, adapted to the session
// RPCs of spec.md §6 and the jsonCodec of this package instead of
// protobuf.
type Transport struct {
	logger *slog.Logger

	mu      sync.Mutex
	conns   map[string]*grpc.ClientConn
	members []string

	sink       api.PublishSink
	sessionID  int64
	streamStop map[string]context.CancelFunc
}

var _ api.Transport = (*Transport)(nil)

// NewTransport creates a Transport that can reach every address in
// members. Connections are dialed on first use.
func NewTransport(members []string, log *slog.Logger) *Transport {
	return &Transport{
		logger:     log,
		conns:      make(map[string]*grpc.ClientConn),
		members:    members,
		streamStop: make(map[string]context.CancelFunc),
	}
}

func (t *Transport) Members() []string { return t.members }

func (t *Transport) connFor(member string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if conn, ok := t.conns[member]; ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(member, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", member, err)
	}
	t.conns[member] = conn
	return conn, nil
}

func (t *Transport) invoke(ctx context.Context, member, method string, req, resp any) error {
	conn, err := t.connFor(member)
	if err != nil {
		return err
	}
	return conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(codecName))
}

func (t *Transport) SendRegister(ctx context.Context, member string, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	resp := new(api.RegisterResponse)
	if err := t.invoke(ctx, member, methodRegister, req, resp); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.sessionID = resp.SessionID
	t.mu.Unlock()
	t.openPublishStream(member)
	return resp, nil
}

func (t *Transport) SendKeepAlive(ctx context.Context, member string, req *api.KeepAliveRequest) (*api.KeepAliveResponse, error) {
	resp := new(api.KeepAliveResponse)
	err := t.invoke(ctx, member, methodKeepAlive, req, resp)
	return resp, err
}

func (t *Transport) SendCommand(ctx context.Context, member string, req *api.CommandRequest) (*api.CommandResponse, error) {
	resp := new(api.CommandResponse)
	err := t.invoke(ctx, member, methodCommand, req, resp)
	return resp, err
}

func (t *Transport) SendQuery(ctx context.Context, member string, req *api.QueryRequest) (*api.QueryResponse, error) {
	resp := new(api.QueryResponse)
	err := t.invoke(ctx, member, methodQuery, req, resp)
	return resp, err
}

// SetPublishSink installs the sink that receives server-pushed events. A
// subsequent SendRegister (re)opens the Publish stream against the
// registering member.
func (t *Transport) SetPublishSink(sink api.PublishSink) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

// openPublishStream opens (or reopens) the server-streaming Publish call
// against member for the current session, closing any prior stream first
// per spec.md §4.7's "one connection at a time".
func (t *Transport) openPublishStream(member string) {
	t.mu.Lock()
	sink := t.sink
	sessionID := t.sessionID
	for addr, cancel := range t.streamStop {
		cancel()
		delete(t.streamStop, addr)
	}
	t.mu.Unlock()

	if sink == nil {
		return
	}

	conn, err := t.connFor(member)
	if err != nil {
		t.logger.Warn("publish stream dial failed", "member", member, logger.ErrAttr(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.streamStop[member] = cancel
	t.mu.Unlock()

	go t.runPublishStream(ctx, conn, member, sessionID, sink)
}

func (t *Transport) runPublishStream(ctx context.Context, conn *grpc.ClientConn, member string, sessionID int64, sink api.PublishSink) {
	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "Publish", ServerStreams: true}, methodPublish, grpc.CallContentSubtype(codecName))
	if err != nil {
		t.logger.Warn("publish stream open failed", "member", member, logger.ErrAttr(err))
		return
	}

	if err := stream.SendMsg(&publishSubscribeRequest{SessionID: sessionID}); err != nil {
		t.logger.Warn("publish stream subscribe failed", "member", member, logger.ErrAttr(err))
		return
	}

	for {
		msg := new(api.PublishMessage)
		if err := stream.RecvMsg(msg); err != nil {
			if !errors.Is(err, context.Canceled) {
				t.logger.Debug("publish stream closed", "member", member, logger.ErrAttr(err))
			}
			return
		}
		sink.OnPublish(msg)
	}
}

// Close releases every dialed connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, cancel := range t.streamStop {
		cancel()
	}

	var err error
	for addr, conn := range t.conns {
		if cerr := conn.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close %s: %w", addr, cerr))
		}
	}
	return err
}
