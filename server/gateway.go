package server

import (
	"context"
	"time"

	"github.com/shrtyk/rsm/api"
)

// Gateway is the server-side half of the client<->server RPC contract
// (spec.md §6): it turns RegisterRequest/KeepAliveRequest/CommandRequest/
// QueryRequest into log entries, proposes them through the out-of-scope
// Raft log, waits for the executor to apply them, and reports the
// outcome. Grounded in the teacher's grpc_server.go, which likewise
// implements the RPC service directly against the concrete node type
// rather than behind another interface layer.
type Gateway struct {
	exec *Executor
	log  api.LogAppender

	selfAddr string
	members  []string
}

// NewGateway wires an Executor to a LogAppender to answer client RPCs.
// selfAddr/members populate the Leader/Members fields of responses; a
// real deployment refreshes members as the cluster view changes.
func NewGateway(exec *Executor, log api.LogAppender, selfAddr string, members []string) *Gateway {
	return &Gateway{exec: exec, log: log, selfAddr: selfAddr, members: members}
}

func (g *Gateway) HandleRegister(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	entry := &api.RegisterEntry{Timestamp: nowMillis(), Member: req.Member}
	index, err := g.log.Propose(ctx, entry)
	if err != nil {
		return nil, err
	}

	select {
	case <-g.exec.AwaitIndex(index):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &api.RegisterResponse{
		Status:    api.StatusOK,
		Leader:    g.selfAddr,
		SessionID: index,
		Members:   g.members,
	}, nil
}

func (g *Gateway) HandleKeepAlive(ctx context.Context, req *api.KeepAliveRequest) (*api.KeepAliveResponse, error) {
	entry := &api.KeepAliveEntry{SessionID: req.SessionID, Timestamp: nowMillis()}
	index, err := g.log.Propose(ctx, entry)
	if err != nil {
		return nil, err
	}

	select {
	case <-g.exec.AwaitIndex(index):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if _, ok := g.exec.sessionLookup(req.SessionID); !ok {
		return &api.KeepAliveResponse{Status: api.StatusErr}, nil
	}

	return &api.KeepAliveResponse{
		Status:  api.StatusOK,
		Leader:  g.selfAddr,
		Version: g.exec.LastApplied(),
		Members: g.members,
	}, nil
}

func (g *Gateway) HandleCommand(ctx context.Context, req *api.CommandRequest) (*api.CommandResponse, error) {
	entry := &api.CommandEntry{
		SessionID:   req.SessionID,
		RequestNo:   req.RequestNo,
		ResponseAck: req.ResponseAck,
		Timestamp:   nowMillis(),
		Payload:     req.Payload,
	}
	index, err := g.log.Propose(ctx, entry)
	if err != nil {
		return nil, err
	}

	select {
	case <-g.exec.AwaitIndex(index):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	cached, ok := g.exec.commandResult(req.SessionID, req.RequestNo)
	if !ok {
		return &api.CommandResponse{Status: api.StatusErr, ErrKind: errKindUnknownSession}, nil
	}
	if cached.Err != nil {
		return &api.CommandResponse{
			Status:  api.StatusErr,
			Leader:  g.selfAddr,
			Version: g.exec.LastApplied(),
			ErrKind: errKindUserError,
			ErrMsg:  cached.Err.Error(),
		}, nil
	}

	return &api.CommandResponse{
		Status:  api.StatusOK,
		Leader:  g.selfAddr,
		Version: g.exec.LastApplied(),
		Result:  cached.Result,
	}, nil
}

// HandleQuery answers a Query without touching the log: queries may
// bypass it entirely per spec.md §4.4.
func (g *Gateway) HandleQuery(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
	entry := &api.QueryEntry{
		SessionID:       req.SessionID,
		RequiredVersion: req.Version,
		Timestamp:       nowMillis(),
		Payload:         req.Payload,
	}

	result := make(chan queryOutcome, 1)
	go func() {
		res, err := g.exec.SubmitQuery(entry)
		result <- queryOutcome{res: res, err: err}
	}()

	select {
	case out := <-result:
		if out.err != nil {
			return g.queryErrorResponse(out.err), nil
		}
		return &api.QueryResponse{
			Status:  api.StatusOK,
			Leader:  g.selfAddr,
			Version: g.exec.LastApplied(),
			Result:  out.res,
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type queryOutcome struct {
	res []byte
	err error
}

func (g *Gateway) queryErrorResponse(err error) *api.QueryResponse {
	resp := &api.QueryResponse{Status: api.StatusErr, Leader: g.selfAddr}
	switch {
	case err == api.ErrUnknownSession:
		resp.ErrKind = errKindUnknownSession
	default:
		if ue, ok := err.(*api.UserError); ok {
			resp.ErrKind = errKindUserError
			resp.ErrMsg = ue.Error()
		} else {
			resp.ErrKind = errKindProtocolViolation
			resp.ErrMsg = err.Error()
		}
	}
	return resp
}

func nowMillis() int64 { return time.Now().UnixMilli() }

const (
	errKindUnknownSession    = "unknown_session"
	errKindUserError         = "user_error"
	errKindProtocolViolation = "protocol_violation"
)

// PublishStream is the minimal send-side contract a transport needs to
// deliver Publish events to an open client connection. Satisfied
// structurally by grpc.ServerStream so this package stays transport-
// agnostic (spec.md §4.6/§6).
type PublishStream interface {
	SendMsg(m any) error
}

type streamSink struct {
	stream PublishStream
}

func (s streamSink) OnPublish(msg *api.PublishMessage) {
	_ = s.stream.SendMsg(msg)
}

// Subscribe exposes the executor's Subscribe to transports that deliver
// Publish events without a streaming RPC (e.g. an in-process transport).
func (g *Gateway) Subscribe(sessionID int64, sink api.PublishSink) func() {
	return g.exec.Subscribe(sessionID, sink)
}

// StreamPublishes subscribes stream to sessionID's Publish events until
// ctx is done, per spec.md §4.6: delivery is best-effort over the
// session's currently open connection.
func (g *Gateway) StreamPublishes(ctx context.Context, sessionID int64, stream PublishStream) error {
	unsubscribe := g.exec.Subscribe(sessionID, streamSink{stream: stream})
	defer unsubscribe()

	<-ctx.Done()
	return ctx.Err()
}

// sessionLookup exposes registry.lookup to the gateway via the executor's
// serial queue.
func (e *Executor) sessionLookup(sessionID int64) (*api.Session, bool) {
	type result struct {
		s  *api.Session
		ok bool
	}
	out := make(chan result, 1)
	e.submitTask(func() {
		s, ok := e.registry.lookup(sessionID)
		out <- result{s, ok}
	})
	r := <-out
	return r.s, r.ok
}
