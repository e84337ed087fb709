package api

import "context"

// Transport is the client-facing RPC contract: how a client session runtime
// reaches a named cluster member. Raft's own inter-peer transport is a
// separate, out-of-scope concern; this interface only carries the five
// client<->server operations of spec.md §6.
type Transport interface {
	SendRegister(ctx context.Context, member string, req *RegisterRequest) (*RegisterResponse, error)
	SendKeepAlive(ctx context.Context, member string, req *KeepAliveRequest) (*KeepAliveResponse, error)
	SendCommand(ctx context.Context, member string, req *CommandRequest) (*CommandResponse, error)
	SendQuery(ctx context.Context, member string, req *QueryRequest) (*QueryResponse, error)

	// Members lists the cluster members this transport knows how to reach.
	Members() []string

	// SetPublishSink installs the sink that receives server-pushed Publish
	// events over this transport's active connection. Replaces any
	// previously installed sink; nil disables delivery.
	SetPublishSink(sink PublishSink)

	// Close releases any underlying connections.
	Close() error
}

// PublishSink receives best-effort Publish events pushed by the server to
// a specific session's currently open connection. A client's transport
// implementation that supports server push registers a sink per session.
type PublishSink interface {
	OnPublish(msg *PublishMessage)
}
