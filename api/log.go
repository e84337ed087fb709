package api

import "context"

// LogAppender is the boundary a client-facing RPC handler uses to get an
// entry replicated: Raft's proposal/commit machinery is out of scope for
// this module (spec.md §1), so Propose only promises that, on success, the
// entry will eventually appear on every replica's LogFeed at the returned
// index. The entry's own Index field is ignored by Propose; the log
// assigns it.
type LogAppender interface {
	Propose(ctx context.Context, entry Entry) (index int64, err error)
}

// LogFeed is the boundary to the external Raft log: a channel of entries in
// committed order. The log's storage, replication, and leader election are
// out of scope for this module (spec.md §1); the executor only ever reads
// from this channel.
type LogFeed interface {
	// Entries returns the channel of committed entries, in strict log
	// order. The channel is closed when the feed is done (e.g. the Raft
	// node has stopped).
	Entries() <-chan Entry
}

// ChanLogFeed is the trivial LogFeed over a pre-existing channel, used by
// callers that already drive a Raft implementation and just want to hand
// its commit stream to this module.
type ChanLogFeed chan Entry

func (f ChanLogFeed) Entries() <-chan Entry { return f }
