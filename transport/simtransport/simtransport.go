package simtransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/shrtyk/rsm/api"
)

// Log is an in-memory, single-node stand-in for the external Raft log used
// by tests: it assigns indices in Propose and fans committed entries out
// on Entries, in order, with no persistence and no replication. Grounded in
// the teacher's pattern of a sim_transport.go harness wired directly
// against the production interfaces instead of a real network.
type Log struct {
	mu        sync.Mutex
	nextIndex int64
	feed      chan api.Entry
}

var _ api.LogAppender = (*Log)(nil)
var _ api.LogFeed = (*Log)(nil)

// NewLog creates an empty Log with the given feed buffer size.
func NewLog(bufSize int) *Log {
	return &Log{nextIndex: 1, feed: make(chan api.Entry, bufSize)}
}

// Propose assigns the next index, stamps it onto entry, and delivers it on
// Entries. It fails only when ctx is done before the feed has room.
func (l *Log) Propose(ctx context.Context, entry api.Entry) (int64, error) {
	l.mu.Lock()
	index := l.nextIndex
	l.nextIndex++
	l.mu.Unlock()

	stampIndex(entry, index)

	select {
	case l.feed <- entry:
		return index, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Entries implements api.LogFeed.
func (l *Log) Entries() <-chan api.Entry { return l.feed }

// Close closes the feed channel. A Propose after Close panics.
func (l *Log) Close() { close(l.feed) }

func stampIndex(entry api.Entry, index int64) {
	switch e := entry.(type) {
	case *api.RegisterEntry:
		e.LogIndex = index
	case *api.KeepAliveEntry:
		e.LogIndex = index
	case *api.CommandEntry:
		e.LogIndex = index
	case *api.QueryEntry:
		e.LogIndex = index
	case *api.NoOpEntry:
		e.LogIndex = index
	default:
		panic(fmt.Sprintf("simtransport: unknown entry type %T", entry))
	}
}
