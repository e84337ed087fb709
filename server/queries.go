package server

import (
	"sort"

	"github.com/shrtyk/rsm/api"
)

// pendingQuery is a query parked until last_applied reaches RequiredVersion.
type pendingQuery struct {
	entry *api.QueryEntry
	done  chan queryResult
}

type queryResult struct {
	result []byte
	err    error
}

// queryScheduler parks queries whose required version has not yet been
// applied and fires them, in insertion order, as soon as it has. It is
// owned by the executor goroutine exactly like the registry.
type queryScheduler struct {
	// pending is keyed by required version; insertion order within a key
	// is preserved by appending to the slice.
	pending map[int64][]*pendingQuery
}

func newQueryScheduler() *queryScheduler {
	return &queryScheduler{pending: make(map[int64][]*pendingQuery)}
}

// park defers q until lastApplied reaches q.RequiredVersion.
func (qs *queryScheduler) park(q *api.QueryEntry) <-chan queryResult {
	done := make(chan queryResult, 1)
	qs.pending[q.RequiredVersion] = append(qs.pending[q.RequiredVersion], &pendingQuery{entry: q, done: done})
	return done
}

// fireUpTo returns every parked query with RequiredVersion <= lastApplied,
// across all keys, ordered first by RequiredVersion then by insertion -
// this is the "tie-break ... insertion order" rule of spec.md §4.4 applied
// to the common case where last_applied jumps past several required
// versions at once (e.g. after a snapshot restore).
func (qs *queryScheduler) fireUpTo(lastApplied int64) []*pendingQuery {
	var versions []int64
	for version := range qs.pending {
		if version <= lastApplied {
			versions = append(versions, version)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	var ready []*pendingQuery
	for _, version := range versions {
		ready = append(ready, qs.pending[version]...)
		delete(qs.pending, version)
	}
	return ready
}

func (qs *queryScheduler) count() int {
	n := 0
	for _, g := range qs.pending {
		n += len(g)
	}
	return n
}
