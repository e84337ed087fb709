package client

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/pkg/logger"
)

// register implements spec.md §4.7's register operation. Concurrent callers
// share a single in-flight future: the first caller starts the retry loop,
// everyone else just waits on its result. Must be invoked from the client
// goroutine (submitTask).
func (r *Runtime) register(ctx context.Context) <-chan error {
	if r.registerInflight != nil {
		return r.registerInflight.done
	}

	fut := &registerFuture{done: make(chan error, 1)}
	r.registerInflight = fut

	go func() {
		err := r.registerLoop(ctx)
		r.submitTask(func() {
			r.registerInflight = nil
		})
		fut.done <- err
		close(fut.done)
	}()

	return fut.done
}

// registerLoop retries registration with exponential backoff capped at
// BackoffMax, starting at BackoffMin, until ctx is cancelled or the runtime
// is closed.
func (r *Runtime) registerLoop(ctx context.Context) error {
	backoff := r.cfg.BackoffMin

	for {
		member := r.selectMember()

		var resp *api.RegisterResponse
		var err error
		if member == "" {
			err = errNoMembers
		} else {
			rpcCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
			resp, err = r.transport.SendRegister(rpcCtx, member, &api.RegisterRequest{})
			cancel()
		}

		if err == nil && resp.Status == api.StatusOK {
			applied := make(chan struct{})
			r.submitTask(func() {
				r.sessionID = resp.SessionID
				r.term = resp.Term
				r.leader = resp.Leader
				r.open = true
				r.requestNo = 0
				r.responseAck = 0
				r.adoptMembers(resp.Members)
				close(applied)
			})
			select {
			case <-applied:
			case <-ctx.Done():
				return ctx.Err()
			case <-r.ctx.Done():
				return api.ErrClosed
			}
			return nil
		}

		if err != nil {
			r.logger.Warn("register failed", "member", member, logger.ErrAttr(err))
		} else {
			r.logger.Debug("register rejected", "member", member, "status", resp.Status)
		}
		r.submitTask(func() { r.leader = "" })

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.ctx.Done():
			return api.ErrClosed
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.cfg.BackoffMax {
			backoff = r.cfg.BackoffMax
		}
	}
}

// selectMember picks the leader if known, else a random member. Must run
// on (or be read consistently from) the client goroutine; called here from
// the background register goroutine, so it takes a synchronous snapshot.
func (r *Runtime) selectMember() string {
	result := make(chan string, 1)
	r.submitTask(func() {
		if r.leader != "" {
			result <- r.leader
			return
		}
		if len(r.members) == 0 {
			result <- ""
			return
		}
		result <- r.members[rand.Intn(len(r.members))]
	})
	select {
	case m := <-result:
		return m
	case <-r.ctx.Done():
		return ""
	}
}

var errNoMembers = errors.New("rsm: client has no known members")
