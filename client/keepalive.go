package client

import (
	"context"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/pkg/logger"
)

// fireKeepAlive sends one KeepAliveRequest against the active member. Runs
// on the client goroutine (invoked from run's select on the timer
// channel), but the RPC itself completes on a detached goroutine, so the
// timer firing again before that RPC returns is not by itself excluded.
// keepAliveInFlight is the explicit at-most-one guard (spec.md §4.7.2):
// set here before the RPC goroutine is launched, cleared only once its
// completion task runs on this goroutine.
func (r *Runtime) fireKeepAlive() {
	if !r.open || r.sessionID == 0 || r.keepAliveInFlight {
		return
	}

	member := r.leader
	if member == "" {
		if len(r.members) == 0 {
			return
		}
		member = r.members[0]
	}

	r.keepAliveInFlight = true
	sessionID := r.sessionID
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.RequestTimeout)
	go func() {
		defer cancel()
		resp, err := r.transport.SendKeepAlive(ctx, member, &api.KeepAliveRequest{SessionID: sessionID})
		r.submitTask(func() {
			r.keepAliveInFlight = false
			if err != nil {
				r.logger.Debug("keep-alive failed", "member", member, logger.ErrAttr(err))
				if r.leader == member {
					r.leader = ""
				}
				return
			}
			if resp.Status != api.StatusOK {
				// UnknownSession: leave correction to the next submit,
				// per spec.md §4.7.
				return
			}
			r.term = resp.Term
			r.leader = resp.Leader
			if resp.Version > r.version {
				r.version = resp.Version
			}
			r.adoptMembers(resp.Members)
		})
	}()
}
