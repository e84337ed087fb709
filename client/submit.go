package client

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/internal/cbreaker"
	"github.com/shrtyk/rsm/internal/retry"
	"github.com/shrtyk/rsm/pkg/logger"
)

// SubmitCommand implements spec.md §4.8. It assigns the next request
// number, registering first if the session is unregistered. On every
// UnknownSession reply it resets the session, re-registers and re-issues
// the command under the new session; only ctx bounds how often.
func (r *Runtime) SubmitCommand(ctx context.Context, payload []byte) ([]byte, error) {
	for {
		if err := r.ensureRegistered(ctx); err != nil {
			return nil, err
		}

		result, retry, err := r.submitCommandOnce(ctx, payload)
		if err != nil {
			return nil, err
		}
		if retry {
			r.resetSession()
			continue
		}
		return result, nil
	}
}

// SubmitQuery implements spec.md §4.8's query variant: no request/response
// watermarks, freely re-issuable, same UnknownSession handling.
func (r *Runtime) SubmitQuery(ctx context.Context, payload []byte) ([]byte, error) {
	for {
		if err := r.ensureRegistered(ctx); err != nil {
			return nil, err
		}

		result, retry, err := r.submitQueryOnce(ctx, payload)
		if err != nil {
			return nil, err
		}
		if retry {
			r.resetSession()
			continue
		}
		return result, nil
	}
}

func (r *Runtime) ensureRegistered(ctx context.Context) error {
	needRegister := make(chan bool, 1)
	r.submitTask(func() { needRegister <- r.sessionID == 0 })
	if !<-needRegister {
		return nil
	}

	futCh := make(chan (<-chan error), 1)
	r.submitTask(func() { futCh <- r.register(ctx) })

	select {
	case fut := <-futCh:
		select {
		case err := <-fut:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) resetSession() {
	applied := make(chan struct{})
	r.submitTask(func() {
		r.sessionID = 0
		r.requestNo = 0
		r.responseAck = 0
		close(applied)
	})
	<-applied
}

// submitCommandOnce issues one CommandRequest with the current watermarks.
// Returns retry=true on UnknownSession.
func (r *Runtime) submitCommandOnce(ctx context.Context, payload []byte) (result []byte, retry bool, err error) {
	type snapshot struct {
		sessionID, requestNo, responseAck int64
		member                            string
	}
	snapCh := make(chan snapshot, 1)
	r.submitTask(func() {
		r.requestNo++
		snapCh <- snapshot{
			sessionID:   r.sessionID,
			requestNo:   r.requestNo,
			responseAck: r.responseAck,
			member:      r.currentMemberLocked(),
		}
	})
	snap := <-snapCh

	req := &api.CommandRequest{
		SessionID:   snap.sessionID,
		RequestNo:   snap.requestNo,
		ResponseAck: snap.responseAck,
		Payload:     payload,
	}

	resp, sendErr := r.sendCommand(ctx, snap.member, req)
	if sendErr != nil {
		return nil, false, sendErr
	}

	switch resp.Status {
	case api.StatusOK:
		applied := make(chan struct{})
		r.submitTask(func() {
			r.term = resp.Term
			r.leader = resp.Leader
			if resp.Version > r.version {
				r.version = resp.Version
			}
			r.responseAck = snap.requestNo
			close(applied)
		})
		<-applied
		return resp.Result, false, nil
	default:
		return r.classifyError(resp.ErrKind, resp.ErrMsg)
	}
}

func (r *Runtime) submitQueryOnce(ctx context.Context, payload []byte) (result []byte, retry bool, err error) {
	type snapshot struct {
		sessionID, version int64
		member             string
	}
	snapCh := make(chan snapshot, 1)
	r.submitTask(func() {
		snapCh <- snapshot{
			sessionID: r.sessionID,
			version:   r.version,
			member:    r.currentMemberLocked(),
		}
	})
	snap := <-snapCh

	req := &api.QueryRequest{SessionID: snap.sessionID, Version: snap.version, Payload: payload}
	resp, sendErr := r.sendQuery(ctx, snap.member, req)
	if sendErr != nil {
		return nil, false, sendErr
	}

	switch resp.Status {
	case api.StatusOK:
		applied := make(chan struct{})
		r.submitTask(func() {
			r.term = resp.Term
			r.leader = resp.Leader
			if resp.Version > r.version {
				r.version = resp.Version
			}
			close(applied)
		})
		<-applied
		return resp.Result, false, nil
	default:
		return r.classifyError(resp.ErrKind, resp.ErrMsg)
	}
}

// currentMemberLocked must be called from the client goroutine: it reads
// leader without a lock because submitTask already serializes access.
func (r *Runtime) currentMemberLocked() string {
	if r.leader != "" {
		return r.leader
	}
	if len(r.members) > 0 {
		return r.members[0]
	}
	return ""
}

func (r *Runtime) classifyError(kind, msg string) (result []byte, retry bool, err error) {
	switch kind {
	case errKindUnknownSession:
		return nil, true, nil
	case errKindUserError:
		return nil, false, api.NewUserError(errors.New(msg))
	case errKindProtocolViolation:
		return nil, false, api.ErrProtocolViolation
	default:
		return nil, false, api.ErrTransport
	}
}

const (
	errKindUnknownSession    = "unknown_session"
	errKindUserError         = "user_error"
	errKindProtocolViolation = "protocol_violation"
)

// sendCommand retries transient transport errors against freshly-selected
// members, unbounded except by ctx, each attempt individually bounded by
// RequestTimeout and guarded by a per-member circuit breaker. Grounded in
// the teacher's retry.Do + cbreaker.Do composition in coordinator.go.
func (r *Runtime) sendCommand(ctx context.Context, preferred string, req *api.CommandRequest) (*api.CommandResponse, error) {
	var resp *api.CommandResponse
	member := preferred
	err := retry.Do(ctx, func(attemptCtx context.Context) error {
		rpcCtx, cancel := context.WithTimeout(attemptCtx, r.cfg.RequestTimeout)
		defer cancel()

		cb := r.breakerForSync(member)
		out, callErr := cbreaker.Do(rpcCtx, cb, func(c context.Context) (*api.CommandResponse, error) {
			return r.transport.SendCommand(c, member, req)
		})
		if callErr != nil {
			r.logger.Warn("command rpc failed", "member", member, logger.ErrAttr(callErr))
			r.submitTask(func() {
				if r.leader == member {
					r.leader = ""
				}
			})
			member = r.selectMember()
			return callErr
		}
		resp = out
		return nil
	}, retry.WithMaxAttempts(math.MaxInt32), retry.WithDelayFunc(r.boundedBackoff))
	return resp, err
}

func (r *Runtime) sendQuery(ctx context.Context, preferred string, req *api.QueryRequest) (*api.QueryResponse, error) {
	var resp *api.QueryResponse
	member := preferred
	err := retry.Do(ctx, func(attemptCtx context.Context) error {
		rpcCtx, cancel := context.WithTimeout(attemptCtx, r.cfg.RequestTimeout)
		defer cancel()

		cb := r.breakerForSync(member)
		out, callErr := cbreaker.Do(rpcCtx, cb, func(c context.Context) (*api.QueryResponse, error) {
			return r.transport.SendQuery(c, member, req)
		})
		if callErr != nil {
			r.logger.Warn("query rpc failed", "member", member, logger.ErrAttr(callErr))
			r.submitTask(func() {
				if r.leader == member {
					r.leader = ""
				}
			})
			member = r.selectMember()
			return callErr
		}
		resp = out
		return nil
	}, retry.WithMaxAttempts(math.MaxInt32), retry.WithDelayFunc(r.boundedBackoff))
	return resp, err
}

// boundedBackoff matches retry.DelayFunc, producing a doubling backoff
// bounded by the runtime's configured BackoffMin/BackoffMax.
func (r *Runtime) boundedBackoff() func() time.Duration {
	delay := r.cfg.BackoffMin
	return func() time.Duration {
		d := delay
		delay *= 2
		if delay > r.cfg.BackoffMax {
			delay = r.cfg.BackoffMax
		}
		return d
	}
}

// breakerForSync fetches a member's circuit breaker via the client
// goroutine, creating one if the member is new.
func (r *Runtime) breakerForSync(member string) *cbreaker.CircuitBreaker {
	result := make(chan *cbreaker.CircuitBreaker, 1)
	r.submitTask(func() { result <- r.breakerFor(member) })
	return <-result
}
