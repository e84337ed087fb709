package api

import "errors"

// Error kinds returned by the server executor and client session runtime.
// Callers should compare with errors.Is, since these are always wrapped
// with call-site context.
var (
	// ErrUnknownSession is returned when an entry or RPC names a session
	// that the registry has never seen, or that has just expired.
	ErrUnknownSession = errors.New("rsm: unknown session")

	// ErrNoLeader is the error kind for a contacted member that does not
	// know (or is not) the current leader. No transport in this module
	// returns it.
	ErrNoLeader = errors.New("rsm: no leader")

	// ErrTimeout is the error kind for an RPC whose deadline elapses before
	// a reply. The client runtime reports an elapsed deadline as the
	// context's own error instead.
	ErrTimeout = errors.New("rsm: rpc timeout")

	// ErrTransport is returned for connection-level failures talking to a
	// member (dial failure, reset connection, EOF).
	ErrTransport = errors.New("rsm: transport error")

	// ErrProtocolViolation is returned when an entry carries an
	// unrecognized tag. It is fatal for that entry: last_applied does not
	// advance past it.
	ErrProtocolViolation = errors.New("rsm: protocol violation")

	// ErrClosed is returned by a session runtime or executor that has been
	// shut down.
	ErrClosed = errors.New("rsm: closed")
)

// UserError wraps an error raised inside the user state machine's Apply or
// Filter callback. It propagates to the requesting client; the session
// remains open.
type UserError struct {
	Err error
}

func (e *UserError) Error() string { return "rsm: user error: " + e.Err.Error() }

func (e *UserError) Unwrap() error { return e.Err }

// NewUserError wraps err, the return value of a StateMachine callback, so
// the dispatcher can distinguish it from an internal fault.
func NewUserError(err error) error {
	if err == nil {
		return nil
	}
	return &UserError{Err: err}
}
