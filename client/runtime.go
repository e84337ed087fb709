package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/internal/cbreaker"
)

// Runtime is the client-side session runtime (C7) plus request pipeline
// (C8). A single goroutine (run) owns session_id, leader, term, version,
// request, response and the active connection; every public method
// marshals its work onto that goroutine via submitTask before touching any
// of them (spec.md §5, client side).
//
// Grounded in the teacher's Coordinator: leader caching with
// invalidate-on-failure, retry.Do-wrapped RPCs, one circuit breaker per
// member.
type Runtime struct {
	cfg       *api.RuntimeConfig
	transport api.Transport
	logger    *slog.Logger

	sessionID   int64
	leader      string
	term        int64
	version     int64
	requestNo   int64
	responseAck int64
	open        bool
	members     []string

	registerInflight  *registerFuture
	keepAliveInFlight bool

	breakers map[string]*cbreaker.CircuitBreaker

	taskChan chan func()

	keepAliveTimer *time.Timer
	publishCh      chan *api.PublishMessage

	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup
}

type registerFuture struct {
	done chan error
}

var _ api.Client = (*Runtime)(nil)

func newRuntime(cfg *api.RuntimeConfig, transport api.Transport, log *slog.Logger) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	members := transport.Members()
	breakers := make(map[string]*cbreaker.CircuitBreaker, len(members))
	for _, m := range members {
		breakers[m] = cbreaker.NewCircuitBreaker(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.SuccessThreshold,
			cfg.CircuitBreaker.ResetTimeout,
		)
	}

	return &Runtime{
		cfg:       cfg,
		transport: transport,
		logger:    log,
		members:   members,
		breakers:  breakers,
		taskChan:  make(chan func()),
		publishCh: make(chan *api.PublishMessage, 16),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Publishes returns the channel of server-pushed events for this session.
// The channel buffers 16 events; an event that arrives while the buffer is
// full is dropped. Close does not close the channel.
func (r *Runtime) Publishes() <-chan *api.PublishMessage { return r.publishCh }

// start spins up the runtime's serial goroutine and keep-alive timer. Does
// not itself register; registration happens lazily on first submit, per
// spec.md §4.8.
func (r *Runtime) start() {
	r.transport.SetPublishSink(publishSink{r})
	r.wg.Add(1)
	go r.run()
}

// publishSink adapts incoming server-pushed events onto the client
// goroutine. Events carry no version watermark of their own; per spec.md
// §4.6 clients rely on a subsequent query to detect anything a lost event
// would have conveyed, so delivery here only needs to hand the payload to
// the application-supplied channel.
type publishSink struct{ r *Runtime }

func (s publishSink) OnPublish(msg *api.PublishMessage) {
	s.r.submitTask(func() {
		select {
		case s.r.publishCh <- msg:
		default:
		}
	})
}

// Close cancels timers and releases the active connection.
func (r *Runtime) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.transport.Close()
}

// Version returns the highest last_applied this client has observed.
func (r *Runtime) Version() int64 {
	result := make(chan int64, 1)
	r.submitTask(func() { result <- r.version })
	select {
	case v := <-result:
		return v
	case <-r.ctx.Done():
		return r.version
	}
}

func (r *Runtime) submitTask(fn func()) {
	select {
	case r.taskChan <- fn:
	case <-r.ctx.Done():
	}
}

// run is the client context's single goroutine: it owns every mutable
// field above and drives the keep-alive timer.
func (r *Runtime) run() {
	defer r.wg.Done()

	r.keepAliveTimer = time.NewTimer(r.cfg.KeepAliveInterval)
	defer r.keepAliveTimer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case task := <-r.taskChan:
			task()
		case <-r.keepAliveTimer.C:
			r.fireKeepAlive()
			r.keepAliveTimer.Reset(r.cfg.KeepAliveInterval)
		}
	}
}

// breakerFor returns (creating if needed) the circuit breaker for member.
// Must run on the client goroutine.
func (r *Runtime) breakerFor(member string) *cbreaker.CircuitBreaker {
	cb, ok := r.breakers[member]
	if !ok {
		cb = cbreaker.NewCircuitBreaker(
			r.cfg.CircuitBreaker.FailureThreshold,
			r.cfg.CircuitBreaker.SuccessThreshold,
			r.cfg.CircuitBreaker.ResetTimeout,
		)
		r.breakers[member] = cb
	}
	return cb
}

// adoptMembers refreshes the known member list from a server response,
// keeping existing circuit breaker state for members that persist.
func (r *Runtime) adoptMembers(members []string) {
	if len(members) == 0 {
		return
	}
	r.members = members
}
