package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/storage"
)

const monitoringShutdownTimeout = 5 * time.Second

// Executor drives the user state machine on a single serial goroutine:
// every commit from the log feed, every parked query firing, and every
// compaction Filter call executes there, one at a time, so no two user
// callbacks ever run concurrently for the same state machine (spec.md §5).
//
// Grounded in the teacher's applier/queuer goroutine: a single
// `for { select {...} }` loop owns all mutable state.
type Executor struct {
	cfg    *api.RuntimeConfig
	sm     api.StateMachine
	feed   api.LogFeed
	pst    api.Persister
	logger *slog.Logger

	registry *registry
	queries  *queryScheduler
	pub      *publisher
	cmdLog   *storage.WALLog

	lastApplied  int64
	indexWaiters []*indexWaiter

	// taskChan carries out-of-band work (Filter calls, Subscribe,
	// SubmitQuery, snapshot requests) that must interleave with log
	// application on the same goroutine rather than run concurrently
	// with it.
	taskChan chan func()

	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup

	monitoringServer *http.Server
}

var _ api.Executor = (*Executor)(nil)

func newExecutor(cfg *api.RuntimeConfig, sm api.StateMachine, feed api.LogFeed, pst api.Persister, cmdLog *storage.WALLog, log *slog.Logger) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		cfg:      cfg,
		sm:       sm,
		feed:     feed,
		pst:      pst,
		logger:   log,
		registry: newRegistry(),
		queries:  newQueryScheduler(),
		pub:      newPublisher(),
		cmdLog:   cmdLog,
		taskChan: make(chan func()),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins draining the log feed. Safe to call once.
func (e *Executor) Start() error {
	if e.pst != nil {
		if err := e.restore(); err != nil {
			return fmt.Errorf("executor: restore: %w", err)
		}
	}

	e.wg.Add(1)
	go e.run()
	e.startMonitoringServer()
	return nil
}

// Stop cancels the executor's context and waits for the run loop to return;
// queued entries and tasks are not drained.
func (e *Executor) Stop() error {
	e.stopMonitoringServer()
	e.cancel()
	e.wg.Wait()
	return nil
}

func (e *Executor) LastApplied() int64 {
	result := make(chan int64, 1)
	select {
	case e.taskChan <- func() { result <- e.lastApplied }:
		return <-result
	case <-e.ctx.Done():
		return -1
	}
}

// Subscribe registers sink to receive Publish events addressed to
// sessionID. See publisher.go (C6).
func (e *Executor) Subscribe(sessionID int64, sink api.PublishSink) func() {
	done := make(chan func(), 1)
	e.submitTask(func() { done <- e.pub.subscribe(sessionID, sink) })
	unsubscribe := <-done
	return func() { e.submitTask(unsubscribe) }
}

// submitTask posts fn onto the executor's serial queue and blocks until the
// run loop has scheduled it for execution. fn must not block.
func (e *Executor) submitTask(fn func()) {
	select {
	case e.taskChan <- fn:
	case <-e.ctx.Done():
	}
}

func (e *Executor) run() {
	defer e.wg.Done()
	defer e.logger.Info("executor stopped")
	e.logger.Info("executor starting")

	for {
		select {
		case <-e.ctx.Done():
			return
		case entry, ok := <-e.feed.Entries():
			if !ok {
				e.logger.Info("log feed closed")
				return
			}
			e.dispatch(entry)
		case task := <-e.taskChan:
			task()
		}
	}
}
