package server

// indexWaiter fires once the executor's last_applied reaches index. Used
// by RPC handlers that propose an entry and need to know when it has been
// applied before answering the caller.
type indexWaiter struct {
	index int64
	done  chan struct{}
}

// AwaitIndex returns a channel closed once last_applied >= index. Safe to
// call from any goroutine.
func (e *Executor) AwaitIndex(index int64) <-chan struct{} {
	done := make(chan struct{})
	e.submitTask(func() {
		if e.lastApplied >= index {
			close(done)
			return
		}
		e.indexWaiters = append(e.indexWaiters, &indexWaiter{index: index, done: done})
	})
	return done
}

// fireIndexWaiters closes every waiter whose index has now been applied.
// Must run on the executor goroutine, right after last_applied advances.
func (e *Executor) fireIndexWaiters() {
	if len(e.indexWaiters) == 0 {
		return
	}
	remaining := e.indexWaiters[:0]
	for _, w := range e.indexWaiters {
		if w.index <= e.lastApplied {
			close(w.done)
		} else {
			remaining = append(remaining, w)
		}
	}
	e.indexWaiters = remaining
}
