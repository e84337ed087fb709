package server

import (
	"fmt"
	"sync"

	"github.com/shrtyk/rsm/api"
)

// fakeStateMachine is a minimal in-memory counter/echo state machine used to
// exercise the executor without pulling in a real application. Apply treats
// the payload "fail" as a user error, everything else as an echo that also
// bumps an internal counter.
type fakeStateMachine struct {
	mu        sync.Mutex
	counter   int
	registers []*api.Session
	expires   []*api.Session
	filterAll bool
}

var _ api.StateMachine = (*fakeStateMachine)(nil)

func (f *fakeStateMachine) Register(session *api.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers = append(f.registers, session)
}

func (f *fakeStateMachine) Expire(session *api.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires = append(f.expires, session)
}

func (f *fakeStateMachine) Apply(commit api.Commit) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if string(commit.Payload) == "fail" {
		return nil, fmt.Errorf("fake: rejected")
	}
	f.counter++
	return []byte(fmt.Sprintf("echo:%s:%d", commit.Payload, f.counter)), nil
}

func (f *fakeStateMachine) Filter(commit api.Commit, ctx api.CompactionContext) bool {
	return f.filterAll
}

func (f *fakeStateMachine) Snapshot() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []byte(fmt.Sprintf("%d", f.counter)), nil
}

func (f *fakeStateMachine) Restore(snapshot []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	if len(snapshot) > 0 {
		fmt.Sscanf(string(snapshot), "%d", &n)
	}
	f.counter = n
	return nil
}

func (f *fakeStateMachine) registerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registers)
}

func (f *fakeStateMachine) expireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.expires)
}
