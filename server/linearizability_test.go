package server

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/anishathalye/porcupine"
	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/client"
	"github.com/shrtyk/rsm/pkg/logger"
	"github.com/shrtyk/rsm/transport/simtransport"
	"github.com/stretchr/testify/require"
)

// registerStateMachine implements a single linearizable register: a
// non-empty payload (every Command below) overwrites the register's value,
// an empty payload (every Query below) reads it back. It exists only to give the porcupine model below something to
// check against a real dispatch/executor/client stack.
type registerStateMachine struct {
	mu    sync.Mutex
	value int
}

func (r *registerStateMachine) Register(*api.Session) {}
func (r *registerStateMachine) Expire(*api.Session)    {}

func (r *registerStateMachine) Apply(commit api.Commit) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(commit.Payload) == 0 {
		return []byte(strconv.Itoa(r.value)), nil
	}
	n, err := strconv.Atoi(string(commit.Payload))
	if err != nil {
		return nil, err
	}
	r.value = n
	return []byte(strconv.Itoa(r.value)), nil
}

func (r *registerStateMachine) Filter(api.Commit, api.CompactionContext) bool { return true }
func (r *registerStateMachine) Snapshot() ([]byte, error)                    { return nil, nil }
func (r *registerStateMachine) Restore([]byte) error                         { return nil }

// registerInput mirrors porcupine's canonical register example: IsRead
// distinguishes a query (read) from a command (write) operation.
type registerInput struct {
	IsRead bool
	Value  int
}

var registerModel = porcupine.Model{
	Init: func() any { return 0 },
	Step: func(state, input, output any) (bool, any) {
		in := input.(registerInput)
		st := state.(int)
		out := output.(int)
		if in.IsRead {
			return out == st, state
		}
		return true, in.Value
	},
}

// TestLinearizability generates a concurrent history of register reads and
// writes from several simulated clients against a single in-process
// executor, then checks the recorded history with porcupine per spec.md
// §8's "operations against a single session-aware key never appear
// out-of-order to a linearizability checker" property.
func TestLinearizability(t *testing.T) {
	sm := &registerStateMachine{}
	feed := simtransport.NewLog(64)
	_, log := logger.NewTestLogger()

	execIface, err := NewExecutorBuilder(sm, feed).
		WithConfig(api.TestRuntimeConfig()).
		WithLogger(log).
		Build()
	require.NoError(t, err)
	require.NoError(t, execIface.Start())
	defer func() {
		execIface.Stop()
		feed.Close()
	}()

	exec := execIface.(*Executor)
	gw := NewGateway(exec, feed, "self", []string{"self"})
	transport := simtransport.NewInProcess(gw, "self")

	const numClients = 6
	const opsPerClient = 20

	var mu sync.Mutex
	var history []porcupine.Operation
	record := func(op porcupine.Operation) {
		mu.Lock()
		history = append(history, op)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for c := 0; c < numClients; c++ {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			cl, err := client.NewClientBuilder(transport).WithConfig(api.TestRuntimeConfig()).Build()
			require.NoError(t, err)
			defer cl.Close()

			for i := 0; i < opsPerClient; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				isRead := (c+i)%3 == 0
				call := time.Now().UnixNano()
				var out int
				var in registerInput
				if isRead {
					in = registerInput{IsRead: true}
					res, err := cl.SubmitQuery(ctx, nil)
					cancel()
					require.NoError(t, err)
					out, err = strconv.Atoi(string(res))
					require.NoError(t, err)
				} else {
					in = registerInput{Value: c*1000 + i}
					res, err := cl.SubmitCommand(ctx, []byte(strconv.Itoa(in.Value)))
					cancel()
					require.NoError(t, err)
					out, err = strconv.Atoi(string(res))
					require.NoError(t, err)
				}
				ret := time.Now().UnixNano()
				record(porcupine.Operation{
					ClientId: c,
					Input:    in,
					Call:     call,
					Output:   out,
					Return:   ret,
				})
			}
		}()
	}
	wg.Wait()

	ok := porcupine.CheckOperations(registerModel, history)
	require.True(t, ok, "recorded history is not linearizable")
}
