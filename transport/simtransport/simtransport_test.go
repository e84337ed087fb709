package simtransport

import (
	"context"
	"testing"

	"github.com/shrtyk/rsm/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogProposeAssignsSequentialIndices(t *testing.T) {
	l := NewLog(4)
	defer l.Close()

	idx1, err := l.Propose(context.Background(), &api.RegisterEntry{Member: "a"})
	require.NoError(t, err)
	idx2, err := l.Propose(context.Background(), &api.NoOpEntry{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), idx1)
	assert.Equal(t, int64(2), idx2)

	e1 := <-l.Entries()
	reg, ok := e1.(*api.RegisterEntry)
	require.True(t, ok)
	assert.Equal(t, idx1, reg.LogIndex)

	e2 := <-l.Entries()
	assert.Equal(t, idx2, e2.Index())
}

func TestLogProposeRespectsContextCancellation(t *testing.T) {
	l := NewLog(0)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Propose(ctx, &api.NoOpEntry{})
	assert.ErrorIs(t, err, context.Canceled)
}
