package workerpool

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithSizeRejectsNonPositive(t *testing.T) {
	_, err := NewWithSize(0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = NewWithSize(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestStartIsIdempotent(t *testing.T) {
	p, err := NewWithSize(2)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	require.NoError(t, p.Start())
	defer p.Close()
}

func TestSubmitFuncReturnsValueAndError(t *testing.T) {
	p, err := NewWithSize(2)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Close()

	ch, err := p.SubmitFunc(context.Background(), func(context.Context) (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	res := <-ch
	assert.NoError(t, res.Error)
	assert.Equal(t, 42, res.Value)

	wantErr := errors.New("boom")
	ch, err = p.SubmitFunc(context.Background(), func(context.Context) (interface{}, error) {
		return nil, wantErr
	})
	require.NoError(t, err)
	res = <-ch
	assert.Equal(t, wantErr, res.Error)
}

func TestSubmitFuncRecoversPanic(t *testing.T) {
	p, err := NewWithSize(1)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Close()

	ch, err := p.SubmitFunc(context.Background(), func(context.Context) (interface{}, error) {
		panic("kaboom")
	})
	require.NoError(t, err)
	res := <-ch
	require.Error(t, res.Error)
	assert.Contains(t, res.Error.Error(), "kaboom")

	// the worker survives the panic and keeps serving later submissions.
	ch, err = p.SubmitFunc(context.Background(), func(context.Context) (interface{}, error) {
		return "still alive", nil
	})
	require.NoError(t, err)
	res = <-ch
	assert.NoError(t, res.Error)
	assert.Equal(t, "still alive", res.Value)
}

// TestGatherByPositionIsOrderStable exercises the dispatch/gather shape
// every real caller (HashRowsParallel, diff's parallel stages) uses: submit
// N tasks up front, index their result channels by position, then collect
// in that same position order regardless of completion order.
func TestGatherByPositionIsOrderStable(t *testing.T) {
	p, err := NewWithSize(4)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Close()

	const n = 50
	channels := make([]<-chan Result, n)
	for i := 0; i < n; i++ {
		i := i
		ch, err := p.SubmitFunc(context.Background(), func(context.Context) (interface{}, error) {
			return i * i, nil
		})
		require.NoError(t, err)
		channels[i] = ch
	}

	out := make([]int, n)
	for i, ch := range channels {
		res := <-ch
		require.NoError(t, res.Error)
		out[i] = res.Value.(int)
	}
	for i := 0; i < n; i++ {
		assert.Equal(t, i*i, out[i], "position %d", i)
	}
}

func TestSubmitFuncAfterCloseFails(t *testing.T) {
	p, err := NewWithSize(1)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	require.NoError(t, p.Close())

	_, err = p.SubmitFunc(context.Background(), func(context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestCloseWaitsForQueuedTasks(t *testing.T) {
	p, err := NewWithSize(1)
	require.NoError(t, err)
	require.NoError(t, p.Start())

	ch, err := p.SubmitFunc(context.Background(), func(context.Context) (interface{}, error) {
		return "done", nil
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	res := <-ch
	require.NoError(t, res.Error)
	assert.Equal(t, "done", res.Value)
}

func TestSubmitFuncContextCancelledBeforeQueued(t *testing.T) {
	p, err := NewWithSize(1)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Close()

	// Occupy the single worker with a blocking task, then fill the
	// size-1 queue buffer with a second one, so a third submission against
	// an already-cancelled ctx has no room to enqueue and must observe
	// ctx.Done() instead.
	block := make(chan struct{})
	defer close(block)
	for i := 0; i < 2; i++ {
		_, err = p.SubmitFunc(context.Background(), func(context.Context) (interface{}, error) {
			<-block
			return nil, nil
		})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.SubmitFunc(ctx, func(context.Context) (interface{}, error) {
		return nil, fmt.Errorf("should never run")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
