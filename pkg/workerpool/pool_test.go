package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/pkg/apperr"
)

func TestSubmitAndWait(t *testing.T) {
	pool := NewPool(2, 8)
	pool.Start()
	defer pool.Stop(context.Background())

	h, err := pool.Submit(func(ctx context.Context) (any, error) {
		return 42, nil
	}, SubmitOptions{})
	require.NoError(t, err)

	result, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, result)

	stats := pool.Stats()
	assert.Equal(t, uint64(1), stats.Submitted)
	assert.Equal(t, uint64(1), stats.Completed)
}

func TestQueueFullRejects(t *testing.T) {
	pool := NewPool(1, 1)
	pool.Start()
	defer pool.Stop(context.Background())

	block := make(chan struct{})
	defer close(block)

	// Occupy the single worker, then fill the queue
	_, err := pool.Submit(func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	}, SubmitOptions{})
	require.NoError(t, err)

	// Give the worker time to pick up the first job
	require.Eventually(t, func() bool {
		_, err := pool.Submit(func(ctx context.Context) (any, error) {
			<-block
			return nil, nil
		}, SubmitOptions{})
		return err == nil
	}, time.Second, 10*time.Millisecond)

	_, err = pool.Submit(func(ctx context.Context) (any, error) { return nil, nil }, SubmitOptions{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindQueueFull, apperr.KindOf(err))
	assert.GreaterOrEqual(t, pool.Stats().Rejected, uint64(1))
}

func TestCancellation(t *testing.T) {
	pool := NewPool(1, 4)
	pool.Start()
	defer pool.Stop(context.Background())

	started := make(chan struct{})
	h, err := pool.Submit(func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, SubmitOptions{})
	require.NoError(t, err)

	<-started
	h.Cancel()

	_, err = h.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindCancelled, apperr.KindOf(err))
}

func TestTimeoutBehavesLikeCancellation(t *testing.T) {
	pool := NewPool(1, 4)
	pool.Start()
	defer pool.Stop(context.Background())

	h, err := pool.Submit(func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, SubmitOptions{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = h.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindCancelled, apperr.KindOf(err))
}

func TestPanicRestartsWorker(t *testing.T) {
	pool := NewPool(1, 4)
	pool.Start()
	defer pool.Stop(context.Background())

	h, err := pool.Submit(func(ctx context.Context) (any, error) {
		panic("boom")
	}, SubmitOptions{})
	require.NoError(t, err)

	_, err = h.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	// The slot restarts (after backoff) and keeps serving
	h2, err := pool.Submit(func(ctx context.Context) (any, error) { return "ok", nil }, SubmitOptions{})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := h2.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, uint64(1), pool.Stats().Restarts)
}

// If the queue is non-empty and a worker is idle, a job starts within
// bounded time.
func TestSchedulerProgress(t *testing.T) {
	pool := NewPool(4, 16)
	pool.Start()
	defer pool.Stop(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		h, err := pool.Submit(func(ctx context.Context) (any, error) {
			time.Sleep(time.Millisecond)
			return nil, nil
		}, SubmitOptions{})
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := h.Wait(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(16), pool.Stats().Completed)
}

func TestResize(t *testing.T) {
	pool := NewPool(2, 8)
	pool.Start()
	assert.Equal(t, 2, pool.Stats().Workers)

	pool.Resize(4)
	assert.Equal(t, 4, pool.Stats().Workers)

	pool.Resize(1)
	assert.Equal(t, 1, pool.Stats().Workers)

	require.NoError(t, pool.Stop(context.Background()))
}

func TestStopDrainsInFlight(t *testing.T) {
	pool := NewPool(2, 8)
	pool.Start()

	h, err := pool.Submit(func(ctx context.Context) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return "done", nil
	}, SubmitOptions{})
	require.NoError(t, err)

	require.NoError(t, pool.Stop(context.Background()))

	result, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", result)
}
