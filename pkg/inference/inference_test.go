package inference

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/pkg/apperr"
)

type fakeModel struct {
	failures atomic.Int64 // remaining scripted failures
	infers   atomic.Int64
	block    chan struct{} // when set, Infer waits on it
}

func (m *fakeModel) Infer(ctx context.Context, input any) (any, error) {
	m.infers.Add(1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.failures.Load() > 0 {
		m.failures.Add(-1)
		return nil, errors.New("scripted failure")
	}
	return fmt.Sprintf("out:%v", input), nil
}

type fakeLoader struct {
	models map[string]*fakeModel
	loads  atomic.Int64
}

func (l *fakeLoader) Load(ctx context.Context, modelID string) (Model, error) {
	l.loads.Add(1)
	m, ok := l.models[modelID]
	if !ok {
		return nil, errors.New("no such model")
	}
	return m, nil
}

func newRuntime(t *testing.T, opts Options) (*Runtime, *fakeLoader) {
	t.Helper()
	loader := &fakeLoader{models: map[string]*fakeModel{
		"detector": {},
	}}
	return NewRuntime(loader, opts, nil), loader
}

func TestLoadUnloadIsLoaded(t *testing.T) {
	rt, loader := newRuntime(t, Options{})
	ctx := context.Background()

	assert.False(t, rt.IsLoaded("detector"))
	require.NoError(t, rt.LoadModel(ctx, "detector"))
	assert.True(t, rt.IsLoaded("detector"))

	// Loading again is a no-op
	require.NoError(t, rt.LoadModel(ctx, "detector"))
	assert.Equal(t, int64(1), loader.loads.Load())

	require.NoError(t, rt.UnloadModel("detector"))
	assert.False(t, rt.IsLoaded("detector"))

	err := rt.UnloadModel("detector")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestLoadFailureClassified(t *testing.T) {
	rt, _ := newRuntime(t, Options{})

	err := rt.LoadModel(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.KindDependencyUnavailable, apperr.KindOf(err))
}

func TestInferAgainstUnloadedModel(t *testing.T) {
	rt, _ := newRuntime(t, Options{})

	_, err := rt.Infer(context.Background(), "detector", 1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestInferAndBatch(t *testing.T) {
	rt, _ := newRuntime(t, Options{})
	ctx := context.Background()
	require.NoError(t, rt.LoadModel(ctx, "detector"))

	out, err := rt.Infer(ctx, "detector", 7)
	require.NoError(t, err)
	assert.Equal(t, "out:7", out)

	outputs, err := rt.InferBatch(ctx, "detector", []any{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []any{"out:1", "out:2", "out:3"}, outputs)
}

func TestQueueInferFIFO(t *testing.T) {
	rt, _ := newRuntime(t, Options{Concurrency: 1, QueueCapacity: 8})
	ctx := context.Background()
	require.NoError(t, rt.LoadModel(ctx, "detector"))

	var futures []*Future
	for i := 0; i < 4; i++ {
		f, err := rt.QueueInfer(ctx, "detector", i)
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for i, f := range futures {
		out, err := f.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("out:%d", i), out)
	}
}

func TestQueueOverflowRejects(t *testing.T) {
	loader := &fakeLoader{models: map[string]*fakeModel{
		"detector": {block: make(chan struct{})},
	}}
	rt := NewRuntime(loader, Options{Concurrency: 1, QueueCapacity: 1}, nil)
	ctx := context.Background()
	require.NoError(t, rt.LoadModel(ctx, "detector"))
	defer close(loader.models["detector"].block)

	// Saturate the consumer, then the queue
	_, err := rt.QueueInfer(ctx, "detector", 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := rt.QueueInfer(ctx, "detector", 1)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	_, err = rt.QueueInfer(ctx, "detector", 2)
	require.Error(t, err)
	assert.Equal(t, apperr.KindQueueFull, apperr.KindOf(err))
}

func TestConsecutiveFailuresMarkUnhealthy(t *testing.T) {
	loader := &fakeLoader{models: map[string]*fakeModel{"detector": {}}}
	loader.models["detector"].failures.Store(3)
	rt := NewRuntime(loader, Options{FailureThreshold: 3}, nil)
	ctx := context.Background()
	require.NoError(t, rt.LoadModel(ctx, "detector"))

	for i := 0; i < 3; i++ {
		_, err := rt.Infer(ctx, "detector", i)
		require.Error(t, err)
		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	}

	// The model stays loaded but refuses work
	assert.True(t, rt.IsLoaded("detector"))
	assert.True(t, rt.IsUnhealthy("detector"))
	_, err := rt.Infer(ctx, "detector", 9)
	require.Error(t, err)
	assert.Equal(t, apperr.KindModelUnhealthy, apperr.KindOf(err))

	// Operator clears the mark and serving resumes
	require.NoError(t, rt.ClearUnhealthy("detector"))
	out, err := rt.Infer(ctx, "detector", 9)
	require.NoError(t, err)
	assert.Equal(t, "out:9", out)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	loader := &fakeLoader{models: map[string]*fakeModel{"detector": {}}}
	rt := NewRuntime(loader, Options{FailureThreshold: 3}, nil)
	ctx := context.Background()
	require.NoError(t, rt.LoadModel(ctx, "detector"))

	for round := 0; round < 4; round++ {
		loader.models["detector"].failures.Store(2)
		_, err := rt.Infer(ctx, "detector", round)
		require.Error(t, err)
		_, err = rt.Infer(ctx, "detector", round)
		require.Error(t, err)
		// A success breaks the streak before the threshold
		_, err = rt.Infer(ctx, "detector", round)
		require.NoError(t, err)
	}
	assert.False(t, rt.IsUnhealthy("detector"))
}

func TestCancelledInference(t *testing.T) {
	loader := &fakeLoader{models: map[string]*fakeModel{
		"detector": {block: make(chan struct{})},
	}}
	rt := NewRuntime(loader, Options{}, nil)
	require.NoError(t, rt.LoadModel(context.Background(), "detector"))
	defer close(loader.models["detector"].block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rt.Infer(ctx, "detector", 1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindCancelled, apperr.KindOf(err))
}
