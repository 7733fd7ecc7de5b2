package inference

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/log"
	"github.com/aerosuite/platform/pkg/metrics"
)

// Model is a loaded model instance able to serve predictions.
type Model interface {
	Infer(ctx context.Context, input any) (any, error)
}

// BatchModel is implemented by models with a native batch path. Models
// without it are served one input at a time.
type BatchModel interface {
	Model
	InferBatch(ctx context.Context, inputs []any) ([]any, error)
}

// Loader materializes model instances by id.
type Loader interface {
	Load(ctx context.Context, modelID string) (Model, error)
}

// Options tunes the runtime.
type Options struct {
	// QueueCapacity bounds the per-model FIFO queue. Default 64.
	QueueCapacity int
	// Concurrency caps in-flight inferences per model. Default 2.
	Concurrency int
	// FailureThreshold is the consecutive-failure count that marks a
	// model unhealthy. Default 10.
	FailureThreshold int
}

func (o *Options) defaults() {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 64
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 10
	}
}

// Future is the completion handle for a queued inference.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

// Wait blocks until the inference finishes or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.KindCancelled, ctx.Err(), "wait cancelled")
	}
}

func (f *Future) complete(result any, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

type request struct {
	ctx    context.Context
	input  any
	future *Future
}

type loadedModel struct {
	id    string
	model Model
	queue chan *request
	sem   chan struct{}
	stop  chan struct{}
	wg    sync.WaitGroup

	consecutiveFailures atomic.Int64
	unhealthy           atomic.Bool
}

// Runtime loads model instances and serves single, batched and queued
// inference with a per-model concurrency cap. A failing model is never
// unloaded; after FailureThreshold consecutive failures it is marked
// unhealthy and rejects requests until an operator clears it.
type Runtime struct {
	loader Loader
	opts   Options
	bus    *events.Bus

	mu     sync.RWMutex
	models map[string]*loadedModel
}

// NewRuntime creates an inference runtime. bus may be nil.
func NewRuntime(loader Loader, opts Options, bus *events.Bus) *Runtime {
	opts.defaults()
	return &Runtime{
		loader: loader,
		opts:   opts,
		bus:    bus,
		models: make(map[string]*loadedModel),
	}
}

// LoadModel loads the model and starts its queue consumers. Loading an
// already-loaded model is a no-op.
func (r *Runtime) LoadModel(ctx context.Context, modelID string) error {
	r.mu.RLock()
	_, loaded := r.models[modelID]
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	model, err := r.loader.Load(ctx, modelID)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyUnavailable, err, "failed to load model %s", modelID)
	}

	lm := &loadedModel{
		id:    modelID,
		model: model,
		queue: make(chan *request, r.opts.QueueCapacity),
		sem:   make(chan struct{}, r.opts.Concurrency),
		stop:  make(chan struct{}),
	}

	r.mu.Lock()
	if _, raced := r.models[modelID]; raced {
		r.mu.Unlock()
		closeModel(model)
		return nil
	}
	r.models[modelID] = lm
	r.mu.Unlock()

	for i := 0; i < r.opts.Concurrency; i++ {
		lm.wg.Add(1)
		go r.consume(lm)
	}
	log.WithModelID(modelID).Info().Msg("model loaded")
	return nil
}

// UnloadModel stops the model's consumers and releases the instance.
// Queued requests fail with cancelled.
func (r *Runtime) UnloadModel(modelID string) error {
	r.mu.Lock()
	lm, ok := r.models[modelID]
	if ok {
		delete(r.models, modelID)
	}
	r.mu.Unlock()
	if !ok {
		return apperr.NotFound("model %s is not loaded", modelID)
	}

	close(lm.stop)
	lm.wg.Wait()
	for {
		select {
		case req := <-lm.queue:
			req.future.complete(nil, apperr.New(apperr.KindCancelled, "model %s unloaded", modelID))
		default:
			closeModel(lm.model)
			metrics.InferenceQueueDepth.WithLabelValues(modelID).Set(0)
			log.WithModelID(modelID).Info().Msg("model unloaded")
			return nil
		}
	}
}

// IsLoaded reports whether the model is loaded.
func (r *Runtime) IsLoaded(modelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[modelID]
	return ok
}

// IsUnhealthy reports whether the model is marked unhealthy.
func (r *Runtime) IsUnhealthy(modelID string) bool {
	lm, err := r.get(modelID)
	if err != nil {
		return false
	}
	return lm.unhealthy.Load()
}

// ClearUnhealthy resets the model's failure state. Intended for operator
// use after the underlying fault is fixed.
func (r *Runtime) ClearUnhealthy(modelID string) error {
	lm, err := r.get(modelID)
	if err != nil {
		return err
	}
	lm.consecutiveFailures.Store(0)
	lm.unhealthy.Store(false)
	log.WithModelID(modelID).Info().Msg("model health cleared")
	return nil
}

// Infer runs a single inference, blocking for a concurrency slot.
func (r *Runtime) Infer(ctx context.Context, modelID string, input any) (any, error) {
	lm, err := r.get(modelID)
	if err != nil {
		return nil, err
	}

	select {
	case lm.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.KindCancelled, ctx.Err(), "inference cancelled")
	}
	defer func() { <-lm.sem }()

	return r.execute(ctx, lm, input)
}

// InferBatch runs a batch, using the model's native batch path when it
// has one.
func (r *Runtime) InferBatch(ctx context.Context, modelID string, inputs []any) ([]any, error) {
	lm, err := r.get(modelID)
	if err != nil {
		return nil, err
	}

	select {
	case lm.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.KindCancelled, ctx.Err(), "inference cancelled")
	}
	defer func() { <-lm.sem }()

	if lm.unhealthy.Load() {
		return nil, apperr.New(apperr.KindModelUnhealthy, "model %s is unhealthy", modelID)
	}

	if bm, ok := lm.model.(BatchModel); ok {
		timer := metrics.NewTimer()
		outputs, err := bm.InferBatch(ctx, inputs)
		metrics.InferenceLatency.WithLabelValues(modelID).Observe(timer.Duration().Seconds())
		r.recordOutcome(lm, err)
		if err != nil {
			return nil, r.classify(ctx, lm, err)
		}
		return outputs, nil
	}

	outputs := make([]any, 0, len(inputs))
	for _, input := range inputs {
		out, err := r.execute(ctx, lm, input)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// QueueInfer enqueues an inference on the model's FIFO queue and returns
// a future. A full queue rejects with queueFull.
func (r *Runtime) QueueInfer(ctx context.Context, modelID string, input any) (*Future, error) {
	lm, err := r.get(modelID)
	if err != nil {
		return nil, err
	}
	if lm.unhealthy.Load() {
		return nil, apperr.New(apperr.KindModelUnhealthy, "model %s is unhealthy", modelID)
	}

	f := &Future{done: make(chan struct{})}
	select {
	case lm.queue <- &request{ctx: ctx, input: input, future: f}:
		metrics.InferenceQueueDepth.WithLabelValues(modelID).Set(float64(len(lm.queue)))
		return f, nil
	default:
		metrics.InferenceRequestsTotal.WithLabelValues(modelID, "rejected").Inc()
		return nil, apperr.New(apperr.KindQueueFull, "inference queue for model %s is full", modelID)
	}
}

func (r *Runtime) get(modelID string) (*loadedModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lm, ok := r.models[modelID]
	if !ok {
		return nil, apperr.NotFound("model %s is not loaded", modelID)
	}
	return lm, nil
}

func (r *Runtime) consume(lm *loadedModel) {
	defer lm.wg.Done()
	for {
		select {
		case <-lm.stop:
			return
		case req := <-lm.queue:
			metrics.InferenceQueueDepth.WithLabelValues(lm.id).Set(float64(len(lm.queue)))
			result, err := r.execute(req.ctx, lm, req.input)
			req.future.complete(result, err)
		}
	}
}

// execute runs one inference against the model, maintaining the failure
// counters. A failed inference leaves the model loaded.
func (r *Runtime) execute(ctx context.Context, lm *loadedModel, input any) (any, error) {
	if lm.unhealthy.Load() {
		metrics.InferenceRequestsTotal.WithLabelValues(lm.id, "unhealthy").Inc()
		return nil, apperr.New(apperr.KindModelUnhealthy, "model %s is unhealthy", lm.id)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindCancelled, err, "inference cancelled")
	}

	timer := metrics.NewTimer()
	result, err := lm.model.Infer(ctx, input)
	metrics.InferenceLatency.WithLabelValues(lm.id).Observe(timer.Duration().Seconds())
	r.recordOutcome(lm, err)
	if err != nil {
		return nil, r.classify(ctx, lm, err)
	}
	metrics.InferenceRequestsTotal.WithLabelValues(lm.id, "success").Inc()
	return result, nil
}

func (r *Runtime) recordOutcome(lm *loadedModel, err error) {
	if err == nil {
		lm.consecutiveFailures.Store(0)
		return
	}
	failures := lm.consecutiveFailures.Add(1)
	if failures >= int64(r.opts.FailureThreshold) && lm.unhealthy.CompareAndSwap(false, true) {
		log.WithModelID(lm.id).Warn().
			Int64("consecutiveFailures", failures).
			Msg("model marked unhealthy")
		if r.bus != nil {
			r.bus.Publish(&events.Event{
				Type:     events.EventModelUnhealthy,
				EntityID: lm.id,
				Message:  "model marked unhealthy after consecutive failures",
			})
		}
	}
}

func (r *Runtime) classify(ctx context.Context, lm *loadedModel, err error) error {
	metrics.InferenceRequestsTotal.WithLabelValues(lm.id, "failure").Inc()
	if ctx.Err() != nil {
		return apperr.Wrap(apperr.KindCancelled, err, "inference cancelled")
	}
	return apperr.Wrap(apperr.KindInternal, err, "inference failed for model %s", lm.id)
}

func closeModel(m Model) {
	if c, ok := m.(io.Closer); ok {
		_ = c.Close()
	}
}
