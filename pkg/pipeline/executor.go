package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ib-77/txpipe/pkg/capability"
	"github.com/ib-77/txpipe/pkg/envelope"
	"github.com/ib-77/txpipe/pkg/rop"
	"github.com/ib-77/txpipe/pkg/rop/solo"
)

// Executor runs requests against one capability. It keeps no state between
// runs and may be shared.
type Executor[I, V any] struct {
	capability capability.Capability[I, V]
	name       string
	logger     *zap.Logger
	observer   Observer
}

type Option func(*options)

type options struct {
	name     string
	logger   *zap.Logger
	observer Observer
}

// WithName labels logs and metrics for requests that do not name a pipeline.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func New[I, V any](c capability.Capability[I, V], opts ...Option) *Executor[I, V] {
	o := options{name: "default"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	return &Executor[I, V]{
		capability: c,
		name:       o.name,
		logger:     o.logger,
		observer:   o.observer,
	}
}

// Run processes req and returns its response. Invalid requests are refused
// with nothing processed. Otherwise success is true only when every item
// produced a value; under all-or-none a failure stops the run and triggers
// exactly one rollback of the processed items.
func (e *Executor[I, V]) Run(ctx context.Context, req envelope.Request[I]) envelope.Response[I, V] {
	name := req.Pipeline
	if name == "" {
		name = e.name
	}
	logger := e.logger.With(
		zap.String("pipeline", name),
		zap.String("correlation_id", req.CorrelationID),
	)

	if err := req.Validate(); err != nil {
		logger.Warn("request rejected", zap.Error(err))
		return envelope.Reject[I, V](req, err)
	}

	start := time.Now()
	resp := envelope.NewResponse[I, V](req)
	processed := make([]I, 0, len(req.Items))
	failed := false

	for i, item := range req.Items {
		processed = append(processed, item)

		res := Attempt(ctx, item, e.capability, req.MaxRetries)
		e.observeItem(name, res)

		res = solo.DoubleTee(ctx, res, nil, func(_ context.Context, err error) {
			logger.Warn("item failed",
				zap.Int("position", i+1),
				zap.Int("attempts", res.Attempts()),
				zap.Error(err))
		})

		resp.Results = append(resp.Results, solo.Finally(ctx, res,
			func(_ context.Context, v V) envelope.Outcome[V] { return envelope.Succeeded(v) },
			func(_ context.Context, err error) envelope.Outcome[V] { return envelope.Failed[V](err) }))

		if res.IsFailure() {
			failed = true
			resp.Failures = append(resp.Failures, item)
			if req.AllOrNone {
				break
			}
		}
	}

	resp.Success = !failed && len(resp.Results) == len(req.Items)

	if failed && req.AllOrNone {
		err := Rollback(ctx, processed, e.capability, logger)
		e.observer.ObserveRollback(name, err)
	}

	elapsed := time.Since(start)
	e.observer.ObservePipeline(name, resp.Success, elapsed)
	logger.Debug("pipeline finished",
		zap.Bool("success", resp.Success),
		zap.Bool("all_or_none", req.AllOrNone),
		zap.Int("items", len(req.Items)),
		zap.Int("processed", len(resp.Results)),
		zap.Int("failures", len(resp.Failures)),
		zap.Duration("elapsed", elapsed))

	return resp
}

func (e *Executor[I, V]) observeItem(name string, res rop.WithAttempts[V]) {
	e.observer.ObserveItem(name, res.IsSuccess(), res.Attempts())
}
