package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/climate-favorability/internal/domain"
	"github.com/couchcryptid/climate-favorability/internal/observability"
)

// BatchExtractor reads up to batchSize inference requests from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer turns one inference request into a serialized prediction.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader writes serialized predictions to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

const (
	initialRetryDelay = 200 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

// Pipeline consumes inference requests in batches, predicts each one and
// publishes the predictions. Offsets are committed only once a prediction is
// published or the request has been rejected.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has published a prediction.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not produced any predictions yet")
	}
	return nil
}

// Ready reports whether at least one batch has been loaded.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// Run consumes until ctx is cancelled. Extract and load failures are retried
// with a doubling delay; rejected requests never stop the loop.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	r := retry{delay: initialRetryDelay, max: maxRetryDelay}
	for ctx.Err() == nil {
		if err := p.step(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("prediction batch failed", "error", err, "retry_in", r.delay)
			if !r.wait(ctx) {
				break
			}
			continue
		}
		r.reset()
	}
	p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	return nil
}

// step runs one extract-predict-load cycle. A returned error means the
// batch must be retried; nothing from it was committed.
func (p *Pipeline) step(ctx context.Context) error {
	start := time.Now()

	requests, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		return nil
	}
	p.metrics.RequestsConsumed.Add(float64(len(requests)))
	p.metrics.BatchSize.Observe(float64(len(requests)))

	predicted, served := p.predictBatch(ctx, requests)
	if len(predicted) == 0 {
		return nil
	}

	if err := p.loader.LoadBatch(ctx, predicted); err != nil {
		p.logger.Warn("load predictions failed", "error", err, "predictions", len(predicted))
		return err
	}
	p.metrics.PredictionsProduced.Add(float64(len(predicted)))
	for _, raw := range served {
		p.commit(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	p.logger.Debug("batch predicted",
		"requests", len(requests),
		"predictions", len(predicted),
		"rejected", len(requests)-len(predicted),
	)
	return nil
}

// predictBatch transforms every request. Rejected requests are committed
// immediately so a poison message cannot block its partition; the returned
// raws are the ones whose commit waits on the load.
func (p *Pipeline) predictBatch(ctx context.Context, requests []domain.RawEvent) ([]domain.OutputEvent, []domain.RawEvent) {
	predicted := make([]domain.OutputEvent, 0, len(requests))
	served := make([]domain.RawEvent, 0, len(requests))

	for _, raw := range requests {
		out, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("request rejected",
				"reason", rejectReason(err),
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.commit(ctx, raw)
			continue
		}
		predicted = append(predicted, out)
		served = append(served, raw)
	}
	return predicted, served
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// rejectReason buckets a transform error for the rejection log line.
func rejectReason(err error) string {
	var (
		align   *domain.AlignmentError
		invalid *domain.InvalidRecordError
	)
	switch {
	case errors.As(err, &align):
		return "alignment"
	case errors.As(err, &invalid):
		return "invalid_request"
	default:
		return "transform"
	}
}

// retry is a doubling delay capped at max.
type retry struct {
	delay, max time.Duration
}

func (r *retry) reset() { r.delay = initialRetryDelay }

// wait sleeps for the current delay and doubles it. It reports false when
// ctx ended first.
func (r *retry) wait(ctx context.Context) bool {
	timer := time.NewTimer(r.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	r.delay = min(r.delay*2, r.max)
	return true
}
