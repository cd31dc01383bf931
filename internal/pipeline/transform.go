package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/couchcryptid/climate-favorability/internal/domain"
	"github.com/couchcryptid/climate-favorability/internal/observability"
)

// SchemaSource yields the feature schema the model expects.
type SchemaSource interface {
	Schema(ctx context.Context) (*domain.FeatureSchema, error)
}

// Recorder persists predictions for audit. Failures never block inference.
type Recorder interface {
	Record(ctx context.Context, p domain.Prediction) error
}

// PredictionTransformer implements Transformer: it decodes an inference
// request, synthesizes its feature vector and applies the predictor.
type PredictionTransformer struct {
	source    SchemaSource
	registry  *domain.SchemaRegistry
	pinned    atomic.Pointer[string]
	predictor domain.Predictor
	recorder  Recorder
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewTransformer creates a PredictionTransformer. initial is the schema the
// predictor was loaded against: it is published right away and pins the
// schema version, so a snapshot of a different version is never served. With
// a nil initial the first snapshot loaded from source pins the version. Pass
// a nil recorder to disable prediction auditing.
func NewTransformer(source SchemaSource, initial *domain.FeatureSchema, predictor domain.Predictor, recorder Recorder, logger *slog.Logger, metrics *observability.Metrics) *PredictionTransformer {
	t := &PredictionTransformer{
		source:    source,
		registry:  &domain.SchemaRegistry{},
		predictor: predictor,
		recorder:  recorder,
		logger:    logger,
		metrics:   metrics,
	}
	if initial != nil {
		if err := t.publish(initial); err != nil {
			logger.Warn("initial feature schema not published", "error", err)
		}
	}
	return t
}

// Transform turns one raw request into a serialized prediction.
func (t *PredictionTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseInferenceRequest(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	pred, err := t.PredictRequest(ctx, req)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return domain.SerializePrediction(pred)
}

// PredictRequest resolves the current schema snapshot and predicts req.
// An AlignmentError is returned unchanged so callers can reject the request.
func (t *PredictionTransformer) PredictRequest(ctx context.Context, req domain.InferenceRequest) (domain.Prediction, error) {
	schema, err := t.schema(ctx)
	if err != nil {
		return domain.Prediction{}, err
	}

	pred, err := domain.Predict(ctx, req, schema, t.predictor)
	if err != nil {
		var align *domain.AlignmentError
		if errors.As(err, &align) {
			t.metrics.AlignmentErrors.Inc()
		}
		return domain.Prediction{}, err
	}

	if len(pred.Gaps) > 0 {
		names := make([]string, len(pred.Gaps))
		for i, g := range pred.Gaps {
			names[i] = g.Feature
			t.metrics.SynthesisGaps.WithLabelValues(g.Feature).Inc()
		}
		t.logger.Warn("feature synthesis gaps",
			"request_id", req.ID,
			"schema_version", pred.SchemaVersion,
			"gaps", len(pred.Gaps),
			"features", strings.Join(names, ","),
		)
	}
	t.metrics.PredictionOutcomes.WithLabelValues(labelName(pred.Label)).Inc()

	if t.recorder != nil {
		if err := t.recorder.Record(ctx, pred); err != nil {
			t.metrics.RecorderErrors.Inc()
			t.logger.Warn("record prediction failed", "request_id", req.ID, "error", err)
		}
	}
	return pred, nil
}

// schema loads the schema from the source and publishes it. When the source
// fails, or yields a version other than the pinned one, the last published
// snapshot keeps serving.
func (t *PredictionTransformer) schema(ctx context.Context) (*domain.FeatureSchema, error) {
	current, published := t.registry.Current()

	loaded, err := t.source.Schema(ctx)
	if err != nil {
		if published {
			t.logger.Warn("schema reload failed, using last snapshot",
				"error", err, "schema_version", current.Version())
			return current, nil
		}
		return nil, fmt.Errorf("load feature schema: %w", err)
	}

	if pinned := t.pinned.Load(); pinned != nil && loaded.Version() != *pinned {
		// Serving it would fail every request until the model is reloaded too.
		t.metrics.SchemaRejections.Inc()
		t.logger.Warn("schema version does not match the loaded model",
			"schema_version", loaded.Version(), "pinned_version", *pinned)
		if published {
			return current, nil
		}
		return nil, fmt.Errorf("load feature schema: version %s, model expects %s", loaded.Version(), *pinned)
	}
	if !published || !current.SameAs(loaded) {
		if err := t.publish(loaded); err != nil {
			return nil, err
		}
	}
	current, _ = t.registry.Current()
	return current, nil
}

// publish makes s the current snapshot. The first published schema pins the
// version for the life of the transformer.
func (t *PredictionTransformer) publish(s *domain.FeatureSchema) error {
	if err := t.registry.Publish(s); err != nil {
		return err
	}
	version := s.Version()
	t.pinned.CompareAndSwap(nil, &version)
	t.metrics.SchemaFeatures.Set(float64(s.Len()))
	t.logger.Info("feature schema published", "schema_version", version, "features", s.Len())
	return nil
}

func labelName(l domain.Label) string {
	if l == domain.Favorable {
		return "favorable"
	}
	return "unfavorable"
}
