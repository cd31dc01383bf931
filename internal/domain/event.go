package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the request topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// InferenceRequest asks for the favorability of one observation. Observation
// may hold any subset of ObservationFields.
type InferenceRequest struct {
	ID          string             `json:"id"`
	Observation map[string]float64 `json:"observation"`
	ObservedAt  time.Time          `json:"observed_at,omitempty"`
}

// Prediction is the result of one inference request.
type Prediction struct {
	RequestID     string                `json:"request_id"`
	Label         Label                 `json:"label"`
	Favorable     bool                  `json:"favorable"`
	Summary       string                `json:"summary"`
	SchemaVersion string                `json:"schema_version"`
	Gaps          []FeatureSynthesisGap `json:"gaps,omitempty"`
	PredictedAt   time.Time             `json:"predicted_at"`

	Vector FeatureVector `json:"-"`
}

// OutputEvent is the serialized form destined for the prediction topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Predictor applies a trained classifier to an aligned vector.
type Predictor interface {
	Predict(ctx context.Context, v FeatureVector) (Label, error)
}
