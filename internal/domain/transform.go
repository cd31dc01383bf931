package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ParseInferenceRequest deserializes a RawEvent's value into an InferenceRequest.
// A request without an ID takes the message key, or a deterministic hash of
// the payload when the key is empty too.
func ParseInferenceRequest(raw RawEvent) (InferenceRequest, error) {
	var req InferenceRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return InferenceRequest{}, fmt.Errorf("parse inference request: %w", err)
	}
	if len(req.Observation) == 0 {
		return InferenceRequest{}, &InvalidRecordError{Field: "observation", Reason: "no fields"}
	}
	if req.ID == "" {
		req.ID = string(raw.Key)
	}
	if req.ID == "" {
		req.ID = generateID(raw.Value)
	}
	if req.ObservedAt.IsZero() {
		req.ObservedAt = raw.Timestamp
	}
	return req, nil
}

// generateID produces a deterministic ID from a request payload, so replaying
// the same message yields the same prediction key.
func generateID(payload []byte) string {
	hash := sha256.Sum256(payload)
	return "req-" + hex.EncodeToString(hash[:8])
}

// ToObservation converts the request into a RawObservation. Unknown field
// names are kept so they can still match raw schema entries.
func (r InferenceRequest) ToObservation() RawObservation {
	return NewRawObservation(r.ObservedAt, r.Observation)
}

// Predict synthesizes the request's feature vector against schema and applies
// the predictor. Synthesis gaps are carried on the prediction.
func Predict(ctx context.Context, req InferenceRequest, schema *FeatureSchema, p Predictor) (Prediction, error) {
	syn, err := Synthesize(req.ToObservation(), schema)
	if err != nil {
		return Prediction{}, err
	}
	label, err := p.Predict(ctx, syn.Vector)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict %s: %w", req.ID, err)
	}
	return Prediction{
		RequestID:     req.ID,
		Label:         label,
		Favorable:     label == Favorable,
		Summary:       Summary(label),
		SchemaVersion: schema.Version(),
		Gaps:          syn.Gaps,
		PredictedAt:   clock.Now().UTC(),
		Vector:        syn.Vector,
	}, nil
}

// Summary renders a label for people.
func Summary(l Label) string {
	if l == Favorable {
		return "Favorable conditions"
	}
	return "Unfavorable conditions"
}

// SerializePrediction marshals a prediction into an output event keyed by request ID.
func SerializePrediction(p Prediction) (OutputEvent, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize prediction: %w", err)
	}
	return OutputEvent{
		Key:   []byte(p.RequestID),
		Value: data,
		Headers: map[string]string{
			"favorable":      strconv.FormatBool(p.Favorable),
			"schema_version": p.SchemaVersion,
			"predicted_at":   p.PredictedAt.Format(time.RFC3339),
		},
	}, nil
}
