package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRequestID = "req-123"

type fakePredictor struct {
	label Label
	err   error
	got   FeatureVector
}

func (f *fakePredictor) Predict(_ context.Context, v FeatureVector) (Label, error) {
	f.got = v
	return f.label, f.err
}

func TestParseInferenceRequest(t *testing.T) {
	received := time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)

	t.Run("full request", func(t *testing.T) {
		data := []byte(`{"id":"req-123","observation":{"Temperature":22.5,"UV_Index":3},"observed_at":"2024-04-26T14:00:00Z"}`)
		req, err := ParseInferenceRequest(RawEvent{Value: data, Timestamp: received})

		require.NoError(t, err)
		assert.Equal(t, testRequestID, req.ID)
		assert.Equal(t, map[string]float64{FieldTemperature: 22.5, FieldUVIndex: 3}, req.Observation)
		assert.Equal(t, time.Date(2024, 4, 26, 14, 0, 0, 0, time.UTC), req.ObservedAt)
	})

	t.Run("id from key", func(t *testing.T) {
		data := []byte(`{"observation":{"Temperature":22.5}}`)
		req, err := ParseInferenceRequest(RawEvent{Key: []byte("station-7"), Value: data, Timestamp: received})

		require.NoError(t, err)
		assert.Equal(t, "station-7", req.ID)
		assert.Equal(t, received, req.ObservedAt)
	})

	t.Run("generated id is deterministic", func(t *testing.T) {
		data := []byte(`{"observation":{"Temperature":22.5}}`)
		a, err := ParseInferenceRequest(RawEvent{Value: data})
		require.NoError(t, err)
		b, err := ParseInferenceRequest(RawEvent{Value: data})
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(a.ID, "req-"))
		assert.Equal(t, a.ID, b.ID)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParseInferenceRequest(RawEvent{Value: []byte("{invalid json")})
		assert.Error(t, err)
	})

	t.Run("empty observation", func(t *testing.T) {
		_, err := ParseInferenceRequest(RawEvent{Value: []byte(`{"id":"x","observation":{}}`)})
		var invalid *InvalidRecordError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, "observation", invalid.Field)
	})
}

func TestPredict(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	schema := testSchema(t)
	req := InferenceRequest{
		ID:          testRequestID,
		Observation: map[string]float64{FieldTemperature: 20, FieldUVIndex: 2},
	}
	p := &fakePredictor{label: Favorable}

	pred, err := Predict(context.Background(), req, schema, p)
	require.NoError(t, err)

	assert.Equal(t, testRequestID, pred.RequestID)
	assert.Equal(t, Favorable, pred.Label)
	assert.True(t, pred.Favorable)
	assert.Equal(t, "Favorable conditions", pred.Summary)
	assert.Equal(t, schema.Version(), pred.SchemaVersion)
	assert.Equal(t, fake.Now(), pred.PredictedAt)
	require.Len(t, pred.Gaps, 1)
	assert.Equal(t, "temp_humidity_interaction", pred.Gaps[0].Feature)
	assert.Equal(t, []float64{20, 20, 2, 0}, p.got.Values())
}

func TestPredict_PredictorError(t *testing.T) {
	p := &fakePredictor{err: errors.New("model unavailable")}
	req := InferenceRequest{ID: testRequestID, Observation: map[string]float64{FieldTemperature: 20}}

	_, err := Predict(context.Background(), req, testSchema(t), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), testRequestID)
}

func TestPredict_NoSchema(t *testing.T) {
	req := InferenceRequest{ID: testRequestID, Observation: map[string]float64{FieldTemperature: 20}}
	_, err := Predict(context.Background(), req, nil, &fakePredictor{})

	var align *AlignmentError
	assert.True(t, errors.As(err, &align))
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "Favorable conditions", Summary(Favorable))
	assert.Equal(t, "Unfavorable conditions", Summary(Unfavorable))
}

func TestSerializePrediction(t *testing.T) {
	pred := Prediction{
		RequestID:     testRequestID,
		Label:         Unfavorable,
		Summary:       Summary(Unfavorable),
		SchemaVersion: "fs-0011223344556677",
		Gaps:          []FeatureSynthesisGap{{Feature: "uv_precip_interaction", Kind: "interaction", Missing: []string{FieldUVIndex}}},
		PredictedAt:   time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC),
	}

	out, err := SerializePrediction(pred)
	require.NoError(t, err)

	assert.Equal(t, []byte(testRequestID), out.Key)
	assert.Equal(t, "false", out.Headers["favorable"])
	assert.Equal(t, "fs-0011223344556677", out.Headers["schema_version"])
	assert.Equal(t, "2024-04-26T15:00:00Z", out.Headers["predicted_at"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Value, &decoded))
	assert.Equal(t, testRequestID, decoded["request_id"])
	assert.Equal(t, false, decoded["favorable"])
	assert.Equal(t, "Unfavorable conditions", decoded["summary"])
	assert.NotContains(t, decoded, "Vector")
	assert.Len(t, decoded["gaps"], 1)
}
