package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/climate-favorability/internal/adapter/http"
	"github.com/couchcryptid/climate-favorability/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockPredictor struct {
	err error
	got domain.InferenceRequest
}

func (m *mockPredictor) PredictRequest(_ context.Context, req domain.InferenceRequest) (domain.Prediction, error) {
	m.got = req
	if m.err != nil {
		return domain.Prediction{}, m.err
	}
	return domain.Prediction{
		RequestID:     req.ID,
		Label:         domain.Favorable,
		Favorable:     true,
		Summary:       domain.Summary(domain.Favorable),
		SchemaVersion: "fs-0011223344556677",
		PredictedAt:   time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC),
	}, nil
}

func newTestServer(readyErr error, p httpadapter.RequestPredictor) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, p, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("not ready yet"), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPredict_OK(t *testing.T) {
	p := &mockPredictor{}
	srv := newTestServer(nil, p)
	rec := httptest.NewRecorder()
	body := `{"id":"req-1","observation":{"Temperature":22,"Absolute_Humidity":9}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader(body))

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var pred domain.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pred))
	assert.Equal(t, "req-1", pred.RequestID)
	assert.True(t, pred.Favorable)
	assert.Equal(t, "Favorable conditions", pred.Summary)
	assert.Equal(t, 22.0, p.got.Observation[domain.FieldTemperature])
}

func TestPredict_GeneratesID(t *testing.T) {
	p := &mockPredictor{}
	srv := newTestServer(nil, p)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader(`{"observation":{"Temperature":22}}`))

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, p.got.ID, 36)
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed body", `{"observation":`, nil, http.StatusBadRequest},
		{"empty observation", `{"observation":{}}`, nil, http.StatusBadRequest},
		{"alignment", `{"observation":{"Temperature":22}}`, fmt.Errorf("predict: %w", &domain.AlignmentError{Expected: 33, Got: 31, Position: -1}), http.StatusUnprocessableEntity},
		{"invalid record", `{"observation":{"Temperature":22}}`, &domain.InvalidRecordError{Field: "observation", Reason: "no fields"}, http.StatusBadRequest},
		{"internal", `{"observation":{"Temperature":22}}`, errors.New("schema file missing"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(nil, &mockPredictor{err: tt.err})
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader(tt.body))

			srv.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestPredict_NotRoutedWithoutPredictor(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader(`{}`))

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
