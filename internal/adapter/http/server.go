package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/climate-favorability/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRequestBytes = 1 << 20

// RequestPredictor predicts a single decoded inference request.
type RequestPredictor interface {
	PredictRequest(ctx context.Context, req domain.InferenceRequest) (domain.Prediction, error)
}

// Server exposes health, readiness, metrics and the synchronous predict endpoint.
type Server struct {
	httpServer *http.Server
	predictor  RequestPredictor
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and, when
// predictor is non-nil, POST /v1/predict.
func NewServer(addr string, ready sharedobs.ReadinessChecker, predictor RequestPredictor, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		predictor: predictor,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if predictor != nil {
		mux.HandleFunc("POST /v1/predict", s.handlePredict)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handlePredict answers one inference request. A request without an ID gets a
// random one; the ID is echoed in the response.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req domain.InferenceRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Observation) == 0 {
		writeError(w, http.StatusBadRequest, "observation has no fields")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	pred, err := s.predictor.PredictRequest(r.Context(), req)
	if err != nil {
		var align *domain.AlignmentError
		var invalid *domain.InvalidRecordError
		switch {
		case errors.As(err, &align):
			s.logger.Warn("prediction rejected", "request_id", req.ID, "error", err)
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.As(err, &invalid):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("prediction failed", "request_id", req.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "prediction failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
