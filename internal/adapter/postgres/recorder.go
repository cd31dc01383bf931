// Package postgres records served predictions in a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/climate-favorability/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/sony/gobreaker/v2"
)

const createTable = `
	CREATE TABLE IF NOT EXISTS predictions (
		request_id     TEXT        NOT NULL,
		label          SMALLINT    NOT NULL,
		favorable      BOOLEAN     NOT NULL,
		schema_version TEXT        NOT NULL,
		gaps           JSONB,
		features       JSONB,
		predicted_at   TIMESTAMPTZ NOT NULL,
		recorded_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

const insertPrediction = `
	INSERT INTO predictions (
		request_id, label, favorable, schema_version, gaps, features, predicted_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7
	)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Recorder writes predictions through a circuit breaker so a struggling
// database fails fast instead of stalling the request path.
type Recorder struct {
	db      execer
	closer  func() error
	breaker *gobreaker.CircuitBreaker[struct{}]
	timeout time.Duration
}

// Open connects to databaseURL and ensures the predictions table exists.
func Open(ctx context.Context, databaseURL string, timeout time.Duration) (*Recorder, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create predictions table: %w", err)
	}
	r := newRecorder(db, timeout)
	r.closer = db.Close
	return r, nil
}

func newRecorder(db execer, timeout time.Duration) *Recorder {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "prediction-recorder",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &Recorder{db: db, breaker: cb, timeout: timeout}
}

// Record inserts one prediction. The feature vector is stored as a
// name-to-value JSON object.
func (r *Recorder) Record(ctx context.Context, p domain.Prediction) error {
	gaps, err := json.Marshal(p.Gaps)
	if err != nil {
		return fmt.Errorf("marshal gaps: %w", err)
	}
	features, err := json.Marshal(vectorFields(p.Vector))
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	_, err = r.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		_, err := r.db.ExecContext(ctx, insertPrediction,
			p.RequestID, int(p.Label), p.Favorable, p.SchemaVersion,
			gaps, features, p.PredictedAt,
		)
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("record prediction %s: %w", p.RequestID, err)
	}
	return nil
}

// Close releases the database connection.
func (r *Recorder) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

func vectorFields(v domain.FeatureVector) map[string]float64 {
	names, values := v.Names(), v.Values()
	out := make(map[string]float64, len(names))
	for i, n := range names {
		out[n] = values[i]
	}
	return out
}
