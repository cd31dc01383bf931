// Package model holds the favorability classifier: a linear score over an
// aligned feature vector, thresholded into a Label.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/climate-favorability/internal/domain"
)

// DefaultThreshold separates favorable from unfavorable scores.
const DefaultThreshold = 0.5

// LinearModel scores a vector as Bias + sum(Weights[i] * v[i]). It only
// accepts vectors aligned to the schema it was trained on.
type LinearModel struct {
	SchemaVersion string      `json:"schema_version"`
	Features      []string    `json:"features"`
	Bias          float64     `json:"bias"`
	Weights       []float64   `json:"weights"`
	Threshold     float64     `json:"threshold"`
	TrainedAt     time.Time   `json:"trained_at"`
	Evaluation    *Evaluation `json:"evaluation,omitempty"`
}

// Score returns the raw linear score of v.
func (m *LinearModel) Score(v domain.FeatureVector) (float64, error) {
	if err := domain.CheckVectorAlignment(v, m.SchemaVersion, m.Features); err != nil {
		return 0, err
	}
	if v.SchemaVersion() != m.SchemaVersion {
		return 0, &domain.AlignmentError{
			SchemaVersion: m.SchemaVersion,
			Expected:      len(m.Features),
			Got:           v.Len(),
			Position:      -1,
		}
	}
	return m.score(v.Values()), nil
}

// Predict implements domain.Predictor.
func (m *LinearModel) Predict(_ context.Context, v domain.FeatureVector) (domain.Label, error) {
	s, err := m.Score(v)
	if err != nil {
		return domain.Unfavorable, fmt.Errorf("linear model: %w", err)
	}
	return m.classify(s), nil
}

func (m *LinearModel) score(values []float64) float64 {
	s := m.Bias
	for i, w := range m.Weights {
		s += w * values[i]
	}
	return s
}

func (m *LinearModel) classify(score float64) domain.Label {
	if score >= m.Threshold {
		return domain.Favorable
	}
	return domain.Unfavorable
}

func (m *LinearModel) validate() error {
	if m.SchemaVersion == "" {
		return errors.New("model has no schema version")
	}
	if len(m.Features) == 0 {
		return errors.New("model has no features")
	}
	if len(m.Weights) != len(m.Features) {
		return fmt.Errorf("model has %d weights for %d features", len(m.Weights), len(m.Features))
	}
	return nil
}

// Load reads a model document from path.
func Load(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &m, nil
}

// Save writes m to path, creating parent directories.
func Save(path string, m *LinearModel) error {
	if err := m.validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
