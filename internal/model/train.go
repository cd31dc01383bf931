package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/couchcryptid/climate-favorability/internal/domain"
	"github.com/sajari/regression"
)

// TrainConfig controls the holdout split and the decision threshold.
type TrainConfig struct {
	// TestFraction of the rows is held out for evaluation.
	TestFraction float64
	Threshold    float64
	// Seed makes the shuffle before the split reproducible.
	Seed uint64
}

// DefaultTrainConfig holds out 20% of the rows.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{TestFraction: 0.2, Threshold: DefaultThreshold, Seed: 42}
}

// Evaluation summarizes the model on the held-out rows.
type Evaluation struct {
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	R2        float64 `json:"r2"`
}

// Train fits a least-squares linear model of the label on every schema
// column of a labeled feature table and evaluates it on a holdout split.
func Train(t domain.FeatureTable, cfg TrainConfig) (*LinearModel, error) {
	if t.Schema == nil {
		return nil, errors.New("train: table has no schema")
	}
	if len(t.Labels) != len(t.Rows) {
		return nil, fmt.Errorf("train: %d labels for %d rows", len(t.Labels), len(t.Rows))
	}
	if cfg.TestFraction < 0 || cfg.TestFraction >= 1 {
		return nil, fmt.Errorf("train: test fraction %v out of range [0, 1)", cfg.TestFraction)
	}

	trainIdx, testIdx := split(len(t.Rows), cfg.TestFraction, cfg.Seed)
	if len(trainIdx) <= t.Schema.Len() {
		return nil, fmt.Errorf("train: %d training rows for %d features", len(trainIdx), t.Schema.Len())
	}

	names := t.Schema.Names()
	var r regression.Regression
	r.SetObserved(domain.LabelColumn)
	for i, name := range names {
		r.SetVar(i, name)
	}
	for _, i := range trainIdx {
		r.Train(regression.DataPoint(float64(t.Labels[i]), t.Rows[i]))
	}
	if err := r.Run(); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	coeffs := r.GetCoeffs()
	if len(coeffs) != len(names)+1 {
		return nil, fmt.Errorf("train: got %d coefficients for %d features", len(coeffs), len(names))
	}
	for i, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			// A constant or duplicated column makes the system singular.
			name := "bias"
			if i > 0 {
				name = names[i-1]
			}
			return nil, fmt.Errorf("train: coefficient of %s is not finite; check for constant columns", name)
		}
	}
	m := &LinearModel{
		SchemaVersion: t.Schema.Version(),
		Features:      names,
		Bias:          coeffs[0],
		Weights:       coeffs[1:],
		Threshold:     cfg.Threshold,
		TrainedAt:     t.Schema.BuiltAt(),
	}

	eval := m.evaluate(t, testIdx)
	eval.TrainRows = len(trainIdx)
	eval.R2 = r.R2
	m.Evaluation = &eval
	return m, nil
}

// Evaluate scores m against every row of a labeled table.
func (m *LinearModel) Evaluate(t domain.FeatureTable) (Evaluation, error) {
	if t.Schema == nil || t.Schema.Version() != m.SchemaVersion {
		return Evaluation{}, &domain.AlignmentError{SchemaVersion: m.SchemaVersion, Expected: len(m.Features), Position: -1}
	}
	if len(t.Labels) != len(t.Rows) {
		return Evaluation{}, fmt.Errorf("evaluate: %d labels for %d rows", len(t.Labels), len(t.Rows))
	}
	idx := make([]int, len(t.Rows))
	for i := range idx {
		idx[i] = i
	}
	return m.evaluate(t, idx), nil
}

func (m *LinearModel) evaluate(t domain.FeatureTable, idx []int) Evaluation {
	var tp, fp, tn, fn int
	for _, i := range idx {
		got := m.classify(m.score(t.Rows[i]))
		want := t.Labels[i]
		switch {
		case got == domain.Favorable && want == domain.Favorable:
			tp++
		case got == domain.Favorable:
			fp++
		case want == domain.Favorable:
			fn++
		default:
			tn++
		}
	}
	e := Evaluation{TestRows: len(idx)}
	if len(idx) > 0 {
		e.Accuracy = float64(tp+tn) / float64(len(idx))
	}
	if tp+fp > 0 {
		e.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		e.Recall = float64(tp) / float64(tp+fn)
	}
	return e
}

// split shuffles row indices with a seeded generator and holds out the last
// fraction of them.
func split(n int, fraction float64, seed uint64) (train, test []int) {
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	nTest := int(float64(n) * fraction)
	return perm[:n-nTest], perm[n-nTest:]
}
