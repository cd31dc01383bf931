// Command train fits the favorability model on a labeled feature table and
// reports its accuracy on a holdout split.
//
// Usage:
//
//	go run ./cmd/train \
//	  -features data/features.csv \
//	  -schema data/feature_schema.json \
//	  -model data/model.json
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/couchcryptid/climate-favorability/internal/adapter/csvio"
	"github.com/couchcryptid/climate-favorability/internal/adapter/schemafile"
	"github.com/couchcryptid/climate-favorability/internal/model"
	"github.com/couchcryptid/climate-favorability/internal/observability"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	featuresPath := flag.String("features", "data/features.csv", "path to the labeled feature table")
	schemaPath := flag.String("schema", "data/feature_schema.json", "path to the feature schema")
	modelPath := flag.String("model", "data/model.json", "output path for the trained model")
	testFraction := flag.Float64("test-fraction", 0.2, "fraction of rows held out for evaluation")
	threshold := flag.Float64("threshold", model.DefaultThreshold, "score at or above which a row is favorable")
	seed := flag.Uint64("seed", 42, "shuffle seed for the holdout split")
	flag.Parse()

	logger := observability.NewToolLogger()

	schema, err := schemafile.Load(*schemaPath)
	if err != nil {
		return err
	}
	table, err := csvio.OpenFeatureTable(*featuresPath, schema)
	if err != nil {
		return err
	}
	if len(table.Labels) == 0 {
		return fmt.Errorf("%s has no label column; rebuild it without -unlabeled", *featuresPath)
	}
	logger.Info("feature table loaded", "rows", len(table.Rows), "schema_version", schema.Version())

	m, err := model.Train(table, model.TrainConfig{
		TestFraction: *testFraction,
		Threshold:    *threshold,
		Seed:         *seed,
	})
	if err != nil {
		return err
	}
	if err := model.Save(*modelPath, m); err != nil {
		return fmt.Errorf("write model: %w", err)
	}

	e := m.Evaluation
	fmt.Printf("Model trained on %d rows, evaluated on %d\n", e.TrainRows, e.TestRows)
	fmt.Printf("  %-10s %.4f\n", "accuracy", e.Accuracy)
	fmt.Printf("  %-10s %.4f\n", "precision", e.Precision)
	fmt.Printf("  %-10s %.4f\n", "recall", e.Recall)
	fmt.Printf("  %-10s %.4f\n", "r2", e.R2)
	fmt.Printf("Model written to %s\n", *modelPath)
	return nil
}
