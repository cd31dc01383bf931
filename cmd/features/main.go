// Command features builds the training feature table from a raw weather export.
// It writes the table and the feature schema the model will be trained on.
//
// Usage:
//
//	go run ./cmd/features \
//	  -raw data/mock/raw_weather.csv \
//	  -out data/features.csv \
//	  -schema data/feature_schema.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/climate-favorability/internal/adapter/csvio"
	"github.com/couchcryptid/climate-favorability/internal/adapter/schemafile"
	"github.com/couchcryptid/climate-favorability/internal/batch"
	"github.com/couchcryptid/climate-favorability/internal/domain"
	"github.com/couchcryptid/climate-favorability/internal/observability"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	rawPath := flag.String("raw", "", "path to the ';'-separated raw weather export (.zst accepted)")
	outPath := flag.String("out", "data/features.csv", "output path for the feature table (.zst compresses)")
	schemaPath := flag.String("schema", "data/feature_schema.json", "output path for the feature schema")
	standardize := flag.Bool("standardize", false, "scale every feature to zero mean and unit variance")
	unlabeled := flag.Bool("unlabeled", false, "omit the Favorable_Condition column")
	workers := flag.Int("workers", 0, "locations built concurrently (0 = GOMAXPROCS)")
	flag.Parse()

	if *rawPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -raw")
	}

	logger := observability.NewToolLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	raw, err := csvio.OpenRawTable(*rawPath)
	if err != nil {
		return err
	}
	logger.Info("raw table loaded", "path", *rawPath, "rows", raw.Rows(), "columns", len(raw.Columns))

	cfg := domain.DefaultBuilderConfig()
	cfg.Standardize = *standardize
	res, err := batch.Run(ctx, raw, batch.Options{
		Builder: cfg,
		Labeled: !*unlabeled,
		Workers: *workers,
	}, logger)
	if err != nil {
		return fmt.Errorf("build features: %w", err)
	}

	if err := csvio.CreateFeatureTable(*outPath, res.Table); err != nil {
		return fmt.Errorf("write feature table: %w", err)
	}
	if err := schemafile.Save(*schemaPath, res.Table.Schema); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Wrote %d rows x %d features to %s\n", len(res.Table.Rows), res.Table.Schema.Len(), *outPath)
	fmt.Fprintf(os.Stdout, "Schema %s written to %s\n", res.Table.Schema.Version(), *schemaPath)
	return nil
}
