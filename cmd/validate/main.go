// Command validate checks that the artifacts of a training run agree with each
// other before they are deployed: the raw export, the feature table, the
// feature schema, the trained model and a set of inference requests. It
// verifies row counts, column alignment, value sanity, and that every request
// can be served by the model under the schema.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -schema data/feature_schema.json \
//	  -raw data/mock/raw_weather.csv \
//	  -features data/features.csv \
//	  -model data/model.json \
//	  -requests data/mock/inference_requests.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/climate-favorability/internal/adapter/csvio"
	"github.com/couchcryptid/climate-favorability/internal/adapter/schemafile"
	"github.com/couchcryptid/climate-favorability/internal/domain"
	"github.com/couchcryptid/climate-favorability/internal/model"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name    string
	errors  []string
	skipped bool
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type inputs struct {
	schemaPath, rawPath, featuresPath, modelPath, requestsPath string
}

func main() {
	var in inputs
	flag.StringVar(&in.schemaPath, "schema", "", "path to the feature schema (required)")
	flag.StringVar(&in.rawPath, "raw", "", "path to the raw weather export")
	flag.StringVar(&in.featuresPath, "features", "", "path to the feature table")
	flag.StringVar(&in.modelPath, "model", "", "path to the trained model")
	flag.StringVar(&in.requestsPath, "requests", "", "path to an inference request fixture")
	flag.Parse()

	if in.schemaPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(in); code != 0 {
		os.Exit(code)
	}
}

func run(in inputs) int {
	// Fixed clock so prediction timestamps in the report are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== Climate Favorability Artifact Validation ===")
	fmt.Println()

	schema, err := schemafile.Load(in.schemaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load schema: %v\n", err)
		return 1
	}
	fmt.Printf("Schema %s: %d features, built %s\n", schema.Version(), schema.Len(), schema.BuiltAt().Format(time.RFC3339))

	var clf *model.LinearModel
	if in.modelPath != "" {
		if clf, err = model.Load(in.modelPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load model: %v\n", err)
			return 1
		}
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateRawExport(in.rawPath),
		validateFeatureTable(in.featuresPath, schema),
		validateModel(clf, schema),
		validateRequests(in.requestsPath, schema, clf),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		switch {
		case p.skipped:
			status = "\033[33mSKIP\033[0m"
		case !p.passed():
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Raw Export ──
// Validates the raw export parses, carries every required column, and that
// each column has at least one value to impute from.

func validateRawExport(path string) *phase {
	p := &phase{name: "Phase 1: Raw Export"}
	if path == "" {
		p.skipped = true
		return p
	}

	tbl, err := csvio.OpenRawTable(path)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if tbl.Rows() == 0 {
		p.errorf("no data rows")
		return p
	}

	missing := 0
	for _, c := range tbl.Columns {
		missing += c.Missing()
		if c.Missing() == c.Len() {
			p.errorf("column %q has no values", c.Name)
		}
	}
	if _, err := domain.Impute(tbl); err != nil {
		p.errorf("impute: %v", err)
		return p
	}
	fmt.Printf("Raw export: %d rows, %d columns, %d missing cells\n", tbl.Rows(), len(tbl.Columns), missing)
	return p
}

// ── Phase 2: Feature Table ──
// Validates the table header matches the schema and every cell is finite.

func validateFeatureTable(path string, schema *domain.FeatureSchema) *phase {
	p := &phase{name: "Phase 2: Feature Table vs Schema"}
	if path == "" {
		p.skipped = true
		return p
	}

	tbl, err := csvio.OpenFeatureTable(path, schema)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	names := schema.Names()
	for i, row := range tbl.Rows {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				p.errorf("row %d: %s is %v", i, names[j], v)
			}
		}
	}
	if len(tbl.Labels) == 0 {
		p.errorf("table has no %s column", domain.LabelColumn)
	}

	favorable := 0
	for _, l := range tbl.Labels {
		if l == domain.Favorable {
			favorable++
		}
	}
	fmt.Printf("Feature table: %d rows, %d favorable\n", len(tbl.Rows), favorable)
	return p
}

// ── Phase 3: Model ──
// Validates the model was trained on this schema.

func validateModel(clf *model.LinearModel, schema *domain.FeatureSchema) *phase {
	p := &phase{name: "Phase 3: Model vs Schema"}
	if clf == nil {
		p.skipped = true
		return p
	}

	if clf.SchemaVersion != schema.Version() {
		p.errorf("model schema version %s, schema is %s", clf.SchemaVersion, schema.Version())
	}
	names := schema.Names()
	if len(clf.Features) != len(names) {
		p.errorf("model has %d features, schema has %d", len(clf.Features), len(names))
	} else {
		for i := range names {
			if clf.Features[i] != names[i] {
				p.errorf("feature %d: model has %q, schema has %q", i, clf.Features[i], names[i])
			}
		}
	}
	for i, w := range clf.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			p.errorf("weight %d is %v", i, w)
		}
	}
	if clf.Evaluation != nil {
		fmt.Printf("Model: accuracy %.4f on %d held-out rows\n", clf.Evaluation.Accuracy, clf.Evaluation.TestRows)
	}
	return p
}

// ── Phase 4: Inference Requests ──
// Validates every request synthesizes against the schema and, when a model is
// given, can be predicted.

func validateRequests(path string, schema *domain.FeatureSchema, clf *model.LinearModel) *phase {
	p := &phase{name: "Phase 4: Inference Requests"}
	if path == "" {
		p.skipped = true
		return p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	var reqs []domain.InferenceRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		p.errorf("decode requests: %v", err)
		return p
	}

	var gaps, favorable int
	for i, req := range reqs {
		if len(req.Observation) == 0 {
			p.errorf("request %d (%s): empty observation", i, req.ID)
			continue
		}
		syn, err := domain.Synthesize(req.ToObservation(), schema)
		if err != nil {
			p.errorf("request %d (%s): %v", i, req.ID, err)
			continue
		}
		gaps += len(syn.Gaps)
		if clf == nil {
			continue
		}
		pred, err := domain.Predict(context.Background(), req, schema, clf)
		if err != nil {
			p.errorf("request %d (%s): %v", i, req.ID, err)
			continue
		}
		if pred.Favorable {
			favorable++
		}
	}
	fmt.Printf("Requests: %d, %d synthesis gaps", len(reqs), gaps)
	if clf != nil {
		fmt.Printf(", %d predicted favorable", favorable)
	}
	fmt.Println()
	return p
}
