// Package batch turns a raw observation table into a feature table. Each
// location is built as its own time series, in parallel, and the results are
// concatenated under one schema.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/couchcryptid/climate-favorability/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Options configures a batch run.
type Options struct {
	Builder domain.BuilderConfig
	// Labeled attaches the favorability label of every row.
	Labeled bool
	// Workers bounds the number of locations built concurrently. Zero uses GOMAXPROCS.
	Workers int
}

// Result is the output of Run.
type Result struct {
	Table     domain.FeatureTable
	Warnings  []domain.LowHistoryWarning
	Locations int
}

type location struct {
	lat, lon float64
}

// Run imputes t, splits its observations by location, and builds features per
// location. Standardization, when configured, is fitted once over the
// combined table so every location shares the same scaling.
func Run(ctx context.Context, t domain.Table, opts Options, logger *slog.Logger) (Result, error) {
	imputed, err := domain.Impute(t)
	if err != nil {
		return Result{}, fmt.Errorf("impute: %w", err)
	}
	obs, err := imputed.Observations(domain.DefaultTableLayout)
	if err != nil {
		return Result{}, fmt.Errorf("observations: %w", err)
	}

	groups, order := groupByLocation(obs)
	if len(order) == 0 {
		return Result{}, &domain.DataQualityError{Column: "table", Reason: "no observations"}
	}

	builderCfg := opts.Builder
	builderCfg.Standardize = false
	builder, err := domain.NewBuilder(builderCfg)
	if err != nil {
		return Result{}, err
	}

	results := make([]domain.BuildResult, len(order))
	g, gCtx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for i, loc := range order {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			build := builder.Build
			if opts.Labeled {
				build = builder.BuildLabeled
			}
			res, err := build(groups[loc])
			if err != nil {
				return fmt.Errorf("location %.4f,%.4f: %w", loc.lat, loc.lon, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	out := Result{Locations: len(order)}
	combined := domain.FeatureTable{Schema: results[0].Table.Schema}
	for i, res := range results {
		if !res.Table.Schema.SameAs(combined.Schema) {
			return Result{}, fmt.Errorf("location %d built schema %s, want %s", i, res.Table.Schema.Version(), combined.Schema.Version())
		}
		combined.Timestamps = append(combined.Timestamps, res.Table.Timestamps...)
		combined.Rows = append(combined.Rows, res.Table.Rows...)
		combined.Labels = append(combined.Labels, res.Table.Labels...)
		for _, w := range res.Warnings {
			logger.Warn("short series", "location", order[i], "rows", w.Rows, "largest_window", w.LargestWindow)
		}
		out.Warnings = append(out.Warnings, res.Warnings...)
	}

	if opts.Builder.Standardize {
		if combined, err = domain.Standardize(combined); err != nil {
			return Result{}, fmt.Errorf("standardize: %w", err)
		}
	}
	out.Table = combined
	logger.Info("features built",
		"rows", len(combined.Rows),
		"features", combined.Schema.Len(),
		"locations", out.Locations,
		"schema_version", combined.Schema.Version(),
	)
	return out, nil
}

// groupByLocation splits obs by coordinates, keeping locations in order of
// first appearance.
func groupByLocation(obs []domain.RawObservation) (map[location]domain.ObservationSeries, []location) {
	groups := make(map[location]domain.ObservationSeries)
	var order []location
	for _, o := range obs {
		loc := location{lat: o.Latitude, lon: o.Longitude}
		if _, ok := groups[loc]; !ok {
			order = append(order, loc)
		}
		groups[loc] = append(groups[loc], o)
	}
	return groups, order
}

// LogValue renders a location as "lat,lon" in structured logs.
func (l location) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprintf("%.4f,%.4f", l.lat, l.lon))
}
