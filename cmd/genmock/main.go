// Command genmock generates deterministic mock fixtures: a raw weather export
// in the provider's ';'-separated format and a set of inference requests. The
// readings follow smooth diurnal curves so every label and feature kind shows
// up, with a few cells left missing to exercise imputation.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -raw-out data/mock/raw_weather.csv \
//	  -requests-out data/mock/inference_requests.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/climate-favorability/internal/adapter/csvio"
	"github.com/couchcryptid/climate-favorability/internal/domain"
)

var baseDate = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

type site struct {
	name     string
	lat, lon float64
}

var sites = []site{
	{name: "berlin", lat: 52.52, lon: 13.405},
	{name: "munich", lat: 48.137, lon: 11.575},
	{name: "hamburg", lat: 53.551, lon: 9.993},
}

// reading is one generated hour at one site, rounded to two decimals.
type reading struct {
	temperature, humidity, heatIndex, precipitation float64
	uv, evapotranspiration, drought                  float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	rawOut := flag.String("raw-out", "", "output path for the raw weather export")
	requestsOut := flag.String("requests-out", "", "output path for the inference request fixture")
	hours := flag.Int("hours", 72, "hourly readings per site")
	requests := flag.Int("requests", 12, "inference requests to generate")
	flag.Parse()

	if *rawOut == "" || *requestsOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -raw-out, -requests-out")
	}

	lines, labels := rawLines(*hours)
	if err := writeFile(*rawOut, []byte(strings.Join(lines, "\n")+"\n")); err != nil {
		return fmt.Errorf("writing raw export: %w", err)
	}
	log.Printf("wrote raw export: %s (%d rows)", *rawOut, len(lines)-1)

	reqs := inferenceRequests(*hours, *requests)
	if err := writeJSON(*requestsOut, reqs); err != nil {
		return fmt.Errorf("writing request fixture: %w", err)
	}
	log.Printf("wrote request fixture: %s (%d requests)", *requestsOut, len(reqs))

	printStats(labels, reqs)
	return nil
}

// generate evaluates the diurnal model for site index s at hour h.
func generate(s, h int) reading {
	fs, fh := float64(s), float64(h)
	day := 2 * math.Pi / 24

	temp := 16 + 2*fs + 9*math.Sin(day*(fh-9))
	humidity := 9 + 4*math.Cos(day*fh+fs)
	precip := 50 + 45*math.Sin(2*math.Pi*fh/37+fs)
	uv := math.Max(0, 8*math.Sin(day*(fh-6))) * (0.8 + 0.1*fs)
	evap := 0.05 + 0.04*math.Sin(day*(fh-8)) + 0.01*fs
	drought := 1.5 + 0.5*math.Sin(2*math.Pi*fh/72+fs)

	return reading{
		temperature:        round2(temp),
		humidity:           round2(humidity),
		heatIndex:          round2(temp + 0.1*humidity),
		precipitation:      round2(precip),
		uv:                 round2(uv),
		evapotranspiration: round2(evap),
		drought:            round2(drought),
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// rawLines renders the export interleaved by hour, the order the provider
// returns multi-location queries in. It also returns the label of every row.
func rawLines(hours int) ([]string, []domain.Label) {
	lines := []string{strings.Join(csvio.RequiredRawColumns, ";")}
	var labels []domain.Label
	row := 0
	for h := 0; h < hours; h++ {
		ts := baseDate.Add(time.Duration(h) * time.Hour).Format(time.RFC3339)
		for s, st := range sites {
			r := generate(s, h)
			temp := fmt.Sprintf("%.2f", r.temperature)
			precip := fmt.Sprintf("%.2f", r.precipitation)
			if row%17 == 5 {
				temp = "NaN"
			}
			if row%23 == 7 {
				precip = ""
			}
			lines = append(lines, fmt.Sprintf("%g;%g;%s;%s;%.2f;%.2f;%s;%.2f;%.2f;%.2f;0",
				st.lat, st.lon, ts, temp, r.humidity, r.heatIndex, precip, r.uv, r.evapotranspiration, r.drought))

			obs := domain.NewRawObservation(time.Time{}, map[string]float64{
				domain.FieldTemperature:              r.temperature,
				domain.FieldAbsoluteHumidity:         r.humidity,
				domain.FieldUVIndex:                  r.uv,
				domain.FieldPrecipitationProbability: r.precipitation,
			})
			l, _ := domain.DeriveLabel(obs)
			labels = append(labels, l)
			row++
		}
	}
	return lines, labels
}

// inferenceRequests continues the first site's curves past the export. Every
// fourth request omits UV_Index to exercise synthesis gaps.
func inferenceRequests(start, n int) []domain.InferenceRequest {
	reqs := make([]domain.InferenceRequest, n)
	for i := range reqs {
		h := start + i
		r := generate(0, h)
		obs := map[string]float64{
			domain.FieldTemperature:              r.temperature,
			domain.FieldAbsoluteHumidity:         r.humidity,
			domain.FieldHeatIndex:                r.heatIndex,
			domain.FieldPrecipitationProbability: r.precipitation,
			domain.FieldUVIndex:                  r.uv,
			domain.FieldEvapotranspiration:       r.evapotranspiration,
			domain.FieldDroughtIndex:             r.drought,
		}
		if i%4 == 3 {
			delete(obs, domain.FieldUVIndex)
		}
		reqs[i] = domain.InferenceRequest{
			ID:          fmt.Sprintf("mock-%03d", i+1),
			Observation: obs,
			ObservedAt:  baseDate.Add(time.Duration(h) * time.Hour),
		}
	}
	return reqs
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, append(data, '\n'))
}

func printStats(labels []domain.Label, reqs []domain.InferenceRequest) {
	var favorable int
	for _, l := range labels {
		if l == domain.Favorable {
			favorable++
		}
	}
	var partial int
	for _, r := range reqs {
		if len(r.Observation) < len(domain.ObservationFields) {
			partial++
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Sites: %d, rows: %d\n", len(sites), len(labels))
	fmt.Printf("Favorable rows: %d, unfavorable rows: %d\n", favorable, len(labels)-favorable)
	fmt.Printf("Requests: %d (%d partial)\n", len(reqs), partial)
}
