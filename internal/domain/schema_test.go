package domain

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *FeatureSchema {
	t.Helper()
	s, err := NewFeatureSchema([]FeatureSpec{
		RawFeature(FieldTemperature),
		RollingFeature(FieldTemperature, 3),
		LagFeature(FieldUVIndex, 1),
		InteractionFeature("temp_humidity_interaction", FieldTemperature, FieldAbsoluteHumidity),
	})
	require.NoError(t, err)
	return s
}

func TestNewFeatureSchema(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	s := testSchema(t)

	assert.Equal(t, 4, s.Len())
	assert.Equal(t, []string{
		"Temperature",
		"Temperature_rolling_3h",
		"UV_Index_lag_1h",
		"temp_humidity_interaction",
	}, s.Names())
	assert.Equal(t, fake.Now(), s.BuiltAt())
	assert.True(t, strings.HasPrefix(s.Version(), "fs-"))
	assert.False(t, s.Standardized())

	i, ok := s.Index("UV_Index_lag_1h")
	assert.True(t, ok)
	assert.Equal(t, 2, i)
	_, ok = s.Index("nope")
	assert.False(t, ok)
}

func TestNewFeatureSchema_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		specs []FeatureSpec
	}{
		{"empty", nil},
		{"duplicate name", []FeatureSpec{RawFeature("a"), RawFeature("a")}},
		{"rolling without window", []FeatureSpec{{Name: "x", Kind: KindRolling, Base: "a"}}},
		{"lag without offset", []FeatureSpec{{Name: "x", Kind: KindLag, Base: "a"}}},
		{"interaction missing operand", []FeatureSpec{{Name: "x", Kind: KindInteraction, A: "a"}}},
		{"unknown kind", []FeatureSpec{{Name: "x", Kind: "ewm", Base: "a"}}},
		{"empty name", []FeatureSpec{{Kind: KindRaw, Base: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFeatureSchema(tt.specs)
			assert.Error(t, err)
		})
	}
}

func TestFeatureSchema_Version(t *testing.T) {
	a := testSchema(t)
	b := testSchema(t)
	assert.Equal(t, a.Version(), b.Version())
	assert.True(t, a.SameAs(b))

	reordered, err := NewFeatureSchema([]FeatureSpec{
		RollingFeature(FieldTemperature, 3),
		RawFeature(FieldTemperature),
		LagFeature(FieldUVIndex, 1),
		InteractionFeature("temp_humidity_interaction", FieldTemperature, FieldAbsoluteHumidity),
	})
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), reordered.Version())
	assert.False(t, a.SameAs(reordered))

	scaled, err := a.withScaling([]Scaling{{1, 2}, {1, 2}, {1, 2}, {1, 2}})
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), scaled.Version())
	assert.True(t, scaled.Standardized())
}

func TestFeatureSchema_AccessorsCopy(t *testing.T) {
	s, err := NewFeatureSchema([]FeatureSpec{{Name: "Temperature", Kind: KindRaw, Base: "Temperature", Scale: &Scaling{Mean: 1, StdDev: 2}}})
	require.NoError(t, err)

	f := s.Features()
	f[0].Name = "changed"
	f[0].Scale.Mean = 99

	assert.Equal(t, "Temperature", s.Feature(0).Name)
	assert.Equal(t, 1.0, s.Feature(0).Scale.Mean)
}

func TestFeatureSchema_JSONRoundTrip(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	s := testSchema(t)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded FeatureSchema
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, s.Version(), decoded.Version())
	assert.True(t, s.BuiltAt().Equal(decoded.BuiltAt()))
	if diff := cmp.Diff(s.Features(), decoded.Features()); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}
}

func TestFeatureSchema_UnmarshalRejectsVersionMismatch(t *testing.T) {
	s := testSchema(t)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	tampered := strings.Replace(string(data), "Temperature_rolling_3h", "Temperature_rolling_7h", 1)
	var decoded FeatureSchema
	err = json.Unmarshal([]byte(tampered), &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestParseFeatureName(t *testing.T) {
	tests := []struct {
		name     string
		expected FeatureSpec
	}{
		{"Temperature", RawFeature("Temperature")},
		{"Temperature_rolling_3h", RollingFeature("Temperature", 3)},
		{"Absolute_Humidity_rolling_14h", RollingFeature("Absolute_Humidity", 14)},
		{"UV_Index_lag_7h", LagFeature("UV_Index", 7)},
		{"Precipitation_Probability_lag_1h", LagFeature("Precipitation_Probability", 1)},
		{"uv_precip_interaction", InteractionFeature("uv_precip_interaction", FieldUVIndex, FieldPrecipitationProbability)},
		{"Temperature_rolling_0h", RawFeature("Temperature_rolling_0h")},
		{"Temperature_lag_xh", RawFeature("Temperature_lag_xh")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseFeatureName(tt.name, DefaultInteractions))
		})
	}
}

func TestSchemaFromHeader(t *testing.T) {
	b, err := NewBuilder(DefaultBuilderConfig())
	require.NoError(t, err)
	built, err := NewFeatureSchema(b.specs)
	require.NoError(t, err)

	header := append(built.Names(), LabelColumn)
	recovered, err := SchemaFromHeader(header, DefaultInteractions)
	require.NoError(t, err)

	assert.Equal(t, built.Version(), recovered.Version())
	assert.NotContains(t, recovered.Names(), LabelColumn)
}

func TestSchemaRegistry(t *testing.T) {
	var r SchemaRegistry

	_, ok := r.Current()
	assert.False(t, ok)
	assert.Error(t, r.Publish(nil))

	first := testSchema(t)
	require.NoError(t, r.Publish(first))
	got, ok := r.Current()
	require.True(t, ok)
	assert.Same(t, first, got)

	second, err := NewFeatureSchema([]FeatureSpec{RawFeature(FieldUVIndex)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, ok := r.Current()
			assert.True(t, ok)
			assert.True(t, s == first || s == second)
		}()
	}
	require.NoError(t, r.Publish(second))
	wg.Wait()

	got, _ = r.Current()
	assert.Same(t, second, got)
}
