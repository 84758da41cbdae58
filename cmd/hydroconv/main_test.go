package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/hydrometry-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const curvesFile = `{
  "rating_curves": [{
    "code": "T2024",
    "kind": "polyline",
    "pivots": [
      {"height": 400, "discharge": 1000, "qualification": 20},
      {"height": 0, "discharge": 0, "qualification": 20},
      {"height": 200, "discharge": 400, "qualification": 20}
    ],
    "periods": [{"start": "2024-01-01T00:00:00Z", "state": 0}]
  }],
  "correction_curve": {
    "pivots": [
      {"time": "2024-01-01T00:00:00Z", "deltah": 10},
      {"time": "2025-01-01T00:00:00Z", "deltah": 10}
    ]
  }
}`

func TestReadObservations(t *testing.T) {
	in := "Time, Value, Qualification, Status\n" +
		"2024-03-01T00:00:00Z, 100, 20, 4\n" +
		"2024-03-01T01:00:00Z, , , \n" +
		"2024-03-01T02:00:00Z, 300.5, , 4\n"

	obs, err := readObservations(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, obs, 3)

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), obs[0].Time)
	assert.Equal(t, 100.0, obs[0].Value)
	assert.Equal(t, domain.QualificationGood, obs[0].Qualification)
	assert.Equal(t, 4, obs[0].Status)

	assert.True(t, obs[1].Undefined())
	assert.Equal(t, domain.ContinuityUndefined, obs[1].Continuity)
	assert.Equal(t, domain.QualificationUnqualified, obs[1].Qualification)

	assert.Equal(t, 300.5, obs[2].Value)
}

func TestReadObservations_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no rows", "time,value\n", "no data rows"},
		{"missing value column", "time,height\n2024-03-01T00:00:00Z,1\n", `missing "value" column`},
		{"bad time", "time,value\nyesterday,1\n", "line 2: time"},
		{"bad value", "time,value\n2024-03-01T00:00:00Z,abc\n", "line 2: value"},
		{"bad code", "time,value,status\n2024-03-01T00:00:00Z,1,x\n", "line 2: status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readObservations(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuildRequest(t *testing.T) {
	readings := writeTemp(t, "Y1234010_H.csv", "time,value\n2024-03-01T00:00:00Z,90\n2024-03-01T01:00:00Z,290\n")
	curves := writeTemp(t, "curves.json", curvesFile)

	req, err := buildRequest(options{
		readings:  readings,
		curves:    curves,
		entity:    "Y1234010",
		quantity:  "h",
		operation: "convert",
	})
	require.NoError(t, err)
	assert.Equal(t, "Y1234010_H", req.ID)
	assert.Equal(t, domain.QuantityStage, req.Series.Quantity)
	require.Len(t, req.RatingCurves, 1)
	assert.Equal(t, 0.0, req.RatingCurves[0].Pivots[0].Height, "pivots sorted after load")
	require.NotNil(t, req.CorrectionCurve)

	res, err := domain.ExecuteRequest(req, false)
	require.NoError(t, err)
	require.Equal(t, 2, res.Series.Len())
	assert.InDelta(t, 200.0, res.Series.At(0).Value, 1e-9)
	assert.InDelta(t, 700.0, res.Series.At(1).Value, 1e-9)
}

func TestBuildRequest_InvalidQuantity(t *testing.T) {
	_, err := buildRequest(options{readings: "unused.csv", quantity: "T"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid -quantity")
}

func TestLoadCurves_Strict(t *testing.T) {
	path := writeTemp(t, "curves.json", `{"rating_curves":[{"code":"C1","kind":"polyline","pivots":[{"height":0}]}]}`)

	set, err := loadCurves(path, false)
	require.NoError(t, err)
	assert.Len(t, set.Rating, 1)

	_, err = loadCurves(path, true)
	require.ErrorIs(t, err, domain.ErrTooFewPivots)
}

func TestLoadCurves_DuplicatePivot(t *testing.T) {
	path := writeTemp(t, "curves.json", `{"rating_curves":[{"code":"C1","kind":"polyline","pivots":[{"height":1},{"height":1}]}]}`)
	_, err := loadCurves(path, false)
	require.ErrorIs(t, err, domain.ErrDuplicatePivot)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	require.NoError(t, writeJSON(path, map[string]int{"n": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(data))
}
