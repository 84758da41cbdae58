package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hydrometry-etl/internal/domain"
)

// readObservations parses a CSV with a header row. time and value are
// required; an empty value is an undefined reading. Missing code columns
// default to an unqualified, continuous reading.
func readObservations(r io.Reader) ([]domain.Observation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"time", "value"} {
		if _, ok := colIdx[required]; !ok {
			return nil, fmt.Errorf("missing %q column", required)
		}
	}

	obs := make([]domain.Observation, 0, len(rows)-1)
	for i, row := range rows[1:] {
		o, err := parseRow(row, colIdx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		obs = append(obs, o)
	}
	return obs, nil
}

func parseRow(row []string, colIdx map[string]int) (domain.Observation, error) {
	ts, err := time.Parse(time.RFC3339, get(row, colIdx, "time"))
	if err != nil {
		return domain.Observation{}, fmt.Errorf("time: %w", err)
	}
	o := domain.Observation{
		Time:          ts,
		Value:         math.NaN(),
		Qualification: domain.QualificationUnqualified,
	}
	if v := get(row, colIdx, "value"); v != "" {
		if o.Value, err = strconv.ParseFloat(v, 64); err != nil {
			return domain.Observation{}, fmt.Errorf("value: %w", err)
		}
	}

	codes := []struct {
		col string
		dst *int
	}{
		{"method", &o.Method},
		{"qualification", &o.Qualification},
		{"continuity", &o.Continuity},
		{"status", &o.Status},
	}
	for _, c := range codes {
		v := get(row, colIdx, c.col)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.Observation{}, fmt.Errorf("%s: %w", c.col, err)
		}
		*c.dst = n
	}
	if o.Undefined() && o.Continuity == domain.ContinuityContinuous {
		o.Continuity = domain.ContinuityUndefined
	}
	return o, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
