// Command hydroconv converts a CSV of stage or discharge readings offline,
// using the same engine as the ETL service.
//
// Usage:
//
//	go run ./cmd/hydroconv \
//	  -readings <readings.csv> \
//	  -curves <curves.json> \
//	  -entity Y1234010 -quantity H -op convert -insert-pivots \
//	  -out results.json
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/hydrometry-etl/internal/domain"
)

type options struct {
	readings     string
	curves       string
	entity       string
	quantity     string
	operation    string
	insertPivots bool
	strict       bool
	out          string
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var o options
	flag.StringVar(&o.readings, "readings", "", "CSV file with time,value[,method,qualification,continuity,status] columns")
	flag.StringVar(&o.curves, "curves", "", "JSON file with rating_curves and an optional correction_curve")
	flag.StringVar(&o.entity, "entity", "", "station code stamped on the series")
	flag.StringVar(&o.quantity, "quantity", "H", "quantity of the readings: H or Q")
	flag.StringVar(&o.operation, "op", "convert", "operation: convert, daily or monthly")
	flag.BoolVar(&o.insertPivots, "insert-pivots", false, "insert rating-curve pivot crossings when converting")
	flag.BoolVar(&o.strict, "strict", false, "reject rating curves with fewer than two pivots")
	flag.StringVar(&o.out, "out", "", "output path for the result JSON (default stdout)")
	flag.Parse()

	if o.readings == "" {
		flag.Usage()
		return errors.New("missing required flag: -readings")
	}

	req, err := buildRequest(o)
	if err != nil {
		return err
	}
	res, err := domain.ExecuteRequest(req, o.insertPivots)
	if err != nil {
		return err
	}

	if err := writeJSON(o.out, res); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	printStats(res.Series)
	return nil
}

func buildRequest(o options) (domain.ConversionRequest, error) {
	q := domain.Quantity(strings.ToUpper(o.quantity))
	if q != domain.QuantityStage && q != domain.QuantityDischarge {
		return domain.ConversionRequest{}, fmt.Errorf("invalid -quantity %q: want H or Q", o.quantity)
	}

	f, err := os.Open(o.readings)
	if err != nil {
		return domain.ConversionRequest{}, fmt.Errorf("open readings: %w", err)
	}
	defer f.Close()

	obs, err := readObservations(f)
	if err != nil {
		return domain.ConversionRequest{}, fmt.Errorf("%s: %w", o.readings, err)
	}
	log.Printf("%s: %d readings", o.readings, len(obs))

	req := domain.ConversionRequest{
		ID:           strings.TrimSuffix(filepath.Base(o.readings), filepath.Ext(o.readings)),
		Operation:    domain.Operation(strings.ToLower(o.operation)),
		InsertPivots: o.insertPivots,
		Series:       domain.NewSeries(o.entity, q, obs),
	}
	if o.curves != "" {
		set, err := loadCurves(o.curves, o.strict)
		if err != nil {
			return domain.ConversionRequest{}, fmt.Errorf("%s: %w", o.curves, err)
		}
		req.RatingCurves = set.Rating
		req.CorrectionCurve = set.Correction
		log.Printf("%s: %d rating curves, correction=%t", o.curves, len(set.Rating), set.Correction != nil)
	}
	return req, nil
}

// loadCurves reads a curve set and re-applies the construction invariants.
func loadCurves(path string, strict bool) (domain.CurveSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.CurveSet{}, err
	}
	var set domain.CurveSet
	if err := json.Unmarshal(data, &set); err != nil {
		return domain.CurveSet{}, fmt.Errorf("decode curves: %w", err)
	}
	for i := range set.Rating {
		c := &set.Rating[i]
		if err := c.Validate(); err != nil {
			return domain.CurveSet{}, err
		}
		if strict && !c.Usable() {
			return domain.CurveSet{}, fmt.Errorf("curve %s: %w", c.Code, domain.ErrTooFewPivots)
		}
	}
	if cc := set.Correction; cc != nil {
		set.Correction = domain.NewCorrectionCurve(cc.Entity, cc.Pivots)
	}
	return set, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// printStats logs how many produced values carry each continuity code.
func printStats(s *domain.Series) {
	counts := map[int]int{}
	for _, o := range s.Observations() {
		counts[o.Continuity]++
	}
	codes := make([]int, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Ints(codes)

	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprintf("%d=%d", c, counts[c])
	}
	log.Printf("produced %d values, by continuity: %s", s.Len(), strings.Join(parts, " "))
}
