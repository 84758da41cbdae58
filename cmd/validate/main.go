// Command validate checks hydrometric result data for integrity: the mock
// request fixture against the engine, and published result files against
// the invariants every produced series must hold.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -fixture data/mock/requests.json \
//	  -results results.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/hydrometry-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// fixtureCase is one entry of the mock request fixture.
type fixtureCase struct {
	Name     string          `json:"name"`
	Request  json.RawMessage `json:"request"`
	Expected struct {
		Quantity   domain.Quantity `json:"quantity"`
		Values     []*float64      `json:"values"`
		Continuity []int           `json:"continuity"`
	} `json:"expected"`
}

func main() {
	fixture := flag.String("fixture", "", "path to the mock request fixture")
	results := flag.String("results", "", "path to a JSON array of conversion results")
	flag.Parse()

	if *fixture == "" && *results == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*fixture, *results); code != 0 {
		os.Exit(code)
	}
}

func run(fixturePath, resultsPath string) int {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	fmt.Println("=== Hydrometry Result Validation ===")
	fmt.Println()

	var phases []*phase
	var cases []fixtureCase
	var res []domain.ConversionResult

	if fixturePath != "" {
		var err error
		if cases, err = loadJSON[fixtureCase](fixturePath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load fixture: %v\n", err)
			return 1
		}
		phases = append(phases, validateFixture(cases))
	}
	if resultsPath != "" {
		var err error
		if res, err = loadJSON[domain.ConversionResult](resultsPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load results: %v\n", err)
			return 1
		}
		phases = append(phases,
			validateOrdering(res),
			validateCodes(res),
			validateAggregates(res),
			validateIDs(res),
		)
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d fixture cases, %d results\n", len(cases), len(res))

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

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ── Fixture ──
// Re-runs every fixture request through the engine and compares the output
// with the recorded expectation.

func validateFixture(cases []fixtureCase) *phase {
	p := &phase{name: "Fixture expectations"}
	for _, c := range cases {
		req, err := domain.ParseRequest(domain.RawEvent{Value: c.Request})
		if err != nil {
			p.errorf("%s: parse: %v", c.Name, err)
			continue
		}
		out, err := domain.ExecuteRequest(req, false)
		if err != nil {
			p.errorf("%s: execute: %v", c.Name, err)
			continue
		}
		compareSeries(p, c, out.Series)
	}
	return p
}

func compareSeries(p *phase, c fixtureCase, s *domain.Series) {
	if s.Quantity != c.Expected.Quantity {
		p.errorf("%s: quantity = %s, want %s", c.Name, s.Quantity, c.Expected.Quantity)
	}
	if s.Len() != len(c.Expected.Values) {
		p.errorf("%s: %d values, want %d", c.Name, s.Len(), len(c.Expected.Values))
		return
	}
	for i, want := range c.Expected.Values {
		got := s.At(i)
		if i < len(c.Expected.Continuity) && got.Continuity != c.Expected.Continuity[i] {
			p.errorf("%s[%d]: continuity = %d, want %d", c.Name, i, got.Continuity, c.Expected.Continuity[i])
		}
		switch {
		case want == nil && !got.Undefined():
			p.errorf("%s[%d]: value = %g, want undefined", c.Name, i, got.Value)
		case want != nil && !floatEq(*want, got.Value):
			p.errorf("%s[%d]: value = %g, want %g", c.Name, i, got.Value, *want)
		}
	}
}

// ── Results ──

func validateOrdering(results []domain.ConversionResult) *phase {
	p := &phase{name: "Strictly increasing timestamps"}
	for _, r := range results {
		obs := r.Series.Observations()
		for i := 1; i < len(obs); i++ {
			if !obs[i].Time.After(obs[i-1].Time) {
				p.errorf("%s[%d]: %s not after %s", r.ID, i,
					obs[i].Time.Format(time.RFC3339), obs[i-1].Time.Format(time.RFC3339))
			}
		}
	}
	return p
}

var (
	validContinuity    = map[int]bool{0: true, 1: true, 4: true, 8: true}
	validQualification = map[int]bool{0: true, 12: true, 16: true, 20: true}
)

// validateCodes checks code domains and that a value is defined exactly when
// its continuity is 0.
func validateCodes(results []domain.ConversionResult) *phase {
	p := &phase{name: "Code domains and undefined values"}
	for _, r := range results {
		for i, o := range r.Series.Observations() {
			if !validContinuity[o.Continuity] {
				p.errorf("%s[%d]: continuity %d", r.ID, i, o.Continuity)
			}
			if !validQualification[o.Qualification] {
				p.errorf("%s[%d]: qualification %d", r.ID, i, o.Qualification)
			}
			if o.Method != domain.MethodComputed {
				p.errorf("%s[%d]: method %d, want %d", r.ID, i, o.Method, domain.MethodComputed)
			}
			if o.Undefined() != (o.Continuity != domain.ContinuityContinuous) {
				p.errorf("%s[%d]: value defined=%t with continuity %d", r.ID, i, !o.Undefined(), o.Continuity)
			}
		}
	}
	return p
}

// validateAggregates checks that daily means sit on consecutive midnights and
// monthly means on the first of consecutive months.
func validateAggregates(results []domain.ConversionResult) *phase {
	p := &phase{name: "Daily and monthly alignment"}
	for _, r := range results {
		if r.Operation != domain.OperationDaily && r.Operation != domain.OperationMonthly {
			continue
		}
		if r.Series.Quantity != domain.QuantityDischarge {
			p.errorf("%s: %s means must be discharge, got %s", r.ID, r.Operation, r.Series.Quantity)
		}
		obs := r.Series.Observations()
		for i, o := range obs {
			t := o.Time
			if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
				p.errorf("%s[%d]: %s is not midnight", r.ID, i, t.Format(time.RFC3339))
			}
			if r.Operation == domain.OperationMonthly && t.Day() != 1 {
				p.errorf("%s[%d]: %s is not the first of a month", r.ID, i, t.Format(time.RFC3339))
			}
			if i == 0 {
				continue
			}
			prev := obs[i-1].Time
			want := prev.AddDate(0, 0, 1)
			if r.Operation == domain.OperationMonthly {
				want = prev.AddDate(0, 1, 0)
			}
			if !t.Equal(want) {
				p.errorf("%s[%d]: %s follows %s", r.ID, i, t.Format(time.RFC3339), prev.Format(time.RFC3339))
			}
		}
	}
	return p
}

func validateIDs(results []domain.ConversionResult) *phase {
	p := &phase{name: "Result IDs"}
	seen := make(map[string]bool, len(results))
	for i, r := range results {
		if !strings.HasPrefix(r.ID, string(r.Operation)+"-") {
			p.errorf("result %d: id %q lacks %q prefix", i, r.ID, r.Operation)
		}
		if seen[r.ID] {
			p.errorf("result %d: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = true
		if r.RequestID == "" {
			p.errorf("result %d: missing request_id", i)
		}
	}
	return p
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
