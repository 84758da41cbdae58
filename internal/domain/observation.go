package domain

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// Quantity tags the physical quantity carried by a series.
type Quantity string

const (
	QuantityStage     Quantity = "H" // water level, mm
	QuantityDischarge Quantity = "Q" // flow, l/s
)

// Continuity codes attached to every observation.
const (
	ContinuityContinuous = 0
	ContinuityUndefined  = 1
	ContinuityBelowCurve = 4
	ContinuityAboveCurve = 8
)

// MethodComputed is the method code of every value produced by the engine.
const MethodComputed = 8

// Qualification codes. Lower is worse, so combining qualifications takes the minimum.
const (
	QualificationUncertain   = 12
	QualificationUnqualified = 16
	QualificationGood        = 20
)

// Observation is one timestamped value. A NaN Value means "undefined".
type Observation struct {
	Time          time.Time
	Value         float64
	Method        int
	Qualification int
	Continuity    int
	Status        int
}

// Undefined reports whether the observation carries no value.
func (o Observation) Undefined() bool {
	return math.IsNaN(o.Value)
}

type observationJSON struct {
	Time          time.Time `json:"time"`
	Value         *float64  `json:"value"`
	Method        int       `json:"method"`
	Qualification int       `json:"qualification"`
	Continuity    int       `json:"continuity"`
	Status        int       `json:"status"`
}

// MarshalJSON writes undefined values as null since JSON has no NaN.
func (o Observation) MarshalJSON() ([]byte, error) {
	w := observationJSON{
		Time:          o.Time,
		Method:        o.Method,
		Qualification: o.Qualification,
		Continuity:    o.Continuity,
		Status:        o.Status,
	}
	if !math.IsNaN(o.Value) && !math.IsInf(o.Value, 0) {
		v := o.Value
		w.Value = &v
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads a null or missing value as NaN.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var w observationJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = Observation{
		Time:          w.Time,
		Value:         math.NaN(),
		Method:        w.Method,
		Qualification: w.Qualification,
		Continuity:    w.Continuity,
		Status:        w.Status,
	}
	if w.Value != nil {
		o.Value = *w.Value
	}
	return nil
}

// Series is an ordered-by-time sequence of observations for one entity and
// one quantity. The observation slice is owned by the series: constructors
// copy their input and accessors never expose the backing array, so a
// series is never modified once built.
type Series struct {
	Entity     string
	Quantity   Quantity
	ProducedAt time.Time

	obs []Observation
}

// NewSeries copies obs, sorts the copy by time and wraps it in a Series.
func NewSeries(entity string, quantity Quantity, obs []Observation) *Series {
	owned := make([]Observation, len(obs))
	copy(owned, obs)
	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].Time.Before(owned[j].Time)
	})
	return &Series{Entity: entity, Quantity: quantity, obs: owned}
}

// Len returns the number of observations.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.obs)
}

// At returns the i-th observation.
func (s *Series) At(i int) Observation {
	return s.obs[i]
}

// Observations returns a copy of the observations.
func (s *Series) Observations() []Observation {
	if s == nil {
		return nil
	}
	out := make([]Observation, len(s.obs))
	copy(out, s.obs)
	return out
}

type seriesJSON struct {
	Entity       string        `json:"entity"`
	Quantity     Quantity      `json:"quantity"`
	ProducedAt   *time.Time    `json:"produced_at,omitempty"`
	Observations []Observation `json:"observations"`
}

func (s *Series) MarshalJSON() ([]byte, error) {
	w := seriesJSON{Entity: s.Entity, Quantity: s.Quantity, Observations: s.obs}
	if w.Observations == nil {
		w.Observations = []Observation{}
	}
	if !s.ProducedAt.IsZero() {
		t := s.ProducedAt
		w.ProducedAt = &t
	}
	return json.Marshal(w)
}

func (s *Series) UnmarshalJSON(data []byte) error {
	var w seriesJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	built := NewSeries(w.Entity, w.Quantity, w.Observations)
	if w.ProducedAt != nil {
		built.ProducedAt = *w.ProducedAt
	}
	*s = *built
	return nil
}

// seriesBuilder accumulates engine output. Only the engine appends; the
// result is handed out as an immutable Series.
type seriesBuilder struct {
	obs []Observation
}

func newSeriesBuilder(capacity int) *seriesBuilder {
	return &seriesBuilder{obs: make([]Observation, 0, capacity)}
}

func (b *seriesBuilder) append(o Observation) {
	b.obs = append(b.obs, o)
}

func (b *seriesBuilder) last() (Observation, bool) {
	if len(b.obs) == 0 {
		return Observation{}, false
	}
	return b.obs[len(b.obs)-1], true
}

func (b *seriesBuilder) build(entity string, quantity Quantity) *Series {
	return &Series{
		Entity:     entity,
		Quantity:   quantity,
		ProducedAt: clock.Now(),
		obs:        b.obs,
	}
}
