package domain

import (
	"math"
	"sort"
	"time"
)

// CorrectionPivot is a stage offset applied from Time onwards. A pivot with a
// DeactivatedAt before the query date is ignored.
type CorrectionPivot struct {
	Time          time.Time  `json:"time"`
	DeltaH        float64    `json:"deltah"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// CorrectionCurve is a time-varying additive offset on raw stage readings.
type CorrectionCurve struct {
	Entity string            `json:"entity,omitempty"`
	Pivots []CorrectionPivot `json:"pivots"`
}

// NewCorrectionCurve copies and sorts the pivots by time.
func NewCorrectionCurve(entity string, pivots []CorrectionPivot) *CorrectionCurve {
	sorted := make([]CorrectionPivot, len(pivots))
	copy(sorted, pivots)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	return &CorrectionCurve{Entity: entity, Pivots: sorted}
}

func (cc *CorrectionCurve) activePivots(t time.Time) []CorrectionPivot {
	active := make([]CorrectionPivot, 0, len(cc.Pivots))
	for _, p := range cc.Pivots {
		if p.DeactivatedAt != nil && p.DeactivatedAt.Before(t) {
			continue
		}
		active = append(active, p)
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Time.Before(active[j].Time) })
	return active
}

// delta returns the offset in force at t, NaN when t lies outside the curve
// and the nearest pivot carries a non-zero offset. A curve without active
// pivots applies no offset.
func (cc *CorrectionCurve) delta(t time.Time) float64 {
	pivots := cc.activePivots(t)
	if len(pivots) == 0 {
		return 0
	}
	var before, after *CorrectionPivot
	for i := range pivots {
		p := &pivots[i]
		switch {
		case p.Time.Equal(t):
			return p.DeltaH
		case p.Time.Before(t):
			before = p
		case after == nil:
			after = p
		}
	}
	switch {
	case before != nil && after != nil:
		return InterpolateTime(before.Time, before.DeltaH, after.Time, after.DeltaH, t)
	case before != nil:
		return zeroOrNaN(before.DeltaH)
	default:
		return zeroOrNaN(after.DeltaH)
	}
}

func zeroOrNaN(v float64) float64 {
	if v == 0 {
		return 0
	}
	return math.NaN()
}

// Corrected returns h plus the offset in force at t, NaN when undefined.
func (cc *CorrectionCurve) Corrected(t time.Time, h float64) float64 {
	if cc == nil {
		return h
	}
	return h + cc.delta(t)
}

// Uncorrect removes the offset Corrected would add at t.
func (cc *CorrectionCurve) Uncorrect(t time.Time, h float64) float64 {
	if cc == nil {
		return h
	}
	return h - cc.delta(t)
}

// Apply returns a new stage series with every value corrected. Values that
// become undefined are flagged with continuity 1.
func (cc *CorrectionCurve) Apply(s *Series) (*Series, error) {
	return cc.mapStages(s, cc.Corrected)
}

// Revert undoes Apply.
func (cc *CorrectionCurve) Revert(s *Series) (*Series, error) {
	return cc.mapStages(s, cc.Uncorrect)
}

func (cc *CorrectionCurve) mapStages(s *Series, fn func(time.Time, float64) float64) (*Series, error) {
	if s.Quantity != QuantityStage {
		return nil, wrongQuantity(QuantityStage, s.Quantity)
	}
	b := newSeriesBuilder(s.Len())
	for _, o := range s.obs {
		b.append(correctObservation(o, fn))
	}
	return b.build(s.Entity, s.Quantity), nil
}

func correctObservation(o Observation, fn func(time.Time, float64) float64) Observation {
	if o.Undefined() {
		return o
	}
	o.Value = fn(o.Time, o.Value)
	if o.Undefined() {
		o.Continuity = ContinuityUndefined
	}
	return o
}
