package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// CurveKind selects how a rating curve evaluates discharge between pivots.
type CurveKind int

const (
	// Polyline curves interpolate linearly between (height, discharge) pivots.
	Polyline CurveKind = iota
	// PowerLaw curves evaluate 1000·a·(h−h0)^b with the parameters of the
	// pivot closing the segment.
	PowerLaw
)

func (k CurveKind) String() string {
	switch k {
	case Polyline:
		return "polyline"
	case PowerLaw:
		return "power-law"
	default:
		return fmt.Sprintf("CurveKind(%d)", int(k))
	}
}

func (k CurveKind) MarshalText() ([]byte, error) {
	switch k {
	case Polyline, PowerLaw:
		return []byte(k.String()), nil
	default:
		return nil, ErrUnknownCurveKind
	}
}

func (k *CurveKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "polyline", "poly":
		*k = Polyline
	case "power-law", "puissance", "power":
		*k = PowerLaw
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCurveKind, text)
	}
	return nil
}

// Pivot is a calibration point. Polyline curves use Discharge; power-law
// curves use VarA, VarB and VarH, which describe the segment ending at Height.
type Pivot struct {
	Height        float64 `json:"height"`
	Discharge     float64 `json:"discharge,omitempty"`
	VarA          float64 `json:"vara,omitempty"`
	VarB          float64 `json:"varb,omitempty"`
	VarH          float64 `json:"varh,omitempty"`
	Qualification int     `json:"qualification"`
}

// PeriodState is the usage state of a rating-curve period.
type PeriodState int

const (
	PeriodInUse     PeriodState = 0
	PeriodSuspended PeriodState = 4
	PeriodRetired   PeriodState = 8
)

// Activation records when a usage period was switched on and, optionally, off.
type Activation struct {
	ActivatedAt   time.Time  `json:"activated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// UsagePeriod is a time range during which a rating curve may be applied.
// A nil End leaves the period open.
type UsagePeriod struct {
	Start   time.Time    `json:"start"`
	End     *time.Time   `json:"end,omitempty"`
	State   PeriodState  `json:"state"`
	History []Activation `json:"history,omitempty"`
}

// Covers reports whether t falls in [Start, End], End inclusive.
func (p UsagePeriod) Covers(t time.Time) bool {
	if t.Before(p.Start) {
		return false
	}
	return p.End == nil || !t.After(*p.End)
}

// deactivatedAt reports whether the activation history holds a deactivation
// at or before t that has not been followed by a re-activation at or before t.
func (p UsagePeriod) deactivatedAt(t time.Time) bool {
	var lastOff, lastOn time.Time
	for _, a := range p.History {
		if !a.ActivatedAt.After(t) && a.ActivatedAt.After(lastOn) {
			lastOn = a.ActivatedAt
		}
		if a.DeactivatedAt != nil && !a.DeactivatedAt.After(t) && a.DeactivatedAt.After(lastOff) {
			lastOff = *a.DeactivatedAt
		}
	}
	if lastOff.IsZero() {
		return false
	}
	return !lastOn.After(lastOff)
}

// RatingCurve ties stage to discharge for a station.
type RatingCurve struct {
	Code       string        `json:"code"`
	Kind       CurveKind     `json:"kind"`
	Pivots     []Pivot       `json:"pivots"`
	LowerLimit *float64      `json:"lower_limit,omitempty"`
	UpperLimit *float64      `json:"upper_limit,omitempty"`
	Periods    []UsagePeriod `json:"periods,omitempty"`
}

// NewRatingCurve copies and sorts the pivots by height and rejects duplicate
// heights or an unknown kind. Curves with fewer than two pivots are accepted
// and behave as "no data" during conversion.
func NewRatingCurve(code string, kind CurveKind, pivots []Pivot, periods ...UsagePeriod) (RatingCurve, error) {
	c := RatingCurve{Code: code, Kind: kind, Periods: periods}
	if err := c.normalize(pivots); err != nil {
		return RatingCurve{}, err
	}
	return c, nil
}

func (c *RatingCurve) normalize(pivots []Pivot) error {
	switch c.Kind {
	case Polyline, PowerLaw:
	default:
		return fmt.Errorf("curve %s: %w", c.Code, ErrUnknownCurveKind)
	}
	sorted := make([]Pivot, len(pivots))
	copy(sorted, pivots)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Height < sorted[j].Height })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Height == sorted[i-1].Height {
			return fmt.Errorf("curve %s: %w %g", c.Code, ErrDuplicatePivot, sorted[i].Height)
		}
	}
	c.Pivots = sorted
	return nil
}

// Validate re-applies the construction invariants, for curves decoded from JSON.
func (c *RatingCurve) Validate() error {
	return c.normalize(c.Pivots)
}

// Usable reports whether the curve has enough pivots to be evaluated.
func (c RatingCurve) Usable() bool {
	return len(c.Pivots) >= 2
}

// IsActive reports whether some in-use period covers t and has not been
// deactivated at t.
func (c RatingCurve) IsActive(t time.Time) bool {
	for _, p := range c.Periods {
		if p.State != PeriodInUse || !p.Covers(t) {
			continue
		}
		if p.deactivatedAt(t) {
			continue
		}
		return true
	}
	return false
}

// MinHeight and MaxHeight bound the hard range of the curve.
func (c RatingCurve) MinHeight() float64 { return c.Pivots[0].Height }
func (c RatingCurve) MaxHeight() float64 { return c.Pivots[len(c.Pivots)-1].Height }

// segment returns the index i >= 1 of the first pivot whose height is >= h,
// so that h lies in [Pivots[i-1].Height, Pivots[i].Height]. h must be in range.
func (c RatingCurve) segment(h float64) int {
	i := sort.Search(len(c.Pivots), func(k int) bool { return c.Pivots[k].Height >= h })
	if i < 1 {
		i = 1
	}
	if i > len(c.Pivots)-1 {
		i = len(c.Pivots) - 1
	}
	return i
}

// Discharge returns the discharge at height h, NaN when h is outside the
// pivot range or the curve has fewer than two pivots.
func (c RatingCurve) Discharge(h float64) (float64, error) {
	if !c.Usable() || math.IsNaN(h) || h < c.MinHeight() || h > c.MaxHeight() {
		return math.NaN(), nil
	}
	i := c.segment(h)
	switch c.Kind {
	case Polyline:
		p1, p2 := c.Pivots[i-1], c.Pivots[i]
		switch h {
		case p1.Height:
			return p1.Discharge, nil
		case p2.Height:
			return p2.Discharge, nil
		}
		return Interpolate(p1.Height, p1.Discharge, p2.Height, p2.Discharge, h), nil
	case PowerLaw:
		return powerLaw(c.Pivots[i], h)
	default:
		return math.NaN(), ErrUnknownCurveKind
	}
}

func powerLaw(p Pivot, h float64) (float64, error) {
	if h < p.VarH {
		return math.NaN(), fmt.Errorf("%w: h=%g varh=%g", ErrPowerLawDomain, h, p.VarH)
	}
	return 1000 * p.VarA * math.Pow(h-p.VarH, p.VarB), nil
}

// pivotDischarge returns the discharge at pivot i. For power-law curves the
// first pivot is evaluated with the parameters of the second, at its height
// clamped up to that segment's anchor.
func (c RatingCurve) pivotDischarge(i int) (float64, error) {
	switch c.Kind {
	case Polyline:
		return c.Pivots[i].Discharge, nil
	case PowerLaw:
		if i == 0 {
			p := c.Pivots[1]
			return powerLaw(p, math.Max(c.Pivots[0].Height, p.VarH))
		}
		return powerLaw(c.Pivots[i], c.Pivots[i].Height)
	default:
		return math.NaN(), ErrUnknownCurveKind
	}
}

// MinDischarge and MaxDischarge return the discharges at the lowest and
// highest pivots.
func (c RatingCurve) MinDischarge() (float64, error) {
	if !c.Usable() {
		return math.NaN(), nil
	}
	return c.pivotDischarge(0)
}

func (c RatingCurve) MaxDischarge() (float64, error) {
	if !c.Usable() {
		return math.NaN(), nil
	}
	return c.pivotDischarge(len(c.Pivots) - 1)
}

// Height returns the height at which the curve yields discharge q, NaN
// when q is outside [MinDischarge, MaxDischarge].
func (c RatingCurve) Height(q float64) (float64, error) {
	if !c.Usable() || math.IsNaN(q) {
		return math.NaN(), nil
	}
	i, err := c.dischargeSegment(q)
	if err != nil || i < 0 {
		return math.NaN(), err
	}
	switch c.Kind {
	case Polyline:
		p1, p2 := c.Pivots[i-1], c.Pivots[i]
		switch q {
		case p1.Discharge:
			return p1.Height, nil
		case p2.Discharge:
			return p2.Height, nil
		}
		return Interpolate(p1.Discharge, p1.Height, p2.Discharge, p2.Height, q), nil
	case PowerLaw:
		p := c.Pivots[i]
		return p.VarH + math.Pow(q/(1000*p.VarA), 1/p.VarB), nil
	default:
		return math.NaN(), ErrUnknownCurveKind
	}
}

// dischargeSegment returns the first segment i >= 1 whose pivot discharges
// bracket q, or -1 when none does.
func (c RatingCurve) dischargeSegment(q float64) (int, error) {
	prev, err := c.pivotDischarge(0)
	if err != nil {
		return -1, err
	}
	for i := 1; i < len(c.Pivots); i++ {
		cur, err := c.pivotDischarge(i)
		if err != nil {
			return -1, err
		}
		if q >= math.Min(prev, cur) && q <= math.Max(prev, cur) {
			return i, nil
		}
		prev = cur
	}
	return -1, nil
}

// Axis selects the pivot coordinate used by PivotsBetween.
type Axis int

const (
	AxisHeight Axis = iota
	AxisDischarge
)

// PivotsBetween returns, in ascending height order, the pivots whose
// coordinate on axis lies in [lo, hi]. A nil bound is open. The Discharge
// field of returned power-law pivots is filled with the evaluated discharge.
func (c RatingCurve) PivotsBetween(axis Axis, lo, hi *float64) ([]Pivot, error) {
	var out []Pivot
	for i, p := range c.Pivots {
		if c.Kind == PowerLaw {
			q, err := c.pivotDischarge(i)
			if err != nil {
				return nil, err
			}
			p.Discharge = q
		}
		v := p.Height
		if axis == AxisDischarge {
			v = p.Discharge
		}
		if lo != nil && v < *lo {
			continue
		}
		if hi != nil && v > *hi {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// bracketQualification returns the worst qualification of the pivots
// bracketing height h, or of the single pivot h matches exactly.
func (c RatingCurve) bracketQualification(h float64) int {
	i := c.segment(h)
	p1, p2 := c.Pivots[i-1], c.Pivots[i]
	switch h {
	case p1.Height:
		return p1.Qualification
	case p2.Height:
		return p2.Qualification
	}
	return min(p1.Qualification, p2.Qualification)
}

// outsideSoftBounds reports whether h is outside [LowerLimit, UpperLimit].
func (c RatingCurve) outsideSoftBounds(h float64) bool {
	if c.LowerLimit != nil && h < *c.LowerLimit {
		return true
	}
	return c.UpperLimit != nil && h > *c.UpperLimit
}
