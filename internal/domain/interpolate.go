package domain

import (
	"math"
	"time"
)

// Interpolate returns the value at x on the line through (x1, y1) and (x2, y2).
// When x1 == x2 it returns y1.
func Interpolate(x1, y1, x2, y2, x float64) float64 {
	if x1 == x2 {
		return y1
	}
	return y1 + (y2-y1)*(x-x1)/(x2-x1)
}

// InterpolateTime returns the value at t of a quantity varying linearly from
// v1 at t1 to v2 at t2. NaN endpoints yield NaN.
func InterpolateTime(t1 time.Time, v1 float64, t2 time.Time, v2 float64, t time.Time) float64 {
	if math.IsNaN(v1) || math.IsNaN(v2) {
		return math.NaN()
	}
	span := t2.Sub(t1).Seconds()
	if span == 0 {
		return v1
	}
	return v1 + (v2-v1)*t.Sub(t1).Seconds()/span
}

// InverseTime returns the instant at which a quantity varying linearly from
// v1 at t1 to v2 at t2 crosses v, rounded to the second. ok is false when the
// quantity is constant or v lies outside [min(v1,v2), max(v1,v2)].
func InverseTime(t1 time.Time, v1 float64, t2 time.Time, v2 float64, v float64) (t time.Time, ok bool) {
	if v1 == v2 || math.IsNaN(v1) || math.IsNaN(v2) {
		return time.Time{}, false
	}
	if v < math.Min(v1, v2) || v > math.Max(v1, v2) {
		return time.Time{}, false
	}
	frac := (v - v1) / (v2 - v1)
	offset := time.Duration(frac * float64(t2.Sub(t1)))
	return t1.Add(offset).Round(time.Second), true
}

// elapsed returns the number of seconds between t1 and t2.
func elapsed(t1, t2 time.Time) float64 {
	return t2.Sub(t1).Seconds()
}
