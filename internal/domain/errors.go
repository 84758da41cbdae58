package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongQuantity is returned when a series is fed to the conversion
	// direction that does not accept its quantity.
	ErrWrongQuantity = errors.New("wrong series quantity")

	// ErrPowerLawDomain is returned when a power-law segment is evaluated
	// below its varh anchor.
	ErrPowerLawDomain = errors.New("height below power-law anchor")

	// ErrUnorderedObservations is returned when a volume is asked for a
	// pair whose second sample precedes the first.
	ErrUnorderedObservations = errors.New("observations out of time order")

	ErrTooFewPivots     = errors.New("rating curve needs at least two pivots")
	ErrDuplicatePivot   = errors.New("duplicate pivot height")
	ErrUnknownCurveKind = errors.New("unknown rating curve kind")
)

func wrongQuantity(want, got Quantity) error {
	return fmt.Errorf("%w: want %q, got %q", ErrWrongQuantity, want, got)
}

var (
	ErrMissingSeries    = errors.New("request has no series")
	ErrUnknownOperation = errors.New("unknown operation")
)
