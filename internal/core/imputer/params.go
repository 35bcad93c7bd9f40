package imputer

import (
	"errors"
	"fmt"
)

// Params holds the multipliers of the admission rules, all relative to a
// tree radius.
type Params struct {
	// NeighborFactor times the maximum radius bounds the distance between
	// the two trees of a candidate pair.
	NeighborFactor float64
	// SeparationFactor times the maximum radius is the minimum distance
	// from a candidate to any existing tree or accepted candidate.
	SeparationFactor float64
	// InsetFactor times the minimum radius is the safe zone erosion.
	InsetFactor float64
}

// DefaultParams returns the multipliers the imputer was calibrated with.
func DefaultParams() Params {
	return Params{NeighborFactor: 15, SeparationFactor: 2, InsetFactor: 2}
}

// Validate checks that every factor is usable.
func (p Params) Validate() error {
	var errs []error
	if !(p.NeighborFactor > 0) {
		errs = append(errs, fmt.Errorf("neighbor factor must be positive, got %v", p.NeighborFactor))
	}
	if !(p.SeparationFactor >= 0) {
		errs = append(errs, fmt.Errorf("separation factor must not be negative, got %v", p.SeparationFactor))
	}
	if !(p.InsetFactor >= 0) {
		errs = append(errs, fmt.Errorf("inset factor must not be negative, got %v", p.InsetFactor))
	}
	return errors.Join(errs...)
}
