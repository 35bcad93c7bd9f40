package domain

import "errors"

var (
	// ErrInvalidCoordinate is returned for non-finite or out-of-range coordinates.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInsufficientData is returned when the boundary has fewer than 3 distinct vertices.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidCanopyArea is returned for a canopy area that is not a positive finite number.
	ErrInvalidCanopyArea = errors.New("invalid canopy area")

	// ErrInvalidOrchardID is returned for orchard identifiers that are not positive.
	ErrInvalidOrchardID = errors.New("invalid orchard id")

	// ErrOrchardNotFound is returned when the provider has no survey for an orchard.
	ErrOrchardNotFound = errors.New("orchard not found")

	// ErrMalformedSurvey is returned when survey data cannot be parsed.
	ErrMalformedSurvey = errors.New("malformed survey")

	// ErrUpstream is returned when the survey provider fails.
	ErrUpstream = errors.New("upstream error")

	// ErrPlotNotFound is returned when no plot was rendered for an orchard.
	ErrPlotNotFound = errors.New("plot not found")
)
