// Package geo supplies the position at which a batch is recorded.
package geo

import (
	"context"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
)

// PlaceholderAddress marks a location that could not be determined.
const PlaceholderAddress = "Location unavailable"

// Locator returns the current position, or nil when it is unknown.
type Locator interface {
	Locate(ctx context.Context) (*batch.Location, error)
}

// Static always reports the same configured location.
type Static struct {
	Location batch.Location
}

// Locate implements Locator.
func (s Static) Locate(context.Context) (*batch.Location, error) {
	loc := s.Location
	return &loc, nil
}

// None never knows where it is.
type None struct{}

// Locate implements Locator.
func (None) Locate(context.Context) (*batch.Location, error) { return nil, nil }

// Placeholder returns the clearly-marked stand-in for an unknown location.
func Placeholder() batch.Location {
	return batch.Location{Address: PlaceholderAddress}
}

// IsPlaceholder reports whether loc is the stand-in location.
func IsPlaceholder(loc batch.Location) bool {
	return loc.Latitude == 0 && loc.Longitude == 0 && loc.Address == PlaceholderAddress
}
