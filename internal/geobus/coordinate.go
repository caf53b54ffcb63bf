// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	DistanceThreshold = 10.0 // meters
	AccuracyThreshold = 1.0  // meters
)

// Coordinate represents a geographic coordinate.
type Coordinate struct {
	Lat float64
	Lon float64
	Acc float64
}

// Point returns the coordinate as an orb point. Note that orb uses [lon, lat] order.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// DistanceTo returns the great-circle distance to other in meters.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	return geo.DistanceHaversine(c.Point(), other.Point())
}

// PosHasSignificantChange checks if the position differs significantly from another. A
// noticeably better accuracy counts as a change even if the position stays the same.
func (c Coordinate) PosHasSignificantChange(other Coordinate) bool {
	if c.Acc < other.Acc-AccuracyThreshold {
		return true
	}
	return c.DistanceTo(other) > DistanceThreshold
}

// Valid checks if the coordinate is valid according to the EPSG logic
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
