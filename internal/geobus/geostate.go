// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

// GeolocationState tracks the last coordinate a provider emitted so that unchanged readings
// are not sent again.
type GeolocationState struct {
	last     Coordinate
	haveLast bool
}

// HasChanged reports whether c differs significantly from the last emitted coordinate.
func (s *GeolocationState) HasChanged(c Coordinate) bool {
	if !s.haveLast {
		return true
	}
	return c.PosHasSignificantChange(s.last)
}

// Update stores c as the last emitted coordinate.
func (s *GeolocationState) Update(c Coordinate) {
	s.last = c
	s.haveLast = true
}
