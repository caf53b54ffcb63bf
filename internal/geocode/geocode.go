// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geocode turns coordinates into postal addresses.
package geocode

import (
	"context"

	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/vartype"
)

// Address is a single reverse geocoding candidate. The postal components are optional and
// stay unset when the provider did not report them.
type Address struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
	Country     string
	HouseNumber vartype.VarString
	Street      vartype.VarString
	Locality    vartype.VarString
	AdminArea   vartype.VarString
	PostalCode  vartype.VarString
	CacheHit    bool
}

// Geocoder resolves a coordinate into address candidates. Providers return the candidates in
// their own order and an empty list when nothing was found.
type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coords geobus.Coordinate) ([]Address, error)
}
