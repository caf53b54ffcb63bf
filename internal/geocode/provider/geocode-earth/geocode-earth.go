// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocodeearth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/geocode"
	"github.com/wneessen/mylocation/internal/http"
	"github.com/wneessen/mylocation/internal/vartype"
)

const (
	APIEndpoint = "https://api.geocode.earth/v1/reverse"
	APITimeout  = time.Second * 10
	name        = "geocode-earth"
)

type GeocodeEarth struct {
	apikey   string
	http     *http.Client
	lang     language.Tag
	endpoint string
}

type Response struct {
	Features []Feature `json:"features"`
	Type     string    `json:"type"`
}

type Feature struct {
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
	Type       string     `json:"type"`
}

// Geometry is a GeoJSON point in [lon, lat] order.
type Geometry struct {
	Coordinates []float64 `json:"coordinates"`
}

type Properties struct {
	DisplayName   string `json:"label"`
	Locality      string `json:"locality"`
	County        string `json:"county"`
	Continent     string `json:"continent"`
	Country       string `json:"country"`
	CountryCode   string `json:"country_code"`
	HouseNumber   string `json:"housenumber"`
	Neighbourhood string `json:"neighbourhood"`
	Postcode      string `json:"postalcode"`
	Street        string `json:"street"`
	Region        string `json:"region"`
	RegionCode    string `json:"region_a"`
}

func New(client *http.Client, lang language.Tag, apikey string) *GeocodeEarth {
	return &GeocodeEarth{
		apikey:   apikey,
		lang:     lang,
		http:     client,
		endpoint: APIEndpoint,
	}
}

func (g *GeocodeEarth) Name() string {
	return name
}

// Reverse returns all features geocode.earth reports around coords, in API order.
func (g *GeocodeEarth) Reverse(ctx context.Context, coords geobus.Coordinate) ([]geocode.Address, error) {
	var response Response

	query := url.Values{}
	query.Set("api_key", g.apikey)
	query.Set("point.lat", fmt.Sprintf("%f", coords.Lat))
	query.Set("point.lon", fmt.Sprintf("%f", coords.Lon))
	query.Set("lang", g.lang.String())

	code, err := g.http.GetWithTimeout(ctx, g.endpoint, &response, query, nil, APITimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve address details from geocode.earth API: %w", err)
	}
	if code != 200 {
		return nil, fmt.Errorf("received non-positive response code from geocode.earth API: %d", code)
	}

	addresses := make([]geocode.Address, 0, len(response.Features))
	for _, feature := range response.Features {
		addresses = append(addresses, toAddress(feature, coords))
	}
	return addresses, nil
}

func toAddress(feature Feature, coords geobus.Coordinate) geocode.Address {
	props := feature.Properties
	address := geocode.Address{
		Latitude:    coords.Lat,
		Longitude:   coords.Lon,
		DisplayName: props.DisplayName,
		Country:     props.Country,
		HouseNumber: vartype.Optional(props.HouseNumber),
		Street:      vartype.Optional(props.Street),
		Locality:    vartype.Optional(props.Locality),
		AdminArea:   vartype.Optional(props.Region),
		PostalCode:  vartype.Optional(props.Postcode),
	}
	if len(feature.Geometry.Coordinates) == 2 {
		address.Longitude = feature.Geometry.Coordinates[0]
		address.Latitude = feature.Geometry.Coordinates[1]
	}
	return address
}
