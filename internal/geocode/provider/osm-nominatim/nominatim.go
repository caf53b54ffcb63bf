// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/geocode"
	"github.com/wneessen/mylocation/internal/http"
	"github.com/wneessen/mylocation/internal/vartype"
)

const (
	APIReverseEndpoint = "https://nominatim.openstreetmap.org/reverse"
	APITimeout         = time.Second * 10
	name               = "osm-nominatim"
)

type Nominatim struct {
	http     *http.Client
	lang     language.Tag
	endpoint string
}

type ReverseResult struct {
	Error       string  `json:"error"`
	APILat      string  `json:"lat"`
	APILon      string  `json:"lon"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

type Address struct {
	HouseNumber  string `json:"house_number"`
	Road         string `json:"road"`
	Suburb       string `json:"suburb"`
	Municipality string `json:"municipality"`
	CityDistrict string `json:"city_district"`
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	State        string `json:"state"`
	ISO31662Lvl4 string `json:"ISO3166-2-lvl4"`
	Postcode     string `json:"postcode"`
	Country      string `json:"country"`
}

func New(client *http.Client, lang language.Tag) *Nominatim {
	return &Nominatim{
		lang:     lang,
		http:     client,
		endpoint: APIReverseEndpoint,
	}
}

func (n *Nominatim) Name() string {
	return name
}

// Reverse looks up the address at coords. Nominatim answers with at most one place; a
// coordinate it cannot geocode yields no candidates.
func (n *Nominatim) Reverse(ctx context.Context, coords geobus.Coordinate) ([]geocode.Address, error) {
	var result ReverseResult
	var err error

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("addressdetails", "1")
	query.Set("zoom", "18")
	query.Set("lat", fmt.Sprintf("%f", coords.Lat))
	query.Set("lon", fmt.Sprintf("%f", coords.Lon))
	query.Set("accept-language", n.lang.String())

	code, err := n.http.GetWithTimeout(ctx, n.endpoint, &result, query, nil, APITimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reverse address details from Nominatim API: %w", err)
	}
	if code != 200 {
		return nil, fmt.Errorf("nominatim API returned status %d", code)
	}
	if result.Error != "" {
		return nil, nil
	}

	// Fill the geocode.Address struct
	address := geocode.Address{
		DisplayName: result.DisplayName,
		Country:     result.Address.Country,
		HouseNumber: vartype.Optional(result.Address.HouseNumber),
		Street:      vartype.Optional(result.Address.Road),
		Locality:    vartype.Optional(result.Address.City),
		AdminArea:   vartype.Optional(result.Address.State),
		PostalCode:  vartype.Optional(result.Address.Postcode),
	}
	if result.Address.City == "" && result.Address.Town != "" {
		address.Locality.Set(result.Address.Town)
	}
	if result.Address.City == "" && result.Address.Town == "" && result.Address.Village != "" {
		address.Locality.Set(result.Address.Village)
	}
	address.Latitude, err = strconv.ParseFloat(result.APILat, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
	}
	address.Longitude, err = strconv.ParseFloat(result.APILon, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
	}

	return []geocode.Address{address}, nil
}
