// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package opencage

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
	APIEndpoint = "https://api.opencagedata.com/geocode/v1/json"
	APITimeout  = time.Second * 10
	name        = "opencage"
)

type OpenCage struct {
	apikey   string
	http     *http.Client
	lang     language.Tag
	endpoint string
}

type Response struct {
	Results      []Result `json:"results"`
	Status       Status   `json:"status"`
	TotalResults int      `json:"total_results"`
}

type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Result struct {
	Components  Components `json:"components"`
	DisplayName string     `json:"formatted"`
	Geometry    Geometry   `json:"geometry"`
}

type Components struct {
	NomalizedCity  string `json:"_normalized_city"`
	City           string `json:"city"`
	CityDistrict   string `json:"city_district"`
	Continent      string `json:"continent"`
	Country        string `json:"country"`
	CountryCode    string `json:"country_code"`
	HouseNumber    string `json:"house_number"`
	PoliticalUnion string `json:"political_union"`
	Municipality   string `json:"municipality"`
	Postcode       string `json:"postcode"`
	Road           string `json:"road"`
	State          string `json:"state"`
	StateCode      string `json:"state_code"`
	Suburb         string `json:"suburb"`
	Town           string `json:"town"`
	Village        string `json:"village"`
}

type Geometry struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

func New(client *http.Client, lang language.Tag, apikey string) *OpenCage {
	return &OpenCage{
		apikey:   apikey,
		lang:     lang,
		http:     client,
		endpoint: APIEndpoint,
	}
}

func (o *OpenCage) Name() string {
	return name
}

// Reverse returns every result OpenCage reports for coords, in API order.
func (o *OpenCage) Reverse(ctx context.Context, coords geobus.Coordinate) ([]geocode.Address, error) {
	var response Response

	query := url.Values{}
	query.Set("key", o.apikey)
	query.Set("q", fmt.Sprintf("%f,%f", coords.Lat, coords.Lon))
	query.Set("no_annotations", "1")
	query.Set("no_record", "1")
	query.Set("language", o.lang.String())

	code, err := o.http.GetWithTimeout(ctx, o.endpoint, &response, query, nil, APITimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve address details from OpenCage API: %w", err)
	}
	if code != 200 || (response.Status.Code != 0 && response.Status.Code != 200) {
		return nil, fmt.Errorf("OpenCage API returned status %d: %s", code, response.Status.Message)
	}

	addresses := make([]geocode.Address, 0, len(response.Results))
	for _, result := range response.Results {
		addresses = append(addresses, toAddress(result))
	}
	return addresses, nil
}

func toAddress(result Result) geocode.Address {
	comp := result.Components
	address := geocode.Address{
		Latitude:    result.Geometry.Lat,
		Longitude:   result.Geometry.Lon,
		DisplayName: result.DisplayName,
		Country:     comp.Country,
		HouseNumber: vartype.Optional(comp.HouseNumber),
		Street:      vartype.Optional(comp.Road),
		AdminArea:   vartype.Optional(comp.State),
		PostalCode:  vartype.Optional(comp.Postcode),
	}
	for _, locality := range []string{comp.NomalizedCity, comp.City, comp.Town, comp.Village} {
		if locality != "" {
			address.Locality.Set(locality)
			break
		}
	}
	return address
}
