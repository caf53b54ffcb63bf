// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/http"
)

const (
	apiEndpoint   = "https://geoapi.info/api/geo"
	lookupTimeout = time.Second * 5
	name          = "geoapi"
)

// ErrNoHTTPClient is returned when the provider is created without a HTTP client.
var ErrNoHTTPClient = errors.New("http client is required")

// GeolocationGeoAPIProvider estimates the position from the public IP address. The accuracy
// is derived from the most specific administrative unit the API resolved.
type GeolocationGeoAPIProvider struct {
	name     string
	http     *http.Client
	period   time.Duration
	now      func() time.Time
	locateFn func(ctx context.Context) (geobus.Coordinate, error)
}

type APIResult struct {
	IP       string `json:"ip"`
	Location struct {
		CountryCode string `json:"country,omitempty"`
		Country     string `json:"countryName,omitempty"`
		Region      string `json:"region,omitempty"`
		City        string `json:"city,omitempty"`
		ZipCode     string `json:"postalCode,omitempty"`
		TimeZone    string `json:"timezone"`
		Coordinates struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

func NewGeolocationGeoAPIProvider(client *http.Client) (*GeolocationGeoAPIProvider, error) {
	if client == nil {
		return nil, ErrNoHTTPClient
	}
	provider := &GeolocationGeoAPIProvider{
		name:   name,
		http:   client,
		period: time.Minute * 10,
		now:    time.Now,
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *GeolocationGeoAPIProvider) Name() string {
	return p.name
}

// LookupStream emits the IP based position right away and refreshes it once per period.
// Every lookup produces a fresh fix, so a consumer with a staleness window keeps seeing it.
func (p *GeolocationGeoAPIProvider) LookupStream(ctx context.Context, _ float64) <-chan geobus.Update {
	out := make(chan geobus.Update)
	go func() {
		defer close(out)
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
				}
			}
			firstRun = false

			var update geobus.Update
			coord, err := p.locateFn(ctx)
			if err != nil {
				update.Err = fmt.Errorf("%w: %w", geobus.ErrLocationUnknown, err)
			} else {
				update.Fixes = []geobus.Fix{p.createFix(coord)}
			}

			select {
			case <-ctx.Done():
				return
			case out <- update:
			}
		}
	}()
	return out
}

func (p *GeolocationGeoAPIProvider) createFix(coord geobus.Coordinate) geobus.Fix {
	return geobus.Fix{
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		At:             p.now(),
		Source:         p.name,
	}
}

func (p *GeolocationGeoAPIProvider) locate(ctx context.Context) (geobus.Coordinate, error) {
	result := new(APIResult)
	if _, err := p.http.GetWithTimeout(ctx, apiEndpoint, result, nil, nil, lookupTimeout); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	acc := float64(geobus.AccuracyUnknown)
	switch {
	case result.Location.ZipCode != "":
		acc = geobus.AccuracyZip
	case result.Location.City != "":
		acc = geobus.AccuracyCity
	case result.Location.Region != "":
		acc = geobus.AccuracyRegion
	case result.Location.CountryCode != "":
		acc = geobus.AccuracyCountry
	}

	lat, err := strconv.ParseFloat(result.Location.Coordinates.Latitude, 64)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to parse latitude from API response: %w", err)
	}
	lon, err := strconv.ParseFloat(result.Location.Coordinates.Longitude, 64)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to parse longitude from API response: %w", err)
	}

	return geobus.Coordinate{
		Lat: geobus.Truncate(lat, geobus.TruncPrecision),
		Lon: geobus.Truncate(lon, geobus.TruncPrecision),
		Acc: acc,
	}, nil
}
