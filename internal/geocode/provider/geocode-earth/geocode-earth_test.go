// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocodeearth

import (
	"errors"
	"log/slog"
	stdhttp "net/http"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/geocode"
	"github.com/wneessen/mylocation/internal/http"
	"github.com/wneessen/mylocation/internal/logger"
	"github.com/wneessen/mylocation/internal/testhelper"
)

const (
	cityExpected = "Friedrichstraße 67, Berlin, Germany"
	cityFile     = "../../../../testdata/geocodeearth_berlin.json"
	emptyFile    = "../../../../testdata/geocodeearth_empty.json"
	testHitTTL   = 1 * time.Second
	testMissTTL  = 1 * time.Second
)

var cityCoords = geobus.Coordinate{Lat: 52.5129, Lon: 13.3910}

func TestNew(t *testing.T) {
	t.Run("creating a new provider succeeds", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, nil)
		if coder == nil {
			t.Fatal("expected a non-nil geocoder")
		}
	})
	t.Run("provider name is correct", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, nil)
		if coder.Name() != name {
			t.Errorf("expected provider name to be %q, got %q", name, coder.Name())
		}
	})
}

func TestGeocodeEarth_Reverse(t *testing.T) {
	t.Run("reverse geocoding returns all features in API order", func(t *testing.T) {
		var query string
		respond := testhelper.FileResponder(t, cityFile, 200)
		coder := testCoderWithRoundtripFunc(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			query = req.URL.RawQuery
			return respond(req)
		})
		addrs, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(addrs) != 3 {
			t.Fatalf("expected three addresses, got %d", len(addrs))
		}
		first := addrs[0]
		if !strings.EqualFold(first.DisplayName, cityExpected) {
			t.Errorf("expected address to be %q, got %q", cityExpected, first.DisplayName)
		}
		if first.HouseNumber.Value() != "67" || first.Street.Value() != "Friedrichstraße" {
			t.Errorf("unexpected street line %q %q", first.HouseNumber.Value(), first.Street.Value())
		}
		if first.Locality.Value() != "Berlin" || first.PostalCode.Value() != "10117" {
			t.Errorf("unexpected locality line %q %q", first.Locality.Value(), first.PostalCode.Value())
		}
		last := addrs[2]
		if last.DisplayName != "Friedrichstadt, Berlin, Germany" {
			t.Errorf("expected last address to be the neighbourhood, got %q", last.DisplayName)
		}
		if last.Street.IsSet() || last.HouseNumber.IsSet() {
			t.Error("expected neighbourhood to have no street line")
		}
		if last.Latitude != 52.51 || last.Longitude != 13.39 {
			t.Errorf("expected feature geometry to be used, got %f,%f", last.Latitude, last.Longitude)
		}
		for _, want := range []string{"api_key=test-key", "point.lat=52.512900", "point.lon=13.391000"} {
			if !strings.Contains(query, want) {
				t.Errorf("expected query to contain %s, got %s", want, query)
			}
		}
	})
	t.Run("reverse cached geocoding succeeds", func(t *testing.T) {
		coder := geocode.NewCachedGeocoder(testCoderWithRoundtripFunc(t,
			testhelper.FileResponder(t, cityFile, 200)), testHitTTL, testMissTTL)
		if _, err := coder.Reverse(t.Context(), cityCoords); err != nil {
			t.Fatal(err)
		}
		addrs, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(addrs) != 3 || !addrs[0].CacheHit {
			t.Error("expected cache hit")
		}
	})
	t.Run("no features yield no candidates", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.FileResponder(t, emptyFile, 200))
		addrs, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(addrs) != 0 {
			t.Errorf("expected no candidates, got %d", len(addrs))
		}
	})
	t.Run("non-200 status fails", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.FileResponder(t, emptyFile, 403))
		if _, err := coder.Reverse(t.Context(), cityCoords); err == nil {
			t.Fatal("expected API request to fail")
		}
	})
	t.Run("reverse geocoding fails", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		})
		if _, err := coder.Reverse(t.Context(), cityCoords); err == nil {
			t.Fatal("expected API request to fail")
		}
	})
}

func TestGeocodeEarth_Reverse_integration(t *testing.T) {
	testhelper.PerformIntegrationTests(t)
	apikey := os.Getenv("GEOCODEEARTH_APIKEY")
	if apikey == "" {
		t.Skip("no geocode.earth API key set, skipping tests")
	}
	t.Run("reverse geocoding succeeds", func(t *testing.T) {
		coder := New(http.New(logger.New(slog.LevelDebug)), language.English, apikey)
		addrs, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(addrs) == 0 {
			t.Fatal("expected address to be found")
		}
	})
}

func testCoderWithRoundtripFunc(_ *testing.T, fn func(req *stdhttp.Request) (*stdhttp.Response, error)) geocode.Geocoder {
	testHttpClient := http.New(logger.New(slog.LevelDebug))
	if fn != nil {
		testHttpClient.Transport = testhelper.MockRoundTripper{Fn: fn}
	}
	return New(testHttpClient, language.English, "test-key")
}
