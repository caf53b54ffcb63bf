// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package opencage

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
	cityExpected   = "Quartier 205, Friedrichstrasse 67, 10117 Berlin, Germany"
	cityFile       = "../../../../testdata/opencage_berlin.json"
	multipleFile   = "../../../../testdata/opencage_multiple.json"
	emptyFile      = "../../../../testdata/opencage_empty.json"
	invalidKeyFile = "../../../../testdata/opencage_invalidkey.json"
	testHitTTL     = 1 * time.Second
	testMissTTL    = 1 * time.Second

	villageExpected = "Marshfield"
	villageFile     = "../../../../testdata/opencage_marshfield.json"

	townExpected = "Otley"
	townFile     = "../../../../testdata/opencage_otley.json"
)

var (
	cityCoords    = geobus.Coordinate{Lat: 52.5129, Lon: 13.3910}
	villageCoords = geobus.Coordinate{Lat: 51.46292, Lon: -2.31850}
	townCoords    = geobus.Coordinate{Lat: 53.90712, Lon: -1.69404}
)

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

func TestOpenCage_Reverse(t *testing.T) {
	t.Run("reverse geocoding succeeds", func(t *testing.T) {
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
		if len(addrs) != 1 {
			t.Fatalf("expected exactly one address, got %d", len(addrs))
		}
		addr := addrs[0]
		if !strings.EqualFold(addr.DisplayName, cityExpected) {
			t.Errorf("expected address to be %q, got %q", cityExpected, addr.DisplayName)
		}
		if addr.HouseNumber.Value() != "67" || addr.Street.Value() != "Friedrichstrasse" {
			t.Errorf("unexpected street line %q %q", addr.HouseNumber.Value(), addr.Street.Value())
		}
		if addr.Locality.Value() != "Berlin" || addr.PostalCode.Value() != "10117" {
			t.Errorf("unexpected locality line %q %q", addr.Locality.Value(), addr.PostalCode.Value())
		}
		if !strings.Contains(query, "key=test-key") {
			t.Errorf("expected query to carry the API key, got %s", query)
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
		if len(addrs) != 1 || !addrs[0].CacheHit {
			t.Error("expected cache hit")
		}
	})
	t.Run("reverse geocoding with town set should return the correct locality", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.FileResponder(t, townFile, 200))
		addrs, err := coder.Reverse(t.Context(), townCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(addrs) != 1 {
			t.Fatalf("expected exactly one address, got %d", len(addrs))
		}
		if !strings.EqualFold(addrs[0].Locality.Value(), townExpected) {
			t.Errorf("expected locality to be %q, got %q", townExpected, addrs[0].Locality.Value())
		}
	})
	t.Run("reverse geocoding with village set should return the correct locality", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.FileResponder(t, villageFile, 200))
		addrs, err := coder.Reverse(t.Context(), villageCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(addrs) != 1 {
			t.Fatalf("expected exactly one address, got %d", len(addrs))
		}
		if !strings.EqualFold(addrs[0].Locality.Value(), villageExpected) {
			t.Errorf("expected locality to be %q, got %q", villageExpected, addrs[0].Locality.Value())
		}
		if addrs[0].HouseNumber.IsSet() {
			t.Error("expected house number to be unset")
		}
	})
	t.Run("all results are returned in API order", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.FileResponder(t, multipleFile, 200))
		addrs, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(addrs) != 2 {
			t.Fatalf("expected two addresses, got %d", len(addrs))
		}
		if addrs[0].DisplayName != cityExpected {
			t.Errorf("expected first address to be %q, got %q", cityExpected, addrs[0].DisplayName)
		}
		if addrs[1].DisplayName != "Berlin, Germany" {
			t.Errorf("expected second address to be %q, got %q", "Berlin, Germany", addrs[1].DisplayName)
		}
	})
	t.Run("no results yield no candidates", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.FileResponder(t, emptyFile, 200))
		addrs, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(addrs) != 0 {
			t.Errorf("expected no candidates, got %d", len(addrs))
		}
	})
	t.Run("API error status fails", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.FileResponder(t, invalidKeyFile, 401))
		_, err := coder.Reverse(t.Context(), cityCoords)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "invalid API key") {
			t.Errorf("expected error to contain the API message, got %q", err)
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

func TestOpenCage_Reverse_integration(t *testing.T) {
	testhelper.PerformIntegrationTests(t)
	apikey := os.Getenv("OPENCAGE_APIKEY")
	if apikey == "" {
		t.Skip("no opencage API key set, skipping tests")
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
