// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquisition

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/geocode"
	"github.com/wneessen/mylocation/internal/vartype"
)

func TestDerive(t *testing.T) {
	fix := &geobus.Fix{Lat: 52.51290001, Lon: 13.391, AccuracyMeters: 8, At: time.Now()}
	addr := &geocode.Address{
		Street:     vartype.NewVariable("Friedrichstraße"),
		Locality:   vartype.NewVariable("Berlin"),
		PostalCode: vartype.NewVariable("10117"),
	}
	deniedErr := fmt.Errorf("geolocation_file: %w", geobus.ErrDenied)
	fatalErr := errors.New("device vanished")

	tests := []struct {
		name        string
		session     Session
		state       State
		enabled     bool
		wantMode    Mode
		wantStatus  string
		wantAddress string
		wantLabel   string
	}{
		{"idle without fix", Session{}, StateIdle, true, ModeNoFix, TextTapToStart, "", LabelGetLocation},
		{"authorizing without fix", Session{}, StateAuthorizing, true, ModeNoFix, TextTapToStart, "",
			LabelGetLocation},
		{"streaming without fix", Session{}, StateStreaming, true, ModeSearching, TextSearching, "", LabelStop},
		{"location error", Session{LastLocationError: fatalErr}, StateIdle, true, ModeError,
			TextLocationError, "", LabelGetLocation},
		{"permission denied", Session{LastLocationError: deniedErr}, StateIdle, true, ModeError,
			TextServicesDisabled, "", LabelGetLocation},
		{"services disabled", Session{}, StateIdle, false, ModeError, TextServicesDisabled, "",
			LabelGetLocation},
		{"services disabled wins over searching", Session{}, StateStreaming, false, ModeError,
			TextServicesDisabled, "", LabelStop},
		{"fix with address", Session{BestFix: fix, BestAddress: addr}, StateIdle, true, ModeHasFix, "",
			"Friedrichstraße\nBerlin 10117", LabelGetLocation},
		{"fix with lookup in flight", Session{BestFix: fix, GeocodeInFlight: true}, StateStreaming, true,
			ModeHasFix, "", TextSearchingAddress, LabelStop},
		{"fix with geocoding error", Session{BestFix: fix, LastGeocodeError: fatalErr}, StateIdle, true,
			ModeHasFix, "", TextAddressError, LabelGetLocation},
		{"fix without address", Session{BestFix: fix}, StateIdle, true, ModeHasFix, "", TextNoAddress,
			LabelGetLocation},
		{"address wins over lookup in flight", Session{BestFix: fix, BestAddress: addr, GeocodeInFlight: true},
			StateIdle, true, ModeHasFix, "", "Friedrichstraße\nBerlin 10117", LabelGetLocation},
		{"fix wins over disabled services", Session{BestFix: fix}, StateIdle, false, ModeHasFix, "",
			TextNoAddress, LabelGetLocation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ds := Derive(tc.session, tc.state, tc.enabled)
			if ds.Mode != tc.wantMode {
				t.Errorf("expected mode %q, got %q", tc.wantMode, ds.Mode)
			}
			if ds.StatusText != tc.wantStatus {
				t.Errorf("expected status text %q, got %q", tc.wantStatus, ds.StatusText)
			}
			if ds.AddressText != tc.wantAddress {
				t.Errorf("expected address text %q, got %q", tc.wantAddress, ds.AddressText)
			}
			if ds.ControlLabel != tc.wantLabel {
				t.Errorf("expected control label %q, got %q", tc.wantLabel, ds.ControlLabel)
			}
			if ds.CanTag != (tc.wantMode == ModeHasFix) {
				t.Errorf("expected tagging to be possible only with a fix, got %t", ds.CanTag)
			}
		})
	}
	t.Run("coordinates are formatted to eight decimal places", func(t *testing.T) {
		ds := Derive(Session{BestFix: fix}, StateIdle, true)
		if ds.LatitudeText != "52.51290001" {
			t.Errorf("expected latitude text %q, got %q", "52.51290001", ds.LatitudeText)
		}
		if ds.LongitudeText != "13.39100000" {
			t.Errorf("expected longitude text %q, got %q", "13.39100000", ds.LongitudeText)
		}
		if ds.CoordinatesText != "52.51290001, 13.39100000" {
			t.Errorf("unexpected coordinates text %q", ds.CoordinatesText)
		}
	})
	t.Run("no fix leaves coordinates and address empty", func(t *testing.T) {
		ds := Derive(Session{BestAddress: addr}, StateIdle, true)
		if ds.CoordinatesText != "" || ds.AddressText != "" || ds.Fix != nil || ds.Address != nil {
			t.Errorf("expected empty coordinates and address, got %+v", ds)
		}
	})
	t.Run("derived state does not alias the session", func(t *testing.T) {
		s := Session{BestFix: &geobus.Fix{Lat: 1}, BestAddress: &geocode.Address{DisplayName: "a"}}
		ds := Derive(s, StateIdle, true)
		s.BestFix.Lat = 2
		s.BestAddress.DisplayName = "b"
		if ds.Fix.Lat != 1 || ds.Address.DisplayName != "a" {
			t.Error("expected display state to hold copies")
		}
	})
}

func TestSession_Reset(t *testing.T) {
	t.Run("reset clears results but keeps the lookup in flight", func(t *testing.T) {
		s := NewSession()
		id := s.ID
		s.BestFix = &geobus.Fix{}
		s.BestAddress = &geocode.Address{}
		s.LastLocationError = errors.New("location")
		s.LastGeocodeError = errors.New("geocode")
		s.GeocodeInFlight = true
		s.Reset()
		if s.ID == id {
			t.Error("expected a new session ID")
		}
		if s.BestFix != nil || s.BestAddress != nil || s.LastLocationError != nil || s.LastGeocodeError != nil {
			t.Errorf("expected session results to be cleared, got %+v", s)
		}
		if !s.GeocodeInFlight {
			t.Error("expected lookup in flight to survive the reset")
		}
	})
}
