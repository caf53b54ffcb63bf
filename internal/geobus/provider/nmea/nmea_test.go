// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nmea

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/wneessen/mylocation/internal/geobus"
)

const (
	sentenceGGA        = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	sentenceGGANoFix   = "$GPGGA,123521,4807.038,N,01131.000,E,0,00,0.0,545.4,M,46.9,M,,*4C"
	sentenceRMC        = "$GPRMC,123519.50,A,4807.038,N,01131.000,E,022.4,084.4,190326,003.1,W*41"
	sentenceRMCInvalid = "$GPRMC,123520,V,4807.038,N,01131.000,E,0.0,0.0,190326,003.1,W*7B"
	testLat            = 48.1173
	testLon            = 11.516666
)

func TestNewGeolocationNMEAProvider(t *testing.T) {
	t.Run("defaults are applied", func(t *testing.T) {
		provider := NewGeolocationNMEAProvider("", 0)
		if provider.port != DefaultPort {
			t.Errorf("expected port to be %s, got %s", DefaultPort, provider.port)
		}
		if provider.baud != DefaultBaudRate {
			t.Errorf("expected baud rate to be %d, got %d", DefaultBaudRate, provider.baud)
		}
	})
	t.Run("custom port is used", func(t *testing.T) {
		provider := NewGeolocationNMEAProvider("/dev/serial0", 4800)
		if provider.port != "/dev/serial0" || provider.baud != 4800 {
			t.Errorf("expected custom port settings, got %s@%d", provider.port, provider.baud)
		}
	})
}

func TestGeolocationNMEAProvider_Name(t *testing.T) {
	provider := NewGeolocationNMEAProvider("", 0)
	if !strings.EqualFold(provider.Name(), name) {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
}

func TestGeolocationNMEAProvider_handleSentence(t *testing.T) {
	t.Run("RMC after GGA uses the HDOP based accuracy", func(t *testing.T) {
		provider := NewGeolocationNMEAProvider("", 0)
		state := receiverState{}
		if _, ok := provider.handleSentence(&state, sentenceGGA); ok {
			t.Fatal("expected GGA sentence to produce no update")
		}
		update, ok := provider.handleSentence(&state, sentenceRMC+"\r\n")
		if !ok {
			t.Fatal("expected RMC sentence to produce an update")
		}
		fix, ok := update.Last()
		if !ok {
			t.Fatalf("expected a fix, got error %v", update.Err)
		}
		if math.Abs(fix.Lat-testLat) > 0.0001 {
			t.Errorf("expected latitude to be %f, got %f", testLat, fix.Lat)
		}
		if math.Abs(fix.Lon-testLon) > 0.0001 {
			t.Errorf("expected longitude to be %f, got %f", testLon, fix.Lon)
		}
		if math.Abs(fix.AccuracyMeters-4.5) > 0.0001 {
			t.Errorf("expected accuracy to be 4.5, got %f", fix.AccuracyMeters)
		}
		if fix.Alt != 545.4 {
			t.Errorf("expected altitude to be 545.4, got %f", fix.Alt)
		}
		want := time.Date(2026, time.March, 19, 12, 35, 19, 500*int(time.Millisecond), time.UTC)
		if !fix.At.Equal(want) {
			t.Errorf("expected fix time to be %s, got %s", want, fix.At)
		}
	})
	t.Run("RMC without GGA uses the fallback accuracy", func(t *testing.T) {
		provider := NewGeolocationNMEAProvider("", 0)
		update, ok := provider.handleSentence(&receiverState{}, sentenceRMC)
		if !ok {
			t.Fatal("expected RMC sentence to produce an update")
		}
		fix, _ := update.Last()
		if fix.AccuracyMeters != fallbackAccuracy {
			t.Errorf("expected accuracy to be %f, got %f", fallbackAccuracy, fix.AccuracyMeters)
		}
	})
	t.Run("GGA without fix resets the HDOP", func(t *testing.T) {
		provider := NewGeolocationNMEAProvider("", 0)
		state := receiverState{hdop: 1}
		provider.handleSentence(&state, sentenceGGANoFix)
		if state.hdop != 0 {
			t.Errorf("expected HDOP to be reset, got %f", state.hdop)
		}
	})
	t.Run("invalid RMC is a transient error", func(t *testing.T) {
		provider := NewGeolocationNMEAProvider("", 0)
		update, ok := provider.handleSentence(&receiverState{}, sentenceRMCInvalid)
		if !ok {
			t.Fatal("expected RMC sentence to produce an update")
		}
		if !errors.Is(update.Err, geobus.ErrLocationUnknown) {
			t.Errorf("expected transient error, got %v", update.Err)
		}
	})
	t.Run("garbage is ignored", func(t *testing.T) {
		provider := NewGeolocationNMEAProvider("", 0)
		for _, line := range []string{"", "garbage", "$GPRMC,broken*00"} {
			if _, ok := provider.handleSentence(&receiverState{}, line); ok {
				t.Errorf("expected %q to be ignored", line)
			}
		}
	})
}

func TestGeolocationNMEAProvider_fixTime(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	provider := NewGeolocationNMEAProvider("", 0)
	provider.now = func() time.Time { return now }
	if got := provider.fixTime(nmea.Date{}, nmea.Time{Valid: true}); !got.Equal(now) {
		t.Errorf("expected missing date to fall back to %s, got %s", now, got)
	}
}

func TestGeolocationNMEAProvider_LookupStream(t *testing.T) {
	t.Run("stream emits fixes and ends with the port", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := NewGeolocationNMEAProvider("", 0)
			provider.openFn = func() (io.ReadCloser, error) {
				data := strings.Join([]string{sentenceGGA, sentenceRMC, sentenceRMCInvalid}, "\r\n") + "\r\n"
				return io.NopCloser(strings.NewReader(data)), nil
			}

			out := provider.LookupStream(t.Context(), 10)
			var updates []geobus.Update
			for u := range out {
				updates = append(updates, u)
			}
			if len(updates) != 3 {
				t.Fatalf("expected 3 updates, got %d", len(updates))
			}
			if _, ok := updates[0].Last(); !ok {
				t.Errorf("expected first update to carry a fix, got %v", updates[0].Err)
			}
			if !errors.Is(updates[1].Err, geobus.ErrLocationUnknown) {
				t.Errorf("expected invalid RMC to be transient, got %v", updates[1].Err)
			}
			if !errors.Is(updates[2].Err, io.EOF) {
				t.Errorf("expected end of port to be reported, got %v", updates[2].Err)
			}
		})
	})
	t.Run("open failure is reported", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := NewGeolocationNMEAProvider("", 0)
			provider.openFn = func() (io.ReadCloser, error) {
				return nil, geobus.ErrDenied
			}
			u, ok := <-provider.LookupStream(t.Context(), 10)
			if !ok {
				t.Fatal("expected an update before the stream closes")
			}
			if !errors.Is(u.Err, geobus.ErrDenied) {
				t.Errorf("expected error to be %s, got %v", geobus.ErrDenied, u.Err)
			}
		})
	})
	t.Run("canceling the context closes the port", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			reader, writer := io.Pipe()
			provider := NewGeolocationNMEAProvider("", 0)
			provider.openFn = func() (io.ReadCloser, error) {
				return reader, nil
			}

			out := provider.LookupStream(ctx, 10)
			cancel()
			if _, ok := <-out; ok {
				t.Error("expected stream to be closed")
			}
			if _, err := writer.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
				t.Errorf("expected port to be closed, got %v", err)
			}
		})
	})
}
