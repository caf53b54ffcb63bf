// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nmea

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/jacobsa/go-serial/serial"

	"github.com/wneessen/mylocation/internal/geobus"
)

const (
	DefaultPort     = "/dev/ttyUSB0"
	DefaultBaudRate = 9600
	name            = "nmea"

	// uere is the user equivalent range error in meters that HDOP is scaled with.
	uere = 5.0
	// fallbackAccuracy is used for valid RMC fixes before any GGA sentence reported a HDOP.
	fallbackAccuracy = 50.0
)

var errNoFix = fmt.Errorf("receiver has no valid fix yet: %w", geobus.ErrLocationUnknown)

// GeolocationNMEAProvider reads NMEA 0183 sentences from a GPS receiver on a serial port.
// RMC sentences carry position and time, GGA sentences supply HDOP and altitude.
type GeolocationNMEAProvider struct {
	name   string
	port   string
	baud   uint
	now    func() time.Time
	openFn func() (io.ReadCloser, error)
}

// receiverState keeps the values GGA sentences contribute to the next RMC fix.
type receiverState struct {
	hdop     float64
	altitude float64
}

// NewGeolocationNMEAProvider returns a provider reading from the given serial port.
func NewGeolocationNMEAProvider(port string, baud uint) *GeolocationNMEAProvider {
	if port == "" {
		port = DefaultPort
	}
	if baud == 0 {
		baud = DefaultBaudRate
	}
	provider := &GeolocationNMEAProvider{
		name: name,
		port: port,
		baud: baud,
		now:  time.Now,
	}
	provider.openFn = provider.open
	return provider
}

func (p *GeolocationNMEAProvider) Name() string {
	return p.name
}

// LookupStream opens the serial port and emits a fix for every valid RMC sentence. The stream
// ends on read errors so that the consumer can reopen the port.
func (p *GeolocationNMEAProvider) LookupStream(ctx context.Context, _ float64) <-chan geobus.Update {
	out := make(chan geobus.Update)
	go func() {
		defer close(out)

		port, err := p.openFn()
		if err != nil {
			send(ctx, out, geobus.Update{Err: err})
			return
		}
		stop := context.AfterFunc(ctx, func() { _ = port.Close() })
		defer func() {
			if stop() {
				_ = port.Close()
			}
		}()

		state := receiverState{}
		reader := bufio.NewReader(port)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if ctx.Err() == nil {
					send(ctx, out, geobus.Update{
						Err: fmt.Errorf("failed to read from %s: %w: %w", p.port, geobus.ErrLocationUnknown, err),
					})
				}
				return
			}

			update, ok := p.handleSentence(&state, line)
			if !ok {
				continue
			}
			if !send(ctx, out, update) {
				return
			}
		}
	}()
	return out
}

// handleSentence parses a single NMEA line. It returns an update for RMC sentences only.
func (p *GeolocationNMEAProvider) handleSentence(state *receiverState, line string) (geobus.Update, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return geobus.Update{}, false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		// Receivers emit partial sentences while they start up
		return geobus.Update{}, false
	}

	switch s := sentence.(type) {
	case nmea.GGA:
		if s.FixQuality == nmea.Invalid {
			state.hdop = 0
			return geobus.Update{}, false
		}
		state.hdop = s.HDOP
		state.altitude = s.Altitude
		return geobus.Update{}, false
	case nmea.RMC:
		if s.Validity != nmea.ValidRMC {
			return geobus.Update{Err: errNoFix}, true
		}
		return geobus.Update{Fixes: []geobus.Fix{p.createFix(state, s)}}, true
	default:
		return geobus.Update{}, false
	}
}

func (p *GeolocationNMEAProvider) createFix(state *receiverState, rmc nmea.RMC) geobus.Fix {
	acc := fallbackAccuracy
	if state.hdop > 0 {
		acc = state.hdop * uere
	}
	return geobus.Fix{
		Lat:            rmc.Latitude,
		Lon:            rmc.Longitude,
		Alt:            state.altitude,
		AccuracyMeters: acc,
		At:             p.fixTime(rmc.Date, rmc.Time),
		Source:         p.name,
	}
}

// fixTime combines the RMC date and time into a UTC timestamp. Receivers that have not
// acquired the date yet report the reception time instead.
func (p *GeolocationNMEAProvider) fixTime(d nmea.Date, t nmea.Time) time.Time {
	if !d.Valid || !t.Valid {
		return p.now()
	}
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD, t.Hour, t.Minute, t.Second,
		t.Millisecond*int(time.Millisecond), time.UTC)
}

func (p *GeolocationNMEAProvider) open() (io.ReadCloser, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        p.port,
		BaudRate:        p.baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	switch {
	case errors.Is(err, os.ErrPermission):
		return nil, fmt.Errorf("failed to open serial port %s: %w: %w", p.port, geobus.ErrDenied, err)
	case err != nil:
		return nil, fmt.Errorf("failed to open serial port %s: %w: %w", p.port, geobus.ErrLocationUnknown, err)
	}
	return port, nil
}

func send(ctx context.Context, out chan<- geobus.Update, u geobus.Update) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- u:
		return true
	}
}
