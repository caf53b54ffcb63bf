// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/mylocation/internal/geobus"
)

const (
	name = "geolocation_file"

	// DefaultAccuracy is used for file entries that carry no accuracy column.
	DefaultAccuracy = geobus.AccuracyZip
)

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// GeolocationFileProvider reads a fixed position from a file and emits it via a stream.
// The file contains lines of the form "lat,lon" or "lat,lon,accuracy"; lines starting
// with "#" are comments. The file is re-read periodically so edits are picked up.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	now      func() time.Time
	locateFn func() (geobus.Coordinate, error)
}

// NewGeolocationFileProvider initializes a GeolocationFileProvider with a file path and the
// default re-read interval.
func NewGeolocationFileProvider(path string) *GeolocationFileProvider {
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: time.Second * 2,
		now:    time.Now,
	}
	provider.locateFn = provider.readFile
	return provider
}

// Name returns the name of the GeolocationFileProvider instance.
func (p *GeolocationFileProvider) Name() string {
	return p.name
}

// AuthorizationStatus reports denied if the file exists but may not be read.
func (p *GeolocationFileProvider) AuthorizationStatus() geobus.Authorization {
	fh, err := os.Open(p.path)
	if errors.Is(err, os.ErrPermission) {
		return geobus.AuthorizationDenied
	}
	if err == nil {
		_ = fh.Close()
	}
	return geobus.AuthorizationGranted
}

// RequestAuthorization is a no-op; file permissions can only be changed by the user.
func (p *GeolocationFileProvider) RequestAuthorization(context.Context) error {
	return nil
}

// LookupStream streams the position from the file, emitting an update whenever the content
// changes. A missing file is a transient condition, a permission error is not.
func (p *GeolocationFileProvider) LookupStream(ctx context.Context, _ float64) <-chan geobus.Update {
	out := make(chan geobus.Update)
	go func() {
		defer close(out)
		state := geobus.GeolocationState{}
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
			coord, err := p.locateFn()
			switch {
			case err != nil:
				update.Err = err
			case !state.HasChanged(coord):
				continue
			default:
				state.Update(coord)
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

// createFix composes a fix from the file coordinate, stamped with the time it was read.
func (p *GeolocationFileProvider) createFix(coord geobus.Coordinate) geobus.Fix {
	return geobus.Fix{
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		At:             p.now(),
		Source:         p.name,
	}
}

// readFile reads the first valid coordinate from the file at the configured path.
func (p *GeolocationFileProvider) readFile() (geobus.Coordinate, error) {
	data, err := os.ReadFile(p.path)
	switch {
	case errors.Is(err, os.ErrPermission):
		return geobus.Coordinate{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, geobus.ErrDenied)
	case err != nil:
		return geobus.Coordinate{}, fmt.Errorf("failed to read geolocation file %q: %w: %w", p.path,
			geobus.ErrLocationUnknown, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		coord, ok := parseLine(line)
		if ok {
			return coord, nil
		}
	}
	return geobus.Coordinate{}, fmt.Errorf("%w: %w", geobus.ErrLocationUnknown, ErrNoCoordinates)
}

func parseLine(line string) (geobus.Coordinate, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return geobus.Coordinate{}, false
	}
	fields := strings.Split(line, ",")
	if len(fields) != 2 && len(fields) != 3 {
		return geobus.Coordinate{}, false
	}
	values := make([]float64, len(fields))
	for i, field := range fields {
		val, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return geobus.Coordinate{}, false
		}
		values[i] = val
	}
	coord := geobus.Coordinate{Lat: values[0], Lon: values[1], Acc: DefaultAccuracy}
	if len(values) == 3 {
		coord.Acc = values[2]
	}
	if !coord.Valid() {
		return geobus.Coordinate{}, false
	}
	return coord, true
}
