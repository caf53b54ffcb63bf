// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geobus carries position fixes from location providers to their consumer.
package geobus

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

const (
	AccuracyCountry = 300000
	AccuracyRegion  = 100000
	AccuracyCity    = 15000
	AccuracyZip     = 3000
	AccuracyUnknown = 1000000
	TruncPrecision  = 4
)

var (
	// ErrLocationUnknown signals that a provider is currently unable to determine a position.
	// It is transient: the provider keeps trying and the stream stays up.
	ErrLocationUnknown = errors.New("location currently unknown")

	// ErrDenied signals that access to the location source was refused.
	ErrDenied = errors.New("access to location denied")

	// ErrNoProviders is reported when a stream is started without any usable provider.
	ErrNoProviders = errors.New("no usable location provider")
)

// Provider defines an interface for location sources. LookupStream starts producing updates
// until ctx is canceled. The accuracy hint is the accuracy in meters the consumer would be
// satisfied with; providers may use it to pick a sampling strategy.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context, accuracyHint float64) <-chan Update
}

// Authorizer is implemented by providers that need permission before they can deliver fixes.
type Authorizer interface {
	AuthorizationStatus() Authorization
	RequestAuthorization(ctx context.Context) error
}

// Switch is implemented by providers whose underlying service can be globally disabled.
type Switch interface {
	Enabled() bool
}

// Fix is a single position reading. A negative AccuracyMeters marks an invalid reading.
type Fix struct {
	Lat, Lon       float64
	Alt            float64
	AccuracyMeters float64
	At             time.Time
	Source         string
}

// Update is one delivery from a provider: either a batch of fixes, oldest first, or an error.
type Update struct {
	Fixes []Fix
	Err   error
}

// Last returns the most recent fix of the update.
func (u Update) Last() (Fix, bool) {
	if len(u.Fixes) == 0 {
		return Fix{}, false
	}
	return u.Fixes[len(u.Fixes)-1], true
}

// Coordinate returns the coordinate part of the fix.
func (f Fix) Coordinate() Coordinate {
	return Coordinate{Lat: f.Lat, Lon: f.Lon, Acc: f.AccuracyMeters}
}

// MoreAccurateThan reports whether f has a strictly smaller horizontal error than other.
func (f Fix) MoreAccurateThan(other Fix) bool {
	return f.AccuracyMeters < other.AccuracyMeters
}

// Age returns how old the fix is relative to now.
func (f Fix) Age(now time.Time) time.Duration {
	return now.Sub(f.At)
}

// IsTransient reports whether err only means that no position is known right now.
func IsTransient(err error) bool {
	return errors.Is(err, ErrLocationUnknown)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Truncate cuts x down to the given number of decimal places.
func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
