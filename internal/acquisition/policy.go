// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquisition

import (
	"time"

	"github.com/wneessen/mylocation/internal/geobus"
)

const (
	DefaultDesiredAccuracy = 10.0 // meters
	DefaultMaxFixAge       = 5 * time.Second
)

// Verdict is the outcome of judging a fix against the current best fix.
type Verdict int

const (
	VerdictAccepted Verdict = iota
	VerdictStale
	VerdictInvalid
	VerdictNotBetter
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictStale:
		return "stale"
	case VerdictInvalid:
		return "invalid accuracy"
	case VerdictNotBetter:
		return "not more accurate"
	default:
		return "unknown"
	}
}

// Policy decides which fixes are worth keeping and when a fix is good enough to stop.
type Policy struct {
	DesiredAccuracy float64
	MaxFixAge       time.Duration
}

// Judge checks fix against best at the given time. Checks run in order: age, accuracy
// validity, improvement. Only a strictly more accurate fix replaces best.
func (p Policy) Judge(best *geobus.Fix, fix geobus.Fix, now time.Time) Verdict {
	if fix.Age(now) > p.MaxFixAge {
		return VerdictStale
	}
	if fix.AccuracyMeters < 0 {
		return VerdictInvalid
	}
	if best != nil && !fix.MoreAccurateThan(*best) {
		return VerdictNotBetter
	}
	return VerdictAccepted
}

// GoodEnough reports whether fix meets the desired accuracy.
func (p Policy) GoodEnough(fix geobus.Fix) bool {
	return fix.AccuracyMeters <= p.DesiredAccuracy
}
