// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package acquisition implements the location acquisition controller. It starts and stops
// a location stream, keeps the most accurate recent fix, resolves it into an address and
// derives the state shown to the user.
package acquisition

import (
	"github.com/google/uuid"

	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/geocode"
)

// State is the lifecycle state of the controller.
type State int

const (
	StateIdle State = iota
	StateAuthorizing
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthorizing:
		return "authorizing"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Session holds everything the controller learned during one acquisition attempt. It is
// owned by the controller goroutine and must not be shared.
type Session struct {
	ID                uuid.UUID
	BestFix           *geobus.Fix
	LastLocationError error
	GeocodeInFlight   bool
	BestAddress       *geocode.Address
	LastGeocodeError  error
}

// NewSession returns an empty session with a fresh ID.
func NewSession() Session {
	return Session{ID: uuid.New()}
}

// Reset clears the results of the previous attempt and assigns a new ID. GeocodeInFlight is
// kept since a lookup started earlier still completes into this session.
func (s *Session) Reset() {
	s.ID = uuid.New()
	s.BestFix = nil
	s.LastLocationError = nil
	s.BestAddress = nil
	s.LastGeocodeError = nil
}
