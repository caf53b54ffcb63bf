// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquisition

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/geocode"
)

// Mode classifies the display state.
type Mode int

const (
	ModeNoFix Mode = iota
	ModeSearching
	ModeError
	ModeHasFix
)

func (m Mode) String() string {
	switch m {
	case ModeNoFix:
		return "nofix"
	case ModeSearching:
		return "searching"
	case ModeError:
		return "error"
	case ModeHasFix:
		return "hasfix"
	default:
		return "unknown"
	}
}

// Display texts. They double as message IDs for localization.
const (
	TextSearchingAddress  = "Searching for Address..."
	TextAddressError      = "Error Finding Address"
	TextNoAddress         = "No Address Found"
	TextServicesDisabled  = "Location Services Disabled"
	TextLocationError     = "Error Getting Location"
	TextSearching         = "Searching..."
	TextTapToStart        = "Tap 'Get My Location' to Start"
	LabelStop             = "Stop"
	LabelGetLocation      = "Get My Location"
	NoticeServicesMessage = "Please enable location services for this app in Settings."
)

// DisplayState is what the presentation layer shows. It is derived from a session and
// never stored as a source of truth.
type DisplayState struct {
	Mode            Mode
	CoordinatesText string
	LatitudeText    string
	LongitudeText   string
	AddressText     string
	StatusText      string
	ControlLabel    string
	CanTag          bool
	Streaming       bool

	SessionID uuid.UUID
	Fix       *geobus.Fix
	Address   *geocode.Address
}

// Notice is a blocking message the presentation layer has to surface to the user.
type Notice struct {
	Title   string
	Message string
}

// DeniedNotice is surfaced when the location provider refuses authorization.
var DeniedNotice = Notice{Title: TextServicesDisabled, Message: NoticeServicesMessage}

// Derive computes the display state for a session in the given controller state.
// servicesEnabled reports whether location services are globally switched on.
func Derive(s Session, state State, servicesEnabled bool) DisplayState {
	streaming := state == StateStreaming
	ds := DisplayState{
		SessionID:    s.ID,
		Streaming:    streaming,
		ControlLabel: LabelGetLocation,
	}
	if streaming {
		ds.ControlLabel = LabelStop
	}

	if s.BestFix != nil {
		fix := *s.BestFix
		ds.Mode = ModeHasFix
		ds.CanTag = true
		ds.Fix = &fix
		ds.LatitudeText = fmt.Sprintf("%.8f", fix.Lat)
		ds.LongitudeText = fmt.Sprintf("%.8f", fix.Lon)
		ds.CoordinatesText = ds.LatitudeText + ", " + ds.LongitudeText
		switch {
		case s.BestAddress != nil:
			addr := *s.BestAddress
			ds.Address = &addr
			ds.AddressText = FormatAddress(addr)
		case s.GeocodeInFlight:
			ds.AddressText = TextSearchingAddress
		case s.LastGeocodeError != nil:
			ds.AddressText = TextAddressError
		default:
			ds.AddressText = TextNoAddress
		}
		return ds
	}

	switch {
	case errors.Is(s.LastLocationError, geobus.ErrDenied) || !servicesEnabled:
		ds.Mode = ModeError
		ds.StatusText = TextServicesDisabled
	case s.LastLocationError != nil:
		ds.Mode = ModeError
		ds.StatusText = TextLocationError
	case streaming:
		ds.Mode = ModeSearching
		ds.StatusText = TextSearching
	default:
		ds.Mode = ModeNoFix
		ds.StatusText = TextTapToStart
	}
	return ds
}
