// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

// Authorization is the permission state of a location source.
type Authorization int

const (
	AuthorizationUndetermined Authorization = iota
	AuthorizationRestricted
	AuthorizationDenied
	AuthorizationGranted
)

func (a Authorization) String() string {
	switch a {
	case AuthorizationUndetermined:
		return "undetermined"
	case AuthorizationRestricted:
		return "restricted"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// Refused reports whether the state forbids starting a stream.
func (a Authorization) Refused() bool {
	return a == AuthorizationRestricted || a == AuthorizationDenied
}
