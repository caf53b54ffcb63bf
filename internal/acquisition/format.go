// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquisition

import (
	"strings"

	"github.com/wneessen/mylocation/internal/geocode"
)

// FormatAddress renders addr as two lines: house number and street, then locality (or
// admin area) and postal code. Missing components are left out, but the separators of
// present ones are kept, so {AdminArea: "Île-de-France"} renders as "\nÎle-de-France ".
func FormatAddress(addr geocode.Address) string {
	var sb strings.Builder
	if number, ok := addr.HouseNumber.Get(); ok {
		sb.WriteString(number)
		sb.WriteString(" ")
	}
	sb.WriteString(addr.Street.Value())
	sb.WriteString("\n")

	switch {
	case addr.Locality.IsSet():
		sb.WriteString(addr.Locality.Value())
		sb.WriteString(" ")
	case addr.AdminArea.IsSet():
		sb.WriteString(addr.AdminArea.Value())
		sb.WriteString(" ")
	}
	sb.WriteString(addr.PostalCode.Value())

	return sb.String()
}
