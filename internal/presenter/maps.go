// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/mylocation/internal/acquisition"
)

// ModeIcons maps display modes to the icon shown in front of the text.
var ModeIcons = map[acquisition.Mode]string{
	acquisition.ModeNoFix:     "🧭",
	acquisition.ModeSearching: "🛰️",
	acquisition.ModeError:     "⚠️",
	acquisition.ModeHasFix:    "📍",
}

// i18nVars are short keys templates can pass to loc instead of the full message ID.
var i18nVars = map[string]localize.MsgID{
	"source":   "Source",
	"accuracy": "Accuracy",
	"stop":     acquisition.LabelStop,
	"start":    acquisition.LabelGetLocation,
	"disabled": acquisition.TextServicesDisabled,
}
