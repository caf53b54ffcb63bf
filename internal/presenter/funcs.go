// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
)

const truncTail = "…"

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    p.timeFormat,
		"localizedTime": p.localizedTime,
		"since":         p.since,
		"floatFormat":   p.floatFormat,
		"trunc":         p.trunc,
		"loc":           p.loc,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

func (p *Presenter) loc(val string) string {
	if raw, ok := i18nVars[strings.ToLower(val)]; ok {
		return p.localizer.Get(raw)
	}
	return p.localizer.Get(val)
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

// since renders the age of val in words, e.g. "3 minutes ago". A zero time renders empty.
func (p *Presenter) since(val time.Time) string {
	if val.IsZero() {
		return ""
	}
	return p.humanizer.NaturalTime(val)
}

func (p *Presenter) timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func (p *Presenter) floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}

// trunc cuts val to the configured display width, or to the optional width argument.
// Width is measured in terminal cells so that wide runes and emoji count correctly.
func (p *Presenter) trunc(val string, width ...int) string {
	w := p.maxWidth
	if len(width) > 0 {
		w = width[0]
	}
	return runewidth.Truncate(val, w, truncTail)
}
