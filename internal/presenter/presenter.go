// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"

	"github.com/wneessen/mylocation/internal/acquisition"
	"github.com/wneessen/mylocation/internal/config"
	"github.com/wneessen/mylocation/internal/geocode"
)

// TemplateContext is the data the text and tooltip templates are executed with. All
// display texts are already localized.
type TemplateContext struct {
	Mode      string
	Icon      string
	HasFix    bool
	CanTag    bool
	Streaming bool

	Latitude    float64
	Longitude   float64
	Altitude    float64
	Accuracy    float64
	Source      string
	FixTime     time.Time
	Coordinates string

	// Address is the two-line address, or a localized lookup status if none is known.
	Address string
	// Summary is the address on a single line, or the coordinates if no address is known.
	Summary string
	Place   geocode.Address
	Status  string
	Control string

	Session    string
	UpdateTime time.Time
}

type Presenter struct {
	TextTemplate    *template.Template
	TooltipTemplate *template.Template

	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
	maxWidth  int
	now       func() time.Time
}

func New(conf *config.Config, loc *spreak.Localizer) (*Presenter, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	presenter := &Presenter{
		localizer: loc,
		humanizer: collection.CreateHumanizer(language.Make(conf.Locale)),
		maxWidth:  conf.Output.MaxWidth,
		now:       time.Now,
	}

	presenter.TextTemplate, err = template.New("text").Funcs(presenter.templateFuncMap()).
		Parse(conf.Templates.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	presenter.TooltipTemplate, err = template.New("tooltip").Funcs(presenter.templateFuncMap()).
		Parse(conf.Templates.Tooltip)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tooltip template: %w", err)
	}

	// Catch templates that parse but reference unknown fields before the first render.
	if _, err = presenter.Render(TemplateContext{}); err != nil {
		return nil, err
	}

	return presenter, nil
}

// BuildContext translates a display state into a template context.
func (p *Presenter) BuildContext(ds acquisition.DisplayState) TemplateContext {
	tplCtx := TemplateContext{
		Mode:        ds.Mode.String(),
		Icon:        ModeIcons[ds.Mode],
		HasFix:      ds.Mode == acquisition.ModeHasFix,
		CanTag:      ds.CanTag,
		Streaming:   ds.Streaming,
		Coordinates: ds.CoordinatesText,
		Status:      p.localize(ds.StatusText),
		Control:     p.localize(ds.ControlLabel),
		Session:     ds.SessionID.String(),
		UpdateTime:  p.now(),
	}
	if ds.Fix != nil {
		tplCtx.Latitude = ds.Fix.Lat
		tplCtx.Longitude = ds.Fix.Lon
		tplCtx.Altitude = ds.Fix.Alt
		tplCtx.Accuracy = ds.Fix.AccuracyMeters
		tplCtx.Source = ds.Fix.Source
		tplCtx.FixTime = ds.Fix.At
	}

	switch {
	case ds.Address != nil:
		tplCtx.Place = *ds.Address
		tplCtx.Address = ds.AddressText
		tplCtx.Summary = singleLine(ds.AddressText)
	default:
		tplCtx.Address = p.localize(ds.AddressText)
	}
	if tplCtx.Summary == "" {
		tplCtx.Summary = ds.CoordinatesText
	}

	return tplCtx
}

// Render executes the text and tooltip templates. The result is keyed by template name.
func (p *Presenter) Render(tplCtx TemplateContext) (map[string]string, error) {
	output := make(map[string]string)

	buf := bytes.NewBuffer(nil)
	if err := p.TextTemplate.Execute(buf, tplCtx); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	output["text"] = buf.String()

	buf.Reset()
	if err := p.TooltipTemplate.Execute(buf, tplCtx); err != nil {
		return nil, fmt.Errorf("failed to render tooltip template: %w", err)
	}
	output["tooltip"] = buf.String()

	return output, nil
}

// Localize returns the translation of a display text.
func (p *Presenter) Localize(val string) string {
	return p.localize(val)
}

func (p *Presenter) localize(val string) string {
	if val == "" {
		return ""
	}
	return p.localizer.Get(val)
}

// singleLine joins the non-empty lines of a formatted address with commas.
func singleLine(val string) string {
	var parts []string
	for _, line := range strings.Split(val, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, ", ")
}
