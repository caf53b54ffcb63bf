// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package i18n loads the embedded translations of the mylocation display texts.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/Xuanwo/go-locale"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"
)

//go:embed locale/*.po
var catalogs embed.FS

// New returns a localizer for loc. An empty loc detects the locale of the user session.
// Texts without a translation are shown in English.
func New(loc string) (*spreak.Localizer, error) {
	tag := ParseLocale(loc)
	if loc == "" {
		detected, err := locale.Detect()
		if err == nil {
			tag = detected
		}
	}

	catalogFS, err := fs.Sub(catalogs, "locale")
	if err != nil {
		return nil, fmt.Errorf("failed to open translation catalogs: %w", err)
	}
	bundle, err := spreak.NewBundle(
		spreak.WithSourceLanguage(language.English),
		spreak.WithFallbackLanguage(language.English),
		spreak.WithDomainFs("", catalogFS),
		spreak.WithLanguage(tag),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation bundle for %s: %w", tag, err)
	}
	return spreak.NewLocalizer(bundle, tag), nil
}

// ParseLocale turns a BCP 47 tag or a POSIX locale like "de_DE.UTF-8" into a language tag.
// The POSIX "C" locale and unparsable values select English.
func ParseLocale(loc string) language.Tag {
	loc, _, _ = strings.Cut(loc, ".")
	loc, _, _ = strings.Cut(loc, "@")
	if loc == "" || loc == "C" || loc == "POSIX" {
		return language.English
	}
	tag, err := language.Parse(strings.ReplaceAll(loc, "_", "-"))
	if err != nil {
		return language.English
	}
	return tag
}
