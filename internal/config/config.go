// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv         = "MYLOCATION"
	DefaultTextTpl    = `{{if .HasFix}}📍 {{trunc .Summary}}{{else}}🛰️ {{.Status}}{{end}}`
	DefaultTooltipTpl = `{{if .HasFix}}{{.Coordinates}} (±{{floatFormat .Accuracy 0}} m)
{{.Address}}

{{loc "Source"}}: {{.Source}} • {{since .FixTime}}
{{else}}{{.Status}}
{{end}}{{.Control}}`
)

var (
	geocoders = []string{"nominatim", "opencage", "geocode-earth"}
	baudRates = []uint{4800, 9600, 19200, 38400, 57600, 115200}
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Location struct {
		// Allowed values: 0.1 to 100000 meters
		DesiredAccuracy float64       `fig:"desired_accuracy" default:"10"`
		MaxFixAge       time.Duration `fig:"max_fix_age" default:"5s"`
		// Start an acquisition as soon as the service is running
		StartOnLaunch bool `fig:"start_on_launch"`
	} `fig:"location"`

	GeoLocation struct {
		File                   string `fig:"file"`
		DisableGeolocationFile bool   `fig:"disable_geolocation_file"`
		DisableGeoAPI          bool   `fig:"disable_geoapi"`
		DisableGeoClue         bool   `fig:"disable_geoclue"`
		DisableGPSD            bool   `fig:"disable_gpsd"`
		DisableICHNAEA         bool   `fig:"disable_ichnaea"`
		EnableNMEA             bool   `fig:"enable_nmea"`

		GPSD struct {
			Host  string `fig:"host" default:"localhost"`
			Port  string `fig:"port" default:"2947"`
			Watch bool   `fig:"watch"`
		} `fig:"gpsd"`
		NMEA struct {
			Port     string `fig:"port" default:"/dev/ttyUSB0"`
			BaudRate uint   `fig:"baud_rate" default:"9600"`
		} `fig:"nmea"`
		ICHNAEA struct {
			Endpoint string `fig:"endpoint"`
		} `fig:"ichnaea"`
		GeoClue struct {
			DesktopID string `fig:"desktop_id" default:"mylocation"`
		} `fig:"geoclue"`
	} `fig:"geolocation"`

	GeoCoder struct {
		// Allowed values: nominatim, opencage, geocode-earth
		Provider        string        `fig:"provider" default:"nominatim"`
		APIKey          string        `fig:"apikey"`
		DisableFollowUp bool          `fig:"disable_follow_up"`
		Timeout         time.Duration `fig:"timeout" default:"30s"`
		CacheHitTTL     time.Duration `fig:"cache_hit_ttl" default:"24h"`
		CacheMissTTL    time.Duration `fig:"cache_miss_ttl" default:"10m"`
	} `fig:"geocoder"`

	Intervals struct {
		Output time.Duration `fig:"output" default:"30s"`
	} `fig:"intervals"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	Output struct {
		// Maximum display width of the summary in the text template
		MaxWidth int `fig:"max_width" default:"40"`
		MQTT     struct {
			Broker   string `fig:"broker"`
			Topic    string `fig:"topic" default:"mylocation/state"`
			ClientID string `fig:"client_id" default:"mylocation"`
			Username string `fig:"username"`
			Password string `fig:"password"`
		} `fig:"mqtt"`
	} `fig:"output"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if c.Location.DesiredAccuracy < 0.1 || c.Location.DesiredAccuracy > 100000 {
		return fmt.Errorf("invalid desired accuracy: %f", c.Location.DesiredAccuracy)
	}
	if c.Location.MaxFixAge <= 0 {
		return fmt.Errorf("invalid max fix age: %s", c.Location.MaxFixAge)
	}
	if c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}
	if c.Output.MaxWidth < 1 {
		return fmt.Errorf("invalid max width: %d", c.Output.MaxWidth)
	}

	c.GeoCoder.Provider = strings.ToLower(c.GeoCoder.Provider)
	if !slices.Contains(geocoders, c.GeoCoder.Provider) {
		return fmt.Errorf("invalid geocoder provider: %s", c.GeoCoder.Provider)
	}
	if c.GeoLocation.EnableNMEA && !slices.Contains(baudRates, c.GeoLocation.NMEA.BaudRate) {
		return fmt.Errorf("invalid NMEA baud rate: %d", c.GeoLocation.NMEA.BaudRate)
	}

	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.GeoLocation.File == "" {
		home, _ := os.UserHomeDir()
		c.GeoLocation.File = filepath.Join(home, ".config", "mylocation", "geolocation")
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}

