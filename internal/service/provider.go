// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/wneessen/mylocation/internal/config"
	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/geobus/provider/geoapi"
	"github.com/wneessen/mylocation/internal/geobus/provider/geoclue"
	"github.com/wneessen/mylocation/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/mylocation/internal/geobus/provider/gpsd"
	"github.com/wneessen/mylocation/internal/geobus/provider/ichnaea"
	"github.com/wneessen/mylocation/internal/geobus/provider/nmea"
	"github.com/wneessen/mylocation/internal/geocode"
	geocodeearth "github.com/wneessen/mylocation/internal/geocode/provider/geocode-earth"
	"github.com/wneessen/mylocation/internal/geocode/provider/opencage"
	nominatim "github.com/wneessen/mylocation/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/mylocation/internal/http"
	"github.com/wneessen/mylocation/internal/logger"
)

var ErrNoProvidersEnabled = errors.New("no geolocation providers enabled")

func (s *Service) selectGeobusProviders() ([]geobus.Provider, error) {
	httpClient := http.New(s.logger)
	conf := s.config.GeoLocation
	var provider []geobus.Provider

	if !conf.DisableGeolocationFile {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(conf.File))
	}

	if !conf.DisableGPSD {
		provider = append(provider, gpsd.NewGeolocationGPSDProvider(conf.GPSD.Host, conf.GPSD.Port, conf.GPSD.Watch))
	}

	if conf.EnableNMEA {
		provider = append(provider, nmea.NewGeolocationNMEAProvider(conf.NMEA.Port, conf.NMEA.BaudRate))
	}

	if !conf.DisableGeoClue {
		provider = append(provider, geoclue.NewGeolocationGeoClueProvider(conf.GeoClue.DesktopID))
	}

	if !conf.DisableGeoAPI {
		gap, err := geoapi.NewGeolocationGeoAPIProvider(httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoAPI provider: %w", err)
		}
		provider = append(provider, gap)
	}

	if !conf.DisableICHNAEA {
		mls, err := ichnaea.NewGeolocationICHNAEAProvider(httpClient, conf.ICHNAEA.Endpoint)
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			provider = append(provider, mls)
		}
	}
	if len(provider) == 0 {
		return nil, ErrNoProvidersEnabled
	}

	return provider, nil
}

func (s *Service) selectGeocodeProvider(conf *config.Config, log *logger.Logger, lang language.Tag) (geocode.Geocoder, error) {
	var geocoder geocode.Geocoder
	hitTTL, missTTL := conf.GeoCoder.CacheHitTTL, conf.GeoCoder.CacheMissTTL

	switch strings.ToLower(conf.GeoCoder.Provider) {
	case "nominatim":
		geocoder = geocode.NewCachedGeocoder(nominatim.New(http.New(log), lang), hitTTL, missTTL)
	case "opencage":
		if conf.GeoCoder.APIKey == "" {
			return nil, fmt.Errorf("opencage geocoder requires an API key")
		}
		geocoder = geocode.NewCachedGeocoder(opencage.New(http.New(log), lang, conf.GeoCoder.APIKey),
			hitTTL, missTTL)
	case "geocode-earth":
		if conf.GeoCoder.APIKey == "" {
			return nil, fmt.Errorf("geocode-earth geocoder requires an API key")
		}
		geocoder = geocode.NewCachedGeocoder(geocodeearth.New(http.New(log), lang, conf.GeoCoder.APIKey),
			hitTTL, missTTL)
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", conf.GeoCoder.Provider)
	}

	return geocoder, nil
}
