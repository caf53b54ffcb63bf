// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/http"
)

const (
	DefaultEndpoint = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout   = time.Second * 5
	wifiScanTime    = time.Minute * 2
	name            = "ichnaea"
)

// ErrNoHTTPClient is returned when the provider is created without a HTTP client.
var ErrNoHTTPClient = errors.New("http client is required")

// GeolocationICHNAEAProvider locates the device by posting the visible Wi-Fi access points
// to an Ichnaea compatible geolocate API (BeaconDB by default).
type GeolocationICHNAEAProvider struct {
	name     string
	endpoint string
	http     *http.Client
	period   time.Duration
	now      func() time.Time
	scanFn   func() ([]WirelessNetwork, error)
	locateFn func(ctx context.Context) (geobus.Coordinate, error)

	apLock sync.RWMutex
	aps    []WirelessNetwork
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// NewGeolocationICHNAEAProvider returns a provider that queries the given endpoint. An empty
// endpoint selects BeaconDB.
func NewGeolocationICHNAEAProvider(client *http.Client, endpoint string) (*GeolocationICHNAEAProvider, error) {
	if client == nil {
		return nil, ErrNoHTTPClient
	}
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}

	provider := newProvider(client, endpoint)
	provider.scanFn = func() ([]WirelessNetwork, error) {
		return wifiAccessPoints(wlan)
	}
	return provider, nil
}

func newProvider(client *http.Client, endpoint string) *GeolocationICHNAEAProvider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	provider := &GeolocationICHNAEAProvider{
		name:     name,
		endpoint: endpoint,
		http:     client,
		period:   time.Minute,
		now:      time.Now,
		scanFn:   func() ([]WirelessNetwork, error) { return nil, nil },
	}
	provider.locateFn = provider.locate
	return provider
}

func (p *GeolocationICHNAEAProvider) Name() string {
	return p.name
}

// LookupStream queries the geolocate API once per period and emits a fix whenever the
// reported position changes. API failures are delivered as transient errors. The first
// query waits for an initial Wi-Fi scan.
func (p *GeolocationICHNAEAProvider) LookupStream(ctx context.Context, _ float64) <-chan geobus.Update {
	out := make(chan geobus.Update)
	go func() {
		defer close(out)
		p.scanAccessPoints()
		go p.monitorWifiAccessPoints(ctx)
		state := geobus.GeolocationState{}
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
				}
			}
			firstRun = false

			var update geobus.Update
			coord, err := p.locateFn(ctx)
			switch {
			case err != nil:
				update.Err = fmt.Errorf("%w: %w", geobus.ErrLocationUnknown, err)
			case !state.HasChanged(coord):
				continue
			default:
				state.Update(coord)
				update.Fixes = []geobus.Fix{p.createFix(coord)}
			}

			select {
			case <-ctx.Done():
				return
			case out <- update:
			}
		}
	}()
	return out
}

func (p *GeolocationICHNAEAProvider) createFix(coord geobus.Coordinate) geobus.Fix {
	return geobus.Fix{
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		At:             p.now(),
		Source:         p.name,
	}
}

// monitorWifiAccessPoints rescans the access points every wifiScanTime until ctx is done.
func (p *GeolocationICHNAEAProvider) monitorWifiAccessPoints(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wifiScanTime):
		}
		p.scanAccessPoints()
	}
}

// scanAccessPoints replaces the known access points. A failed scan keeps the previous list.
func (p *GeolocationICHNAEAProvider) scanAccessPoints() {
	list, err := p.scanFn()
	if err != nil {
		return
	}
	p.apLock.Lock()
	p.aps = list
	p.apLock.Unlock()
}

func wifiAccessPoints(wlan *wifi.Client) ([]WirelessNetwork, error) {
	var checkIfaces []*wifi.Interface
	var list []WirelessNetwork

	ifaces, err := wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		checkIfaces = append(checkIfaces, iface)
	}
	if len(checkIfaces) == 0 {
		return nil, nil
	}

	for _, iface := range checkIfaces {
		aps, err := wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			// Networks ending in _nomap opted out of location services
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}

	return list, nil
}

func (p *GeolocationICHNAEAProvider) locate(ctx context.Context) (geobus.Coordinate, error) {
	p.apLock.RLock()
	wifiList := p.aps
	p.apLock.RUnlock()

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	req := request{
		ConsiderIP:   true,
		Accesspoints: wifiList,
	}
	bodyBuffer := bytes.NewBuffer(nil)
	if err := json.NewEncoder(bodyBuffer).Encode(req); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	result := new(APIResult)
	code, err := p.http.PostWithTimeout(ctx, p.endpoint, result, bodyBuffer,
		map[string]string{"Content-Type": "application/json"}, lookupTimeout)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	if code != 200 {
		return geobus.Coordinate{}, fmt.Errorf("geolocate API returned status %d", code)
	}

	coord := geobus.Coordinate{
		Lat: geobus.Truncate(result.Location.Latitude, geobus.TruncPrecision),
		Lon: geobus.Truncate(result.Location.Longitude, geobus.TruncPrecision),
		Acc: geobus.Truncate(result.Accuracy, geobus.TruncPrecision),
	}
	if !coord.Valid() {
		return geobus.Coordinate{}, fmt.Errorf("geolocate API returned invalid coordinates %f,%f",
			coord.Lat, coord.Lon)
	}
	return coord, nil
}
