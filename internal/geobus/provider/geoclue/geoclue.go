// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/mylocation/internal/geobus"
)

const (
	DefaultDesktopID = "mylocation"
	name             = "geoclue"

	dbusListNames            = "org.freedesktop.DBus.ListNames"
	dbusListActivatableNames = "org.freedesktop.DBus.ListActivatableNames"
	dbusPropertiesSet        = "org.freedesktop.DBus.Properties.Set"
	dbusPropertiesGetAll     = "org.freedesktop.DBus.Properties.GetAll"

	geoclueService  = "org.freedesktop.GeoClue2"
	geoclueAgent    = "org.freedesktop.GeoClue2.DemoAgent"
	managerPath     = "/org/freedesktop/GeoClue2/Manager"
	managerIface    = "org.freedesktop.GeoClue2.Manager"
	clientIface     = "org.freedesktop.GeoClue2.Client"
	locationIface   = "org.freedesktop.GeoClue2.Location"
	locationUpdated = "LocationUpdated"

	signalBufferSize = 8

	// busLookupTimeout bounds the bus queries that run on the caller's goroutine.
	busLookupTimeout = 2 * time.Second
)

// AccuracyLevel mirrors GeoClue's GClueAccuracyLevel enum.
type AccuracyLevel uint32

const (
	AccuracyLevelNone         AccuracyLevel = 0
	AccuracyLevelCountry      AccuracyLevel = 1
	AccuracyLevelCity         AccuracyLevel = 4
	AccuracyLevelNeighborhood AccuracyLevel = 5
	AccuracyLevelStreet       AccuracyLevel = 6
	AccuracyLevelExact        AccuracyLevel = 8
)

var ErrMissingProperty = errors.New("location property missing")

// GeolocationGeoClueProvider streams positions from the GeoClue2 service on the system bus.
// GeoClue only hands out positions to clients when an agent is running in the user session,
// so the presence of that agent is treated as the authorization.
type GeolocationGeoClueProvider struct {
	name      string
	desktopID string
	now       func() time.Time
	agentFn   func(ctx context.Context) (bool, error)
	serviceFn func(ctx context.Context) bool

	mu     sync.Mutex
	denied bool
}

// NewGeolocationGeoClueProvider returns a GeoClue provider that registers with the given
// desktop ID.
func NewGeolocationGeoClueProvider(desktopID string) *GeolocationGeoClueProvider {
	if desktopID == "" {
		desktopID = DefaultDesktopID
	}
	return &GeolocationGeoClueProvider{
		name:      name,
		desktopID: desktopID,
		now:       time.Now,
		agentFn:   agentIsRunning,
		serviceFn: serviceIsAvailable,
	}
}

func (p *GeolocationGeoClueProvider) Name() string {
	return p.name
}

// Enabled reports whether the GeoClue service is present on the system bus.
func (p *GeolocationGeoClueProvider) Enabled() bool {
	ctx, cancel := context.WithTimeout(context.Background(), busLookupTimeout)
	defer cancel()
	return p.serviceFn(ctx)
}

// AuthorizationStatus is granted while a GeoClue agent runs. Without an agent it is
// undetermined until an authorization request found none, then denied.
func (p *GeolocationGeoClueProvider) AuthorizationStatus() geobus.Authorization {
	ctx, cancel := context.WithTimeout(context.Background(), busLookupTimeout)
	defer cancel()
	running, err := p.agentFn(ctx)
	if err == nil && running {
		p.mu.Lock()
		p.denied = false
		p.mu.Unlock()
		return geobus.AuthorizationGranted
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.denied {
		return geobus.AuthorizationDenied
	}
	return geobus.AuthorizationUndetermined
}

// RequestAuthorization checks for a GeoClue agent once more and remembers a refusal when
// none is running.
func (p *GeolocationGeoClueProvider) RequestAuthorization(ctx context.Context) error {
	running, err := p.agentFn(ctx)
	if err != nil {
		return fmt.Errorf("failed to look up geoclue agent: %w", err)
	}
	p.mu.Lock()
	p.denied = !running
	p.mu.Unlock()
	return nil
}

// LookupStream registers a GeoClue client and forwards every LocationUpdated signal as a fix.
// The stream ends when ctx is canceled or the bus connection is lost.
func (p *GeolocationGeoClueProvider) LookupStream(ctx context.Context, accuracyHint float64) <-chan geobus.Update {
	out := make(chan geobus.Update)
	go func() {
		defer close(out)

		conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
		if err != nil {
			send(ctx, out, geobus.Update{
				Err: fmt.Errorf("failed to connect to system bus: %w: %w", geobus.ErrLocationUnknown, err),
			})
			return
		}
		defer func() { _ = conn.Close() }()

		client, err := p.registerClient(ctx, conn, LevelForAccuracy(accuracyHint))
		if err != nil {
			send(ctx, out, geobus.Update{Err: err})
			return
		}

		sigCh := make(chan *dbus.Signal, signalBufferSize)
		conn.Signal(sigCh)
		defer conn.RemoveSignal(sigCh)

		if err = client.CallWithContext(ctx, clientIface+".Start", 0).Err; err != nil {
			send(ctx, out, geobus.Update{Err: startError(err)})
			return
		}
		defer func() { _ = client.Call(clientIface+".Stop", 0).Err }()

		for {
			select {
			case <-ctx.Done():
				return
			case sgn, ok := <-sigCh:
				if !ok {
					return
				}
				path, ok := locationPath(sgn)
				if !ok {
					continue
				}
				update := p.readLocation(ctx, conn, path)
				if !send(ctx, out, update) {
					return
				}
			}
		}
	}()
	return out
}

func (p *GeolocationGeoClueProvider) registerClient(ctx context.Context, conn *dbus.Conn, level AccuracyLevel) (dbus.BusObject, error) {
	var clientPath dbus.ObjectPath
	manager := conn.Object(geoclueService, managerPath)
	if err := manager.CallWithContext(ctx, managerIface+".GetClient", 0).Store(&clientPath); err != nil {
		return nil, fmt.Errorf("failed to get geoclue client: %w: %w", geobus.ErrLocationUnknown, err)
	}

	client := conn.Object(geoclueService, clientPath)
	if err := client.CallWithContext(ctx, dbusPropertiesSet, 0, clientIface, "DesktopId",
		dbus.MakeVariant(p.desktopID)).Err; err != nil {
		return nil, fmt.Errorf("failed to set desktop id: %w", err)
	}
	if err := client.CallWithContext(ctx, dbusPropertiesSet, 0, clientIface, "RequestedAccuracyLevel",
		dbus.MakeVariant(uint32(level))).Err; err != nil {
		return nil, fmt.Errorf("failed to set requested accuracy level: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(clientPath),
		dbus.WithMatchInterface(clientIface),
		dbus.WithMatchMember(locationUpdated),
	); err != nil {
		return nil, fmt.Errorf("failed to subscribe to location updates: %w", err)
	}
	return client, nil
}

func (p *GeolocationGeoClueProvider) readLocation(ctx context.Context, conn *dbus.Conn, path dbus.ObjectPath) geobus.Update {
	props := make(map[string]dbus.Variant)
	if err := conn.Object(geoclueService, path).CallWithContext(ctx, dbusPropertiesGetAll, 0,
		locationIface).Store(&props); err != nil {
		return geobus.Update{Err: fmt.Errorf("failed to read location: %w: %w", geobus.ErrLocationUnknown, err)}
	}
	fix, err := p.fixFromProperties(props)
	if err != nil {
		return geobus.Update{Err: err}
	}
	return geobus.Update{Fixes: []geobus.Fix{fix}}
}

// fixFromProperties converts the properties of a GeoClue Location object into a fix.
func (p *GeolocationGeoClueProvider) fixFromProperties(props map[string]dbus.Variant) (geobus.Fix, error) {
	fix := geobus.Fix{Source: p.name}
	for key, target := range map[string]*float64{
		"Latitude":  &fix.Lat,
		"Longitude": &fix.Lon,
		"Accuracy":  &fix.AccuracyMeters,
	} {
		v, ok := props[key]
		if !ok {
			return geobus.Fix{}, fmt.Errorf("%w: %s", ErrMissingProperty, key)
		}
		f, ok := v.Value().(float64)
		if !ok {
			return geobus.Fix{}, fmt.Errorf("%w: %s has type %s", ErrMissingProperty, key, v.Signature())
		}
		*target = f
	}
	// GeoClue reports -DBL_MAX when the altitude is unknown
	if v, ok := props["Altitude"]; ok {
		if alt, ok := v.Value().(float64); ok && alt > -1e308 {
			fix.Alt = alt
		}
	}
	fix.At = p.now()
	if v, ok := props["Timestamp"]; ok {
		if at, ok := timestamp(v.Value()); ok {
			fix.At = at
		}
	}
	return fix, nil
}

// LevelForAccuracy maps an accuracy in meters to the GeoClue level that can deliver it.
func LevelForAccuracy(meters float64) AccuracyLevel {
	switch {
	case meters <= 10:
		return AccuracyLevelExact
	case meters <= 100:
		return AccuracyLevelStreet
	case meters <= 1000:
		return AccuracyLevelNeighborhood
	case meters <= geobus.AccuracyCity:
		return AccuracyLevelCity
	default:
		return AccuracyLevelCountry
	}
}

// timestamp decodes GeoClue's (tt) timestamp of seconds and microseconds.
func timestamp(v any) (time.Time, bool) {
	parts, ok := v.([]any)
	if !ok || len(parts) != 2 {
		return time.Time{}, false
	}
	sec, ok := parts[0].(uint64)
	if !ok {
		return time.Time{}, false
	}
	usec, ok := parts[1].(uint64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)), true
}

func locationPath(sgn *dbus.Signal) (dbus.ObjectPath, bool) {
	if sgn == nil || !strings.HasSuffix(sgn.Name, "."+locationUpdated) || len(sgn.Body) != 2 {
		return "", false
	}
	path, ok := sgn.Body[1].(dbus.ObjectPath)
	return path, ok && path.IsValid()
}

// startError maps GeoClue's refusal to start a client without an agent onto ErrDenied.
func startError(err error) error {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) && strings.HasSuffix(dbusErr.Name, "AccessDenied") {
		return fmt.Errorf("geoclue refused to start: %w: %w", geobus.ErrDenied, err)
	}
	return fmt.Errorf("failed to start geoclue client: %w: %w", geobus.ErrLocationUnknown, err)
}

func agentIsRunning(ctx context.Context) (isRunning bool, err error) {
	var list []string
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close session bus: %w", closeErr))
		}
	}()

	if err = conn.BusObject().CallWithContext(ctx, dbusListNames, 0).Store(&list); err != nil {
		return false, fmt.Errorf("failed to call DBus ListNames: %w", err)
	}
	return containsName(list, geoclueAgent), nil
}

func serviceIsAvailable(ctx context.Context) bool {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close() }()

	for _, method := range []string{dbusListNames, dbusListActivatableNames} {
		var list []string
		if err = conn.BusObject().CallWithContext(ctx, method, 0).Store(&list); err != nil {
			continue
		}
		if containsName(list, geoclueService) {
			return true
		}
	}
	return false
}

func containsName(list []string, name string) bool {
	for _, v := range list {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}

func send(ctx context.Context, out chan<- geobus.Update, u geobus.Update) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- u:
		return true
	}
}
