// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/gpspoll"
	"github.com/wneessen/mylocation/internal/job"
)

const (
	DefaultHost = "localhost"
	DefaultPort = "2947"
	name        = "gpsd"

	dialTimeout = 5 * time.Second
)

var errNoFix = fmt.Errorf("gpsd has no 2D fix yet: %w", geobus.ErrLocationUnknown)

// GeolocationGPSDProvider reads fixes from a gpsd daemon. By default it polls gpsd once per
// period; in watch mode it keeps a gpsd session open and forwards every TPV report.
type GeolocationGPSDProvider struct {
	name     string
	host     string
	port     string
	watch    bool
	period   time.Duration
	locateFn func(ctx context.Context) (gpspoll.Fix, error)
}

// NewGeolocationGPSDProvider returns a gpsd provider for the given host and port.
func NewGeolocationGPSDProvider(host, port string, watch bool) *GeolocationGPSDProvider {
	if host == "" {
		host = DefaultHost
	}
	if port == "" {
		port = DefaultPort
	}
	provider := &GeolocationGPSDProvider{
		name:   name,
		host:   host,
		port:   port,
		watch:  watch,
		period: time.Second,
	}
	provider.locateFn = gpspoll.New(host, port).Poll
	return provider
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

// LookupStream streams gpsd fixes until ctx is canceled. Connection problems and reports
// without a 2D fix are delivered as transient errors.
func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, _ float64) <-chan geobus.Update {
	out := make(chan geobus.Update)
	results := make(chan geobus.Update)

	if p.watch {
		go p.watchLoop(ctx, results)
	} else {
		state := geobus.GeolocationState{}
		pollJob := job.New(p.period, func(ctx context.Context) {
			p.poll(ctx, &state, results)
		}, job.WithImmediateRun())
		go pollJob.Start(ctx)
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-results:
				select {
				case <-ctx.Done():
					return
				case out <- u:
				}
			}
		}
	}()
	return out
}

func (p *GeolocationGPSDProvider) poll(ctx context.Context, state *geobus.GeolocationState, results chan<- geobus.Update) {
	var update geobus.Update
	fix, err := p.locateFn(ctx)
	switch {
	case err != nil:
		update.Err = fmt.Errorf("failed to poll gpsd: %w: %w", geobus.ErrLocationUnknown, err)
	case !fix.Has2DFix():
		update.Err = errNoFix
	default:
		coord := geobus.Coordinate{Lat: fix.Lat, Lon: fix.Lon, Acc: fix.Acc}
		if !state.HasChanged(coord) {
			return
		}
		state.Update(coord)
		update.Fixes = []geobus.Fix{p.createFix(fix)}
	}
	send(ctx, results, update)
}

func (p *GeolocationGPSDProvider) watchLoop(ctx context.Context, results chan<- geobus.Update) {
	addr := net.JoinHostPort(p.host, p.port)
	for {
		session, err := gpsd.DialTimeout(addr, dialTimeout)
		if err != nil {
			send(ctx, results, geobus.Update{
				Err: fmt.Errorf("failed to connect to gpsd at %q: %w: %w", addr, geobus.ErrLocationUnknown, err),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period * 5):
				continue
			}
		}

		// The filter is called for every TPV report of the session
		session.AddFilter("TPV", func(r interface{}) {
			tpv, ok := r.(*gpsd.TPVReport)
			if !ok {
				return
			}
			fix := gpspoll.Fix{
				Lat:  tpv.Lat,
				Lon:  tpv.Lon,
				Alt:  tpv.Alt,
				Acc:  gpspoll.HorizontalAccuracy(0, tpv.Epx, tpv.Epy, int(tpv.Mode)),
				Mode: int(tpv.Mode),
				Time: tpv.Time,
			}
			if !fix.Has2DFix() {
				send(ctx, results, geobus.Update{Err: errNoFix})
				return
			}
			if fix.Time.IsZero() {
				fix.Time = time.Now()
			}
			send(ctx, results, geobus.Update{Fixes: []geobus.Fix{p.createFix(fix)}})
		})

		// The watch goroutine reports on done once its reads fail, which Close forces.
		done := session.Watch()
		select {
		case <-ctx.Done():
			_ = session.Close()
			<-done
			return
		case <-done:
			_ = session.Close()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.period):
		}
	}
}

// createFix converts a gpsd fix into a geobus fix.
func (p *GeolocationGPSDProvider) createFix(fix gpspoll.Fix) geobus.Fix {
	return geobus.Fix{
		Lat:            fix.Lat,
		Lon:            fix.Lon,
		Alt:            fix.Alt,
		AccuracyMeters: fix.Acc,
		At:             fix.Time,
		Source:         p.name,
	}
}

func send(ctx context.Context, results chan<- geobus.Update, u geobus.Update) {
	select {
	case <-ctx.Done():
	case results <- u:
	}
}
