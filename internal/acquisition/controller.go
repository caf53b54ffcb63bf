// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquisition

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/geocode"
	"github.com/wneessen/mylocation/internal/logger"
)

const (
	DefaultGeocodeTimeout = 30 * time.Second

	intentBuffer = 8
	noticeBuffer = 4
)

var (
	ErrLoggerRequired    = errors.New("logger is required")
	ErrLocatorRequired   = errors.New("location provider is required")
	ErrGeocoderRequired  = errors.New("geocoder is required")
	ErrPresenterRequired = errors.New("presenter is required")
)

// LocationProvider is the location source the controller drives. geobus.Orchestrator
// implements it.
type LocationProvider interface {
	Start(ctx context.Context, accuracyHint float64) <-chan geobus.Update
	Stop()
	AuthorizationStatus() geobus.Authorization
	// RequestAuthorization must not block. Completion is signaled on Notifications.
	RequestAuthorization(ctx context.Context)
	Notifications() <-chan struct{}
	ServicesEnabled() bool
}

// Presenter receives display states and notices. Calls happen on the controller's render
// goroutine, never on the goroutine that owns the session.
type Presenter interface {
	Render(DisplayState)
	Notice(Notice)
}

// Config tunes the controller. Zero values are replaced by defaults.
type Config struct {
	DesiredAccuracy float64
	MaxFixAge       time.Duration
	GeocodeTimeout  time.Duration
	// FollowUpGeocode starts another lookup when a lookup completes for a fix that is no
	// longer the best one.
	FollowUpGeocode bool
	Clock           clockwork.Clock
}

type intent int

const (
	intentToggle intent = iota
	intentStart
	intentStop
)

type geocodeResult struct {
	fix   geobus.Fix
	addrs []geocode.Address
	err   error
}

// Controller owns the acquisition session. All session mutations happen on the goroutine
// running Run; everything else talks to it through channels.
type Controller struct {
	config    Config
	policy    Policy
	locator   LocationProvider
	geocoder  geocode.Geocoder
	presenter Presenter
	logger    *logger.Logger

	intents     chan intent
	geocodeDone chan geocodeResult
	mailbox     chan DisplayState
	notices     chan Notice

	// owned by the Run goroutine
	session         Session
	state           State
	updates         <-chan geobus.Update
	servicesEnabled bool
}

// New returns a Controller. It does nothing until Run is called.
func New(conf Config, locator LocationProvider, geocoder geocode.Geocoder, presenter Presenter,
	log *logger.Logger,
) (*Controller, error) {
	if log == nil {
		return nil, ErrLoggerRequired
	}
	if locator == nil {
		return nil, ErrLocatorRequired
	}
	if geocoder == nil {
		return nil, ErrGeocoderRequired
	}
	if presenter == nil {
		return nil, ErrPresenterRequired
	}
	if conf.DesiredAccuracy <= 0 {
		conf.DesiredAccuracy = DefaultDesiredAccuracy
	}
	if conf.MaxFixAge <= 0 {
		conf.MaxFixAge = DefaultMaxFixAge
	}
	if conf.GeocodeTimeout <= 0 {
		conf.GeocodeTimeout = DefaultGeocodeTimeout
	}
	if conf.Clock == nil {
		conf.Clock = clockwork.NewRealClock()
	}

	return &Controller{
		config:          conf,
		policy:          Policy{DesiredAccuracy: conf.DesiredAccuracy, MaxFixAge: conf.MaxFixAge},
		locator:         locator,
		geocoder:        geocoder,
		presenter:       presenter,
		logger:          log,
		intents:         make(chan intent, intentBuffer),
		geocodeDone:     make(chan geocodeResult, 1),
		mailbox:         make(chan DisplayState, 1),
		notices:         make(chan Notice, noticeBuffer),
		session:         NewSession(),
		servicesEnabled: locator.ServicesEnabled(),
	}, nil
}

// Toggle stops a running acquisition or starts a new one.
func (c *Controller) Toggle() { c.send(intentToggle) }

// Start starts a new acquisition unless one is already running.
func (c *Controller) Start() { c.send(intentStart) }

// Stop stops a running acquisition.
func (c *Controller) Stop() { c.send(intentStop) }

func (c *Controller) send(in intent) {
	select {
	case c.intents <- in:
	default:
		c.logger.Warn("controller is busy, dropping user intent")
	}
}

// Run processes user intents, location updates, authorization changes and geocoding
// results until ctx is canceled. A running stream is stopped on return.
func (c *Controller) Run(ctx context.Context) error {
	go c.renderLoop(ctx)
	c.publish()

	for {
		select {
		case <-ctx.Done():
			c.stopStream()
			return nil
		case in := <-c.intents:
			c.handleIntent(ctx, in)
		case <-c.locator.Notifications():
			c.handleAuthorizationChanged(ctx)
		case u, ok := <-c.updates:
			if !ok {
				c.handleStreamClosed()
				continue
			}
			c.handleUpdate(ctx, u)
		case res := <-c.geocodeDone:
			c.handleGeocodeResult(ctx, res)
		}
	}
}

func (c *Controller) renderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ds := <-c.mailbox:
			c.presenter.Render(ds)
		case n := <-c.notices:
			c.presenter.Notice(n)
		}
	}
}

// publish replaces any unrendered display state with the current one. Only the Run
// goroutine writes to the mailbox, so the send never blocks after the drain.
func (c *Controller) publish() {
	ds := Derive(c.session, c.state, c.servicesEnabled)
	select {
	case <-c.mailbox:
	default:
	}
	c.mailbox <- ds
}

func (c *Controller) notice(n Notice) {
	select {
	case c.notices <- n:
	default:
		c.logger.Warn("notice queue full, dropping notice", slog.String("title", n.Title))
	}
}

func (c *Controller) handleIntent(ctx context.Context, in intent) {
	switch in {
	case intentToggle:
		if c.state == StateStreaming {
			c.stopStream()
			c.publish()
			return
		}
		c.handleStart(ctx)
	case intentStart:
		if c.state == StateStreaming {
			return
		}
		c.handleStart(ctx)
	case intentStop:
		switch c.state {
		case StateStreaming:
			c.stopStream()
			c.publish()
		case StateAuthorizing:
			c.state = StateIdle
		default:
		}
	}
}

func (c *Controller) handleStart(ctx context.Context) {
	auth := c.locator.AuthorizationStatus()
	switch {
	case auth == geobus.AuthorizationUndetermined:
		c.logger.Debug("requesting location authorization")
		c.state = StateAuthorizing
		c.locator.RequestAuthorization(ctx)
	case auth.Refused():
		c.logger.Warn("location authorization refused", slog.String("authorization", auth.String()))
		c.state = StateIdle
		c.notice(DeniedNotice)
	default:
		c.session.Reset()
		c.servicesEnabled = c.locator.ServicesEnabled()
		c.state = StateIdle
		if c.servicesEnabled {
			c.updates = c.locator.Start(ctx, c.config.DesiredAccuracy)
			c.state = StateStreaming
			c.logger.Info("location acquisition started", c.sessionAttr())
		} else {
			c.logger.Warn("location services are disabled", c.sessionAttr())
		}
		c.publish()
	}
}

func (c *Controller) handleAuthorizationChanged(ctx context.Context) {
	if c.state != StateAuthorizing {
		return
	}
	// An authorization attempt is terminal. A status that is still undetermined is not
	// requested again until the next start intent.
	if auth := c.locator.AuthorizationStatus(); auth == geobus.AuthorizationUndetermined {
		c.logger.Warn("location authorization is still undetermined, giving up",
			slog.String("authorization", auth.String()))
		c.state = StateIdle
		return
	}
	c.handleStart(ctx)
}

func (c *Controller) handleStreamClosed() {
	c.updates = nil
	if c.state != StateStreaming {
		return
	}
	c.logger.Debug("location stream closed", c.sessionAttr())
	c.state = StateIdle
	c.publish()
}

func (c *Controller) handleUpdate(ctx context.Context, u geobus.Update) {
	if c.state != StateStreaming {
		return
	}
	if u.Err != nil {
		if geobus.IsTransient(u.Err) {
			c.logger.Debug("location temporarily unknown", logger.Err(u.Err), c.sessionAttr())
			return
		}
		c.logger.Error("location stream failed", logger.Err(u.Err), c.sessionAttr())
		c.session.LastLocationError = u.Err
		c.stopStream()
		c.publish()
		return
	}

	fix, ok := u.Last()
	if !ok {
		return
	}
	if verdict := c.policy.Judge(c.session.BestFix, fix, c.config.Clock.Now()); verdict != VerdictAccepted {
		c.logger.Debug("ignoring location fix", slog.String("reason", verdict.String()),
			slog.Float64("accuracy", fix.AccuracyMeters), slog.String("source", fix.Source))
		return
	}

	c.session.BestFix = &fix
	c.session.LastLocationError = nil
	c.logger.Debug("accepted location fix", slog.Float64("lat", fix.Lat), slog.Float64("lon", fix.Lon),
		slog.Float64("accuracy", fix.AccuracyMeters), slog.String("source", fix.Source), c.sessionAttr())
	if c.policy.GoodEnough(fix) {
		c.logger.Info("desired accuracy reached", slog.Float64("accuracy", fix.AccuracyMeters), c.sessionAttr())
		c.stopStream()
	}
	if !c.session.GeocodeInFlight {
		c.startGeocode(ctx, fix)
	}
	c.publish()
}

// startGeocode resolves fix on its own goroutine. The result is posted back to Run; since
// only one lookup is in flight at a time, the 1-slot result channel never blocks.
func (c *Controller) startGeocode(ctx context.Context, fix geobus.Fix) {
	c.session.GeocodeInFlight = true
	go func() {
		lookupCtx, cancel := context.WithTimeout(ctx, c.config.GeocodeTimeout)
		defer cancel()
		addrs, err := c.geocoder.Reverse(lookupCtx, fix.Coordinate())
		c.geocodeDone <- geocodeResult{fix: fix, addrs: addrs, err: err}
	}()
}

func (c *Controller) handleGeocodeResult(ctx context.Context, res geocodeResult) {
	c.session.LastGeocodeError = res.err
	c.session.BestAddress = nil
	switch {
	case res.err != nil:
		c.logger.Error("failed to resolve address", logger.Err(res.err), slog.String("geocoder", c.geocoder.Name()),
			c.sessionAttr())
	case len(res.addrs) > 0:
		addr := res.addrs[len(res.addrs)-1]
		c.session.BestAddress = &addr
		c.logger.Debug("address resolved", slog.String("address", addr.DisplayName),
			slog.Bool("cache_hit", addr.CacheHit), c.sessionAttr())
	default:
		c.logger.Debug("no address found for location", c.sessionAttr())
	}
	c.session.GeocodeInFlight = false

	if c.config.FollowUpGeocode && c.session.BestFix != nil && !sameFix(*c.session.BestFix, res.fix) {
		c.logger.Debug("best fix changed during lookup, resolving again", c.sessionAttr())
		c.startGeocode(ctx, *c.session.BestFix)
	}
	c.publish()
}

func (c *Controller) stopStream() {
	c.locator.Stop()
	c.updates = nil
	if c.state == StateStreaming {
		c.logger.Info("location acquisition stopped", c.sessionAttr())
	}
	c.state = StateIdle
}

func (c *Controller) sessionAttr() slog.Attr {
	return slog.String("session", c.session.ID.String())
}

func sameFix(a, b geobus.Fix) bool {
	return a.Lat == b.Lat && a.Lon == b.Lon && a.AccuracyMeters == b.AccuracyMeters && a.At.Equal(b.At)
}
