// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wneessen/mylocation/internal/logger"
)

const streamBuffer = 16

// Orchestrator merges the updates of multiple providers into a single location stream that
// can be started and stopped. It also aggregates the authorization state of its providers.
type Orchestrator struct {
	logger    *logger.Logger
	providers []Provider
	notify    chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewOrchestrator returns an Orchestrator for the given providers.
func NewOrchestrator(log *logger.Logger, providers ...Provider) *Orchestrator {
	return &Orchestrator{
		logger:    log,
		providers: providers,
		notify:    make(chan struct{}, 1),
	}
}

// Providers returns the names of the configured providers.
func (o *Orchestrator) Providers() []string {
	names := make([]string, 0, len(o.providers))
	for _, p := range o.providers {
		names = append(names, p.Name())
	}
	return names
}

// Start launches every usable provider and returns the merged update stream. A running
// stream is stopped first. The returned channel is closed once all providers have returned
// after Stop or the cancellation of ctx.
func (o *Orchestrator) Start(ctx context.Context, accuracyHint float64) <-chan Update {
	o.Stop()

	streamCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	out := make(chan Update, streamBuffer)
	usable := o.usableProviders()
	if len(usable) == 0 {
		out <- Update{Err: ErrNoProviders}
		close(out)
		return out
	}

	var wg sync.WaitGroup
	for _, p := range usable {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			o.trackProvider(streamCtx, p, accuracyHint, out)
		}(p)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// Stop cancels the running stream, if any.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// AuthorizationStatus reports the combined authorization of all providers. A single granted
// provider is enough to stream.
func (o *Orchestrator) AuthorizationStatus() Authorization {
	if len(o.providers) == 0 {
		return AuthorizationRestricted
	}
	undetermined := false
	for _, p := range o.providers {
		auth, ok := p.(Authorizer)
		if !ok {
			return AuthorizationGranted
		}
		switch auth.AuthorizationStatus() {
		case AuthorizationGranted:
			return AuthorizationGranted
		case AuthorizationUndetermined:
			undetermined = true
		default:
		}
	}
	if undetermined {
		return AuthorizationUndetermined
	}
	return AuthorizationDenied
}

// RequestAuthorization asks every undetermined provider for permission. It returns
// immediately. A signal on Notifications follows once all requests completed, but only if
// the authorization of at least one provider changed.
func (o *Orchestrator) RequestAuthorization(ctx context.Context) {
	go func() {
		changed := false
		for _, p := range o.providers {
			auth, ok := p.(Authorizer)
			if !ok || auth.AuthorizationStatus() != AuthorizationUndetermined {
				continue
			}
			if err := auth.RequestAuthorization(ctx); err != nil {
				o.logger.Warn("authorization request failed", slog.String("provider", p.Name()),
					logger.Err(err))
			}
			if auth.AuthorizationStatus() != AuthorizationUndetermined {
				changed = true
			}
		}
		if !changed {
			o.logger.Debug("location authorization unchanged after request")
			return
		}
		select {
		case o.notify <- struct{}{}:
		default:
		}
	}()
}

// Notifications signals authorization changes.
func (o *Orchestrator) Notifications() <-chan struct{} {
	return o.notify
}

// ServicesEnabled reports whether at least one provider's underlying service is switched on.
func (o *Orchestrator) ServicesEnabled() bool {
	for _, p := range o.providers {
		if sw, ok := p.(Switch); !ok || sw.Enabled() {
			return true
		}
	}
	return false
}

func (o *Orchestrator) usableProviders() []Provider {
	var usable []Provider
	for _, p := range o.providers {
		if sw, ok := p.(Switch); ok && !sw.Enabled() {
			o.logger.Debug("skipping disabled location provider", slog.String("provider", p.Name()))
			continue
		}
		if auth, ok := p.(Authorizer); ok && auth.AuthorizationStatus() != AuthorizationGranted {
			o.logger.Debug("skipping unauthorized location provider", slog.String("provider", p.Name()))
			continue
		}
		usable = append(usable, p)
	}
	return usable
}

// trackProvider forwards the updates of a single provider and restarts its stream with
// backoff whenever it ends before ctx is done.
func (o *Orchestrator) trackProvider(ctx context.Context, p Provider, accuracyHint float64, out chan<- Update) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lookupChan := o.safeLookup(ctx, p, accuracyHint)
		if lookupChan == nil {
			o.logger.Warn("location provider failed to start", slog.String("provider", p.Name()))
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

	stream:
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-lookupChan:
				if !ok {
					if !sleepOrDone(ctx, backoff) {
						return
					}
					backoff = nextBackoff(backoff)
					break stream
				}
				if u.Err != nil {
					u.Err = fmt.Errorf("%s: %w", p.Name(), u.Err)
				}
				select {
				case <-ctx.Done():
					return
				case out <- u:
				}
				backoff = initialBackoff
			}
		}
	}
}

// safeLookup safely invokes the LookupStream method on a Provider and recovers from potential panics.
// Returns a read-only channel of Update or nil if the operation fails.
func (o *Orchestrator) safeLookup(ctx context.Context, provider Provider, accuracyHint float64) (ch <-chan Update) {
	defer func() { _ = recover() }()
	return provider.LookupStream(ctx, accuracyHint)
}
