// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/mylocation/internal/logger"
)

const (
	dbusInterface   = "org.freedesktop.login1.Manager"
	dbusWatchMember = "PrepareForSleep"

	debounceWindow   = 2 // seconds
	signalBufferSize = 8

	busReconnectDelay   = 5 * time.Second
	networkWakeupDelay  = 10 * time.Second
	reconnectDelay      = 2 * time.Second
	subscribeRetryDelay = 10 * time.Second
)

// monitorSleepResume follows logind's PrepareForSleep signal on the system bus until ctx is
// canceled. A lost bus connection is re-established.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResumeUnix int64
	for {
		conn := s.connectToSystemBus(ctx)
		if conn == nil {
			return
		}
		if !s.setupSleepMonitoring(ctx, conn) {
			continue
		}

		sigCh := make(chan *dbus.Signal, signalBufferSize)
		conn.Signal(sigCh)
		s.logger.Debug("watching for system sleep", slog.String("interface", dbusInterface),
			slog.String("member", dbusWatchMember))
		s.handleSleepSignals(ctx, sigCh, &lastResumeUnix)

		conn.RemoveSignal(sigCh)
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close system bus connection", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// connectToSystemBus retries until the system bus is reachable or ctx is canceled, in which
// case it returns nil. The connection is closed once ctx is done.
func (s *Service) connectToSystemBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := dbus.ConnectSystemBus()
		if err == nil {
			context.AfterFunc(ctx, func() { _ = conn.Close() })
			return conn
		}
		s.logger.Debug("system bus not reachable", logger.Err(err))
		select {
		case <-time.After(busReconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// setupSleepMonitoring adds the match rule for PrepareForSleep. On failure the connection is
// closed and false is returned after a back-off.
func (s *Service) setupSleepMonitoring(ctx context.Context, conn *dbus.Conn) bool {
	err := conn.AddMatchSignal(dbus.WithMatchInterface(dbusInterface), dbus.WithMatchMember(dbusWatchMember))
	if err == nil {
		return true
	}
	s.logger.Error("failed to subscribe to sleep signal", slog.String("interface", dbusInterface),
		slog.String("member", dbusWatchMember), logger.Err(err))
	_ = conn.Close()
	select {
	case <-time.After(subscribeRetryDelay):
	case <-ctx.Done():
	}
	return false
}

func (s *Service) handleSleepSignals(ctx context.Context, sigCh chan *dbus.Signal, lastResumeUnix *int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				return
			}
			s.processSleepSignal(ctx, sgn, lastResumeUnix)
		}
	}
}

// processSleepSignal stops a running acquisition when the system suspends and resumes it
// after wake-up. The GPS receiver and network are gone while suspended, so the stream would
// only produce errors.
func (s *Service) processSleepSignal(ctx context.Context, sgn *dbus.Signal, lastResumeUnix *int64) {
	if len(sgn.Body) != 1 {
		return
	}
	sleeping, ok := sgn.Body[0].(bool)
	if !ok {
		return
	}
	if sleeping {
		s.handleSleepEvent()
		return
	}
	s.handleResumeEvent(ctx, lastResumeUnix)
}

// handleSleepEvent remembers whether an acquisition was running and stops it.
func (s *Service) handleSleepEvent() {
	if s.controller == nil {
		return
	}
	ds, ok := s.currentState()
	s.resumeStreaming.Store(ok && ds.Streaming)
	s.logger.Debug("system is going to sleep, stopping location acquisition")
	s.controller.Stop()
}

// handleResumeEvent restarts the acquisition that was stopped by handleSleepEvent. Multiple
// consecutive resume events are debounced and the network gets some time to come up.
func (s *Service) handleResumeEvent(ctx context.Context, lastResumeUnix *int64) {
	now := time.Now().Unix()

	if now-atomic.LoadInt64(lastResumeUnix) < debounceWindow {
		return
	}
	atomic.StoreInt64(lastResumeUnix, now)

	if s.controller == nil || !s.resumeStreaming.Swap(false) {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(networkWakeupDelay):
	}

	s.logger.Debug("resumed from sleep, restarting location acquisition")
	s.controller.Start()
}
