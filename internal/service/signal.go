// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals maps SIGUSR1 to the start/stop toggle and SIGUSR2 to stop. Waybar sends
// these from the module's on-click and on-click-right actions.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			if s.controller == nil {
				continue
			}
			switch sig {
			case syscall.SIGUSR1:
				s.logger.Debug("received toggle signal")
				s.controller.Toggle()
			case syscall.SIGUSR2:
				s.logger.Debug("received stop signal")
				s.controller.Stop()
				s.logCurrentLocation()
			}
		}
	}
}

func (s *Service) logCurrentLocation() {
	ds, ok := s.currentState()
	if !ok || ds.Fix == nil {
		s.logger.Info("no location acquired yet")
		return
	}
	address := ""
	if ds.Address != nil {
		address = ds.AddressText
	}
	s.logger.Info("currently acquired location", slog.Float64("latitude", ds.Fix.Lat),
		slog.Float64("longitude", ds.Fix.Lon), slog.Float64("accuracy", ds.Fix.AccuracyMeters),
		slog.String("source", ds.Fix.Source), slog.String("address", address))
}
