// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"

	"github.com/wneessen/mylocation/internal/acquisition"
	"github.com/wneessen/mylocation/internal/config"
	"github.com/wneessen/mylocation/internal/geobus"
	"github.com/wneessen/mylocation/internal/geocode"
	"github.com/wneessen/mylocation/internal/logger"
	"github.com/wneessen/mylocation/internal/mqtt"
	"github.com/wneessen/mylocation/internal/presenter"
)

const (
	OutputClass = "mylocation"
	NoticeClass = "notice"
)

var ErrLoggerRequired = errors.New("logger is required")

type outputData struct {
	Text    string   `json:"text"`
	Tooltip string   `json:"tooltip"`
	Alt     string   `json:"alt,omitempty"`
	Classes []string `json:"class"`
}

// publisher forwards rendered output to a secondary sink.
type publisher interface {
	Publish(payload []byte) error
	Close()
}

// Service wires the location providers, the geocoder and the acquisition controller together
// and renders every display state as a waybar JSON line.
type Service struct {
	SignalSrc signalSource

	config     *config.Config
	logger     *logger.Logger
	t          *spreak.Localizer
	presenter  *presenter.Presenter
	scheduler  gocron.Scheduler
	geocoder   geocode.Geocoder
	locator    *geobus.Orchestrator
	controller *acquisition.Controller
	publisher  publisher

	// monitorSleep watches for system suspend. Replaced in tests.
	monitorSleep    func(context.Context)
	resumeStreaming atomic.Bool

	outputLock sync.Mutex
	output     io.Writer

	stateLock  sync.RWMutex
	state      acquisition.DisplayState
	stateIsSet bool
}

func New(conf *config.Config, log *logger.Logger, t *spreak.Localizer) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("failed to create service: %w", ErrLoggerRequired)
	}

	pres, err := presenter.New(conf, t)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	service := &Service{
		SignalSrc: stdLibSignalSource{},
		config:    conf,
		logger:    log,
		t:         t,
		presenter: pres,
		output:    os.Stdout,
	}
	service.monitorSleep = service.monitorSleepResume
	return service, nil
}

// Run sets up the providers and the controller and blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	var err error
	if s.geocoder == nil {
		s.geocoder, err = s.selectGeocodeProvider(s.config, s.logger, s.t.Language())
		if err != nil {
			return fmt.Errorf("failed to create geocode provider: %w", err)
		}
	}
	if s.locator == nil {
		providers, err := s.selectGeobusProviders()
		if err != nil {
			return fmt.Errorf("failed to create geobus orchestrator: %w", err)
		}
		s.locator = geobus.NewOrchestrator(s.logger, providers...)
	}
	s.logger.Debug("location providers initialized", slog.Any("providers", s.locator.Providers()),
		slog.String("geocoder", s.geocoder.Name()))

	if s.publisher == nil && s.config.Output.MQTT.Broker != "" {
		pub, err := mqtt.New(mqtt.Config{
			Broker:   s.config.Output.MQTT.Broker,
			Topic:    s.config.Output.MQTT.Topic,
			ClientID: s.config.Output.MQTT.ClientID,
			Username: s.config.Output.MQTT.Username,
			Password: s.config.Output.MQTT.Password,
		}, s.logger)
		if err != nil {
			s.logger.Error("failed to create MQTT publisher, continuing without it", logger.Err(err))
		} else {
			s.publisher = pub
		}
	}
	if s.publisher != nil {
		defer s.publisher.Close()
	}

	s.controller, err = acquisition.New(acquisition.Config{
		DesiredAccuracy: s.config.Location.DesiredAccuracy,
		MaxFixAge:       s.config.Location.MaxFixAge,
		GeocodeTimeout:  s.config.GeoCoder.Timeout,
		FollowUpGeocode: !s.config.GeoCoder.DisableFollowUp,
	}, s.locator, s.geocoder, s, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create acquisition controller: %w", err)
	}

	s.scheduler, err = gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err = s.createScheduledJob(ctx, s.config.Intervals.Output, s.printLocation,
		"location_output_job"); err != nil {
		_ = s.scheduler.Shutdown()
		return err
	}
	s.scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer s.SignalSrc.Stop(sigChan)
		s.HandleSignals(ctx, sigChan)
	}()

	if s.monitorSleep != nil {
		go s.monitorSleep(ctx)
	}

	if s.config.Location.StartOnLaunch {
		s.controller.Start()
	}

	if err = s.controller.Run(ctx); err != nil {
		s.logger.Error("acquisition controller failed", logger.Err(err))
	}
	return s.scheduler.Shutdown()
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// Render stores the display state and prints it. It is called by the acquisition controller.
func (s *Service) Render(ds acquisition.DisplayState) {
	s.stateLock.Lock()
	s.state = ds
	s.stateIsSet = true
	s.stateLock.Unlock()

	s.printLocation(context.Background())
}

// Notice prints a notice in place of the location until the next display state is rendered.
func (s *Service) Notice(n acquisition.Notice) {
	s.logger.Warn("location notice", slog.String("title", n.Title), slog.String("message", n.Message))
	s.writeOutput(outputData{
		Text:    presenter.ModeIcons[acquisition.ModeError] + " " + s.presenter.Localize(n.Title),
		Tooltip: s.presenter.Localize(n.Message),
		Alt:     NoticeClass,
		Classes: []string{OutputClass, NoticeClass},
	})
}

// printLocation renders the last display state, if any.
func (s *Service) printLocation(context.Context) {
	s.stateLock.RLock()
	ds, ok := s.state, s.stateIsSet
	s.stateLock.RUnlock()
	if !ok {
		return
	}

	tplCtx := s.presenter.BuildContext(ds)
	rendered, err := s.presenter.Render(tplCtx)
	if err != nil {
		s.logger.Error("failed to render location template", logger.Err(err))
		return
	}
	s.writeOutput(outputData{
		Text:    rendered["text"],
		Tooltip: rendered["tooltip"],
		Alt:     tplCtx.Mode,
		Classes: []string{OutputClass, tplCtx.Mode},
	})
}

func (s *Service) writeOutput(output outputData) {
	payload, err := json.Marshal(output)
	if err != nil {
		s.logger.Error("failed to encode location output", logger.Err(err))
		return
	}

	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	if _, err = s.output.Write(append(payload, '\n')); err != nil {
		s.logger.Error("failed to write location output", logger.Err(err))
	}
	if s.publisher != nil {
		if err = s.publisher.Publish(payload); err != nil {
			s.logger.Warn("failed to publish location output", logger.Err(err))
		}
	}
}

// currentState returns the last rendered display state.
func (s *Service) currentState() (acquisition.DisplayState, bool) {
	s.stateLock.RLock()
	defer s.stateLock.RUnlock()
	return s.state, s.stateIsSet
}
