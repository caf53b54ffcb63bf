// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package mqtt publishes the rendered location state to an MQTT broker.
package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/wneessen/mylocation/internal/logger"
)

const (
	// DefaultTimeout bounds connecting and publishing.
	DefaultTimeout = time.Second * 10

	disconnectQuiesce = 250
	publishQoS        = 1
)

var (
	ErrNoBroker      = errors.New("no MQTT broker configured")
	ErrNoTopic       = errors.New("no MQTT topic configured")
	ErrTimeout       = errors.New("timed out waiting for MQTT broker")
	ErrNotConnected  = errors.New("not connected to MQTT broker")
	ErrLoggerMissing = errors.New("logger is required")
)

// client is the subset of paho.Client the publisher needs.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Config configures the connection to the broker.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// Publisher sends retained messages to a single topic, so that new subscribers
// immediately see the latest state.
type Publisher struct {
	client  client
	topic   string
	timeout time.Duration
	log     *logger.Logger
}

// New connects to the configured broker.
func New(conf Config, log *logger.Logger) (*Publisher, error) {
	if log == nil {
		return nil, ErrLoggerMissing
	}
	if conf.Broker == "" {
		return nil, ErrNoBroker
	}
	if conf.Topic == "" {
		return nil, ErrNoTopic
	}

	opts := paho.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(conf.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(DefaultTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("connection to MQTT broker lost", logger.Err(err))
		})
	if conf.Username != "" {
		opts.SetUsername(conf.Username).SetPassword(conf.Password)
	}

	pub := newPublisher(paho.NewClient(opts), conf.Topic, log)
	if err := pub.connect(); err != nil {
		return nil, err
	}
	log.Info("connected to MQTT broker", "broker", conf.Broker, "topic", conf.Topic)
	return pub, nil
}

func newPublisher(c client, topic string, log *logger.Logger) *Publisher {
	return &Publisher{
		client:  c,
		topic:   topic,
		timeout: DefaultTimeout,
		log:     log,
	}
}

func (p *Publisher) connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("failed to connect to MQTT broker: %w", ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// Publish sends payload as a retained message.
func (p *Publisher) Publish(payload []byte) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.Publish(p.topic, publishQoS, true, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

// Write implements io.Writer so the publisher can be used as an output sink.
func (p *Publisher) Write(payload []byte) (int, error) {
	if err := p.Publish(payload); err != nil {
		return 0, err
	}
	return len(payload), nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
	p.log.Debug("disconnected from MQTT broker")
}
