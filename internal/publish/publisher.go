// go-ld2410
// Copyright (c) 2025 The go-ld2410 Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-ld2410.
//
// go-ld2410 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-ld2410 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ld2410; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package publish sends sensor state and debounced presence to an MQTT
// broker.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ncmreynolds/ld2410"
	"github.com/ncmreynolds/ld2410/internal/config"
)

// Topic suffixes under the configured prefix
const (
	TopicState        = "state"
	TopicPresence     = "presence"
	TopicAvailability = "availability"
)

// Availability payloads. The broker publishes offline as the client's will.
const (
	Online  = "online"
	Offline = "offline"
)

const publishTimeout = 5 * time.Second

// ErrNotConnected is returned when publishing before Connect succeeded
var ErrNotConnected = errors.New("mqtt client not connected")

// Client is the part of paho.Client used by the Publisher
type Client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
}

// Publisher publishes one sensor's readings
type Publisher struct {
	client    Client
	logger    *zap.Logger
	limiter   *rate.Limiter
	prefix    string
	qos       byte
	retain    bool
	throttled atomic.Int64
	failed    atomic.Int64
}

// DefaultClientID derives a stable client id from the machine id, so a
// restarted daemon takes over its previous session.
func DefaultClientID() string {
	id, err := machineid.ProtectedID("ld2410")
	if err != nil || len(id) < 12 {
		return "ld2410-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	}
	return "ld2410-" + id[:12]
}

// New creates a Publisher for cfg. The broker is not contacted until
// Connect.
func New(cfg config.MQTTConfig, logger *zap.Logger) *Publisher {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID()
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetWill(cfg.Topic+"/"+TopicAvailability, Offline, 1, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	p := newPublisher(nil, cfg, logger)
	opts.SetOnConnectHandler(func(paho.Client) { p.announce() })
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.logger.Warn("mqtt connection lost", zap.Error(err))
	})
	p.client = paho.NewClient(opts)
	return p
}

func newPublisher(client Client, cfg config.MQTTConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Publisher{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(limit, 1),
		prefix:  cfg.Topic,
		qos:     cfg.QoS,
		retain:  cfg.Retain,
	}
}

// Connect connects to the broker. Paho reconnects on its own afterwards.
func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Close marks the sensor offline and disconnects
func (p *Publisher) Close() error {
	if p.client.IsConnected() {
		_ = p.publish(TopicAvailability, true, Offline)
	}
	p.client.Disconnect(250)
	return nil
}

func (p *Publisher) announce() {
	if err := p.publish(TopicAvailability, true, Online); err != nil {
		p.logger.Warn("mqtt availability publish failed", zap.Error(err))
	}
}

// StatePayload is the JSON published on the state topic
type StatePayload struct {
	Time               time.Time `json:"time"`
	Target             string    `json:"target"`
	MovingGateEnergy   []uint8   `json:"movingGateEnergy,omitempty"`
	StationaryGates    []uint8   `json:"stationaryGateEnergy,omitempty"`
	MovingDistance     uint16    `json:"movingDistance"`
	StationaryDistance uint16    `json:"stationaryDistance"`
	DetectionDistance  uint16    `json:"detectionDistance"`
	MovingEnergy       uint8     `json:"movingEnergy"`
	StationaryEnergy   uint8     `json:"stationaryEnergy"`
	Present            bool      `json:"present"`
}

func newStatePayload(state ld2410.State) StatePayload {
	r := state.Report
	payload := StatePayload{
		Time:               state.LastReport,
		Target:             r.State.String(),
		MovingDistance:     r.MovingDistance,
		StationaryDistance: r.StationaryDistance,
		DetectionDistance:  r.DetectionDistance,
		MovingEnergy:       r.MovingEnergy,
		StationaryEnergy:   r.StationaryEnergy,
		Present:            r.State.Present(),
	}
	if r.Engineering {
		payload.MovingGateEnergy = append([]uint8(nil), r.MovingGateEnergy[:]...)
		payload.StationaryGates = append([]uint8(nil), r.StationaryGateEnergy[:]...)
	}
	return payload
}

// PublishState publishes a report unless the previous one was sent less
// than the minimum interval ago. It reports whether a publish happened.
func (p *Publisher) PublishState(state ld2410.State) (bool, error) {
	if !state.HaveReport {
		return false, nil
	}
	if !p.limiter.Allow() {
		p.throttled.Add(1)
		return false, nil
	}
	body, err := json.Marshal(newStatePayload(state))
	if err != nil {
		return false, fmt.Errorf("encode state: %w", err)
	}
	return true, p.publish(TopicState, p.retain, body)
}

// PublishPresence publishes a debounced presence change. It is never
// throttled and always retained.
func (p *Publisher) PublishPresence(present bool) error {
	payload := "OFF"
	if present {
		payload = "ON"
	}
	return p.publish(TopicPresence, true, payload)
}

func (p *Publisher) publish(suffix string, retained bool, payload any) error {
	if !p.client.IsConnected() {
		p.failed.Add(1)
		return ErrNotConnected
	}
	token := p.client.Publish(p.prefix+"/"+suffix, p.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.failed.Add(1)
		return fmt.Errorf("mqtt publish %s: timed out", suffix)
	}
	if err := token.Error(); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("mqtt publish %s: %w", suffix, err)
	}
	return nil
}

// Throttled returns how many state publishes were skipped
func (p *Publisher) Throttled() int64 {
	return p.throttled.Load()
}

// Failed returns how many publishes failed
func (p *Publisher) Failed() int64 {
	return p.failed.Load()
}
