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

// Package httpapi serves a JSON API over one sensor: live state, debounced
// presence and the configuration commands.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ncmreynolds/ld2410"
	"github.com/ncmreynolds/ld2410/polling"
)

// RequestIDHeader carries the id assigned to every command request
const RequestIDHeader = "X-Request-ID"

// Sensor is the device surface the API drives. *ld2410.Device implements it.
type Sensor interface {
	State() ld2410.State
	IsConnected() bool
	RequestFirmwareVersion(ctx context.Context) (ld2410.FirmwareVersion, error)
	RequestCurrentConfiguration(ctx context.Context) (ld2410.Configuration, error)
	RequestStartEngineeringMode(ctx context.Context) error
	RequestEndEngineeringMode(ctx context.Context) error
	SetMaxValues(ctx context.Context, movingGate, stationaryGate uint8, idleSeconds uint16) error
	SetGateSensitivityThreshold(ctx context.Context, gate uint16, moving, stationary uint8) error
	RequestFactoryReset(ctx context.Context) error
	RequestRestart(ctx context.Context) error
	RequestMACAddress(ctx context.Context) error
	SetBaudRate(ctx context.Context, rate ld2410.BaudRate) error
	SetBluetooth(ctx context.Context, enabled bool) error
}

// Server routes API requests to a Sensor
type Server struct {
	sensor   Sensor
	logger   *zap.Logger
	presence func() polling.PresenceState
	observe  func(command string, err error)
	router   *mux.Router
	version  string
	timeout  time.Duration
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPresence sets the source of the debounced presence, usually
// Poller.Presence.
func WithPresence(fn func() polling.PresenceState) Option {
	return func(s *Server) { s.presence = fn }
}

// WithCommandObserver is called after every command with its outcome
func WithCommandObserver(fn func(command string, err error)) Option {
	return func(s *Server) { s.observe = fn }
}

// WithVersion sets the version reported by /version
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// WithCommandTimeout bounds each command request
func WithCommandTimeout(timeout time.Duration) Option {
	return func(s *Server) { s.timeout = timeout }
}

// New creates the API server
func New(sensor Sensor, opts ...Option) *Server {
	s := &Server{
		sensor:  sensor,
		logger:  zap.NewNop(),
		version: "dev",
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/version", s.getVersion).Methods(http.MethodGet)
	r.HandleFunc("/state", s.getState).Methods(http.MethodGet)
	r.HandleFunc("/presence", s.getPresence).Methods(http.MethodGet)
	r.HandleFunc("/firmware", s.command("ReadFirmwareVersion", s.readFirmware)).Methods(http.MethodGet)
	r.HandleFunc("/mac", s.command("ReadMACAddress", s.readMAC)).Methods(http.MethodGet)
	r.HandleFunc("/config", s.command("ReadParameters", s.readConfig)).Methods(http.MethodGet)
	r.HandleFunc("/config/max", s.command("SetMaxValues", s.setMaxValues)).Methods(http.MethodPut)
	r.HandleFunc("/config/gates/{gate:[0-9]+}", s.command("SetGateSensitivity", s.setGate)).Methods(http.MethodPut)
	r.HandleFunc("/engineering", s.command("EngineeringMode", s.setEngineering)).Methods(http.MethodPut)
	r.HandleFunc("/bluetooth", s.command("SetBluetooth", s.setBluetooth)).Methods(http.MethodPut)
	r.HandleFunc("/baud", s.command("SetBaudRate", s.setBaud)).Methods(http.MethodPut)
	r.HandleFunc("/restart", s.command("Restart", s.restart)).Methods(http.MethodPost)
	r.HandleFunc("/factory-reset", s.command("FactoryReset", s.factoryReset)).Methods(http.MethodPost)
	s.router = r
	return s
}

// Router returns the API routes, for mounting next to other handlers
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ReportView is the JSON form of a report
type ReportView struct {
	Target             string  `json:"target"`
	MovingGateEnergy   []uint8 `json:"movingGateEnergy,omitempty"`
	StationaryEnergies []uint8 `json:"stationaryGateEnergy,omitempty"`
	MovingDistance     uint16  `json:"movingDistance"`
	StationaryDistance uint16  `json:"stationaryDistance"`
	DetectionDistance  uint16  `json:"detectionDistance"`
	MovingEnergy       uint8   `json:"movingEnergy"`
	StationaryEnergy   uint8   `json:"stationaryEnergy"`
	Present            bool    `json:"present"`
	Engineering        bool    `json:"engineering"`
}

// StateView is the JSON form of the driver state
type StateView struct {
	LastReport      *time.Time  `json:"lastReport,omitempty"`
	Report          *ReportView `json:"report,omitempty"`
	Firmware        string      `json:"firmware,omitempty"`
	MAC             string      `json:"mac,omitempty"`
	Reports         uint64      `json:"reports"`
	FrameErrors     uint64      `json:"frameErrors"`
	ProtocolVersion uint16      `json:"protocolVersion,omitempty"`
	Connected       bool        `json:"connected"`
}

// PresenceView is the JSON form of the debounced presence
type PresenceView struct {
	Since    *time.Time `json:"since,omitempty"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
	Present  bool       `json:"present"`
}

// ConfigView is the JSON form of the sensor parameters
type ConfigView struct {
	MotionSensitivity     []uint8 `json:"motionSensitivity"`
	StationarySensitivity []uint8 `json:"stationarySensitivity"`
	IdleTimeout           uint16  `json:"idleTimeout"`
	MaxGate               uint8   `json:"maxGate"`
	MaxMovingGate         uint8   `json:"maxMovingGate"`
	MaxStationaryGate     uint8   `json:"maxStationaryGate"`
}

type errorView struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func newReportView(r ld2410.Report) *ReportView {
	v := &ReportView{
		Target:             r.State.String(),
		MovingDistance:     r.MovingDistance,
		StationaryDistance: r.StationaryDistance,
		DetectionDistance:  r.DetectionDistance,
		MovingEnergy:       r.MovingEnergy,
		StationaryEnergy:   r.StationaryEnergy,
		Present:            r.State.Present(),
		Engineering:        r.Engineering,
	}
	if r.Engineering {
		v.MovingGateEnergy = append([]uint8(nil), r.MovingGateEnergy[:]...)
		v.StationaryEnergies = append([]uint8(nil), r.StationaryGateEnergy[:]...)
	}
	return v
}

func newConfigView(c ld2410.Configuration) ConfigView {
	return ConfigView{
		MotionSensitivity:     append([]uint8(nil), c.MotionSensitivity[:]...),
		StationarySensitivity: append([]uint8(nil), c.StationarySensitivity[:]...),
		IdleTimeout:           c.IdleTimeout,
		MaxGate:               c.MaxGate,
		MaxMovingGate:         c.MaxMovingGate,
		MaxStationaryGate:     c.MaxStationaryGate,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	e := json.NewEncoder(w)
	e.SetIndent("", "    ")
	_ = e.Encode(v)
}

func (s *Server) getVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	st := s.sensor.State()
	view := StateView{
		LastReport:      timePtr(st.LastReport),
		Reports:         st.Reports,
		FrameErrors:     st.FrameErrors,
		ProtocolVersion: st.ProtocolVersion,
		Connected:       s.sensor.IsConnected(),
	}
	if st.HaveReport {
		view.Report = newReportView(st.Report)
	}
	if st.HaveFirmware {
		view.Firmware = st.Firmware.String()
	}
	if len(st.MAC) > 0 {
		view.MAC = st.MAC.String()
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getPresence(w http.ResponseWriter, _ *http.Request) {
	if s.presence == nil {
		st := s.sensor.State()
		writeJSON(w, http.StatusOK, PresenceView{
			Present:  st.HaveReport && st.PresenceDetected(),
			LastSeen: timePtr(st.LastReport),
		})
		return
	}
	p := s.presence()
	writeJSON(w, http.StatusOK, PresenceView{
		Present:  p.Present,
		Since:    timePtr(p.Since),
		LastSeen: timePtr(p.LastSeen),
	})
}

// commandFunc runs one command and returns the response body
type commandFunc func(ctx context.Context, r *http.Request) (any, error)

// command wraps a commandFunc with a request id and a timeout, and maps its
// error to a status code.
func (s *Server) command(name string, fn commandFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set(RequestIDHeader, id)

		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		start := time.Now()
		body, err := fn(ctx, r)
		if s.observe != nil && !isBadRequest(err) {
			s.observe(name, err)
		}

		log := s.logger.With(zap.String("request_id", id), zap.String("command", name),
			zap.Duration("elapsed", time.Since(start)))
		if err != nil {
			status := statusFor(err)
			log.Warn("command failed", zap.Int("status", status), zap.Error(err))
			writeJSON(w, status, errorView{Error: err.Error(), RequestID: id})
			return
		}
		log.Info("command completed")
		writeJSON(w, http.StatusOK, body)
	}
}

// badRequestError marks malformed request bodies
type badRequestError struct{ err error }

func (e badRequestError) Error() string { return e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func isBadRequest(err error) bool {
	var br badRequestError
	return errors.As(err, &br) || errors.Is(err, ld2410.ErrInvalidParameter) ||
		errors.Is(err, ld2410.ErrGateOutOfRange)
}

func statusFor(err error) int {
	switch {
	case isBadRequest(err):
		return http.StatusBadRequest
	case errors.Is(err, ld2410.ErrCommandRejected):
		return http.StatusBadGateway
	case errors.Is(err, ld2410.ErrCommandTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case ld2410.IsFatal(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequestError{fmt.Errorf("invalid request body: %w", err)}
	}
	return nil
}

type okView struct {
	Status string `json:"status"`
}

var okResponse = okView{Status: "ok"}

func (s *Server) readFirmware(ctx context.Context, _ *http.Request) (any, error) {
	v, err := s.sensor.RequestFirmwareVersion(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"version": v.String(), "major": v.Major, "minor": v.Minor, "bugfix": v.Bugfix}, nil
}

func (s *Server) readMAC(ctx context.Context, _ *http.Request) (any, error) {
	if err := s.sensor.RequestMACAddress(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"mac": s.sensor.State().MAC.String()}, nil
}

func (s *Server) readConfig(ctx context.Context, _ *http.Request) (any, error) {
	c, err := s.sensor.RequestCurrentConfiguration(ctx)
	if err != nil {
		return nil, err
	}
	return newConfigView(c), nil
}

type maxValuesRequest struct {
	MovingGate     uint8  `json:"movingGate"`
	StationaryGate uint8  `json:"stationaryGate"`
	IdleSeconds    uint16 `json:"idleSeconds"`
}

func (s *Server) setMaxValues(ctx context.Context, r *http.Request) (any, error) {
	var req maxValuesRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.sensor.SetMaxValues(ctx, req.MovingGate, req.StationaryGate, req.IdleSeconds); err != nil {
		return nil, err
	}
	return okResponse, nil
}

type gateRequest struct {
	Moving     uint8 `json:"moving"`
	Stationary uint8 `json:"stationary"`
}

func (s *Server) setGate(ctx context.Context, r *http.Request) (any, error) {
	gate, err := strconv.ParseUint(mux.Vars(r)["gate"], 10, 16)
	if err != nil {
		return nil, badRequestError{fmt.Errorf("invalid gate: %w", err)}
	}
	var req gateRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.sensor.SetGateSensitivityThreshold(ctx, uint16(gate), req.Moving, req.Stationary); err != nil {
		return nil, err
	}
	return okResponse, nil
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func decodeEnabled(r *http.Request) (bool, error) {
	var req enabledRequest
	if err := decode(r, &req); err != nil {
		return false, err
	}
	if req.Enabled == nil {
		return false, badRequestError{errors.New(`missing "enabled"`)}
	}
	return *req.Enabled, nil
}

func (s *Server) setEngineering(ctx context.Context, r *http.Request) (any, error) {
	enabled, err := decodeEnabled(r)
	if err != nil {
		return nil, err
	}
	if enabled {
		err = s.sensor.RequestStartEngineeringMode(ctx)
	} else {
		err = s.sensor.RequestEndEngineeringMode(ctx)
	}
	if err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) setBluetooth(ctx context.Context, r *http.Request) (any, error) {
	enabled, err := decodeEnabled(r)
	if err != nil {
		return nil, err
	}
	if err := s.sensor.SetBluetooth(ctx, enabled); err != nil {
		return nil, err
	}
	return okResponse, nil
}

type baudRequest struct {
	Rate int `json:"rate"`
}

func (s *Server) setBaud(ctx context.Context, r *http.Request) (any, error) {
	var req baudRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	rate, err := ld2410.BaudRateFor(req.Rate)
	if err != nil {
		return nil, err
	}
	if err := s.sensor.SetBaudRate(ctx, rate); err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok", "note": "takes effect after restart"}, nil
}

func (s *Server) restart(ctx context.Context, _ *http.Request) (any, error) {
	if err := s.sensor.RequestRestart(ctx); err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) factoryReset(ctx context.Context, _ *http.Request) (any, error) {
	if err := s.sensor.RequestFactoryReset(ctx); err != nil {
		return nil, err
	}
	return okResponse, nil
}
