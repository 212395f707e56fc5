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

// Package metrics exposes sensor readings and driver health as Prometheus
// collectors.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ncmreynolds/ld2410"
)

const namespace = "ld2410"

// Command results used as the result label
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultTimeout  = "timeout"
	ResultError    = "error"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// SensorMetrics are the collectors for one sensor
type SensorMetrics struct {
	Reports         prometheus.Counter
	FrameErrors     prometheus.Counter
	PollErrors      prometheus.Counter
	PresenceChanges prometheus.Counter
	Presence        prometheus.Gauge
	Connected       prometheus.Gauge
	Distance        *prometheus.GaugeVec   // labels: target=moving|stationary|detection
	Energy          *prometheus.GaugeVec   // labels: target=moving|stationary
	GateEnergy      *prometheus.GaugeVec   // labels: target, gate
	Commands        *prometheus.CounterVec // labels: command, result

	lastFrameErrors uint64
	lastReports     uint64
}

// NewSensorMetrics registers and returns the sensor collectors
func NewSensorMetrics(reg prometheus.Registerer) *SensorMetrics {
	m := &SensorMetrics{
		Reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Total report frames decoded.",
		}),
		FrameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Total malformed or overrun frames dropped.",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Total transport errors seen by the read loop.",
		}),
		PresenceChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_changes_total",
			Help:      "Total debounced presence transitions.",
		}),
		Presence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence",
			Help:      "Debounced presence, 1 while a target is present.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the sensor has sent a frame recently.",
		}),
		Distance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_distance_cm",
			Help:      "Target distance from the latest report.",
		}, []string{"target"}),
		Energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_energy",
			Help:      "Target energy (0-100) from the latest report.",
		}, []string{"target"}),
		GateEnergy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_energy",
			Help:      "Per-gate energy from the latest engineering report.",
		}, []string{"target", "gate"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Configuration commands by result.",
		}, []string{"command", "result"}),
	}
	reg.MustRegister(m.Reports, m.FrameErrors, m.PollErrors, m.PresenceChanges, m.Presence,
		m.Connected, m.Distance, m.Energy, m.GateEnergy, m.Commands)
	return m
}

// ObserveState updates the gauges from a state snapshot. The driver's
// counters are monotonic, so only their growth since the last call is added.
// Call it from one goroutine.
func (m *SensorMetrics) ObserveState(state ld2410.State) {
	if state.Reports > m.lastReports {
		m.Reports.Add(float64(state.Reports - m.lastReports))
	}
	m.lastReports = state.Reports
	if state.FrameErrors > m.lastFrameErrors {
		m.FrameErrors.Add(float64(state.FrameErrors - m.lastFrameErrors))
	}
	m.lastFrameErrors = state.FrameErrors

	if !state.HaveReport {
		return
	}
	r := state.Report
	m.Distance.WithLabelValues("moving").Set(float64(r.MovingDistance))
	m.Distance.WithLabelValues("stationary").Set(float64(r.StationaryDistance))
	m.Distance.WithLabelValues("detection").Set(float64(r.DetectionDistance))
	m.Energy.WithLabelValues("moving").Set(float64(r.MovingEnergy))
	m.Energy.WithLabelValues("stationary").Set(float64(r.StationaryEnergy))

	if !r.Engineering {
		return
	}
	for gate := range ld2410.GateCount {
		label := strconv.Itoa(gate)
		m.GateEnergy.WithLabelValues("moving", label).Set(float64(r.MovingGateEnergy[gate]))
		m.GateEnergy.WithLabelValues("stationary", label).Set(float64(r.StationaryGateEnergy[gate]))
	}
}

// ObservePresence records a debounced presence transition
func (m *SensorMetrics) ObservePresence(present bool) {
	m.PresenceChanges.Inc()
	m.Presence.Set(boolToFloat(present))
}

// SetConnected records the link liveness
func (m *SensorMetrics) SetConnected(connected bool) {
	m.Connected.Set(boolToFloat(connected))
}

// ObserveCommand counts a command outcome
func (m *SensorMetrics) ObserveCommand(command string, err error) {
	m.Commands.WithLabelValues(command, CommandResult(err)).Inc()
}

// CommandResult classifies a command error for the result label
func CommandResult(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ld2410.ErrCommandRejected):
		return ResultRejected
	case errors.Is(err, ld2410.ErrCommandTimeout):
		return ResultTimeout
	default:
		return ResultError
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
