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

// Package uart detects LD2410 sensors on serial ports. Importing it
// registers the detector with the detection package.
package uart

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ncmreynolds/ld2410"
	"github.com/ncmreynolds/ld2410/detection"
	"github.com/ncmreynolds/ld2410/transport/uart"
	"go.bug.st/serial/enumerator"
)

const (
	transportName = "uart"
	// probeCommandTimeout is generous since a busy bridge may lag
	probeCommandTimeout = 200 * time.Millisecond
	probeTimeout        = 2 * time.Second
)

type probeFunc func(ctx context.Context, path string, baud int, opts *detection.Options) (probeResult, bool)

type probeResult struct {
	firmware string
}

// detector implements the Detector interface for serial ports
type detector struct {
	listPorts func() ([]*enumerator.PortDetails, error)
	probe     probeFunc
}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{
		listPorts: enumerator.GetDetailedPortsList,
		probe:     probeDevice,
	}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return transportName
}

// Detect searches for sensors on serial ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if ctx.Err() != nil {
			break
		}
		if device, ok := d.processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// processPort decides whether a port is a sensor, probing it when the mode
// allows
func (d *detector) processPort(
	ctx context.Context, port *enumerator.PortDetails, opts *detection.Options,
) (detection.DeviceInfo, bool) {
	vidpid := ""
	if port.IsUSB {
		vidpid = detection.FormatVIDPID(port.VID, port.PID)
	}
	if vidpid != "" && detection.IsBlocked(vidpid, opts.Blocklist) {
		return detection.DeviceInfo{}, false
	}
	if detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	device := newDeviceInfo(port, vidpid)
	_, bridge := detection.KnownBridge(vidpid)
	if bridge {
		device.Confidence = detection.Medium
	}

	switch opts.Mode {
	case detection.Passive:
		return device, bridge
	case detection.Safe:
		// Built-in ports are never opened in safe mode
		if !port.IsUSB {
			return detection.DeviceInfo{}, false
		}
	}

	for _, baud := range baudRates(opts) {
		result, ok := d.probeWithTimeout(ctx, port.Name, baud, opts)
		if !ok {
			continue
		}
		device.Confidence = detection.High
		device.Metadata[detection.MetaBaudRate] = strconv.Itoa(baud)
		if result.firmware != "" {
			device.Metadata[detection.MetaFirmware] = result.firmware
		}
		return device, true
	}

	// A silent bridge listed here would shadow a real sensor enumerating later
	return detection.DeviceInfo{}, false
}

func (d *detector) probeWithTimeout(
	ctx context.Context, path string, baud int, opts *detection.Options,
) (probeResult, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return d.probe(probeCtx, path, baud, opts)
}

func baudRates(opts *detection.Options) []int {
	if len(opts.BaudRates) == 0 {
		return []int{uart.DefaultBaudRate}
	}
	return opts.BaudRates
}

func newDeviceInfo(port *enumerator.PortDetails, vidpid string) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  transportName,
		Path:       port.Name,
		Name:       port.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	if vidpid != "" {
		device.Metadata[detection.MetaVIDPID] = vidpid
		if bridge, ok := detection.KnownBridge(vidpid); ok {
			device.Metadata[detection.MetaManufacturer] = bridge
		}
	}
	if port.Product != "" {
		device.Metadata[detection.MetaProduct] = port.Product
		device.Name = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata[detection.MetaSerial] = port.SerialNumber
	}
	return device
}

// probeDevice opens the port once at the given speed. No retries: a port
// that is not a sensor should be touched as little as possible.
func probeDevice(ctx context.Context, path string, baud int, opts *detection.Options) (probeResult, bool) {
	transport, err := uart.New(path, uart.WithBaudRate(baud))
	if err != nil {
		return probeResult{}, false
	}
	defer func() { _ = transport.Close() }()

	return probeTransport(ctx, transport, opts.Mode, opts.ListenTime)
}

// probeTransport listens for report frames and, in Full mode, asks for the
// firmware version.
func probeTransport(
	ctx context.Context, transport ld2410.Transport, mode detection.Mode, listen time.Duration,
) (probeResult, bool) {
	device, err := ld2410.New(transport, ld2410.WithCommandTimeout(probeCommandTimeout))
	if err != nil {
		return probeResult{}, false
	}

	heard := listenForReports(ctx, device, listen)
	if mode != detection.Full {
		return probeResult{}, heard
	}

	fw, err := device.RequestFirmwareVersion(ctx)
	if err != nil {
		return probeResult{}, heard
	}
	return probeResult{firmware: fw.String()}, true
}

func listenForReports(ctx context.Context, device *ld2410.Device, listen time.Duration) bool {
	deadline := time.Now().Add(listen)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		if _, err := device.Read(); err != nil {
			return false
		}
		if device.State().HaveReport {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}
