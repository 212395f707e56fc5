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

// Package connect opens an LD2410 from a serial path, a network bridge
// link or auto-detection. It is shared by the command line tools.
package connect

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ncmreynolds/ld2410"
	"github.com/ncmreynolds/ld2410/detection"
	// Registers the serial port detector
	_ "github.com/ncmreynolds/ld2410/detection/uart"
	"github.com/ncmreynolds/ld2410/transport/tcp"
	"github.com/ncmreynolds/ld2410/transport/uart"
)

// Options selects and configures the sensor connection
type Options struct {
	// Detector overrides auto-detection, mainly for tests
	Detector ld2410.DeviceDetector
	// Path is a serial port, or a socket:// or tcp:// bridge link. Empty
	// auto-detects a serial sensor.
	Path          string
	DeviceOptions []ld2410.Option
	Baud          int
	Mode          detection.Mode
	Retries       int
	Timeout       time.Duration
	WaitForRadar  bool
}

// DefaultOptions returns options for auto-detection at the factory baud rate
func DefaultOptions() Options {
	return Options{
		Baud:         uart.DefaultBaudRate,
		Mode:         detection.Safe,
		Retries:      ld2410.DefaultConnectionRetries,
		Timeout:      10 * time.Second,
		WaitForRadar: true,
	}
}

// IsNetwork reports whether path names a network bridge rather than a
// serial port.
func IsNetwork(path string) bool {
	return strings.HasPrefix(path, "socket://") || strings.HasPrefix(path, "tcp://")
}

// NewTransport opens path at baud bits per second. Network links ignore
// baud.
func NewTransport(path string, baud int) (ld2410.Transport, error) {
	if IsNetwork(path) {
		ctx, cancel := context.WithTimeout(context.Background(), tcp.DefaultDialTimeout)
		defer cancel()
		transport, err := tcp.Dial(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create TCP transport for %s: %w", path, err)
		}
		return transport, nil
	}

	transport, err := uart.New(path, uart.WithBaudRate(baud))
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

// transportFromDevice opens a detected sensor at the baud rate the
// detector heard it on.
func transportFromDevice(fallbackBaud int) ld2410.TransportFromDeviceFactory {
	return func(device detection.DeviceInfo) (ld2410.Transport, error) {
		if !strings.EqualFold(device.Transport, "uart") {
			return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
		}
		baud := fallbackBaud
		if v, err := strconv.Atoi(device.Metadata[detection.MetaBaudRate]); err == nil && v > 0 {
			baud = v
		}
		return NewTransport(device.Path, baud)
	}
}

func detectorFor(mode detection.Mode) ld2410.DeviceDetector {
	return func(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
		opts.Mode = mode
		return detection.DetectAll(ctx, opts)
	}
}

// Device connects to the sensor described by opts and runs the handshake
// unless WaitForRadar is false.
func Device(ctx context.Context, opts Options) (*ld2410.Device, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if opts.Baud == 0 {
		opts.Baud = uart.DefaultBaudRate
	}

	connectOpts := []ld2410.ConnectOption{
		ld2410.WithDeviceOptions(opts.DeviceOptions...),
	}
	if opts.Retries > 0 {
		connectOpts = append(connectOpts, ld2410.WithConnectionRetries(opts.Retries))
	}
	if !opts.WaitForRadar {
		connectOpts = append(connectOpts, ld2410.WithoutRadarHandshake())
	}

	if opts.Path == "" {
		detector := opts.Detector
		if detector == nil {
			detector = detectorFor(opts.Mode)
		}
		connectOpts = append(connectOpts,
			ld2410.WithAutoDetection(),
			ld2410.WithDeviceDetector(detector),
			ld2410.WithTransportFromDeviceFactory(transportFromDevice(opts.Baud)))
	} else {
		baud := opts.Baud
		connectOpts = append(connectOpts, ld2410.WithTransportFactory(func(path string) (ld2410.Transport, error) {
			return NewTransport(path, baud)
		}))
	}

	device, err := ld2410.ConnectDevice(ctx, opts.Path, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LD2410: %w", err)
	}
	return device, nil
}

// Reopener returns a function reopening the same sensor, for
// polling.DefaultRecoverer.
func Reopener(opts Options) func(ctx context.Context) (*ld2410.Device, error) {
	return func(ctx context.Context) (*ld2410.Device, error) {
		if opts.Path == "" {
			detection.ClearDetectionCache()
		}
		return Device(ctx, opts)
	}
}
