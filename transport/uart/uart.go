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

// Package uart provides a serial port transport for LD2410 sensors.
package uart

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ncmreynolds/ld2410"
	"go.bug.st/serial"
)

// DefaultBaudRate is the sensor's factory line speed
const DefaultBaudRate = 256000

// Transport implements ld2410.Transport over a serial port. Reads never
// block for longer than the port's short read timeout.
type Transport struct {
	*ld2410.StreamTransport
	port     serial.Port
	portName string
	baudRate int
	mu       sync.Mutex
}

// Option configures a UART transport
type Option func(*config)

type config struct {
	baudRate int
}

// WithBaudRate opens the port at a speed other than the factory default
func WithBaudRate(bps int) Option {
	return func(c *config) {
		c.baudRate = bps
	}
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// getReadTimeout returns the platform read timeout. Windows drivers round
// very short timeouts up unpredictably, so they get a little more.
func getReadTimeout() time.Duration {
	if isWindows() {
		return 5 * time.Millisecond
	}
	return time.Millisecond
}

func mode(bps int) *serial.Mode {
	return &serial.Mode{
		BaudRate: bps,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// New opens portName at 256000 baud, 8N1.
func New(portName string, opts ...Option) (*Transport, error) {
	cfg := config{baudRate: DefaultBaudRate}
	for _, opt := range opts {
		opt(&cfg)
	}

	port, err := serial.Open(portName, mode(cfg.baudRate))
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(getReadTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	// Discard whatever the sensor streamed before we were listening
	_ = port.ResetInputBuffer()

	return newTransport(port, portName, cfg.baudRate), nil
}

func newTransport(port serial.Port, portName string, baudRate int) *Transport {
	return &Transport{
		StreamTransport: ld2410.NewStreamTransport(port, ld2410.TransportUART, portName),
		port:            port,
		portName:        portName,
		baudRate:        baudRate,
	}
}

// Write sends p and waits for the port to drain it
func (t *Transport) Write(p []byte) (int, error) {
	n, err := t.StreamTransport.Write(p)
	if err != nil {
		return n, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.drainWithRetry("write"); err != nil {
		return n, ld2410.NewTransportWriteError("drain", t.portName, err)
	}
	return n, nil
}

// SetBaudRate changes the host side line speed. Use it after the sensor
// was told to switch speed and restarted.
func (t *Transport) SetBaudRate(bps int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.port.SetMode(mode(bps)); err != nil {
		return fmt.Errorf("UART set baud rate %d failed: %w", bps, err)
	}
	t.baudRate = bps
	return nil
}

// BaudRate returns the current host side line speed
func (t *Transport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baudRate
}

// Flush discards unread input held by the OS driver
func (t *Transport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("UART flush failed: %w", err)
	}
	return nil
}

// PortName returns the serial port the transport was opened on
func (t *Transport) PortName() string {
	return t.portName
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
			continue
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

var _ ld2410.Transport = (*Transport)(nil)
