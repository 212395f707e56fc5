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

package ld2410

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/ncmreynolds/ld2410/internal/frame"
)

// Transport is the byte source the driver reads from and writes commands
// to. Available and ReadByte must not block; the driver polls.
type Transport interface {
	// Available returns the number of bytes that can be read without blocking
	Available() (int, error)

	// ReadByte returns the next buffered byte
	ReadByte() (byte, error)

	// Write sends raw bytes to the sensor
	Write(p []byte) (int, error)

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is open
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportTCP represents a TCP serial bridge such as ser2net.
	TransportTCP TransportType = "tcp"
	// TransportStream represents any other io.ReadWriter.
	TransportStream TransportType = "stream"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// StreamTransport adapts an io.ReadWriter whose Read returns promptly with
// zero bytes (or a deadline error) when nothing is pending. Serial ports with
// a short read timeout and net.Conns with read deadlines both qualify.
type StreamTransport struct {
	rw      io.ReadWriter
	name    string
	kind    TransportType
	buf     []byte
	scratch []byte
	mu      sync.Mutex
	closed  bool
}

// NewStreamTransport wraps rw. The name identifies the port in errors.
func NewStreamTransport(rw io.ReadWriter, kind TransportType, name string) *StreamTransport {
	if kind == "" {
		kind = TransportStream
	}
	return &StreamTransport{
		rw:      rw,
		name:    name,
		kind:    kind,
		scratch: make([]byte, 256),
	}
}

// Available implements Transport. When nothing is buffered it performs one
// short read from the underlying stream.
func (t *StreamTransport) Available() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, NewTransportClosedError("available", t.name)
	}
	if len(t.buf) > 0 {
		return len(t.buf), nil
	}

	n, err := t.rw.Read(t.scratch)
	if n > 0 {
		t.buf = append(t.buf, t.scratch[:n]...)
	}
	if err != nil && !isReadTimeout(err) {
		if IsFatal(err) {
			return len(t.buf), NewTransportError("read", t.name, err, ErrorTypePermanent)
		}
		return len(t.buf), NewTransportReadError("read", t.name, err)
	}
	return len(t.buf), nil
}

// ReadByte implements Transport
func (t *StreamTransport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, NewTransportClosedError("read", t.name)
	}
	if len(t.buf) == 0 {
		return 0, NewTransportReadError("read", t.name, io.ErrNoProgress)
	}
	b := t.buf[0]
	t.buf = t.buf[1:]
	return b, nil
}

// Write implements Transport
func (t *StreamTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, NewTransportClosedError("write", t.name)
	}
	n, err := t.rw.Write(p)
	if err != nil {
		if IsFatal(err) {
			return n, NewTransportError("write", t.name, err, ErrorTypePermanent)
		}
		return n, NewTransportWriteError("write", t.name, err)
	}
	return n, nil
}

// Close implements Transport. The underlying stream is closed when it
// implements io.Closer.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.buf = nil
	if c, ok := t.rw.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return NewTransportError("close", t.name, err, ErrorTypePermanent)
		}
	}
	return nil
}

// IsConnected implements Transport
func (t *StreamTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type implements Transport
func (t *StreamTransport) Type() TransportType {
	return t.kind
}

// Name returns the port identifier given at construction
func (t *StreamTransport) Name() string {
	return t.name
}

func isReadTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// MockTransport provides a scripted Transport for testing. Frames written
// to it are decoded for their command word; configured responses for that
// word are queued for reading.
type MockTransport struct {
	responses map[byte][][]byte
	callCount map[byte]int
	errorMap  map[byte]error
	responder func(cmd byte, payload []byte) [][]byte
	readErr   error
	rx        []byte
	written   [][]byte
	mu        sync.RWMutex
	connected bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		responses: make(map[byte][][]byte),
		callCount: make(map[byte]int),
		errorMap:  make(map[byte]error),
	}
}

// Available implements Transport
func (m *MockTransport) Available() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return 0, NewTransportClosedError("available", "mock")
	}
	if m.readErr != nil {
		return 0, m.readErr
	}
	return len(m.rx), nil
}

// ReadByte implements Transport
func (m *MockTransport) ReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, NewTransportClosedError("read", "mock")
	}
	if len(m.rx) == 0 {
		return 0, NewTransportReadError("read", "mock", io.ErrNoProgress)
	}
	b := m.rx[0]
	m.rx = m.rx[1:]
	return b, nil
}

// Write implements Transport
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, NewTransportClosedError("write", "mock")
	}
	m.written = append(m.written, append([]byte(nil), p...))

	cmd, ok := frame.CommandWord(p)
	if !ok {
		return len(p), nil
	}
	m.callCount[cmd]++
	if err, exists := m.errorMap[cmd]; exists {
		return 0, err
	}

	if queued := m.responses[cmd]; len(queued) > 0 {
		m.rx = append(m.rx, queued[0]...)
		if len(queued) > 1 {
			m.responses[cmd] = queued[1:]
		}
		return len(p), nil
	}
	if m.responder != nil {
		for _, out := range m.responder(cmd, frame.CommandPayload(p)) {
			m.rx = append(m.rx, out...)
		}
	}
	return len(p), nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetResponse configures the bytes queued after a command with word cmd is
// written. With several responses they are used in order and the last one
// repeats.
func (m *MockTransport) SetResponse(cmd byte, responses ...[]byte) {
	m.mu.Lock()
	m.responses[cmd] = responses
	m.mu.Unlock()
}

// SetResponder installs a fallback used for commands without a configured
// response.
func (m *MockTransport) SetResponder(fn func(cmd byte, payload []byte) [][]byte) {
	m.mu.Lock()
	m.responder = fn
	m.mu.Unlock()
}

// SetError configures an error to be returned when writing command cmd
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	m.errorMap[cmd] = err
	m.mu.Unlock()
}

// ClearError removes error injection for a command
func (m *MockTransport) ClearError(cmd byte) {
	m.mu.Lock()
	delete(m.errorMap, cmd)
	m.mu.Unlock()
}

// SetReadError makes Available fail until cleared with nil
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// Inject queues bytes as if the sensor had sent them
func (m *MockTransport) Inject(data ...[]byte) {
	m.mu.Lock()
	for _, d := range data {
		m.rx = append(m.rx, d...)
	}
	m.mu.Unlock()
}

// Pending returns the number of queued, unread bytes
func (m *MockTransport) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rx)
}

// GetCallCount returns how many times a command was written
func (m *MockTransport) GetCallCount(cmd byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[cmd]
}

// Written returns a copy of every write, in order
func (m *MockTransport) Written() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// WrittenCommands returns the command words written, in order
func (m *MockTransport) WrittenCommands() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []byte
	for _, w := range m.written {
		if cmd, ok := frame.CommandWord(w); ok {
			out = append(out, cmd)
		}
	}
	return out
}
