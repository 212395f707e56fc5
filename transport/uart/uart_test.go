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

package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"testing"
	"time"

	"github.com/ncmreynolds/ld2410"
	virt "github.com/ncmreynolds/ld2410/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// errPortClosed is returned when operations are attempted on a closed port
var errPortClosed = errors.New("port is closed")

// MockSerialPort wraps VirtualLD2410 to implement serial.Port interface
type MockSerialPort struct {
	backend     io.ReadWriter
	mode        *serial.Mode
	drainErrs   []error
	readTimeout time.Duration
	drains      int
	resets      int
	closed      bool
}

// NewMockSerialPort creates a mock serial port backed by the wire simulator
func NewMockSerialPort(sim *virt.VirtualLD2410) *MockSerialPort {
	return &MockSerialPort{
		backend:     sim,
		readTimeout: 100 * time.Millisecond,
	}
}

// NewJitteryMockSerialPort creates a mock serial port with jitter simulation
func NewJitteryMockSerialPort(sim *virt.VirtualLD2410, config virt.JitterConfig) *MockSerialPort {
	return &MockSerialPort{
		backend:     virt.NewJitteryConnection(sim, config),
		readTimeout: 100 * time.Millisecond,
	}
}

func (m *MockSerialPort) SetMode(mode *serial.Mode) error {
	m.mode = mode
	return nil
}

func (m *MockSerialPort) Read(p []byte) (n int, err error) {
	if m.closed {
		return 0, errPortClosed
	}
	n, err = m.backend.Read(p)
	if err != nil {
		return n, fmt.Errorf("mock read: %w", err)
	}
	return n, nil
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	if m.closed {
		return 0, errPortClosed
	}
	n, err = m.backend.Write(p)
	if err != nil {
		return n, fmt.Errorf("mock write: %w", err)
	}
	return n, nil
}

func (m *MockSerialPort) Drain() error {
	m.drains++
	if len(m.drainErrs) > 0 {
		err := m.drainErrs[0]
		m.drainErrs = m.drainErrs[1:]
		return err
	}
	return nil
}

func (m *MockSerialPort) ResetInputBuffer() error {
	m.resets++
	return nil
}

func (*MockSerialPort) ResetOutputBuffer() error {
	return nil
}

func (*MockSerialPort) SetDTR(_ bool) error {
	return nil
}

func (*MockSerialPort) SetRTS(_ bool) error {
	return nil
}

func (*MockSerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (m *MockSerialPort) SetReadTimeout(t time.Duration) error {
	m.readTimeout = t
	return nil
}

func (m *MockSerialPort) Close() error {
	m.closed = true
	return nil
}

func (*MockSerialPort) Break(_ time.Duration) error {
	return nil
}

// Verify interface implementation
var _ serial.Port = (*MockSerialPort)(nil)

func newTestTransport(port *MockSerialPort) *Transport {
	return newTransport(port, "mock://test", DefaultBaudRate)
}

func TestUART_FirmwareVersion(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualLD2410()
	sim.SetFirmwareVersion(2, 0x02, 0x22090712)
	port := NewMockSerialPort(sim)
	transport := newTestTransport(port)

	device, err := ld2410.New(transport)
	require.NoError(t, err)

	fw, err := device.RequestFirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "V2.02.22090712", fw.String())
	assert.Equal(t, 3, port.drains, "every command frame is drained")
	assert.Equal(t, ld2410.TransportUART, transport.Type())
	assert.Equal(t, "mock://test", transport.PortName())
}

func TestUART_ReportsUnderJitter(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualLD2410()
	sim.SetTarget(virt.Target{State: 0x02, StationaryDistance: 120, StationaryEnergy: 55})
	transport := newTestTransport(NewJitteryMockSerialPort(sim, virt.JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
		Noise:            3,
		Seed:             42,
	}))

	device, err := ld2410.New(transport)
	require.NoError(t, err)

	for range 10 {
		sim.EmitReport()
	}
	deadline := time.Now().Add(2 * time.Second)
	for device.State().Reports < 10 && time.Now().Before(deadline) {
		_, err := device.Read()
		require.NoError(t, err)
	}

	assert.Equal(t, uint64(10), device.State().Reports)
	assert.True(t, device.StationaryTargetDetected())
	assert.Equal(t, uint16(120), device.StationaryTargetDistance())
}

func TestUART_SetBaudRate(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort(virt.NewVirtualLD2410())
	transport := newTestTransport(port)
	assert.Equal(t, DefaultBaudRate, transport.BaudRate())

	require.NoError(t, transport.SetBaudRate(115200))
	require.NotNil(t, port.mode)
	assert.Equal(t, 115200, port.mode.BaudRate)
	assert.Equal(t, 8, port.mode.DataBits)
	assert.Equal(t, serial.NoParity, port.mode.Parity)
	assert.Equal(t, serial.OneStopBit, port.mode.StopBits)
	assert.Equal(t, 115200, transport.BaudRate())
}

func TestUART_Flush(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort(virt.NewVirtualLD2410())
	require.NoError(t, newTestTransport(port).Flush())
	assert.Equal(t, 1, port.resets)
}

func TestUART_DrainRetries(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort(virt.NewVirtualLD2410())
	port.drainErrs = []error{errors.New("interrupted system call")}
	transport := newTestTransport(port)

	_, err := transport.Write([]byte{0x00})
	require.NoError(t, err)
	assert.Equal(t, 2, port.drains)

	port.drainErrs = []error{errors.New("device busy")}
	_, err = transport.Write([]byte{0x00})
	require.ErrorIs(t, err, ld2410.ErrTransportWrite)
}

func TestUART_Closed(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort(virt.NewVirtualLD2410())
	transport := newTestTransport(port)

	require.NoError(t, transport.Close())
	assert.True(t, port.closed)
	assert.False(t, transport.IsConnected())

	_, err := transport.Available()
	require.ErrorIs(t, err, ld2410.ErrTransportClosed)
}

func TestIsInterruptedSystemCall(t *testing.T) {
	t.Parallel()

	assert.False(t, isInterruptedSystemCall(nil))
	assert.True(t, isInterruptedSystemCall(errors.New("read: Interrupted System Call")))
	assert.True(t, isInterruptedSystemCall(errors.New("EINTR")))
	assert.False(t, isInterruptedSystemCall(errors.New("timeout")))
}

func TestReadTimeout(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		assert.Equal(t, 5*time.Millisecond, getReadTimeout())
	} else {
		assert.Equal(t, time.Millisecond, getReadTimeout())
	}
}
