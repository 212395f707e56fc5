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
	"testing"
	"time"

	"github.com/ncmreynolds/ld2410"
	"github.com/ncmreynolds/ld2410/detection"
	virt "github.com/ncmreynolds/ld2410/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

type probeCall struct {
	path string
	baud int
}

func newTestDetector(ports []*enumerator.PortDetails, confirm map[probeCall]string) (*detector, *[]probeCall) {
	var calls []probeCall
	return &detector{
		listPorts: func() ([]*enumerator.PortDetails, error) { return ports, nil },
		probe: func(_ context.Context, path string, baud int, _ *detection.Options) (probeResult, bool) {
			call := probeCall{path: path, baud: baud}
			calls = append(calls, call)
			fw, ok := confirm[call]
			return probeResult{firmware: fw}, ok
		},
	}, &calls
}

var (
	ch340 = &enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523", SerialNumber: "5678"}
	odd   = &enumerator.PortDetails{Name: "/dev/ttyUSB1", IsUSB: true, VID: "aaaa", PID: "bbbb", Product: "Gadget"}
	uno   = &enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"}
	ttyS0 = &enumerator.PortDetails{Name: "/dev/ttyS0"}
)

func TestDetect_PassiveModeNeverOpensPorts(t *testing.T) {
	t.Parallel()

	det, calls := newTestDetector([]*enumerator.PortDetails{ch340, odd, uno, ttyS0}, nil)
	opts := detection.DefaultOptions()
	opts.Mode = detection.Passive

	devices, err := det.Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	assert.Equal(t, detection.Medium, devices[0].Confidence)
	assert.Equal(t, "1A86:7523", devices[0].Metadata[detection.MetaVIDPID])
	assert.Equal(t, "QinHeng CH340", devices[0].Metadata[detection.MetaManufacturer])
	assert.Equal(t, "5678", devices[0].Metadata[detection.MetaSerial])
	assert.Empty(t, *calls)
}

func TestDetect_SafeModeProbesUSBOnly(t *testing.T) {
	t.Parallel()

	det, calls := newTestDetector([]*enumerator.PortDetails{ch340, odd, uno, ttyS0}, map[probeCall]string{
		{path: "/dev/ttyUSB1", baud: 115200}: "",
	})
	opts := detection.DefaultOptions()

	devices, err := det.Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	d := devices[0]
	assert.Equal(t, "/dev/ttyUSB1", d.Path)
	assert.Equal(t, "Gadget", d.Name)
	assert.Equal(t, detection.High, d.Confidence)
	assert.Equal(t, "115200", d.Metadata[detection.MetaBaudRate])

	assert.Equal(t, []probeCall{
		{path: "/dev/ttyUSB0", baud: 256000},
		{path: "/dev/ttyUSB0", baud: 115200},
		{path: "/dev/ttyUSB1", baud: 256000},
		{path: "/dev/ttyUSB1", baud: 115200},
	}, *calls, "blocked and built-in ports are never opened")
}

func TestDetect_FullModeProbesBuiltinPorts(t *testing.T) {
	t.Parallel()

	det, _ := newTestDetector([]*enumerator.PortDetails{ttyS0}, map[probeCall]string{
		{path: "/dev/ttyS0", baud: 256000}: "V2.04.23031516",
	})
	opts := detection.DefaultOptions()
	opts.Mode = detection.Full

	devices, err := det.Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "V2.04.23031516", devices[0].Metadata[detection.MetaFirmware])
	assert.NotContains(t, devices[0].Metadata, detection.MetaVIDPID)
}

func TestDetect_FailedProbeDiscardsKnownBridge(t *testing.T) {
	t.Parallel()

	det, _ := newTestDetector([]*enumerator.PortDetails{ch340}, nil)
	opts := detection.DefaultOptions()

	_, err := det.Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestDetect_IgnorePathsAndErrors(t *testing.T) {
	t.Parallel()

	det, calls := newTestDetector([]*enumerator.PortDetails{ch340}, nil)
	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{"/dev/ttyUSB0"}

	_, err := det.Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
	assert.Empty(t, *calls)

	failing := &detector{listPorts: func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no sysfs")
	}}
	_, err = failing.Detect(context.Background(), &opts)
	require.ErrorContains(t, err, "failed to enumerate serial ports")
}

func TestProbeTransport(t *testing.T) {
	t.Parallel()

	t.Run("streaming sensor heard in safe mode", func(t *testing.T) {
		t.Parallel()
		sim := virt.NewVirtualLD2410()
		sim.EmitReport()
		transport := ld2410.NewStreamTransport(sim, ld2410.TransportStream, "sim")

		result, ok := probeTransport(context.Background(), transport, detection.Safe, 100*time.Millisecond)
		assert.True(t, ok)
		assert.Empty(t, result.firmware)
		assert.Empty(t, sim.Received(), "safe mode writes nothing")
	})

	t.Run("quiet port in safe mode", func(t *testing.T) {
		t.Parallel()
		transport := ld2410.NewStreamTransport(virt.NewVirtualLD2410(), ld2410.TransportStream, "sim")
		_, ok := probeTransport(context.Background(), transport, detection.Safe, 20*time.Millisecond)
		assert.False(t, ok)
	})

	t.Run("full mode handshake", func(t *testing.T) {
		t.Parallel()
		sim := virt.NewVirtualLD2410()
		transport := ld2410.NewStreamTransport(sim, ld2410.TransportStream, "sim")

		result, ok := probeTransport(context.Background(), transport, detection.Full, 10*time.Millisecond)
		assert.True(t, ok)
		assert.Equal(t, "V2.04.23031516", result.firmware)
	})
}

func TestRegistered(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "uart", New().Transport())
}
