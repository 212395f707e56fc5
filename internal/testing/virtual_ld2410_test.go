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

package testing

import (
	"testing"

	"github.com/ncmreynolds/ld2410/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readFrames drains the simulator through an assembler
func readFrames(t *testing.T, rw interface{ Read([]byte) (int, error) }) []frame.Frame {
	t.Helper()

	a := frame.NewAssembler(frame.DefaultCapacity)
	var frames []frame.Frame
	buf := make([]byte, 64)
	for range 1000 {
		n, err := rw.Read(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		for _, b := range buf[:n] {
			if f, ok, _ := a.Push(b); ok {
				frames = append(frames, f)
			}
		}
	}
	return frames
}

func TestVirtualLD2410_RequiresConfigMode(t *testing.T) {
	t.Parallel()

	sim := NewVirtualLD2410()
	_, err := sim.Write(frame.BuildCommand(CmdReadFirmware, nil))
	require.NoError(t, err)

	frames := readFrames(t, sim)
	require.Len(t, frames, 1)
	assert.Equal(t, byte(CmdReadFirmware), frames[0].Data[6])
	assert.Equal(t, byte(0x01), frames[0].Data[8], "status should be failure")
}

func TestVirtualLD2410_ConfigSequence(t *testing.T) {
	t.Parallel()

	sim := NewVirtualLD2410()
	var stream []byte
	stream = append(stream, frame.BuildCommand(CmdEnableConfig, frame.Word(1))...)
	stream = append(stream, frame.BuildCommand(CmdSetMaxValues, append(append(
		frame.Param(0, 6), frame.Param(1, 4)...), frame.Param(2, 30)...))...)
	stream = append(stream, frame.BuildCommand(CmdEndConfig, nil)...)

	// Split the write to exercise the command assembler
	_, _ = sim.Write(stream[:5])
	_, _ = sim.Write(stream[5:])

	frames := readFrames(t, sim)
	require.Len(t, frames, 3)
	for i, cmd := range []byte{CmdEnableConfig, CmdSetMaxValues, CmdEndConfig} {
		assert.Equal(t, cmd, frames[i].Data[6])
		assert.Equal(t, byte(0x00), frames[i].Data[8])
		assert.True(t, frames[i].LengthValid())
	}

	state := sim.GetState()
	assert.Equal(t, uint8(6), state.MaxMovingGate)
	assert.Equal(t, uint8(4), state.MaxStationaryGate)
	assert.Equal(t, uint16(30), state.IdleTimeout)
	assert.False(t, state.ConfigMode)
	assert.Equal(t, []byte{CmdEnableConfig, CmdSetMaxValues, CmdEndConfig}, sim.Received())
}

func TestVirtualLD2410_Reports(t *testing.T) {
	t.Parallel()

	sim := NewVirtualLD2410()
	sim.SetTarget(Target{State: 0x01, MovingDistance: 120, MovingEnergy: 70})
	sim.EmitReport()

	frames := readFrames(t, sim)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.KindReport, frames[0].Kind)
	assert.Equal(t, 13, frames[0].IntraLength())

	_, _ = sim.Write(frame.BuildCommand(CmdEnableConfig, frame.Word(1)))
	_, _ = sim.Write(frame.BuildCommand(CmdEngineeringOn, nil))
	_ = readFrames(t, sim)

	sim.EmitReport()
	frames = readFrames(t, sim)
	require.Len(t, frames, 1)
	assert.Equal(t, 35, frames[0].IntraLength())
	assert.Equal(t, byte(70), frames[0].Data[19+2], "gate 2 carries the peak energy")
}

func TestVirtualLD2410_SilentAndReject(t *testing.T) {
	t.Parallel()

	sim := NewVirtualLD2410()
	sim.SetSilent(CmdEnableConfig, true)
	_, _ = sim.Write(frame.BuildCommand(CmdEnableConfig, frame.Word(1)))
	assert.Zero(t, sim.Pending())

	sim.SetSilent(CmdEnableConfig, false)
	sim.SetReject(CmdEnableConfig, 0x0001)
	out := sim.Respond(CmdEnableConfig, frame.Word(1))
	require.Len(t, out, 1)
	assert.Equal(t, byte(0x01), out[0][8])
}

func TestJitteryConnection_PreservesFrames(t *testing.T) {
	t.Parallel()

	sim := NewVirtualLD2410()
	for range 10 {
		sim.EmitReport()
	}

	conn := NewJitteryConnection(sim, JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
		Noise:            3,
		Seed:             42,
	})
	frames := readFrames(t, conn)
	assert.Len(t, frames, 10)
}
