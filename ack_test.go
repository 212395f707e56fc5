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
	"net"
	"testing"

	"github.com/ncmreynolds/ld2410/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ackFrame(data []byte) frame.Frame {
	return frame.Frame{Kind: frame.KindAck, Data: data}
}

func parametersBody() []byte {
	body := []byte{0xAA, 0x08, 0x06, 0x05}
	body = append(body, 50, 50, 40, 30, 20, 15, 15, 15, 15)
	body = append(body, 0, 0, 40, 40, 30, 30, 20, 20, 20)
	return append(body, 0x0A, 0x00)
}

func TestParseAck_EnableConfiguration(t *testing.T) {
	t.Parallel()

	data := []byte{
		0xFD, 0xFC, 0xFB, 0xFA, 0x08, 0x00, 0xFF, 0x01,
		0x00, 0x00, 0x01, 0x00, 0x40, 0x00, 0x04, 0x03, 0x02, 0x01,
	}
	ack, err := ParseAck(ackFrame(data))
	require.NoError(t, err)

	assert.Equal(t, byte(cmdEnableConfig), ack.Command)
	assert.True(t, ack.Success)
	assert.Equal(t, uint16(1), ack.ProtocolVersion)
	assert.Equal(t, uint16(64), ack.BufferSize)
}

func TestParseAck_Bodies(t *testing.T) {
	t.Parallel()

	t.Run("read parameters", func(t *testing.T) {
		t.Parallel()
		ack, err := ParseAck(ackFrame(frame.BuildAck(cmdReadParameters, 0, parametersBody())))
		require.NoError(t, err)
		require.NotNil(t, ack.Config)
		assert.Equal(t, uint8(8), ack.Config.MaxGate)
		assert.Equal(t, uint8(6), ack.Config.MaxMovingGate)
		assert.Equal(t, uint8(5), ack.Config.MaxStationaryGate)
		assert.Equal(t, uint8(50), ack.Config.MotionSensitivity[0])
		assert.Equal(t, uint8(15), ack.Config.MotionSensitivity[8])
		assert.Equal(t, uint8(40), ack.Config.StationarySensitivity[2])
		assert.Equal(t, uint16(10), ack.Config.IdleTimeout)
	})

	t.Run("firmware", func(t *testing.T) {
		t.Parallel()
		body := []byte{0x01, 0x00, 0x04, 0x02, 0x16, 0x15, 0x03, 0x23}
		ack, err := ParseAck(ackFrame(frame.BuildAck(cmdReadFirmware, 0, body)))
		require.NoError(t, err)
		require.NotNil(t, ack.Firmware)
		assert.Equal(t, uint8(2), ack.Firmware.Major)
		assert.Equal(t, uint8(4), ack.Firmware.Minor)
		assert.Equal(t, uint32(0x23031516), ack.Firmware.Bugfix)
		assert.Equal(t, "V2.04.23031516", ack.Firmware.String())
	})

	t.Run("mac", func(t *testing.T) {
		t.Parallel()
		mac := []byte{0x8F, 0x27, 0x2E, 0xB8, 0x0F, 0x65}
		ack, err := ParseAck(ackFrame(frame.BuildAck(cmdReadMAC, 0, mac)))
		require.NoError(t, err)
		assert.Equal(t, net.HardwareAddr(mac), ack.MAC)
		assert.Equal(t, "8f:27:2e:b8:0f:65", ack.MAC.String())
	})

	for _, cmd := range []byte{
		cmdEndConfig, cmdSetMaxValues, cmdEngineeringOn, cmdEngineeringOff,
		cmdSetGateSensitivity, cmdSetBaudRate, cmdFactoryReset, cmdRestart, cmdBluetooth,
	} {
		t.Run(CommandName(cmd), func(t *testing.T) {
			t.Parallel()
			ack, err := ParseAck(ackFrame(frame.BuildAck(cmd, 0, nil)))
			require.NoError(t, err)
			assert.Equal(t, cmd, ack.Command)
			assert.True(t, ack.Success)
			assert.Nil(t, ack.Config)
			assert.Nil(t, ack.Firmware)
		})
	}
}

func TestParseAck_Rejected(t *testing.T) {
	t.Parallel()

	ack, err := ParseAck(ackFrame(frame.BuildAck(cmdSetMaxValues, 0x0001, nil)))
	require.ErrorIs(t, err, ErrCommandRejected)
	require.NotNil(t, ack)
	assert.False(t, ack.Success)
	assert.Equal(t, byte(cmdSetMaxValues), ack.Command)
	assert.Equal(t, uint16(1), ack.Status)

	// A rejected read discards its body
	ack, err = ParseAck(ackFrame(frame.BuildAck(cmdReadParameters, 0x0001, parametersBody())))
	require.ErrorIs(t, err, ErrCommandRejected)
	assert.Nil(t, ack.Config)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, byte(cmdReadParameters), cmdErr.Command)
}

func TestParseAck_Errors(t *testing.T) {
	t.Parallel()

	truncated := frame.BuildAck(cmdReadFirmware, 0, []byte{0x01, 0x00})
	bad := frame.BuildAck(cmdRestart, 0, nil)
	bad[4] = 0x05

	tests := []struct {
		name    string
		wantErr error
		f       frame.Frame
	}{
		{name: "unknown word", f: ackFrame(frame.BuildAck(0x70, 0, nil)), wantErr: ErrUnknownAck},
		{name: "wrong body length", f: ackFrame(truncated), wantErr: ErrUnknownAck},
		{name: "length mismatch", f: ackFrame(bad), wantErr: ErrLengthMismatch},
		{name: "report frame", f: reportFrame(scenarioAFrame), wantErr: ErrUnknownAck},
		{name: "too short", f: ackFrame([]byte{0xFD, 0xFC, 0xFB, 0xFA, 0x04, 0x03, 0x02, 0x01}), wantErr: ErrUnknownAck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ack, err := ParseAck(tt.f)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, ack)
		})
	}
}

func TestCommandName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SetMaxValues", CommandName(cmdSetMaxValues))
	assert.Equal(t, "Unknown(0x70)", CommandName(0x70))
}

// FuzzParseAck checks the ack decoder never panics on assembled frames.
func FuzzParseAck(f *testing.F) {
	f.Add(frame.BuildAck(cmdEnableConfig, 0, []byte{0x01, 0x00, 0x40, 0x00}))
	f.Add(frame.BuildAck(cmdReadParameters, 0, parametersBody()))
	f.Add(frame.BuildAck(cmdReadMAC, 1, nil))

	f.Fuzz(func(_ *testing.T, data []byte) {
		_, _ = ParseAck(ackFrame(data))
	})
}
