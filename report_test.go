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
	"testing"

	"github.com/ncmreynolds/ld2410/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioAFrame is a basic report with target state "stationary only".
var scenarioAFrame = []byte{
	0xF4, 0xF3, 0xF2, 0xF1, 0x0D, 0x00, 0x02, 0xAA,
	0x02, 0x5A, 0x00, 0x80, 0x00, 0x00, 0x64, 0x00, 0x00,
	0x55, 0x00, 0xF8, 0xF7, 0xF6, 0xF5,
}

func reportFrame(data []byte) frame.Frame {
	return frame.Frame{Kind: frame.KindReport, Data: data}
}

func engineeringBody() []byte {
	body := []byte{
		0x03,       // moving and stationary
		0x78, 0x00, // moving 120cm
		0x3C,       // moving energy 60
		0x2C, 0x01, // stationary 300cm
		0x28,       // stationary energy 40
		0x96, 0x00, // detection 150cm
		0x08, 0x07, // max gates
	}
	for i := range GateCount {
		body = append(body, byte(10+i))
	}
	for i := range GateCount {
		body = append(body, byte(50+i))
	}
	return append(body, 0x7F, 0x01)
}

func TestParseReport_Basic(t *testing.T) {
	t.Parallel()

	r, err := ParseReport(reportFrame(scenarioAFrame), DefaultReportLayout)
	require.NoError(t, err)

	assert.Equal(t, StationaryTarget, r.State)
	assert.False(t, r.State.Moving())
	assert.True(t, r.State.Stationary())
	assert.False(t, r.Engineering)
	assert.Equal(t, uint16(90), r.MovingDistance)
	assert.Equal(t, uint8(0x80), r.MovingEnergy)
	assert.Equal(t, uint16(0), r.StationaryDistance)
	assert.Equal(t, uint8(100), r.StationaryEnergy)
	assert.Equal(t, uint16(0), r.DetectionDistance)
}

func TestParseReport_SwappedDistanceLayout(t *testing.T) {
	t.Parallel()

	r, err := ParseReport(reportFrame(scenarioAFrame), SwappedDistanceLayout)
	require.NoError(t, err)

	assert.Equal(t, StationaryTarget, r.State)
	assert.Equal(t, uint16(90), r.StationaryDistance)
	assert.Equal(t, uint16(0), r.MovingDistance)
	// Only the distances swap. Energies stay at their canonical offsets.
	assert.Equal(t, uint8(0x80), r.MovingEnergy)
	assert.Equal(t, uint8(100), r.StationaryEnergy)
	assert.Equal(t, uint16(0), r.DetectionDistance)
}

func TestParseReport_Engineering(t *testing.T) {
	t.Parallel()

	data := frame.BuildReport(frame.ReportTypeEngineering, engineeringBody())
	require.Len(t, data, 45)

	r, err := ParseReport(reportFrame(data), DefaultReportLayout)
	require.NoError(t, err)

	assert.True(t, r.Engineering)
	assert.Equal(t, MovingAndStationaryTarget, r.State)
	assert.Equal(t, uint16(120), r.MovingDistance)
	assert.Equal(t, uint8(60), r.MovingEnergy)
	assert.Equal(t, uint16(300), r.StationaryDistance)
	assert.Equal(t, uint8(40), r.StationaryEnergy)
	assert.Equal(t, uint16(150), r.DetectionDistance)
	assert.Equal(t, uint8(8), r.MaxMovingGate)
	assert.Equal(t, uint8(7), r.MaxStationaryGate)
	assert.Equal(t, uint8(10), r.MovingGateEnergy[0])
	assert.Equal(t, uint8(18), r.MovingGateEnergy[8])
	assert.Equal(t, uint8(50), r.StationaryGateEnergy[0])
	assert.Equal(t, uint8(58), r.StationaryGateEnergy[8])
	assert.Equal(t, uint8(0x7F), r.LightLevel())
	assert.True(t, r.OutPinHigh())
}

func TestParseReport_Errors(t *testing.T) {
	t.Parallel()

	mutate := func(fn func([]byte)) []byte {
		data := append([]byte(nil), scenarioAFrame...)
		fn(data)
		return data
	}

	tests := []struct {
		name    string
		wantErr error
		f       frame.Frame
	}{
		{
			name:    "length field too long",
			f:       reportFrame(mutate(func(d []byte) { d[4] = 0x0E })),
			wantErr: ErrLengthMismatch,
		},
		{
			name:    "bad tail byte",
			f:       reportFrame(mutate(func(d []byte) { d[17] = 0x54 })),
			wantErr: ErrBadTrailer,
		},
		{
			name:    "bad check byte",
			f:       reportFrame(mutate(func(d []byte) { d[18] = 0x01 })),
			wantErr: ErrBadTrailer,
		},
		{
			name:    "unknown type",
			f:       reportFrame(mutate(func(d []byte) { d[6] = 0x03 })),
			wantErr: ErrUnknownFrameType,
		},
		{
			name:    "missing head",
			f:       reportFrame(mutate(func(d []byte) { d[7] = 0xAB })),
			wantErr: ErrUnknownFrameType,
		},
		{
			name:    "engineering type on basic length",
			f:       reportFrame(mutate(func(d []byte) { d[6] = frame.ReportTypeEngineering })),
			wantErr: ErrUnknownFrameType,
		},
		{
			name:    "ack frame",
			f:       frame.Frame{Kind: frame.KindAck, Data: scenarioAFrame},
			wantErr: ErrUnknownFrameType,
		},
		{
			name:    "too short",
			f:       reportFrame(scenarioAFrame[:8]),
			wantErr: ErrUnknownFrameType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := ParseReport(tt.f, DefaultReportLayout)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, r)
		})
	}
}

func TestTargetState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", NoTarget.String())
	assert.Equal(t, "moving", MovingTarget.String())
	assert.Equal(t, "stationary", StationaryTarget.String())
	assert.Equal(t, "moving+stationary", MovingAndStationaryTarget.String())
	assert.False(t, NoTarget.Present())
	assert.True(t, MovingTarget.Present())
}

func TestReportLayout_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultReportLayout.validate())
	require.NoError(t, SwappedDistanceLayout.validate())

	bad := DefaultReportLayout
	bad.DetectionDistance = 16
	require.ErrorIs(t, bad.validate(), ErrInvalidParameter)

	bad = DefaultReportLayout
	bad.MovingEnergy = 3
	require.ErrorIs(t, bad.validate(), ErrInvalidParameter)
}

// FuzzParseReport checks the report decoder never panics on assembled frames.
func FuzzParseReport(f *testing.F) {
	f.Add(scenarioAFrame)
	f.Add(frame.BuildReport(frame.ReportTypeEngineering, engineeringBody()))
	f.Add([]byte{0xF4, 0xF3, 0xF2, 0xF1, 0xFF, 0xFF, 0x01, 0xAA, 0xF8, 0xF7, 0xF6, 0xF5})

	f.Fuzz(func(_ *testing.T, data []byte) {
		_, _ = ParseReport(reportFrame(data), DefaultReportLayout)
		_, _ = ParseReport(reportFrame(data), SwappedDistanceLayout)
	})
}
