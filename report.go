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
	"encoding/binary"
	"fmt"

	"github.com/ncmreynolds/ld2410/internal/frame"
)

// GateCount is the number of distance gates the sensor reports.
const GateCount = 9

// Report frame lengths
const (
	basicIntraLength       = 13
	engineeringIntraLength = 35
)

// TargetState is the 2-bit presence field of a report.
type TargetState uint8

const (
	// NoTarget means nothing was detected
	NoTarget TargetState = 0x00
	// MovingTarget means only a moving target was detected
	MovingTarget TargetState = 0x01
	// StationaryTarget means only a stationary target was detected
	StationaryTarget TargetState = 0x02
	// MovingAndStationaryTarget means both kinds were detected
	MovingAndStationaryTarget TargetState = 0x03
)

// Moving reports whether the moving bit is set
func (s TargetState) Moving() bool {
	return s&MovingTarget != 0
}

// Stationary reports whether the stationary bit is set
func (s TargetState) Stationary() bool {
	return s&StationaryTarget != 0
}

// Present reports whether any target was detected
func (s TargetState) Present() bool {
	return s&MovingAndStationaryTarget != 0
}

// String returns a human readable state
func (s TargetState) String() string {
	switch s & MovingAndStationaryTarget {
	case MovingTarget:
		return "moving"
	case StationaryTarget:
		return "stationary"
	case MovingAndStationaryTarget:
		return "moving+stationary"
	default:
		return "none"
	}
}

// ReportLayout holds the byte offsets of the basic target fields. Firmware
// revisions disagree on the order of the moving and stationary blocks, so
// the layout can be replaced per device.
type ReportLayout struct {
	MovingDistance     int
	MovingEnergy       int
	StationaryDistance int
	StationaryEnergy   int
	DetectionDistance  int
}

// DefaultReportLayout is the layout documented for the LD2410 protocol.
var DefaultReportLayout = ReportLayout{
	MovingDistance:     9,
	MovingEnergy:       11,
	StationaryDistance: 12,
	StationaryEnergy:   14,
	DetectionDistance:  15,
}

// SwappedDistanceLayout reads the moving and stationary distances from
// each other's offsets, as some firmware reports them.
var SwappedDistanceLayout = ReportLayout{
	MovingDistance:     12,
	MovingEnergy:       11,
	StationaryDistance: 9,
	StationaryEnergy:   14,
	DetectionDistance:  15,
}

func (l ReportLayout) validate() error {
	for _, off := range []int{l.MovingDistance, l.StationaryDistance, l.DetectionDistance} {
		if off < 8 || off+1 > 16 {
			return fmt.Errorf("%w: distance offset %d", ErrInvalidParameter, off)
		}
	}
	for _, off := range []int{l.MovingEnergy, l.StationaryEnergy} {
		if off < 8 || off > 16 {
			return fmt.Errorf("%w: energy offset %d", ErrInvalidParameter, off)
		}
	}
	return nil
}

// Report is one decoded target report.
type Report struct {
	MovingGateEnergy     [GateCount]uint8
	StationaryGateEnergy [GateCount]uint8
	MovingDistance       uint16
	StationaryDistance   uint16
	DetectionDistance    uint16
	// Auxiliary is the firmware-dependent word between the gate energies and
	// the trailer of an engineering report.
	Auxiliary         uint16
	State             TargetState
	MovingEnergy      uint8
	StationaryEnergy  uint8
	MaxMovingGate     uint8
	MaxStationaryGate uint8
	Engineering       bool
}

// LightLevel returns the photosensor reading carried in the auxiliary word by
// firmware that has one.
func (r *Report) LightLevel() uint8 {
	return uint8(r.Auxiliary & 0xFF)
}

// OutPinHigh returns the OUT pin level carried in the auxiliary word by
// firmware that has one.
func (r *Report) OutPinHigh() bool {
	return r.Auxiliary>>8 == 0x01
}

// ParseReport validates a report frame and decodes it with layout.
func ParseReport(f frame.Frame, layout ReportLayout) (*Report, error) {
	data := f.Data
	if f.Kind != frame.KindReport || len(data) < frame.Overhead+4 {
		return nil, fmt.Errorf("%w: %d byte %s frame", ErrUnknownFrameType, len(data), f.Kind)
	}
	if !f.LengthValid() {
		return nil, fmt.Errorf("%w: declared %d, received %d", ErrLengthMismatch, f.IntraLength(), len(data)-frame.Overhead)
	}

	reportType := data[6]
	intra := f.IntraLength()
	switch {
	case data[7] != frame.ReportHead:
		return nil, fmt.Errorf("%w: head byte 0x%02X", ErrUnknownFrameType, data[7])
	case reportType == frame.ReportTypeBasic && intra == basicIntraLength:
	case reportType == frame.ReportTypeEngineering && intra >= engineeringIntraLength:
	default:
		return nil, fmt.Errorf("%w: type 0x%02X with length %d", ErrUnknownFrameType, reportType, intra)
	}

	tail := len(data) - frame.MarkerLength - 2
	if data[tail] != frame.ReportTail || data[tail+1] != frame.ReportCheck {
		return nil, fmt.Errorf("%w: got %02X %02X", ErrBadTrailer, data[tail], data[tail+1])
	}

	r := &Report{
		State:              TargetState(data[8]),
		MovingDistance:     binary.LittleEndian.Uint16(data[layout.MovingDistance:]),
		MovingEnergy:       data[layout.MovingEnergy],
		StationaryDistance: binary.LittleEndian.Uint16(data[layout.StationaryDistance:]),
		StationaryEnergy:   data[layout.StationaryEnergy],
		DetectionDistance:  binary.LittleEndian.Uint16(data[layout.DetectionDistance:]),
		Engineering:        reportType == frame.ReportTypeEngineering,
	}
	if r.Engineering {
		r.MaxMovingGate = data[17]
		r.MaxStationaryGate = data[18]
		copy(r.MovingGateEnergy[:], data[19:19+GateCount])
		copy(r.StationaryGateEnergy[:], data[28:28+GateCount])
		r.Auxiliary = binary.LittleEndian.Uint16(data[37:39])
	}
	return r, nil
}
