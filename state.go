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
	"fmt"
	"net"
	"time"
)

// State is a snapshot of everything the driver has learned from the sensor.
// Report fields change only on reports and ack fields only on successful
// acknowledgements of the matching command.
type State struct {
	LastPacket      time.Time
	LastReport      time.Time
	MAC             net.HardwareAddr
	Report          Report
	Config          Configuration
	Firmware        FirmwareVersion
	Reports         uint64
	Acks            uint64
	FrameErrors     uint64
	ProtocolVersion uint16
	BufferSize      uint16
	LatestAck       byte
	HaveReport      bool
	HaveConfig      bool
	HaveFirmware    bool
	// EngineeringMode follows whichever came last: an engineering toggle
	// ack or the type of a report.
	EngineeringMode bool
}

// PresenceDetected reports whether the last report saw any target
func (s *State) PresenceDetected() bool {
	return s.Report.State.Present()
}

// MovingTargetDetected reports whether the last report saw a moving target
func (s *State) MovingTargetDetected() bool {
	return s.Report.State.Moving()
}

// StationaryTargetDetected reports whether the last report saw a stationary target
func (s *State) StationaryTargetDetected() bool {
	return s.Report.State.Stationary()
}

// MovingGateEnergy returns the engineering-mode energy of a moving gate
func (s *State) MovingGateEnergy(gate int) (uint8, error) {
	if err := checkGate(gate); err != nil {
		return 0, err
	}
	return s.Report.MovingGateEnergy[gate], nil
}

// StationaryGateEnergy returns the engineering-mode energy of a stationary gate
func (s *State) StationaryGateEnergy(gate int) (uint8, error) {
	if err := checkGate(gate); err != nil {
		return 0, err
	}
	return s.Report.StationaryGateEnergy[gate], nil
}

// MotionSensitivity returns the configured motion threshold of a gate
func (s *State) MotionSensitivity(gate int) (uint8, error) {
	if err := checkGate(gate); err != nil {
		return 0, err
	}
	return s.Config.MotionSensitivity[gate], nil
}

// StationarySensitivity returns the configured stationary threshold of a gate
func (s *State) StationarySensitivity(gate int) (uint8, error) {
	if err := checkGate(gate); err != nil {
		return 0, err
	}
	return s.Config.StationarySensitivity[gate], nil
}

func checkGate(gate int) error {
	if gate < 0 || gate >= GateCount {
		return fmt.Errorf("%w: %d (gates 0-%d)", ErrGateOutOfRange, gate, GateCount-1)
	}
	return nil
}

// applyReport folds a decoded report into the state
func (s *State) applyReport(r *Report, now time.Time) {
	s.Report = *r
	s.EngineeringMode = r.Engineering
	s.HaveReport = true
	s.LastReport = now
	s.LastPacket = now
	s.Reports++
}

// applyAck folds a successful acknowledgement into the state
func (s *State) applyAck(a *Ack, now time.Time) {
	s.LastPacket = now
	s.LatestAck = a.Command
	s.Acks++
	if !a.Success {
		return
	}

	switch a.Command {
	case cmdEnableConfig:
		s.ProtocolVersion = a.ProtocolVersion
		s.BufferSize = a.BufferSize
	case cmdReadParameters:
		if a.Config != nil {
			s.Config = *a.Config
			s.HaveConfig = true
		}
	case cmdReadFirmware:
		if a.Firmware != nil {
			s.Firmware = *a.Firmware
			s.HaveFirmware = true
		}
	case cmdReadMAC:
		s.MAC = a.MAC
	case cmdEngineeringOn:
		s.EngineeringMode = true
	case cmdEngineeringOff:
		s.EngineeringMode = false
	}
}

// clone returns a copy that shares no mutable memory with s
func (s *State) clone() State {
	out := *s
	if s.MAC != nil {
		out.MAC = append(net.HardwareAddr(nil), s.MAC...)
	}
	return out
}
