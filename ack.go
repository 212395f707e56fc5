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
	"net"

	"github.com/ncmreynolds/ld2410/internal/frame"
)

// Command words
const (
	cmdEnableConfig       = 0xFF
	cmdEndConfig          = 0xFE
	cmdSetMaxValues       = 0x60
	cmdReadParameters     = 0x61
	cmdEngineeringOn      = 0x62
	cmdEngineeringOff     = 0x63
	cmdSetGateSensitivity = 0x64
	cmdReadFirmware       = 0xA0
	cmdSetBaudRate        = 0xA1
	cmdFactoryReset       = 0xA2
	cmdRestart            = 0xA3
	cmdBluetooth          = 0xA4
	cmdReadMAC            = 0xA5
)

// ackLengths maps each known command word to the intra-frame length of its
// successful acknowledgement.
var ackLengths = map[byte]int{
	cmdEnableConfig:       8,
	cmdEndConfig:          4,
	cmdSetMaxValues:       4,
	cmdReadParameters:     28,
	cmdEngineeringOn:      4,
	cmdEngineeringOff:     4,
	cmdSetGateSensitivity: 4,
	cmdReadFirmware:       12,
	cmdSetBaudRate:        4,
	cmdFactoryReset:       4,
	cmdRestart:            4,
	cmdBluetooth:          4,
	cmdReadMAC:            10,
}

var commandNames = map[byte]string{
	cmdEnableConfig:       "EnableConfiguration",
	cmdEndConfig:          "EndConfiguration",
	cmdSetMaxValues:       "SetMaxValues",
	cmdReadParameters:     "ReadParameters",
	cmdEngineeringOn:      "EnableEngineeringMode",
	cmdEngineeringOff:     "EndEngineeringMode",
	cmdSetGateSensitivity: "SetGateSensitivity",
	cmdReadFirmware:       "ReadFirmwareVersion",
	cmdSetBaudRate:        "SetBaudRate",
	cmdFactoryReset:       "FactoryReset",
	cmdRestart:            "Restart",
	cmdBluetooth:          "SetBluetooth",
	cmdReadMAC:            "ReadMACAddress",
}

// CommandName returns the name of a command word
func CommandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02X)", cmd)
}

// Configuration is the parameter block returned by ReadParameters.
type Configuration struct {
	MotionSensitivity     [GateCount]uint8
	StationarySensitivity [GateCount]uint8
	IdleTimeout           uint16
	MaxGate               uint8
	MaxMovingGate         uint8
	MaxStationaryGate     uint8
}

// FirmwareVersion identifies the sensor firmware.
type FirmwareVersion struct {
	Bugfix uint32
	Major  uint8
	Minor  uint8
}

// String formats the version the way the vendor tools show it
func (v FirmwareVersion) String() string {
	return fmt.Sprintf("V%d.%02X.%08X", v.Major, v.Minor, v.Bugfix)
}

// Ack is one decoded command acknowledgement. Only the body matching
// Command is populated.
type Ack struct {
	Config          *Configuration
	Firmware        *FirmwareVersion
	MAC             net.HardwareAddr
	Status          uint16
	ProtocolVersion uint16
	BufferSize      uint16
	Command         byte
	Success         bool
}

// ParseAck validates an acknowledgement frame and decodes its body. A
// rejected command yields the Ack (Success false, body discarded) together
// with ErrCommandRejected.
func ParseAck(f frame.Frame) (*Ack, error) {
	data := f.Data
	if f.Kind != frame.KindAck || len(data) < frame.Overhead+4 {
		return nil, fmt.Errorf("%w: %d byte %s frame", ErrUnknownAck, len(data), f.Kind)
	}
	if !f.LengthValid() {
		return nil, fmt.Errorf("%w: declared %d, received %d", ErrLengthMismatch, f.IntraLength(), len(data)-frame.Overhead)
	}

	ack := &Ack{
		Command: data[6],
		Status:  binary.LittleEndian.Uint16(data[8:10]),
	}
	want, known := ackLengths[ack.Command]
	if !known {
		return nil, fmt.Errorf("%w: command word 0x%02X", ErrUnknownAck, ack.Command)
	}
	if ack.Status != 0 {
		return ack, NewCommandRejectedError(ack.Command, ack.Status)
	}
	if f.IntraLength() != want {
		return nil, fmt.Errorf("%w: %s ack length %d, want %d",
			ErrUnknownAck, CommandName(ack.Command), f.IntraLength(), want)
	}

	ack.Success = true
	switch ack.Command {
	case cmdEnableConfig:
		ack.ProtocolVersion = binary.LittleEndian.Uint16(data[10:12])
		ack.BufferSize = binary.LittleEndian.Uint16(data[12:14])
	case cmdReadParameters:
		cfg := &Configuration{
			MaxGate:           data[11],
			MaxMovingGate:     data[12],
			MaxStationaryGate: data[13],
			IdleTimeout:       binary.LittleEndian.Uint16(data[32:34]),
		}
		copy(cfg.MotionSensitivity[:], data[14:14+GateCount])
		copy(cfg.StationarySensitivity[:], data[23:23+GateCount])
		ack.Config = cfg
	case cmdReadFirmware:
		ack.Firmware = &FirmwareVersion{
			Minor:  data[12],
			Major:  data[13],
			Bugfix: binary.LittleEndian.Uint32(data[14:18]),
		}
	case cmdReadMAC:
		ack.MAC = net.HardwareAddr(append([]byte(nil), data[10:16]...))
	}
	return ack, nil
}
