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

// Package testing provides a wire-level LD2410 simulator and connection
// wrappers for exercising the driver without hardware.
package testing

import (
	"encoding/binary"
	"sync"

	"github.com/ncmreynolds/ld2410/internal/frame"
)

// Sensor command words, mirrored here so the simulator stays independent of
// the driver package.
const (
	CmdEnableConfig   = 0xFF
	CmdEndConfig      = 0xFE
	CmdSetMaxValues   = 0x60
	CmdReadParameters = 0x61
	CmdEngineeringOn  = 0x62
	CmdEngineeringOff = 0x63
	CmdSetSensitivity = 0x64
	CmdReadFirmware   = 0xA0
	CmdSetBaudRate    = 0xA1
	CmdFactoryReset   = 0xA2
	CmdRestart        = 0xA3
	CmdBluetooth      = 0xA4
	CmdReadMAC        = 0xA5
)

// Target is the scene the simulated sensor reports.
type Target struct {
	MovingDistance     uint16
	StationaryDistance uint16
	DetectionDistance  uint16
	State              byte
	MovingEnergy       uint8
	StationaryEnergy   uint8
}

// SimulatorState is the simulated sensor's configuration.
type SimulatorState struct {
	MotionSensitivity     [9]uint8
	StationarySensitivity [9]uint8
	MAC                   [6]byte
	FirmwareBugfix        uint32
	IdleTimeout           uint16
	BaudIndex             uint16
	FirmwareMajor         uint8
	FirmwareMinor         uint8
	MaxMovingGate         uint8
	MaxStationaryGate     uint8
	ConfigMode            bool
	Engineering           bool
	Bluetooth             bool
}

// VirtualLD2410 is an io.ReadWriter behaving like the sensor's UART: it
// decodes command frames written to it, answers with acknowledgements and
// emits reports on demand. Read never blocks; it returns 0 bytes when idle.
type VirtualLD2410 struct {
	silent    map[byte]bool
	reject    map[byte]uint16
	assembler *frame.Assembler
	out       [][]byte
	received  []byte
	target    Target
	state     SimulatorState
	mu        sync.Mutex
}

// NewVirtualLD2410 creates a simulator with factory defaults
func NewVirtualLD2410() *VirtualLD2410 {
	v := &VirtualLD2410{
		silent:    make(map[byte]bool),
		reject:    make(map[byte]uint16),
		assembler: frame.NewAssembler(frame.DefaultCapacity),
	}
	v.state = defaultState()
	return v
}

func defaultState() SimulatorState {
	return SimulatorState{
		MotionSensitivity:     [9]uint8{50, 50, 40, 30, 20, 15, 15, 15, 15},
		StationarySensitivity: [9]uint8{0, 0, 40, 40, 30, 30, 20, 20, 20},
		MAC:                   [6]byte{0x8F, 0x27, 0x2E, 0xB8, 0x0F, 0x65},
		FirmwareMajor:         2,
		FirmwareMinor:         0x04,
		FirmwareBugfix:        0x23031516,
		IdleTimeout:           5,
		BaudIndex:             0x0007,
		MaxMovingGate:         8,
		MaxStationaryGate:     8,
		Bluetooth:             true,
	}
}

// Write feeds host bytes to the simulated sensor
func (v *VirtualLD2410) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, b := range data {
		f, ok, _ := v.assembler.Push(b)
		if ok && f.Kind == frame.KindAck {
			v.handleCommand(f.Data)
		}
	}
	return len(data), nil
}

// Read returns pending sensor output. Frames are never split across reads
// unless buf cannot hold the first one.
func (v *VirtualLD2410) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := 0
	for len(v.out) > 0 {
		next := v.out[0]
		if n+len(next) > len(buf) {
			if n == 0 {
				n = copy(buf, next)
				v.out[0] = next[n:]
			}
			break
		}
		n += copy(buf[n:], next)
		v.out = v.out[1:]
	}
	return n, nil
}

// Pending returns the number of output bytes not yet read
func (v *VirtualLD2410) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	total := 0
	for _, chunk := range v.out {
		total += len(chunk)
	}
	return total
}

// SetTarget sets the scene used by EmitReport
func (v *VirtualLD2410) SetTarget(t Target) {
	v.mu.Lock()
	v.target = t
	v.mu.Unlock()
}

// EmitReport queues one report frame, basic or engineering depending on mode
func (v *VirtualLD2410) EmitReport() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.out = append(v.out, v.buildReport())
}

// QueueRaw queues arbitrary bytes, such as noise or corrupt frames
func (v *VirtualLD2410) QueueRaw(data []byte) {
	v.mu.Lock()
	v.out = append(v.out, append([]byte(nil), data...))
	v.mu.Unlock()
}

// SetSilent makes the sensor ignore a command word
func (v *VirtualLD2410) SetSilent(cmd byte, silent bool) {
	v.mu.Lock()
	v.silent[cmd] = silent
	v.mu.Unlock()
}

// SetReject makes the sensor answer a command word with a failure status
// (0 restores normal behavior)
func (v *VirtualLD2410) SetReject(cmd byte, status uint16) {
	v.mu.Lock()
	if status == 0 {
		delete(v.reject, cmd)
	} else {
		v.reject[cmd] = status
	}
	v.mu.Unlock()
}

// GetState returns a copy of the simulated configuration
func (v *VirtualLD2410) GetState() SimulatorState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SetFirmwareVersion sets the reported firmware
func (v *VirtualLD2410) SetFirmwareVersion(major, minor uint8, bugfix uint32) {
	v.mu.Lock()
	v.state.FirmwareMajor, v.state.FirmwareMinor, v.state.FirmwareBugfix = major, minor, bugfix
	v.mu.Unlock()
}

// Received returns the command words the sensor has decoded, in order
func (v *VirtualLD2410) Received() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.received...)
}

// Respond computes the frames answering one command. It can back a
// MockTransport responder directly.
func (v *VirtualLD2410) Respond(cmd byte, payload []byte) [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.respond(cmd, payload)
	if out == nil {
		return nil
	}
	return [][]byte{out}
}

func (v *VirtualLD2410) handleCommand(data []byte) {
	cmd, ok := frame.CommandWord(data)
	if !ok {
		return
	}
	if out := v.respond(cmd, frame.CommandPayload(data)); out != nil {
		v.out = append(v.out, out)
	}
}

// respond applies a command and builds its ack. Caller holds mu.
func (v *VirtualLD2410) respond(cmd byte, payload []byte) []byte {
	v.received = append(v.received, cmd)
	if v.silent[cmd] {
		return nil
	}
	if status, ok := v.reject[cmd]; ok {
		return frame.BuildAck(cmd, status, nil)
	}
	// Everything but enabling configuration needs configuration mode
	if cmd != CmdEnableConfig && !v.state.ConfigMode {
		return frame.BuildAck(cmd, 1, nil)
	}

	switch cmd {
	case CmdEnableConfig:
		v.state.ConfigMode = true
		return frame.BuildAck(cmd, 0, []byte{0x01, 0x00, 0x40, 0x00})
	case CmdEndConfig:
		v.state.ConfigMode = false
	case CmdSetMaxValues:
		if !v.applyMaxValues(payload) {
			return frame.BuildAck(cmd, 1, nil)
		}
	case CmdReadParameters:
		return frame.BuildAck(cmd, 0, v.parameterBody())
	case CmdEngineeringOn:
		v.state.Engineering = true
	case CmdEngineeringOff:
		v.state.Engineering = false
	case CmdSetSensitivity:
		if !v.applySensitivity(payload) {
			return frame.BuildAck(cmd, 1, nil)
		}
	case CmdReadFirmware:
		body := []byte{0x01, 0x00, v.state.FirmwareMinor, v.state.FirmwareMajor}
		return frame.BuildAck(cmd, 0, binary.LittleEndian.AppendUint32(body, v.state.FirmwareBugfix))
	case CmdSetBaudRate:
		if len(payload) < 2 {
			return frame.BuildAck(cmd, 1, nil)
		}
		v.state.BaudIndex = binary.LittleEndian.Uint16(payload)
	case CmdFactoryReset:
		mac := v.state.MAC
		v.state = defaultState()
		v.state.MAC = mac
		v.state.ConfigMode = true
	case CmdRestart:
		v.state.ConfigMode = false
		v.state.Engineering = false
	case CmdBluetooth:
		v.state.Bluetooth = len(payload) >= 1 && payload[0] == 0x01
	case CmdReadMAC:
		return frame.BuildAck(cmd, 0, v.state.MAC[:])
	default:
		return frame.BuildAck(cmd, 1, nil)
	}
	return frame.BuildAck(cmd, 0, nil)
}

// params decodes 6-byte parameter records keyed by parameter word
func params(payload []byte) map[uint16]uint32 {
	out := make(map[uint16]uint32)
	for i := 0; i+6 <= len(payload); i += 6 {
		out[binary.LittleEndian.Uint16(payload[i:])] = binary.LittleEndian.Uint32(payload[i+2:])
	}
	return out
}

func (v *VirtualLD2410) applyMaxValues(payload []byte) bool {
	p := params(payload)
	moving, okM := p[0x0000]
	stationary, okS := p[0x0001]
	idle, okI := p[0x0002]
	if !okM || !okS || !okI || moving < 2 || moving > 8 || stationary < 2 || stationary > 8 {
		return false
	}
	v.state.MaxMovingGate = uint8(moving)
	v.state.MaxStationaryGate = uint8(stationary)
	v.state.IdleTimeout = uint16(idle)
	return true
}

func (v *VirtualLD2410) applySensitivity(payload []byte) bool {
	p := params(payload)
	gate, okG := p[0x0000]
	moving, okM := p[0x0001]
	stationary, okS := p[0x0002]
	if !okG || !okM || !okS || moving > 100 || stationary > 100 {
		return false
	}
	switch {
	case gate == 0xFFFF:
		for i := range v.state.MotionSensitivity {
			v.state.MotionSensitivity[i] = uint8(moving)
			v.state.StationarySensitivity[i] = uint8(stationary)
		}
	case gate < 9:
		v.state.MotionSensitivity[gate] = uint8(moving)
		v.state.StationarySensitivity[gate] = uint8(stationary)
	default:
		return false
	}
	return true
}

func (v *VirtualLD2410) parameterBody() []byte {
	body := []byte{0xAA, 8, v.state.MaxMovingGate, v.state.MaxStationaryGate}
	body = append(body, v.state.MotionSensitivity[:]...)
	body = append(body, v.state.StationarySensitivity[:]...)
	return binary.LittleEndian.AppendUint16(body, v.state.IdleTimeout)
}

// buildReport encodes the current target. Caller holds mu.
func (v *VirtualLD2410) buildReport() []byte {
	t := v.target
	body := []byte{t.State}
	body = binary.LittleEndian.AppendUint16(body, t.MovingDistance)
	body = append(body, t.MovingEnergy)
	body = binary.LittleEndian.AppendUint16(body, t.StationaryDistance)
	body = append(body, t.StationaryEnergy)
	body = binary.LittleEndian.AppendUint16(body, t.DetectionDistance)

	if !v.state.Engineering {
		return frame.BuildReport(frame.ReportTypeBasic, body)
	}

	body = append(body, v.state.MaxMovingGate, v.state.MaxStationaryGate)
	for gate := range 9 {
		body = append(body, gateEnergy(t.MovingEnergy, gate))
	}
	for gate := range 9 {
		body = append(body, gateEnergy(t.StationaryEnergy, gate))
	}
	// Light level and OUT pin
	out := byte(0)
	if t.State != 0 {
		out = 1
	}
	body = append(body, 0x40, out)
	return frame.BuildReport(frame.ReportTypeEngineering, body)
}

// gateEnergy spreads a target energy over the gates, peaking at gate 2
func gateEnergy(energy uint8, gate int) uint8 {
	dist := gate - 2
	if dist < 0 {
		dist = -dist
	}
	e := int(energy) - 15*dist
	if e < 0 {
		return 0
	}
	return uint8(e)
}
