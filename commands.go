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
	"context"
	"fmt"
	"time"

	"github.com/ncmreynolds/ld2410/internal/frame"
)

// AllGates addresses every gate in SetGateSensitivityThreshold
const AllGates = 0xFFFF

// Parameter limits accepted by the sensor
const (
	MinMaxGate     = 2
	MaxMaxGate     = 8
	MaxSensitivity = 100
)

// Parameter words of multi-field commands
const (
	paramMaxMovingGate     = 0x0000
	paramMaxStationaryGate = 0x0001
	paramIdleTimeout       = 0x0002

	paramGate                  = 0x0000
	paramMotionSensitivity     = 0x0001
	paramStationarySensitivity = 0x0002
)

// BaudRate is the index the sensor uses to select its UART speed.
type BaudRate uint16

// Baud rate indexes
const (
	BaudRate9600   BaudRate = 0x0001
	BaudRate19200  BaudRate = 0x0002
	BaudRate38400  BaudRate = 0x0003
	BaudRate57600  BaudRate = 0x0004
	BaudRate115200 BaudRate = 0x0005
	BaudRate230400 BaudRate = 0x0006
	BaudRate256000 BaudRate = 0x0007 // factory default
	BaudRate460800 BaudRate = 0x0008
)

var baudRates = map[BaudRate]int{
	BaudRate9600:   9600,
	BaudRate19200:  19200,
	BaudRate38400:  38400,
	BaudRate57600:  57600,
	BaudRate115200: 115200,
	BaudRate230400: 230400,
	BaudRate256000: 256000,
	BaudRate460800: 460800,
}

// Bits returns the line speed in bits per second, or 0 for an unknown index
func (b BaudRate) Bits() int {
	return baudRates[b]
}

// BaudRateFor returns the index for a line speed
func BaudRateFor(bps int) (BaudRate, error) {
	for idx, rate := range baudRates {
		if rate == bps {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("%w: unsupported baud rate %d", ErrInvalidParameter, bps)
}

// RequestFirmwareVersion reads the firmware version into the state
func (d *Device) RequestFirmwareVersion(ctx context.Context) (FirmwareVersion, error) {
	ack, err := d.runCommand(ctx, cmdReadFirmware, nil)
	if err != nil {
		return FirmwareVersion{}, err
	}
	return *ack.Firmware, nil
}

// RequestCurrentConfiguration reads the gate and timeout parameters into the state
func (d *Device) RequestCurrentConfiguration(ctx context.Context) (Configuration, error) {
	ack, err := d.runCommand(ctx, cmdReadParameters, nil)
	if err != nil {
		return Configuration{}, err
	}
	return *ack.Config, nil
}

// RequestStartEngineeringMode makes the sensor emit per-gate energies
func (d *Device) RequestStartEngineeringMode(ctx context.Context) error {
	_, err := d.runCommand(ctx, cmdEngineeringOn, nil)
	return err
}

// RequestEndEngineeringMode returns the sensor to basic reports
func (d *Device) RequestEndEngineeringMode(ctx context.Context) error {
	_, err := d.runCommand(ctx, cmdEngineeringOff, nil)
	return err
}

// SetMaxValues sets the farthest moving and stationary gates (2-8) and the
// number of seconds presence is held after the last detection.
func (d *Device) SetMaxValues(ctx context.Context, movingGate, stationaryGate uint8, idleSeconds uint16) error {
	if err := checkMaxGate(movingGate); err != nil {
		return err
	}
	if err := checkMaxGate(stationaryGate); err != nil {
		return err
	}

	payload := make([]byte, 0, 18)
	payload = append(payload, frame.Param(paramMaxMovingGate, uint32(movingGate))...)
	payload = append(payload, frame.Param(paramMaxStationaryGate, uint32(stationaryGate))...)
	payload = append(payload, frame.Param(paramIdleTimeout, uint32(idleSeconds))...)

	_, err := d.runCommand(ctx, cmdSetMaxValues, payload)
	return err
}

// SetGateSensitivityThreshold sets the motion and stationary thresholds
// (0-100) of one gate, or of every gate when gate is AllGates.
func (d *Device) SetGateSensitivityThreshold(ctx context.Context, gate uint16, moving, stationary uint8) error {
	if gate != AllGates && gate >= GateCount {
		return fmt.Errorf("%w: %d", ErrGateOutOfRange, gate)
	}
	if moving > MaxSensitivity || stationary > MaxSensitivity {
		return fmt.Errorf("%w: sensitivity %d/%d above %d", ErrInvalidParameter, moving, stationary, MaxSensitivity)
	}

	payload := make([]byte, 0, 18)
	payload = append(payload, frame.Param(paramGate, uint32(gate))...)
	payload = append(payload, frame.Param(paramMotionSensitivity, uint32(moving))...)
	payload = append(payload, frame.Param(paramStationarySensitivity, uint32(stationary))...)

	_, err := d.runCommand(ctx, cmdSetGateSensitivity, payload)
	return err
}

// RequestFactoryReset restores the factory configuration. It applies after
// a restart.
func (d *Device) RequestFactoryReset(ctx context.Context) error {
	_, err := d.runCommand(ctx, cmdFactoryReset, nil)
	return err
}

// RequestRestart restarts the sensor
func (d *Device) RequestRestart(ctx context.Context) error {
	_, err := d.runCommand(ctx, cmdRestart, nil)
	return err
}

// RequestMACAddress reads the bluetooth MAC address into the state
func (d *Device) RequestMACAddress(ctx context.Context) error {
	_, err := d.runCommand(ctx, cmdReadMAC, frame.Word(0x0001))
	return err
}

// SetBaudRate changes the sensor UART speed. It applies after a restart,
// after which the transport must be reopened at the new speed.
func (d *Device) SetBaudRate(ctx context.Context, rate BaudRate) error {
	if rate.Bits() == 0 {
		return fmt.Errorf("%w: baud rate index %d", ErrInvalidParameter, rate)
	}
	_, err := d.runCommand(ctx, cmdSetBaudRate, frame.Word(uint16(rate)))
	return err
}

// SetBluetooth turns the sensor's bluetooth radio on or off. It applies
// after a restart.
func (d *Device) SetBluetooth(ctx context.Context, enabled bool) error {
	var v uint16
	if enabled {
		v = 0x0001
	}
	_, err := d.runCommand(ctx, cmdBluetooth, frame.Word(v))
	return err
}

func checkMaxGate(gate uint8) error {
	if gate < MinMaxGate || gate > MaxMaxGate {
		return fmt.Errorf("%w: max gate %d outside %d-%d", ErrInvalidParameter, gate, MinMaxGate, MaxMaxGate)
	}
	return nil
}

// runCommand brackets one command with enable and end configuration.
// The end step always runs and its outcome never changes the result.
func (d *Device) runCommand(ctx context.Context, cmd byte, payload []byte) (*Ack, error) {
	d.ioMu.Lock()
	defer d.ioMu.Unlock()

	tb := NewTraceBuffer(string(d.transport.Type()), 16)
	defer d.endConfiguration(context.WithoutCancel(ctx), tb)

	if _, err := d.exchange(ctx, tb, cmdEnableConfig, frame.Word(0x0001)); err != nil {
		return nil, tb.WrapError(fmt.Errorf("%s: enable configuration: %w", CommandName(cmd), err))
	}

	ack, err := d.exchange(ctx, tb, cmd, payload)
	if err != nil {
		return nil, tb.WrapError(fmt.Errorf("%s: %w", CommandName(cmd), err))
	}
	return ack, nil
}

func (d *Device) endConfiguration(ctx context.Context, tb *TraceBuffer) {
	if _, err := d.exchange(ctx, tb, cmdEndConfig, nil); err != nil {
		d.tracef("end configuration: %v", err)
	}
}

// exchange writes one command frame and polls for its ack until the
// command timeout passes. Caller holds ioMu.
func (d *Device) exchange(ctx context.Context, tb *TraceBuffer, cmd byte, payload []byte) (*Ack, error) {
	out := frame.BuildCommand(cmd, payload)
	tb.RecordTX(out, CommandName(cmd))
	d.tracef("TX %s % X", CommandName(cmd), out)

	d.awaiting, d.reply = cmd, nil
	defer func() { d.awaiting, d.reply = 0, nil }()

	if _, err := d.transport.Write(out); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(d.config.CommandTimeout)
	timer := time.NewTimer(CommandPollInterval)
	defer timer.Stop()

	for {
		if _, err := d.pump(tb); err != nil {
			return nil, err
		}
		if d.reply != nil {
			return d.reply.ack, d.reply.err
		}
		if !time.Now().Before(deadline) {
			tb.RecordTimeout(CommandName(cmd))
			return nil, NewCommandTimeoutError(cmd)
		}

		timer.Reset(CommandPollInterval)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("awaiting %s ack: %w", CommandName(cmd), ctx.Err())
		case <-timer.C:
		}
	}
}
