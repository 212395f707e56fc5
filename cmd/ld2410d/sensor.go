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

package main

import (
	"context"

	"github.com/ncmreynolds/ld2410"
)

// liveSensor forwards API calls to whichever device the poller currently
// holds, so requests keep working after a reconnect.
type liveSensor struct {
	current func() *ld2410.Device
}

func (s *liveSensor) State() ld2410.State {
	return s.current().State()
}

func (s *liveSensor) IsConnected() bool {
	return s.current().IsConnected()
}

func (s *liveSensor) RequestFirmwareVersion(ctx context.Context) (ld2410.FirmwareVersion, error) {
	return s.current().RequestFirmwareVersion(ctx)
}

func (s *liveSensor) RequestCurrentConfiguration(ctx context.Context) (ld2410.Configuration, error) {
	return s.current().RequestCurrentConfiguration(ctx)
}

func (s *liveSensor) RequestStartEngineeringMode(ctx context.Context) error {
	return s.current().RequestStartEngineeringMode(ctx)
}

func (s *liveSensor) RequestEndEngineeringMode(ctx context.Context) error {
	return s.current().RequestEndEngineeringMode(ctx)
}

func (s *liveSensor) SetMaxValues(ctx context.Context, movingGate, stationaryGate uint8, idleSeconds uint16) error {
	return s.current().SetMaxValues(ctx, movingGate, stationaryGate, idleSeconds)
}

func (s *liveSensor) SetGateSensitivityThreshold(ctx context.Context, gate uint16, moving, stationary uint8) error {
	return s.current().SetGateSensitivityThreshold(ctx, gate, moving, stationary)
}

func (s *liveSensor) RequestFactoryReset(ctx context.Context) error {
	return s.current().RequestFactoryReset(ctx)
}

func (s *liveSensor) RequestRestart(ctx context.Context) error {
	return s.current().RequestRestart(ctx)
}

func (s *liveSensor) RequestMACAddress(ctx context.Context) error {
	return s.current().RequestMACAddress(ctx)
}

func (s *liveSensor) SetBaudRate(ctx context.Context, rate ld2410.BaudRate) error {
	return s.current().SetBaudRate(ctx, rate)
}

func (s *liveSensor) SetBluetooth(ctx context.Context, enabled bool) error {
	return s.current().SetBluetooth(ctx, enabled)
}
