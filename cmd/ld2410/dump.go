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
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ncmreynolds/ld2410"
)

// deviceDump is the YAML document printed by -dump and the shell's dump
type deviceDump struct {
	Firmware      string       `yaml:"firmware"`
	MAC           string       `yaml:"mac,omitempty"`
	Transport     string       `yaml:"transport"`
	Protocol      uint16       `yaml:"protocol"`
	BufferSize    uint16       `yaml:"bufferSize"`
	Configuration dumpedConfig `yaml:"configuration"`
}

type dumpedConfig struct {
	Gates             []dumpedGate `yaml:"gates"`
	IdleTimeout       uint16       `yaml:"idleTimeout"`
	MaxGate           uint8        `yaml:"maxGate"`
	MaxMovingGate     uint8        `yaml:"maxMovingGate"`
	MaxStationaryGate uint8        `yaml:"maxStationaryGate"`
}

type dumpedGate struct {
	Gate       int   `yaml:"gate"`
	Motion     uint8 `yaml:"motion"`
	Stationary uint8 `yaml:"stationary"`
}

// buildDump reads everything the sensor will tell about itself. The MAC
// read is optional; older firmware rejects it.
func buildDump(ctx context.Context, device *ld2410.Device) (*deviceDump, error) {
	fw, err := device.RequestFirmwareVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware version: %w", err)
	}
	cfg, err := device.RequestCurrentConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	dump := &deviceDump{
		Firmware:   fw.String(),
		Transport:  string(device.Transport().Type()),
		Protocol:   device.ProtocolVersion(),
		BufferSize: device.BufferSize(),
		Configuration: dumpedConfig{
			IdleTimeout:       cfg.IdleTimeout,
			MaxGate:           cfg.MaxGate,
			MaxMovingGate:     cfg.MaxMovingGate,
			MaxStationaryGate: cfg.MaxStationaryGate,
		},
	}
	if err := device.RequestMACAddress(ctx); err == nil {
		dump.MAC = device.MACAddress().String()
	}
	for gate := range ld2410.GateCount {
		dump.Configuration.Gates = append(dump.Configuration.Gates, dumpedGate{
			Gate:       gate,
			Motion:     cfg.MotionSensitivity[gate],
			Stationary: cfg.StationarySensitivity[gate],
		})
	}
	return dump, nil
}

func writeDump(w io.Writer, dump *deviceDump) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(dump); err != nil {
		return fmt.Errorf("failed to encode dump: %w", err)
	}
	return enc.Close()
}

func runDumpMode(ctx context.Context, device *ld2410.Device, out io.Writer) error {
	dump, err := buildDump(ctx, device)
	if err != nil {
		return err
	}
	return writeDump(out, dump)
}
