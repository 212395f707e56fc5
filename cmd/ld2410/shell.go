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
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/ncmreynolds/ld2410"
)

const devicePrompt = "ld2410> "

// shellCommand is a configuration command that can run with or without a terminal
type shellCommand struct {
	run  func(ctx context.Context, device *ld2410.Device, args []string, out io.Writer) error
	name string
	help string
}

var errUsage = errors.New("usage")

var shellCommands = []shellCommand{
	{name: "firmware", help: "read the firmware version", run: cmdFirmware},
	{name: "mac", help: "read the bluetooth MAC address", run: cmdMAC},
	{name: "config", help: "read gate sensitivities and limits", run: cmdConfig},
	{name: "state", help: "print the latest report", run: cmdState},
	{name: "dump", help: "print everything as YAML", run: cmdDump},
	{name: "max", help: "MOVING_GATE STATIONARY_GATE IDLE_SECONDS", run: cmdMax},
	{name: "gate", help: "GATE|all MOVING STATIONARY", run: cmdGate},
	{name: "engineering", help: "on|off", run: cmdEngineering},
	{name: "bluetooth", help: "on|off", run: cmdBluetooth},
	{name: "baud", help: "BPS (takes effect after restart)", run: cmdBaud},
	{name: "restart", help: "restart the sensor", run: cmdRestart},
	{name: "factory-reset", help: "restore factory configuration", run: cmdFactoryReset},
}

func cmdFirmware(ctx context.Context, device *ld2410.Device, _ []string, out io.Writer) error {
	fw, err := device.RequestFirmwareVersion(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, fw)
	return nil
}

func cmdMAC(ctx context.Context, device *ld2410.Device, _ []string, out io.Writer) error {
	if err := device.RequestMACAddress(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, device.MACAddress())
	return nil
}

func cmdConfig(ctx context.Context, device *ld2410.Device, _ []string, out io.Writer) error {
	cfg, err := device.RequestCurrentConfiguration(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "max gate %d, moving %d, stationary %d, idle %ds\n",
		cfg.MaxGate, cfg.MaxMovingGate, cfg.MaxStationaryGate, cfg.IdleTimeout)
	for gate := range ld2410.GateCount {
		_, _ = fmt.Fprintf(out, "gate %d: motion %3d stationary %3d\n",
			gate, cfg.MotionSensitivity[gate], cfg.StationarySensitivity[gate])
	}
	return nil
}

func cmdState(_ context.Context, device *ld2410.Device, _ []string, out io.Writer) error {
	state := device.State()
	if !state.HaveReport {
		_, _ = fmt.Fprintln(out, "no report received yet")
		return nil
	}
	printReport(out, state)
	return nil
}

func cmdDump(ctx context.Context, device *ld2410.Device, _ []string, out io.Writer) error {
	return runDumpMode(ctx, device, out)
}

func cmdMax(ctx context.Context, device *ld2410.Device, args []string, out io.Writer) error {
	if len(args) != 3 {
		return errUsage
	}
	moving, err := parseUint(args[0], 8)
	if err != nil {
		return err
	}
	stationary, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	idle, err := parseUint(args[2], 16)
	if err != nil {
		return err
	}
	if err := device.SetMaxValues(ctx, uint8(moving), uint8(stationary), uint16(idle)); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "OK")
	return nil
}

func cmdGate(ctx context.Context, device *ld2410.Device, args []string, out io.Writer) error {
	if len(args) != 3 {
		return errUsage
	}
	gate := uint64(ld2410.AllGates)
	if args[0] != "all" {
		var err error
		if gate, err = parseUint(args[0], 16); err != nil {
			return err
		}
	}
	moving, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	stationary, err := parseUint(args[2], 8)
	if err != nil {
		return err
	}
	if err := device.SetGateSensitivityThreshold(ctx, uint16(gate), uint8(moving), uint8(stationary)); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "OK")
	return nil
}

func cmdEngineering(ctx context.Context, device *ld2410.Device, args []string, out io.Writer) error {
	on, err := parseSwitch(args)
	if err != nil {
		return err
	}
	if on {
		err = device.RequestStartEngineeringMode(ctx)
	} else {
		err = device.RequestEndEngineeringMode(ctx)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "OK")
	return nil
}

func cmdBluetooth(ctx context.Context, device *ld2410.Device, args []string, out io.Writer) error {
	on, err := parseSwitch(args)
	if err != nil {
		return err
	}
	if err := device.SetBluetooth(ctx, on); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "OK, restart the sensor to apply")
	return nil
}

func cmdBaud(ctx context.Context, device *ld2410.Device, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	bps, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid baud rate %q", args[0])
	}
	rate, err := ld2410.BaudRateFor(bps)
	if err != nil {
		return err
	}
	if err := device.SetBaudRate(ctx, rate); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "OK, restart the sensor to apply")
	return nil
}

func cmdRestart(ctx context.Context, device *ld2410.Device, _ []string, out io.Writer) error {
	if err := device.RequestRestart(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "OK")
	return nil
}

func cmdFactoryReset(ctx context.Context, device *ld2410.Device, _ []string, out io.Writer) error {
	if err := device.RequestFactoryReset(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "OK, restart the sensor to apply")
	return nil
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return v, nil
}

func parseSwitch(args []string) (bool, error) {
	if len(args) != 1 {
		return false, errUsage
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, errUsage
	}
}

// contextWriter sends command output through the ishell context
type contextWriter struct {
	c *ishell.Context
}

func (w contextWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

func newShell(ctx context.Context, device *ld2410.Device) *ishell.Shell {
	shell := ishell.New()
	shell.SetPrompt(devicePrompt)
	for _, sc := range shellCommands {
		shell.AddCmd(&ishell.Cmd{
			Name: sc.name,
			Help: sc.help,
			Func: func(c *ishell.Context) {
				err := sc.run(ctx, device, c.Args, contextWriter{c})
				if errors.Is(err, errUsage) {
					c.Err(fmt.Errorf("usage: %s %s", sc.name, sc.help))
				} else if err != nil {
					c.Err(err)
				}
			},
		})
	}
	return shell
}

func runShellMode(ctx context.Context, device *ld2410.Device) error {
	shell := newShell(ctx, device)

	// Remaining arguments run as a single command without a prompt
	if args := flagArgs(); len(args) > 0 {
		return shell.Process(args...)
	}

	stop := context.AfterFunc(ctx, shell.Close)
	defer stop()

	_, _ = fmt.Printf("Connected to LD2410 %s. Type help for commands.\n", device.FirmwareVersion())
	shell.Run()
	return nil
}
