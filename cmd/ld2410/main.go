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
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ncmreynolds/ld2410"
	"github.com/ncmreynolds/ld2410/detection"
	"github.com/ncmreynolds/ld2410/internal/connect"
	"github.com/ncmreynolds/ld2410/polling"
)

type config struct {
	devicePath   string
	detectMode   detection.Mode
	baud         int
	presenceHold time.Duration
	stressCycles int
	debug        bool
	engineering  bool
	shell        bool
	dump         bool
}

// Package-level flag variables
var (
	flagDevicePath   string
	flagDetectMode   string
	flagBaud         int
	flagPresenceHold time.Duration
	flagStressCycles int
	flagDebug        bool
	flagEngineering  bool
	flagShell        bool
	flagDump         bool

	flagArgs = flag.Args
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "", "Serial port or socket://host:port bridge (auto-detect if empty)")
	flag.StringVar(&flagDetectMode, "detect", "safe", "Auto-detection mode: passive, safe or full")
	flag.IntVar(&flagBaud, "baud", 256000, "Serial baud rate")
	flag.DurationVar(&flagPresenceHold, "hold", time.Second, "Time without a target before absence is reported")
	flag.IntVar(&flagStressCycles, "stress", 0, "Run N configuration round trips while reading reports, then exit")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagEngineering, "engineering", false, "Switch the sensor to engineering reports")
	flag.BoolVar(&flagShell, "shell", false, "Start an interactive configuration shell")
	flag.BoolVar(&flagDump, "dump", false, "Print firmware, MAC and configuration as YAML, then exit")
}

func parseConfig() (*config, error) {
	mode, err := detection.ParseMode(flagDetectMode)
	if err != nil {
		return nil, err
	}
	cfg := &config{
		devicePath:   flagDevicePath,
		detectMode:   mode,
		baud:         flagBaud,
		presenceHold: flagPresenceHold,
		stressCycles: flagStressCycles,
		debug:        flagDebug,
		engineering:  flagEngineering,
		shell:        flagShell,
		dump:         flagDump,
	}

	// Enable debug output if --debug flag is set
	if cfg.debug {
		ld2410.SetDebugEnabled(true)
	}
	return cfg, nil
}

func connectToDevice(ctx context.Context, cfg *config) (*ld2410.Device, error) {
	opts := connect.DefaultOptions()
	opts.Path = cfg.devicePath
	opts.Baud = cfg.baud
	opts.Mode = cfg.detectMode

	if cfg.debug {
		if cfg.devicePath == "" {
			_, _ = fmt.Println("Auto-detecting LD2410 sensors...")
		} else {
			_, _ = fmt.Printf("Opening device: %s\n", cfg.devicePath)
		}
	}

	device, err := connect.Device(ctx, opts)
	if err != nil {
		return nil, err
	}

	if cfg.debug {
		_, _ = fmt.Printf("LD2410 Firmware: %s\n", device.FirmwareVersion())
	}
	return device, nil
}

// printReport writes one line per report
func printReport(w io.Writer, state ld2410.State) {
	r := state.Report
	_, _ = fmt.Fprintf(w, "%s target=%-17s moving=%3dcm/%3d stationary=%3dcm/%3d detect=%3dcm",
		state.LastReport.Format("15:04:05.000"), r.State, r.MovingDistance, r.MovingEnergy,
		r.StationaryDistance, r.StationaryEnergy, r.DetectionDistance)
	if r.Engineering {
		_, _ = fmt.Fprintf(w, " gates=%v/%v light=%d out=%t",
			r.MovingGateEnergy, r.StationaryGateEnergy, r.LightLevel(), r.OutPinHigh())
	}
	_, _ = fmt.Fprintln(w)
}

func runWatchMode(ctx context.Context, device *ld2410.Device, cfg *config, out io.Writer) error {
	pollConfig := polling.DefaultConfig()
	pollConfig.PresenceHoldTime = cfg.presenceHold

	poller, err := polling.New(device, pollConfig, polling.WithCallbacks(polling.Callbacks{
		OnReport: func(state ld2410.State) {
			printReport(out, state)
		},
		OnPresenceChanged: func(present bool, _ ld2410.State) {
			if present {
				_, _ = fmt.Fprintln(out, "Presence detected")
			} else {
				_, _ = fmt.Fprintln(out, "Presence cleared")
			}
		},
		OnError: func(err error) {
			if cfg.debug {
				_, _ = fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			}
		},
	}))
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	_, _ = fmt.Fprintln(out, "Streaming reports. Press Ctrl+C to stop...")
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("polling stopped: %w", err)
	}
	return ctx.Err()
}

func run(ctx context.Context, cfg *config) error {
	// Connect to device
	device, err := connectToDevice(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	if cfg.engineering {
		if err := device.RequestStartEngineeringMode(ctx); err != nil {
			return fmt.Errorf("failed to enable engineering mode: %w", err)
		}
	}

	switch {
	case cfg.dump:
		return runDumpMode(ctx, device, os.Stdout)
	case cfg.shell:
		return runShellMode(ctx, device)
	case cfg.stressCycles > 0:
		return runStressMode(ctx, device, cfg.stressCycles, os.Stdout)
	default:
		return runWatchMode(ctx, device, cfg, os.Stdout)
	}
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// Parse command-line flags
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	// Debug output is also captured in a session log for bug reports
	if cfg.debug {
		path, err := ld2410.InitSessionLog("")
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			_, _ = fmt.Printf("Session log: %s\n", path)
			defer func() { _ = ld2410.CloseSessionLog() }()
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
