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
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ncmreynolds/ld2410"
	"github.com/ncmreynolds/ld2410/polling"
)

// StressTestResult holds the outcome of a stress run.
type StressTestResult struct {
	Firmware  string
	CrashFile string
	Cycles    int
	Passed    int
	Failed    int
	Reports   uint64
	Duration  time.Duration
	Success   bool
}

// CrashReport contains all information for debugging a failure.
type CrashReport struct {
	Timestamp    time.Time  `json:"timestamp"`
	Firmware     string     `json:"firmware"`
	Transport    string     `json:"transport"`
	Operation    string     `json:"operation"`
	Error        string     `json:"error"`
	Expected     string     `json:"expected,omitempty"`
	Actual       string     `json:"actual,omitempty"`
	WireTrace    []string   `json:"wire_trace,omitempty"`
	OperationLog []LogEntry `json:"operation_log"`
	Cycle        int        `json:"cycle"`
}

// LogEntry represents a single operation in the log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	Success   bool      `json:"success"`
}

// stressRun tracks one stress run against a single sensor
type stressRun struct {
	device *ld2410.Device
	out    io.Writer
	result *StressTestResult
	opLog  []LogEntry
}

// gateSetting is one gate's pair of thresholds
type gateSetting struct {
	gate       uint16
	moving     uint8
	stationary uint8
}

func (g gateSetting) String() string {
	return fmt.Sprintf("gate %d motion=%d stationary=%d", g.gate, g.moving, g.stationary)
}

func printStressTestBanner(out io.Writer, cycles int) {
	_, _ = fmt.Fprintln(out, "================================================================================")
	_, _ = fmt.Fprintln(out, "                       LD2410 Configuration Stress Test")
	_, _ = fmt.Fprintln(out, "================================================================================")
	_, _ = fmt.Fprintf(out, "Cycles: %d (set, read back and verify one gate while reports stream)\n", cycles)
}

func runStressMode(ctx context.Context, device *ld2410.Device, cycles int, out io.Writer) error {
	result := runStressTest(ctx, device, cycles, out)
	printFinalSummary(out, result)
	if !result.Success {
		return fmt.Errorf("stress test failed: %d of %d cycles failed", result.Failed, result.Cycles)
	}
	return nil
}

func runStressTest(ctx context.Context, device *ld2410.Device, cycles int, out io.Writer) *StressTestResult {
	printStressTestBanner(out, cycles)

	run := &stressRun{
		device: device,
		out:    out,
		result: &StressTestResult{Firmware: device.FirmwareVersion().String(), Cycles: cycles},
		opLog:  make([]LogEntry, 0, 3*cycles+2),
	}
	started := time.Now()

	// Reports keep flowing while commands run
	poller, err := polling.New(device, polling.DefaultConfig())
	if err != nil {
		_, _ = fmt.Fprintf(out, "  [!] Failed to create poller: %v\n", err)
		run.result.Failed = cycles
		return run.result
	}
	if err := poller.Start(ctx); err != nil {
		_, _ = fmt.Fprintf(out, "  [!] Failed to start poller: %v\n", err)
		run.result.Failed = cycles
		return run.result
	}

	original, err := run.readConfiguration(ctx)
	if err != nil {
		poller.Stop()
		run.handleFailure(0, "read_original", err, "", "")
		run.result.Failed = cycles
		return run.result
	}

	for cycle := 1; cycle <= cycles; cycle++ {
		if ctx.Err() != nil {
			break
		}
		if err := run.runCycle(ctx, cycle); err != nil {
			run.result.Failed++
			break
		}
		run.result.Passed++
	}

	run.restore(ctx, original)
	poller.Stop()

	run.result.Reports = poller.GetMetrics().Reports
	run.result.Duration = time.Since(started)
	run.result.Success = run.result.Failed == 0 && run.result.Passed == cycles
	return run.result
}

func (r *stressRun) log(operation, detail string, err error) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Operation: operation,
		Detail:    detail,
		Success:   err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.opLog = append(r.opLog, entry)
}

func (r *stressRun) readConfiguration(ctx context.Context) (ld2410.Configuration, error) {
	cfg, err := r.device.RequestCurrentConfiguration(ctx)
	r.log("read_configuration", "", err)
	return cfg, err
}

// runCycle writes random thresholds to a random gate and checks they stuck
func (r *stressRun) runCycle(ctx context.Context, cycle int) error {
	want := gateSetting{
		gate:       uint16(randomInt(0, ld2410.GateCount-1)),
		moving:     uint8(randomInt(0, ld2410.MaxSensitivity)),
		stationary: uint8(randomInt(0, ld2410.MaxSensitivity)),
	}

	_, _ = fmt.Fprintf(r.out, "  [%3d] Set %s... ", cycle, want)
	err := r.device.SetGateSensitivityThreshold(ctx, want.gate, want.moving, want.stationary)
	r.log(fmt.Sprintf("set_%d", cycle), want.String(), err)
	if err != nil {
		_, _ = fmt.Fprintln(r.out, "FAIL")
		r.handleFailure(cycle, "set", err, want.String(), "")
		return err
	}

	_, _ = fmt.Fprint(r.out, "OK  Read... ")
	cfg, err := r.readConfiguration(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(r.out, "FAIL")
		r.handleFailure(cycle, "read", err, want.String(), "")
		return err
	}

	_, _ = fmt.Fprint(r.out, "OK  Verify... ")
	got := gateSetting{
		gate:       want.gate,
		moving:     cfg.MotionSensitivity[want.gate],
		stationary: cfg.StationarySensitivity[want.gate],
	}
	err = verifyGateSetting(want, got)
	r.log(fmt.Sprintf("verify_%d", cycle), got.String(), err)
	if err != nil {
		_, _ = fmt.Fprintln(r.out, "FAIL")
		r.handleFailure(cycle, "verify", err, want.String(), got.String())
		return err
	}
	_, _ = fmt.Fprintln(r.out, "OK")
	return nil
}

// restore writes back every gate's original thresholds
func (r *stressRun) restore(ctx context.Context, original ld2410.Configuration) {
	_, _ = fmt.Fprint(r.out, "  Restoring original thresholds... ")
	for gate := range ld2410.GateCount {
		err := r.device.SetGateSensitivityThreshold(ctx, uint16(gate),
			original.MotionSensitivity[gate], original.StationarySensitivity[gate])
		if err != nil {
			_, _ = fmt.Fprintf(r.out, "FAIL (gate %d: %v)\n", gate, err)
			return
		}
	}
	_, _ = fmt.Fprintln(r.out, "OK")
}

func verifyGateSetting(want, got gateSetting) error {
	if want.moving != got.moving || want.stationary != got.stationary {
		return fmt.Errorf("threshold mismatch on gate %d: expected %d/%d, got %d/%d",
			want.gate, want.moving, want.stationary, got.moving, got.stationary)
	}
	return nil
}

func (r *stressRun) handleFailure(cycle int, operation string, err error, expected, actual string) {
	_, _ = fmt.Fprintf(r.out, "\n  [!] FAILURE at cycle %d (%s): %v\n", cycle, operation, err)
	if errors.Is(err, ld2410.ErrCommandTimeout) {
		_, _ = fmt.Fprintln(r.out, "  [!] Sensor stopped answering - check wiring and baud rate")
	}

	report := r.createCrashReport(cycle, operation, err, expected, actual)
	filename, writeErr := writeCrashReportToFile(report)
	if writeErr != nil {
		_, _ = fmt.Fprintf(r.out, "  [!] Failed to write crash report: %v\n", writeErr)
		return
	}
	_, _ = fmt.Fprintf(r.out, "  Creating crash report... %s\n", filename)
	r.result.CrashFile = filename
}

func (r *stressRun) createCrashReport(cycle int, operation string, err error, expected, actual string) *CrashReport {
	report := &CrashReport{
		Timestamp:    time.Now(),
		Firmware:     r.result.Firmware,
		Transport:    string(r.device.Transport().Type()),
		Operation:    operation,
		Error:        err.Error(),
		Expected:     expected,
		Actual:       actual,
		OperationLog: r.opLog,
		Cycle:        cycle,
	}
	if te := ld2410.GetTrace(err); te != nil {
		for _, entry := range te.Trace {
			report.WireTrace = append(report.WireTrace, entry.String())
		}
	}
	return report
}

// crashReportDir is where crash reports are written
var crashReportDir = "."

func writeCrashReportToFile(report *CrashReport) (string, error) {
	filename := fmt.Sprintf("%s/ld2410_crash_%s_cycle%d.json",
		crashReportDir, report.Timestamp.Format("20060102_150405"), report.Cycle)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal crash report: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write crash report: %w", err)
	}
	return filename, nil
}

func printFinalSummary(out io.Writer, result *StressTestResult) {
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "================================================================================")
	_, _ = fmt.Fprintln(out, "                                  SUMMARY")
	_, _ = fmt.Fprintln(out, "================================================================================")

	status := "PASS"
	if !result.Success {
		status = "FAIL"
	}
	_, _ = fmt.Fprintf(out, "Firmware %s: %s  %d/%d cycles  %d reports  %v\n",
		result.Firmware, status, result.Passed, result.Cycles, result.Reports,
		result.Duration.Round(time.Millisecond))
	if result.CrashFile != "" {
		_, _ = fmt.Fprintf(out, "Crash report: %s\n", result.CrashFile)
	}
	_, _ = fmt.Fprintln(out, strings.Repeat("=", 80))
}

// randomInt returns a random int in [low, high] inclusive
func randomInt(low, high int) int {
	if low >= high {
		return low
	}
	var b [4]byte
	_, _ = rand.Read(b[:])
	// Simple modulo - not crypto-secure but fine for testing
	n := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
	return low + (n % (high - low + 1))
}
