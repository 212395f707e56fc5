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

// Package detection finds LD2410 sensors attached through USB serial
// bridges. Transport-specific detectors register themselves on import.
package detection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Mode represents the level of invasiveness for device detection
type Mode int

const (
	// Passive mode only checks port descriptors without opening ports
	Passive Mode = iota
	// Safe mode opens candidate ports and listens for report frames without
	// writing anything
	Safe
	// Full mode also runs the firmware handshake
	Full
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Safe:
		return "safe"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a mode name as returned by String
func ParseMode(name string) (Mode, error) {
	for _, m := range []Mode{Passive, Safe, Full} {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown detection mode %q", name)
}

// Confidence represents the confidence level of device detection
type Confidence int

const (
	// Low confidence - an unidentified serial port
	Low Confidence = iota
	// Medium confidence - a USB bridge commonly paired with the LD2410
	Medium
	// High confidence - frames from an LD2410 were seen on the port
	High
)

// String returns the confidence name
func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Metadata keys set by detectors
const (
	MetaVIDPID       = "vidpid"
	MetaManufacturer = "manufacturer"
	MetaProduct      = "product"
	MetaSerial       = "serial"
	MetaBaudRate     = "baud"
	MetaFirmware     = "firmware"
)

// DeviceInfo represents a detected sensor
type DeviceInfo struct {
	// Additional metadata (see the Meta* keys)
	Metadata map[string]string
	// Transport type, e.g. "uart"
	Transport string
	// Connection path (e.g., "/dev/ttyUSB0", "COM3")
	Path string
	// Human-readable device name
	Name string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["2341:0043"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Which transports to check (empty = all)
	Transports []string
	// Line speeds tried when opening a port, in order
	BaudRates []int
	// Cache TTL duration
	CacheTTL time.Duration
	// Maximum time to wait for detection
	Timeout time.Duration
	// How long Safe and Full modes listen on each port
	ListenTime time.Duration
	// Detection invasiveness level
	Mode Mode
	// Candidates below this confidence are dropped
	MinConfidence Confidence
	// Enable result caching
	EnableCache bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:        Safe,
		Timeout:     5 * time.Second,
		ListenTime:  250 * time.Millisecond,
		BaudRates:   []int{256000, 115200},
		Blocklist:   DefaultBlocklist(),
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector interface for transport-specific device detection
type Detector interface {
	// Detect searches for devices using the given options
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the transport type this detector handles
	Transport() string
}

// Errors
var (
	// ErrNoDevicesFound indicates no sensors were detected
	ErrNoDevicesFound = errors.New("no LD2410 sensors found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrNoDetectors indicates no detector handles the requested transports
	ErrNoDetectors = errors.New("no detectors available for specified transports")
)

// registry holds all registered detectors
var registry []Detector

// RegisterDetector adds a detector to the registry
func RegisterDetector(d Detector) {
	registry = append(registry, d)
}

// getDetectors returns detectors filtered by transport types
func getDetectors(transports []string) []Detector {
	if len(transports) == 0 {
		return registry
	}

	var filtered []Detector
	for _, d := range registry {
		for _, t := range transports {
			if d.Transport() == t {
				filtered = append(filtered, d)
				break
			}
		}
	}
	return filtered
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll runs every matching detector in parallel and merges the
// results, best candidates first.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	return detectWith(ctx, getDetectors(opts.Transports), opts)
}

func detectWith(ctx context.Context, detectors []Detector, opts *Options) ([]DeviceInfo, error) {
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan detectionResult, len(detectors))
	for _, d := range detectors {
		go func() {
			results <- runSingleDetector(ctx, d, opts)
		}()
	}

	var all []DeviceInfo
	var errs []error
	for range detectors {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
			} else {
				all = append(all, res.devices...)
			}
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	// Devices win over partial failures
	if ranked := rank(all, opts.MinConfidence); len(ranked) > 0 {
		return ranked, nil
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return nil, ErrNoDevicesFound
}

// rank orders devices by descending confidence, keeping the first of equal
// candidates in detector order, and collapses duplicate paths onto their
// most confident entry.
func rank(devices []DeviceInfo, minConfidence Confidence) []DeviceInfo {
	ranked := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d.Confidence >= minConfidence {
			ranked = append(ranked, d)
		}
	}
	slices.SortStableFunc(ranked, func(a, b DeviceInfo) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	seen := make(map[string]bool, len(ranked))
	out := ranked[:0]
	for _, d := range ranked {
		if seen[d.Path] {
			continue
		}
		seen[d.Path] = true
		out = append(out, d)
	}
	return out
}

// runSingleDetector performs detection for a single detector, consulting
// the cache first
func runSingleDetector(ctx context.Context, detector Detector, opts *Options) detectionResult {
	if opts.EnableCache {
		if cached, found := defaultCache.get(detector.Transport(), opts.CacheTTL); found {
			// Cached results bypassed Detect, so filter them again
			return detectionResult{devices: filterDevices(cached, opts)}
		}
	}

	devices, err := detector.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return detectionResult{err: err}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			defaultCache.set(detector.Transport(), devices)
		} else {
			// A sensor that was unplugged must not linger until the TTL expires
			defaultCache.clear(detector.Transport())
		}
	}
	return detectionResult{devices: devices}
}

// filterDevices applies IgnorePaths and Blocklist filtering to a device list
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata[MetaVIDPID]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	defaultCache.clear("")
}

// ClearDetectionCacheForTransport removes cached results for a specific transport
func ClearDetectionCacheForTransport(transport string) {
	if transport == "" {
		return
	}
	defaultCache.clear(transport)
}
