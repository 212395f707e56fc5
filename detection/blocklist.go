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

package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist returns USB devices that must not be opened during
// detection. Opening an Arduino's port toggles DTR and resets the board.
// Format: VID:PID in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno R3
		"2341:0042", // Arduino Mega 2560 R3
		"2341:8036", // Arduino Leonardo
		"2A03:0043", // Arduino.org Uno
	}
}

// knownBridges are the USB-UART bridges LD2410 breakout boards and
// adapters ship with.
var knownBridges = map[string]string{
	"1A86:7523": "QinHeng CH340",
	"1A86:55D4": "QinHeng CH9102",
	"10C4:EA60": "Silicon Labs CP210x",
	"0403:6001": "FTDI FT232R",
	"0403:6015": "FTDI FT231X",
	"067B:2303": "Prolific PL2303",
}

// KnownBridge returns the name of a USB-UART bridge commonly used with the
// sensor.
func KnownBridge(vidpid string) (string, bool) {
	name, ok := knownBridges[NormalizeVIDPID(vidpid)]
	return name, ok
}

// NormalizeVIDPID upper-cases and trims a "VID:PID" pair
func NormalizeVIDPID(vidpid string) string {
	return strings.ToUpper(strings.TrimSpace(vidpid))
}

// FormatVIDPID joins separate vendor and product ids
func FormatVIDPID(vid, pid string) string {
	if vid == "" || pid == "" {
		return ""
	}
	return NormalizeVIDPID(vid + ":" + pid)
}

// IsBlocked checks if a USB device is in the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = NormalizeVIDPID(vidpid)
	for _, blocked := range blocklist {
		if vidpid == NormalizeVIDPID(blocked) {
			return true
		}
	}
	return false
}

// IsPathIgnored checks if a device path should be ignored. Paths compare
// after cleaning and case folding, since Windows port names are
// case-insensitive.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	normalized := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath != "" && normalizedPath(ignorePath) == normalized {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
