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

package frame

// Report frame markers, sent by the sensor on its own while it runs.
var (
	ReportHeader = [4]byte{0xF4, 0xF3, 0xF2, 0xF1}
	ReportFooter = [4]byte{0xF8, 0xF7, 0xF6, 0xF5}
)

// Command and acknowledgement frame markers, used in both directions.
var (
	CommandHeader = [4]byte{0xFD, 0xFC, 0xFB, 0xFA}
	CommandFooter = [4]byte{0x04, 0x03, 0x02, 0x01}
)

// Frame size limits
const (
	// MarkerLength is the length of every header and footer marker.
	MarkerLength = 4
	// Overhead is the number of bytes around the intra-frame data:
	// header (4) + length field (2) + footer (4).
	Overhead = 10
	// MinFrameLength is the shortest byte count that can complete a frame.
	// End markers are only checked once the buffer holds more than 7 bytes.
	MinFrameLength = 8
	// MaxFrameLength is the longest frame the sensor emits (engineering report).
	MaxFrameLength = 45
	// DefaultCapacity is the default assembler buffer size.
	DefaultCapacity = 64
	// MinCapacity is the smallest accepted assembler buffer size.
	MinCapacity = 48
)

// Report frame layout
const (
	ReportTypeEngineering = 0x01
	ReportTypeBasic       = 0x02
	ReportHead            = 0xAA
	ReportTail            = 0x55
	ReportCheck           = 0x00
)

// Kind identifies which marker pair delimits a frame.
type Kind uint8

const (
	// KindReport is a periodic target report (F4 F3 F2 F1 ... F8 F7 F6 F5).
	KindReport Kind = iota + 1
	// KindAck is a command acknowledgement (FD FC FB FA ... 04 03 02 01).
	KindAck
)

// String returns a human readable kind name
func (k Kind) String() string {
	switch k {
	case KindReport:
		return "report"
	case KindAck:
		return "ack"
	default:
		return "unknown"
	}
}

// header returns the start marker for the kind
func (k Kind) header() [4]byte {
	if k == KindReport {
		return ReportHeader
	}
	return CommandHeader
}

// footer returns the end marker for the kind
func (k Kind) footer() [4]byte {
	if k == KindReport {
		return ReportFooter
	}
	return CommandFooter
}

// kindForStartByte reports which frame kind a byte may start, if any.
func kindForStartByte(b byte) (Kind, bool) {
	switch b {
	case ReportHeader[0]:
		return KindReport, true
	case CommandHeader[0]:
		return KindAck, true
	default:
		return 0, false
	}
}
