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

import "encoding/binary"

// BuildCommand encodes a host-to-sensor command frame:
// header, intra length (payload + 2), command word, payload, footer.
func BuildCommand(word byte, payload []byte) []byte {
	out := make([]byte, 0, Overhead+2+len(payload))
	out = append(out, CommandHeader[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(payload)+2))
	out = append(out, word, 0x00)
	out = append(out, payload...)
	out = append(out, CommandFooter[:]...)
	return out
}

// Param encodes one parameter of a multi-field command: a 16-bit parameter
// word followed by a 32-bit value, both little-endian. The upper half of the
// value is the zero spacer the sensor expects.
func Param(id uint16, value uint32) []byte {
	out := make([]byte, 0, 6)
	out = binary.LittleEndian.AppendUint16(out, id)
	return binary.LittleEndian.AppendUint32(out, value)
}

// Word encodes a single 16-bit little-endian value.
func Word(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

// CommandWord returns the command word of an encoded command or ack frame.
func CommandWord(data []byte) (byte, bool) {
	if len(data) < 8 {
		return 0, false
	}
	for i := range MarkerLength {
		if data[i] != CommandHeader[i] {
			return 0, false
		}
	}
	return data[6], true
}

// CommandPayload returns the payload of an encoded command frame.
func CommandPayload(data []byte) []byte {
	if len(data) < Overhead+2 {
		return nil
	}
	return data[8 : len(data)-MarkerLength]
}

// BuildAck encodes a sensor-to-host acknowledgement for word with the given
// status and body. The sensor sets bit 0x0100 in the echoed command word.
func BuildAck(word byte, status uint16, body []byte) []byte {
	out := make([]byte, 0, Overhead+4+len(body))
	out = append(out, CommandHeader[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(body)+4))
	out = append(out, word, 0x01)
	out = binary.LittleEndian.AppendUint16(out, status)
	out = append(out, body...)
	out = append(out, CommandFooter[:]...)
	return out
}

// BuildReport encodes a report frame of the given type around body, which
// holds everything between the 0xAA head and the 0x55 0x00 trailer.
func BuildReport(reportType byte, body []byte) []byte {
	out := make([]byte, 0, Overhead+4+len(body))
	out = append(out, ReportHeader[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(body)+4))
	out = append(out, reportType, ReportHead)
	out = append(out, body...)
	out = append(out, ReportTail, ReportCheck)
	out = append(out, ReportFooter[:]...)
	return out
}
