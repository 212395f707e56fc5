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

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrOverrun is returned when the assembler buffer fills without an end marker.
var ErrOverrun = errors.New("frame buffer overrun")

// Frame is a complete, marker-delimited byte sequence.
type Frame struct {
	Data []byte
	Kind Kind
}

// IntraLength returns the little-endian length field at offsets 4-5.
func (f Frame) IntraLength() int {
	if len(f.Data) < 6 {
		return 0
	}
	return int(binary.LittleEndian.Uint16(f.Data[4:6]))
}

// LengthValid reports whether the length field matches the byte count.
func (f Frame) LengthValid() bool {
	return len(f.Data) >= Overhead && f.IntraLength()+Overhead == len(f.Data)
}

// String renders the frame as a hex dump for debug traces
func (f Frame) String() string {
	return fmt.Sprintf("%s[%d] %s", f.Kind, len(f.Data), hex.EncodeToString(f.Data))
}

// Assembler turns a byte stream into frames. It is not safe for concurrent
// use; the owner serializes access.
type Assembler struct {
	buf  []byte
	kind Kind
}

// NewAssembler creates an assembler with the given buffer capacity.
// Capacities below MinCapacity are raised to MinCapacity.
func NewAssembler(capacity int) *Assembler {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	return &Assembler{buf: make([]byte, 0, capacity)}
}

// Capacity returns the maximum number of bytes buffered before an overrun.
func (a *Assembler) Capacity() int {
	return cap(a.buf)
}

// Len returns the number of bytes currently buffered.
func (a *Assembler) Len() int {
	return len(a.buf)
}

// Idle reports whether the assembler is waiting for a start byte.
func (a *Assembler) Idle() bool {
	return len(a.buf) == 0
}

// Reset discards any partial frame.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.kind = 0
}

// Push consumes one byte. It returns the frame when b completes one, and
// ErrOverrun when the buffer filled without a matching end marker.
func (a *Assembler) Push(b byte) (Frame, bool, error) {
	if a.Idle() {
		a.begin(b)
		return Frame{}, false, nil
	}

	if len(a.buf) < MarkerLength {
		header := a.kind.header()
		if b != header[len(a.buf)] {
			// Partial header did not hold up, b may start a new frame
			a.Reset()
			a.begin(b)
			return Frame{}, false, nil
		}
	}

	a.buf = append(a.buf, b)

	if len(a.buf) >= MinFrameLength && a.complete() {
		f := Frame{Kind: a.kind, Data: append([]byte(nil), a.buf...)}
		a.Reset()
		return f, true, nil
	}

	if len(a.buf) >= cap(a.buf) {
		a.Reset()
		return Frame{}, false, ErrOverrun
	}
	return Frame{}, false, nil
}

// begin starts accumulation when b is a start byte and ignores it otherwise.
func (a *Assembler) begin(b byte) {
	kind, ok := kindForStartByte(b)
	if !ok {
		return
	}
	a.kind = kind
	a.buf = append(a.buf, b)
}

func (a *Assembler) complete() bool {
	n := len(a.buf)
	header := a.kind.header()
	footer := a.kind.footer()
	for i := range MarkerLength {
		if a.buf[i] != header[i] || a.buf[n-MarkerLength+i] != footer[i] {
			return false
		}
	}
	return true
}
