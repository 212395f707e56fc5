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

package testing

import (
	"errors"
	"net"
	"os"
	"time"
)

// Serve bridges conn to the simulator until either side fails, like a
// serial-to-network adapter would.
func (v *VirtualLD2410) Serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	buf := make([]byte, 256)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, err := conn.Read(buf)
		if n > 0 {
			_, _ = v.Write(buf[:n])
		}
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			return
		}
		if m, _ := v.Read(buf); m > 0 {
			if _, err := conn.Write(buf[:m]); err != nil {
				return
			}
		}
	}
}

// Listen serves the simulator on a loopback TCP port and returns the
// address. Each accepted connection is bridged in turn.
func (v *VirtualLD2410) Listen() (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			v.Serve(conn)
		}
	}()
	return ln.Addr().String(), func() { _ = ln.Close() }, nil
}
