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

// Package tcp provides a transport for LD2410 sensors behind a TCP serial
// bridge such as ser2net or an ESP-Link module.
package tcp

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/ncmreynolds/ld2410"
)

const (
	// DefaultDialTimeout bounds connection setup
	DefaultDialTimeout = 5 * time.Second
	// DefaultReadTimeout is the deadline of each non-blocking read
	DefaultReadTimeout = time.Millisecond
	// DefaultWriteTimeout bounds each command write
	DefaultWriteTimeout = 100 * time.Millisecond
	keepAlivePeriod     = 30 * time.Second
)

// Transport implements ld2410.Transport over a TCP connection
type Transport struct {
	*ld2410.StreamTransport
	conn    net.Conn
	address string
}

// deadlineConn refreshes its deadlines before every operation so that a
// read with nothing pending returns a timeout instead of blocking.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}
	n, err := c.Conn.Read(p)
	if err != nil {
		return n, fmt.Errorf("tcp read: %w", err)
	}
	return n, nil
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return 0, fmt.Errorf("set write deadline: %w", err)
	}
	n, err := c.Conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("tcp write: %w", err)
	}
	return n, nil
}

// ParseAddress accepts "host:port", "tcp://host:port" or "socket://host:port"
// and returns "host:port".
func ParseAddress(link string) (string, error) {
	u, err := url.Parse(link)
	if err == nil && (u.Scheme == "socket" || u.Scheme == "tcp") {
		if u.Host == "" {
			return "", fmt.Errorf("missing host in %q", link)
		}
		return u.Host, nil
	}
	if _, _, err := net.SplitHostPort(link); err != nil {
		return "", fmt.Errorf("invalid TCP address %q: %w", link, err)
	}
	return link, nil
}

// Dial connects to a serial bridge
func Dial(ctx context.Context, link string) (*Transport, error) {
	address, err := ParseAddress(link)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: keepAlivePeriod}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	return New(conn, address), nil
}

// New wraps an established connection
func New(conn net.Conn, address string) *Transport {
	dc := &deadlineConn{
		Conn:         conn,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
	}
	return &Transport{
		StreamTransport: ld2410.NewStreamTransport(dc, ld2410.TransportTCP, address),
		conn:            conn,
		address:         address,
	}
}

// Address returns the bridge address
func (t *Transport) Address() string {
	return t.address
}

var _ ld2410.Transport = (*Transport)(nil)
