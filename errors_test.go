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

package ld2410

import (
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customError struct {
	cause error
	msg   string
}

func (e *customError) Error() string {
	return fmt.Sprintf("%s: %v", e.msg, e.cause)
}

func (e *customError) Unwrap() error {
	return e.cause
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "command timeout", err: NewCommandTimeoutError(cmdReadFirmware), want: true},
		{name: "wrapped timeout", err: fmt.Errorf("begin: %w", NewCommandTimeoutError(cmdReadFirmware)), want: true},
		{name: "custom wrapper", err: &customError{msg: "outer", cause: ErrCommandTimeout}, want: true},
		{name: "read error", err: NewTransportReadError("read", "/dev/ttyUSB0", io.ErrUnexpectedEOF), want: true},
		{name: "write error", err: NewTransportWriteError("write", "/dev/ttyUSB0", io.ErrShortWrite), want: true},
		{name: "closed", err: NewTransportClosedError("read", "/dev/ttyUSB0"), want: false},
		{name: "rejected", err: NewCommandRejectedError(cmdSetMaxValues, 1), want: false},
		{name: "gate", err: ErrGateOutOfRange, want: false},
		{name: "invalid parameter", err: ErrInvalidParameter, want: false},
		{name: "traced timeout", err: NewTraceBuffer("mock", 4).WrapError(NewCommandTimeoutError(cmdRestart)), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "closed transport", err: NewTransportClosedError("read", "uart"), want: true},
		{name: "eof", err: fmt.Errorf("read: %w", io.EOF), want: true},
		{name: "closed pipe", err: io.ErrClosedPipe, want: true},
		{name: "device unplugged", err: NewTransportReadError("read", "uart", syscall.ENXIO), want: true},
		{name: "io error", err: &customError{msg: "read", cause: syscall.EIO}, want: true},
		{name: "timeout", err: NewCommandTimeoutError(cmdEnableConfig), want: false},
		{name: "read error", err: NewTransportReadError("read", "uart", errors.New("framing")), want: false},
		{name: "permanent", err: NewTransportError("open", "uart", errors.New("busy"), ErrorTypePermanent), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	err := NewTransportReadError("read", "/dev/ttyUSB0", io.ErrUnexpectedEOF)
	assert.Equal(t, "read /dev/ttyUSB0: transport read failed: unexpected EOF", err.Error())
	require.ErrorIs(t, err, ErrTransportRead)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, err.Retryable)

	noPort := NewTransportError("close", "", io.ErrClosedPipe, ErrorTypePermanent)
	assert.Equal(t, "close: io: read/write on closed pipe", noPort.Error())
	assert.False(t, noPort.Retryable)

	timeout := NewTransportError("read", "tcp", errors.New("deadline"), ErrorTypeTimeout)
	assert.True(t, timeout.Retryable)
}

func TestCommandError(t *testing.T) {
	t.Parallel()

	rejected := NewCommandRejectedError(cmdSetGateSensitivity, 0x0001)
	assert.Equal(t, "SetGateSensitivity (0x64) status 0x0001: command rejected by sensor", rejected.Error())
	require.ErrorIs(t, rejected, ErrCommandRejected)

	timeout := NewCommandTimeoutError(cmdReadMAC)
	assert.Equal(t, "ReadMACAddress (0xA5): command timed out", timeout.Error())

	var cmdErr *CommandError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", timeout), &cmdErr)
	assert.Equal(t, byte(cmdReadMAC), cmdErr.Command)
}

func TestFramingErrorsShareAssemblerSentinel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "frame buffer overrun", ErrFrameOverrun.Error())
}
