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
	"fmt"
	"io"
	"time"

	"github.com/ncmreynolds/ld2410/internal/frame"
)

// Option configures a Device
type Option func(*Device) error

// WithCommandTimeout sets the ack timeout of each command step
func WithCommandTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: command timeout %v", ErrInvalidParameter, timeout)
		}
		d.config.CommandTimeout = timeout
		return nil
	}
}

// WithBeginTimeout sets the overall timeout of the Begin handshake
func WithBeginTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: begin timeout %v", ErrInvalidParameter, timeout)
		}
		d.config.BeginTimeout = timeout
		return nil
	}
}

// WithLivenessTimeout sets the freshness window used by IsConnected
func WithLivenessTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: liveness timeout %v", ErrInvalidParameter, timeout)
		}
		d.config.LivenessTimeout = timeout
		return nil
	}
}

// WithFrameCapacity sets the assembler buffer size
func WithFrameCapacity(capacity int) Option {
	return func(d *Device) error {
		if capacity < frame.MinCapacity {
			return fmt.Errorf("%w: frame capacity %d below %d", ErrInvalidParameter, capacity, frame.MinCapacity)
		}
		d.config.FrameCapacity = capacity
		d.config.MaxBytesPerRead = 4 * capacity
		return nil
	}
}

// WithReportLayout overrides the report field offsets
func WithReportLayout(layout ReportLayout) Option {
	return func(d *Device) error {
		if err := layout.validate(); err != nil {
			return err
		}
		d.config.Layout = layout
		return nil
	}
}

// WithRetryConfig sets the retry policy of the Begin handshake
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.config.RetryConfig = config
		return nil
	}
}

// WithDebugWriter sends a human-readable trace of frames and decode
// outcomes to w
func WithDebugWriter(w io.Writer) Option {
	return func(d *Device) error {
		d.debug = w
		return nil
	}
}

// WithClock replaces the clock used to timestamp frames
func WithClock(now func() time.Time) Option {
	return func(d *Device) error {
		if now == nil {
			return fmt.Errorf("%w: nil clock", ErrInvalidParameter)
		}
		d.now = now
		return nil
	}
}
