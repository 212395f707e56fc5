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

// Package outpin reads the LD2410 OUT pin, which the sensor drives high
// while it sees a target. It is a hardware cross-check for the presence
// flag decoded from UART reports.
package outpin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ncmreynolds/ld2410"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgePoll bounds each WaitForEdge so context cancellation is noticed
const edgePoll = 100 * time.Millisecond

// ErrPinNotFound is returned when the GPIO registry has no pin by that name
var ErrPinNotFound = errors.New("gpio pin not found")

// Input is the part of a periph gpio.PinIn used here
type Input interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
	Name() string
}

// Pin is the OUT pin of one sensor
type Pin struct {
	in Input
}

// Open initializes the periph host drivers and configures the named pin,
// such as "GPIO17", as an input with edge detection.
func Open(name string) (*Pin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return New(p)
}

// New configures in as a pulled-down input reporting both edges. The OUT
// pin is push-pull; the pull-down only holds the line low while the sensor
// is unpowered.
func New(in Input) (*Pin, error) {
	if err := in.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("failed to configure %s as input: %w", in.Name(), err)
	}
	return &Pin{in: in}, nil
}

// Name returns the GPIO name
func (p *Pin) Name() string {
	return p.in.Name()
}

// Present reports whether the OUT pin is high
func (p *Pin) Present() bool {
	return p.in.Read() == gpio.High
}

// WaitFor blocks until the pin reads present or ctx ends
func (p *Pin) WaitFor(ctx context.Context, present bool) error {
	for p.Present() != present {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.in.WaitForEdge(edgePoll)
	}
	return nil
}

// Watch calls fn with the pin level now and on every change until ctx
// ends. It returns ctx.Err().
func (p *Pin) Watch(ctx context.Context, fn func(present bool)) error {
	last := p.Present()
	fn(last)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.in.WaitForEdge(edgePoll) {
			continue
		}
		if level := p.Present(); level != last {
			last = level
			fn(level)
		}
	}
}

// Agrees reports whether the pin matches the presence of the device's
// latest report. The sensor holds OUT high for its idle timeout after the
// last detection, so short disagreements are expected.
func (p *Pin) Agrees(device *ld2410.Device) bool {
	return p.Present() == device.PresenceDetected()
}
