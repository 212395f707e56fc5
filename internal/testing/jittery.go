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
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures the behavior of JitteryConnection.
type JitterConfig struct {
	// MaxLatency is the upper bound of the random delay before each read
	MaxLatency time.Duration
	// FragmentMinBytes is the smallest fragment a read returns
	FragmentMinBytes int
	// Noise is the number of random bytes prepended to every chunk the
	// backend returns
	Noise int
	// Seed makes fragmentation and noise reproducible (0 picks a random seed)
	Seed uint64
	// FragmentReads splits reads at random sizes
	FragmentReads bool
}

// DefaultJitterConfig returns a configuration that fragments every read
// without adding latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryConnection wraps an io.ReadWriter to simulate a USB-UART bridge
// (CH340, CP2102) delivering sensor bytes in odd fragments, late, and with
// the occasional line-noise byte. Writes pass through unchanged.
type JitteryConnection struct {
	backend io.ReadWriter
	rng     *rand.Rand
	readBuf []byte
	config  JitterConfig
}

// NewJitteryConnection wraps a backend io.ReadWriter with jitter simulation.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // Test code, not crypto
	}
}

// Write passes writes through to the backend without modification.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Read returns a random-sized prefix of the buffered backend data.
func (j *JitteryConnection) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 256)
		n, err := j.backend.Read(tmp)
		if n > 0 {
			j.fill(tmp[:n])
		}
		if err != nil {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
		if len(j.readBuf) == 0 {
			return 0, nil
		}
	}

	toReturn := min(len(j.readBuf), len(buf))
	if j.config.FragmentReads && toReturn > j.config.FragmentMinBytes {
		toReturn = j.config.FragmentMinBytes + j.rng.IntN(toReturn-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[toReturn:]
	return toReturn, nil
}

// fill buffers one backend chunk behind Noise random bytes. Noise never
// takes a start-marker value, and the virtual sensor returns whole frames
// per chunk, so noise always lands between frames.
func (j *JitteryConnection) fill(data []byte) {
	for range j.config.Noise {
		j.readBuf = append(j.readBuf, byte(j.rng.IntN(0xF0)))
	}
	j.readBuf = append(j.readBuf, data...)
}

// Buffered returns the number of bytes held back by fragmentation.
func (j *JitteryConnection) Buffered() int {
	return len(j.readBuf)
}
