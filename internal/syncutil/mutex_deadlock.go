//go:build deadlock

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

package syncutil

import (
	"os"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// TimeoutEnv overrides how long a lock may be held before go-deadlock
// reports it, e.g. LD2410_DEADLOCK_TIMEOUT=5s. A command holds the transport
// lock for up to three acknowledgement waits.
const TimeoutEnv = "LD2410_DEADLOCK_TIMEOUT"

func init() {
	if v := os.Getenv(TimeoutEnv); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			deadlock.Opts.DeadlockTimeout = d
		}
	}
}

// Mutex is a deadlock.Mutex in deadlock builds.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock.RWMutex in deadlock builds.
type RWMutex struct {
	deadlock.RWMutex
}
