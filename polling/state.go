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

package polling

import "time"

// PresenceState is the debounced presence seen by a Poller
type PresenceState struct {
	// Since is when Present last changed
	Since time.Time
	// LastSeen is the time of the last report with a target
	LastSeen time.Time
	Present  bool
}

// presenceTracker debounces the per-report presence flag. Presence is
// reported as soon as a target appears; absence only after no target was
// seen for the hold time.
type presenceTracker struct {
	state PresenceState
	hold  time.Duration
	raw   bool
}

// observe records the presence flag of a new report
func (t *presenceTracker) observe(present bool, now time.Time) {
	t.raw = present
	if present {
		t.state.LastSeen = now
	}
}

// evaluate applies the hold time and reports whether the debounced state
// changed.
func (t *presenceTracker) evaluate(now time.Time) bool {
	want := t.raw || (t.state.Present && now.Sub(t.state.LastSeen) < t.hold)
	if want == t.state.Present {
		return false
	}
	t.state.Present = want
	t.state.Since = now
	return true
}
