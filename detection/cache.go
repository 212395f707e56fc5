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

package detection

import (
	"maps"
	"time"

	"github.com/ncmreynolds/ld2410/internal/syncutil"
)

type cacheEntry struct {
	stored  time.Time
	devices []DeviceInfo
}

// resultCache keeps the last detection result per transport
type resultCache struct {
	now     func() time.Time
	entries map[string]cacheEntry
	mu      syncutil.RWMutex
}

var defaultCache = newResultCache(time.Now)

func newResultCache(now func() time.Time) *resultCache {
	return &resultCache{now: now, entries: make(map[string]cacheEntry)}
}

// get returns a copy of the cached devices unless they are older than ttl
func (c *resultCache) get(transport string, ttl time.Duration) ([]DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[transport]
	if !ok || c.now().Sub(entry.stored) > ttl {
		return nil, false
	}
	return cloneDevices(entry.devices), true
}

func (c *resultCache) set(transport string, devices []DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[transport] = cacheEntry{stored: c.now(), devices: cloneDevices(devices)}
}

// clear drops one transport, or everything when transport is empty
func (c *resultCache) clear(transport string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if transport == "" {
		c.entries = make(map[string]cacheEntry)
		return
	}
	delete(c.entries, transport)
}

func cloneDevices(devices []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		out[i] = d
		out[i].Metadata = maps.Clone(d.Metadata)
	}
	return out
}
