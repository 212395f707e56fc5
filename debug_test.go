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
	"bytes"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// swapDebugState installs a capture buffer as session writer and restores
// the previous globals when the test ends.
func swapDebugState(t *testing.T, enabled bool, console io.Writer) *bytes.Buffer {
	t.Helper()

	origEnabled, origWriter, origOut := debugEnabled, sessionLogWriter, debugOut
	t.Cleanup(func() {
		debugEnabled, sessionLogWriter, debugOut = origEnabled, origWriter, origOut
	})

	var buf bytes.Buffer
	sessionLogWriter = &buf
	debugEnabled = enabled
	debugOut = console
	return &buf
}

func TestDebugf_WritesToSessionLog(t *testing.T) {
	buf := swapDebugState(t, false, nil)

	Debugf("frame %d: %02X", 7, 0xF4)

	assert.Contains(t, buf.String(), "DEBUG: frame 7: F4")
	matched, err := regexp.MatchString(`\d{2}:\d{2}:\d{2}\.\d{3} DEBUG:`, buf.String())
	require.NoError(t, err)
	assert.True(t, matched, "missing timestamp: %s", buf.String())
}

func TestDebugln_WritesToSessionLog(t *testing.T) {
	buf := swapDebugState(t, false, nil)

	Debugln("ack", 0xFF, true)

	assert.Contains(t, buf.String(), "DEBUG: ack")
	assert.Contains(t, buf.String(), "255")
}

func TestDebugf_ConsoleOnlyWhenEnabled(t *testing.T) {
	var console bytes.Buffer
	_ = swapDebugState(t, false, &console)

	Debugf("hidden")
	assert.Empty(t, console.String())

	SetDebugEnabled(true)
	Debugf("shown")
	assert.Equal(t, "DEBUG: shown\n", console.String())
}

func TestDebugf_NilWriters(t *testing.T) {
	_ = swapDebugState(t, true, nil)
	sessionLogWriter = nil

	assert.NotPanics(t, func() {
		Debugf("message %d", 1)
		Debugln("message", 2)
	})
}

func TestDebugf_MultipleMessages(t *testing.T) {
	buf := swapDebugState(t, false, nil)

	Debugf("message 1")
	Debugf("message 2")
	Debugf("message 3")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "message 3")
}

func TestSetDebugOutput(t *testing.T) {
	_ = swapDebugState(t, true, nil)

	var console bytes.Buffer
	SetDebugOutput(&console)
	Debugln("redirected")
	assert.Contains(t, console.String(), "redirected")
}
