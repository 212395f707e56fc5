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

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ncmreynolds/ld2410"
	testutil "github.com/ncmreynolds/ld2410/internal/testing"
	"github.com/ncmreynolds/ld2410/polling"
)

type observed struct {
	command string
	err     error
}

type commandLog struct {
	calls []observed
	mu    sync.Mutex
}

func (c *commandLog) observe(command string, err error) {
	c.mu.Lock()
	c.calls = append(c.calls, observed{command: command, err: err})
	c.mu.Unlock()
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *testutil.VirtualLD2410, *ld2410.Device) {
	t.Helper()
	sim := testutil.NewVirtualLD2410()
	device, err := ld2410.New(ld2410.NewStreamTransport(sim, ld2410.TransportStream, "sim"),
		ld2410.WithCommandTimeout(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Close() })
	return New(device, opts...), sim, device
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestServer_Version(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, WithVersion("1.2.3"))
	rec := do(t, s, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]string{"version": "1.2.3"}, decodeBody[map[string]string](t, rec))
}

func TestServer_State(t *testing.T) {
	t.Parallel()

	s, sim, device := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decodeBody[StateView](t, rec)
	assert.Nil(t, empty.Report)
	assert.False(t, empty.Connected)

	sim.SetTarget(testutil.Target{State: 0x03, MovingDistance: 150, MovingEnergy: 55, StationaryDistance: 140, StationaryEnergy: 35, DetectionDistance: 160})
	sim.EmitReport()
	got, err := device.Read()
	require.NoError(t, err)
	require.True(t, got)

	rec = do(t, s, http.MethodGet, "/state", "")
	view := decodeBody[StateView](t, rec)
	require.NotNil(t, view.Report)
	assert.True(t, view.Connected)
	assert.Equal(t, "moving+stationary", view.Report.Target)
	assert.True(t, view.Report.Present)
	assert.Equal(t, uint16(150), view.Report.MovingDistance)
	assert.Equal(t, uint16(160), view.Report.DetectionDistance)
	assert.Equal(t, uint64(1), view.Reports)
	assert.Empty(t, view.Report.MovingGateEnergy)
	assert.NotNil(t, view.LastReport)
}

func TestServer_Presence(t *testing.T) {
	t.Parallel()

	since := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s, _, _ := newTestServer(t, WithPresence(func() polling.PresenceState {
		return polling.PresenceState{Present: true, Since: since, LastSeen: since.Add(time.Second)}
	}))

	rec := do(t, s, http.MethodGet, "/presence", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[PresenceView](t, rec)
	assert.True(t, view.Present)
	require.NotNil(t, view.Since)
	assert.True(t, since.Equal(*view.Since))

	plain, _, _ := newTestServer(t)
	view = decodeBody[PresenceView](t, do(t, plain, http.MethodGet, "/presence", ""))
	assert.False(t, view.Present)
	assert.Nil(t, view.Since)
}

func TestServer_ReadCommands(t *testing.T) {
	t.Parallel()

	commands := &commandLog{}
	s, _, _ := newTestServer(t, WithCommandObserver(commands.observe))

	rec := do(t, s, http.MethodGet, "/firmware", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fw := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "V2.04.23031516", fw["version"])
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	require.NoError(t, err)

	rec = do(t, s, http.MethodGet, "/mac", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "8f:27:2e:b8:0f:65", decodeBody[map[string]string](t, rec)["mac"])

	rec = do(t, s, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeBody[ConfigView](t, rec)
	assert.Equal(t, []uint8{50, 50, 40, 30, 20, 15, 15, 15, 15}, cfg.MotionSensitivity)
	assert.Equal(t, uint16(5), cfg.IdleTimeout)
	assert.Equal(t, uint8(8), cfg.MaxGate)

	commands.mu.Lock()
	defer commands.mu.Unlock()
	require.Len(t, commands.calls, 3)
	assert.Equal(t, "ReadFirmwareVersion", commands.calls[0].command)
	require.NoError(t, commands.calls[2].err)
}

func TestServer_WriteCommands(t *testing.T) {
	t.Parallel()

	s, sim, _ := newTestServer(t)

	rec := do(t, s, http.MethodPut, "/config/max", `{"movingGate":6,"stationaryGate":5,"idleSeconds":30}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := sim.GetState()
	assert.Equal(t, uint8(6), state.MaxMovingGate)
	assert.Equal(t, uint8(5), state.MaxStationaryGate)
	assert.Equal(t, uint16(30), state.IdleTimeout)

	rec = do(t, s, http.MethodPut, "/config/gates/3", `{"moving":70,"stationary":60}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state = sim.GetState()
	assert.Equal(t, uint8(70), state.MotionSensitivity[3])
	assert.Equal(t, uint8(60), state.StationarySensitivity[3])

	rec = do(t, s, http.MethodPut, "/engineering", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sim.GetState().Engineering)
	rec = do(t, s, http.MethodPut, "/engineering", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, sim.GetState().Engineering)

	rec = do(t, s, http.MethodPut, "/bluetooth", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, sim.GetState().Bluetooth)

	rec = do(t, s, http.MethodPut, "/baud", `{"rate":115200}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, uint16(ld2410.BaudRate115200), sim.GetState().BaudIndex)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/restart", "").Code)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/factory-reset", "").Code)
}

func TestServer_Errors(t *testing.T) {
	t.Parallel()

	commands := &commandLog{}
	core, logs := observer.New(zap.InfoLevel)
	s, sim, _ := newTestServer(t, WithCommandObserver(commands.observe), WithLogger(zap.New(core)))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "gate out of range", method: http.MethodPut, path: "/config/gates/9", body: `{"moving":10,"stationary":10}`, status: http.StatusBadRequest},
		{name: "max gate too low", method: http.MethodPut, path: "/config/max", body: `{"movingGate":1,"stationaryGate":5}`, status: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPut, path: "/config/max", body: `{"moving":1}`, status: http.StatusBadRequest},
		{name: "missing enabled", method: http.MethodPut, path: "/bluetooth", body: `{}`, status: http.StatusBadRequest},
		{name: "unsupported baud", method: http.MethodPut, path: "/baud", body: `{"rate":1200}`, status: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodPost, path: "/config", status: http.StatusMethodNotAllowed},
		{name: "non-numeric gate", method: http.MethodPut, path: "/config/gates/x", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := do(t, s, tt.method, tt.path, tt.body)
		assert.Equal(t, tt.status, rec.Code, tt.name)
	}

	commands.mu.Lock()
	assert.Empty(t, commands.calls, "bad requests are not counted as commands")
	commands.mu.Unlock()

	sim.SetReject(testutil.CmdRestart, 1)
	rec := do(t, s, http.MethodPost, "/restart", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody[errorView](t, rec)
	assert.Equal(t, rec.Header().Get(RequestIDHeader), body.RequestID)
	assert.Contains(t, body.Error, "Restart")

	sim.SetSilent(testutil.CmdReadMAC, true)
	rec = do(t, s, http.MethodGet, "/mac", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	commands.mu.Lock()
	require.Len(t, commands.calls, 2)
	assert.ErrorIs(t, commands.calls[0].err, ld2410.ErrCommandRejected)
	assert.ErrorIs(t, commands.calls[1].err, ld2410.ErrCommandTimeout)
	commands.mu.Unlock()

	failures := logs.FilterMessage("command failed").All()
	require.NotEmpty(t, failures)
	assert.Equal(t, "Restart", failures[len(failures)-2].ContextMap()["command"])
}

func TestServer_ClosedDevice(t *testing.T) {
	t.Parallel()

	s, _, device := newTestServer(t, WithCommandTimeout(time.Second))
	require.NoError(t, device.Close())

	rec := do(t, s, http.MethodGet, "/firmware", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
}

func TestServer_RequestContext(t *testing.T) {
	t.Parallel()

	s, sim, _ := newTestServer(t)
	sim.SetSilent(testutil.CmdReadFirmware, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/firmware", nil).WithContext(ctx))
	assert.NotEqual(t, http.StatusOK, rec.Code)
}
