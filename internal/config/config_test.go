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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ld2410d.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyUSB0
  detectMode: full
poll:
  interval: 20ms
  presenceHold: 2s
mqtt:
  enable: true
  broker: tcp://broker:1883
  topic: hallway/radar
  qos: 1
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, "full", cfg.Serial.DetectMode)
	assert.Equal(t, 256000, cfg.Serial.Baud)
	assert.Equal(t, 20*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, 2*time.Second, cfg.Poll.PresenceHold)
	assert.True(t, cfg.MQTT.Enable)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "hallway/radar", cfg.MQTT.Topic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 100*time.Millisecond, cfg.Device.CommandTimeout)
	assert.Equal(t, ":8410", cfg.HTTP.Addr)
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Serial.Port)
	assert.Equal(t, "safe", cfg.Serial.DetectMode)
	assert.Equal(t, 10*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, time.Second, cfg.Poll.PresenceHold)
	assert.True(t, cfg.Poll.Reopen)
	assert.True(t, cfg.Device.WaitForRadar)
	assert.False(t, cfg.MQTT.Enable)
	assert.Equal(t, "ld2410", cfg.MQTT.Topic)
	assert.True(t, cfg.Metrics.Enable)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "serial:\n  port: /dev/ttyUSB0\n")
	t.Setenv("LD2410_CONFIG", path)
	t.Setenv("LD2410_SERIAL_TCP", "socket://10.0.0.5:8899")
	t.Setenv("LD2410_POLL_INTERVAL", "50ms")
	t.Setenv("LD2410_HTTP_ADDR", "127.0.0.1:9000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, "socket://10.0.0.5:8899", cfg.Serial.TCP)
	assert.Equal(t, 50*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "bad detect mode", body: "serial:\n  detectMode: aggressive\n", wantErr: "serial.detectMode"},
		{name: "zero interval", body: "poll:\n  interval: 0s\n", wantErr: "poll.interval"},
		{name: "mqtt without broker", body: "mqtt:\n  enable: true\n", wantErr: "mqtt.broker"},
		{name: "bad qos", body: "mqtt:\n  qos: 3\n", wantErr: "mqtt.qos"},
		{name: "malformed yaml", body: "serial: [", wantErr: "read config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
