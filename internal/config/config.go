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

// Package config loads the ld2410d daemon configuration from a YAML file
// and LD2410_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, so serial.port is read from
// LD2410_SERIAL_PORT.
const EnvPrefix = "LD2410"

// SerialConfig selects how the sensor is reached
type SerialConfig struct {
	// Port is a serial device path; empty means auto-detect
	Port string `mapstructure:"port"`
	// TCP is a socket:// or host:port address of a serial-to-network bridge.
	// It takes precedence over Port.
	TCP string `mapstructure:"tcp"`
	// DetectMode is passive, safe or full
	DetectMode string `mapstructure:"detectMode"`
	Baud       int    `mapstructure:"baud"`
}

// DeviceConfig tunes the driver
type DeviceConfig struct {
	CommandTimeout time.Duration `mapstructure:"commandTimeout"`
	// WaitForRadar runs the firmware handshake at startup
	WaitForRadar bool `mapstructure:"waitForRadar"`
	// Engineering switches the sensor to engineering reports at startup
	Engineering bool `mapstructure:"engineering"`
}

// PollConfig configures the background read loop
type PollConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	PresenceHold time.Duration `mapstructure:"presenceHold"`
	Reopen       bool          `mapstructure:"reopen"`
}

// HTTPConfig configures the JSON API
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// MQTTConfig configures state publishing
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"clientID"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Topic is the prefix for the state, presence and availability topics
	Topic string `mapstructure:"topic"`
	// MinInterval throttles state publishes; presence changes are never
	// throttled.
	MinInterval time.Duration `mapstructure:"minInterval"`
	Enable      bool          `mapstructure:"enable"`
	QoS         byte          `mapstructure:"qos"`
	Retain      bool          `mapstructure:"retain"`
}

// LumberjackConfig configures log file rotation
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig configures the daemon logger
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Path   string `mapstructure:"path"`
	Enable bool   `mapstructure:"enable"`
}

// OutPinConfig names the GPIO wired to the sensor's OUT pin
type OutPinConfig struct {
	Name string `mapstructure:"name"`
}

// Config is the top-level daemon configuration
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Device  DeviceConfig  `mapstructure:"device"`
	Poll    PollConfig    `mapstructure:"poll"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	OutPin  OutPinConfig  `mapstructure:"outPin"`
}

// Load reads configuration from path, or from LD2410_CONFIG when path is
// empty, falling back to ld2410d.yaml in the working directory or
// /etc/ld2410. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ld2410")
		v.SetConfigName("ld2410d")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check
func (c *Config) Validate() error {
	switch c.Serial.DetectMode {
	case "passive", "safe", "full":
	default:
		return fmt.Errorf("invalid serial.detectMode %q", c.Serial.DetectMode)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %v", c.Poll.Interval)
	}
	if c.Device.CommandTimeout <= 0 {
		return fmt.Errorf("device.commandTimeout must be positive, got %v", c.Device.CommandTimeout)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt.qos %d", c.MQTT.QoS)
	}
	if c.MQTT.Enable && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.tcp", "")
	v.SetDefault("serial.baud", 256000)
	v.SetDefault("serial.detectMode", "safe")

	v.SetDefault("device.commandTimeout", "100ms")
	v.SetDefault("device.waitForRadar", true)
	v.SetDefault("device.engineering", false)

	v.SetDefault("poll.interval", "10ms")
	v.SetDefault("poll.presenceHold", "1s")
	v.SetDefault("poll.reopen", true)

	v.SetDefault("http.addr", ":8410")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("mqtt.enable", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.clientID", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "ld2410")
	v.SetDefault("mqtt.minInterval", "1s")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 7)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("outPin.name", "")
}
