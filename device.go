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
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ncmreynolds/ld2410/detection"
	"github.com/ncmreynolds/ld2410/internal/frame"
	"github.com/ncmreynolds/ld2410/internal/syncutil"
)

// Default timing, matching the sensor's 256000 baud link.
const (
	// DefaultCommandTimeout bounds each step of a command sequence
	DefaultCommandTimeout = 100 * time.Millisecond
	// DefaultBeginTimeout bounds the firmware handshake in Begin
	DefaultBeginTimeout = time.Second
	// DefaultLivenessTimeout is how recent the last frame must be for
	// IsConnected to trust it without reading
	DefaultLivenessTimeout = 100 * time.Millisecond
	// CommandPollInterval is the pause between polls while awaiting an ack
	CommandPollInterval = time.Millisecond
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig configures retries of the Begin handshake
	RetryConfig *RetryConfig
	// Layout maps basic report fields to byte offsets
	Layout ReportLayout
	// CommandTimeout bounds each step of a command sequence
	CommandTimeout time.Duration
	// BeginTimeout bounds the whole Begin handshake
	BeginTimeout time.Duration
	// LivenessTimeout is the freshness window used by IsConnected
	LivenessTimeout time.Duration
	// FrameCapacity is the assembler buffer size
	FrameCapacity int
	// MaxBytesPerRead bounds a single Read pass
	MaxBytesPerRead int
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig:     DefaultRetryConfig(),
		Layout:          DefaultReportLayout,
		CommandTimeout:  DefaultCommandTimeout,
		BeginTimeout:    DefaultBeginTimeout,
		LivenessTimeout: DefaultLivenessTimeout,
		FrameCapacity:   frame.DefaultCapacity,
		MaxBytesPerRead: 4 * frame.DefaultCapacity,
	}
}

// ackResult is the outcome of the ack a command exchange waits for
type ackResult struct {
	ack *Ack
	err error
}

// Device drives one LD2410 sensor over a Transport.
//
// Thread Safety: Device is safe for concurrent use. Reads and whole command
// sequences are serialized by an I/O lock, so a background poller pauses
// while a command runs. Getters read a separately locked state snapshot.
type Device struct {
	transport Transport
	config    *DeviceConfig
	assembler *frame.Assembler
	now       func() time.Time
	debug     io.Writer
	reply     *ackResult
	state     State
	ioMu      syncutil.Mutex
	stateMu   syncutil.RWMutex
	awaiting  byte
}

// New creates a new LD2410 device with the given transport
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
		now:       time.Now,
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	device.assembler = frame.NewAssembler(device.config.FrameCapacity)
	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Begin prepares the driver. With waitForRadar it confirms the sensor
// answers by reading its firmware version, retrying until BeginTimeout.
func (d *Device) Begin(ctx context.Context, waitForRadar bool) error {
	if !waitForRadar {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.BeginTimeout)
	defer cancel()

	err := RetryWithConfig(ctx, d.config.RetryConfig, func() error {
		_, err := d.RequestFirmwareVersion(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("radar did not respond: %w", err)
	}
	return nil
}

// Read performs one non-blocking pass over the bytes the transport has
// available. It returns true when at least one frame was decoded. Malformed
// frames are dropped; only transport failures are returned.
func (d *Device) Read() (bool, error) {
	d.ioMu.Lock()
	defer d.ioMu.Unlock()
	return d.pump(nil)
}

// IsConnected reports whether a frame was decoded within the liveness
// window, reading once more before giving up.
func (d *Device) IsConnected() bool {
	if d.recentlyHeard() {
		return true
	}
	if _, err := d.Read(); err != nil {
		d.tracef("liveness read failed: %v", err)
	}
	return d.recentlyHeard()
}

func (d *Device) recentlyHeard() bool {
	d.stateMu.RLock()
	last := d.state.LastPacket
	d.stateMu.RUnlock()
	return !last.IsZero() && d.now().Sub(last) < d.config.LivenessTimeout
}

// pump drains up to MaxBytesPerRead bytes through the assembler. Caller
// holds ioMu. It stops early once the awaited ack has arrived.
func (d *Device) pump(tb *TraceBuffer) (bool, error) {
	decoded := false
	consumed := 0
	for consumed < d.config.MaxBytesPerRead {
		n, err := d.transport.Available()
		if err != nil {
			return decoded, err
		}
		if n == 0 {
			return decoded, nil
		}
		n = min(n, d.config.MaxBytesPerRead-consumed)
		for range n {
			b, err := d.transport.ReadByte()
			if err != nil {
				return decoded, err
			}
			consumed++

			f, ok, ferr := d.assembler.Push(b)
			if ferr != nil {
				d.frameError(ferr)
				continue
			}
			if ok && d.handleFrame(f, tb) {
				decoded = true
			}
			if d.reply != nil {
				return decoded, nil
			}
		}
	}
	return decoded, nil
}

// handleFrame decodes one frame into the state. Returns true if it decoded.
func (d *Device) handleFrame(f frame.Frame, tb *TraceBuffer) bool {
	d.tracef("RX %s", f)

	switch f.Kind {
	case frame.KindReport:
		r, err := ParseReport(f, d.config.Layout)
		if err != nil {
			d.frameError(err)
			return false
		}
		d.stateMu.Lock()
		d.state.applyReport(r, d.now())
		d.stateMu.Unlock()
		d.tracef("report: %s moving %dcm/%d stationary %dcm/%d",
			r.State, r.MovingDistance, r.MovingEnergy, r.StationaryDistance, r.StationaryEnergy)
		return true

	case frame.KindAck:
		if tb != nil {
			tb.RecordRX(f.Data, f.Kind.String())
		}
		ack, err := ParseAck(f)
		if ack == nil {
			d.frameError(err)
			return false
		}
		d.stateMu.Lock()
		d.state.applyAck(ack, d.now())
		d.stateMu.Unlock()
		d.tracef("ack: %s success=%t status=0x%04X", CommandName(ack.Command), ack.Success, ack.Status)

		if d.awaiting != 0 && ack.Command == d.awaiting && d.reply == nil {
			d.reply = &ackResult{ack: ack, err: err}
		} else {
			d.tracef("ignoring unsolicited %s ack", CommandName(ack.Command))
		}
		return true
	}
	return false
}

func (d *Device) frameError(err error) {
	d.stateMu.Lock()
	d.state.FrameErrors++
	d.stateMu.Unlock()
	d.tracef("frame dropped: %v", err)
}

// tracef writes to the per-device debug sink and the package debug log
func (d *Device) tracef(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if d.debug != nil {
		_, _ = fmt.Fprintln(d.debug, msg)
	}
	Debugln(msg)
}

// Close closes the underlying transport
func (d *Device) Close() error {
	d.ioMu.Lock()
	defer d.ioMu.Unlock()
	d.assembler.Reset()
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// State returns a snapshot of the decoded sensor state
func (d *Device) State() State {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.state.clone()
}

// PresenceDetected reports whether the last report saw any target
func (d *Device) PresenceDetected() bool {
	s := d.State()
	return s.PresenceDetected()
}

// MovingTargetDetected reports whether the last report saw a moving target
func (d *Device) MovingTargetDetected() bool {
	s := d.State()
	return s.MovingTargetDetected()
}

// StationaryTargetDetected reports whether the last report saw a stationary target
func (d *Device) StationaryTargetDetected() bool {
	s := d.State()
	return s.StationaryTargetDetected()
}

// MovingTargetDistance returns the moving target distance in cm
func (d *Device) MovingTargetDistance() uint16 {
	return d.State().Report.MovingDistance
}

// MovingTargetEnergy returns the moving target energy (0-100)
func (d *Device) MovingTargetEnergy() uint8 {
	return d.State().Report.MovingEnergy
}

// StationaryTargetDistance returns the stationary target distance in cm
func (d *Device) StationaryTargetDistance() uint16 {
	return d.State().Report.StationaryDistance
}

// StationaryTargetEnergy returns the stationary target energy (0-100)
func (d *Device) StationaryTargetEnergy() uint8 {
	return d.State().Report.StationaryEnergy
}

// DetectionDistance returns the detection distance in cm
func (d *Device) DetectionDistance() uint16 {
	return d.State().Report.DetectionDistance
}

// EngineeringMode reports whether the sensor is in engineering mode
func (d *Device) EngineeringMode() bool {
	return d.State().EngineeringMode
}

// MovingGateEnergy returns the moving energy of gate 0-8
func (d *Device) MovingGateEnergy(gate int) (uint8, error) {
	s := d.State()
	return s.MovingGateEnergy(gate)
}

// StationaryGateEnergy returns the stationary energy of gate 0-8
func (d *Device) StationaryGateEnergy(gate int) (uint8, error) {
	s := d.State()
	return s.StationaryGateEnergy(gate)
}

// MotionSensitivity returns the configured motion threshold of gate 0-8
func (d *Device) MotionSensitivity(gate int) (uint8, error) {
	s := d.State()
	return s.MotionSensitivity(gate)
}

// StationarySensitivity returns the configured stationary threshold of gate 0-8
func (d *Device) StationarySensitivity(gate int) (uint8, error) {
	s := d.State()
	return s.StationarySensitivity(gate)
}

// Configuration returns the last configuration read from the sensor
func (d *Device) Configuration() Configuration {
	return d.State().Config
}

// FirmwareVersion returns the last firmware version read from the sensor
func (d *Device) FirmwareVersion() FirmwareVersion {
	return d.State().Firmware
}

// ProtocolVersion returns the protocol version from the last configuration handshake
func (d *Device) ProtocolVersion() uint16 {
	return d.State().ProtocolVersion
}

// BufferSize returns the buffer size from the last configuration handshake
func (d *Device) BufferSize() uint16 {
	return d.State().BufferSize
}

// MACAddress returns the last MAC address read from the sensor
func (d *Device) MACAddress() net.HardwareAddr {
	return d.State().MAC
}

// LastPacket returns when the last frame was decoded
func (d *Device) LastPacket() time.Time {
	return d.State().LastPacket
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory is a function type for creating transports from detected devices
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// DeviceDetector finds candidate sensors for auto-detection
type DeviceDetector func(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for device connection
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         DeviceDetector
	deviceOptions          []Option
	autoDetect             bool
	waitForRadar           bool
	connectionRetries      int
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithoutRadarHandshake skips the firmware handshake on connect
func WithoutRadarHandshake() ConnectOption {
	return func(c *connectConfig) error {
		c.waitForRadar = false
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets the number of connection attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector sets a custom device detector function for auto-detection
func WithDeviceDetector(detector DeviceDetector) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{
		waitForRadar:      true,
		connectionRetries: DefaultConnectionRetries,
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}
	return config, nil
}

// ConnectDevice creates a transport for path (or the first auto-detected
// sensor), wraps it in a Device and runs Begin.
//
// Example usage:
//
//	// Connect to specific device
//	device, err := ld2410.ConnectDevice(ctx, "/dev/ttyUSB0",
//		ld2410.WithTransportFactory(func(p string) (ld2410.Transport, error) { return uart.New(p) }))
//
//	// Auto-detect device
//	device, err := ld2410.ConnectDevice(ctx, "", ld2410.WithAutoDetection(), ...)
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Device, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, err
	}

	transport, err := createTransport(ctx, path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	// Auto-detected sensors were just probed, one attempt is enough
	attempts := config.connectionRetries
	if config.autoDetect {
		attempts = 1
	}
	err = RetryWithConfig(ctx, ConnectionRetryConfig(attempts), func() error {
		return device.Begin(ctx, config.waitForRadar)
	})
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempts, err)
	}
	return device, nil
}

func createTransport(ctx context.Context, path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(ctx, config.transportDeviceFactory, config.deviceDetector)
	}
	if config.transportFactory == nil {
		return nil, errors.New("transport factory not provided")
	}
	transport, err := config.transportFactory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}
	return transport, nil
}

func createAutoDetectedTransport(
	ctx context.Context,
	factory TransportFromDeviceFactory,
	detector DeviceDetector,
) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport device factory not provided")
	}

	opts := detection.DefaultOptions()

	if detector == nil {
		detector = detection.DetectAll
	}
	devices, err := detector(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, errors.New("no LD2410 sensors found")
	}
	return factory(devices[0])
}
