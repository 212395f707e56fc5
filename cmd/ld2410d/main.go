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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ncmreynolds/ld2410"
	"github.com/ncmreynolds/ld2410/detection"
	"github.com/ncmreynolds/ld2410/internal/config"
	"github.com/ncmreynolds/ld2410/internal/connect"
	"github.com/ncmreynolds/ld2410/internal/httpapi"
	"github.com/ncmreynolds/ld2410/internal/logging"
	"github.com/ncmreynolds/ld2410/internal/metrics"
	"github.com/ncmreynolds/ld2410/internal/publish"
	"github.com/ncmreynolds/ld2410/outpin"
	"github.com/ncmreynolds/ld2410/polling"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 5 * time.Second

var (
	flagConfigPath string
	flagVersion    bool
)

func init() {
	flag.StringVar(&flagConfigPath, "config", "", "Path to the configuration file")
	flag.BoolVar(&flagVersion, "version", false, "Print the version and exit")
}

// statePublisher is the part of the MQTT publisher the daemon drives
type statePublisher interface {
	PublishState(state ld2410.State) (bool, error)
	PublishPresence(present bool) error
	Close() error
}

type daemon struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics.SensorMetrics
	poller    *polling.Poller
	publisher statePublisher
	outbox    *outbox
	pin       *outpin.Pin
	server    *http.Server
	ready     chan string
}

// connectOptions maps the configuration onto connection options
func connectOptions(cfg *config.Config, logger *zap.Logger) (connect.Options, error) {
	mode, err := detection.ParseMode(cfg.Serial.DetectMode)
	if err != nil {
		return connect.Options{}, err
	}
	opts := connect.DefaultOptions()
	opts.Path = cfg.Serial.Port
	if cfg.Serial.TCP != "" {
		opts.Path = cfg.Serial.TCP
	}
	opts.Baud = cfg.Serial.Baud
	opts.Mode = mode
	opts.WaitForRadar = cfg.Device.WaitForRadar
	opts.DeviceOptions = []ld2410.Option{
		ld2410.WithCommandTimeout(cfg.Device.CommandTimeout),
		ld2410.WithDebugWriter(logging.DebugWriter(logger.Named("wire"))),
	}
	return opts, nil
}

func newDaemon(
	cfg *config.Config,
	logger *zap.Logger,
	device *ld2410.Device,
	reopen polling.ReopenFunc,
	publisher statePublisher,
) (*daemon, error) {
	d := &daemon{
		cfg:       cfg,
		logger:    logger,
		registry:  metrics.NewRegistry(),
		publisher: publisher,
		ready:     make(chan string, 1),
	}
	d.metrics = metrics.NewSensorMetrics(d.registry)
	if publisher != nil {
		d.outbox = newOutbox(publisher, logger.Named("outbox"))
	}

	pollConfig := polling.DefaultConfig()
	pollConfig.PollInterval = cfg.Poll.Interval
	pollConfig.PresenceHoldTime = cfg.Poll.PresenceHold

	opts := []polling.Option{polling.WithCallbacks(polling.Callbacks{
		OnReport:          d.onReport,
		OnPresenceChanged: d.onPresenceChanged,
		OnError:           d.onError,
	})}
	if cfg.Poll.Reopen && reopen != nil {
		opts = append(opts, polling.WithRecoverer(polling.NewDefaultRecoverer(
			device, reopen,
			pollConfig.SleepRecovery.RecoveryBackoff,
			pollConfig.SleepRecovery.MaxRecoveryAttempts,
		)))
	}

	poller, err := polling.New(device, pollConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create poller: %w", err)
	}
	d.poller = poller

	api := httpapi.New(&liveSensor{current: poller.Device},
		httpapi.WithLogger(logger.Named("http")),
		httpapi.WithPresence(poller.Presence),
		httpapi.WithCommandObserver(d.metrics.ObserveCommand),
		httpapi.WithVersion(version),
		httpapi.WithCommandTimeout(cfg.Device.CommandTimeout+time.Second),
	)
	router := api.Router()
	if cfg.Metrics.Enable {
		router.Handle(cfg.Metrics.Path, metrics.Handler(d.registry))
	}
	d.server = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	return d, nil
}

func (d *daemon) onReport(state ld2410.State) {
	d.metrics.ObserveState(state)
	d.metrics.SetConnected(true)
	if d.outbox != nil {
		d.outbox.offerState(state)
	}
}

func (d *daemon) onPresenceChanged(present bool, state ld2410.State) {
	d.metrics.ObservePresence(present)
	d.logger.Info("presence changed",
		zap.Bool("present", present),
		zap.Stringer("target", state.Report.State),
		zap.Uint16("distance", state.Report.DetectionDistance),
	)
	if d.outbox != nil {
		d.outbox.offerPresence(present)
	}
}

func (d *daemon) onError(err error) {
	d.metrics.PollErrors.Inc()
	if ld2410.IsFatal(err) {
		d.metrics.SetConnected(false)
		d.logger.Error("sensor connection lost", zap.Error(err))
		return
	}
	d.logger.Debug("read error", zap.Error(err))
}

// watchPin logs when the OUT pin and the serial reports disagree
func (d *daemon) watchPin(ctx context.Context) {
	err := d.pin.Watch(ctx, func(present bool) {
		d.logger.Debug("out pin changed", zap.String("pin", d.pin.Name()), zap.Bool("present", present))
		if !d.pin.Agrees(d.poller.Device()) {
			d.logger.Debug("out pin disagrees with reports", zap.Bool("pin", present))
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("out pin watch stopped", zap.Error(err))
	}
}

// run serves until ctx is cancelled or the poller gives up
func (d *daemon) run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.HTTP.Addr, err)
	}

	if d.outbox != nil {
		d.outbox.start()
	}
	if err := d.poller.Start(ctx); err != nil {
		_ = ln.Close()
		if d.outbox != nil {
			d.outbox.close()
		}
		return err
	}
	if d.pin != nil {
		go d.watchPin(ctx)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- d.server.Serve(ln)
	}()
	d.logger.Info("serving", zap.String("addr", ln.Addr().String()), zap.String("version", version))
	d.ready <- ln.Addr().String()

	var runErr error
	select {
	case <-ctx.Done():
	case <-d.poller.Done():
		runErr = d.poller.Err()
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	d.shutdown()
	return runErr
}

func (d *daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.server.Shutdown(ctx); err != nil {
		d.logger.Warn("http shutdown", zap.Error(err))
	}
	d.poller.Stop()
	if d.outbox != nil {
		d.outbox.close()
	}
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			d.logger.Warn("mqtt close", zap.Error(err))
		}
	}
	if err := d.poller.Device().Close(); err != nil {
		d.logger.Debug("device close", zap.Error(err))
	}
	d.metrics.SetConnected(false)
	d.logger.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	opts, err := connectOptions(cfg, logger)
	if err != nil {
		return err
	}

	device, err := connect.Device(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to connect to sensor: %w", err)
	}
	logger.Info("sensor connected",
		zap.String("transport", string(device.Transport().Type())),
		zap.Stringer("firmware", device.FirmwareVersion()),
	)

	if cfg.Device.Engineering {
		if err := device.RequestStartEngineeringMode(ctx); err != nil {
			_ = device.Close()
			return fmt.Errorf("failed to enable engineering mode: %w", err)
		}
	}

	var publisher statePublisher
	if cfg.MQTT.Enable {
		p := publish.New(cfg.MQTT, logger.Named("mqtt"))
		if err := p.Connect(ctx); err != nil {
			_ = device.Close()
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		publisher = p
	}

	d, err := newDaemon(cfg, logger, device, connect.Reopener(opts), publisher)
	if err != nil {
		_ = device.Close()
		return err
	}

	if cfg.OutPin.Name != "" {
		pin, err := outpin.Open(cfg.OutPin.Name)
		if err != nil {
			logger.Warn("out pin unavailable", zap.String("pin", cfg.OutPin.Name), zap.Error(err))
		} else {
			d.pin = pin
		}
	}

	return d.run(ctx)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	if flagVersion {
		_, _ = fmt.Println(version)
		return 0
	}

	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	// Library debug output goes through the structured logger
	ld2410.SetDebugOutput(logging.DebugWriter(logger.Named("ld2410")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", zap.Error(err))
		return 1
	}
	return 0
}
