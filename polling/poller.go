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

// Package polling runs a background read loop over an LD2410 Device,
// debouncing presence and recovering the link after errors or host sleep.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ncmreynolds/ld2410"
	"github.com/ncmreynolds/ld2410/internal/syncutil"
)

// ErrAlreadyRunning is returned by Start when the poller is running
var ErrAlreadyRunning = errors.New("poller already running")

// Callbacks defines the poller callbacks. All fields are optional. They
// run on the polling goroutine and must not block for long.
type Callbacks struct {
	// OnReport is called for every pass that decoded a new report.
	// Ack-only passes do not trigger it.
	OnReport func(state ld2410.State)
	// OnPresenceChanged is called when the debounced presence flips
	OnPresenceChanged func(present bool, state ld2410.State)
	// OnError is called for every read or recovery error
	OnError func(err error)
}

// Metrics is a snapshot of the poller counters
type Metrics struct {
	PollCycles      int64
	Reports         int64
	PollErrors      int64
	CallbackPanics  int64
	Recoveries      int64
	PresenceChanges int64
	LastPollLatency time.Duration
}

// Poller reads a Device at a fixed interval and fans the results out to
// callbacks.
//
// Thread Safety: Start, Stop, Pause and Resume may be called from any
// goroutine. Presence and GetMetrics return snapshots.
type Poller struct {
	device    *ld2410.Device
	config    *Config
	recoverer DeviceRecoverer
	callbacks Callbacks
	now       func() time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	runErr   error
	pauseCh  chan struct{}
	resumeCh chan struct{}

	presence   presenceTracker
	presenceMu syncutil.RWMutex

	// Owned by the poll goroutine. Acks also make Read return true, so a
	// new report is detected by the device's report counter advancing.
	seenDevice  *ld2410.Device
	seenReports uint64

	lifecycle sync.Mutex
	errMu     sync.Mutex

	pollCycles      atomic.Int64
	reports         atomic.Int64
	pollErrors      atomic.Int64
	callbackPanics  atomic.Int64
	recoveries      atomic.Int64
	presenceChanges atomic.Int64
	lastLatency     atomic.Int64
	running         atomic.Bool
	paused          atomic.Bool
}

// Option configures a Poller
type Option func(*Poller)

// WithRecoverer sets the recoverer used after fatal errors and sleep.
// Without one the loop stops on the first fatal error.
func WithRecoverer(r DeviceRecoverer) Option {
	return func(p *Poller) { p.recoverer = r }
}

// WithCallbacks sets the poller callbacks
func WithCallbacks(cb Callbacks) Option {
	return func(p *Poller) { p.callbacks = cb }
}

// WithClock sets the time source used for debouncing and sleep detection
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a poller for device. A nil config uses DefaultConfig.
func New(device *ld2410.Device, config *Config, opts ...Option) (*Poller, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: nil device", ld2410.ErrInvalidParameter)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive", ld2410.ErrInvalidParameter)
	}
	if config.PresenceHoldTime < 0 {
		return nil, fmt.Errorf("%w: negative presence hold time", ld2410.ErrInvalidParameter)
	}

	p := &Poller{
		device:   device,
		config:   config,
		now:      time.Now,
		pauseCh:  make(chan struct{}, 1),
		resumeCh: make(chan struct{}, 1),
	}
	p.presence.hold = config.PresenceHoldTime
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Device returns the device currently polled. It changes after a recovery
// that reopened the port.
func (p *Poller) Device() *ld2410.Device {
	if p.recoverer != nil {
		return p.recoverer.GetDevice()
	}
	return p.device
}

// Start launches the read loop in a goroutine. It returns immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.setErr(nil)

	go func(done chan struct{}) {
		defer close(done)
		defer p.running.Store(false)
		p.setErr(p.Run(loopCtx))
	}(p.done)
	return nil
}

// Stop cancels the loop and waits for it to exit. It is safe to call on a
// stopped poller.
func (p *Poller) Stop() {
	p.lifecycle.Lock()
	cancel, done := p.cancel, p.done
	p.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when a loop started with Start has exited
func (p *Poller) Done() <-chan struct{} {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.done
}

// Err returns why the last Start loop ended. It is nil while running and
// after a clean Stop.
func (p *Poller) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.runErr
}

func (p *Poller) setErr(err error) {
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	p.errMu.Lock()
	p.runErr = err
	p.errMu.Unlock()
}

// IsRunning reports whether a loop started with Start is active
func (p *Poller) IsRunning() bool {
	return p.running.Load()
}

// Pause suspends reading until Resume. Bytes keep arriving in the OS
// buffer and are drained after resuming.
func (p *Poller) Pause() {
	if p.paused.CompareAndSwap(false, true) {
		select {
		case p.pauseCh <- struct{}{}:
		default:
		}
	}
}

// Resume restarts reading after Pause
func (p *Poller) Resume() {
	if p.paused.CompareAndSwap(true, false) {
		select {
		case p.resumeCh <- struct{}{}:
		default:
		}
	}
}

// IsPaused reports whether the poller is paused
func (p *Poller) IsPaused() bool {
	return p.paused.Load()
}

// Run polls until ctx is cancelled or a fatal error cannot be recovered.
// It blocks; use Start for a background loop.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	lastPoll := p.now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.pauseCh:
			if err := p.waitForResume(ctx); err != nil {
				return err
			}
			lastPoll = p.now()
		case <-ticker.C:
			if p.paused.Load() {
				continue
			}
			now := p.now()
			elapsed := now.Sub(lastPoll)
			lastPoll = now

			if p.config.SleepRecovery.DetectSleep(elapsed, p.config.PollInterval) {
				ld2410.Debugf("[POLLER] %v since last poll, assuming host sleep", elapsed)
				if err := p.recover(ctx, ld2410.ErrNotConnected); err != nil {
					return err
				}
			}
			if err := p.poll(ctx); err != nil {
				return err
			}
		}
	}
}

func (p *Poller) waitForResume(ctx context.Context) error {
	for p.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.resumeCh:
		}
	}
	return nil
}

// poll runs one read pass. It returns an error only when the loop must end.
func (p *Poller) poll(ctx context.Context) error {
	device := p.Device()
	start := p.now()
	_, err := device.Read()
	now := p.now()
	p.lastLatency.Store(int64(now.Sub(start)))
	p.pollCycles.Add(1)

	if err != nil {
		p.pollErrors.Add(1)
		p.notifyError(err)
		if ld2410.IsFatal(err) {
			return p.recover(ctx, err)
		}
		return nil
	}

	state := device.State()
	if p.newReport(device, state) {
		p.reports.Add(1)
		p.presenceMu.Lock()
		p.presence.observe(state.PresenceDetected(), now)
		p.presenceMu.Unlock()
		if cb := p.callbacks.OnReport; cb != nil {
			p.safeCall(func() { cb(state) })
		}
	}

	p.presenceMu.Lock()
	changed := p.presence.evaluate(now)
	present := p.presence.state.Present
	p.presenceMu.Unlock()
	if changed {
		p.presenceChanges.Add(1)
		if cb := p.callbacks.OnPresenceChanged; cb != nil {
			p.safeCall(func() { cb(present, state) })
		}
	}
	return nil
}

// newReport reports whether state carries a report not yet seen by the
// loop. A replaced device restarts its counter from zero.
func (p *Poller) newReport(device *ld2410.Device, state ld2410.State) bool {
	if device != p.seenDevice {
		p.seenDevice = device
		p.seenReports = 0
	}
	if state.Reports == p.seenReports {
		return false
	}
	p.seenReports = state.Reports
	return true
}

// recover runs the recoverer after cause. Without a recoverer, cause is
// returned and the loop ends.
func (p *Poller) recover(ctx context.Context, cause error) error {
	if p.recoverer == nil {
		return cause
	}
	if err := p.recoverer.AttemptRecovery(ctx); err != nil {
		p.notifyError(err)
		return fmt.Errorf("%w: %w", cause, err)
	}
	p.recoveries.Add(1)
	ld2410.Debugf("[POLLER] recovered after: %v", cause)
	return nil
}

func (p *Poller) notifyError(err error) {
	if cb := p.callbacks.OnError; cb != nil {
		p.safeCall(func() { cb(err) })
	}
}

// safeCall runs a user callback, turning a panic into a counted log line
func (p *Poller) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.callbackPanics.Add(1)
			ld2410.Debugf("[POLLER] callback panicked: %v", r)
		}
	}()
	fn()
}

// Presence returns the debounced presence state
func (p *Poller) Presence() PresenceState {
	p.presenceMu.RLock()
	defer p.presenceMu.RUnlock()
	return p.presence.state
}

// GetMetrics returns a snapshot of the poller counters
func (p *Poller) GetMetrics() Metrics {
	return Metrics{
		PollCycles:      p.pollCycles.Load(),
		Reports:         p.reports.Load(),
		PollErrors:      p.pollErrors.Load(),
		CallbackPanics:  p.callbackPanics.Load(),
		Recoveries:      p.recoveries.Load(),
		PresenceChanges: p.presenceChanges.Load(),
		LastPollLatency: time.Duration(p.lastLatency.Load()),
	}
}
