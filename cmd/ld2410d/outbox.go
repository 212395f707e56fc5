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
	"go.uber.org/zap"

	"github.com/ncmreynolds/ld2410"
)

// presenceBacklog bounds queued presence flips. On overflow the oldest
// flip is dropped, so the newest value always reaches the broker.
const presenceBacklog = 8

// outbox moves MQTT publishing off the poll goroutine. States are
// latest-wins; presence flips are queued in order.
type outbox struct {
	publisher statePublisher
	logger    *zap.Logger
	states    chan ld2410.State
	presence  chan bool
	stop      chan struct{}
	done      chan struct{}
}

func newOutbox(publisher statePublisher, logger *zap.Logger) *outbox {
	return &outbox{
		publisher: publisher,
		logger:    logger,
		states:    make(chan ld2410.State, 1),
		presence:  make(chan bool, presenceBacklog),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// offer queues v without blocking, evicting the oldest entry when full.
// Only one goroutine may offer to a given channel.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (o *outbox) offerState(state ld2410.State) {
	offer(o.states, state)
}

func (o *outbox) offerPresence(present bool) {
	offer(o.presence, present)
}

// start runs the publish worker until close
func (o *outbox) start() {
	go o.run()
}

func (o *outbox) run() {
	defer close(o.done)
	for {
		// Presence first, a flip matters more than a refresh
		select {
		case present := <-o.presence:
			o.publishPresence(present)
			continue
		default:
		}
		select {
		case present := <-o.presence:
			o.publishPresence(present)
		case state := <-o.states:
			if _, err := o.publisher.PublishState(state); err != nil {
				o.logger.Debug("state publish failed", zap.Error(err))
			}
		case <-o.stop:
			o.flush()
			return
		}
	}
}

// flush publishes presence flips still queued at shutdown
func (o *outbox) flush() {
	for {
		select {
		case present := <-o.presence:
			o.publishPresence(present)
		default:
			return
		}
	}
}

func (o *outbox) publishPresence(present bool) {
	if err := o.publisher.PublishPresence(present); err != nil {
		o.logger.Warn("presence publish failed", zap.Error(err))
	}
}

// close stops the worker and waits for the in-flight publish
func (o *outbox) close() {
	close(o.stop)
	<-o.done
}
