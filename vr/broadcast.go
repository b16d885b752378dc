// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package vr

import (
	"log/slog"
	"sync"
)

// broadcastQueueDepth bounds pending notification work. On overflow
// the oldest entry is dropped, never the newest: subscribers may miss
// intermediate values but always converge on the latest one.
const broadcastQueueDepth = 16

// broadcaster runs the Manager's asynchronous delivery work on a
// single goroutine: mode-change fan-out to registered callbacks and
// focus events to the bound listener. Enqueueing never blocks, so the
// Manager can publish while holding its state lock, and no callback
// or socket write ever runs under that lock.
type broadcaster struct {
	logger *slog.Logger

	mu        sync.Mutex
	callbacks map[StateCallback]struct{}
	closed    bool

	queue chan func()
	done  chan struct{}
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	b := &broadcaster{
		logger:    logger,
		callbacks: make(map[StateCallback]struct{}),
		queue:     make(chan func(), broadcastQueueDepth),
		done:      make(chan struct{}),
	}
	go b.deliver()
	return b
}

// register adds a callback. Registering the same callback twice is a
// no-op; it will be notified once per mode change.
func (b *broadcaster) register(callback StateCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.callbacks[callback] = struct{}{}
}

func (b *broadcaster) unregister(callback StateCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.callbacks, callback)
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.callbacks)
}

// enqueueMode schedules a mode-change notification for every
// callback registered at delivery time.
func (b *broadcaster) enqueueMode(enabled bool) {
	b.enqueue(func() { b.notifyMode(enabled) })
}

// enqueue schedules a delivery task. Safe to call under the Manager
// lock: the task runs on the broadcaster goroutine. When the queue is
// full the oldest pending task is discarded to make room, so the most
// recent state always reaches subscribers.
func (b *broadcaster) enqueue(task func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for {
		select {
		case b.queue <- task:
			return
		default:
		}
		select {
		case <-b.queue:
			b.logger.Warn("notification queue full, dropping oldest entry")
		default:
			// The delivery goroutine consumed an entry between the
			// two selects; retry the send.
		}
	}
}

// close stops accepting work, drains the queue, and waits for the
// delivery goroutine to exit.
func (b *broadcaster) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()
	<-b.done
}

func (b *broadcaster) deliver() {
	defer close(b.done)
	for task := range b.queue {
		task()
	}
}

func (b *broadcaster) notifyMode(enabled bool) {
	b.mu.Lock()
	snapshot := make([]StateCallback, 0, len(b.callbacks))
	for callback := range b.callbacks {
		snapshot = append(snapshot, callback)
	}
	b.mu.Unlock()

	for _, callback := range snapshot {
		if err := callback.ModeChanged(enabled); err != nil {
			b.logger.Warn("mode callback failed",
				"enabled", enabled,
				"error", err)
		}
	}
}
