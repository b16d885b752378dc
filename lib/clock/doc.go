// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for
// testability.
//
// Production code accepts a Clock parameter instead of calling
// time.Now, time.After, time.NewTicker, or time.Sleep directly.
// Real() provides standard library behavior; Fake() provides a
// deterministic clock that advances only when Advance is called.
//
// When a goroutine calls After, Sleep, or NewTicker on a FakeClock,
// it registers a pending timer. Use WaitForTimers to block until a
// given number of timers exist before calling Advance; this removes
// the race between timer registration and time advancement that
// plagues tests built on real sleeps.
package clock
