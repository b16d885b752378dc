// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net"
	"testing"
	"time"

	"github.com/parallax-foundation/parallax/lib/codec"
)

// frameReader drains mode frames from a stream connection on its own
// goroutine so tests can assert wire order while writes block on the
// in-memory pipe.
type frameReader struct {
	frames chan modeFrame
}

func newFrameReader(t *testing.T, conn net.Conn) *frameReader {
	t.Helper()
	r := &frameReader{frames: make(chan modeFrame, 8)}
	decoder := codec.NewDecoder(conn)
	go func() {
		for {
			var frame modeFrame
			if err := decoder.Decode(&frame); err != nil {
				close(r.frames)
				return
			}
			r.frames <- frame
		}
	}()
	return r
}

func (r *frameReader) next(t *testing.T) modeFrame {
	t.Helper()
	select {
	case frame, ok := <-r.frames:
		if !ok {
			t.Fatal("stream closed before expected frame")
		}
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for mode frame")
	}
	panic("unreachable")
}

func (r *frameReader) expectNone(t *testing.T) {
	t.Helper()
	select {
	case frame, ok := <-r.frames:
		if ok {
			t.Fatalf("unexpected frame %+v", frame)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamSnapshotWrittenBeforeBufferedChange(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	callback := &streamCallback{conn: server}
	reader := newFrameReader(t, client)

	// A mode change lands before the snapshot is written. It must not
	// reach the wire ahead of the snapshot.
	if err := callback.ModeChanged(true); err != nil {
		t.Fatalf("buffered change: %v", err)
	}
	reader.expectNone(t)

	primed := make(chan error, 1)
	go func() { primed <- callback.prime(false) }()

	if frame := reader.next(t); frame.Event != "mode-changed" || frame.Enabled {
		t.Fatalf("snapshot frame = %+v, want enabled=false", frame)
	}
	if frame := reader.next(t); !frame.Enabled {
		t.Fatalf("buffered change frame = %+v, want enabled=true", frame)
	}
	if err := <-primed; err != nil {
		t.Fatalf("prime: %v", err)
	}
}

func TestStreamBufferedChangeMatchingSnapshotIsDeduplicated(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	callback := &streamCallback{conn: server}
	reader := newFrameReader(t, client)

	if err := callback.ModeChanged(true); err != nil {
		t.Fatalf("buffered change: %v", err)
	}

	primed := make(chan error, 1)
	go func() { primed <- callback.prime(true) }()

	if frame := reader.next(t); !frame.Enabled {
		t.Fatalf("snapshot frame = %+v, want enabled=true", frame)
	}
	if err := <-primed; err != nil {
		t.Fatalf("prime: %v", err)
	}
	reader.expectNone(t)

	// Later changes flow through normally once primed.
	delivered := make(chan error, 1)
	go func() { delivered <- callback.ModeChanged(false) }()
	if frame := reader.next(t); frame.Enabled {
		t.Fatalf("post-snapshot frame = %+v, want enabled=false", frame)
	}
	if err := <-delivered; err != nil {
		t.Fatalf("post-snapshot change: %v", err)
	}
}
