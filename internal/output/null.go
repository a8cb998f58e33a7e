// SPDX-License-Identifier: MIT
package output

import (
	"sync"
	"time"
)

// defaultNullBufferMs is how far writes may run ahead of the simulated clock.
const defaultNullBufferMs = 500

// NullSink simulates a device when no real sink is active. Its output
// time follows the wall clock since Open but never passes what was
// written.
type NullSink struct {
	mu  sync.Mutex
	now func() time.Time

	format   Format
	bufferMs int64
	open     bool

	openAt    time.Time
	written   int64 // bytes
	writtenMs int64 // ms seated by Flush, added to written
	paused    bool
	pausedAt  time.Time
}

var _ Sink = (*NullSink)(nil)

// NewNullSink creates a null sink using the system clock.
func NewNullSink() *NullSink {
	return NewNullSinkWithClock(time.Now)
}

// NewNullSinkWithClock creates a null sink reading time from now.
func NewNullSinkWithClock(now func() time.Time) *NullSink {
	return &NullSink{now: now}
}

func (n *NullSink) Name() string { return "null" }

func (n *NullSink) Open(f Format) (int, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.format = f
	n.bufferMs = int64(f.BufferMs)
	if n.bufferMs <= 0 {
		n.bufferMs = defaultNullBufferMs
	}
	n.open = true
	n.openAt = n.now()
	n.written = 0
	n.writtenMs = 0
	n.paused = false
	return 0, nil
}

func (n *NullSink) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.open = false
	return nil
}

func (n *NullSink) Write(pcm []byte) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open {
		return 1
	}
	n.written += int64(len(pcm))
	return 0
}

func (n *NullSink) CanWrite() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open || n.paused {
		return 0
	}
	ahead := n.writtenMsLocked() - n.elapsedLocked()
	free := n.bufferMs - ahead
	if free <= 0 {
		return 0
	}
	return int(n.format.MsToBytes(free))
}

func (n *NullSink) IsPlaying() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open {
		return false
	}
	return n.outputTimeLocked() < n.writtenMsLocked()
}

func (n *NullSink) Pause(pause bool) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	prev := n.paused
	if pause == prev {
		return prev
	}
	now := n.now()
	if pause {
		n.pausedAt = now
	} else {
		n.openAt = n.openAt.Add(now.Sub(n.pausedAt))
	}
	n.paused = pause
	return prev
}

func (n *NullSink) SetVolume(int) {}

func (n *NullSink) SetPan(int) {}

func (n *NullSink) Flush(ms int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	n.openAt = now.Add(-time.Duration(ms) * time.Millisecond)
	if n.paused {
		n.pausedAt = now
	}
	n.written = 0
	n.writtenMs = ms
}

func (n *NullSink) OutputTime() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open {
		return 0
	}
	return n.outputTimeLocked()
}

func (n *NullSink) WrittenTime() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.writtenMsLocked()
}

func (n *NullSink) elapsedLocked() int64 {
	end := n.now()
	if n.paused {
		end = n.pausedAt
	}
	return end.Sub(n.openAt).Milliseconds()
}

func (n *NullSink) writtenMsLocked() int64 {
	return n.writtenMs + n.format.BytesToMs(n.written)
}

func (n *NullSink) outputTimeLocked() int64 {
	return min(n.elapsedLocked(), n.writtenMsLocked())
}
