// SPDX-License-Identifier: MIT

/*
Package cache holds the time-indexed ring of waveform and spectrum frames
that visualization workers read from.

The decode goroutine is the only writer. It fills a private pending frame
with PushFrame and publishes it with NextFrame, which stores the frame
pointer into the current slot and advances the write position. Published
frames are never mutated, so readers on other goroutines copy from a slot
without locking. Scalar bookkeeping (write position, timestamps, rate) is
kept in atomics.

A frame pushed out of the ring is kept on a small writer-owned free list
and reused as a later pending frame once no reader pins it, so steady
state publishing does not allocate.

LatencyToOffset maps "what is audible latencyMs from now" onto a slot
index: the frames between the write position and the output position
(writeTime - readTime) plus the consumer's own latency are skipped
backwards from the newest frame.
*/
package cache

import (
	"sync"
	"sync/atomic"

	applog "audiohost/internal/log"
	"audiohost/internal/metrics"
	"audiohost/pkg/bitint"
)

// FrameSize is the number of bytes per channel in one frame.
const FrameSize = 576

// Channels is the number of channels a frame carries.
const Channels = 2

// Kind selects one of the two data sets in a frame.
type Kind int

const (
	Waveform Kind = iota
	Spectrum
)

func (k Kind) String() string {
	switch k {
	case Waveform:
		return "waveform"
	case Spectrum:
		return "spectrum"
	default:
		return "unknown"
	}
}

// freeFrames bounds the writer's list of displaced frames.
const freeFrames = 4

// pinAttempts bounds how often a reader retries a slot that is being
// replaced under it.
const pinAttempts = 4

// Frame is one published time slice.
type Frame struct {
	Wave [Channels][FrameSize]byte
	Spec [Channels][FrameSize]byte

	readers atomic.Int32 // readers copying from the frame
}

func (f *Frame) reset() {
	for ch := range Channels {
		clear(f.Wave[ch][:])
		clear(f.Spec[ch][:])
	}
}

type ring struct {
	slots []atomic.Pointer[Frame]
}

func newRing(n int) *ring {
	return &ring{slots: make([]atomic.Pointer[Frame], n)}
}

// SampleCache is a growable ring of frames. The zero value is not usable;
// create one with New.
type SampleCache struct {
	mu   sync.Mutex // serializes growth, Clear and recycling in NextFrame
	ring atomic.Pointer[ring]

	// writer-owned
	pending *Frame
	free    [freeFrames]*Frame
	nfree   int

	writePos   atomic.Int64
	writeTime  atomic.Int64
	readTime   atomic.Int64
	frameRate  atomic.Int64 // rate the writer produces frames at
	sizeRate   atomic.Int64 // largest rate the ring was sized for
	maxLatency atomic.Int64

	metrics *metrics.Metrics
}

// New creates a cache sized for frameRateHz and maxLatencyMs. m may be nil.
func New(frameRateHz, maxLatencyMs int, m *metrics.Metrics) *SampleCache {
	c := &SampleCache{pending: new(Frame), metrics: m}
	if frameRateHz < 0 {
		frameRateHz = 0
	}
	if maxLatencyMs < 0 {
		maxLatencyMs = 0
	}
	c.frameRate.Store(int64(frameRateHz))
	c.sizeRate.Store(int64(frameRateHz))
	c.maxLatency.Store(int64(maxLatencyMs))
	c.ring.Store(newRing(requiredCapacity(int64(frameRateHz), int64(maxLatencyMs))))
	m.SetCacheCapacity(c.Capacity())
	return c
}

// requiredCapacity returns ceil(rate*latency/1000)+1.
func requiredCapacity(rateHz, latencyMs int64) int {
	return int(bitint.CeilDiv(rateHz*latencyMs, 1000)) + 1
}

// Capacity returns the number of slots in the ring.
func (c *SampleCache) Capacity() int {
	return len(c.ring.Load().slots)
}

// FrameRate returns the rate frames are produced at, in Hz. It converts
// milliseconds into frames in LatencyToOffset.
func (c *SampleCache) FrameRate() int { return int(c.frameRate.Load()) }

// SizingRate returns the largest frame rate the ring was sized for.
func (c *SampleCache) SizingRate() int { return int(c.sizeRate.Load()) }

// MaxLatency returns the largest latency the ring can serve, in ms.
func (c *SampleCache) MaxLatency() int { return int(c.maxLatency.Load()) }

// EnsureLatency grows the ring so that ms of history fit. Smaller values
// are a no-op.
func (c *SampleCache) EnsureLatency(ms int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int64(ms) <= c.maxLatency.Load() {
		return
	}
	c.maxLatency.Store(int64(ms))
	c.growLocked()
}

// EnsureFrameRate grows the ring for a frame rate of hz. Smaller values are
// a no-op. The rate used by LatencyToOffset is left alone.
func (c *SampleCache) EnsureFrameRate(hz int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int64(hz) <= c.sizeRate.Load() {
		return
	}
	c.sizeRate.Store(int64(hz))
	c.growLocked()
}

// SetFrameRate records the rate the writer now produces frames at and grows
// the ring for it. Called by the writer whenever its block rate changes.
func (c *SampleCache) SetFrameRate(hz int) {
	hz = max(hz, 0)
	c.frameRate.Store(int64(hz))
	c.EnsureFrameRate(hz)
}

// growLocked reallocates the ring if the current requirement exceeds its
// capacity. Slots keep their index; frames published into the old ring
// while the copy runs may be lost.
func (c *SampleCache) growLocked() {
	old := c.ring.Load()
	need := requiredCapacity(c.sizeRate.Load(), c.maxLatency.Load())
	if need <= len(old.slots) {
		return
	}

	next := newRing(need)
	for i := range old.slots {
		next.slots[i].Store(old.slots[i].Load())
	}
	c.ring.Store(next)
	c.metrics.SetCacheCapacity(need)
	applog.Debugf("Cache: grown to %d frames (rate %d Hz, latency %d ms)", need, c.sizeRate.Load(), c.maxLatency.Load())
}

// Clear drops every frame and rewinds the write position. Called by the
// writer when the decoding context changes.
func (c *SampleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ring.Store(newRing(c.Capacity()))
	c.pending.reset()
	c.writePos.Store(0)
	c.writeTime.Store(0)
	c.readTime.Store(0)
}

// PushFrame writes data into the frame at the current write position. The
// frame becomes visible to readers on the next NextFrame. Data longer than
// FrameSize is truncated; shorter data leaves the tail zero.
func (c *SampleCache) PushFrame(kind Kind, channel int, data []byte) {
	if channel < 0 || channel >= Channels {
		return
	}
	var dst *[FrameSize]byte
	switch kind {
	case Waveform:
		dst = &c.pending.Wave[channel]
	case Spectrum:
		dst = &c.pending.Spec[channel]
	default:
		return
	}
	n := copy(dst[:], data)
	clear(dst[n:])
}

// NextFrame publishes the pending frame and advances the write position,
// wrapping at capacity.
func (c *SampleCache) NextFrame() {
	// While the ring is being grown or cleared the displaced frame may
	// already be copied into the new ring, so it is not recycled.
	locked := c.mu.TryLock()

	r := c.ring.Load()
	pos := int(c.writePos.Load())
	if pos >= len(r.slots) {
		pos = 0
	}
	old := r.slots[pos].Swap(c.pending)
	c.writePos.Store(int64((pos + 1) % len(r.slots)))
	if locked {
		c.retire(old)
		c.mu.Unlock()
	}
	c.pending = c.takeFrame()
	c.metrics.CacheFramePublished()
}

// retire puts a frame that left the ring on the free list. Frames beyond
// the list's size are left to the collector.
func (c *SampleCache) retire(f *Frame) {
	if f == nil || c.nfree == len(c.free) {
		return
	}
	c.free[c.nfree] = f
	c.nfree++
}

// takeFrame returns a cleared frame no reader pins, allocating when the
// free list has none.
func (c *SampleCache) takeFrame() *Frame {
	for i := 0; i < c.nfree; i++ {
		f := c.free[i]
		if f.readers.Load() != 0 {
			continue
		}
		c.nfree--
		c.free[i] = c.free[c.nfree]
		c.free[c.nfree] = nil
		f.reset()
		return f
	}
	return new(Frame)
}

// pin returns the frame at offset with its reader count raised, or nil for
// an empty slot. The caller must unpin a non-nil result.
func (c *SampleCache) pin(offset int) *Frame {
	for range pinAttempts {
		r := c.ring.Load()
		if offset < 0 || offset >= len(r.slots) {
			return nil
		}
		f := r.slots[offset].Load()
		if f == nil {
			return nil
		}
		f.readers.Add(1)
		// The frame may have left the ring before the pin was visible.
		if cur := c.ring.Load(); offset < len(cur.slots) && cur.slots[offset].Load() == f {
			return f
		}
		f.readers.Add(-1)
	}
	return nil
}

// SetWriteTime records the decoder's stream position in ms.
func (c *SampleCache) SetWriteTime(ms int64) { c.writeTime.Store(ms) }

// SetReadTime records the output's played-back position in ms.
func (c *SampleCache) SetReadTime(ms int64) { c.readTime.Store(ms) }

// WriteTime returns the last decoder position.
func (c *SampleCache) WriteTime() int64 { return c.writeTime.Load() }

// ReadTime returns the last output position.
func (c *SampleCache) ReadTime() int64 { return c.readTime.Load() }

// WritePos returns the slot the next frame will be published to.
func (c *SampleCache) WritePos() int { return int(c.writePos.Load()) }

// LatencyToOffset returns the slot holding the audio that is audible
// latencyMs from now. With no gap between write and read time and zero
// latency this is the most recently published frame. The result is
// clamped to the oldest frame the ring holds.
func (c *SampleCache) LatencyToOffset(latencyMs int) int {
	capacity := c.Capacity()
	gap := c.writeTime.Load() - c.readTime.Load()
	back := (gap + int64(latencyMs)) * c.frameRate.Load() / 1000
	if back < 0 {
		back = 0
	}
	if back > int64(capacity-1) {
		back = int64(capacity - 1)
	}
	return bitint.Wrap(int(c.writePos.Load())-1-int(back), capacity)
}

// Get copies the kind/channel data of the frame at offset into dst and
// returns the number of bytes copied. An empty slot reads as silence.
func (c *SampleCache) Get(kind Kind, channel, offset int, dst []byte) int {
	if channel < 0 || channel >= Channels {
		return 0
	}
	if offset < 0 || offset >= c.Capacity() {
		return 0
	}
	f := c.pin(offset)
	if f == nil {
		n := min(len(dst), FrameSize)
		clear(dst[:n])
		return n
	}
	defer f.readers.Add(-1)
	switch kind {
	case Waveform:
		return copy(dst, f.Wave[channel][:])
	case Spectrum:
		return copy(dst, f.Spec[channel][:])
	}
	return 0
}

// GetWaveLeft copies the left waveform of the frame at offset.
func (c *SampleCache) GetWaveLeft(dst []byte, offset int) int {
	return c.Get(Waveform, 0, offset, dst)
}

// GetWaveRight copies the right waveform of the frame at offset.
func (c *SampleCache) GetWaveRight(dst []byte, offset int) int {
	return c.Get(Waveform, 1, offset, dst)
}

// GetSpecLeft copies the left spectrum of the frame at offset.
func (c *SampleCache) GetSpecLeft(dst []byte, offset int) int {
	return c.Get(Spectrum, 0, offset, dst)
}

// GetSpecRight copies the right spectrum of the frame at offset.
func (c *SampleCache) GetSpecRight(dst []byte, offset int) int {
	return c.Get(Spectrum, 1, offset, dst)
}
