// SPDX-License-Identifier: MIT

/*
Package output fans decoded PCM out to the active output sinks.

A Router holds zero or more Sinks. Transport calls go to every active sink
and the per-call results are combined so that the most constrained sink
gates shared state. When no sink is active the Router falls back to a
NullSink, which simulates a device clock so playback timing stays
consistent.
*/
package output

import "fmt"

// Volume and pan ranges accepted by SetVolume and SetPan.
const (
	MaxVolume = 255
	MinPan    = -128
	MaxPan    = 128
)

// Format describes the PCM stream handed to Open.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	// BufferMs sizes the sink-side FIFO.
	BufferMs int
}

// Validate reports whether the format can be opened.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	if f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 {
		return fmt.Errorf("invalid bits per sample %d", f.BitsPerSample)
	}
	return nil
}

// BytesPerSecond returns the stream's byte rate.
func (f Format) BytesPerSecond() int64 {
	return int64(f.SampleRate) * int64(f.Channels) * int64(f.BitsPerSample/8)
}

// FrameBytes returns the size of one interleaved sample frame.
func (f Format) FrameBytes() int {
	return f.Channels * f.BitsPerSample / 8
}

// BytesToMs converts a byte count to stream milliseconds.
func (f Format) BytesToMs(n int64) int64 {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return n * 1000 / bps
}

// MsToBytes converts stream milliseconds to a frame-aligned byte count.
func (f Format) MsToBytes(ms int64) int64 {
	fb := int64(f.FrameBytes())
	if fb == 0 {
		return 0
	}
	return ms * int64(f.SampleRate) / 1000 * fb
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %d bit", f.SampleRate, f.Channels, f.BitsPerSample)
}

// Sink is one output endpoint.
type Sink interface {
	// Name identifies the sink in configuration and logs.
	Name() string
	// Open prepares the sink for f and returns its latency in ms.
	Open(f Format) (latencyMs int, err error)
	Close() error
	// Write queues pcm and returns 0, or non-zero if the block was refused.
	// Callers check CanWrite first.
	Write(pcm []byte) int
	// CanWrite returns how many bytes Write would accept without blocking.
	CanWrite() int
	// IsPlaying reports whether queued audio is still being played.
	IsPlaying() bool
	// Pause sets the pause state and returns the previous one.
	Pause(pause bool) bool
	SetVolume(volume int)
	SetPan(pan int)
	// Flush drops queued audio and re-seats the clock at ms.
	Flush(ms int64)
	// OutputTime returns the audible stream position in ms.
	OutputTime() int64
	// WrittenTime returns the stream position of the last queued byte in ms.
	WrittenTime() int64
}

func clampVolume(v int) int {
	return max(0, min(v, MaxVolume))
}

func clampPan(p int) int {
	return max(MinPan, min(p, MaxPan))
}
