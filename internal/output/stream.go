// SPDX-License-Identifier: MIT
package output

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"
)

// defaultStreamBufferMs sizes the FIFO when the format leaves BufferMs unset.
const defaultStreamBufferMs = 250

// pcmStream is the FIFO and clock shared by the device-backed sinks. The
// decode goroutine writes into it and the device pulls from it on its own
// callback goroutine.
type pcmStream struct {
	mu     sync.Mutex // guards fifo and format swaps on open
	fifo   *ringbuffer.RingBuffer
	format Format

	baseMs  atomic.Int64
	written atomic.Int64 // bytes since the last open or flush
	played  atomic.Int64 // bytes since the last open or flush
	paused  atomic.Bool
	volume  atomic.Int32
	pan     atomic.Int32
}

func newPCMStream() *pcmStream {
	s := &pcmStream{}
	s.volume.Store(MaxVolume)
	return s
}

// reset sizes the FIFO for f and rewinds the clock.
func (s *pcmStream) reset(f Format) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("unsupported sample width %d bit, need 16", f.BitsPerSample)
	}
	bufferMs := f.BufferMs
	if bufferMs <= 0 {
		bufferMs = defaultStreamBufferMs
	}
	size := int(f.MsToBytes(int64(bufferMs)))

	s.mu.Lock()
	s.fifo = ringbuffer.New(size)
	s.format = f
	s.mu.Unlock()

	s.baseMs.Store(0)
	s.written.Store(0)
	s.played.Store(0)
	s.paused.Store(false)
	return nil
}

func (s *pcmStream) buffer() (*ringbuffer.RingBuffer, Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fifo, s.format
}

func (s *pcmStream) write(pcm []byte) int {
	fifo, _ := s.buffer()
	if fifo == nil {
		return 1
	}
	if fifo.Free() < len(pcm) {
		return 1
	}
	n, err := fifo.Write(pcm)
	s.written.Add(int64(n))
	if err != nil || n < len(pcm) {
		return 1
	}
	return 0
}

func (s *pcmStream) canWrite() int {
	fifo, _ := s.buffer()
	if fifo == nil || s.paused.Load() {
		return 0
	}
	return fifo.Free()
}

func (s *pcmStream) isPlaying() bool {
	fifo, _ := s.buffer()
	return fifo != nil && fifo.Length() > 0
}

func (s *pcmStream) pause(p bool) bool {
	return s.paused.Swap(p)
}

func (s *pcmStream) flush(ms int64) {
	fifo, _ := s.buffer()
	if fifo != nil {
		fifo.Reset()
	}
	s.baseMs.Store(ms)
	s.written.Store(0)
	s.played.Store(0)
}

func (s *pcmStream) outputTime() int64 {
	_, f := s.buffer()
	return s.baseMs.Load() + f.BytesToMs(s.played.Load())
}

func (s *pcmStream) writtenTime() int64 {
	_, f := s.buffer()
	return s.baseMs.Load() + f.BytesToMs(s.written.Load())
}

// pull fills p with queued audio, padding with silence on underrun or
// while paused. It applies volume and pan to the copied samples.
func (s *pcmStream) pull(p []byte) {
	fifo, f := s.buffer()
	if fifo == nil || s.paused.Load() {
		clear(p)
		return
	}

	// Keep whole frames in the FIFO so channels never swap on underrun.
	want := len(p)
	if fb := f.FrameBytes(); fb > 0 {
		want -= want % fb
	}
	n, _ := fifo.Read(p[:want])
	s.played.Add(int64(n))
	clear(p[n:])

	s.applyGain(p[:n], f.Channels)
}

func (s *pcmStream) applyGain(p []byte, channels int) {
	vol := int32(s.volume.Load())
	pan := int32(s.pan.Load())
	if vol == MaxVolume && pan == 0 {
		return
	}

	left, right := vol, vol
	if channels == 2 {
		if pan > 0 {
			left = vol * (MaxPan - pan) / MaxPan
		} else if pan < 0 {
			right = vol * (MaxPan + pan) / MaxPan
		}
	}

	for i := 0; i+1 < len(p); i += 2 {
		g := left
		if channels == 2 && (i/2)%2 == 1 {
			g = right
		}
		v := int32(int16(binary.LittleEndian.Uint16(p[i:])))
		binary.LittleEndian.PutUint16(p[i:], uint16(int16(v*g/MaxVolume)))
	}
}

func (s *pcmStream) setVolume(v int) { s.volume.Store(int32(clampVolume(v))) }

func (s *pcmStream) setPan(p int) { s.pan.Store(int32(clampPan(p))) }
