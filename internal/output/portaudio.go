// SPDX-License-Identifier: MIT
package output

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"

	"github.com/gordonklaus/portaudio"

	applog "audiohost/internal/log"
)

// DefaultDeviceID selects the system default output device.
const DefaultDeviceID = -1

// PortAudioSink plays PCM on a PortAudio output device. Callers must
// Initialize PortAudio before opening it.
type PortAudioSink struct {
	*pcmStream

	deviceID        int
	framesPerBuffer int
	lowLatency      bool

	mu      sync.Mutex // guards stream
	stream  *portaudio.Stream
	scratch []byte
}

var _ Sink = (*PortAudioSink)(nil)

// NewPortAudioSink creates a sink for deviceID, or the default output device
// when deviceID is DefaultDeviceID.
func NewPortAudioSink(deviceID, framesPerBuffer int, lowLatency bool) *PortAudioSink {
	return &PortAudioSink{
		pcmStream:       newPCMStream(),
		deviceID:        deviceID,
		framesPerBuffer: framesPerBuffer,
		lowLatency:      lowLatency,
	}
}

func (s *PortAudioSink) Name() string { return "portaudio" }

func (s *PortAudioSink) Open(f Format) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return 0, fmt.Errorf("portaudio sink already open")
	}
	if err := s.reset(f); err != nil {
		return 0, err
	}

	device, err := OutputDevice(s.deviceID)
	if err != nil {
		return 0, err
	}
	latency := device.DefaultHighOutputLatency
	if s.lowLatency {
		latency = device.DefaultLowOutputLatency
	}

	s.scratch = make([]byte, s.framesPerBuffer*f.FrameBytes())
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: f.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(f.SampleRate),
		FramesPerBuffer: s.framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, s.processOutputStream)
	if err != nil {
		return 0, fmt.Errorf("failed to open output stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return 0, fmt.Errorf("failed to start output stream: %w", err)
	}
	s.stream = stream

	latencyMs := int(stream.Info().OutputLatency.Milliseconds())
	applog.Infof("PortAudio: opened %q (%s, latency %d ms)", device.Name, f, latencyMs)
	return latencyMs, nil
}

func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to stop output stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close output stream: %w", err)
	}
	return nil
}

// processOutputStream is the device callback. It only touches pre-allocated
// buffers.
func (s *PortAudioSink) processOutputStream(out []int16) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	need := len(out) * 2
	if need > len(s.scratch) {
		// Hosts may ask for a larger block than requested at open.
		s.scratch = make([]byte, need)
	}
	buf := s.scratch[:need]
	s.pull(buf)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
}

func (s *PortAudioSink) Write(pcm []byte) int { return s.write(pcm) }
func (s *PortAudioSink) CanWrite() int        { return s.canWrite() }
func (s *PortAudioSink) IsPlaying() bool      { return s.isPlaying() }
func (s *PortAudioSink) Pause(p bool) bool    { return s.pause(p) }
func (s *PortAudioSink) SetVolume(v int)      { s.setVolume(v) }
func (s *PortAudioSink) SetPan(p int)         { s.setPan(p) }
func (s *PortAudioSink) Flush(ms int64)       { s.flush(ms) }
func (s *PortAudioSink) OutputTime() int64    { return s.outputTime() }
func (s *PortAudioSink) WrittenTime() int64   { return s.writtenTime() }
