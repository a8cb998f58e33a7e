// SPDX-License-Identifier: MIT
package output

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "audiohost/internal/log"
)

// wavCanWrite is the block size a WavSink always accepts; disk writes do not
// pace playback.
const wavCanWrite = 1 << 20

// WavSink records the output stream to a WAV file.
type WavSink struct {
	path string

	mu        sync.Mutex
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *audio.IntBuffer
	format    Format
	baseMs    int64
	written   int64
	paused    bool
}

var _ Sink = (*WavSink)(nil)

// NewWavSink creates a sink that writes to path on Open.
func NewWavSink(path string) *WavSink {
	return &WavSink{path: path}
}

func (w *WavSink) Name() string { return "wav" }

// Path returns the output file path.
func (w *WavSink) Path() string { return w.path }

func (w *WavSink) Open(f Format) (int, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	if f.BitsPerSample != 16 {
		return 0, fmt.Errorf("unsupported sample width %d bit, need 16", f.BitsPerSample)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return 0, fmt.Errorf("wav sink already recording to %s", w.path)
	}

	file, err := os.Create(w.path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", w.path, err)
	}
	w.file = file
	w.encoder = wav.NewEncoder(file, f.SampleRate, f.BitsPerSample, f.Channels, 1)
	w.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: f.Channels,
			SampleRate:  f.SampleRate,
		},
		SourceBitDepth: f.BitsPerSample,
		Data:           make([]int, 0, 4096),
	}
	w.format = f
	w.baseMs = 0
	w.written = 0
	w.paused = false

	applog.Infof("WAV: recording to %s (%s)", w.path, f)
	return 0, nil
}

func (w *WavSink) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}

	var encErr error
	if w.encoder != nil {
		encErr = w.encoder.Close()
		w.encoder = nil
	}
	fileErr := w.file.Close()
	w.file = nil

	if encErr != nil {
		return fmt.Errorf("failed to finalize %s: %w", w.path, encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, fileErr)
	}
	return nil
}

func (w *WavSink) Write(pcm []byte) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.encoder == nil {
		return 1
	}
	if w.paused {
		return 0
	}

	n := len(pcm) / 2
	if cap(w.sampleBuf.Data) < n {
		w.sampleBuf.Data = make([]int, n)
	}
	w.sampleBuf.Data = w.sampleBuf.Data[:n]
	for i := range n {
		w.sampleBuf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	if err := w.encoder.Write(w.sampleBuf); err != nil {
		applog.Errorf("Error writing to WAV file: %v", err)
		return 1
	}
	w.written += int64(n * 2)
	return 0
}

func (w *WavSink) CanWrite() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.encoder == nil {
		return 0
	}
	return wavCanWrite
}

func (w *WavSink) IsPlaying() bool { return false }

func (w *WavSink) Pause(p bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.paused
	w.paused = p
	return prev
}

func (w *WavSink) SetVolume(int) {}

func (w *WavSink) SetPan(int) {}

// Flush re-seats the clock. Already encoded audio stays in the file.
func (w *WavSink) Flush(ms int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.baseMs = ms
	w.written = 0
}

func (w *WavSink) OutputTime() int64 { return w.WrittenTime() }

func (w *WavSink) WrittenTime() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.baseMs + w.format.BytesToMs(w.written)
}
