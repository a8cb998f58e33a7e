// SPDX-License-Identifier: MIT
package player

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"audiohost/internal/output"
)

// wavSource decodes PCM WAV files through go-audio.
type wavSource struct {
	path    string
	file    *os.File
	decoder *wav.Decoder
	format  output.Format
	bits    int
	length  int64
	buf     *audio.IntBuffer
}

// OpenWAV opens a PCM WAV file.
func OpenWAV(path string) (Source, error) {
	s := &wavSource{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	if d, err := s.decoder.Duration(); err == nil {
		s.length = d.Milliseconds()
	}
	return s, nil
}

func (s *wavSource) open() error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return fmt.Errorf("%s is not a valid WAV file", s.path)
	}
	if err := dec.FwdToPCM(); err != nil {
		file.Close()
		return fmt.Errorf("failed to locate PCM data in %s: %w", s.path, err)
	}

	s.file = file
	s.decoder = dec
	s.bits = int(dec.BitDepth)
	s.format = output.Format{
		SampleRate:    int(dec.SampleRate),
		Channels:      int(dec.NumChans),
		BitsPerSample: 16,
	}
	if err := s.format.Validate(); err != nil {
		file.Close()
		return fmt.Errorf("%s: %w", s.path, err)
	}
	if s.buf == nil {
		s.buf = &audio.IntBuffer{
			Format: &audio.Format{NumChannels: s.format.Channels, SampleRate: s.format.SampleRate},
			Data:   make([]int, 0),
		}
	}
	return nil
}

func (s *wavSource) Format() output.Format { return s.format }

func (s *wavSource) Length() int64 { return s.length }

func (s *wavSource) Read(pcm []byte) (int, error) {
	samples := len(pcm) / 2
	samples -= samples % s.format.Channels
	if samples == 0 {
		return 0, nil
	}
	if cap(s.buf.Data) < samples {
		s.buf.Data = make([]int, samples)
	}
	s.buf.Data = s.buf.Data[:samples]

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	n -= n % s.format.Channels
	for i, v := range s.buf.Data[:n] {
		if s.bits == 8 {
			// 8-bit WAV is unsigned.
			v -= 128
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(to16(v, s.bits)))
	}
	return n * 2, nil
}

// Seek reopens the file and decodes forward to ms.
func (s *wavSource) Seek(ms int64) error {
	if err := s.file.Close(); err != nil {
		return err
	}
	if err := s.open(); err != nil {
		return err
	}
	frames := ms * int64(s.format.SampleRate) / 1000
	err := skipFrames(s.Read, frames, s.format.FrameBytes())
	if err == io.EOF {
		return nil
	}
	return err
}

func (s *wavSource) Close() error {
	return s.file.Close()
}
