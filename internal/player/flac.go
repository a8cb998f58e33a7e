// SPDX-License-Identifier: MIT
package player

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/tphakala/flac"

	"audiohost/internal/output"
)

// flacSource decodes FLAC files. Decoded frames are larger than a block, so
// the remainder of the last frame is kept between reads.
type flacSource struct {
	path    string
	file    *os.File
	decoder *flac.Decoder
	format  output.Format
	bits    int
	length  int64
	pending []byte
}

// OpenFLAC opens a FLAC file.
func OpenFLAC(path string) (Source, error) {
	s := &flacSource{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	if s.format.SampleRate > 0 {
		s.length = int64(s.decoder.TotalSamples) * 1000 / int64(s.format.SampleRate)
	}
	return s, nil
}

func (s *flacSource) open() error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	dec, err := flac.NewDecoder(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to read FLAC header of %s: %w", s.path, err)
	}
	switch dec.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		file.Close()
		return fmt.Errorf("%s: unsupported bit depth %d", s.path, dec.BitsPerSample)
	}

	s.file = file
	s.decoder = dec
	s.bits = dec.BitsPerSample
	s.pending = nil
	s.format = output.Format{
		SampleRate:    dec.SampleRate,
		Channels:      dec.NChannels,
		BitsPerSample: 16,
	}
	if err := s.format.Validate(); err != nil {
		file.Close()
		return fmt.Errorf("%s: %w", s.path, err)
	}
	return nil
}

func (s *flacSource) Format() output.Format { return s.format }

func (s *flacSource) Length() int64 { return s.length }

func (s *flacSource) Read(pcm []byte) (int, error) {
	width := s.bits / 8
	inFrame := width * s.format.Channels
	outFrame := s.format.FrameBytes()

	written := 0
	for written+outFrame <= len(pcm) {
		if len(s.pending) < inFrame {
			frame, err := s.decoder.Next()
			if err == io.EOF {
				if written == 0 {
					return 0, io.EOF
				}
				return written, nil
			}
			if err != nil {
				return written, fmt.Errorf("failed to decode %s: %w", s.path, err)
			}
			s.pending = frame
			continue
		}

		for ch := 0; ch < s.format.Channels; ch++ {
			p := s.pending[ch*width:]
			var v int16
			switch width {
			case 1:
				v = int16(int8(p[0])) << 8
			case 2:
				v = int16(binary.LittleEndian.Uint16(p))
			case 3:
				v = int16(uint16(p[1]) | uint16(p[2])<<8)
			case 4:
				v = int16(binary.LittleEndian.Uint16(p[2:]))
			}
			binary.LittleEndian.PutUint16(pcm[written+ch*2:], uint16(v))
		}
		s.pending = s.pending[inFrame:]
		written += outFrame
	}
	return written, nil
}

// Seek reopens the file and decodes forward to ms.
func (s *flacSource) Seek(ms int64) error {
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

func (s *flacSource) Close() error {
	return s.file.Close()
}
