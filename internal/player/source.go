// SPDX-License-Identifier: MIT
package player

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"audiohost/internal/output"
)

// ErrNoSource is returned when no decoder handles a file.
var ErrNoSource = errors.New("no decoder for file")

// Source decodes a stream into interleaved little-endian 16-bit PCM.
type Source interface {
	// Format describes the decoded stream. BitsPerSample is always 16.
	Format() output.Format
	// Read fills pcm with whole frames and returns the byte count. It
	// returns io.EOF once the stream is exhausted.
	Read(pcm []byte) (int, error)
	// Seek moves to ms from the start of the stream.
	Seek(ms int64) error
	// Length returns the stream duration in ms, or 0 if unknown.
	Length() int64
	Close() error
}

// Open picks a decoder by file extension.
func Open(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return OpenWAV(path)
	case ".flac":
		return OpenFLAC(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSource, path)
}

// to16 narrows a signed sample of the given width to 16 bits.
func to16(v int, bits int) int16 {
	switch {
	case bits == 16:
		return int16(v)
	case bits > 16:
		return int16(v >> (bits - 16))
	default:
		return int16(v << (16 - bits))
	}
}

// skipFrames discards n frames from read, used to seek sources that can only
// decode forward.
func skipFrames(read func([]byte) (int, error), n int64, frameBytes int) error {
	scratch := make([]byte, 4096*frameBytes)
	remaining := n * int64(frameBytes)
	for remaining > 0 {
		chunk := scratch
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		got, err := read(chunk)
		remaining -= int64(got)
		if err != nil {
			return err
		}
		if got == 0 {
			break
		}
	}
	return nil
}
