// SPDX-License-Identifier: MIT

// Package spectrum prepares the per-block waveform and spectrum frames
// published to the sample cache.
package spectrum

import "encoding/binary"

// Extract copies one channel of little-endian interleaved PCM into dst as
// 16-bit samples and returns the number of samples written. 8-bit input is
// unsigned; wider input keeps its most significant 16 bits. Unsupported
// widths return 0.
func Extract(pcm []byte, bitsPerSample, channels, channel int, dst []int16) int {
	if channels <= 0 || channel < 0 || channel >= channels {
		return 0
	}
	width := bitsPerSample / 8
	if width < 1 || width > 4 || bitsPerSample%8 != 0 {
		return 0
	}
	stride := width * channels
	frames := min(len(pcm)/stride, len(dst))

	off := channel * width
	for i := range frames {
		p := pcm[i*stride+off:]
		switch width {
		case 1:
			dst[i] = int16(int(p[0])-128) << 8
		case 2:
			dst[i] = int16(binary.LittleEndian.Uint16(p))
		case 3:
			dst[i] = int16(uint16(p[1]) | uint16(p[2])<<8)
		case 4:
			dst[i] = int16(binary.LittleEndian.Uint16(p[2:]))
		}
	}
	return frames
}
