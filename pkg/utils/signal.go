// Package utils holds PCM test-signal generators shared by package tests.
package utils

import (
	"encoding/binary"
	"math"
)

// GenerateSineWave returns size interleaved 16-bit frames of a sine at
// frequency Hz and the given amplitude (0..1), duplicated across channels.
func GenerateSineWave(size, channels int, sampleRate, frequency, amplitude float64) []int16 {
	buffer := make([]int16, size*channels)
	for i := range size {
		t := float64(i) / sampleRate
		v := int16(math.Sin(2*math.Pi*frequency*t) * math.MaxInt16 * amplitude)
		for ch := range channels {
			buffer[i*channels+ch] = v
		}
	}
	return buffer
}

// GenerateComplexWave returns a mono 440Hz fundamental plus two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = int16(signal * math.MaxInt16 * 0.9)
	}
	return buffer
}

// GenerateDC returns size interleaved frames holding a constant value.
func GenerateDC(size, channels int, value int16) []int16 {
	buffer := make([]int16, size*channels)
	for i := range buffer {
		buffer[i] = value
	}
	return buffer
}

// PCM16Bytes packs samples as little-endian 16-bit PCM.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// FindPeakBin returns the index of the largest value in data[startBin:endBin+1].
func FindPeakBin(data []byte, startBin, endBin int) int {
	if len(data) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(data) {
		endBin = len(data) - 1
	}

	peakBin := startBin
	for bin := startBin + 1; bin <= endBin; bin++ {
		if data[bin] > data[peakBin] {
			peakBin = bin
		}
	}
	return peakBin
}
