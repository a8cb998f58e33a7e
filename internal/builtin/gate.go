// SPDX-License-Identifier: MIT
package builtin

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	applog "audiohost/internal/log"
)

// Gate silences 16-bit blocks whose peak amplitude stays at or below a
// threshold. Other sample widths pass through.
type Gate struct {
	threshold atomic.Int32 // absolute amplitude, 0..MaxInt16
}

// NewGate creates a gate with threshold in 0..1 of full scale.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	threshold = min(max(threshold, 0), 1)
	g.threshold.Store(int32(threshold * math.MaxInt16))
}

// Threshold returns the current threshold in the range 0.0-1.0.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold.Load()) / math.MaxInt16
}

func (g *Gate) Init() int { return 0 }

func (g *Gate) ModifySamples(pcm []byte, samples, bitsPerSample, channels, sampleRate int) int {
	if bitsPerSample != 16 {
		return samples
	}
	block := pcm[:samples*channels*2]
	if peak16(block) <= g.threshold.Load() {
		clear(block)
	}
	return samples
}

// peak16 returns the largest absolute value of little-endian 16-bit samples.
func peak16(pcm []byte) int32 {
	var maxAmplitude int32
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int32(int16(binary.LittleEndian.Uint16(pcm[i:])))
		// Get absolute value without branching.
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask

		// Update max using math instead of branching.
		diff := amplitude - maxAmplitude
		maxAmplitude += diff &^ (diff >> 31)
	}
	return maxAmplitude
}

func (g *Gate) Config() {
	applog.WithModule("gate").Infof("threshold %.4f", g.Threshold())
}

func (g *Gate) Quit() {}
