// SPDX-License-Identifier: MIT
package builtin

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	applog "audiohost/internal/log"
)

// unityGain is 1.0 in the amp's Q12 fixed-point format.
const unityGain = 1 << 12

// Amp scales every sample by a fixed-point gain.
type Amp struct {
	gain atomic.Int32 // Q12
}

// NewAmp creates an amp with a linear gain factor.
func NewAmp(gain float64) *Amp {
	a := &Amp{}
	a.SetGain(gain)
	return a
}

// SetGain changes the linear gain. Negative values are treated as zero.
func (a *Amp) SetGain(gain float64) {
	q := math.Round(max(gain, 0) * unityGain)
	a.gain.Store(int32(min(q, math.MaxInt32)))
}

// Gain returns the current linear gain.
func (a *Amp) Gain() float64 { return float64(a.gain.Load()) / unityGain }

func (a *Amp) Init() int { return 0 }

func (a *Amp) ModifySamples(pcm []byte, samples, bitsPerSample, channels, sampleRate int) int {
	g := int64(a.gain.Load())
	if g == unityGain {
		return samples
	}
	n := samples * channels
	switch bitsPerSample {
	case 8:
		for i := range pcm[:n] {
			v := (int64(pcm[i]) - 128) * g >> 12
			pcm[i] = byte(clamp(v, -128, 127) + 128)
		}
	case 16:
		for i := 0; i < n; i++ {
			p := pcm[i*2:]
			v := int64(int16(binary.LittleEndian.Uint16(p))) * g >> 12
			binary.LittleEndian.PutUint16(p, uint16(clamp(v, math.MinInt16, math.MaxInt16)))
		}
	case 24:
		for i := 0; i < n; i++ {
			p := pcm[i*3:]
			v := int64(int32(uint32(p[0])<<8|uint32(p[1])<<16|uint32(p[2])<<24)>>8) * g >> 12
			v = clamp(v, -1<<23, 1<<23-1)
			p[0], p[1], p[2] = byte(v), byte(v>>8), byte(v>>16)
		}
	case 32:
		for i := 0; i < n; i++ {
			p := pcm[i*4:]
			v := int64(int32(binary.LittleEndian.Uint32(p))) * g >> 12
			binary.LittleEndian.PutUint32(p, uint32(clamp(v, math.MinInt32, math.MaxInt32)))
		}
	}
	return samples
}

func (a *Amp) Config() {
	applog.WithModule("amp").Infof("gain %.3f", a.Gain())
}

func (a *Amp) Quit() {}

func clamp(v, lo, hi int64) int64 {
	return min(max(v, lo), hi)
}

// Swap exchanges the left and right channels of stereo audio.
type Swap struct{}

func (Swap) Init() int { return 0 }

func (Swap) ModifySamples(pcm []byte, samples, bitsPerSample, channels, sampleRate int) int {
	if channels != 2 {
		return samples
	}
	width := bitsPerSample / 8
	frame := width * 2
	for i := 0; i < samples; i++ {
		f := pcm[i*frame : (i+1)*frame]
		for b := 0; b < width; b++ {
			f[b], f[width+b] = f[width+b], f[b]
		}
	}
	return samples
}

func (Swap) Config() {
	applog.WithModule("swap").Info("no options")
}

func (Swap) Quit() {}
