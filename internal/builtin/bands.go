// SPDX-License-Identifier: MIT
package builtin

import (
	"math"

	applog "audiohost/internal/log"
	"audiohost/internal/plugin"
	"audiohost/internal/transport"
)

// FrequencyBand is a named frequency range.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the audible range the usual way.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// BandSummary is one console message.
type BandSummary struct {
	Type    string             `json:"type"`
	Channel int                `json:"channel"`
	Peak    float64            `json:"peak"`
	Bands   map[string]float64 `json:"bands"`
}

// Bands summarizes each channel as a waveform peak plus average spectrum
// level per frequency band.
type Bands struct {
	out   transport.Transport
	bands []FrequencyBand
}

// NewBands creates a band summarizer sending to out.
func NewBands(out transport.Transport, bands []FrequencyBand) *Bands {
	if len(bands) == 0 {
		bands = DefaultBands
	}
	return &Bands{out: out, bands: bands}
}

func (b *Bands) Init() int {
	applog.Debugf("Bands: Initializing with %d bands", len(b.bands))
	return 0
}

func (b *Bands) Render(data *plugin.VisData) int {
	if data.SampleRate <= 0 {
		return 0
	}
	for ch := range min(max(data.Channels, 1), plugin.MaxChannels) {
		msg := b.summarize(data, ch)
		if err := b.out.Send(msg); err != nil {
			applog.Warnf("Bands: Error sending summary: %v", err)
		}
	}
	return 0
}

func (b *Bands) summarize(data *plugin.VisData, ch int) BandSummary {
	msg := BandSummary{Type: "bands", Channel: ch, Bands: make(map[string]float64, len(b.bands))}

	var peak int
	for _, s := range data.Waveform[ch] {
		v := int(int8(s))
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	msg.Peak = min(1, float64(peak)/127)

	sum := make([]float64, len(b.bands))
	count := make([]int, len(b.bands))
	binHz := float64(data.SampleRate) / plugin.FrameSize
	for k := 0; k < plugin.FrameSize/2; k++ {
		freq := float64(k) * binHz
		for i, band := range b.bands {
			if freq >= band.LowHz && freq < band.HighHz {
				sum[i] += float64(data.Spectrum[ch][2*k]) / 255
				count[i]++
				break
			}
		}
	}
	for i, band := range b.bands {
		if count[i] > 0 {
			msg.Bands[band.Name] = sum[i] / float64(count[i])
		} else {
			msg.Bands[band.Name] = 0
		}
	}
	return msg
}

func (b *Bands) Config() {
	for _, band := range b.bands {
		applog.Infof("Bands: %s %.0f-%.0f Hz", band.Name, band.LowHz, band.HighHz)
	}
}

func (b *Bands) Quit() {}

// BeatEvent is sent when a kick is detected.
type BeatEvent struct {
	Type   string  `json:"type"`
	Name   string  `json:"name"`
	Energy float64 `json:"energy"`
}

// BeatDetector flags sudden rises in waveform RMS energy.
type BeatDetector struct {
	out            transport.Transport
	threshold      float64
	minEnergyRatio float64
	lastEnergy     float64
}

// NewBeatDetector creates a detector. A beat fires when the RMS energy of
// the left waveform exceeds threshold and has grown by more than
// minEnergyRatio since the previous render.
func NewBeatDetector(out transport.Transport, threshold, minEnergyRatio float64) *BeatDetector {
	return &BeatDetector{out: out, threshold: threshold, minEnergyRatio: minEnergyRatio}
}

func (d *BeatDetector) Init() int {
	d.lastEnergy = 0
	applog.Debugf("BeatDetector: Initializing (Threshold: %.2f, MinRatio: %.2f)", d.threshold, d.minEnergyRatio)
	return 0
}

func (d *BeatDetector) Render(data *plugin.VisData) int {
	if data.SampleRate <= 0 {
		return 0
	}
	energy := rms(data.Waveform[0][:])
	if energy > d.threshold && (d.lastEnergy == 0 || energy/d.lastEnergy > d.minEnergyRatio) {
		if err := d.out.Send(BeatEvent{Type: "event", Name: "kick", Energy: energy}); err != nil {
			applog.Warnf("BeatDetector: Error sending kick event: %v", err)
		}
	}
	d.lastEnergy = energy
	return 0
}

func (d *BeatDetector) Config() {
	applog.Infof("BeatDetector: threshold %.2f, ratio %.2f", d.threshold, d.minEnergyRatio)
}

func (d *BeatDetector) Quit() {}

// rms returns the root mean square of signed 8-bit waveform bytes in [0, 1].
func rms(wave []byte) float64 {
	if len(wave) == 0 {
		return 0
	}
	var sumSquare float64
	for _, s := range wave {
		v := float64(int8(s)) / 128
		sumSquare += v * v
	}
	return math.Sqrt(sumSquare / float64(len(wave)))
}
