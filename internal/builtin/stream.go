// SPDX-License-Identifier: MIT
package builtin

import (
	applog "audiohost/internal/log"
	"audiohost/internal/plugin"
	"audiohost/internal/transport"
	"audiohost/internal/transport/udp"
)

// FrameMessage is the JSON form of one visualization frame.
type FrameMessage struct {
	Type       string  `json:"type"`
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
	Spectrum   [][]int `json:"spectrum"`
	Waveform   [][]int `json:"waveform"`
}

// FrameStreamer sends every rendered frame through a transport. Spectrum
// values are 0..255 per bin; waveform values are signed -128..127.
type FrameStreamer struct {
	out transport.Transport
}

// NewFrameStreamer creates a streamer sending to out.
func NewFrameStreamer(out transport.Transport) *FrameStreamer {
	return &FrameStreamer{out: out}
}

func (f *FrameStreamer) Init() int { return 0 }

func (f *FrameStreamer) Render(data *plugin.VisData) int {
	if data.SampleRate <= 0 {
		return 0
	}
	channels := min(max(data.Channels, 1), plugin.MaxChannels)
	msg := FrameMessage{
		Type:       "frame",
		SampleRate: data.SampleRate,
		Channels:   channels,
		Spectrum:   make([][]int, channels),
		Waveform:   make([][]int, channels),
	}
	// The transport sends asynchronously, so the message owns its slices.
	for ch := range channels {
		bins := make([]int, plugin.FrameSize/2)
		for k := range bins {
			bins[k] = int(data.Spectrum[ch][2*k])
		}
		wave := make([]int, plugin.FrameSize)
		for i, s := range data.Waveform[ch] {
			wave[i] = int(int8(s))
		}
		msg.Spectrum[ch] = bins
		msg.Waveform[ch] = wave
	}
	if err := f.out.Send(msg); err != nil {
		applog.Debugf("FrameStreamer: %v", err)
	}
	return 0
}

func (f *FrameStreamer) Config() {
	applog.Infof("FrameStreamer: sending %T", f.out)
}

func (f *FrameStreamer) Quit() {}

// SpectrumPublisher sends the left spectrum as UDP packets, one value per
// bin scaled to [0, 1].
type SpectrumPublisher struct {
	pub  *udp.Publisher
	bins [plugin.FrameSize / 2]byte
}

// NewSpectrumPublisher wraps pub.
func NewSpectrumPublisher(pub *udp.Publisher) *SpectrumPublisher {
	return &SpectrumPublisher{pub: pub}
}

func (s *SpectrumPublisher) Init() int { return 0 }

func (s *SpectrumPublisher) Render(data *plugin.VisData) int {
	if data.SampleRate <= 0 {
		return 0
	}
	for k := range s.bins {
		s.bins[k] = data.Spectrum[0][2*k]
	}
	if err := s.pub.PublishBytes(s.bins[:]); err != nil {
		applog.Debugf("SpectrumPublisher: %v", err)
	}
	return 0
}

func (s *SpectrumPublisher) Config() {
	applog.Infof("SpectrumPublisher: sequence %d", s.pub.Sequence())
}

func (s *SpectrumPublisher) Quit() {}
