// SPDX-License-Identifier: MIT

// Package builtin provides the modules compiled into the host.
package builtin

import (
	"audiohost/internal/plugin"
	"audiohost/internal/transport"
	"audiohost/internal/transport/udp"
)

// Plugin paths served by the static loader.
const (
	EffectsPath     = "builtin:effects"
	VisualizersPath = "builtin:visualizers"
)

// Module names.
const (
	AmpName       = "amp"
	SwapName      = "swap"
	GateName      = "gate"
	ConsoleName   = "console"
	BeatName      = "beat"
	WebSocketName = "websocket"
	UDPName       = "udp"
)

// Deps are the outputs the visualizers send to. Console must be set;
// modules whose output is nil are left out of the plugin.
type Deps struct {
	Gain          float64
	GateThreshold float64
	Console       transport.Transport
	WebSocket     transport.Transport
	UDP           *udp.Publisher
}

// Register adds the builtin plugins to l.
func Register(l *plugin.StaticLoader, deps Deps) {
	if deps.Console == nil {
		deps.Console = transport.NewLoggingTransport(ConsoleName)
	}
	if deps.Gain == 0 {
		deps.Gain = 1
	}
	if deps.GateThreshold == 0 {
		deps.GateThreshold = DefaultGateThreshold
	}
	l.Register(EffectsPath, func() *plugin.Plugin { return Effects(deps) })
	l.Register(VisualizersPath, func() *plugin.Plugin { return Visualizers(deps) })
}

// DefaultGateThreshold is about 0.1% of full scale.
const DefaultGateThreshold = 0.001

// Effects builds the DSP plugin.
func Effects(deps Deps) *plugin.Plugin {
	p := plugin.New("Builtin effects", EffectsPath)
	p.AddDSP(plugin.NewDSPModule(AmpName, NewAmp(deps.Gain)))
	p.AddDSP(plugin.NewDSPModule(SwapName, Swap{}))
	p.AddDSP(plugin.NewDSPModule(GateName, NewGate(deps.GateThreshold)))
	return p
}

// Visualizers builds the visualization plugin.
func Visualizers(deps Deps) *plugin.Plugin {
	p := plugin.New("Builtin visualizers", VisualizersPath)

	console := p.AddVis(plugin.NewVisModule(ConsoleName, NewBands(deps.Console, nil), 0, 500))
	console.WaveformChannels = plugin.MaxChannels
	console.SpectrumChannels = plugin.MaxChannels

	beatOut := deps.WebSocket
	if beatOut == nil {
		beatOut = deps.Console
	}
	beat := p.AddVis(plugin.NewVisModule(BeatName, NewBeatDetector(beatOut, 0.3, 1.5), 0, 23))
	beat.SpectrumChannels = 0
	beat.WaveformChannels = 1

	if deps.WebSocket != nil {
		// Browser clients render about one frame behind.
		p.AddVis(plugin.NewVisModule(WebSocketName, NewFrameStreamer(deps.WebSocket), 33, 33))
	}
	if deps.UDP != nil {
		m := p.AddVis(plugin.NewVisModule(UDPName, NewSpectrumPublisher(deps.UDP), 0, 16))
		m.SpectrumChannels = 1
		m.WaveformChannels = 0
	}
	return p
}
