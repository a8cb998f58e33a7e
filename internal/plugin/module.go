// SPDX-License-Identifier: MIT
package plugin

import (
	"sync"
	"sync/atomic"

	"audiohost/internal/registry"
)

// FrameSize is the number of samples per channel in one visualization frame.
const FrameSize = 576

// MaxChannels is the number of channels a visualization frame carries.
const MaxChannels = 2

// Effect is the capability set of a DSP module.
type Effect interface {
	// Init prepares the module. Non-zero means failure.
	Init() int
	// ModifySamples processes samples frames of interleaved PCM in place and
	// returns the new frame count. pcm has room for twice the input.
	ModifySamples(pcm []byte, samples, bitsPerSample, channels, sampleRate int) int
	// Config shows the module's own configuration surface.
	Config()
	// Quit releases the module's resources.
	Quit()
}

// Visualizer is the capability set of a visualization module.
type Visualizer interface {
	// Init prepares the module on its worker thread. Non-zero means failure.
	Init() int
	// Render draws one frame. Non-zero asks the host to stop the module.
	Render(data *VisData) int
	Config()
	Quit()
}

// EventPumper is implemented by visualizers that own a rendering surface
// whose events must be pumped from the worker thread.
type EventPumper interface {
	PumpEvents()
}

// VisData is the input buffer a visualizer renders from. The worker
// refreshes it from the sample cache before calling Render.
type VisData struct {
	SampleRate int
	Channels   int
	Spectrum   [MaxChannels][FrameSize]byte
	Waveform   [MaxChannels][FrameSize]byte
}

// DSPModule is one effect exported by a plugin.
type DSPModule struct {
	registry.Slot

	name   string
	plugin *Plugin
	effect Effect

	// inflight counts process calls currently holding this module.
	inflight sync.WaitGroup
	// claimed is set from the start of Start until Stop has called Quit.
	claimed atomic.Bool
}

// NewDSPModule wraps effect. The module belongs to no plugin until added.
func NewDSPModule(name string, effect Effect) *DSPModule {
	return &DSPModule{name: name, effect: effect}
}

// Name returns the human-readable module name.
func (m *DSPModule) Name() string { return m.name }

// Plugin returns the owning plugin.
func (m *DSPModule) Plugin() *Plugin { return m.plugin }

// Effect returns the wrapped capability.
func (m *DSPModule) Effect() Effect { return m.effect }

// CanProcess reports whether the module has a process entry point.
func (m *DSPModule) CanProcess() bool {
	if m.effect == nil {
		return false
	}
	if p, ok := m.effect.(interface{ CanProcess() bool }); ok {
		return p.CanProcess()
	}
	return true
}

// Hold pins the module for one process call. Must be paired with Release.
func (m *DSPModule) Hold() { m.inflight.Add(1) }

// Release drops a pin taken by Hold.
func (m *DSPModule) Release() { m.inflight.Done() }

// WaitIdle blocks until no process call holds the module.
func (m *DSPModule) WaitIdle() { m.inflight.Wait() }

// Claim reserves the module for a start. It fails while the module is
// running or a stop is still draining it.
func (m *DSPModule) Claim() bool { return m.claimed.CompareAndSwap(false, true) }

// Unclaim releases a reservation taken by Claim.
func (m *DSPModule) Unclaim() { m.claimed.Store(false) }

// Claimed reports whether the module is started or being stopped.
func (m *DSPModule) Claimed() bool { return m.claimed.Load() }

// VisModule is one visualizer exported by a plugin.
type VisModule struct {
	registry.Slot

	name   string
	plugin *Plugin
	vis    Visualizer

	// LatencyMs is the module's own rendering delay; the worker reads
	// cached audio this much further back.
	LatencyMs int
	// DelayMs is the minimum interval between two renders.
	DelayMs int
	// SpectrumChannels and WaveformChannels select how many channels
	// (0..2) of each kind are refreshed before a render.
	SpectrumChannels int
	WaveformChannels int

	newData atomic.Bool
	running atomic.Bool
	stop    atomic.Bool
	done    chan struct{}
	cancel  func()
	mu      sync.Mutex // guards done and cancel
}

// NewVisModule wraps vis with the given timing requirements.
func NewVisModule(name string, vis Visualizer, latencyMs, delayMs int) *VisModule {
	return &VisModule{
		name:             name,
		vis:              vis,
		LatencyMs:        latencyMs,
		DelayMs:          delayMs,
		SpectrumChannels: MaxChannels,
		WaveformChannels: MaxChannels,
	}
}

// Name returns the human-readable module name.
func (m *VisModule) Name() string { return m.name }

// Plugin returns the owning plugin.
func (m *VisModule) Plugin() *Plugin { return m.plugin }

// Visualizer returns the wrapped capability.
func (m *VisModule) Visualizer() Visualizer { return m.vis }

// CanRender reports whether the module has a render entry point.
func (m *VisModule) CanRender() bool {
	if m.vis == nil {
		return false
	}
	if r, ok := m.vis.(interface{ CanRender() bool }); ok {
		return r.CanRender()
	}
	return true
}

// MarkNewData flags that the cache holds a frame the module has not seen.
func (m *VisModule) MarkNewData() { m.newData.Store(true) }

// TakeNewData clears and returns the new-data flag.
func (m *VisModule) TakeNewData() bool { return m.newData.Swap(false) }

// Running reports whether a worker currently owns the module.
func (m *VisModule) Running() bool { return m.running.Load() }

// StopRequested reports whether the worker was asked to finish.
func (m *VisModule) StopRequested() bool { return m.stop.Load() }

// Done returns a channel closed when the current worker has exited and the
// module left the registry. It is nil if no worker was ever started.
func (m *VisModule) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// BeginRun marks the module as owned by a new worker. It fails if a worker
// is still running. cancel is invoked by RequestStop.
func (m *VisModule) BeginRun(cancel func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running.CompareAndSwap(false, true) {
		return false
	}
	m.stop.Store(false)
	m.newData.Store(false)
	m.done = make(chan struct{})
	m.cancel = cancel
	return true
}

// RequestStop raises the cooperative stop flag. It never blocks.
func (m *VisModule) RequestStop() {
	m.stop.Store(true)
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// EndRun marks the worker as finished and releases Done waiters.
func (m *VisModule) EndRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running.Store(false)
	m.cancel = nil
	if m.done != nil {
		close(m.done)
	}
}
