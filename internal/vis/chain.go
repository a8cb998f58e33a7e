// SPDX-License-Identifier: MIT

/*
Package vis drives the active visualization modules.

Every started module gets its own worker goroutine locked to an OS thread,
since rendering surfaces are usually bound to the thread that created them.
The worker initializes the module, then polls: it pumps events, honours a
stop request by calling Quit, and once per render interval refreshes the
module's input from the sample cache and calls Render. Stop only raises a
flag; the worker removes the module from the registry itself on exit.
*/
package vis

import (
	"context"
	"runtime"
	"sync"
	"time"

	"audiohost/internal/cache"
	applog "audiohost/internal/log"
	"audiohost/internal/metrics"
	"audiohost/internal/plugin"
	"audiohost/internal/registry"
)

// DefaultPollInterval is how long a worker sleeps between loop iterations.
const DefaultPollInterval = time.Millisecond

// PlayState reports the playback state workers render against.
type PlayState interface {
	IsPlaying() bool
	SampleRate() int
	Channels() int
}

// Chain is the set of active visualization modules.
type Chain struct {
	active registry.Registry[*plugin.VisModule]
	cache  *cache.SampleCache
	state  PlayState

	// headroomMs is added to each module's latency when sizing the cache,
	// covering the gap between decoded and audible audio.
	headroomMs   int
	pollInterval time.Duration

	wg      sync.WaitGroup
	metrics *metrics.Metrics
}

// NewChain creates a chain reading from c. state and m may be nil.
func NewChain(c *cache.SampleCache, state PlayState, headroomMs int, m *metrics.Metrics) *Chain {
	return &Chain{
		cache:        c,
		state:        state,
		headroomMs:   headroomMs,
		pollInterval: DefaultPollInterval,
		metrics:      m,
	}
}

// SetPollInterval changes the worker sleep for modules started afterwards.
func (c *Chain) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

// Start launches a worker for m and blocks until the module's Init has run
// on it. It fails if m cannot render, already has a worker, or Init fails.
func (c *Chain) Start(m *plugin.VisModule) bool {
	if m == nil || !m.CanRender() || m.Active() {
		c.metrics.ModuleStart("vis", "rejected")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	if !m.BeginRun(cancel) {
		cancel()
		c.metrics.ModuleStart("vis", "rejected")
		return false
	}
	if c.cache != nil {
		c.cache.EnsureLatency(m.LatencyMs + c.headroomMs)
	}

	started := make(chan bool, 1)
	c.wg.Add(1)
	go c.run(ctx, cancel, m, started)

	ok := <-started
	if ok {
		c.metrics.ModuleStart("vis", "ok")
	} else {
		c.metrics.ModuleStart("vis", "init_failed")
	}
	return ok
}

// Stop asks m's worker to finish. It never blocks; the module leaves the
// registry when the worker exits, observable through m.Done().
func (c *Chain) Stop(m *plugin.VisModule) bool {
	if m == nil || !m.Running() {
		return false
	}
	m.RequestStop()
	return true
}

// StopAll asks every worker to finish.
func (c *Chain) StopAll() {
	for _, m := range c.active.Snapshot() {
		m.RequestStop()
	}
}

// Wait blocks until every worker started by the chain has exited.
func (c *Chain) Wait() {
	c.wg.Wait()
}

// NotifyData flags every active module that a new frame was published.
func (c *Chain) NotifyData() {
	for _, m := range c.active.Snapshot() {
		m.MarkNewData()
	}
}

// Modules returns the active modules.
func (c *Chain) Modules() []*plugin.VisModule {
	return c.active.Snapshot()
}

// Len returns the number of active modules.
func (c *Chain) Len() int {
	return c.active.Len()
}

func (c *Chain) run(ctx context.Context, cancel context.CancelFunc, m *plugin.VisModule, started chan<- bool) {
	defer c.wg.Done()
	defer cancel()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	logger := applog.WithModule(m.Name())
	v := m.Visualizer()

	if rc := v.Init(); rc != 0 {
		logger.Warnf("Vis: init failed with code %d", rc)
		m.EndRun()
		started <- false
		return
	}
	if !c.active.Append(m) {
		v.Quit()
		m.EndRun()
		started <- false
		return
	}
	c.metrics.SetActiveModules("vis", c.active.Len())
	started <- true
	logger.Infof("Vis: worker started (latency %d ms, delay %d ms)", m.LatencyMs, m.DelayMs)

	defer func() {
		c.active.Remove(m)
		c.metrics.SetActiveModules("vis", c.active.Len())
		m.EndRun()
		logger.Infof("Vis: worker exited")
	}()

	c.loop(ctx, m, v)
}

func (c *Chain) loop(ctx context.Context, m *plugin.VisModule, v plugin.Visualizer) {
	pumper, _ := v.(plugin.EventPumper)
	delay := time.Duration(m.DelayMs) * time.Millisecond
	data := new(plugin.VisData)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var last time.Time
	for {
		if pumper != nil {
			pumper.PumpEvents()
		}
		if m.StopRequested() {
			v.Quit()
			return
		}

		if now := time.Now(); last.IsZero() || now.Sub(last) >= delay {
			last = now
			if c.state != nil && c.state.IsPlaying() && m.TakeNewData() {
				c.fill(m, data)
			}
			rc := v.Render(data)
			c.metrics.VisRendered(m.Name())
			if rc != 0 {
				applog.WithModule(m.Name()).Debugf("Vis: render asked to stop (%d)", rc)
				m.RequestStop()
				continue
			}
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// fill copies the frame matching the module's latency into data.
func (c *Chain) fill(m *plugin.VisModule, data *plugin.VisData) {
	if c.state != nil {
		data.SampleRate = c.state.SampleRate()
		data.Channels = c.state.Channels()
	}
	if c.cache == nil {
		return
	}
	offset := c.cache.LatencyToOffset(m.LatencyMs)
	for ch := range min(m.SpectrumChannels, plugin.MaxChannels) {
		c.cache.Get(cache.Spectrum, ch, offset, data.Spectrum[ch][:])
	}
	for ch := range min(m.WaveformChannels, plugin.MaxChannels) {
		c.cache.Get(cache.Waveform, ch, offset, data.Waveform[ch][:])
	}
}
