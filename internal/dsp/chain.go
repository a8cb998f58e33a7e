// SPDX-License-Identifier: MIT

// Package dsp runs the ordered effect chain applied to every decoded block.
package dsp

import (
	applog "audiohost/internal/log"
	"audiohost/internal/metrics"
	"audiohost/internal/plugin"
	"audiohost/internal/registry"
)

// Chain is the ordered set of active effect modules. Process may run on the
// decode goroutine while Start and Stop are called from the control side.
type Chain struct {
	active  registry.Registry[*plugin.DSPModule]
	metrics *metrics.Metrics
}

// NewChain creates an empty chain. m may be nil.
func NewChain(m *metrics.Metrics) *Chain {
	return &Chain{metrics: m}
}

// Start initializes m and inserts it at pos, clamped to the chain length.
// It fails if m cannot process, is already active, is still being stopped,
// or its Init fails.
func (c *Chain) Start(m *plugin.DSPModule, pos int) bool {
	if m == nil || !m.CanProcess() {
		c.metrics.ModuleStart("dsp", "rejected")
		return false
	}
	if !m.Claim() {
		c.metrics.ModuleStart("dsp", "rejected")
		return false
	}
	if rc := m.Effect().Init(); rc != 0 {
		m.Unclaim()
		applog.WithModule(m.Name()).Warnf("DSP: init failed with code %d", rc)
		c.metrics.ModuleStart("dsp", "init_failed")
		return false
	}
	if !c.active.Insert(m, pos) {
		m.Effect().Quit()
		m.Unclaim()
		c.metrics.ModuleStart("dsp", "rejected")
		return false
	}
	c.metrics.ModuleStart("dsp", "ok")
	c.metrics.SetActiveModules("dsp", c.active.Len())
	applog.WithModule(m.Name()).Infof("DSP: started at slot %d", m.Index())
	return true
}

// Stop removes m from the chain, waits for any Process call still using it
// and then calls its Quit. m cannot be started again until Quit returned.
func (c *Chain) Stop(m *plugin.DSPModule) bool {
	if m == nil || !c.active.Remove(m) {
		return false
	}
	m.WaitIdle()
	m.Effect().Quit()
	m.Unclaim()
	c.metrics.SetActiveModules("dsp", c.active.Len())
	applog.WithModule(m.Name()).Infof("DSP: stopped")
	return true
}

// Process feeds samples frames of interleaved PCM through every active
// module in slot order and returns the resulting frame count. pcm must have
// room for twice the input since modules may expand the block.
func (c *Chain) Process(pcm []byte, samples, bitsPerSample, channels, sampleRate int) int {
	mods := c.active.SnapshotFunc((*plugin.DSPModule).Hold)
	if len(mods) == 0 {
		return samples
	}

	for _, m := range mods {
		n := m.Effect().ModifySamples(pcm, samples, bitsPerSample, channels, sampleRate)
		m.Release()
		c.metrics.DSPModuleCalled(m.Name())
		if n <= 0 {
			applog.WithModule(m.Name()).Debugf("DSP: module returned %d frames, keeping %d", n, samples)
			continue
		}
		samples = n
	}
	c.metrics.DSPProcessed()
	return samples
}

// Modules returns the active modules in call order.
func (c *Chain) Modules() []*plugin.DSPModule {
	return c.active.Snapshot()
}

// Len returns the number of active modules.
func (c *Chain) Len() int {
	return c.active.Len()
}

// StopAll stops every active module, last slot first.
func (c *Chain) StopAll() {
	mods := c.active.Snapshot()
	for i := len(mods) - 1; i >= 0; i-- {
		c.Stop(mods[i])
	}
}
