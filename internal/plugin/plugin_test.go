// SPDX-License-Identifier: MIT
package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiohost/internal/registry"
)

func TestEffectFuncsDefaults(t *testing.T) {
	f := &EffectFuncs{}
	assert.Equal(t, 0, f.Init())
	assert.Equal(t, 42, f.ModifySamples(nil, 42, 16, 2, 44100))
	assert.False(t, f.CanProcess())
	f.Config()
	f.Quit()

	m := NewDSPModule("empty", f)
	assert.False(t, m.CanProcess())

	f.ModifyFunc = func(_ []byte, samples, _, _, _ int) int { return samples / 2 }
	assert.True(t, m.CanProcess())
	assert.Equal(t, 21, m.Effect().ModifySamples(nil, 42, 16, 2, 44100))
}

func TestVisualizerFuncsDefaults(t *testing.T) {
	f := &VisualizerFuncs{}
	assert.Equal(t, 0, f.Render(&VisData{}))
	assert.False(t, NewVisModule("v", f, 0, 0).CanRender())

	f.RenderFunc = func(*VisData) int { return 1 }
	m := NewVisModule("v", f, 25, 10)
	assert.True(t, m.CanRender())
	assert.Equal(t, 25, m.LatencyMs)
	assert.Equal(t, MaxChannels, m.SpectrumChannels)
}

func TestNilCapability(t *testing.T) {
	assert.False(t, NewDSPModule("nil", nil).CanProcess())
	assert.False(t, NewVisModule("nil", nil, 0, 0).CanRender())
}

func TestUnloadRejectsActiveModule(t *testing.T) {
	var reg registry.Registry[*DSPModule]

	unloaded := false
	p := New("test", "builtin:test")
	p.OnUnload(func() { unloaded = true })
	m := p.AddDSP(NewDSPModule("amp", &EffectFuncs{}))
	assert.Same(t, p, m.Plugin())

	require.True(t, reg.Append(m))
	err := p.Unload()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModuleActive))
	assert.False(t, unloaded)

	require.True(t, reg.Remove(m))
	require.NoError(t, p.Unload())
	assert.True(t, unloaded)
	assert.True(t, p.Unloaded())
	assert.ErrorIs(t, p.Unload(), ErrUnloaded)
}

func TestUnloadRejectsRunningWorker(t *testing.T) {
	p := New("test", "")
	v := p.AddVis(NewVisModule("bars", &VisualizerFuncs{}, 0, 0))

	require.True(t, v.BeginRun(nil))
	assert.ErrorIs(t, p.Unload(), ErrModuleActive)

	v.EndRun()
	<-v.Done()
	assert.NoError(t, p.Unload())
}

func TestVisModuleRunLifecycle(t *testing.T) {
	v := NewVisModule("v", &VisualizerFuncs{}, 0, 0)
	assert.Nil(t, v.Done())

	cancelled := false
	require.True(t, v.BeginRun(func() { cancelled = true }))
	assert.False(t, v.BeginRun(nil), "second worker must be refused")
	assert.True(t, v.Running())

	v.MarkNewData()
	assert.True(t, v.TakeNewData())
	assert.False(t, v.TakeNewData())

	v.RequestStop()
	assert.True(t, v.StopRequested())
	assert.True(t, cancelled)

	done := v.Done()
	v.EndRun()
	<-done
	assert.False(t, v.Running())

	require.True(t, v.BeginRun(nil))
	assert.False(t, v.StopRequested())
	v.EndRun()
}

func TestStaticLoader(t *testing.T) {
	l := NewStaticLoader()
	l.Register("builtin:a", func() *Plugin { return New("a", "builtin:a") })

	p, err := l.Load("builtin:a")
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name())
	assert.Equal(t, []string{"builtin:a"}, l.Paths())

	_, err = l.Load("builtin:missing")
	assert.Error(t, err)
}
