// SPDX-License-Identifier: MIT
package dsp

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiohost/internal/plugin"
)

// recorder appends its tag to a shared trace on every process call.
func recorder(name string, trace *[]string) *plugin.DSPModule {
	return plugin.NewDSPModule(name, &plugin.EffectFuncs{
		ModifyFunc: func(_ []byte, samples, _, _, _ int) int {
			*trace = append(*trace, name)
			return samples
		},
	})
}

func TestStartAtFrontTwiceReversesOrder(t *testing.T) {
	var trace []string
	c := NewChain(nil)
	a := recorder("a", &trace)
	b := recorder("b", &trace)

	require.True(t, c.Start(a, 0))
	require.True(t, c.Start(b, 0))

	mods := c.Modules()
	require.Len(t, mods, 2)
	assert.Same(t, b, mods[0])
	assert.Same(t, a, mods[1])
	assert.Equal(t, 0, b.Index())
	assert.Equal(t, 1, a.Index())

	c.Process(make([]byte, 16), 4, 16, 2, 44100)
	assert.Equal(t, []string{"b", "a"}, trace)
}

func TestTransformsComposeInOrder(t *testing.T) {
	c := NewChain(nil)
	add := plugin.NewDSPModule("add", &plugin.EffectFuncs{
		ModifyFunc: func(pcm []byte, samples, _, _, _ int) int {
			for i := range pcm[:samples] {
				pcm[i] += 1
			}
			return samples
		},
	})
	double := plugin.NewDSPModule("double", &plugin.EffectFuncs{
		ModifyFunc: func(pcm []byte, samples, _, _, _ int) int {
			for i := range pcm[:samples] {
				pcm[i] *= 2
			}
			return samples
		},
	})
	require.True(t, c.Start(add, 0))
	require.True(t, c.Start(double, 1))

	pcm := []byte{1, 2, 3, 4}
	c.Process(pcm, 4, 8, 1, 8000)
	assert.Equal(t, []byte{4, 6, 8, 10}, pcm)
}

func TestProcessSampleCount(t *testing.T) {
	c := NewChain(nil)
	assert.Equal(t, 100, c.Process(nil, 100, 16, 2, 44100), "empty chain passes through")

	halve := plugin.NewDSPModule("halve", &plugin.EffectFuncs{
		ModifyFunc: func(_ []byte, samples, _, _, _ int) int { return samples / 2 },
	})
	broken := plugin.NewDSPModule("broken", &plugin.EffectFuncs{
		ModifyFunc: func(_ []byte, _, _, _, _ int) int { return 0 },
	})
	grow := plugin.NewDSPModule("grow", &plugin.EffectFuncs{
		ModifyFunc: func(_ []byte, samples, _, _, _ int) int { return samples * 2 },
	})
	require.True(t, c.Start(halve, 0))
	require.True(t, c.Start(broken, 1))
	require.True(t, c.Start(grow, 2))

	// broken keeps the last good count.
	assert.Equal(t, 100, c.Process(make([]byte, 800), 100, 16, 2, 44100))
}

func TestStartPreconditions(t *testing.T) {
	c := NewChain(nil)

	assert.False(t, c.Start(nil, 0))
	assert.False(t, c.Start(plugin.NewDSPModule("noproc", &plugin.EffectFuncs{}), 0))

	quit := 0
	failing := plugin.NewDSPModule("failing", &plugin.EffectFuncs{
		InitFunc:   func() int { return 1 },
		ModifyFunc: func(_ []byte, s, _, _, _ int) int { return s },
		QuitFunc:   func() { quit++ },
	})
	assert.False(t, c.Start(failing, 0))
	assert.False(t, failing.Active())
	assert.Equal(t, 0, quit)

	var trace []string
	m := recorder("m", &trace)
	require.True(t, c.Start(m, 5), "position is clamped")
	assert.Equal(t, 0, m.Index())
	assert.False(t, c.Start(m, 0), "already active")
	assert.Equal(t, 1, c.Len())
}

func TestStopCallsQuitOnce(t *testing.T) {
	c := NewChain(nil)
	quit := 0
	m := plugin.NewDSPModule("m", &plugin.EffectFuncs{
		ModifyFunc: func(_ []byte, s, _, _, _ int) int { return s },
		QuitFunc:   func() { quit++ },
	})
	assert.False(t, c.Stop(m), "inactive")

	require.True(t, c.Start(m, 0))
	require.True(t, c.Stop(m))
	assert.False(t, c.Stop(m))
	assert.Equal(t, 1, quit)
	assert.Equal(t, -1, m.Index())

	// A stopped module can be started again.
	require.True(t, c.Start(m, 0))
	c.StopAll()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 2, quit)
}

func TestStopWaitsForInflightProcess(t *testing.T) {
	c := NewChain(nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var quitAfterReturn atomic.Bool
	var returned atomic.Bool
	var inits atomic.Int32

	m := plugin.NewDSPModule("slow", &plugin.EffectFuncs{
		InitFunc: func() int { inits.Add(1); return 0 },
		ModifyFunc: func(_ []byte, s, _, _, _ int) int {
			close(entered)
			<-release
			returned.Store(true)
			return s
		},
		QuitFunc: func() { quitAfterReturn.Store(returned.Load()) },
	})
	require.True(t, c.Start(m, 0))

	go c.Process(nil, 1, 16, 2, 44100)
	<-entered

	stopped := make(chan bool)
	go func() { stopped <- c.Stop(m) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a process call was still running")
	case <-time.After(20 * time.Millisecond):
	}
	assert.False(t, m.Active(), "module leaves the registry before quit")
	assert.True(t, m.Claimed())
	assert.False(t, c.Start(m, 0), "start refused while the stop drains")
	assert.Equal(t, int32(1), inits.Load())

	close(release)
	assert.True(t, <-stopped)
	assert.True(t, quitAfterReturn.Load(), "quit ran after the in-flight call returned")
	assert.False(t, m.Claimed())

	require.True(t, c.Start(m, 0), "start succeeds once quit returned")
	assert.Equal(t, int32(2), inits.Load())
	assert.True(t, c.Stop(m))
}

func TestConcurrentStartStopProcess(t *testing.T) {
	c := NewChain(nil)

	var inQuit atomic.Int32
	mods := make([]*plugin.DSPModule, 6)
	for i := range mods {
		var alive atomic.Bool
		mods[i] = plugin.NewDSPModule("m", &plugin.EffectFuncs{
			InitFunc: func() int { alive.Store(true); return 0 },
			ModifyFunc: func(_ []byte, s, _, _, _ int) int {
				if !alive.Load() {
					inQuit.Add(1)
				}
				return s
			},
			QuitFunc: func() { alive.Store(false) },
		})
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		pcm := make([]byte, 64)
		for {
			select {
			case <-done:
				return
			default:
				c.Process(pcm, 16, 16, 2, 44100)
			}
		}
	}()

	for round := 0; round < 200; round++ {
		m := mods[round%len(mods)]
		if m.Active() {
			c.Stop(m)
		} else {
			c.Start(m, round%3)
		}
	}
	close(done)
	wg.Wait()
	c.StopAll()

	assert.Equal(t, int32(0), inQuit.Load(), "process reached a module after quit")
	assert.Equal(t, 0, c.Len())
}

func TestProcessEmptyChainZeroAlloc(t *testing.T) {
	c := NewChain(nil)
	pcm := make([]byte, 64)
	allocs := testing.AllocsPerRun(100, func() {
		c.Process(pcm, 16, 16, 2, 44100)
	})
	assert.Zero(t, allocs)
}
