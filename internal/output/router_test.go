// SPDX-License-Identifier: MIT
package output

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSink returns fixed values and records calls.
type stubSink struct {
	name        string
	openErr     error
	latency     int
	writeRC     int
	canWrite    int
	playing     bool
	paused      bool
	outputTime  int64
	writtenTime int64

	opened  int
	closed  int
	writes  int
	volume  int
	pan     int
	flushed int64
}

func (s *stubSink) Name() string { return s.name }
func (s *stubSink) Open(Format) (int, error) {
	s.opened++
	return s.latency, s.openErr
}
func (s *stubSink) Close() error       { s.closed++; return nil }
func (s *stubSink) Write([]byte) int   { s.writes++; return s.writeRC }
func (s *stubSink) CanWrite() int      { return s.canWrite }
func (s *stubSink) IsPlaying() bool    { return s.playing }
func (s *stubSink) Pause(p bool) bool  { prev := s.paused; s.paused = p; return prev }
func (s *stubSink) SetVolume(v int)    { s.volume = v }
func (s *stubSink) SetPan(p int)       { s.pan = p }
func (s *stubSink) Flush(ms int64)     { s.flushed = ms }
func (s *stubSink) OutputTime() int64  { return s.outputTime }
func (s *stubSink) WrittenTime() int64 { return s.writtenTime }

func TestRouterCombinesResults(t *testing.T) {
	fast := &stubSink{name: "fast", latency: 10, canWrite: 8000, outputTime: 900, writtenTime: 1200}
	slow := &stubSink{name: "slow", latency: 80, canWrite: 2000, outputTime: 700, writtenTime: 1000, writeRC: 1, playing: true}
	null := &stubSink{name: "null"}

	r := NewRouter(null, nil)
	require.NoError(t, r.Activate(fast))
	require.NoError(t, r.Activate(slow))

	latency, err := r.Open(cdFormat)
	require.NoError(t, err)
	assert.Equal(t, 80, latency, "max latency")

	assert.Equal(t, 1, r.Write([]byte{1, 2}), "max of write results")
	assert.Equal(t, 2000, r.CanWrite(), "min free space")
	assert.True(t, r.IsPlaying(), "any sink playing")
	assert.Equal(t, int64(700), r.OutputTime(), "min output time")
	assert.Equal(t, int64(1200), r.WrittenTime(), "max written time")

	slow.paused = true
	assert.True(t, r.Pause(true), "any sink was paused")
	assert.True(t, fast.paused)

	r.SetVolume(1000)
	r.SetPan(-300)
	assert.Equal(t, MaxVolume, fast.volume)
	assert.Equal(t, MinPan, slow.pan)

	r.Flush(4242)
	assert.Equal(t, int64(4242), fast.flushed)
	assert.Equal(t, int64(4242), slow.flushed)

	assert.Zero(t, null.writes, "null sink unused while sinks are active")
}

func TestRouterFallsBackToNull(t *testing.T) {
	clock := newFakeClock()
	null := NewNullSinkWithClock(clock.Now)
	r := NewRouter(null, nil)

	_, err := r.Open(cdFormat)
	require.NoError(t, err)

	assert.Equal(t, 0, r.Write(make([]byte, cdFormat.MsToBytes(1000))))
	assert.Equal(t, int64(0), r.OutputTime())
	clock.Advance(250)
	assert.Equal(t, int64(250), r.OutputTime())
	assert.Equal(t, int64(1000), r.WrittenTime())
}

func TestRouterOpenDropsFailingSinks(t *testing.T) {
	boom := errors.New("boom")
	bad := &stubSink{name: "bad", openErr: boom}
	good := &stubSink{name: "good", latency: 5}
	r := NewRouter(&stubSink{name: "null"}, nil)
	require.NoError(t, r.Activate(bad))
	require.NoError(t, r.Activate(good))

	latency, err := r.Open(cdFormat)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, latency)
	assert.Equal(t, []string{"good"}, r.Sinks())
}

func TestRouterOpenAllFailingUsesNull(t *testing.T) {
	boom := errors.New("boom")
	null := &stubSink{name: "null"}
	r := NewRouter(null, nil)
	require.NoError(t, r.Activate(&stubSink{name: "bad", openErr: boom}))

	_, err := r.Open(cdFormat)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, r.Sinks())
	assert.Equal(t, 1, null.opened)

	r.Write([]byte{0, 0})
	assert.Equal(t, 1, null.writes)
}

func TestRouterActivateWhileOpen(t *testing.T) {
	null := &stubSink{name: "null", outputTime: 3000}
	r := NewRouter(null, nil)
	_, err := r.Open(cdFormat)
	require.NoError(t, err)
	r.SetVolume(100)

	late := &stubSink{name: "late"}
	require.NoError(t, r.Activate(late))
	assert.Equal(t, 1, late.opened)
	assert.Equal(t, int64(3000), late.flushed, "clock seated at current position")
	assert.Equal(t, 100, late.volume)

	assert.Error(t, r.Activate(late), "duplicate")

	require.NoError(t, r.Deactivate("late"))
	assert.Equal(t, 1, late.closed)
	assert.Empty(t, r.Sinks())
	assert.ErrorIs(t, r.Deactivate("late"), ErrUnknownSink)
}

func TestRouterCloseClosesAll(t *testing.T) {
	a := &stubSink{name: "a"}
	null := &stubSink{name: "null"}
	r := NewRouter(null, nil)
	require.NoError(t, r.Activate(a))
	_, err := r.Open(cdFormat)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, null.closed)
}

func TestRouterRejectsInvalidFormat(t *testing.T) {
	r := NewRouter(nil, nil)
	_, err := r.Open(Format{SampleRate: 44100, Channels: 2, BitsPerSample: 12})
	assert.Error(t, err)
}

func TestRouterHotPathZeroAlloc(t *testing.T) {
	r := NewRouter(&stubSink{name: "null", canWrite: 100}, nil)
	pcm := make([]byte, 64)
	allocs := testing.AllocsPerRun(100, func() {
		if r.CanWrite() > 0 {
			r.Write(pcm)
		}
		_ = r.OutputTime()
	})
	assert.Zero(t, allocs)
}
