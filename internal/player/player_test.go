// SPDX-License-Identifier: MIT
package player

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiohost/internal/cache"
	"audiohost/internal/dsp"
	"audiohost/internal/output"
	"audiohost/internal/plugin"
	"audiohost/pkg/utils"
)

// memSource serves 16-bit PCM from memory. A negative frame count never ends.
type memSource struct {
	format  output.Format
	pcm     []byte
	pos     int
	endless bool

	mu     sync.Mutex
	seeks  []int64
	closed bool
}

func newMemSource(samples []int16, channels int) *memSource {
	return &memSource{
		format: output.Format{SampleRate: 44100, Channels: channels, BitsPerSample: 16},
		pcm:    utils.PCM16Bytes(samples),
	}
}

func (s *memSource) Format() output.Format { return s.format }
func (s *memSource) Length() int64         { return s.format.BytesToMs(int64(len(s.pcm))) }

func (s *memSource) Read(p []byte) (int, error) {
	if s.endless {
		clear(p)
		return len(p) - len(p)%s.format.FrameBytes(), nil
	}
	if s.pos >= len(s.pcm) {
		return 0, io.EOF
	}
	n := copy(p, s.pcm[s.pos:])
	n -= n % s.format.FrameBytes()
	s.pos += n
	return n, nil
}

func (s *memSource) Seek(ms int64) error {
	s.mu.Lock()
	s.seeks = append(s.seeks, ms)
	s.mu.Unlock()
	s.pos = min(int(s.format.MsToBytes(ms)), len(s.pcm))
	return nil
}

func (s *memSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) NotifyData() { c.n.Add(1) }

type fixture struct {
	player *Player
	router *output.Router
	chain  *dsp.Chain
	cache  *cache.SampleCache
	notify *countingNotifier
	out    string
}

// newFixture records output to a WAV file, which never paces the loop.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		router: output.NewRouter(nil, nil),
		chain:  dsp.NewChain(nil),
		cache:  cache.New(0, 0, nil),
		notify: &countingNotifier{},
		out:    filepath.Join(t.TempDir(), "out.wav"),
	}
	require.NoError(t, f.router.Activate(output.NewWavSink(f.out)))
	p, err := New(Config{BufferMs: 100}, f.router, f.chain, f.cache, f.notify)
	require.NoError(t, err)
	f.player = p
	return f
}

func readWAV(t *testing.T, path string) []int {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	buf, err := wav.NewDecoder(file).FullPCMBuffer()
	require.NoError(t, err)
	return buf.Data
}

func TestPlayToEnd(t *testing.T) {
	f := newFixture(t)
	samples := utils.GenerateSineWave(576*10+100, 2, 44100, 440, 0.5)
	src := newMemSource(samples, 2)

	require.NoError(t, f.player.Play(context.Background(), src))
	assert.True(t, src.closed)
	assert.False(t, f.player.IsPlaying())
	assert.Equal(t, int32(11), f.notify.n.Load(), "one frame per block")
	assert.Equal(t, bitsCeil(44100, 576), f.cache.FrameRate())

	got := readWAV(t, f.out)
	require.Len(t, got, len(samples))
	for i := range samples {
		require.Equal(t, int(samples[i]), got[i])
	}
}

func bitsCeil(a, b int) int { return (a + b - 1) / b }

func TestPlaySetsCacheFrameRatePerTrack(t *testing.T) {
	router := output.NewRouter(nil, nil)
	require.NoError(t, router.Activate(output.NewWavSink(filepath.Join(t.TempDir(), "out.wav"))))
	c := cache.New(100, 1000, nil)
	p, err := New(Config{BufferMs: 100}, router, dsp.NewChain(nil), c, nil)
	require.NoError(t, err)

	hi := newMemSource(utils.GenerateSineWave(576*2, 2, 96000, 440, 0.5), 2)
	hi.format.SampleRate = 96000
	require.NoError(t, p.Play(context.Background(), hi))
	assert.Equal(t, bitsCeil(96000, 576), c.FrameRate())
	assert.Equal(t, bitsCeil(96000, 576), c.SizingRate())

	lo := newMemSource(utils.GenerateSineWave(576*2, 2, 44100, 440, 0.5), 2)
	require.NoError(t, p.Play(context.Background(), lo))
	assert.Equal(t, bitsCeil(44100, 576), c.FrameRate(), "lookups follow the current track")
	assert.Equal(t, bitsCeil(96000, 576), c.SizingRate(), "capacity never shrinks")
}

func TestPlayPublishesAnalyzedFrames(t *testing.T) {
	f := newFixture(t)
	src := newMemSource(utils.GenerateDC(576, 1, 16000), 1)
	require.NoError(t, f.player.Play(context.Background(), src))

	// Align the output clock with the decoder so offset 0 is the newest frame.
	f.cache.SetReadTime(f.cache.WriteTime())
	off := f.cache.LatencyToOffset(0)
	dst := make([]byte, cache.FrameSize)
	f.cache.GetWaveLeft(dst, off)
	assert.Equal(t, byte(16000>>8), dst[0])
	f.cache.GetWaveRight(dst, off)
	assert.Equal(t, byte(16000>>8), dst[0], "mono duplicated to the right channel")
	f.cache.GetSpecLeft(dst, off)
	assert.Equal(t, byte(255), dst[0], "strong DC saturates bin 0")
	assert.Equal(t, int64(576*1000/44100), f.cache.WriteTime())
}

func TestPlayAppliesEffects(t *testing.T) {
	f := newFixture(t)
	invert := plugin.NewDSPModule("invert", &plugin.EffectFuncs{
		ModifyFunc: func(pcm []byte, samples, _, channels, _ int) int {
			for i := 0; i < samples*channels; i++ {
				v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
				binary.LittleEndian.PutUint16(pcm[i*2:], uint16(-v))
			}
			return samples
		},
	})
	require.True(t, f.chain.Start(invert, 0))

	samples := []int16{100, -200, 300, -400}
	require.NoError(t, f.player.Play(context.Background(), newMemSource(samples, 2)))
	assert.Equal(t, []int{-100, 200, -300, 400}, readWAV(t, f.out))

	// The cache holds the block as decoded, before effects.
	f.cache.SetReadTime(f.cache.WriteTime())
	dst := make([]byte, cache.FrameSize)
	f.cache.GetWaveLeft(dst, f.cache.LatencyToOffset(0))
	assert.Equal(t, byte(0), dst[0])
	assert.Equal(t, byte(1), dst[1])
}

func TestStopEndsEndlessStream(t *testing.T) {
	f := newFixture(t)
	src := newMemSource(nil, 2)
	src.endless = true

	done := make(chan error)
	go func() { done <- f.player.Play(context.Background(), src) }()
	require.Eventually(t, f.player.IsPlaying, time.Second, time.Millisecond)

	assert.ErrorIs(t, f.player.Play(context.Background(), newMemSource(nil, 2)), ErrAlreadyPlaying)

	f.player.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not return after Stop")
	}
}

func TestContextCancelEndsStream(t *testing.T) {
	f := newFixture(t)
	src := newMemSource(nil, 2)
	src.endless = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- f.player.Play(ctx, src) }()
	require.Eventually(t, f.player.IsPlaying, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestPauseAndSeek(t *testing.T) {
	f := newFixture(t)
	src := newMemSource(nil, 2)
	src.endless = true

	done := make(chan error)
	go func() { done <- f.player.Play(context.Background(), src) }()
	require.Eventually(t, f.player.IsPlaying, time.Second, time.Millisecond)

	f.player.Pause()
	assert.True(t, f.player.Paused())
	assert.False(t, f.player.IsPlaying())
	f.player.Resume()
	assert.True(t, f.player.IsPlaying())

	f.player.Seek(30_000)
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.seeks) == 1
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.cache.WriteTime() >= 30_000 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, f.router.WrittenTime(), int64(30_000))

	f.player.Stop()
	require.NoError(t, <-done)
}

func writeTestWAV(t *testing.T, path string, rate, bits, channels int, data []int) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(file, rate, bits, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: bits,
		Data:           data,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, file.Close())
}

func TestWAVSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	samples := utils.GenerateSineWave(8000, 2, 8000, 220, 0.5)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	writeTestWAV(t, path, 8000, 16, 2, data)

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, output.Format{SampleRate: 8000, Channels: 2, BitsPerSample: 16}, src.Format())
	assert.Equal(t, int64(1000), src.Length())

	var all []byte
	buf := make([]byte, 1000)
	for {
		n, err := src.Read(buf)
		all = append(all, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, utils.PCM16Bytes(samples), all)

	require.NoError(t, src.Seek(500))
	n, err := src.Read(buf[:4])
	require.NoError(t, err)
	require.Equal(t, 4, n)
	assert.Equal(t, utils.PCM16Bytes(samples[8000:8002]), buf[:4])
}

func TestWAVSource8Bit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in8.wav")
	writeTestWAV(t, path, 8000, 8, 1, []int{0, 128, 255})

	src, err := OpenWAV(path)
	require.NoError(t, err)
	defer src.Close()
	buf := make([]byte, 6)
	n, err := src.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	assert.Equal(t, utils.PCM16Bytes([]int16{-32768, 0, 32512}), buf)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open("song.mp3")
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = Open(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
	_, err = Open(filepath.Join(t.TempDir(), "missing.flac"))
	assert.Error(t, err)

	bogus := filepath.Join(t.TempDir(), "bogus.wav")
	require.NoError(t, os.WriteFile(bogus, []byte("not a wav file at all"), 0o644))
	_, err = Open(bogus)
	assert.Error(t, err)
}

func TestTo16(t *testing.T) {
	assert.Equal(t, int16(0x1234), to16(0x123456, 24))
	assert.Equal(t, int16(0x1234), to16(0x12345678, 32))
	assert.Equal(t, int16(-256), to16(-1, 8))
	assert.Equal(t, int16(-5), to16(-5, 16))
}
