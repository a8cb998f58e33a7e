// SPDX-License-Identifier: MIT

// Package player runs the decode loop that feeds the effect chain, the
// sample cache and the output router.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"audiohost/internal/cache"
	"audiohost/internal/dsp"
	applog "audiohost/internal/log"
	"audiohost/internal/output"
	"audiohost/internal/spectrum"
	"audiohost/pkg/bitint"
)

const (
	// DefaultBlockSize is the number of frames decoded per block.
	DefaultBlockSize = 576
	// waitInterval paces the loop while the output is full or paused.
	waitInterval = 5 * time.Millisecond
	noSeek       = -1
)

// ErrAlreadyPlaying is returned when Play is called while a stream runs.
var ErrAlreadyPlaying = errors.New("player is already playing")

// Notifier is told when a frame has been published to the cache.
type Notifier interface {
	NotifyData()
}

// Config sizes the decode loop.
type Config struct {
	BlockSize int
	BufferMs  int
}

// Player decodes one source at a time.
type Player struct {
	cfg      Config
	router   *output.Router
	chain    *dsp.Chain
	cache    *cache.SampleCache
	notify   Notifier
	analyzer *spectrum.Analyzer

	mu     sync.Mutex // guards cancel
	cancel context.CancelFunc

	playing    atomic.Bool
	paused     atomic.Bool
	seekTo     atomic.Int64
	sampleRate atomic.Int64
	channels   atomic.Int64

	// Decode buffers, owned by the running loop.
	pcm     []byte
	samples []int16
	wave    []byte
	bins    []byte
}

// New creates a player. notify may be nil.
func New(cfg Config, router *output.Router, chain *dsp.Chain, sc *cache.SampleCache, notify Notifier) (*Player, error) {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	analyzer, err := spectrum.NewAnalyzer(cache.FrameSize)
	if err != nil {
		return nil, err
	}
	p := &Player{
		cfg:      cfg,
		router:   router,
		chain:    chain,
		cache:    sc,
		notify:   notify,
		analyzer: analyzer,
		samples:  make([]int16, cfg.BlockSize),
		wave:     make([]byte, cache.FrameSize),
		bins:     make([]byte, cache.FrameSize),
	}
	p.seekTo.Store(noSeek)
	return p, nil
}

// SetNotifier sets the receiver of new-frame notifications. Call before Play.
func (p *Player) SetNotifier(n Notifier) { p.notify = n }

// IsPlaying reports whether a stream is running and not paused.
func (p *Player) IsPlaying() bool { return p.playing.Load() && !p.paused.Load() }

// SampleRate returns the current stream's rate, 0 when idle.
func (p *Player) SampleRate() int { return int(p.sampleRate.Load()) }

// Channels returns the current stream's channel count, 0 when idle.
func (p *Player) Channels() int { return int(p.channels.Load()) }

// Position returns the audible position in ms.
func (p *Player) Position() int64 { return p.router.OutputTime() }

// Paused reports the pause state.
func (p *Player) Paused() bool { return p.paused.Load() }

// Pause halts output without stopping the stream.
func (p *Player) Pause() {
	if !p.paused.Swap(true) {
		p.router.Pause(true)
	}
}

// Resume continues after Pause.
func (p *Player) Resume() {
	if p.paused.Swap(false) {
		p.router.Pause(false)
	}
}

// Seek asks the loop to jump to ms.
func (p *Player) Seek(ms int64) {
	p.seekTo.Store(max(ms, 0))
}

// Stop ends the running stream. Play returns once the loop has exited.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Play decodes src until it ends, Stop is called or ctx is done. The source
// is closed on return.
func (p *Player) Play(ctx context.Context, src Source) error {
	if !p.playing.CompareAndSwap(false, true) {
		return ErrAlreadyPlaying
	}
	defer p.playing.Store(false)
	defer src.Close()

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
		cancel()
	}()

	format := src.Format()
	format.BufferMs = p.cfg.BufferMs
	latency, err := p.router.Open(format)
	if err != nil {
		applog.Warnf("Player: some outputs failed to open: %v", err)
	}
	defer func() {
		if err := p.router.Close(); err != nil {
			applog.Warnf("Player: closing outputs: %v", err)
		}
	}()

	p.sampleRate.Store(int64(format.SampleRate))
	p.channels.Store(int64(format.Channels))
	defer p.sampleRate.Store(0)
	defer p.channels.Store(0)
	p.paused.Store(false)
	p.seekTo.Store(noSeek)

	p.cache.Clear()
	p.cache.SetFrameRate(int(bitint.CeilDiv(int64(format.SampleRate), int64(p.cfg.BlockSize))))
	p.cache.EnsureLatency(latency + p.cfg.BufferMs)

	// Effects may return up to twice the input.
	blockBytes := p.cfg.BlockSize * format.FrameBytes()
	if len(p.pcm) < 2*blockBytes {
		p.pcm = make([]byte, 2*blockBytes)
	}

	applog.Infof("Player: playing %s (output latency %d ms)", format, latency)
	return p.loop(ctx, src, format, blockBytes)
}

func (p *Player) loop(ctx context.Context, src Source, format output.Format, blockBytes int) error {
	var baseMs, decoded int64 // decoded frames since baseMs

	for {
		if ctx.Err() != nil {
			return nil
		}

		if ms := p.seekTo.Swap(noSeek); ms != noSeek {
			if err := src.Seek(ms); err != nil {
				return fmt.Errorf("seek to %d ms: %w", ms, err)
			}
			p.router.Flush(ms)
			p.cache.Clear()
			baseMs, decoded = ms, 0
			applog.Debugf("Player: seeked to %d ms", ms)
		}

		if p.paused.Load() || p.router.CanWrite() < 2*blockBytes {
			if !sleep(ctx, waitInterval) {
				return nil
			}
			continue
		}

		n, err := src.Read(p.pcm[:blockBytes])
		if n > 0 {
			frames := n / format.FrameBytes()
			decoded += int64(frames)
			p.publish(format, n, baseMs+decoded*1000/int64(format.SampleRate))

			out := p.chain.Process(p.pcm, frames, format.BitsPerSample, format.Channels, format.SampleRate)
			outBytes := min(out*format.FrameBytes(), len(p.pcm))
			if rc := p.router.Write(p.pcm[:outBytes]); rc != 0 {
				applog.Debugf("Player: output refused a block (%d)", rc)
			}
		}
		if errors.Is(err, io.EOF) {
			p.drain(ctx)
			applog.Infof("Player: end of stream")
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// publish analyzes the decoded block and pushes one frame to the cache.
func (p *Player) publish(format output.Format, n int, writeMs int64) {
	pcm := p.pcm[:n]
	chans := min(format.Channels, cache.Channels)
	for ch := range chans {
		k := spectrum.Extract(pcm, format.BitsPerSample, format.Channels, ch, p.samples)
		spectrum.Waveform(p.samples[:k], p.wave)
		p.analyzer.Spectrum(p.samples[:k], p.bins)
		p.cache.PushFrame(cache.Waveform, ch, p.wave)
		p.cache.PushFrame(cache.Spectrum, ch, p.bins)
		if chans == 1 {
			p.cache.PushFrame(cache.Waveform, 1, p.wave)
			p.cache.PushFrame(cache.Spectrum, 1, p.bins)
		}
	}

	p.cache.SetWriteTime(writeMs)
	p.cache.SetReadTime(p.router.OutputTime())
	p.cache.NextFrame()
	if p.notify != nil {
		p.notify.NotifyData()
	}
}

// drain waits for queued output to finish playing.
func (p *Player) drain(ctx context.Context) {
	for p.router.IsPlaying() {
		if !sleep(ctx, waitInterval) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
