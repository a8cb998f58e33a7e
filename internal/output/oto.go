// SPDX-License-Identifier: MIT
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	applog "audiohost/internal/log"
)

// oto allows a single context per process, so it is created once and
// later opens must match its format.
var (
	otoOnce    sync.Once
	otoCtx     *oto.Context
	otoCtxErr  error
	otoCtxRate int
	otoCtxCh   int
)

func otoContext(f Format, buffer time.Duration) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   buffer,
		})
		if err != nil {
			otoCtxErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx, otoCtxRate, otoCtxCh = ctx, f.SampleRate, f.Channels
	})
	if otoCtxErr != nil {
		return nil, otoCtxErr
	}
	if f.SampleRate != otoCtxRate || f.Channels != otoCtxCh {
		return nil, fmt.Errorf("oto context is fixed at %d Hz/%d ch, stream is %s", otoCtxRate, otoCtxCh, f)
	}
	return otoCtx, nil
}

// OtoSink plays PCM through the platform mixer via oto.
type OtoSink struct {
	*pcmStream

	mu     sync.Mutex // guards player
	player *oto.Player
}

var _ Sink = (*OtoSink)(nil)

// NewOtoSink creates an unopened oto sink.
func NewOtoSink() *OtoSink {
	return &OtoSink{pcmStream: newPCMStream()}
}

func (s *OtoSink) Name() string { return "oto" }

func (s *OtoSink) Open(f Format) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		return 0, fmt.Errorf("oto sink already open")
	}
	if err := s.reset(f); err != nil {
		return 0, err
	}

	buffer := 50 * time.Millisecond
	ctx, err := otoContext(f, buffer)
	if err != nil {
		return 0, err
	}
	s.player = ctx.NewPlayer(otoReader{s.pcmStream})
	s.player.Play()

	applog.Infof("Oto: opened (%s)", f)
	return int(buffer.Milliseconds()), nil
}

func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	if err != nil {
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	return nil
}

// otoReader feeds the player and never reports EOF, so an underrun plays
// silence instead of ending the player.
type otoReader struct {
	s *pcmStream
}

func (r otoReader) Read(p []byte) (int, error) {
	r.s.pull(p)
	return len(p), nil
}

func (s *OtoSink) Write(pcm []byte) int { return s.write(pcm) }
func (s *OtoSink) CanWrite() int        { return s.canWrite() }
func (s *OtoSink) IsPlaying() bool      { return s.isPlaying() }
func (s *OtoSink) Pause(p bool) bool    { return s.pause(p) }
func (s *OtoSink) SetVolume(v int)      { s.setVolume(v) }
func (s *OtoSink) SetPan(p int)         { s.setPan(p) }
func (s *OtoSink) Flush(ms int64)       { s.flush(ms) }
func (s *OtoSink) OutputTime() int64    { return s.outputTime() }
func (s *OtoSink) WrittenTime() int64   { return s.writtenTime() }
