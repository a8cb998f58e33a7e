// SPDX-License-Identifier: MIT

// Package app assembles the host from a configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"audiohost/internal/builtin"
	"audiohost/internal/cache"
	"audiohost/internal/config"
	"audiohost/internal/dsp"
	"audiohost/internal/host"
	applog "audiohost/internal/log"
	"audiohost/internal/metrics"
	"audiohost/internal/output"
	"audiohost/internal/player"
	"audiohost/internal/plugin"
	"audiohost/internal/transport"
	"audiohost/internal/transport/udp"
	"audiohost/internal/vis"
)

// App is a fully wired host.
type App struct {
	Metrics *metrics.Metrics
	Cache   *cache.SampleCache
	DSP     *dsp.Chain
	Vis     *vis.Chain
	Router  *output.Router
	Player  *player.Player
	Host    *host.Host

	ws        *transport.WebSocketTransport
	sender    *udp.Sender
	portaudio bool
}

// New builds every component, loads the configured plugins and starts the
// configured modules. Module start failures are logged, not returned.
func New(cfg *config.Config) (*App, error) {
	a := &App{}
	if err := a.build(cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	if cfg.Metrics.Enabled {
		m, err := metrics.New(prometheus.NewRegistry())
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		a.Metrics = m
	}

	a.Cache = cache.New(cfg.Cache.FrameRate, cfg.Cache.MaxLatencyMs, a.Metrics)
	a.DSP = dsp.NewChain(a.Metrics)
	a.Router = output.NewRouter(output.NewNullSink(), a.Metrics)
	if err := a.activateSinks(cfg); err != nil {
		return err
	}
	a.Router.SetVolume(cfg.Output.Volume)
	a.Router.SetPan(cfg.Output.Pan)

	p, err := player.New(player.Config{
		BlockSize: cfg.Playback.BlockSize,
		BufferMs:  cfg.Playback.BufferMs,
	}, a.Router, a.DSP, a.Cache, nil)
	if err != nil {
		return err
	}
	a.Player = p
	a.Vis = vis.NewChain(a.Cache, p, cfg.Playback.VisHeadroomMs, a.Metrics)
	p.SetNotifier(a.Vis)

	deps, err := a.transports(cfg)
	if err != nil {
		return err
	}
	loader := plugin.NewStaticLoader()
	builtin.Register(loader, deps)
	a.Host = host.New(loader, a.DSP, a.Vis, a.Router)

	for _, path := range append(append([]string(nil), cfg.DSP.Plugins...), cfg.Vis.Plugins...) {
		if _, err := a.Host.Load(path); err != nil {
			return err
		}
	}
	for i, name := range cfg.DSP.Start {
		if err := a.Host.StartDSP(name, i); err != nil {
			applog.Warnf("App: %v", err)
		}
	}
	for _, name := range cfg.Vis.Start {
		if err := a.Host.StartVis(name); err != nil {
			applog.Warnf("App: %v", err)
		}
	}
	return nil
}

func (a *App) activateSinks(cfg *config.Config) error {
	for _, name := range cfg.Output.Sinks {
		var s output.Sink
		switch name {
		case config.SinkNull:
			s = output.NewNullSink()
		case config.SinkPortAudio:
			if !a.portaudio {
				if err := output.Initialize(); err != nil {
					return err
				}
				a.portaudio = true
			}
			s = output.NewPortAudioSink(cfg.Output.Device, cfg.Playback.BlockSize, cfg.Output.LowLatency)
		case config.SinkOto:
			s = output.NewOtoSink()
		case config.SinkWav:
			s = output.NewWavSink(cfg.Output.WavPath)
		default:
			return fmt.Errorf("unknown sink %q", name)
		}
		if err := a.Router.Activate(s); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) transports(cfg *config.Config) (builtin.Deps, error) {
	deps := builtin.Deps{
		Gain:          cfg.Output.Gain,
		GateThreshold: cfg.Output.GateThreshold,
		Console:       transport.NewLoggingTransport(builtin.ConsoleName),
	}

	if cfg.Transport.WebSocketEnabled {
		a.ws = transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress)
		if a.Metrics != nil {
			a.ws.Handle("/metrics", a.Metrics.Handler())
		}
		if err := a.ws.Start(); err != nil {
			a.ws = nil
			return deps, err
		}
		deps.WebSocket = a.ws
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return deps, err
		}
		a.sender = sender
		pub, err := udp.NewPublisher(sender)
		if err != nil {
			return deps, err
		}
		deps.UDP = pub
	}
	return deps, nil
}

// WebSocketAddr returns the bound websocket address, or "" when disabled.
func (a *App) WebSocketAddr() string {
	if a.ws == nil {
		return ""
	}
	return a.ws.Addr()
}

// Play decodes the file at path until it ends or ctx is done.
func (a *App) Play(ctx context.Context, path string) error {
	src, err := player.Open(path)
	if err != nil {
		return err
	}
	applog.Infof("App: playing %s (%s)", path, formatDuration(src.Length()))
	return a.Player.Play(ctx, src)
}

// Status returns a one-line playback summary.
func (a *App) Status() string {
	if a.Player.SampleRate() == 0 {
		return "idle"
	}
	state := "playing"
	if a.Player.Paused() {
		state = "paused"
	}
	return fmt.Sprintf("%s %s", state, formatDuration(a.Player.Position()))
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// PrintModules writes the loaded modules to w.
func (a *App) PrintModules(w io.Writer) {
	for _, p := range a.Host.Plugins() {
		fmt.Fprintf(w, "%s (%s)\n", p.Name(), p.Path())
		for _, m := range p.DSPModules() {
			fmt.Fprintf(w, "  [dsp] %s\n", m.Name())
		}
		for _, m := range p.VisModules() {
			fmt.Fprintf(w, "  [vis] %s (latency %d ms, every %d ms)\n", m.Name(), m.LatencyMs, m.DelayMs)
		}
	}
}

// Close stops playback and every module and releases the outputs.
func (a *App) Close() error {
	var errs []error
	if a.Player != nil {
		a.Player.Stop()
	}
	if a.Host != nil {
		errs = append(errs, a.Host.Shutdown())
	}
	if a.ws != nil {
		errs = append(errs, a.ws.Close())
	}
	if a.sender != nil {
		errs = append(errs, a.sender.Close())
	}
	if a.portaudio {
		errs = append(errs, output.Terminate())
		a.portaudio = false
	}
	return errors.Join(errs...)
}
