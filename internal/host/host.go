// SPDX-License-Identifier: MIT

/*
Package host is the control-side facade over the plugin catalog, the DSP
and visualization chains and the output router. All methods are meant to
be called from control code (CLI, TUI), never from the audio path.
*/
package host

import (
	"errors"
	"fmt"
	"sync"

	"audiohost/internal/dsp"
	applog "audiohost/internal/log"
	"audiohost/internal/output"
	"audiohost/internal/plugin"
	"audiohost/internal/vis"
)

var (
	// ErrUnknownModule is returned when no loaded plugin exports a module
	// with the given name.
	ErrUnknownModule = errors.New("unknown module")
	// ErrUnknownPlugin is returned when unloading a path that is not loaded.
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrStartFailed is returned when a chain refuses to start a module.
	ErrStartFailed = errors.New("module failed to start")
	// ErrNotActive is returned when stopping or moving an effect that is
	// not in the chain.
	ErrNotActive = errors.New("module not active")
)

// Kind tells DSP and visualization modules apart.
type Kind string

const (
	KindDSP Kind = "dsp"
	KindVis Kind = "vis"
)

// ModuleInfo describes one module for listings.
type ModuleInfo struct {
	Name   string
	Plugin string
	Kind   Kind
	// Slot is the module's position in its chain, or -1 when inactive.
	Slot    int
	Running bool
}

// Host owns the loaded plugins and drives both chains.
type Host struct {
	loader plugin.Loader
	dsp    *dsp.Chain
	vis    *vis.Chain
	router *output.Router

	mu      sync.Mutex
	plugins []*plugin.Plugin
}

// New creates a host. router may be nil when no output is attached.
func New(loader plugin.Loader, dspChain *dsp.Chain, visChain *vis.Chain, router *output.Router) *Host {
	return &Host{loader: loader, dsp: dspChain, vis: visChain, router: router}
}

// Load loads the plugin at path. Loading an already loaded path returns
// the existing plugin.
func (h *Host) Load(path string) (*plugin.Plugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.plugins {
		if p.Path() == path {
			return p, nil
		}
	}
	p, err := h.loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load plugin %s: %w", path, err)
	}
	h.plugins = append(h.plugins, p)
	applog.Infof("Host: loaded %q from %s (%d dsp, %d vis)", p.Name(), path, len(p.DSPModules()), len(p.VisModules()))
	return p, nil
}

// Unload unloads the plugin at path. It fails while any of its modules is
// active.
func (h *Host) Unload(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.plugins {
		if p.Path() != path {
			continue
		}
		if err := p.Unload(); err != nil {
			return err
		}
		h.plugins = append(h.plugins[:i], h.plugins[i+1:]...)
		applog.Infof("Host: unloaded %s", path)
		return nil
	}
	return fmt.Errorf("%s: %w", path, ErrUnknownPlugin)
}

// Plugins returns the loaded plugins in load order.
func (h *Host) Plugins() []*plugin.Plugin {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*plugin.Plugin(nil), h.plugins...)
}

func (h *Host) findDSP(name string) (*plugin.DSPModule, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.plugins {
		for _, m := range p.DSPModules() {
			if m.Name() == name {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("dsp module %q: %w", name, ErrUnknownModule)
}

func (h *Host) findVis(name string) (*plugin.VisModule, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.plugins {
		for _, m := range p.VisModules() {
			if m.Name() == name {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("vis module %q: %w", name, ErrUnknownModule)
}

// StartDSP inserts the named effect at pos in the DSP chain.
func (h *Host) StartDSP(name string, pos int) error {
	m, err := h.findDSP(name)
	if err != nil {
		return err
	}
	if !h.dsp.Start(m, pos) {
		return fmt.Errorf("dsp module %q: %w", name, ErrStartFailed)
	}
	return nil
}

// StopDSP removes the named effect from the chain. It returns once no
// process call uses the module anymore.
func (h *Host) StopDSP(name string) error {
	m, err := h.findDSP(name)
	if err != nil {
		return err
	}
	if !h.dsp.Stop(m) {
		return fmt.Errorf("dsp module %q: %w", name, ErrNotActive)
	}
	return nil
}

// MoveDSP moves an active effect by delta slots.
func (h *Host) MoveDSP(name string, delta int) error {
	m, err := h.findDSP(name)
	if err != nil {
		return err
	}
	pos := max(m.Index()+delta, 0)
	if !m.Active() || !h.dsp.Stop(m) {
		return fmt.Errorf("dsp module %q: %w", name, ErrNotActive)
	}
	if !h.dsp.Start(m, pos) {
		return fmt.Errorf("dsp module %q: %w", name, ErrStartFailed)
	}
	return nil
}

// StartVis launches a worker for the named visualizer.
func (h *Host) StartVis(name string) error {
	m, err := h.findVis(name)
	if err != nil {
		return err
	}
	if !h.vis.Start(m) {
		return fmt.Errorf("vis module %q: %w", name, ErrStartFailed)
	}
	return nil
}

// StopVis asks the named visualizer's worker to finish. It does not wait.
func (h *Host) StopVis(name string) error {
	m, err := h.findVis(name)
	if err != nil {
		return err
	}
	h.vis.Stop(m)
	return nil
}

// Toggle starts the named module if it is stopped and stops it otherwise.
// Effects are started at the end of the chain.
func (h *Host) Toggle(name string) error {
	if m, err := h.findDSP(name); err == nil {
		if m.Active() {
			return h.StopDSP(name)
		}
		return h.StartDSP(name, h.dsp.Len())
	}
	m, err := h.findVis(name)
	if err != nil {
		return fmt.Errorf("module %q: %w", name, ErrUnknownModule)
	}
	if m.Running() {
		return h.StopVis(name)
	}
	return h.StartVis(name)
}

// Config invokes the named module's configuration entry point.
func (h *Host) Config(name string) error {
	if m, err := h.findDSP(name); err == nil {
		m.Effect().Config()
		return nil
	}
	m, err := h.findVis(name)
	if err != nil {
		return fmt.Errorf("module %q: %w", name, ErrUnknownModule)
	}
	m.Visualizer().Config()
	return nil
}

// Modules lists every module of every loaded plugin, effects first.
func (h *Host) Modules() []ModuleInfo {
	plugins := h.Plugins()
	var infos []ModuleInfo
	for _, p := range plugins {
		for _, m := range p.DSPModules() {
			infos = append(infos, ModuleInfo{
				Name: m.Name(), Plugin: p.Name(), Kind: KindDSP,
				Slot: m.Index(), Running: m.Active(),
			})
		}
	}
	for _, p := range plugins {
		for _, m := range p.VisModules() {
			infos = append(infos, ModuleInfo{
				Name: m.Name(), Plugin: p.Name(), Kind: KindVis,
				Slot: m.Index(), Running: m.Running(),
			})
		}
	}
	return infos
}

// SetVolume forwards to the output router.
func (h *Host) SetVolume(volume int) {
	if h.router != nil {
		h.router.SetVolume(volume)
	}
}

// SetPan forwards to the output router.
func (h *Host) SetPan(pan int) {
	if h.router != nil {
		h.router.SetPan(pan)
	}
}

// Volume returns the router volume, 0..255.
func (h *Host) Volume() int {
	if h.router == nil {
		return output.MaxVolume
	}
	return h.router.Volume()
}

// Pan returns the router pan, -128..128.
func (h *Host) Pan() int {
	if h.router == nil {
		return 0
	}
	return h.router.Pan()
}

// Shutdown stops every module, waits for the visualization workers and
// unloads all plugins.
func (h *Host) Shutdown() error {
	h.dsp.StopAll()
	h.vis.StopAll()
	h.vis.Wait()

	h.mu.Lock()
	plugins := h.plugins
	h.plugins = nil
	h.mu.Unlock()

	var errs []error
	for _, p := range plugins {
		if err := p.Unload(); err != nil {
			errs = append(errs, err)
		}
	}
	applog.Infof("Host: shut down")
	return errors.Join(errs...)
}
