// SPDX-License-Identifier: MIT
/*
Package plugin models loaded processing components.

A Plugin owns the modules it exports. The native entry points of each
module are reached through the Effect and Visualizer capability
interfaces; EffectFuncs and VisualizerFuncs adapt plain callback bundles
supplied by a loader. Registries hold non-owning references to modules
while they are active, so a plugin can only be unloaded once all of its
modules are inactive.
*/
package plugin

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrModuleActive is returned when unloading a plugin with an active module.
	ErrModuleActive = errors.New("plugin has active modules")
	// ErrUnloaded is returned when using a plugin after Unload.
	ErrUnloaded = errors.New("plugin is unloaded")
)

// Loader produces plugins from a path. Filesystem discovery and binary
// loading live outside the host core.
type Loader interface {
	Load(path string) (*Plugin, error)
}

// Plugin is one loaded component and the modules it exports.
type Plugin struct {
	name string
	path string

	mu       sync.Mutex
	dsp      []*DSPModule
	vis      []*VisModule
	unloaded bool
	onUnload func()
}

// New creates an empty plugin.
func New(name, path string) *Plugin {
	return &Plugin{name: name, path: path}
}

// Name returns the plugin's display name.
func (p *Plugin) Name() string { return p.name }

// Path returns where the plugin was loaded from.
func (p *Plugin) Path() string { return p.path }

// AddDSP attaches m to the plugin and returns it.
func (p *Plugin) AddDSP(m *DSPModule) *DSPModule {
	p.mu.Lock()
	defer p.mu.Unlock()
	m.plugin = p
	p.dsp = append(p.dsp, m)
	return m
}

// AddVis attaches m to the plugin and returns it.
func (p *Plugin) AddVis(m *VisModule) *VisModule {
	p.mu.Lock()
	defer p.mu.Unlock()
	m.plugin = p
	p.vis = append(p.vis, m)
	return m
}

// DSPModules returns the effect modules exported by the plugin.
func (p *Plugin) DSPModules() []*DSPModule {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*DSPModule(nil), p.dsp...)
}

// VisModules returns the visualization modules exported by the plugin.
func (p *Plugin) VisModules() []*VisModule {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*VisModule(nil), p.vis...)
}

// OnUnload registers a callback run after a successful Unload, used by
// loaders to release the underlying library handle.
func (p *Plugin) OnUnload(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUnload = fn
}

// Unload destroys the plugin's modules. It fails while any module is
// active or a visualization worker has not yet exited.
func (p *Plugin) Unload() error {
	p.mu.Lock()
	if p.unloaded {
		p.mu.Unlock()
		return ErrUnloaded
	}
	for _, m := range p.dsp {
		if m.Active() || m.Claimed() {
			p.mu.Unlock()
			return fmt.Errorf("unload %s: dsp module %q: %w", p.name, m.name, ErrModuleActive)
		}
	}
	for _, m := range p.vis {
		if m.Active() || m.Running() {
			p.mu.Unlock()
			return fmt.Errorf("unload %s: vis module %q: %w", p.name, m.name, ErrModuleActive)
		}
	}
	p.unloaded = true
	p.dsp = nil
	p.vis = nil
	onUnload := p.onUnload
	p.mu.Unlock()

	if onUnload != nil {
		onUnload()
	}
	return nil
}

// Unloaded reports whether Unload has succeeded.
func (p *Plugin) Unloaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unloaded
}

// StaticLoader serves plugins that are compiled into the binary.
type StaticLoader struct {
	mu      sync.Mutex
	factory map[string]func() *Plugin
}

// NewStaticLoader creates an empty loader.
func NewStaticLoader() *StaticLoader {
	return &StaticLoader{factory: make(map[string]func() *Plugin)}
}

// Register makes a plugin constructor available under path.
func (l *StaticLoader) Register(path string, fn func() *Plugin) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factory[path] = fn
}

// Paths lists every registered path.
func (l *StaticLoader) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	paths := make([]string, 0, len(l.factory))
	for p := range l.factory {
		paths = append(paths, p)
	}
	return paths
}

// Load builds a fresh plugin instance for path.
func (l *StaticLoader) Load(path string) (*Plugin, error) {
	l.mu.Lock()
	fn, ok := l.factory[path]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no builtin plugin at %q", path)
	}
	return fn(), nil
}

var _ Loader = (*StaticLoader)(nil)
