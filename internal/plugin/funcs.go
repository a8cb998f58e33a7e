// SPDX-License-Identifier: MIT
package plugin

// EffectFuncs adapts a bundle of externally supplied callbacks to Effect.
// A nil ModifyFunc means the module has no process entry point; the other
// fields are optional.
type EffectFuncs struct {
	InitFunc   func() int
	ModifyFunc func(pcm []byte, samples, bitsPerSample, channels, sampleRate int) int
	ConfigFunc func()
	QuitFunc   func()
}

// Compile-time check.
var _ Effect = (*EffectFuncs)(nil)

func (f *EffectFuncs) Init() int {
	if f.InitFunc == nil {
		return 0
	}
	return f.InitFunc()
}

func (f *EffectFuncs) ModifySamples(pcm []byte, samples, bitsPerSample, channels, sampleRate int) int {
	if f.ModifyFunc == nil {
		return samples
	}
	return f.ModifyFunc(pcm, samples, bitsPerSample, channels, sampleRate)
}

func (f *EffectFuncs) Config() {
	if f.ConfigFunc != nil {
		f.ConfigFunc()
	}
}

func (f *EffectFuncs) Quit() {
	if f.QuitFunc != nil {
		f.QuitFunc()
	}
}

// CanProcess reports whether the bundle carries a process callback.
func (f *EffectFuncs) CanProcess() bool {
	return f.ModifyFunc != nil
}

// VisualizerFuncs adapts a bundle of externally supplied callbacks to
// Visualizer. A nil RenderFunc means the module cannot render.
type VisualizerFuncs struct {
	InitFunc   func() int
	RenderFunc func(data *VisData) int
	ConfigFunc func()
	QuitFunc   func()
	PumpFunc   func()
}

var (
	_ Visualizer  = (*VisualizerFuncs)(nil)
	_ EventPumper = (*VisualizerFuncs)(nil)
)

func (f *VisualizerFuncs) Init() int {
	if f.InitFunc == nil {
		return 0
	}
	return f.InitFunc()
}

func (f *VisualizerFuncs) Render(data *VisData) int {
	if f.RenderFunc == nil {
		return 0
	}
	return f.RenderFunc(data)
}

func (f *VisualizerFuncs) Config() {
	if f.ConfigFunc != nil {
		f.ConfigFunc()
	}
}

func (f *VisualizerFuncs) Quit() {
	if f.QuitFunc != nil {
		f.QuitFunc()
	}
}

func (f *VisualizerFuncs) PumpEvents() {
	if f.PumpFunc != nil {
		f.PumpFunc()
	}
}

// CanRender reports whether the bundle carries a render callback.
func (f *VisualizerFuncs) CanRender() bool {
	return f.RenderFunc != nil
}
