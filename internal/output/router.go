// SPDX-License-Identifier: MIT
package output

import (
	"errors"
	"fmt"
	"math"
	"sync"

	applog "audiohost/internal/log"
	"audiohost/internal/metrics"
)

// ErrUnknownSink is returned when deactivating a sink that is not active.
var ErrUnknownSink = errors.New("sink is not active")

// Router fans transport calls out to the active sinks. With no active sink
// every call goes to the null sink.
type Router struct {
	mu     sync.Mutex // guards sinks, open, format, volume and pan
	sinks  []Sink     // replaced, never mutated in place
	null   Sink
	nulls  []Sink
	open   bool
	format Format
	volume int
	pan    int

	metrics *metrics.Metrics
}

// NewRouter creates a router falling back to null. m may be nil.
func NewRouter(null Sink, m *metrics.Metrics) *Router {
	if null == nil {
		null = NewNullSink()
	}
	return &Router{null: null, nulls: []Sink{null}, volume: MaxVolume, metrics: m}
}

// targets returns the sinks a call should reach.
func (r *Router) targets() []Sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sinks) == 0 {
		return r.nulls
	}
	return r.sinks
}

// Activate adds s to the active set. If the router is open, s is opened
// with the current format and its clock seated at the current position.
func (r *Router) Activate(s Sink) error {
	r.mu.Lock()
	for _, a := range r.sinks {
		if a == s || a.Name() == s.Name() {
			r.mu.Unlock()
			return fmt.Errorf("sink %q already active", s.Name())
		}
	}
	open, format, vol, pan := r.open, r.format, r.volume, r.pan
	r.mu.Unlock()

	if open {
		pos := r.OutputTime()
		if _, err := s.Open(format); err != nil {
			return fmt.Errorf("failed to open sink %q: %w", s.Name(), err)
		}
		s.Flush(pos)
	}
	s.SetVolume(vol)
	s.SetPan(pan)

	r.mu.Lock()
	next := make([]Sink, len(r.sinks), len(r.sinks)+1)
	copy(next, r.sinks)
	r.sinks = append(next, s)
	r.mu.Unlock()

	applog.WithComponent("output").Infof("Sink %q activated", s.Name())
	return nil
}

// Deactivate removes the sink called name, closing it if the router is open.
func (r *Router) Deactivate(name string) error {
	r.mu.Lock()
	idx := -1
	for i, s := range r.sinks {
		if s.Name() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSink, name)
	}
	s := r.sinks[idx]
	next := make([]Sink, 0, len(r.sinks)-1)
	next = append(next, r.sinks[:idx]...)
	r.sinks = append(next, r.sinks[idx+1:]...)
	open, format, empty := r.open, r.format, len(r.sinks) == 0
	r.mu.Unlock()

	if open {
		pos := s.OutputTime()
		if err := s.Close(); err != nil {
			applog.Warnf("Output: closing %q: %v", name, err)
		}
		if empty {
			// Keep the clock running on the null sink.
			if _, err := r.null.Open(format); err == nil {
				r.null.Flush(pos)
			}
		}
	}
	applog.WithComponent("output").Infof("Sink %q deactivated", name)
	return nil
}

// Sinks returns the names of the active sinks.
func (r *Router) Sinks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	return names
}

// Open opens every target with f and returns the largest latency. Sinks
// that fail to open are dropped from the active set and their errors are
// joined; if none remain the null sink takes over.
func (r *Router) Open(f Format) (int, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.format = f
	r.open = true
	r.mu.Unlock()

	latency := 0
	var errs []error
	var failed []string
	for _, s := range r.targets() {
		l, err := s.Open(f)
		if err != nil {
			errs = append(errs, fmt.Errorf("sink %q: %w", s.Name(), err))
			failed = append(failed, s.Name())
			continue
		}
		latency = max(latency, l)
	}
	for _, name := range failed {
		r.drop(name)
	}

	if len(failed) > 0 && len(r.Sinks()) == 0 {
		if _, err := r.null.Open(f); err != nil {
			errs = append(errs, err)
		}
	}
	r.applyLevels()
	return latency, errors.Join(errs...)
}

func (r *Router) drop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		if s.Name() != name {
			next = append(next, s)
		}
	}
	r.sinks = next
}

func (r *Router) applyLevels() {
	r.mu.Lock()
	vol, pan := r.volume, r.pan
	r.mu.Unlock()
	for _, s := range r.targets() {
		s.SetVolume(vol)
		s.SetPan(pan)
	}
}

// Close closes every target and the null sink.
func (r *Router) Close() error {
	r.mu.Lock()
	r.open = false
	r.mu.Unlock()

	var errs []error
	for _, s := range r.targets() {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %q: %w", s.Name(), err))
		}
	}
	if err := r.null.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Write sends pcm to every target and returns the largest result, so any
// refusal is reported.
func (r *Router) Write(pcm []byte) int {
	res := 0
	for _, s := range r.targets() {
		rc := s.Write(pcm)
		if rc == 0 {
			r.metrics.SinkWrite(s.Name(), len(pcm))
		}
		res = max(res, rc)
	}
	return res
}

// CanWrite returns the smallest free space across targets.
func (r *Router) CanWrite() int {
	res := math.MaxInt
	for _, s := range r.targets() {
		res = min(res, s.CanWrite())
	}
	return res
}

// IsPlaying reports whether any target is still playing.
func (r *Router) IsPlaying() bool {
	for _, s := range r.targets() {
		if s.IsPlaying() {
			return true
		}
	}
	return false
}

// Pause sets the pause state on every target and returns whether any of
// them was paused before.
func (r *Router) Pause(pause bool) bool {
	prev := false
	for _, s := range r.targets() {
		if s.Pause(pause) {
			prev = true
		}
	}
	return prev
}

// SetVolume forwards volume (0..255) to every target.
func (r *Router) SetVolume(volume int) {
	volume = clampVolume(volume)
	r.mu.Lock()
	r.volume = volume
	r.mu.Unlock()
	for _, s := range r.targets() {
		s.SetVolume(volume)
	}
}

// SetPan forwards pan (-128..128) to every target.
func (r *Router) SetPan(pan int) {
	pan = clampPan(pan)
	r.mu.Lock()
	r.pan = pan
	r.mu.Unlock()
	for _, s := range r.targets() {
		s.SetPan(pan)
	}
}

// Volume returns the last volume set.
func (r *Router) Volume() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume
}

// Pan returns the last pan set.
func (r *Router) Pan() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pan
}

// Flush re-seats every target at ms.
func (r *Router) Flush(ms int64) {
	for _, s := range r.targets() {
		s.Flush(ms)
	}
}

// OutputTime returns the smallest audible position across targets.
func (r *Router) OutputTime() int64 {
	res := int64(math.MaxInt64)
	for _, s := range r.targets() {
		res = min(res, s.OutputTime())
	}
	return res
}

// WrittenTime returns the largest written position across targets.
func (r *Router) WrittenTime() int64 {
	var res int64
	for _, s := range r.targets() {
		res = max(res, s.WrittenTime())
	}
	return res
}
