// SPDX-License-Identifier: MIT

// Package metrics exposes host activity as Prometheus metrics. Every method
// is safe on a nil *Metrics so components can run without observability.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the host's collectors.
type Metrics struct {
	registry *prometheus.Registry

	dspProcessTotal  prometheus.Counter
	dspModuleCalls   *prometheus.CounterVec
	activeModules    *prometheus.GaugeVec
	moduleStarts     *prometheus.CounterVec
	visRendersTotal  *prometheus.CounterVec
	cacheCapacity    prometheus.Gauge
	cacheFramesTotal prometheus.Counter
	sinkWritesTotal  *prometheus.CounterVec
	sinkBytesTotal   *prometheus.CounterVec
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.dspProcessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audiohost_dsp_process_total",
		Help: "Total number of blocks passed through the effect chain",
	})
	m.dspModuleCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiohost_dsp_module_calls_total",
		Help: "Total number of process callbacks per effect module",
	}, []string{"module"})
	m.activeModules = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audiohost_active_modules",
		Help: "Number of active modules per chain",
	}, []string{"kind"}) // kind: dsp, vis
	m.moduleStarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiohost_module_starts_total",
		Help: "Module start attempts by result",
	}, []string{"kind", "result"}) // result: ok, rejected, init_failed
	m.visRendersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiohost_vis_renders_total",
		Help: "Total number of render callbacks per visualization module",
	}, []string{"module"})
	m.cacheCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audiohost_cache_capacity_frames",
		Help: "Current sample cache capacity in frames",
	})
	m.cacheFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audiohost_cache_frames_total",
		Help: "Total number of frames published to the sample cache",
	})
	m.sinkWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiohost_sink_writes_total",
		Help: "Total number of write calls per output sink",
	}, []string{"sink"})
	m.sinkBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiohost_sink_bytes_total",
		Help: "Total PCM bytes accepted per output sink",
	}, []string{"sink"})
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.dspProcessTotal.Describe(ch)
	m.dspModuleCalls.Describe(ch)
	m.activeModules.Describe(ch)
	m.moduleStarts.Describe(ch)
	m.visRendersTotal.Describe(ch)
	m.cacheCapacity.Describe(ch)
	m.cacheFramesTotal.Describe(ch)
	m.sinkWritesTotal.Describe(ch)
	m.sinkBytesTotal.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.dspProcessTotal.Collect(ch)
	m.dspModuleCalls.Collect(ch)
	m.activeModules.Collect(ch)
	m.moduleStarts.Collect(ch)
	m.visRendersTotal.Collect(ch)
	m.cacheCapacity.Collect(ch)
	m.cacheFramesTotal.Collect(ch)
	m.sinkWritesTotal.Collect(ch)
	m.sinkBytesTotal.Collect(ch)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DSPProcessed records one pass through the effect chain.
func (m *Metrics) DSPProcessed() {
	if m == nil {
		return
	}
	m.dspProcessTotal.Inc()
}

// DSPModuleCalled records one process callback.
func (m *Metrics) DSPModuleCalled(module string) {
	if m == nil {
		return
	}
	m.dspModuleCalls.WithLabelValues(module).Inc()
}

// SetActiveModules records the size of a chain.
func (m *Metrics) SetActiveModules(kind string, n int) {
	if m == nil {
		return
	}
	m.activeModules.WithLabelValues(kind).Set(float64(n))
}

// ModuleStart records the outcome of a start request.
func (m *Metrics) ModuleStart(kind, result string) {
	if m == nil {
		return
	}
	m.moduleStarts.WithLabelValues(kind, result).Inc()
}

// VisRendered records one render callback.
func (m *Metrics) VisRendered(module string) {
	if m == nil {
		return
	}
	m.visRendersTotal.WithLabelValues(module).Inc()
}

// SetCacheCapacity records the current ring size.
func (m *Metrics) SetCacheCapacity(frames int) {
	if m == nil {
		return
	}
	m.cacheCapacity.Set(float64(frames))
}

// CacheFramePublished records one NextFrame.
func (m *Metrics) CacheFramePublished() {
	if m == nil {
		return
	}
	m.cacheFramesTotal.Inc()
}

// SinkWrite records bytes accepted by one sink.
func (m *Metrics) SinkWrite(sink string, n int) {
	if m == nil {
		return
	}
	m.sinkWritesTotal.WithLabelValues(sink).Inc()
	m.sinkBytesTotal.WithLabelValues(sink).Add(float64(n))
}
