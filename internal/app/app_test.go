// SPDX-License-Identifier: MIT
package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiohost/internal/builtin"
	"audiohost/internal/config"
	"audiohost/internal/host"
)

func writeStereoWAV(t *testing.T, path string, frames int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 44100, 16, 2, 1)
	data := make([]int, frames*2)
	for i := 0; i < frames; i++ {
		data[2*i] = 1000
		data[2*i+1] = -2000
	}
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 44100},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func readWAV(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	return buf.Data
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Output.Sinks = []string{config.SinkWav}
	cfg.Output.WavPath = filepath.Join(t.TempDir(), "out.wav")
	cfg.Transport.WebSocketEnabled = true
	cfg.Transport.WebSocketAddress = "127.0.0.1:0"
	cfg.Metrics.Enabled = true
	cfg.DSP.Start = []string{builtin.SwapName}
	cfg.Vis.Start = []string{builtin.ConsoleName, builtin.WebSocketName}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestPlayThroughWiredHost(t *testing.T) {
	cfg := testConfig(t)
	in := filepath.Join(t.TempDir(), "in.wav")
	writeStereoWAV(t, in, 4410)

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	running := 0
	for _, m := range a.Host.Modules() {
		if m.Running {
			running++
		}
	}
	assert.Equal(t, 3, running)
	assert.Equal(t, "idle", a.Status())

	require.NoError(t, a.Play(context.Background(), in))
	require.NoError(t, a.Close())

	out := readWAV(t, cfg.Output.WavPath)
	require.Len(t, out, 4410*2)
	assert.Equal(t, -2000, out[0], "swap runs in the effect chain")
	assert.Equal(t, 1000, out[1])
}

func TestMetricsServed(t *testing.T) {
	cfg := testConfig(t)
	in := filepath.Join(t.TempDir(), "in.wav")
	writeStereoWAV(t, in, 2000)

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Play(context.Background(), in))

	resp, err := http.Get("http://" + a.WebSocketAddr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "audiohost_dsp_process_total")
	assert.Contains(t, string(body), `audiohost_sink_writes_total{sink="wav"}`)
}

func TestPrintModules(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Sinks = []string{config.SinkNull}
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	var buf bytes.Buffer
	a.PrintModules(&buf)
	assert.Contains(t, buf.String(), "Builtin effects (builtin:effects)")
	assert.Contains(t, buf.String(), "[dsp] amp")
	assert.Contains(t, buf.String(), "[vis] console")
	assert.NotContains(t, buf.String(), "[vis] websocket", "websocket is off by default")
}

func TestUnknownStartIsLogged(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Sinks = []string{config.SinkNull}
	cfg.DSP.Start = []string{"missing", builtin.AmpName}
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	var amp host.ModuleInfo
	for _, m := range a.Host.Modules() {
		if m.Name == builtin.AmpName {
			amp = m
		}
	}
	assert.Equal(t, 0, amp.Slot, "position is clamped to the chain length")
}

func TestPlayUnknownFile(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Sinks = []string{config.SinkNull}
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.Error(t, a.Play(context.Background(), "track.mp3"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", formatDuration(0))
	assert.Equal(t, "1:05", formatDuration(65_400))
}
