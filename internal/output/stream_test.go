// SPDX-License-Identifier: MIT
package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiohost/pkg/utils"
)

func openStream(t *testing.T) *pcmStream {
	t.Helper()
	s := newPCMStream()
	require.NoError(t, s.reset(Format{SampleRate: 1000, Channels: 2, BitsPerSample: 16, BufferMs: 100}))
	return s
}

func TestStreamRejectsNon16Bit(t *testing.T) {
	s := newPCMStream()
	assert.Error(t, s.reset(Format{SampleRate: 44100, Channels: 2, BitsPerSample: 24}))
}

func TestStreamClock(t *testing.T) {
	s := openStream(t)
	// 1000 Hz stereo 16-bit: 4 bytes per ms.
	assert.Equal(t, 400, s.canWrite())

	pcm := utils.PCM16Bytes(utils.GenerateDC(50, 2, 1000))
	assert.Equal(t, 0, s.write(pcm))
	assert.Equal(t, int64(50), s.writtenTime())
	assert.Equal(t, int64(0), s.outputTime())
	assert.True(t, s.isPlaying())

	out := make([]byte, 80)
	s.pull(out)
	assert.Equal(t, int64(20), s.outputTime())

	s.flush(9000)
	assert.False(t, s.isPlaying())
	assert.Equal(t, int64(9000), s.outputTime())
	assert.Equal(t, int64(9000), s.writtenTime())
}

func TestStreamRefusesOverflow(t *testing.T) {
	s := openStream(t)
	assert.Equal(t, 1, s.write(make([]byte, 500)))
	assert.Equal(t, int64(0), s.writtenTime())
}

func TestStreamUnderrunAndPausePlaySilence(t *testing.T) {
	s := openStream(t)
	s.write(utils.PCM16Bytes([]int16{100, 200}))

	out := []byte{9, 9, 9, 9, 9, 9, 9, 9}
	s.pull(out)
	assert.Equal(t, utils.PCM16Bytes([]int16{100, 200, 0, 0}), out)

	s.write(utils.PCM16Bytes([]int16{300, 400}))
	assert.False(t, s.pause(true))
	assert.Zero(t, s.canWrite())
	out = []byte{9, 9, 9, 9}
	s.pull(out)
	assert.Equal(t, []byte{0, 0, 0, 0}, out)
	assert.True(t, s.isPlaying(), "paused audio stays queued")
}

func TestStreamVolumeAndPan(t *testing.T) {
	s := openStream(t)
	s.setVolume(0)
	s.write(utils.PCM16Bytes([]int16{1000, -1000}))
	out := make([]byte, 4)
	s.pull(out)
	assert.Equal(t, utils.PCM16Bytes([]int16{0, 0}), out)

	s.setVolume(MaxVolume)
	s.setPan(MaxPan) // hard right
	s.write(utils.PCM16Bytes([]int16{1000, -1000}))
	s.pull(out)
	assert.Equal(t, utils.PCM16Bytes([]int16{0, -1000}), out)

	s.setPan(MinPan) // hard left
	s.write(utils.PCM16Bytes([]int16{1000, -1000}))
	s.pull(out)
	assert.Equal(t, utils.PCM16Bytes([]int16{1000, 0}), out)
}

func TestWavSinkRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w := NewWavSink(path)
	assert.Equal(t, 1, w.Write([]byte{0, 0}), "closed")

	f := Format{SampleRate: 8000, Channels: 2, BitsPerSample: 16}
	_, err := w.Open(f)
	require.NoError(t, err)
	_, err = w.Open(f)
	assert.Error(t, err, "already open")

	samples := utils.GenerateSineWave(800, 2, 8000, 440, 0.5)
	assert.Equal(t, 0, w.Write(utils.PCM16Bytes(samples)))
	assert.Equal(t, int64(100), w.WrittenTime())
	assert.Equal(t, w.WrittenTime(), w.OutputTime())
	assert.False(t, w.IsPlaying())
	require.NoError(t, w.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	dec := wav.NewDecoder(file)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Format.NumChannels)
	assert.Equal(t, 8000, buf.Format.SampleRate)
	require.Len(t, buf.Data, len(samples))
	for i := range samples {
		require.Equal(t, int(samples[i]), buf.Data[i])
	}
}

func TestWavSinkRejectsNon16Bit(t *testing.T) {
	w := NewWavSink(filepath.Join(t.TempDir(), "x.wav"))
	_, err := w.Open(Format{SampleRate: 8000, Channels: 1, BitsPerSample: 8})
	assert.Error(t, err)
}

func TestFormatConversions(t *testing.T) {
	assert.Equal(t, int64(176400), cdFormat.BytesPerSecond())
	assert.Equal(t, 4, cdFormat.FrameBytes())
	assert.Equal(t, int64(1000), cdFormat.BytesToMs(176400))
	assert.Equal(t, int64(176400), cdFormat.MsToBytes(1000))
	assert.Zero(t, Format{}.BytesToMs(100))
	assert.Zero(t, Format{}.MsToBytes(100))
	assert.Equal(t, "44100 Hz, 2 ch, 16 bit", cdFormat.String())
}
