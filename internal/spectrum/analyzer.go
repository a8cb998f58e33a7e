// SPDX-License-Identifier: MIT
package spectrum

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Scaling of the spectrum bytes. Consumers are built against these exact
// values, do not tune them.
const (
	specGain  = 160.0
	specScale = 1.0 / (65536.0 * math.Sqrt2)
)

// Analyzer turns one channel's window of 16-bit samples into the cached
// spectrum bytes. It owns pre-allocated FFT buffers and is not safe for
// concurrent use; the decode goroutine keeps one instance.
type Analyzer struct {
	fft   *fourier.FFT
	size  int
	input []float64
	coeff []complex128
}

// NewAnalyzer creates an analyzer for windows of size samples. size must be
// even and positive.
func NewAnalyzer(size int) (*Analyzer, error) {
	if size <= 0 || size%2 != 0 {
		return nil, fmt.Errorf("spectrum window must be a positive even size, got %d", size)
	}
	return &Analyzer{
		fft:   fourier.NewFFT(size),
		size:  size,
		input: make([]float64, size),
		coeff: make([]complex128, size/2+1),
	}, nil
}

// Size returns the window length in samples.
func (a *Analyzer) Size() int { return a.size }

// Spectrum writes size bytes into dst. Byte 2k holds the log-scaled
// magnitude of bin k and byte 2k+1 repeats it. Missing input samples are
// treated as silence.
func (a *Analyzer) Spectrum(samples []int16, dst []byte) {
	n := min(len(samples), a.size)
	for i := range n {
		a.input[i] = float64(samples[i])
	}
	clear(a.input[n:])

	a.fft.Coefficients(a.coeff, a.input)

	limit := min(len(dst), a.size)
	for i := 0; i+1 < limit; i += 2 {
		b := magnitudeByte(cmplx.Abs(a.coeff[i/2]))
		dst[i] = b
		dst[i+1] = b
	}
	if limit%2 == 1 {
		dst[limit-1] = magnitudeByte(cmplx.Abs(a.coeff[(limit-1)/2]))
	}
}

// magnitudeByte maps an FFT magnitude to clamp(160*log10(1+m/(65536*sqrt2)), 0, 255).
func magnitudeByte(m float64) byte {
	v := specGain * math.Log10(1+m*specScale)
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v)
}

// Waveform writes the top 8 bits of each sample into dst as signed bytes.
// Bytes past len(samples) are zeroed.
func Waveform(samples []int16, dst []byte) {
	n := min(len(samples), len(dst))
	for i := range n {
		dst[i] = byte(int8(samples[i] >> 8))
	}
	clear(dst[n:])
}
