// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the window applied before the FFT.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanHarris
	BlackmanNuttall
	FlatTop
	Hann
	Hamming
	Lanczos
	Nuttall
	Rectangular
	Triangular
)

var windowNames = [...]string{
	BartlettHann:    "bartletthann",
	Blackman:        "blackman",
	BlackmanHarris:  "blackmanharris",
	BlackmanNuttall: "blackmannuttall",
	FlatTop:         "flattop",
	Hann:            "hann",
	Hamming:         "hamming",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
	Rectangular:     "rectangular",
	Triangular:      "triangular",
}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "hanning":
		return Hann, nil
	case "rect", "none", "boxcar":
		return Rectangular, nil
	case "bartlett", "triangle":
		return Triangular, nil
	}
	for w, s := range windowNames {
		if s == n {
			return WindowFunc(w), nil
		}
	}
	return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
}

// applyWindow fills coeffs with the window shape.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// gonum windows scale the slice in place.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanHarris:
		window.BlackmanHarris(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case FlatTop:
		window.FlatTop(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Rectangular:
		window.Rectangular(coeffs)
	case Triangular:
		window.Triangular(coeffs)
	default:
		window.Hann(coeffs)
	}
}

// fftStage holds the buffers for one windowed real FFT.
type fftStage struct {
	fft    *fourier.FFT
	size   int
	input  []float64    // windowed frame
	coeffs []complex128 // N/2+1 complex bins
	window []float64
	scale  float64 // turns |X| into the amplitude of a bin-centred sine
}

func newFFTStage(size int, w WindowFunc) *fftStage {
	coeffs := make([]float64, size)
	applyWindow(coeffs, w)
	var sum float64
	for _, c := range coeffs {
		sum += c
	}
	scale := 0.0
	if sum > 0 {
		scale = 2 / sum
	}
	return &fftStage{
		fft:    fourier.NewFFT(size),
		size:   size,
		input:  make([]float64, size),
		coeffs: make([]complex128, size/2+1),
		window: coeffs,
		scale:  scale,
	}
}

// magnitudes windows frame (len size), transforms it and writes the first
// size/2 bin amplitudes to out.
func (s *fftStage) magnitudes(frame, out []float64) {
	for i, x := range frame {
		s.input[i] = x * s.window[i]
	}
	s.fft.Coefficients(s.coeffs, s.input)
	for i := range out {
		out[i] = cmplx.Abs(s.coeffs[i]) * s.scale
	}
}
