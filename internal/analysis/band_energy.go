// SPDX-License-Identifier: MIT
package analysis

import "math"

// FrequencyBand defines the name and frequency range for an energy band.
type FrequencyBand struct {
	Name   string  `json:"name"`
	LowHz  float64 `json:"lowHz"`
	HighHz float64 `json:"highHz"`
}

// NamedBands are the ranges reported as band energies. The last band runs
// to Nyquist.
var NamedBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// bandEnergies writes the RMS magnitude of each named band to out.
func bandEnergies(mags []float64, binHz float64, bands []FrequencyBand, out []float64) {
	for b, band := range bands {
		var sum float64
		n := 0
		for i, m := range mags {
			f := float64(i) * binHz
			if f >= band.LowHz && f < band.HighHz {
				sum += m * m
				n++
			}
		}
		out[b] = 0
		if n > 0 {
			out[b] = math.Sqrt(sum / float64(n))
		}
	}
}

// logBandEdges returns count+1 log-spaced edges from lo to hi Hz.
func logBandEdges(lo, hi float64, count int) []float64 {
	lo = max(lo, 1)
	edges := make([]float64, count+1)
	ratio := math.Log(hi / lo)
	for i := range edges {
		edges[i] = lo * math.Exp(ratio*float64(i)/float64(count))
	}
	return edges
}

// reduceBands averages mags into display bars. A bar narrower than one
// bin takes the bin under its centre.
func reduceBands(mags []float64, binHz float64, edges, out []float64) {
	last := len(mags) - 1
	for b := range out {
		lo := int(math.Ceil(edges[b] / binHz))
		hi := int(math.Ceil(edges[b+1] / binHz)) // exclusive
		lo = min(max(lo, 0), last)
		hi = min(hi, last+1)
		if hi <= lo {
			c := int(math.Round(math.Sqrt(edges[b]*edges[b+1]) / binHz))
			out[b] = mags[min(max(c, 0), last)]
			continue
		}
		var sum float64
		for i := lo; i < hi; i++ {
			sum += mags[i]
		}
		out[b] = sum / float64(hi-lo)
	}
}
