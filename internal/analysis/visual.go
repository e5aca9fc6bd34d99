// SPDX-License-Identifier: MIT
package analysis

// Smooth blends x into s: s[i] = s[i]*(1-alpha) + x[i]*alpha.
func Smooth(s, x []float64, alpha float64) {
	for i := range s {
		s[i] = s[i]*(1-alpha) + x[i]*alpha
	}
}

// HoldPeaks decays p and lifts it to any higher value in x:
// p[i] = max(x[i], p[i]*decay).
func HoldPeaks(p, x []float64, decay float64) {
	for i := range p {
		p[i] = max(x[i], p[i]*decay)
	}
}
