package resample

import "github.com/mjibson/go-dsp/fft"

// FrequencyResponse returns the squared-magnitude (power) spectrum of a single polyphase
// branch of the converter's kernel, zero-padded to n points. Used by tests
// to confirm the designed filter attenuates above its cutoff, and by
// cmd/crasplot to draw the filter's response.
func (p *Polyphase) FrequencyResponse(phase, n int) []float64 {
	branch := make([]float64, 0, tapsPerPhase)
	for t := phase; t < kernelLen; t += numPhases {
		branch = append(branch, p.kernel[t])
	}
	padded := make([]float64, n)
	copy(padded, branch)
	spectrum := fft.FFTReal(padded)
	mag := make([]float64, n/2)
	for i := range mag {
		c := spectrum[i]
		mag[i] = real(c)*real(c) + imag(c)*imag(c)
	}
	return mag
}
