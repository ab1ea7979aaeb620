/*
NAME
  polyphase.go

DESCRIPTION
  polyphase.go implements a quality-4 (mid-quality, low-latency) polyphase
  sample-rate converter, used by the format-conversion pipeline whenever a
  stream's rate differs from its device's rate by more than the small drift
  LinearResampler corrects for.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package resample

import (
	"math"

	"github.com/mjibson/go-dsp/window"
)

// Quality level 4: mid-quality, low-latency, matching spec.md's choice of
// polyphase quality for the SRC stage.
const (
	numPhases     = 32
	tapsPerPhase  = 8
	kernelLen     = numPhases * tapsPerPhase
)

// Polyphase is a fixed-ratio polyphase sample-rate converter.
type Polyphase struct {
	numChannels int
	inRate      float64
	outRate     float64
	step        float64 // input-domain advance per output sample.
	kernel      []float64
	pos         float64 // current fractional input position, carried across calls.
}

// NewPolyphase builds a polyphase converter from inRate to outRate for
// numChannels-channel audio. The FIR kernel is a windowed-sinc lowpass
// designed at the lower of the two Nyquist frequencies, windowed with
// window.FlatTop exactly as codec/pcm/filters.go designs its selective
// frequency filters.
func NewPolyphase(inRate, outRate float64, numChannels int) *Polyphase {
	p := &Polyphase{
		numChannels: numChannels,
		inRate:      inRate,
		outRate:     outRate,
		step:        inRate / outRate,
	}
	p.kernel = designKernel(inRate, outRate)
	return p
}

// designKernel builds a windowed-sinc lowpass kernel of length kernelLen,
// normalized so each phase's taps sum to 1.
func designKernel(inRate, outRate float64) []float64 {
	cutoff := 0.5
	if outRate < inRate {
		cutoff = 0.5 * outRate / inRate
	}
	k := make([]float64, kernelLen)
	win := window.FlatTop(kernelLen)
	mid := float64(kernelLen-1) / 2
	for n := range k {
		x := float64(n) - mid
		var sinc float64
		if x == 0 {
			sinc = 2 * cutoff
		} else {
			sinc = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
		}
		k[n] = sinc * win[n]
	}
	// Normalize each polyphase branch independently so a DC input passes
	// through at unity gain.
	for ph := 0; ph < numPhases; ph++ {
		var sum float64
		for t := ph; t < kernelLen; t += numPhases {
			sum += k[t]
		}
		if sum == 0 {
			continue
		}
		for t := ph; t < kernelLen; t += numPhases {
			k[t] /= sum
		}
	}
	return k
}

// OutFramesForIn returns the number of output frames produced by consuming
// exactly inFrames input frames, given the converter's fixed ratio.
func (p *Polyphase) OutFramesForIn(inFrames int) int {
	return int(float64(inFrames) * p.outRate / p.inRate)
}

// InFramesForOut returns the number of input frames needed to produce
// outFrames output frames.
func (p *Polyphase) InFramesForOut(outFrames int) int {
	return int(math.Ceil(float64(outFrames) * p.inRate / p.outRate))
}

// Convert resamples src (srcFrames frames, interleaved S16) into dst
// (capacity up to dstFrames frames), returning frames produced and frames
// consumed. Converter state (fractional input position) persists across
// calls so that streaming chunks produce continuous output.
func (p *Polyphase) Convert(src []int16, srcFrames int, dst []int16, dstFrames int) (produced, consumed int) {
	half := tapsPerPhase / 2
	d := 0
	for ; d < dstFrames; d++ {
		centerF := p.pos
		center := int(math.Floor(centerF))
		if center+half >= srcFrames {
			break
		}
		frac := centerF - float64(center)
		phase := int(frac * numPhases)
		if phase >= numPhases {
			phase = numPhases - 1
		}
		if center-half+1 < 0 {
			p.pos += p.step
			continue
		}
		for c := 0; c < p.numChannels; c++ {
			var acc float64
			for t := 0; t < tapsPerPhase; t++ {
				si := center - half + 1 + t
				acc += float64(src[si*p.numChannels+c]) * p.kernel[phase+t*numPhases]
			}
			if acc > math.MaxInt16 {
				acc = math.MaxInt16
			} else if acc < math.MinInt16 {
				acc = math.MinInt16
			}
			dst[d*p.numChannels+c] = int16(acc)
		}
		p.pos += p.step
	}
	// Leave the half-1 history frames before the next center unconsumed, so
	// the next call, given them again, has every tap it needs.
	consumed = int(math.Floor(p.pos)) - (half - 1)
	if consumed < 0 {
		consumed = 0
	}
	if consumed > srcFrames {
		consumed = srcFrames
	}
	p.pos -= float64(consumed)
	return d, consumed
}
