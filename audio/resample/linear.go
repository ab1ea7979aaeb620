/*
NAME
  linear.go

DESCRIPTION
  linear.go implements LinearResampler, a per-stream fractional-ratio linear
  interpolator used to correct small clock drift between a stream's nominal
  rate and a device's estimated rate. It is not intended for large ratio
  changes; see polyphase.go for that.

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

// renormalizeThreshold bounds how far src/dst offset counters are allowed to
// run before being renormalized back toward zero, following the periodic
// renormalization original_source/linear_resampler.c performs so the
// counters never grow without bound across a long-lived stream.
const renormalizeThreshold = 1 << 28

// LinearResampler performs small-ratio linear interpolation to track a
// device's estimated clock drift relative to a stream's nominal rate.
type LinearResampler struct {
	numChannels int
	to, from    float64 // destination and source rates as passed to SetRates.
	f           float64 // to/from.
	srcOffset   float64
	dstOffset   float64
}

// NewLinearResampler builds a resampler for numChannels-channel audio,
// initially running at 1:1 (bypassed).
func NewLinearResampler(numChannels int) *LinearResampler {
	return &LinearResampler{numChannels: numChannels, to: 1, from: 1, f: 1}
}

// SetRates sets the destination and source rates. Both are in the same
// units (e.g. Hz); only their ratio matters.
func (r *LinearResampler) SetRates(to, from float64) {
	r.to = to
	r.from = from
	if from == 0 {
		r.f = 1
		return
	}
	r.f = to / from
}

// Needed reports whether the resample ratio differs from 1.0, i.e. whether
// the engine must actually run this stage rather than bypass it.
func (r *LinearResampler) Needed() bool { return r.f != 1.0 }

// Ratio returns the current to/from ratio.
func (r *LinearResampler) Ratio() float64 { return r.f }

// OutFramesToIn returns how many input frames are needed to produce n output
// frames, given the resampler's current phase. The floor of 1 when n is
// nonzero is deliberate: it prevents the engine from ever requesting zero input frames
// while output is still owed, which would stall the scheduler.
func (r *LinearResampler) OutFramesToIn(n int) int {
	if n <= 0 {
		return 0
	}
	need := int(ceilf((r.dstOffset+float64(n))/r.f)) - int(r.srcOffset)
	if need < 1 {
		need = 1
	}
	return need
}

// InFramesToOut returns how many output frames n input frames will produce
// at the current phase, symmetric with OutFramesToIn.
func (r *LinearResampler) InFramesToOut(n int) int {
	if n <= 0 {
		return 0
	}
	out := int(floorf((r.srcOffset + float64(n) - 1) * r.f))
	if out < 0 {
		out = 0
	}
	return out
}

// Resample linearly interpolates src (srcFrames frames, interleaved S16,
// numChannels channels) into dst (capacity dstFrames frames). It returns the
// number of output frames produced and the number of input frames consumed.
//
// Per output index d, s = (dstOffset+d)/f - srcOffset selects a fractional
// input position; when s >= srcFrames-1 the last input frame is held,
// otherwise linear interpolation is performed between floor(s) and
// floor(s)+1.
func (r *LinearResampler) Resample(src []int16, srcFrames int, dst []int16, dstFrames int) (produced, consumed int) {
	if !r.Needed() {
		n := srcFrames
		if dstFrames < n {
			n = dstFrames
		}
		copy(dst[:n*r.numChannels], src[:n*r.numChannels])
		r.srcOffset += float64(n)
		r.dstOffset += float64(n)
		r.renormalize(srcFrames)
		return n, n
	}

	d := 0
	lastConsumed := 0
	for ; d < dstFrames; d++ {
		s := (r.dstOffset+float64(d))/r.f - r.srcOffset
		if s < 0 {
			s = 0
		}
		if s >= float64(srcFrames-1) {
			// Hold the last input frame; we've consumed all of src.
			frac := 0.0
			base := srcFrames - 1
			if base < 0 {
				base = 0
			}
			for c := 0; c < r.numChannels; c++ {
				dst[d*r.numChannels+c] = src[base*r.numChannels+c]
			}
			_ = frac
			lastConsumed = srcFrames
			continue
		}
		i0 := int(floorf(s))
		frac := s - float64(i0)
		for c := 0; c < r.numChannels; c++ {
			a := float64(src[i0*r.numChannels+c])
			b := float64(src[(i0+1)*r.numChannels+c])
			dst[d*r.numChannels+c] = int16(a + (b-a)*frac)
		}
		lastConsumed = i0 + 1
	}

	r.srcOffset += float64(lastConsumed)
	r.dstOffset += float64(d)
	r.renormalize(srcFrames)
	return d, lastConsumed
}

// renormalize periodically pulls src/dst offsets back toward zero once they
// exceed renormalizeThreshold, preserving their fractional relationship
// (phase) so output continues seamlessly.
func (r *LinearResampler) renormalize(srcFrames int) {
	if r.srcOffset < renormalizeThreshold && r.dstOffset < renormalizeThreshold {
		return
	}
	shift := r.srcOffset
	if r.dstOffset/r.f < shift {
		shift = r.dstOffset / r.f
	}
	r.srcOffset -= shift
	r.dstOffset -= shift * r.f
}

func floorf(x float64) float64 {
	i := float64(int64(x))
	if x < 0 && i != x {
		i--
	}
	return i
}

func ceilf(x float64) float64 {
	i := float64(int64(x))
	if x > 0 && i != x {
		i++
	}
	return i
}
