/*
NAME
  fmtconv.go

DESCRIPTION
  fmtconv.go implements FormatConversion, the configurable pipeline of up to
  five stages (pre-linear-resample, sample-format->S16, channel up/down-mix,
  polyphase SRC, post-linear-resample, sample-format->output) that converts
  one stream's PCM into a device's native format.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package fmtconv implements the stream <-> device format conversion
// pipeline: integer sample-format conversion, channel up/down-mix, and
// sample-rate conversion.
package fmtconv

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ausocean/cras/audio/crerr"
	"github.com/ausocean/cras/audio/format"
	"github.com/ausocean/cras/audio/resample"
)

// FormatConversion converts PCM from In's format to Out's format.
type FormatConversion struct {
	In, Out   format.PCMFormat
	MaxFrames int

	needInFormat  bool
	needOutFormat bool
	needChannel   bool
	needSRC       bool
	preLinear     bool

	matrixT *mat.Dense // In.NumChannels x Out.NumChannels, for batched Mul.
	poly    *resample.Polyphase
	linear  *resample.LinearResampler

	scratch [4][]int16
}

// needsChannelConversion implements the construction rule from spec.md
// §4.3: channel converter if channel counts differ, or if channel count
// exceeds 2 and the layouts differ.
func needsChannelConversion(in, out format.PCMFormat) bool {
	if in.NumChannels != out.NumChannels {
		return true
	}
	return in.NumChannels > 2 && in.Layout != out.Layout
}

// New builds a FormatConversion from in to out, sized for up to maxFrames
// input frames per Convert call. preLinearResample selects whether the
// always-present LinearResampler stage runs before or after the polyphase
// SRC stage.
func New(in, out format.PCMFormat, maxFrames int, preLinearResample bool) (*FormatConversion, error) {
	if maxFrames <= 0 {
		return nil, crerr.New(crerr.InvalidArg, "maxFrames must be positive")
	}
	if !in.Valid() || !out.Valid() {
		return nil, crerr.New(crerr.InvalidArg, "invalid PCM format")
	}

	fc := &FormatConversion{
		In:        in,
		Out:       out,
		MaxFrames: maxFrames,
		preLinear: preLinearResample,
	}

	fc.needInFormat = in.SampleFormat != format.S16LE
	fc.needOutFormat = out.SampleFormat != format.S16LE
	fc.needChannel = needsChannelConversion(in, out)
	fc.needSRC = in.FrameRate != out.FrameRate

	if fc.needChannel {
		m, err := buildChannelMatrix(in, out)
		if err != nil {
			return nil, err
		}
		var mt mat.Dense
		mt.CloneFrom(m.T())
		fc.matrixT = &mt
	}

	if fc.needSRC {
		fc.poly = resample.NewPolyphase(float64(in.FrameRate), float64(out.FrameRate), out.NumChannels)
		if preLinearResample {
			fc.poly = resample.NewPolyphase(float64(in.FrameRate), float64(out.FrameRate), in.NumChannels)
		}
	}
	fc.linear = resample.NewLinearResampler(out.NumChannels)

	maxCh := in.NumChannels
	if out.NumChannels > maxCh {
		maxCh = out.NumChannels
	}
	bufLen := maxFrames * maxCh * 4 // generous headroom for SRC up-sampling.
	for i := range fc.scratch {
		fc.scratch[i] = make([]int16, bufLen)
	}

	return fc, nil
}

// Needed reports whether any stage is active; if false, Convert is a pure
// byte copy (modulo format already matching).
func (fc *FormatConversion) Needed() bool {
	return fc.needInFormat || fc.needOutFormat || fc.needChannel || fc.needSRC || fc.linear.Needed()
}

// SetLinearRates configures the always-present linear resampler's to/from
// rates, used to track small device clock drift.
func (fc *FormatConversion) SetLinearRates(to, from float64) {
	fc.linear.SetRates(to, from)
}

// bytesToS16 unpacks raw bytes in sample format sf into dst (one int16 per
// sample, interleaved).
func bytesToS16(sf format.SampleFormat, src []byte, n int, dst []int16) {
	step := sf.Bytes()
	for i := 0; i < n; i++ {
		dst[i] = format.ToS16(sf, src[i*step:])
	}
}

// s16ToBytes packs interleaved int16 samples into raw bytes in sample format
// sf.
func s16ToBytes(sf format.SampleFormat, src []int16, n int, dst []byte) {
	step := sf.Bytes()
	for i := 0; i < n; i++ {
		format.FromS16(sf, src[i], dst[i*step:])
	}
}

// applyChannelMatrix converts frames of in.NumChannels-channel audio in src
// to fc.Out.NumChannels-channel audio in dst, using the batched gonum
// multiply y = x * M^T.
func (fc *FormatConversion) applyChannelMatrix(src []int16, frames int, dst []int16) {
	inCh, outCh := fc.In.NumChannels, fc.Out.NumChannels
	data := make([]float64, frames*inCh)
	for i := 0; i < frames*inCh; i++ {
		data[i] = float64(src[i])
	}
	inMat := mat.NewDense(frames, inCh, data)
	var outMat mat.Dense
	outMat.Mul(inMat, fc.matrixT)
	raw := outMat.RawMatrix().Data
	for i := 0; i < frames*outCh; i++ {
		v := raw[i]
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		dst[i] = int16(v)
	}
}

// Convert runs the active stages over inBytes (inFrames frames in In's
// format), writing up to outCapacity frames in Out's format to outBytes.
// It returns the number of frames written and the number of input frames
// actually consumed.
func (fc *FormatConversion) Convert(inBytes []byte, inFrames int, outBytes []byte, outCapacity int) (outFrames, consumedFrames int, err error) {
	if inFrames > fc.MaxFrames {
		return 0, 0, crerr.New(crerr.InvalidArg, "inFrames exceeds MaxFrames")
	}

	// Rule 1: with no polyphase SRC, clamp in_frames to the output capacity
	// (sample-for-sample, a resample-free pipeline cannot produce more
	// frames than it consumes).
	if !fc.needSRC && inFrames > outCapacity {
		inFrames = outCapacity
	}

	cur := fc.scratch[0][:inFrames*fc.In.NumChannels]
	if fc.needInFormat {
		bytesToS16(fc.In.SampleFormat, inBytes, inFrames*fc.In.NumChannels, cur)
	} else {
		for i := range cur {
			cur[i] = int16(uint16(inBytes[i*2]) | uint16(inBytes[i*2+1])<<8)
		}
	}
	frames := inFrames
	consumedFrames = inFrames

	if fc.preLinear && fc.linear.Needed() {
		next := fc.scratch[1]
		want := frames
		if fc.needSRC {
			// Convert the resample limit into the input-rate domain before
			// invoking the polyphase SRC, per spec.md §4.3 step 3.
			want = fc.linear.InFramesToOut(frames)
		}
		capCh := fc.Out.NumChannels
		if fc.needChannel {
			capCh = fc.In.NumChannels
		}
		produced, consumed := fc.linear.Resample(cur, frames, next, min(want, len(next)/max(1, capCh)))
		cur = next[:produced*capCh]
		frames = produced
		consumedFrames = consumed
	}

	if fc.needChannel {
		next := fc.scratch[2][: frames*fc.Out.NumChannels]
		fc.applyChannelMatrix(cur, frames, next)
		cur = next
	}

	if fc.needSRC {
		next := fc.scratch[3]
		ch := fc.Out.NumChannels
		cap := outCapacity
		if fc.needOutFormat || (!fc.preLinear && fc.linear.Needed()) {
			cap = len(next) / ch
		}
		produced, consumed := fc.poly.Convert(cur, frames, next[:cap*ch], cap)
		cur = next[:produced*ch]
		frames = produced
		if !fc.preLinear {
			consumedFrames = consumed
		}
	}

	if !fc.preLinear && fc.linear.Needed() {
		next := fc.scratch[1][: outCapacity*fc.Out.NumChannels]
		produced, _ := fc.linear.Resample(cur, frames, next, outCapacity)
		cur = next[:produced*fc.Out.NumChannels]
		frames = produced
	}

	if frames > outCapacity {
		frames = outCapacity
	}
	if fc.needOutFormat {
		s16ToBytes(fc.Out.SampleFormat, cur[:frames*fc.Out.NumChannels], frames*fc.Out.NumChannels, outBytes)
	} else {
		for i := 0; i < frames*fc.Out.NumChannels; i++ {
			v := uint16(cur[i])
			outBytes[i*2] = byte(v)
			outBytes[i*2+1] = byte(v >> 8)
		}
	}

	return frames, consumedFrames, nil
}

// InFramesToOut composes the pre/post linear-resample and polyphase stages
// to bound how many output frames n input frames will yield, so a scheduler
// can size buffers without running Convert.
func (fc *FormatConversion) InFramesToOut(n int) int {
	if fc.preLinear && fc.linear.Needed() {
		n = fc.linear.InFramesToOut(n)
	}
	if fc.needSRC {
		n = fc.poly.OutFramesForIn(n)
	}
	if !fc.preLinear && fc.linear.Needed() {
		n = fc.linear.InFramesToOut(n)
	}
	return n
}

// OutFramesToIn is the symmetric inverse of InFramesToOut.
func (fc *FormatConversion) OutFramesToIn(n int) int {
	if !fc.preLinear && fc.linear.Needed() {
		n = fc.linear.OutFramesToIn(n)
	}
	if fc.needSRC {
		n = fc.poly.InFramesForOut(n)
	}
	if fc.preLinear && fc.linear.Needed() {
		n = fc.linear.OutFramesToIn(n)
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
