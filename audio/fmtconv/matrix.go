/*
NAME
  matrix.go

DESCRIPTION
  matrix.go builds the channel conversion matrix used by FormatConversion's
  channel up/down-mix stage, following the per-channel-count rules from
  spec.md §4.3.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package fmtconv

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ausocean/cras/audio/crerr"
	"github.com/ausocean/cras/audio/format"
)

// substitution lists the only channel substitutions the N->M permutation
// algorithm is allowed to use when a destination lacks a source channel.
var substitution = map[format.Channel]format.Channel{
	format.SL: format.RL,
	format.SR: format.RR,
}

// buildChannelMatrix returns an (outCh x inCh) matrix M such that
// y = M*x converts one frame from in's channel layout to out's.
func buildChannelMatrix(in, out format.PCMFormat) (*mat.Dense, error) {
	inCh, outCh := in.NumChannels, out.NumChannels
	switch {
	case inCh == 1 && outCh == 2:
		return oneToTwo(), nil
	case inCh == 2 && outCh == 1:
		return twoToOne(), nil
	case inCh == 1 && outCh == 6:
		return oneToSix(out.Layout), nil
	case inCh == 2 && outCh == 6:
		return twoToSix(in.Layout, out.Layout), nil
	case inCh == 6 && outCh == 2:
		return sixToTwo(in.Layout), nil
	case inCh == outCh:
		return samePermutation(in.Layout, out.Layout, inCh)
	default:
		return uniformAverage(inCh, outCh), nil
	}
}

func oneToTwo() *mat.Dense {
	return mat.NewDense(2, 1, []float64{1, 1})
}

func twoToOne() *mat.Dense {
	return mat.NewDense(1, 2, []float64{1, 1})
}

func oneToSix(out format.Layout) *mat.Dense {
	m := mat.NewDense(6, 1, nil)
	switch {
	case out.Has(format.FC):
		m.Set(int(format.FC), 0, 1)
	case out.Has(format.FL) && out.Has(format.FR):
		m.Set(int(format.FL), 0, 0.5)
		m.Set(int(format.FR), 0, 0.5)
	default:
		m.Set(0, 0, 1)
	}
	return m
}

func twoToSix(in, out format.Layout) *mat.Dense {
	m := mat.NewDense(6, 2, nil)
	fl, fr := 0, 1
	if in.Has(format.FL) {
		fl = in[format.FL]
	}
	if in.Has(format.FR) {
		fr = in[format.FR]
	}
	switch {
	case out.Has(format.FL) && out.Has(format.FR):
		m.Set(int(format.FL), fl, 1)
		m.Set(int(format.FR), fr, 1)
	case out.Has(format.FC):
		m.Set(int(format.FC), fl, 0.5)
		m.Set(int(format.FC), fr, 0.5)
	default:
		m.Set(0, fl, 1)
		m.Set(1, fr, 1)
	}
	return m
}

// downmixWeights are the CRAS-style 5.1 -> stereo downmix coefficients.
var downmixWeights = map[format.Channel]float64{
	format.FC:  0.707,
	format.FL:  1.0,
	format.SL:  1.0,
	format.RL:  0.866,
	format.RR:  0.5,
	format.LFE: 0.707,
}

func sixToTwo(in format.Layout) *mat.Dense {
	m := mat.NewDense(2, 6, nil)
	if !hasExplicitLayout(in) {
		// Simpler "ignore half of center" shortcut when the input carries
		// no explicit layout, assuming the default 5.1 channel order.
		in = format.Surround51()
		if in.Has(format.FL) {
			m.Set(0, in[format.FL], 1)
		}
		if in.Has(format.FR) {
			m.Set(1, in[format.FR], 1)
		}
		if in.Has(format.FC) {
			m.Set(0, in[format.FC], 0.5)
			m.Set(1, in[format.FC], 0.5)
		}
		normalizeRows(m)
		return m
	}

	setWeighted := func(row int, mirror bool) {
		for ch, w := range downmixWeights {
			src := ch
			if mirror {
				src = mirrorChannel(ch)
			}
			if in.Has(src) {
				m.Set(row, in[src], w)
			}
		}
	}
	setWeighted(0, false) // L row uses FL/SL/RL directly.
	setWeighted(1, true)  // R row uses the mirrored FR/SR/RR set.
	normalizeRows(m)
	return m
}

// mirrorChannel returns the left/right mirror of a channel used by the
// downmix weight table (FL<->FR, SL<->SR, RL<->RR); channels without a
// mirror (FC, LFE) map to themselves.
func mirrorChannel(c format.Channel) format.Channel {
	switch c {
	case format.FL:
		return format.FR
	case format.SL:
		return format.SR
	case format.RL:
		return format.RR
	case format.FR:
		return format.FL
	case format.SR:
		return format.SL
	case format.RR:
		return format.RL
	default:
		return c
	}
}

func hasExplicitLayout(l format.Layout) bool {
	for _, idx := range l {
		if idx != format.Absent {
			return true
		}
	}
	return false
}

// normalizeRows divides each row by the sum of its coefficients so the
// downmix doesn't clip when every contributing channel is at full scale.
func normalizeRows(m *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		var sum float64
		for j := 0; j < c; j++ {
			sum += m.At(i, j)
		}
		if sum <= 1 {
			continue
		}
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)/sum)
		}
	}
}

// samePermutation builds the matrix for an N->N conversion where the channel
// count matches but the layout differs (e.g. 6->6 with a different channel
// order). Each destination channel is matched to the same semantic source
// channel if present; otherwise the fixed substitution table is consulted.
// It's an error for a channel present in the input to have no destination
// and no legal substitute.
func samePermutation(in, out format.Layout, n int) (*mat.Dense, error) {
	m := mat.NewDense(n, n, nil)
	for ch := format.Channel(0); int(ch) < len(in); ch++ {
		if !in.Has(ch) {
			continue
		}
		src := in[ch]
		sub, hasSub := substitution[ch]
		switch {
		case out.Has(ch):
			m.Set(out[ch], src, 1)
		case hasSub && out.Has(sub):
			m.Set(out[sub], src, 1)
		default:
			return nil, crerr.New(crerr.InvalidArg, "conversion unsupported: no destination or substitute for "+ch.String())
		}
	}
	return m, nil
}

func uniformAverage(inCh, outCh int) *mat.Dense {
	m := mat.NewDense(outCh, inCh, nil)
	w := 1.0 / float64(inCh)
	for i := 0; i < outCh; i++ {
		for j := 0; j < inCh; j++ {
			m.Set(i, j, w)
		}
	}
	return m
}
