/*
NAME
  remix.go

DESCRIPTION
  remix.go implements a standalone N x N channel remix of an
  operator-supplied coefficient matrix, independent of the per-stream
  FormatConversion pipeline. CONFIG_GLOBAL_REMIX installs one on the
  AudioThread; the engine does not apply it to device output.

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
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ausocean/cras/audio/crerr"
)

// Remix applies a fixed NxN coefficient matrix to interleaved S16LE frames,
// in place. It is distinct from the channel up/down-mix built by
// buildChannelMatrix: Remix never changes the channel count, and is meant
// for operator-configured effects (e.g. routing all channels to mono,
// swapping left/right) applied at the device's output stage.
type Remix struct {
	numChannels int
	identity    bool
	coeffT      *mat.Dense
}

// NewRemix builds a Remix from a row-major numChannels x numChannels
// coefficient matrix. If coeffs is the identity matrix, Remix is marked as a
// no-op so Apply can skip the multiply entirely.
func NewRemix(numChannels int, coeffs []float64) (*Remix, error) {
	if numChannels <= 0 {
		return nil, crerr.New(crerr.InvalidArg, "numChannels must be positive")
	}
	if len(coeffs) != numChannels*numChannels {
		return nil, crerr.New(crerr.InvalidArg, "coeffs length must be numChannels^2")
	}

	r := &Remix{numChannels: numChannels}
	r.identity = isIdentity(numChannels, coeffs)
	if r.identity {
		return r, nil
	}

	m := mat.NewDense(numChannels, numChannels, coeffs)
	var mt mat.Dense
	mt.CloneFrom(m.T())
	r.coeffT = &mt
	return r, nil
}

func isIdentity(n int, coeffs []float64) bool {
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if coeffs[i*n+j] != want {
				return false
			}
		}
	}
	return true
}

// Needed reports whether Apply does any work.
func (r *Remix) Needed() bool { return !r.identity }

// Apply remixes frames frames of interleaved S16LE audio in buf, in place.
func (r *Remix) Apply(buf []int16, frames int) {
	if r.identity {
		return
	}

	n := r.numChannels
	data := make([]float64, frames*n)
	for i := range data {
		data[i] = float64(buf[i])
	}
	in := mat.NewDense(frames, n, data)
	var out mat.Dense
	out.Mul(in, r.coeffT)

	raw := out.RawMatrix().Data
	for i := 0; i < frames*n; i++ {
		v := raw[i]
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		buf[i] = int16(v)
	}
}
