/*
NAME
  crasplot - plots the polyphase resampler's frequency response.

DESCRIPTION
  crasplot is a small diagnostic tool, in the style of exp/pcm/resample's
  flag-driven main, that designs a polyphase converter for a given
  from/to sample rate pair and plots the magnitude response of its
  kernel so the filter's passband and stopband attenuation can be
  inspected visually.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main implements crasplot, a frequency-response plotting tool
// for the engine's polyphase resampler.
package main

import (
	"flag"
	"log"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ausocean/cras/audio/resample"
)

func main() {
	from := flag.Float64("from", 48000, "input sample rate, Hz")
	to := flag.Float64("to", 44100, "output sample rate, Hz")
	points := flag.Int("n", 1024, "FFT size used to compute the response")
	phase := flag.Int("phase", 0, "polyphase branch to plot, in [0, 32)")
	out := flag.String("out", "response.png", "output PNG path")
	flag.Parse()

	p := resample.NewPolyphase(*from, *to, 1)
	mag := p.FrequencyResponse(*phase, *points)

	pts := make(plotter.XYs, len(mag))
	nyquist := math.Min(*from, *to) / 2
	for i, m := range mag {
		pts[i].X = nyquist * float64(i) / float64(len(mag))
		db := -300.0
		if m > 0 {
			db = 10 * math.Log10(m)
		}
		pts[i].Y = db
	}

	plt := plot.New()
	plt.Title.Text = "Polyphase resampler frequency response"
	plt.X.Label.Text = "Frequency (Hz)"
	plt.Y.Label.Text = "Magnitude (dB)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		log.Fatalf("crasplot: building line plotter: %v", err)
	}
	plt.Add(line)
	plt.Add(plotter.NewGrid())

	if err := plt.Save(8*vg.Inch, 4*vg.Inch, *out); err != nil {
		log.Fatalf("crasplot: saving plot: %v", err)
	}
}
