/*
NAME
  iodev.go

DESCRIPTION
  iodev.go defines IoDev, the external-facing device abstraction, its state
  machine, and the coarse/fine rate-estimation logic shared by every
  concrete device implementation (device/alsaio, device/wavio,
  device/flacio).

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package iodev defines the IoDev interface that every concrete device
// backend implements, plus the shared state machine and rate-estimation
// helpers the scheduler drives them through.
package iodev

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ausocean/cras/audio/area"
	"github.com/ausocean/cras/audio/crerr"
	"github.com/ausocean/cras/audio/format"
	"github.com/ausocean/cras/audio/stream"
)

// State is an IoDev's position in the OPEN -> NO_STREAM_RUN -> NORMAL_RUN
// state machine.
type State int

const (
	Open State = iota
	NoStreamRun
	NormalRun
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case NoStreamRun:
		return "no_stream_run"
	case NormalRun:
		return "normal_run"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Direction mirrors stream.Direction for device-level bookkeeping.
type Direction = stream.Direction

const (
	Playback = stream.Playback
	Capture  = stream.Capture
)

// Backend is the narrow interface a concrete device (ALSA, WAV file, FLAC
// file) implements; IoDev wraps one Backend with the shared state machine,
// rate estimation, and DevStream list.
type Backend interface {
	// Format returns the device's native PCM format.
	Format() format.PCMFormat

	// GetBuffer returns a contiguous AudioArea of up to maxFrames frames
	// ready for the caller to fill (playback) or drain (capture), and the
	// hardware timestamp associated with the current queue level.
	GetBuffer(maxFrames int) (a area.AudioArea, hwTstamp time.Time, err error)

	// PutBuffer commits nframes of the area returned by the most recent
	// GetBuffer call.
	PutBuffer(nframes int) error

	// FramesQueued returns the number of frames currently queued in
	// hardware (playback: not yet played; capture: not yet read), and the
	// hardware timestamp of that observation. A negative count signals a
	// severe error (e.g. the ALSA -EPIPE case).
	FramesQueued() (frames int, hwTstamp time.Time, err error)

	// Close releases the backend's resources.
	Close() error
}

// IoDev is an open device: direction, buffer sizing, state, and the list of
// DevStreams currently bound to it.
type IoDev struct {
	Backend Backend
	Dir     Direction

	MinCBLevel int
	MaxCBLevel int

	state State

	FramesPlayed   uint64
	SevereUnderrun uint64

	// CoarseRateAdjust is -1, 0, or +1: the sign nudge applied to the
	// device's estimated rate based on queue level.
	CoarseRateAdjust int
	EstimatedRatio   float64

	devStreams []*stream.DevStream

	// rate regression samples, used by UpdateRate's fine estimate.
	sampleTimes  []float64
	sampleLevels []float64
}

// New builds an IoDev wrapping backend, with the given min/max callback
// levels (in frames) used by the coarse rate-adjust heuristic.
func New(backend Backend, dir Direction, minCBLevel, maxCBLevel int) *IoDev {
	return &IoDev{
		Backend:        backend,
		Dir:            dir,
		MinCBLevel:     minCBLevel,
		MaxCBLevel:     maxCBLevel,
		state:          Open,
		EstimatedRatio: 1.0,
	}
}

// State returns the device's current state.
func (d *IoDev) State() State { return d.state }

// DevStreams returns the list of streams currently bound to this device.
func (d *IoDev) DevStreams() []*stream.DevStream { return d.devStreams }

// AttachStream adds ds to the device's stream list and, if this is the
// first stream the device has seen while idle, transitions to
// NORMAL_RUN.
func (d *IoDev) AttachStream(ds *stream.DevStream) {
	d.devStreams = append(d.devStreams, ds)
	if d.state == NoStreamRun || d.state == Open {
		d.state = NormalRun
	}
}

// RemoveStream removes ds from the device's stream list.
func (d *IoDev) RemoveStream(ds *stream.DevStream) {
	for i, s := range d.devStreams {
		if s == ds {
			d.devStreams = append(d.devStreams[:i], d.devStreams[i+1:]...)
			return
		}
	}
}

// PrepareOutputBeforeWriteSamples implements the NO_STREAM_RUN <->
// NORMAL_RUN transition, called every scheduler tick for each open output.
func (d *IoDev) PrepareOutputBeforeWriteSamples() {
	if d.Dir != Playback {
		return
	}
	switch {
	case len(d.devStreams) == 0 && (d.state == NormalRun || d.state == Open):
		d.state = NoStreamRun
	case len(d.devStreams) > 0 && d.state == NoStreamRun:
		d.state = NormalRun
	}
}

// severeUnderrunThreshold is the queued-frame level at or below which
// UpdateRate treats a FramesQueued report as a severe underrun (device
// reset requested) rather than leaving it to the mix loop's zero-fill.
const severeUnderrunThreshold = -1

// UpdateRate implements the per-tick rate-estimation step: compute the
// coarse sign from queue level against [min_cb_level/2, 2*max_cb_level],
// then fold (level, timestamp) into a linear regression of queued frames
// over time to produce a fine-grained estimated rate ratio. It returns
// whether the estimate changed enough that dependent DevStreams should be
// re-notified.
func (d *IoDev) UpdateRate(level int, hwTstamp time.Time) (changed bool, err error) {
	if level <= severeUnderrunThreshold {
		d.SevereUnderrun++
		return false, crerr.New(crerr.Xrun, "device reported severe underrun")
	}

	switch {
	case level < d.MinCBLevel/2:
		d.CoarseRateAdjust = 1
	case level > 2*d.MaxCBLevel:
		d.CoarseRateAdjust = -1
	default:
		d.CoarseRateAdjust = 0
	}

	d.sampleTimes = append(d.sampleTimes, float64(hwTstamp.UnixNano())/1e9)
	d.sampleLevels = append(d.sampleLevels, float64(level))
	const maxSamples = 64
	if len(d.sampleTimes) > maxSamples {
		d.sampleTimes = d.sampleTimes[len(d.sampleTimes)-maxSamples:]
		d.sampleLevels = d.sampleLevels[len(d.sampleLevels)-maxSamples:]
	}
	if len(d.sampleTimes) < 4 {
		return false, nil
	}

	// A device draining frames at exactly its nominal rate has queue level
	// decreasing at slope -1 against wall-clock seconds; the regression's
	// slope offset from -1 estimates the device's true rate error.
	_, slope := stat.LinearRegression(d.sampleTimes, d.sampleLevels, nil, false)
	newRatio := 1.0 + (-slope-(-1.0))
	if newRatio < 0.9 {
		newRatio = 0.9
	}
	if newRatio > 1.1 {
		newRatio = 1.1
	}

	const changeThreshold = 0.0005
	changed = absf(newRatio-d.EstimatedRatio) > changeThreshold
	d.EstimatedRatio = newRatio
	return changed, nil
}

// PushDevRate notifies every bound DevStream of this device's current
// rate, ratio, and master-ness.
func (d *IoDev) PushDevRate(masterRatio float64) {
	for _, ds := range d.devStreams {
		ds.SetDevRate(float64(d.Backend.Format().FrameRate), d.EstimatedRatio, masterRatio, d.CoarseRateAdjust)
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Close transitions the device to Closed and releases its backend.
func (d *IoDev) Close() error {
	d.state = Closed
	return d.Backend.Close()
}
