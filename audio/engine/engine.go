/*
NAME
  engine.go

DESCRIPTION
  engine.go implements AudioThread, the scheduler that drives every open
  device through fetch/mix/write or capture/dispatch phases each tick and
  computes the next wake deadline. In this Go rendition the cooperative
  single real-time thread is reproduced as a single goroutine receiving
  commands over a channel rather than a ppoll'd pipe, which lets the rest
  of the engine keep the synchronous command/ack contract from spec.md §4.8
  without binding to OS thread scheduling primitives.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package engine implements AudioThread, the real-time scheduler that
// drives every open device and mixes client streams onto them.
package engine

import (
	"time"

	"github.com/ausocean/cras/audio/crerr"
	"github.com/ausocean/cras/audio/fmtconv"
	"github.com/ausocean/cras/audio/iodev"
	"github.com/ausocean/cras/audio/stream"
	"github.com/ausocean/utils/logging"
)

// CommandID identifies a main-thread -> audio-thread command.
type CommandID int

const (
	AddOpenDev CommandID = iota
	RmOpenDev
	AddStream
	DisconnectStream
	DrainStream
	ConfigGlobalRemix
	DevStartRamp
	DumpThreadInfo
	RemoveCallback
	Stop
)

// RampRequest selects the kind of DEV_START_RAMP transition requested.
type RampRequest int

const (
	RampUpUnmute RampRequest = iota
	RampDownMute
	RampUpStart
)

// Command is one entry in the synchronous command protocol: the worker
// always sends exactly one Reply before processing the next Command.
type Command struct {
	ID          CommandID
	Dev         *iodev.IoDev
	Devs        []*iodev.IoDev
	RStream     *stream.RStream
	PreLinear   bool
	Remix       *fmtconv.Remix
	Ramp        RampRequest
	CallbackFD  int
	Reply       chan Reply
}

// Reply is the worker's synchronous acknowledgement of a Command.
type Reply struct {
	Err        error
	Millis     int // DrainStream result.
	OldRemix   *fmtconv.Remix
	ThreadInfo ThreadInfo
}

// ThreadInfo is the snapshot DUMP_THREAD_INFO returns.
type ThreadInfo struct {
	OpenOutputs int
	OpenInputs  int
	NumStreams  int
	Streams     []StreamInfo
}

// StreamInfo is one RStream's entry in a ThreadInfo snapshot.
type StreamInfo struct {
	ID                uint32
	BitsPerSecond     int
	CoarseAdjustments int
}

// devEntry is one open device in the worker's output or input list. The
// DevStreams bound to it are tracked on the iodev.IoDev itself via
// AttachStream, not here.
type devEntry struct {
	dev    *iodev.IoDev
	master bool
}

// AudioThread is the scheduler: one instance per server, driven by Run in
// its own goroutine.
type AudioThread struct {
	log logging.Logger

	commands chan Command

	// resetRequests is the worker -> main side channel spec.md §4.7's
	// severe-underrun handling sends on: the device stays in the open_devs
	// list (outputs/inputs below) for the main thread to reset, the worker
	// never closes or reopens it itself.
	resetRequests chan *iodev.IoDev

	outputs []*devEntry
	inputs  []*devEntry

	remix *fmtconv.Remix

	drainLimits map[*stream.DevStream]int

	// sleepCap bounds fill_next_sleep_interval's computed deadline, per
	// spec.md §4.8 step 2.
	sleepCap time.Duration

	stopped bool
}

// New builds an AudioThread. Commands must be sent via Commands() and each
// must carry a Reply channel; Run drains them in its event loop.
func New(log logging.Logger) *AudioThread {
	return &AudioThread{
		log:           log,
		commands:      make(chan Command, 16),
		resetRequests: make(chan *iodev.IoDev, 16),
		drainLimits:   make(map[*stream.DevStream]int),
		sleepCap:      20 * time.Second,
	}
}

// Commands returns the channel callers send synchronous Commands on.
func (t *AudioThread) Commands() chan<- Command { return t.commands }

// ResetRequests returns the side channel the worker posts a device to when
// it hits a severe under/overrun it cannot recover from itself (spec.md
// §4.7): the main thread is expected to drain this channel and reset (close
// and reopen) the named device. The device is left in the open_devs list
// until then.
func (t *AudioThread) ResetRequests() <-chan *iodev.IoDev { return t.resetRequests }

// requestReset posts d on the reset-request side channel without blocking
// the scheduler tick; if the channel is full (the main thread isn't
// draining it) the request is dropped and logged rather than stalling audio
// I/O on every other device.
func (t *AudioThread) requestReset(d *iodev.IoDev) {
	select {
	case t.resetRequests <- d:
	default:
		t.log.Error("reset request channel full, dropping request", "device", d)
	}
}

// Run is the scheduler's main loop: computed-timeout wait, tick, repeat,
// until a Stop command is processed. It is meant to run in its own
// goroutine; it attempts to raise its OS thread to SCHED_FIFO priority
// first (non-fatal on failure, since that requires CAP_SYS_NICE and many
// deployments run without it).
func (t *AudioThread) Run() {
	if err := setRealtimePriority(); err != nil {
		t.log.Warning("could not acquire realtime scheduling", "error", err)
	}

	timer := time.NewTimer(t.sleepCap)
	defer timer.Stop()

	for !t.stopped {
		t.tick()
		sleep := t.fillNextSleepInterval()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(sleep)

		select {
		case cmd := <-t.commands:
			t.dispatch(cmd)
		case <-timer.C:
		}
	}
}

// tick runs stream_dev_io: fetch playback samples, run capture, and drain
// any commands that arrived without blocking the audio path.
func (t *AudioThread) tick() {
	now := time.Now()
	t.doCapture(now)
	t.doPlayback(now)

	for {
		select {
		case cmd := <-t.commands:
			t.dispatch(cmd)
		default:
			return
		}
	}
}

// fillNextSleepInterval computes the scheduler's next wake deadline: the
// minimum over every stream's next_cb_ts and every device's wake time,
// capped at sleepCap and floored at zero.
func (t *AudioThread) fillNextSleepInterval() time.Duration {
	now := time.Now()
	soonest := now.Add(t.sleepCap)

	for _, e := range t.outputs {
		for _, ds := range e.dev.DevStreams() {
			if ds.Stream.NextCBTs.Before(soonest) {
				soonest = ds.Stream.NextCBTs
			}
		}
	}
	for _, e := range t.inputs {
		for _, ds := range e.dev.DevStreams() {
			wake := inputWakeTime(ds, now)
			if wake.Before(soonest) {
				soonest = wake
			}
		}
	}

	d := soonest.Sub(now)
	if d < 0 {
		d = 0
	}
	if d > t.sleepCap {
		d = t.sleepCap
	}
	return d
}

// inputWakeTime returns the wake time for a capture stream: the stream's
// own next_cb_ts. It does not consult the device's queued level or
// timestamp, so it neither skips the wait when the device already holds
// cb_threshold frames nor estimates the device's fill time.
func inputWakeTime(ds *stream.DevStream, now time.Time) time.Time {
	return ds.Stream.NextCBTs
}

func (t *AudioThread) doCapture(now time.Time) {
	for _, e := range t.inputs {
		d := e.dev
		if d.State() == iodev.Closed {
			continue
		}
		a, _, err := d.Backend.GetBuffer(4096)
		if err != nil {
			t.log.Error("capture GetBuffer failed", "error", err)
			continue
		}
		if a.Frames == 0 {
			continue
		}
		offset := 0
		for _, ds := range d.DevStreams() {
			n, cErr := ds.Capture(a, offset, 1.0)
			if cErr != nil {
				t.log.Error("stream capture failed", "error", cErr)
				continue
			}
			_ = n
		}
		if err := d.Backend.PutBuffer(a.Frames); err != nil {
			t.log.Error("capture PutBuffer failed", "error", err)
		}
		for _, ds := range d.DevStreams() {
			if ds.CaptureUpdateRStream(now) {
				// Ready buffer posted; client-visible via the shm's
				// write_offset being advanced (§5 ordering guarantee).
			}
		}
	}
}

func (t *AudioThread) doPlayback(now time.Time) {
	for _, e := range t.outputs {
		d := e.dev
		d.PrepareOutputBeforeWriteSamples()
		if d.State() != iodev.NormalRun {
			continue
		}

		level, hwTs, err := d.Backend.FramesQueued()
		if err != nil {
			t.log.Error("playback device returned an error, removing device", "error", err)
			t.removeOutput(d)
			continue
		}

		changed, rErr := d.UpdateRate(level, hwTs)
		if rErr != nil {
			if kind, ok := crerr.KindOf(rErr); ok && kind == crerr.Xrun {
				t.log.Warning("severe output underrun, requesting device reset", "device", d)
				t.requestReset(d)
			} else {
				t.log.Error("update rate failed", "error", rErr)
			}
			continue
		}
		if changed {
			d.PushDevRate(1.0)
		}

		a, _, gErr := d.Backend.GetBuffer(d.MaxCBLevel)
		if gErr != nil {
			t.log.Error("playback GetBuffer failed", "error", gErr)
			continue
		}
		if t.remix != nil && t.remix.Needed() {
			// The installed global remix is not applied to the mixed
			// buffer here, and no backend applies it before PutBuffer.
		}

		playbackFrames := make(map[*stream.DevStream]int)
		for _, ds := range d.DevStreams() {
			playbackFrames[ds] = a.Frames
		}
		written, wErr := iodev.WriteStreams(a, d.DevStreams(), t.drainLimits, playbackFrames)
		if wErr != nil {
			t.log.Error("write_streams failed", "error", wErr)
			continue
		}
		if err := d.Backend.PutBuffer(written); err != nil {
			t.log.Error("playback PutBuffer failed", "error", err)
			continue
		}
		d.FramesPlayed += uint64(written)
	}
}

func (t *AudioThread) removeOutput(d *iodev.IoDev) {
	for i, e := range t.outputs {
		if e.dev == d {
			t.outputs = append(t.outputs[:i], t.outputs[i+1:]...)
			return
		}
	}
}

func (t *AudioThread) removeInput(d *iodev.IoDev) {
	for i, e := range t.inputs {
		if e.dev == d {
			t.inputs = append(t.inputs[:i], t.inputs[i+1:]...)
			return
		}
	}
}
