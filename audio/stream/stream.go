/*
NAME
  stream.go

DESCRIPTION
  stream.go implements RStream, the server-side record of a client stream,
  and DevStream, a binding of one RStream to one device.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package stream implements RStream (a client's bound stream) and
// DevStream (the binding of one stream to one device), the layer that
// converts sample rate/channel count/format per device and keeps
// multi-device offsets aligned.
package stream

import (
	"time"

	"github.com/ausocean/utils/bitrate"

	"github.com/ausocean/cras/audio/area"
	"github.com/ausocean/cras/audio/crerr"
	"github.com/ausocean/cras/audio/fmtconv"
	"github.com/ausocean/cras/audio/format"
	"github.com/ausocean/cras/audio/ring"
	"github.com/ausocean/cras/audio/shm"
)

// Direction is the stream's data direction.
type Direction int

const (
	Playback Direction = iota
	Capture
)

// Stream flag bits.
const (
	// BulkAudioOK allows the stream to be serviced as soon as cb_threshold
	// worth of level is queued, rather than waiting strictly on next_cb_ts.
	BulkAudioOK uint32 = 1 << iota
	// UseDevTiming disables the stream's independent sleep interval in
	// favour of the device's own timing.
	UseDevTiming
)

// captureFuzz is the window before next_cb_ts in which a capture stream is
// still considered "on time" for capture_update_rstream.
const captureFuzz = time.Millisecond

// RStream is the server-side record of one client stream.
type RStream struct {
	ID        uint32
	Dir       Direction
	Format    format.PCMFormat
	BufFrames int
	CBThresh  int
	Flags     uint32

	Shm *shm.SharedMemoryRegion

	NextCBTs          time.Time
	SleepInterval     time.Duration
	LongestFetchIvl   time.Duration

	Volume float64
	Muted  bool

	// bitrate tracks this stream's actual byte throughput the same way
	// revid.Revid tracks its encoder output, so DUMP_THREAD_INFO can report
	// a live figure instead of the nominal rate implied by Format.
	bitrate bitrate.Calculator

	devices []*DevStream
}

// NewRStream builds an RStream with a SharedMemoryRegion sized for
// bufFrames frames of f.
func NewRStream(id uint32, dir Direction, f format.PCMFormat, bufFrames, cbThresh int, flags uint32) *RStream {
	return &RStream{
		ID:        id,
		Dir:       dir,
		Format:    f,
		BufFrames: bufFrames,
		CBThresh:  cbThresh,
		Flags:     flags,
		Shm:       shm.New(bufFrames*f.FrameBytes(), f.FrameBytes()),
		Volume:    1.0,
	}
}

// HasFlag reports whether a stream flag bit is set.
func (r *RStream) HasFlag(bit uint32) bool { return r.Flags&bit != 0 }

// Bitrate returns the stream's most recently measured throughput, in bits
// per second, the same figure revid.Revid.Bitrate reports for its encoder
// output.
func (r *RStream) Bitrate() int { return r.bitrate.Bitrate() }

// Devices returns the list of DevStreams this RStream is attached to.
func (r *RStream) Devices() []*DevStream { return r.devices }

// DrainMillis returns the milliseconds of output remaining in the shm,
// per the DRAIN_STREAM command's contract.
func (r *RStream) DrainMillis() int {
	frames := r.Shm.Level() / r.Format.FrameBytes()
	return 1 + frames*1000/int(r.Format.FrameRate)
}

// DevStream binds one RStream to one device, owning the FormatConversion
// and ByteBuffer needed to bridge the stream's format to the device's.
type DevStream struct {
	Stream *RStream
	Master bool

	devFormat format.PCMFormat
	conv      *fmtconv.FormatConversion
	scratch   *ring.ByteBuffer

	// devOffset is this device's write (capture) or read (playback) offset
	// into the stream, in frames, used to align multiple devices sharing
	// one stream.
	devOffset int

	// coarseAdjustments counts non-master drift corrections applied by
	// SetDevRate within the current one-minute window, mirroring
	// dev_stream.c's clamped per-minute logging of the 3 Hz coarse step.
	coarseAdjustments int
	windowStart       time.Time
}

// DevStreamStats is the DUMP_THREAD_INFO snapshot of one device binding.
type DevStreamStats struct {
	CoarseAdjustments int
}

// Stats returns the device binding's coarse rate-adjust count for the
// current one-minute window.
func (ds *DevStream) Stats() DevStreamStats {
	return DevStreamStats{CoarseAdjustments: ds.coarseAdjustments}
}

// NewDevStream builds a DevStream binding rs to a device whose native
// format is devFormat, with a FormatConversion sized for maxFrames and the
// linear-resample stage placed pre- or post-polyphase per preLinear.
func NewDevStream(rs *RStream, devFormat format.PCMFormat, maxFrames int, preLinear bool) (*DevStream, error) {
	in, out := rs.Format, devFormat
	if rs.Dir == Capture {
		in, out = devFormat, rs.Format
	}
	conv, err := fmtconv.New(in, out, maxFrames, preLinear)
	if err != nil {
		return nil, err
	}
	ds := &DevStream{
		Stream:    rs,
		devFormat: devFormat,
		conv:      conv,
		scratch:   ring.New(maxFrames * 4 * devFormat.FrameBytes()),
	}
	rs.devices = append(rs.devices, ds)
	return ds, nil
}

// SetDevRate implements dev_stream_set_dev_rate: master devices get an
// unadjusted linear-resample rate and a freshly computed sleep interval;
// non-master devices get a drift-corrected rate with a coarse step applied.
func (ds *DevStream) SetDevRate(devRate, devRatio, masterRatio float64, coarseAdj int) {
	const coarseStep = 3.0 // Hz.
	if ds.Master {
		ds.conv.SetLinearRates(devRate, devRate)
		ds.Stream.SleepInterval = time.Duration(float64(ds.Stream.CBThresh) /
			(float64(ds.Stream.Format.FrameRate) * devRatio) * float64(time.Second))
		return
	}
	target := devRate*devRatio/masterRatio + coarseStep*float64(coarseAdj)
	ds.conv.SetLinearRates(target, devRate)

	if coarseAdj == 0 {
		return
	}
	now := time.Now()
	if now.Sub(ds.windowStart) > time.Minute {
		ds.windowStart = now
		ds.coarseAdjustments = 0
	}
	ds.coarseAdjustments++
}

// Capture implements the capture-side copy described in spec.md §4.6: with
// no format conversion, copy directly via AudioArea::copy against the
// device area; otherwise convert through the scratch ByteBuffer first.
func (ds *DevStream) Capture(devArea area.AudioArea, areaOffset int, gain float64) (framesCaptured int, err error) {
	if !ds.conv.Needed() {
		buf, frames := ds.Stream.Shm.WritePointer()
		streamArea := area.New(ds.Stream.Format, buf, frames/ds.Stream.Format.FrameBytes())
		n := area.Copy(streamArea, 0, devArea, areaOffset, gain)
		ds.Stream.Shm.BufferWritten(n)
		ds.devOffset += n
		ds.Stream.bitrate.Report(n * ds.Stream.Format.FrameBytes())
		return n, nil
	}

	// Convert device-format bytes into the scratch ByteBuffer first.
	devFrameBytes := ds.devFormat.FrameBytes()
	wBuf := ds.scratch.WritePointer()
	wFrames := min(ds.scratch.WritableBytes()/devFrameBytes, devArea.Frames-areaOffset)
	if wFrames > 0 {
		flat := area.New(ds.devFormat, wBuf, wFrames)
		area.Copy(flat, 0, devArea, areaOffset, gain)
		ds.scratch.IncrementWrite(wFrames * devFrameBytes)
	}

	// Second pass: convert as many whole frames as fit from the scratch
	// buffer into the client's shm at its write pointer. The per-device
	// offset does not place the frames; it is only advanced by them.
	outBuf, outAvail := ds.Stream.Shm.WritePointer()
	rBytes := ds.scratch.ReadableBytes()
	rFrames := rBytes / devFrameBytes
	produced, consumed, cErr := ds.conv.Convert(ds.scratch.ReadPointer(), rFrames, outBuf, outAvail/ds.Stream.Format.FrameBytes())
	if cErr != nil {
		return 0, cErr
	}
	ds.scratch.IncrementRead(consumed * devFrameBytes)
	ds.Stream.Shm.BufferWritten(produced)
	ds.devOffset += produced
	ds.Stream.bitrate.Report(produced * ds.Stream.Format.FrameBytes())
	return produced, nil
}

// CaptureAvail returns min(shm writable frames, byte-buffer free space
// converted to input frames), the bound used to size a capture request.
func (ds *DevStream) CaptureAvail() int {
	_, shmAvail := ds.Stream.Shm.WritePointer()
	shmFrames := shmAvail / ds.Stream.Format.FrameBytes()
	if !ds.conv.Needed() {
		return shmFrames
	}
	devFrameBytes := ds.devFormat.FrameBytes()
	scratchFrames := ds.scratch.WritableBytes() / devFrameBytes
	converted := ds.conv.OutFramesToIn(shmFrames)
	if scratchFrames < converted {
		return scratchFrames
	}
	return converted
}

// CaptureUpdateRStream implements capture_update_rstream: decides whether
// it's time to post a ready buffer to the client, and if so advances
// next_cb_ts.
func (ds *DevStream) CaptureUpdateRStream(now time.Time) bool {
	rs := ds.Stream
	ready := false
	if rs.HasFlag(BulkAudioOK) && rs.Shm.Level() >= rs.CBThresh*rs.Format.FrameBytes() {
		ready = true
	}
	if now.After(rs.NextCBTs.Add(-captureFuzz)) {
		ready = true
	}
	if !ready {
		return false
	}
	rs.NextCBTs = rs.NextCBTs.Add(rs.SleepInterval)
	if rs.NextCBTs.Before(now) {
		rs.NextCBTs = now.Add(rs.SleepInterval)
	}
	return true
}

// Mix implements the playback-side mix described in spec.md §4.6: read up
// to min(readable, remaining) frames from the shm, convert, and add-scale
// into dst respecting mute/volume. Returns the number of frames mixed.
func (ds *DevStream) Mix(dst area.AudioArea, numFrames int) (framesMixed int, err error) {
	rs := ds.Stream
	if rs.Muted {
		return 0, nil
	}

	remaining := numFrames
	mixed := 0
	for remaining > 0 {
		ptr, readable := rs.Shm.GetReadableFrames(ds.devOffset)
		if readable == 0 {
			break
		}
		n := min(readable, remaining)

		var srcArea area.AudioArea
		if !ds.conv.Needed() {
			srcArea = area.New(rs.Format, ptr, n)
		} else {
			outBuf := make([]byte, n*ds.devFormat.FrameBytes()*4)
			produced, _, cErr := ds.conv.Convert(ptr, n, outBuf, n*4)
			if cErr != nil {
				return mixed, cErr
			}
			srcArea = area.New(ds.devFormat, outBuf, produced)
			n = produced
		}
		if n == 0 {
			break
		}
		area.Copy(dst, mixed, srcArea, 0, rs.Volume)
		rs.Shm.BufferRead(n)
		mixed += n
		remaining -= n
	}
	rs.bitrate.Report(mixed * rs.Format.FrameBytes())
	return mixed, nil
}

// DevOffset returns this device's current per-device offset into the
// stream, in frames.
func (ds *DevStream) DevOffset() int { return ds.devOffset }

// SetDevOffset sets this device's per-device offset, clamped to the
// stream's cb_threshold. Used by the append-stream policy: when a new
// stream joins a device that already has streams, the new stream's offset
// is seeded from an existing one so different streams don't read the
// device at different points.
func (ds *DevStream) SetDevOffset(n int) {
	if n > ds.Stream.CBThresh {
		n = ds.Stream.CBThresh
	}
	ds.devOffset = n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Validate checks the stream's PCM format and buffer sizing are usable.
func (r *RStream) Validate() error {
	if !r.Format.Valid() {
		return crerr.New(crerr.InvalidArg, "invalid stream PCM format")
	}
	if r.CBThresh <= 0 || r.CBThresh > r.BufFrames {
		return crerr.New(crerr.InvalidArg, "cb_threshold must be in (0, buffer_frames]")
	}
	return nil
}
