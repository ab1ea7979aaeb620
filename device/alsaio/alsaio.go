/*
NAME
  alsaio.go

DESCRIPTION
  alsaio.go implements iodev.Backend over a real ALSA PCM device, adapting
  the open/negotiate sequence and pool.Buffer ring-glue pattern from
  device/alsa/alsa.go to the engine's pull-based GetBuffer/PutBuffer
  contract instead of a push io.Reader.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package alsaio adapts a hardware ALSA PCM device to the iodev.Backend
// interface, for both capture and playback.
package alsaio

import (
	"errors"
	"fmt"
	"time"

	yalsa "github.com/yobert/alsa"

	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"

	"github.com/ausocean/cras/audio/area"
	"github.com/ausocean/cras/audio/crerr"
	"github.com/ausocean/cras/audio/format"
	"github.com/ausocean/cras/audio/iodev"
)

const (
	rbLen     = 200
	rbTimeout = 100 * time.Millisecond
	pbSize    = 11520000 // 60 seconds of pcm data, matching device/alsa's sizing.

	wantPeriod = 0.05 // seconds; a sensible low-ish latency period.
)

// rates is tried in ascending order when negotiating a hardware sample
// rate that is a whole multiple of the requested rate.
var rates = [8]int{8000, 16000, 32000, 44100, 48000, 88200, 96000, 192000}

// Device adapts a yobert/alsa PCM device to iodev.Backend.
type Device struct {
	l    logging.Logger
	dir  iodev.Direction
	dev  *yalsa.Device
	f    format.PCMFormat
	buf  *pool.Buffer // decouples blocking ALSA reads/writes from the engine tick.
	curr area.AudioArea
}

// Open finds and configures an ALSA PCM device matching title (or the
// first matching device if title is empty) for the given direction and
// requested format, and returns a ready-to-run Device.
func Open(l logging.Logger, dir iodev.Direction, title string, want format.PCMFormat) (*Device, error) {
	cards, err := yalsa.OpenCards()
	if err != nil {
		return nil, crerr.Wrap(crerr.IoError, "opening sound cards", err)
	}
	defer yalsa.CloseCards(cards)

	var found *yalsa.Device
	for _, card := range cards {
		devices, err := card.Devices()
		if err != nil {
			continue
		}
		for _, dev := range devices {
			if dev.Type != yalsa.PCM {
				continue
			}
			wantPlayback := dir == iodev.Playback
			if wantPlayback && !dev.Play {
				continue
			}
			if !wantPlayback && !dev.Record {
				continue
			}
			if dev.Title == title || title == "" {
				found = dev
				break
			}
		}
	}
	if found == nil {
		return nil, crerr.New(crerr.IoError, "no matching ALSA device found")
	}

	l.Debug("opening ALSA device", "title", found.Title)
	if err := found.Open(); err != nil {
		return nil, crerr.Wrap(crerr.IoError, "opening device", err)
	}

	channels, err := found.NegotiateChannels(want.NumChannels)
	if err != nil {
		found.Close()
		return nil, crerr.Wrap(crerr.IoError, "negotiating channels", err)
	}

	rate, err := negotiateRate(found, int(want.FrameRate))
	if err != nil {
		found.Close()
		return nil, err
	}

	aFmt, bitdepth, err := negotiateFormat(found, want.SampleFormat)
	if err != nil {
		found.Close()
		return nil, err
	}
	_ = aFmt

	bytesPerSecond := rate * channels * (bitdepth / 8)
	wantPeriodSize := int(float64(bytesPerSecond) * wantPeriod)
	periodSize, err := found.NegotiatePeriodSize(nearestPowerOfTwo(wantPeriodSize))
	if err != nil {
		found.Close()
		return nil, crerr.Wrap(crerr.IoError, "negotiating period size", err)
	}
	if _, err := found.NegotiateBufferSize(periodSize * 4); err != nil {
		found.Close()
		return nil, crerr.Wrap(crerr.IoError, "negotiating buffer size", err)
	}
	if err := found.Prepare(); err != nil {
		found.Close()
		return nil, crerr.Wrap(crerr.IoError, "preparing device", err)
	}

	actual := format.NewPCMFormat(want.SampleFormat, uint(rate), channels)
	d := &Device{
		l:   l,
		dir: dir,
		dev: found,
		f:   actual,
		buf: pool.NewBuffer(rbLen, actual.FrameBytes()*periodSize, rbTimeout),
	}
	pool.MaxAlloc(pbSize * 2)
	if dir == iodev.Capture {
		go d.captureLoop(periodSize)
	}
	return d, nil
}

// captureLoop continuously reads fixed-size periods from the ALSA device
// and feeds them into the pool ring, decoupling the engine's nonblocking
// tick from ALSA's blocking Read, following device/alsa's chunkingRead
// pattern.
func (d *Device) captureLoop(periodFrames int) {
	chunk := make([]byte, periodFrames*d.f.FrameBytes())
	for {
		if err := d.dev.Read(chunk); err != nil {
			d.l.Warning("alsaio: capture read failed", "error", err)
			time.Sleep(rbTimeout)
			continue
		}
		if _, err := d.buf.Write(chunk); err != nil {
			d.l.Warning("alsaio: capture ring overrun", "error", err)
		}
	}
}

func negotiateRate(dev *yalsa.Device, want int) (int, error) {
	for _, r := range rates {
		if r < want {
			continue
		}
		if r%want == 0 {
			rate, err := dev.NegotiateRate(r)
			if err == nil {
				return rate, nil
			}
		}
	}
	rate, err := dev.NegotiateRate(want)
	if err != nil {
		return 0, crerr.Wrap(crerr.IoError, "negotiating rate", err)
	}
	return rate, nil
}

func negotiateFormat(dev *yalsa.Device, sf format.SampleFormat) (yalsa.FormatType, int, error) {
	var want yalsa.FormatType
	var bits int
	switch sf {
	case format.S16LE:
		want, bits = yalsa.S16_LE, 16
	case format.S32LE:
		want, bits = yalsa.S32_LE, 32
	default:
		return 0, 0, crerr.New(crerr.InvalidArg, fmt.Sprintf("unsupported ALSA sample format %s", sf))
	}
	got, err := dev.NegotiateFormat(want)
	if err != nil {
		return 0, 0, crerr.Wrap(crerr.IoError, "negotiating format", err)
	}
	return got, bits, nil
}

func nearestPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Format returns the device's negotiated native PCM format.
func (d *Device) Format() format.PCMFormat { return d.f }

// GetBuffer returns up to maxFrames frames of scratch space as an
// AudioArea. For capture, it blocks on a hardware read through the pool
// buffer; for playback, it returns zeroed scratch space the caller fills.
func (d *Device) GetBuffer(maxFrames int) (area.AudioArea, time.Time, error) {
	frameBytes := d.f.FrameBytes()
	if d.dir == iodev.Capture {
		chunk, err := d.buf.Next(rbTimeout)
		if err != nil {
			return area.AudioArea{}, time.Time{}, crerr.Wrap(crerr.IoError, "reading capture chunk", err)
		}
		frames := len(chunk) / frameBytes
		if frames > maxFrames {
			frames = maxFrames
		}
		d.curr = area.New(d.f, chunk, frames)
		return d.curr, time.Now(), nil
	}

	buf := make([]byte, maxFrames*frameBytes)
	d.curr = area.New(d.f, buf, maxFrames)
	return d.curr, time.Now(), nil
}

// PutBuffer commits nframes of the most recent GetBuffer call. For
// playback this writes to hardware; for capture the buffer was already
// consumed from the pool ring and this is a no-op.
func (d *Device) PutBuffer(nframes int) error {
	if d.dir == iodev.Capture {
		return nil
	}
	if len(d.curr.Channels) == 0 {
		return errors.New("alsaio: PutBuffer called before GetBuffer")
	}
	data := d.curr.Channels[0].Buf[:nframes*d.f.FrameBytes()]
	if err := d.dev.Write(data); err != nil {
		return crerr.Wrap(crerr.IoError, "writing playback samples", err)
	}
	return nil
}

// FramesQueued reports d.buf.Len(), the current length of the pool ring
// between the ALSA I/O and the engine, as the queue level. yobert/alsa does
// not expose a direct hwparams query through this narrow interface, and the
// hardware's own queued frame count is not queried.
func (d *Device) FramesQueued() (int, time.Time, error) {
	return d.buf.Len(), time.Now(), nil
}

// Close releases the ALSA device.
func (d *Device) Close() error {
	return d.dev.Close()
}
