/*
NAME
  flacio.go

DESCRIPTION
  flacio.go implements a capture-only iodev.Backend over a FLAC file,
  streaming frames through mewkiz/flac's stream.ParseNext rather than the
  whole-file decode done by exp/flac/decode.go, so large archival
  recordings can be replayed into the engine without buffering the
  entire decoded PCM stream in memory.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package flacio adapts a FLAC file to the iodev.Backend interface for
// capture, decoding frames on demand as the engine pulls them.
package flacio

import (
	"io"
	"os"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"

	"github.com/ausocean/cras/audio/area"
	"github.com/ausocean/cras/audio/crerr"
	"github.com/ausocean/cras/audio/format"
	"github.com/ausocean/cras/audio/iodev"
)

// Device adapts a FLAC file to a capture-only iodev.Backend.
type Device struct {
	file   *os.File
	stream *flac.Stream
	f      format.PCMFormat

	curr area.AudioArea
	eof  bool
}

// Open opens path as a FLAC stream for capture, deriving the device's PCM
// format from the FLAC StreamInfo header.
func Open(path string) (*Device, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, crerr.Wrap(crerr.IoError, "opening flac file", err)
	}
	s, err := flac.Parse(file)
	if err != nil {
		file.Close()
		return nil, crerr.Wrap(crerr.IoError, "parsing flac header", err)
	}
	info := s.Info
	sf, err := sampleFormatFromBitsPerSample(int(info.BitsPerSample))
	if err != nil {
		file.Close()
		return nil, err
	}
	pf := format.NewPCMFormat(sf, info.SampleRate, int(info.NChannels))
	return &Device{file: file, stream: s, f: pf}, nil
}

func sampleFormatFromBitsPerSample(bits int) (format.SampleFormat, error) {
	switch bits {
	case 8:
		return format.U8, nil
	case 16:
		return format.S16LE, nil
	case 24:
		return format.S24_3LE, nil
	case 32:
		return format.S32LE, nil
	default:
		return format.Unknown, crerr.New(crerr.InvalidArg, "unsupported FLAC bits-per-sample")
	}
}

// Format returns the device's PCM format, derived from the FLAC header.
func (d *Device) Format() format.PCMFormat { return d.f }

// GetBuffer decodes FLAC frames until at least maxFrames frames are
// available or the stream ends, converting each subframe's samples into
// the engine's PCM byte representation.
func (d *Device) GetBuffer(maxFrames int) (area.AudioArea, time.Time, error) {
	if d.eof {
		return area.AudioArea{}, time.Time{}, crerr.New(crerr.IoError, "flacio: stream exhausted")
	}

	frameBytes := d.f.FrameBytes()
	out := make([]byte, 0, maxFrames*frameBytes)
	framesSoFar := 0

	for framesSoFar < maxFrames {
		fr, err := d.stream.ParseNext()
		if err == io.EOF {
			d.eof = true
			break
		}
		if err != nil {
			return area.AudioArea{}, time.Time{}, crerr.Wrap(crerr.IoError, "parsing flac frame", err)
		}
		out = appendFrame(out, fr, d.f.SampleFormat, int(d.stream.Info.BitsPerSample))
		framesSoFar += fr.Subframes[0].NSamples
	}

	d.curr = area.New(d.f, out, framesSoFar)
	return d.curr, time.Now(), nil
}

// appendFrame packs one decoded FLAC frame's samples into dst in the
// engine's interleaved byte representation, following the per-sample,
// per-subframe iteration order used by exp/flac/decode.go's
// frame-to-IntBuffer loop. bps is the stream's bits-per-sample, which
// mewkiz/flac reports once in StreamInfo rather than per subframe.
func appendFrame(dst []byte, fr *frame.Frame, sf format.SampleFormat, bps int) []byte {
	sampleBytes := sf.Bytes()
	tmp := make([]byte, sampleBytes)
	for i := 0; i < fr.Subframes[0].NSamples; i++ {
		for _, sub := range fr.Subframes {
			raw := sub.Samples[i]
			var s16 int16
			switch {
			case bps > 16:
				s16 = int16(raw >> uint(bps-16))
			case bps < 16:
				s16 = int16(raw << uint(16-bps))
			default:
				s16 = int16(raw)
			}
			format.FromS16(sf, s16, tmp)
			dst = append(dst, tmp[:sampleBytes]...)
		}
	}
	return dst
}

// PutBuffer is a no-op; FLAC capture has no write-back path.
func (d *Device) PutBuffer(nframes int) error { return nil }

// FramesQueued always reports zero; a file has no hardware queue to drift
// against.
func (d *Device) FramesQueued() (int, time.Time, error) {
	return 0, time.Now(), nil
}

// Close releases the underlying file.
func (d *Device) Close() error {
	return d.file.Close()
}
