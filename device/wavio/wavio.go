/*
NAME
  wavio.go

DESCRIPTION
  wavio.go implements iodev.Backend over a WAV file, used to drive the
  engine against recorded or synthetic fixtures without real hardware. It
  adapts the go-audio/audio + go-audio/wav encode/decode pairing used by
  exp/flac/decode.go to the engine's PCM-byte AudioArea contract.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package wavio adapts a WAV file to the iodev.Backend interface, for
// playback (reading a fixture) or capture (recording to a file).
package wavio

import (
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ausocean/cras/audio/area"
	"github.com/ausocean/cras/audio/crerr"
	"github.com/ausocean/cras/audio/format"
	"github.com/ausocean/cras/audio/iodev"
)

const wavFormatPCM = 1

// Device adapts a WAV file to iodev.Backend.
type Device struct {
	dir  iodev.Direction
	f    format.PCMFormat
	file *os.File

	// Playback: a decoder pulling frames out of the file.
	dec *wav.Decoder
	// Capture: an encoder writing frames into the file.
	enc *wav.Encoder

	curr area.AudioArea
}

// OpenPlayback opens an existing WAV file for playback, deriving the
// device's PCM format from the file's header.
func OpenPlayback(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, crerr.Wrap(crerr.IoError, "opening wav file", err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, crerr.New(crerr.InvalidArg, "not a valid WAV file")
	}
	dec.ReadInfo()
	sf, err := sampleFormatFromBits(int(dec.BitDepth))
	if err != nil {
		f.Close()
		return nil, err
	}
	pf := format.NewPCMFormat(sf, uint(dec.SampleRate), int(dec.NumChans))
	return &Device{dir: iodev.Playback, f: pf, file: f, dec: dec}, nil
}

// CreateCapture creates a new WAV file at path for capture, encoding f's
// format into the header.
func CreateCapture(path string, f format.PCMFormat) (*Device, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, crerr.Wrap(crerr.IoError, "creating wav file", err)
	}
	bits, err := bitsFromSampleFormat(f.SampleFormat)
	if err != nil {
		file.Close()
		return nil, err
	}
	enc := wav.NewEncoder(file, int(f.FrameRate), bits, f.NumChannels, wavFormatPCM)
	return &Device{dir: iodev.Capture, f: f, file: file, enc: enc}, nil
}

func sampleFormatFromBits(bits int) (format.SampleFormat, error) {
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
		return format.Unknown, crerr.New(crerr.InvalidArg, "unsupported WAV bit depth")
	}
}

func bitsFromSampleFormat(sf format.SampleFormat) (int, error) {
	switch sf {
	case format.U8:
		return 8, nil
	case format.S16LE:
		return 16, nil
	case format.S24_3LE:
		return 24, nil
	case format.S32LE:
		return 32, nil
	default:
		return 0, crerr.New(crerr.InvalidArg, "unsupported sample format for WAV")
	}
}

// Format returns the device's PCM format.
func (d *Device) Format() format.PCMFormat { return d.f }

// GetBuffer returns up to maxFrames frames: for playback, decoded from the
// file (short reads at EOF are returned with the frames actually
// available); for capture, zeroed scratch space the caller fills before
// PutBuffer.
func (d *Device) GetBuffer(maxFrames int) (area.AudioArea, time.Time, error) {
	frameBytes := d.f.FrameBytes()
	if d.dir == iodev.Capture {
		buf := make([]byte, maxFrames*frameBytes)
		d.curr = area.New(d.f, buf, maxFrames)
		return d.curr, time.Now(), nil
	}

	intBuf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: d.f.NumChannels, SampleRate: int(d.f.FrameRate)},
		Data:           make([]int, maxFrames*d.f.NumChannels),
		SourceBitDepth: d.f.SampleFormat.Bytes() * 8,
	}
	n, err := d.dec.PCMBuffer(intBuf)
	if err != nil && err != io.EOF {
		return area.AudioArea{}, time.Time{}, crerr.Wrap(crerr.IoError, "decoding wav frames", err)
	}
	frames := n / d.f.NumChannels
	buf := make([]byte, frames*frameBytes)
	for i := 0; i < frames*d.f.NumChannels; i++ {
		format.FromS16(d.f.SampleFormat, int16(intBuf.Data[i]), buf[i*d.f.SampleFormat.Bytes():])
	}
	d.curr = area.New(d.f, buf, frames)
	return d.curr, time.Now(), nil
}

// PutBuffer commits nframes of the most recent GetBuffer call: for
// capture, encodes them into the WAV file; for playback, this is a no-op.
func (d *Device) PutBuffer(nframes int) error {
	if d.dir == iodev.Playback {
		return nil
	}
	if len(d.curr.Channels) == 0 {
		return crerr.New(crerr.InvalidArg, "PutBuffer called before GetBuffer")
	}
	n := d.f.NumChannels
	raw := d.curr.Channels[0].Buf
	data := make([]int, nframes*n)
	for i := 0; i < nframes*n; i++ {
		data[i] = int(format.ToS16(d.f.SampleFormat, raw[i*d.f.SampleFormat.Bytes():]))
	}
	intBuf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: n, SampleRate: int(d.f.FrameRate)},
		Data:           data,
		SourceBitDepth: d.f.SampleFormat.Bytes() * 8,
	}
	if err := d.enc.Write(intBuf); err != nil {
		return crerr.Wrap(crerr.IoError, "encoding wav frames", err)
	}
	return nil
}

// FramesQueued is meaningless for a file-backed device; files never build
// hardware queue depth, so this always reports zero. Zero never triggers
// the severe-underrun path; the coarse rate-adjust sees it as a low level.
func (d *Device) FramesQueued() (int, time.Time, error) {
	return 0, time.Now(), nil
}

// Close flushes (capture) and closes the underlying file.
func (d *Device) Close() error {
	if d.enc != nil {
		if err := d.enc.Close(); err != nil {
			return crerr.Wrap(crerr.IoError, "closing wav encoder", err)
		}
	}
	return d.file.Close()
}
