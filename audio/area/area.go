/*
NAME
  area.go

DESCRIPTION
  area.go provides AudioArea, a multi-planar view of a PCM buffer used to
  copy, mix, and scale samples between devices and streams without caring
  whether the underlying storage is interleaved or planar.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package area provides AudioArea, a multi-planar PCM buffer view with a
// mask-based per-sample copy/mix/scale operation.
package area

import "github.com/ausocean/cras/audio/format"

// ChannelArea describes one channel plane within an AudioArea.
type ChannelArea struct {
	Mask   uint32              // OR of format.Channel bits carried by this plane.
	Step   int                 // byte stride between consecutive samples of this channel.
	Buf    []byte              // base pointer for this channel's first sample.
	Format format.SampleFormat // on-the-wire sample format of this plane.
}

// AudioArea is a multi-planar view over Frames frames of audio, one
// ChannelArea per channel.
type AudioArea struct {
	Frames   int
	Channels []ChannelArea
}

// New allocates an AudioArea description over an existing interleaved
// buffer in format f, covering `frames` frames. Channel population follows
// the mask-intersection rule: a mono source (FC or FL present at index 0)
// is duplicated into FL|FR; otherwise each channel's mask is the OR of every
// semantic channel whose layout entry equals that index.
func New(f format.PCMFormat, buf []byte, frames int) AudioArea {
	step := f.SampleFormat.Bytes()
	frameBytes := f.FrameBytes()
	channels := make([]ChannelArea, f.NumChannels)

	if f.NumChannels == 1 && (f.Layout[format.FC] == 0 || f.Layout[format.FL] == 0) {
		channels[0] = ChannelArea{
			Mask:   format.FL.Bit() | format.FR.Bit(),
			Step:   frameBytes,
			Buf:    buf,
			Format: f.SampleFormat,
		}
		return AudioArea{Frames: frames, Channels: channels}
	}

	for i := 0; i < f.NumChannels; i++ {
		var mask uint32
		for ch := format.Channel(0); int(ch) < len(f.Layout); ch++ {
			if f.Layout[ch] == i {
				mask |= ch.Bit()
			}
		}
		channels[i] = ChannelArea{
			Mask:   mask,
			Step:   frameBytes,
			Buf:    buf[i*step:],
			Format: f.SampleFormat,
		}
	}
	return AudioArea{Frames: frames, Channels: channels}
}

// Copy copies min(src.Frames-srcOffset, dst.Frames-dstOffset) frames from src
// to dst. For every (srcCh, dstCh) pair whose channel masks overlap, it
// performs dst += src*gain with saturation to the destination plane's own
// sample type, following cras_audio_area_copy's dst_fmt-parametrized
// cras_mix_add_scale_stride (src/server/cras_audio_area.c). Each plane
// carries its own format, so source and destination need not agree bit for
// bit; both are decoded through the shared S16LE mixing domain before the
// result is re-encoded into the destination's native format. Returns the
// number of frames copied.
func Copy(dst AudioArea, dstOffset int, src AudioArea, srcOffset int, gain float64) int {
	n := src.Frames - srcOffset
	if m := dst.Frames - dstOffset; m < n {
		n = m
	}
	if n <= 0 {
		return 0
	}

	for _, sc := range src.Channels {
		for _, dc := range dst.Channels {
			if sc.Mask&dc.Mask == 0 {
				continue
			}
			mixChannel(dc, dstOffset, sc, srcOffset, n, gain)
		}
	}
	return n
}

// mixChannel performs dst += src*gain, saturating to dc's sample format, for
// n frames of one channel pair.
func mixChannel(dc ChannelArea, dstOffset int, sc ChannelArea, srcOffset int, n int, gain float64) {
	sBytes := sc.Format.Bytes()
	dBytes := dc.Format.Bytes()
	for f := 0; f < n; f++ {
		sIdx := (srcOffset + f) * sc.Step
		dIdx := (dstOffset + f) * dc.Step
		sVal := format.ToS16(sc.Format, sc.Buf[sIdx:sIdx+sBytes])
		dVal := format.ToS16(dc.Format, dc.Buf[dIdx:dIdx+dBytes])
		scaled := int32(float64(sVal) * gain)
		out := format.SaturateAdd(dVal, scaled)
		format.FromS16(dc.Format, out, dc.Buf[dIdx:dIdx+dBytes])
	}
}

// Silence zero-fills n frames of every channel in a, starting at offset,
// clearing each channel's own sample width rather than a hardcoded 16-bit
// span.
func Silence(a AudioArea, offset, n int) {
	for _, c := range a.Channels {
		sBytes := c.Format.Bytes()
		for f := 0; f < n; f++ {
			idx := (offset + f) * c.Step
			for b := 0; b < sBytes; b++ {
				if idx+b < len(c.Buf) {
					c.Buf[idx+b] = 0
				}
			}
		}
	}
}
