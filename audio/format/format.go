/*
NAME
  format.go

DESCRIPTION
  format.go defines the PCM sample format, the channel semantic layout, and
  the per-sample integer conversions to and from the S16LE internal
  representation used throughout the engine.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package format defines PCM sample formats, channel semantics, and the
// integer sample conversions the rest of the engine builds on.
package format

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// SampleFormat is the on-the-wire representation of one PCM sample.
type SampleFormat int

// Sample formats supported by the engine. S16LE is the canonical internal
// format; every conversion stage converts to and from it.
const (
	Unknown SampleFormat = iota - 1
	U8
	S16LE
	S24LE  // in the low 24 bits of a little-endian int32.
	S24_3LE // packed 3 bytes, little-endian.
	S32LE
)

// String returns the human-readable name of a SampleFormat.
func (f SampleFormat) String() string {
	switch f {
	case U8:
		return "U8"
	case S16LE:
		return "S16LE"
	case S24LE:
		return "S24LE"
	case S24_3LE:
		return "S24_3LE"
	case S32LE:
		return "S32LE"
	default:
		return "Unknown"
	}
}

// FromString parses a SampleFormat from its String() representation.
func FromString(s string) (SampleFormat, error) {
	switch s {
	case "U8":
		return U8, nil
	case "S16LE":
		return S16LE, nil
	case "S24LE":
		return S24LE, nil
	case "S24_3LE":
		return S24_3LE, nil
	case "S32LE":
		return S32LE, nil
	default:
		return Unknown, errors.Errorf("unknown sample format (%s)", s)
	}
}

// Bytes returns the number of bytes one sample occupies in this format.
func (f SampleFormat) Bytes() int {
	switch f {
	case U8:
		return 1
	case S16LE:
		return 2
	case S24_3LE:
		return 3
	case S24LE, S32LE:
		return 4
	default:
		return 0
	}
}

// Channel is a semantic channel identity, independent of its position within
// a frame.
type Channel int

// The fixed set of semantic channels the engine understands.
const (
	FL Channel = iota
	FR
	RL
	RR
	FC
	LFE
	SL
	SR
	RC
	FLC
	FRC
	numChannels
)

// Bit returns the bit-mask bit for this channel, used by AudioArea to match
// source and destination channels.
func (c Channel) Bit() uint32 { return 1 << uint(c) }

var channelNames = [numChannels]string{
	FL: "FL", FR: "FR", RL: "RL", RR: "RR", FC: "FC", LFE: "LFE",
	SL: "SL", SR: "SR", RC: "RC", FLC: "FLC", FRC: "FRC",
}

func (c Channel) String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return "?"
	}
	return channelNames[c]
}

// Layout maps each semantic channel to its index within a frame, or -1 if the
// channel is absent. Invariant: every value is either -1 or in
// [0, NumChannels).
type Layout [numChannels]int

// Absent is the layout index value used for a channel that carries no data.
const Absent = -1

// NewLayout returns a layout with every channel absent.
func NewLayout() Layout {
	var l Layout
	for i := range l {
		l[i] = Absent
	}
	return l
}

// Valid reports whether l is a legal layout for a format with the given
// number of channels: every entry is either Absent or in [0, numChannels).
func (l Layout) Valid(numChannels int) bool {
	for _, idx := range l {
		if idx != Absent && (idx < 0 || idx >= numChannels) {
			return false
		}
	}
	return true
}

// Has reports whether channel c is present in the layout.
func (l Layout) Has(c Channel) bool { return l[c] != Absent }

// Mono returns a one-channel layout with FC mapped to index 0.
func Mono() Layout {
	l := NewLayout()
	l[FC] = 0
	return l
}

// Stereo returns the standard two-channel FL/FR layout.
func Stereo() Layout {
	l := NewLayout()
	l[FL], l[FR] = 0, 1
	return l
}

// Quad returns a four-channel FL/FR/RL/RR layout.
func Quad() Layout {
	l := NewLayout()
	l[FL], l[FR], l[RL], l[RR] = 0, 1, 2, 3
	return l
}

// Surround51 returns the standard 5.1 layout: FL, FR, RL, RR, FC, LFE.
func Surround51() Layout {
	l := NewLayout()
	l[FL], l[FR], l[RL], l[RR], l[FC], l[LFE] = 0, 1, 2, 3, 4, 5
	return l
}

// Surround71 returns a 7.1 layout: FL, FR, RL, RR, FC, LFE, SL, SR.
func Surround71() Layout {
	l := NewLayout()
	l[FL], l[FR], l[RL], l[RR], l[FC], l[LFE], l[SL], l[SR] = 0, 1, 2, 3, 4, 5, 6, 7
	return l
}

// DefaultLayout returns the conventional layout for a bare channel count,
// used when a PCMFormat is constructed without an explicit layout. Mirrors
// cras_audio_format.c's default table.
func DefaultLayout(numChannels int) Layout {
	switch numChannels {
	case 1:
		return Mono()
	case 2:
		return Stereo()
	case 4:
		return Quad()
	case 6:
		return Surround51()
	case 8:
		return Surround71()
	default:
		// No conventional layout for this channel count; caller must supply
		// an explicit Layout.
		return NewLayout()
	}
}

// PCMFormat fully describes a PCM stream: sample format, frame rate,
// channel count, and the semantic channel layout.
type PCMFormat struct {
	SampleFormat SampleFormat
	FrameRate    uint
	NumChannels  int
	Layout       Layout
}

// NewPCMFormat builds a PCMFormat with the default layout for numChannels.
func NewPCMFormat(sf SampleFormat, rate uint, numChannels int) PCMFormat {
	return PCMFormat{
		SampleFormat: sf,
		FrameRate:    rate,
		NumChannels:  numChannels,
		Layout:       DefaultLayout(numChannels),
	}
}

// Valid reports whether the format's layout satisfies the channel_layout
// invariant from §3.
func (f PCMFormat) Valid() bool {
	return f.NumChannels > 0 && f.Layout.Valid(f.NumChannels)
}

// FrameBytes returns the number of bytes one frame (one sample per channel)
// occupies.
func (f PCMFormat) FrameBytes() int {
	return f.SampleFormat.Bytes() * f.NumChannels
}

// ToS16 converts one sample in format f, packed starting at b[0], to an
// int16 in the internal S16LE representation.
func ToS16(f SampleFormat, b []byte) int16 {
	switch f {
	case U8:
		return (int16(b[0]) - 128) << 8
	case S16LE:
		return int16(binary.LittleEndian.Uint16(b))
	case S24LE:
		raw := binary.LittleEndian.Uint32(b)
		v := int32(raw<<8) >> 8 // sign-extend the low 24 bits.
		return int16(v >> 8)
	case S24_3LE:
		raw := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
		if raw&0x800000 != 0 {
			raw |= 0xFF000000
		}
		return int16(int32(raw) >> 8)
	case S32LE:
		v := int32(binary.LittleEndian.Uint32(b))
		return int16(v >> 16)
	default:
		return 0
	}
}

// FromS16 packs an internal S16LE sample v into format f, writing
// f.Bytes() bytes starting at b[0].
func FromS16(f SampleFormat, v int16, b []byte) {
	switch f {
	case U8:
		b[0] = byte((int16(int32(v)>>8) + 128))
	case S16LE:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case S24LE:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)<<8)&0x00FFFFFF)
	case S24_3LE:
		raw := uint32(int32(v) << 8)
		b[0] = byte(raw)
		b[1] = byte(raw >> 8)
		b[2] = byte(raw >> 16)
	case S32LE:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)<<16))
	}
}

// SaturateAdd adds delta to v, saturating to the int16 range rather than
// wrapping, matching the "saturation to the destination sample type" rule
// used throughout the mixing/copy code.
func SaturateAdd(v int16, delta int32) int16 {
	sum := int32(v) + delta
	if sum > math.MaxInt16 {
		return math.MaxInt16
	}
	if sum < math.MinInt16 {
		return math.MinInt16
	}
	return int16(sum)
}
