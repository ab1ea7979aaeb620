/*
DESCRIPTION
  flacio_test.go tests the FLAC-to-engine sample packing helpers.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package flacio

import (
	"testing"

	"github.com/mewkiz/flac/frame"

	"github.com/ausocean/cras/audio/crerr"
	"github.com/ausocean/cras/audio/format"
)

func TestSampleFormatFromBitsPerSample(t *testing.T) {
	tests := []struct {
		bits int
		want format.SampleFormat
	}{
		{8, format.U8},
		{16, format.S16LE},
		{24, format.S24_3LE},
		{32, format.S32LE},
	}
	for _, test := range tests {
		got, err := sampleFormatFromBitsPerSample(test.bits)
		if err != nil {
			t.Fatalf("bits=%d: %v", test.bits, err)
		}
		if got != test.want {
			t.Errorf("bits=%d: got %s, want %s", test.bits, got, test.want)
		}
	}

	_, err := sampleFormatFromBitsPerSample(12)
	if kind, ok := crerr.KindOf(err); !ok || kind != crerr.InvalidArg {
		t.Errorf("expected InvalidArg for unsupported bit depth, got %v", err)
	}
}

func TestAppendFramePacksInterleavedSamples(t *testing.T) {
	fr := &frame.Frame{
		Subframes: []*frame.Subframe{
			{NSamples: 2, Samples: []int32{100, -50}},
			{NSamples: 2, Samples: []int32{200, -25}},
		},
	}

	out := appendFrame(nil, fr, format.S16LE, 16)

	const frameBytes = 2 * 2 // two channels, two bytes per sample.
	if len(out) != 2*frameBytes {
		t.Fatalf("len(out) = %d, want %d", len(out), 2*frameBytes)
	}

	want := []int16{100, 200, -50, -25}
	for i, w := range want {
		got := format.ToS16(format.S16LE, out[i*2:])
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}
