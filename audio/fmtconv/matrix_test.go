package fmtconv

import (
	"testing"

	"github.com/ausocean/cras/audio/format"
)

func applyMatrix(t *testing.T, in, out format.PCMFormat, frame []int16) []int16 {
	t.Helper()
	m, err := buildChannelMatrix(in, out)
	if err != nil {
		t.Fatalf("buildChannelMatrix: %v", err)
	}
	r, c := m.Dims()
	if c != in.NumChannels || r != out.NumChannels {
		t.Fatalf("matrix dims = %dx%d, want %dx%d", r, c, out.NumChannels, in.NumChannels)
	}
	result := make([]int16, out.NumChannels)
	for i := 0; i < r; i++ {
		var sum float64
		for j := 0; j < c; j++ {
			sum += m.At(i, j) * float64(frame[j])
		}
		result[i] = int16(sum)
	}
	return result
}

// TestSixToTwoOnlyFrontLeft matches spec scenario 2: a 5.1 frame carrying
// signal only on FL should downmix to a stereo frame with L > 0 and R == 0.
func TestSixToTwoOnlyFrontLeft(t *testing.T) {
	in := format.NewPCMFormat(format.S16LE, 48000, 6)
	in.Layout = format.Surround51()
	out := format.NewPCMFormat(format.S16LE, 48000, 2)

	frame := []int16{13450, 0, 0, 0, 0, 0}
	got := applyMatrix(t, in, out, frame)

	if got[0] <= 0 {
		t.Errorf("L = %d, want > 0", got[0])
	}
	if got[1] != 0 {
		t.Errorf("R = %d, want 0", got[1])
	}
}

func TestOneToTwoDuplicates(t *testing.T) {
	in := format.NewPCMFormat(format.S16LE, 48000, 1)
	out := format.NewPCMFormat(format.S16LE, 48000, 2)
	got := applyMatrix(t, in, out, []int16{777})
	if got[0] != 777 || got[1] != 777 {
		t.Errorf("got %v, want [777 777]", got)
	}
}

func TestTwoToOneSums(t *testing.T) {
	in := format.NewPCMFormat(format.S16LE, 48000, 2)
	out := format.NewPCMFormat(format.S16LE, 48000, 1)
	got := applyMatrix(t, in, out, []int16{100, 300})
	if got[0] != 400 {
		t.Errorf("got %v, want [400] (pre-gain sum)", got)
	}
}

func TestOneToSixPrefersCenter(t *testing.T) {
	in := format.NewPCMFormat(format.S16LE, 48000, 1)
	out := format.NewPCMFormat(format.S16LE, 48000, 6)
	out.Layout = format.Surround51()
	got := applyMatrix(t, in, out, []int16{1000})
	if got[format.FC] != 1000 {
		t.Errorf("FC = %d, want 1000", got[format.FC])
	}
	for i, v := range got {
		if i == int(format.FC) {
			continue
		}
		if v != 0 {
			t.Errorf("channel %d = %d, want 0", i, v)
		}
	}
}

func TestTwoToSixPlacesFrontPair(t *testing.T) {
	in := format.NewPCMFormat(format.S16LE, 48000, 2)
	out := format.NewPCMFormat(format.S16LE, 48000, 6)
	out.Layout = format.Surround51()
	got := applyMatrix(t, in, out, []int16{500, 600})
	if got[format.FL] != 500 || got[format.FR] != 600 {
		t.Errorf("FL/FR = %d/%d, want 500/600", got[format.FL], got[format.FR])
	}
}

// TestSamePermutationUsesSubstitution verifies an input SL/SR pair maps onto
// an output with only RL/RR, via the fixed substitution table.
func TestSamePermutationUsesSubstitution(t *testing.T) {
	in := format.NewPCMFormat(format.S16LE, 48000, 6)
	in.Layout = format.NewLayout()
	in.Layout[format.FL] = 0
	in.Layout[format.FR] = 1
	in.Layout[format.SL] = 2
	in.Layout[format.SR] = 3
	in.Layout[format.FC] = 4
	in.Layout[format.LFE] = 5

	out := format.NewPCMFormat(format.S16LE, 48000, 6)
	out.Layout = format.Surround51() // has RL/RR, not SL/SR.

	m, err := buildChannelMatrix(in, out)
	if err != nil {
		t.Fatalf("buildChannelMatrix: %v", err)
	}
	if m.At(out.Layout[format.RL], in.Layout[format.SL]) != 1 {
		t.Errorf("expected SL substituted into RL")
	}
	if m.At(out.Layout[format.RR], in.Layout[format.SR]) != 1 {
		t.Errorf("expected SR substituted into RR")
	}
}

// TestSamePermutationFailsWithoutSubstitute verifies a channel with no
// matching destination and no legal substitute is rejected.
func TestSamePermutationFailsWithoutSubstitute(t *testing.T) {
	in := format.NewPCMFormat(format.S16LE, 48000, 6)
	in.Layout = format.NewLayout()
	in.Layout[format.FLC] = 0
	in.Layout[format.FRC] = 1
	in.Layout[format.FL] = 2
	in.Layout[format.FR] = 3
	in.Layout[format.FC] = 4
	in.Layout[format.LFE] = 5

	out := format.NewPCMFormat(format.S16LE, 48000, 6)
	out.Layout = format.Surround51()

	_, err := buildChannelMatrix(in, out)
	if err == nil {
		t.Fatal("expected error for FLC with no destination or substitute")
	}
}

func TestUniformAverageGenericFallback(t *testing.T) {
	in := format.NewPCMFormat(format.S16LE, 48000, 3)
	out := format.NewPCMFormat(format.S16LE, 48000, 4)
	m, err := buildChannelMatrix(in, out)
	if err != nil {
		t.Fatalf("buildChannelMatrix: %v", err)
	}
	r, c := m.Dims()
	if r != 4 || c != 3 {
		t.Fatalf("dims = %dx%d, want 4x3", r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 1.0/3.0 {
				t.Errorf("m[%d][%d] = %f, want 1/3", i, j, m.At(i, j))
			}
		}
	}
}
