package resample

import "testing"

// TestPolyphase48to44Ratio matches spec scenario 3: 48kHz -> 44.1kHz with
// 1024 input frames should produce between 940 and 942 output frames.
func TestPolyphase48to44Ratio(t *testing.T) {
	p := NewPolyphase(48000, 44100, 1)
	q := p.OutFramesForIn(1024)
	if q < 940 || q > 942 {
		t.Fatalf("OutFramesForIn(1024) = %d, want in [940,942]", q)
	}
}

func TestPolyphaseRoundTripFrameCount(t *testing.T) {
	down := NewPolyphase(48000, 44100, 1)
	up := NewPolyphase(44100, 48000, 1)

	src := make([]int16, 1024)
	for i := range src {
		src[i] = int16(i % 1000)
	}
	mid := make([]int16, down.OutFramesForIn(len(src))+4)
	produced, consumed := down.Convert(src, len(src), mid, len(mid))
	if consumed < len(src)-8 {
		t.Fatalf("down-convert consumed only %d of %d", consumed, len(src))
	}

	back := make([]int16, up.OutFramesForIn(produced)+4)
	producedBack, _ := up.Convert(mid, produced, back, len(back))

	// Each stage stops while tapsPerPhase/2 frames of lookahead remain, so
	// a single-chunk round trip comes back a few frames short, never long.
	diff := producedBack - len(src)
	if diff < -tapsPerPhase || diff > 0 {
		t.Fatalf("round trip frames = %d, want %d to %d", producedBack, len(src)-tapsPerPhase, len(src))
	}
}

func TestFrequencyResponseAttenuatesAboveCutoff(t *testing.T) {
	p := NewPolyphase(48000, 24000, 1) // cutoff at outRate/2 = 12kHz of 48kHz Nyquist 24kHz -> normalized 0.25.
	mag := p.FrequencyResponse(0, 256)
	dc := mag[0]
	nyquist := mag[len(mag)-1]
	if nyquist >= dc {
		t.Fatalf("expected attenuation near Nyquist: dc=%f nyquist=%f", dc, nyquist)
	}
}

func TestDesignKernelUnityDCGain(t *testing.T) {
	k := designKernel(48000, 48000)
	for ph := 0; ph < numPhases; ph++ {
		var sum float64
		for t := ph; t < kernelLen; t += numPhases {
			sum += k[t]
		}
		if sum < 0.99 || sum > 1.01 {
			t.Errorf("phase %d DC gain = %f, want ~1.0", ph, sum)
		}
	}
}
