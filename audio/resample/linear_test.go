package resample

import "testing"

func TestBypassWhenRatioIsOne(t *testing.T) {
	r := NewLinearResampler(1)
	if r.Needed() {
		t.Fatal("fresh resampler should not need resampling")
	}
}

func TestResamplePreservesMonotonicity(t *testing.T) {
	r := NewLinearResampler(1)
	r.SetRates(44100, 48000)

	src := make([]int16, 200)
	for i := range src {
		src[i] = int16(i * 100)
	}
	dst := make([]int16, 200)
	produced, consumed := r.Resample(src, len(src), dst, len(dst))
	if produced == 0 || consumed == 0 {
		t.Fatalf("produced=%d consumed=%d, want > 0", produced, consumed)
	}
	for i := 1; i < produced; i++ {
		if dst[i] < dst[i-1] {
			t.Fatalf("output not monotonic at %d: %d < %d", i, dst[i], dst[i-1])
		}
	}
}

func TestOutFramesToInNeverZeroWhenDataPresent(t *testing.T) {
	r := NewLinearResampler(1)
	r.SetRates(8000, 48000) // steep downsample ratio.
	n := r.OutFramesToIn(1)
	if n < 1 {
		t.Fatalf("OutFramesToIn(1) = %d, want >= 1", n)
	}
}

func TestInOutFramesRoundTripApprox(t *testing.T) {
	r := NewLinearResampler(2)
	r.SetRates(44100, 48000)
	out := r.InFramesToOut(1024)
	if out < 900 || out > 1000 {
		t.Fatalf("InFramesToOut(1024) = %d, want roughly 940", out)
	}
	back := r.OutFramesToIn(out)
	if back < 1000 || back > 1050 {
		t.Fatalf("OutFramesToIn(%d) = %d, want close to 1024", out, back)
	}
}
