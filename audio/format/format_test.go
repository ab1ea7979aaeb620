package format

import "testing"

// TestS16RoundTrip checks that each integer sample format round-trips
// through S16LE within the expected truncation for that format's bit depth.
func TestS16RoundTrip(t *testing.T) {
	cases := []struct {
		f    SampleFormat
		in   int16
		want int16
	}{
		{U8, 0, 0},
		{U8, 1000, 768}, // U8 only keeps the top 8 bits.
		{S16LE, 12345, 12345},
		{S24LE, -12345, -12345},
		{S24_3LE, 30000, 30000},
		{S32LE, -1, -1},
	}
	for _, c := range cases {
		b := make([]byte, c.f.Bytes())
		FromS16(c.f, c.in, b)
		got := ToS16(c.f, b)
		if got != c.want {
			t.Errorf("%v: round trip %d -> %d, want %d", c.f, c.in, got, c.want)
		}
	}
}

func TestFromStringRoundTrip(t *testing.T) {
	for _, f := range []SampleFormat{U8, S16LE, S24LE, S24_3LE, S32LE} {
		got, err := FromString(f.String())
		if err != nil {
			t.Fatalf("FromString(%v): %v", f, err)
		}
		if got != f {
			t.Errorf("FromString(%q) = %v, want %v", f.String(), got, f)
		}
	}
	if _, err := FromString("bogus"); err == nil {
		t.Error("FromString(bogus): expected error")
	}
}

func TestDefaultLayoutValid(t *testing.T) {
	for _, n := range []int{1, 2, 4, 6, 8} {
		l := DefaultLayout(n)
		if !l.Valid(n) {
			t.Errorf("DefaultLayout(%d) invalid: %v", n, l)
		}
	}
}

func TestSaturateAdd(t *testing.T) {
	if got := SaturateAdd(30000, 10000); got != 32767 {
		t.Errorf("SaturateAdd overflow = %d, want 32767", got)
	}
	if got := SaturateAdd(-30000, -10000); got != -32768 {
		t.Errorf("SaturateAdd underflow = %d, want -32768", got)
	}
	if got := SaturateAdd(100, 200); got != 300 {
		t.Errorf("SaturateAdd in-range = %d, want 300", got)
	}
}
