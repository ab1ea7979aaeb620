package area

import (
	"encoding/binary"
	"testing"

	"github.com/ausocean/cras/audio/format"
)

func s16Bytes(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// TestMonoToStereoDuplicate matches spec scenario 1: mono [100,-200,300]
// duplicated into stereo interleaved [100,100,-200,-200,300,300].
func TestMonoToStereoDuplicate(t *testing.T) {
	monoFmt := format.NewPCMFormat(format.S16LE, 48000, 1)
	srcBuf := s16Bytes(100, -200, 300)
	src := New(monoFmt, srcBuf, 3)

	stereoFmt := format.NewPCMFormat(format.S16LE, 48000, 2)
	dstBuf := make([]byte, 3*2*2)
	dst := New(stereoFmt, dstBuf, 3)

	n := Copy(dst, 0, src, 0, 1.0)
	if n != 3 {
		t.Fatalf("Copy returned %d frames, want 3", n)
	}

	want := []int16{100, 100, -200, -200, 300, 300}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(dstBuf[i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestCopyClampsToShorterLength(t *testing.T) {
	f := format.NewPCMFormat(format.S16LE, 48000, 1)
	src := New(f, s16Bytes(1, 2, 3, 4), 4)
	dstBuf := make([]byte, 2*2)
	dst := New(f, dstBuf, 2)

	n := Copy(dst, 0, src, 0, 1.0)
	if n != 2 {
		t.Fatalf("Copy returned %d, want 2 (clamped to dst.Frames)", n)
	}
}

// TestCopyAcrossSampleFormats covers real S32LE hardware mixing into an
// S16LE stream buffer, the path device/alsaio's negotiated format and
// device/wavio's/device/flacio's wider file formats exercise that a
// hardcoded 16-bit read/write would silently corrupt.
func TestCopyAcrossSampleFormats(t *testing.T) {
	srcFmt := format.NewPCMFormat(format.S32LE, 48000, 1)
	srcBuf := make([]byte, 2*4)
	format.FromS16(format.S32LE, 1000, srcBuf[0:4])
	format.FromS16(format.S32LE, -2000, srcBuf[4:8])
	src := New(srcFmt, srcBuf, 2)

	dstFmt := format.NewPCMFormat(format.S16LE, 48000, 1)
	dstBuf := s16Bytes(10, 20)
	dst := New(dstFmt, dstBuf, 2)

	n := Copy(dst, 0, src, 0, 1.0)
	if n != 2 {
		t.Fatalf("Copy returned %d, want 2", n)
	}

	want := []int16{1010, -1980}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(dstBuf[i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}

	// Verify the S32LE source buffer itself was left untouched (Copy only
	// ever writes through dst).
	if got := format.ToS16(format.S32LE, srcBuf[0:4]); got != 1000 {
		t.Errorf("source sample 0 mutated: got %d, want 1000", got)
	}
}

func TestSilenceZeroFillsWiderFormat(t *testing.T) {
	f := format.NewPCMFormat(format.S32LE, 48000, 1)
	buf := make([]byte, 3*4)
	format.FromS16(format.S32LE, 5, buf[0:4])
	format.FromS16(format.S32LE, 6, buf[4:8])
	format.FromS16(format.S32LE, 7, buf[8:12])
	a := New(f, buf, 3)
	Silence(a, 1, 1)

	if got := format.ToS16(format.S32LE, buf[0:4]); got != 5 {
		t.Errorf("frame 0 = %d, want 5 (untouched)", got)
	}
	for b := 4; b < 8; b++ {
		if buf[b] != 0 {
			t.Errorf("byte %d = %d, want 0 (silenced)", b, buf[b])
		}
	}
	if got := format.ToS16(format.S32LE, buf[8:12]); got != 7 {
		t.Errorf("frame 2 = %d, want 7 (untouched)", got)
	}
}

func TestSilenceZeroFills(t *testing.T) {
	f := format.NewPCMFormat(format.S16LE, 48000, 1)
	buf := s16Bytes(5, 6, 7, 8)
	a := New(f, buf, 4)
	Silence(a, 1, 2)
	want := []int16{5, 0, 0, 8}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}
