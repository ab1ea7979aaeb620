package stream

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/ausocean/cras/audio/area"
	"github.com/ausocean/cras/audio/format"
)

func stereoFormat() format.PCMFormat {
	return format.NewPCMFormat(format.S16LE, 48000, 2)
}

func TestRStreamValidate(t *testing.T) {
	f := stereoFormat()
	rs := NewRStream(1, Playback, f, 64, 16, 0)
	if err := rs.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	rs.CBThresh = 0
	if err := rs.Validate(); err == nil {
		t.Fatal("expected error for zero cb_threshold")
	}

	rs.CBThresh = rs.BufFrames + 1
	if err := rs.Validate(); err == nil {
		t.Fatal("expected error for cb_threshold exceeding buffer_frames")
	}
}

func TestSetDevOffsetClampsToCBThreshold(t *testing.T) {
	f := stereoFormat()
	rs := NewRStream(1, Playback, f, 64, 16, 0)
	ds, err := NewDevStream(rs, f, 32, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}

	ds.SetDevOffset(5)
	if got := ds.DevOffset(); got != 5 {
		t.Errorf("DevOffset = %d, want 5", got)
	}

	ds.SetDevOffset(1000)
	if got := ds.DevOffset(); got != rs.CBThresh {
		t.Errorf("DevOffset = %d, want clamped to %d", got, rs.CBThresh)
	}
}

// TestAppendStreamSeedsOffsetFromExisting matches scenario 4: when a second
// stream joins a device that already carries one, the new binding's offset
// is seeded from the existing one so both streams read the device at the
// same point, per the append-stream policy bindStreamToDev implements.
func TestAppendStreamSeedsOffsetFromExisting(t *testing.T) {
	f := stereoFormat()

	existingRS := NewRStream(1, Playback, f, 64, 16, 0)
	existing, err := NewDevStream(existingRS, f, 32, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}
	existing.SetDevOffset(10)

	joiningRS := NewRStream(2, Playback, f, 64, 16, 0)
	joining, err := NewDevStream(joiningRS, f, 32, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}
	if got := joining.DevOffset(); got != 0 {
		t.Fatalf("new binding's offset = %d, want 0 before seeding", got)
	}

	joining.SetDevOffset(existing.DevOffset())
	if got := joining.DevOffset(); got != 10 {
		t.Errorf("seeded DevOffset = %d, want 10", got)
	}
}

func stereoFrames(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestCaptureNoConversionCopiesIntoShm(t *testing.T) {
	f := stereoFormat()
	rs := NewRStream(1, Capture, f, 64, 16, 0)
	ds, err := NewDevStream(rs, f, 32, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}

	samples := []int16{100, -200, 300, -400} // 2 frames, stereo.
	devBuf := stereoFrames(samples)
	devArea := area.New(f, devBuf, 2)

	n, err := ds.Capture(devArea, 0, 1.0)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if n != 2 {
		t.Fatalf("frames captured = %d, want 2", n)
	}
	if got := ds.DevOffset(); got != 2 {
		t.Errorf("DevOffset after capture = %d, want 2", got)
	}

	ptr, avail := rs.Shm.GetReadableFrames(0)
	if avail != 2 {
		t.Fatalf("shm readable frames = %d, want 2", avail)
	}
	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(ptr[i*2:]))
		if got != want {
			t.Errorf("sample %d = %d, want %d", i, got, want)
		}
	}
}

func TestCaptureAvailBoundsByShmSpace(t *testing.T) {
	f := stereoFormat()
	rs := NewRStream(1, Capture, f, 4, 2, 0) // 4 frames of shm capacity.
	ds, err := NewDevStream(rs, f, 32, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}
	if got := ds.CaptureAvail(); got != 4 {
		t.Errorf("CaptureAvail = %d, want 4 (fresh shm)", got)
	}
}

func TestMixAddsScaledSamplesIntoDestination(t *testing.T) {
	f := stereoFormat()
	rs := NewRStream(1, Playback, f, 64, 16, 0)
	ds, err := NewDevStream(rs, f, 32, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}

	samples := []int16{100, -200, 300, -400} // 2 frames, stereo.
	wbuf, _ := rs.Shm.WritePointer()
	copy(wbuf, stereoFrames(samples))
	rs.Shm.BufferWritten(2)

	dst := area.New(f, make([]byte, 2*f.FrameBytes()), 2)
	n, err := ds.Mix(dst, 2)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if n != 2 {
		t.Fatalf("frames mixed = %d, want 2", n)
	}

	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(dst.Channels[i%2].Buf[(i/2)*dst.Channels[i%2].Step:]))
		if got != want {
			t.Errorf("dst sample %d = %d, want %d", i, got, want)
		}
	}
}

func TestMixMutedStreamProducesNothing(t *testing.T) {
	f := stereoFormat()
	rs := NewRStream(1, Playback, f, 64, 16, 0)
	rs.Muted = true
	ds, err := NewDevStream(rs, f, 32, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}

	wbuf, _ := rs.Shm.WritePointer()
	copy(wbuf, stereoFrames([]int16{100, 200}))
	rs.Shm.BufferWritten(1)

	dst := area.New(f, make([]byte, f.FrameBytes()), 1)
	n, err := ds.Mix(dst, 1)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if n != 0 {
		t.Errorf("frames mixed = %d, want 0 for a muted stream", n)
	}
	for _, c := range dst.Channels {
		if c.Buf[0] != 0 || c.Buf[1] != 0 {
			t.Errorf("muted mix wrote into destination buffer")
		}
	}
}

func TestCaptureUpdateRStreamBulkAudioOk(t *testing.T) {
	f := stereoFormat()
	rs := NewRStream(1, Capture, f, 64, 4, BulkAudioOK)
	ds, err := NewDevStream(rs, f, 32, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}
	rs.SleepInterval = 10 * time.Millisecond
	rs.NextCBTs = time.Now().Add(time.Hour) // far in the future: only BulkAudioOK should trigger.

	wbuf, _ := rs.Shm.WritePointer()
	copy(wbuf, stereoFrames([]int16{1, 2, 3, 4, 5, 6, 7, 8}))
	rs.Shm.BufferWritten(4)

	before := rs.NextCBTs
	if !ds.CaptureUpdateRStream(time.Now()) {
		t.Fatal("expected ready=true once level reaches cb_threshold")
	}
	if !rs.NextCBTs.After(before) {
		t.Error("NextCBTs should advance once a ready buffer is posted")
	}
}

func TestDevStreamStatsAccumulatesCoarseAdjustments(t *testing.T) {
	f := stereoFormat()
	rs := NewRStream(1, Playback, f, 64, 16, 0)
	ds, err := NewDevStream(rs, f, 32, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}
	ds.Master = false

	for i := 0; i < 3; i++ {
		ds.SetDevRate(48000, 1.0, 1.0, 1)
	}
	if got := ds.Stats().CoarseAdjustments; got != 3 {
		t.Errorf("CoarseAdjustments = %d, want 3", got)
	}
}

func TestDevStreamStatsIgnoresMasterAdjustments(t *testing.T) {
	f := stereoFormat()
	rs := NewRStream(1, Playback, f, 64, 16, 0)
	ds, err := NewDevStream(rs, f, 32, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}
	ds.Master = true

	ds.SetDevRate(48000, 1.0, 1.0, 1)
	if got := ds.Stats().CoarseAdjustments; got != 0 {
		t.Errorf("CoarseAdjustments = %d, want 0 for a master binding", got)
	}
}

func TestBitrateReportsWithoutError(t *testing.T) {
	f := stereoFormat()
	rs := NewRStream(1, Playback, f, 64, 16, 0)
	ds, err := NewDevStream(rs, f, 32, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}

	wbuf, _ := rs.Shm.WritePointer()
	copy(wbuf, stereoFrames([]int16{1, 2, 3, 4}))
	rs.Shm.BufferWritten(2)

	if _, err := ds.Mix(area.New(f, make([]byte, 2*f.FrameBytes()), 2), 2); err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if got := rs.Bitrate(); got < 0 {
		t.Errorf("Bitrate = %d, want >= 0", got)
	}
}
