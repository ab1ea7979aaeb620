package iodev

import (
	"testing"
	"time"

	"github.com/ausocean/cras/audio/area"
	"github.com/ausocean/cras/audio/format"
)

type fakeBackend struct {
	f format.PCMFormat
}

func (f *fakeBackend) Format() format.PCMFormat { return f.f }
func (f *fakeBackend) GetBuffer(maxFrames int) (area.AudioArea, time.Time, error) {
	return area.New(f.f, make([]byte, maxFrames*f.f.FrameBytes()), maxFrames), time.Now(), nil
}
func (f *fakeBackend) PutBuffer(n int) error { return nil }
func (f *fakeBackend) FramesQueued() (int, time.Time, error) {
	return 0, time.Now(), nil
}
func (f *fakeBackend) Close() error { return nil }

func newTestDev() *IoDev {
	f := format.NewPCMFormat(format.S16LE, 48000, 2)
	return New(&fakeBackend{f: f}, Playback, 240, 960)
}

func TestCoarseRateAdjustSign(t *testing.T) {
	d := newTestDev()

	if _, err := d.UpdateRate(10, time.Now()); err != nil {
		t.Fatalf("UpdateRate: %v", err)
	}
	if d.CoarseRateAdjust != 1 {
		t.Errorf("low level: CoarseRateAdjust = %d, want 1", d.CoarseRateAdjust)
	}

	if _, err := d.UpdateRate(3000, time.Now()); err != nil {
		t.Fatalf("UpdateRate: %v", err)
	}
	if d.CoarseRateAdjust != -1 {
		t.Errorf("high level: CoarseRateAdjust = %d, want -1", d.CoarseRateAdjust)
	}

	if _, err := d.UpdateRate(500, time.Now()); err != nil {
		t.Fatalf("UpdateRate: %v", err)
	}
	if d.CoarseRateAdjust != 0 {
		t.Errorf("mid level: CoarseRateAdjust = %d, want 0", d.CoarseRateAdjust)
	}
}

func TestUpdateRateSevereUnderrun(t *testing.T) {
	d := newTestDev()
	_, err := d.UpdateRate(-1, time.Now())
	if err == nil {
		t.Fatal("expected error for negative level")
	}
	if d.SevereUnderrun != 1 {
		t.Errorf("SevereUnderrun = %d, want 1", d.SevereUnderrun)
	}
}

func TestPrepareOutputTransitions(t *testing.T) {
	d := newTestDev()
	d.PrepareOutputBeforeWriteSamples()
	if d.State() != NoStreamRun {
		t.Fatalf("state = %v, want NoStreamRun", d.State())
	}
}
