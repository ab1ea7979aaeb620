package engine

import (
	"testing"
	"time"

	"github.com/ausocean/cras/audio/area"
	"github.com/ausocean/cras/audio/format"
	"github.com/ausocean/cras/audio/iodev"
	"github.com/ausocean/cras/audio/stream"
	"github.com/ausocean/utils/logging"
)

type nullLogger struct{}

func (nullLogger) SetLevel(int8)                                {}
func (nullLogger) Debug(msg string, args ...interface{})        {}
func (nullLogger) Info(msg string, args ...interface{})         {}
func (nullLogger) Warning(msg string, args ...interface{})      {}
func (nullLogger) Error(msg string, args ...interface{})        {}
func (nullLogger) Fatal(msg string, args ...interface{})        {}

var _ logging.Logger = nullLogger{}

type fakeBackend struct {
	f format.PCMFormat
}

func (f *fakeBackend) Format() format.PCMFormat { return f.f }
func (f *fakeBackend) GetBuffer(maxFrames int) (area.AudioArea, time.Time, error) {
	return area.New(f.f, make([]byte, maxFrames*f.f.FrameBytes()), maxFrames), time.Now(), nil
}
func (f *fakeBackend) PutBuffer(n int) error { return nil }
func (f *fakeBackend) FramesQueued() (int, time.Time, error) {
	return 100, time.Now(), nil
}
func (f *fakeBackend) Close() error { return nil }

func TestAddAndRemoveOpenDev(t *testing.T) {
	thr := New(nullLogger{})
	go thr.Run()
	defer func() {
		reply := make(chan Reply, 1)
		thr.Commands() <- Command{ID: Stop, Reply: reply}
		<-reply
	}()

	f := format.NewPCMFormat(format.S16LE, 48000, 2)
	dev := iodev.New(&fakeBackend{f: f}, iodev.Playback, 240, 960)

	reply := make(chan Reply, 1)
	thr.Commands() <- Command{ID: AddOpenDev, Dev: dev, Reply: reply}
	r := <-reply
	if r.Err != nil {
		t.Fatalf("AddOpenDev: %v", r.Err)
	}

	info := make(chan Reply, 1)
	thr.Commands() <- Command{ID: DumpThreadInfo, Reply: info}
	ir := <-info
	if ir.ThreadInfo.OpenOutputs != 1 {
		t.Fatalf("OpenOutputs = %d, want 1", ir.ThreadInfo.OpenOutputs)
	}

	rmReply := make(chan Reply, 1)
	thr.Commands() <- Command{ID: RmOpenDev, Dev: dev, Reply: rmReply}
	if rr := <-rmReply; rr.Err != nil {
		t.Fatalf("RmOpenDev: %v", rr.Err)
	}
}

// severeUnderrunBackend always reports a negative FramesQueued level, the
// -EPIPE-equivalent severe-underrun signal from spec.md scenario 5.
type severeUnderrunBackend struct {
	fakeBackend
}

func (f *severeUnderrunBackend) FramesQueued() (int, time.Time, error) {
	return -1, time.Now(), nil
}

// TestSevereUnderrunRequestsReset matches spec scenario 5: an output device
// in NORMAL_RUN whose FramesQueued reports a severe underrun must produce
// exactly one device on the reset-request side channel, and the device must
// remain attached (still reachable via DumpThreadInfo) rather than removed.
func TestSevereUnderrunRequestsReset(t *testing.T) {
	thr := New(nullLogger{})
	go thr.Run()
	defer func() {
		reply := make(chan Reply, 1)
		thr.Commands() <- Command{ID: Stop, Reply: reply}
		<-reply
	}()

	f := format.NewPCMFormat(format.S16LE, 48000, 2)
	dev := iodev.New(&severeUnderrunBackend{fakeBackend{f: f}}, iodev.Playback, 240, 960)
	// Attaching a stream moves the device into NORMAL_RUN. Its next callback
	// lies far ahead, so the scheduler sleeps after the first tick.
	rs := stream.NewRStream(1, stream.Playback, f, 64, 16, 0)
	rs.NextCBTs = time.Now().Add(time.Hour)
	ds, err := stream.NewDevStream(rs, f, 64, false)
	if err != nil {
		t.Fatalf("NewDevStream: %v", err)
	}
	dev.AttachStream(ds)

	reply := make(chan Reply, 1)
	thr.Commands() <- Command{ID: AddOpenDev, Dev: dev, Reply: reply}
	if r := <-reply; r.Err != nil {
		t.Fatalf("AddOpenDev: %v", r.Err)
	}

	select {
	case got := <-thr.ResetRequests():
		if got != dev {
			t.Fatalf("reset requested for wrong device")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a reset request")
	}

	select {
	case <-thr.ResetRequests():
		t.Fatal("got a second reset request, want exactly one per tick")
	case <-time.After(50 * time.Millisecond):
	}

	info := make(chan Reply, 1)
	thr.Commands() <- Command{ID: DumpThreadInfo, Reply: info}
	ir := <-info
	if ir.ThreadInfo.OpenOutputs != 1 {
		t.Fatalf("OpenOutputs = %d, want 1 (device must stay open for main to reset)", ir.ThreadInfo.OpenOutputs)
	}
}
