package shm

import "testing"

func TestCheckWriteOverrunInvariant(t *testing.T) {
	s := New(256, 4)

	// First write: buffer starts clean, no overrun.
	overran := s.CheckWriteOverrun()
	if overran {
		t.Fatal("first write should not be an overrun")
	}
	if s.writeOffset[s.writeBufIdx] != 0 {
		t.Fatalf("write_offset = %d, want 0", s.writeOffset[s.writeBufIdx])
	}
	if !s.writeInProgress[s.writeBufIdx] {
		t.Fatal("write_in_progress should be set after CheckWriteOverrun")
	}

	s.BufferWritten(10)
	before := s.NumOverruns()

	// Writing again without completing/flipping: prior write_offset != 0.
	overran = s.CheckWriteOverrun()
	if !overran {
		t.Fatal("expected overrun when write_offset was nonzero")
	}
	if s.NumOverruns() != before+1 {
		t.Fatalf("num_overruns = %d, want %d", s.NumOverruns(), before+1)
	}
	if s.writeOffset[s.writeBufIdx] != 0 {
		t.Fatalf("write_offset after overrun = %d, want 0", s.writeOffset[s.writeBufIdx])
	}
}

func TestBufferWriteCompleteFlips(t *testing.T) {
	s := New(256, 4)
	s.CheckWriteOverrun()
	s.BufferWritten(5)
	idxBefore := s.writeBufIdx
	s.BufferWriteComplete()
	if s.writeBufIdx == idxBefore {
		t.Fatal("BufferWriteComplete should flip the write buffer index")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	s := New(64, 1)
	s.CheckWriteOverrun()
	buf, avail := s.WritePointer()
	if avail != 64 {
		t.Fatalf("avail = %d, want 64", avail)
	}
	copy(buf, []byte{1, 2, 3, 4})
	s.BufferWritten(4)
	s.BufferWriteComplete()

	ptr, frames := s.GetReadableFrames(0)
	if frames != 4 {
		t.Fatalf("frames = %d, want 4", frames)
	}
	if ptr[0] != 1 || ptr[3] != 4 {
		t.Fatalf("unexpected read data: %v", ptr[:4])
	}
	s.BufferRead(4)
	if s.Level() != 0 {
		t.Fatalf("level after full read = %d, want 0", s.Level())
	}
}

func TestSetVolumeScalerClamps(t *testing.T) {
	s := New(64, 1)
	s.SetVolumeScaler(-1)
	if s.VolumeScaler() != 0 {
		t.Fatalf("got %f, want 0", s.VolumeScaler())
	}
	s.SetVolumeScaler(2)
	if s.VolumeScaler() != 1 {
		t.Fatalf("got %f, want 1", s.VolumeScaler())
	}
}
