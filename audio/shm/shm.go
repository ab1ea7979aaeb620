/*
NAME
  shm.go

DESCRIPTION
  shm.go implements SharedMemoryRegion, the double-buffered sample area and
  control words shared between the engine and a client stream. In the
  original cross-process design this region lives in POSIX shared memory;
  here it is an in-process struct, since a DevStream and its RStream always
  run inside the same Go process, but the field layout and wire struct match
  what would be mapped across a process boundary.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package shm implements the double-buffered shared-memory protocol used to
// pass samples between a stream's client and the audio engine.
package shm

import "time"

// numBuffers is fixed at two; buffer indices are masked with & 1.
const numBuffers = 2

// SharedMemoryRegion is the double-buffered sample area plus control state
// shared between the engine and one stream's client.
type SharedMemoryRegion struct {
	usedSize   int // bytes per buffer.
	frameBytes int

	readBufIdx  int
	writeBufIdx int

	readOffset       [numBuffers]int
	writeOffset      [numBuffers]int
	writeInProgress  [numBuffers]bool

	volumeScaler    float64
	mute            bool
	callbackPending bool
	numOverruns     uint32
	timestamp       time.Time

	samples []byte // numBuffers * usedSize bytes.
}

// New builds a SharedMemoryRegion with usedSize bytes per buffer and
// frameBytes bytes per frame.
func New(usedSize, frameBytes int) *SharedMemoryRegion {
	return &SharedMemoryRegion{
		usedSize:    usedSize,
		frameBytes:  frameBytes,
		volumeScaler: 1.0,
		samples:     make([]byte, numBuffers*usedSize),
	}
}

// UsedSize returns the per-buffer size in bytes.
func (s *SharedMemoryRegion) UsedSize() int { return s.usedSize }

// bufBytes returns the slice of samples backing buffer i.
func (s *SharedMemoryRegion) bufBytes(i int) []byte {
	return s.samples[i*s.usedSize : (i+1)*s.usedSize]
}

// clampReadOffset implements the reader-side robustness rule: a writer may
// observe a read_offset beyond used_size; it must be treated as empty (0).
func clampReadOffset(off, usedSize int) int {
	if off > usedSize {
		return 0
	}
	return off
}

// clampWriteOffset implements the writer-side robustness rule: a reader may
// observe a write_offset beyond used_size; it must be treated as full.
func clampWriteOffset(off, usedSize int) int {
	if off > usedSize {
		return usedSize
	}
	return off
}

// CheckWriteOverrun must be called before writing into the current write
// buffer. If the buffer's previous write_offset is nonzero, the write is an
// overrun: the buffer is zero-filled and the overrun counter is
// incremented. In all cases, write_in_progress is set for the buffer.
func (s *SharedMemoryRegion) CheckWriteOverrun() (overran bool) {
	i := s.writeBufIdx
	if s.writeOffset[i] != 0 {
		for j := range s.bufBytes(i) {
			s.bufBytes(i)[j] = 0
		}
		s.numOverruns++
		s.writeOffset[i] = 0
		overran = true
	}
	s.writeInProgress[i] = true
	return overran
}

// WritePointer returns the base pointer and remaining capacity, in bytes,
// of the current write buffer.
func (s *SharedMemoryRegion) WritePointer() (buf []byte, avail int) {
	i := s.writeBufIdx
	off := clampWriteOffset(s.writeOffset[i], s.usedSize)
	return s.bufBytes(i)[off:], s.usedSize - off
}

// BufferWritten advances the current write buffer's offset by n frames.
func (s *SharedMemoryRegion) BufferWritten(n int) {
	s.writeOffset[s.writeBufIdx] += n * s.frameBytes
}

// BufferWriteComplete flips the write buffer index, handing the completed
// buffer to the reader.
func (s *SharedMemoryRegion) BufferWriteComplete() {
	s.writeBufIdx = (s.writeBufIdx + 1) & (numBuffers - 1)
	s.writeInProgress[s.writeBufIdx] = false
}

// GetReadableFrames returns a base pointer into the current read buffer
// (starting offsetFrames frames past the stored read offset) and the
// number of contiguous frames available without crossing the buffer's end.
func (s *SharedMemoryRegion) GetReadableFrames(offsetFrames int) (ptr []byte, frames int) {
	i := s.readBufIdx
	base := clampReadOffset(s.readOffset[i], s.usedSize)
	base += offsetFrames * s.frameBytes
	if base >= s.writeOffset[i] || base >= s.usedSize {
		return nil, 0
	}
	avail := s.writeOffset[i] - base
	if avail < 0 {
		avail = 0
	}
	return s.bufBytes(i)[base:], avail / s.frameBytes
}

// BufferRead advances the read offset of the current buffer by n frames,
// auto-switching to the other buffer once the current one is fully
// consumed (its write_offset has been reached).
func (s *SharedMemoryRegion) BufferRead(n int) {
	i := s.readBufIdx
	s.readOffset[i] += n * s.frameBytes
	if s.readOffset[i] >= s.writeOffset[i] {
		s.readOffset[i] = 0
		s.writeOffset[i] = 0
		s.readBufIdx = (s.readBufIdx + 1) & (numBuffers - 1)
	}
}

// SetVolumeScaler sets the region's volume scaler, clamped to [0,1].
func (s *SharedMemoryRegion) SetVolumeScaler(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.volumeScaler = v
}

// VolumeScaler returns the current volume scaler.
func (s *SharedMemoryRegion) VolumeScaler() float64 { return s.volumeScaler }

// SetMute sets the region's mute flag.
func (s *SharedMemoryRegion) SetMute(m bool) { s.mute = m }

// Mute reports the region's mute flag.
func (s *SharedMemoryRegion) Mute() bool { return s.mute }

// SetCallbackPending marks that the server has asked the client for
// samples and is waiting on a reply.
func (s *SharedMemoryRegion) SetCallbackPending(p bool) { s.callbackPending = p }

// CallbackPending reports whether a callback is outstanding.
func (s *SharedMemoryRegion) CallbackPending() bool { return s.callbackPending }

// NumOverruns returns the total number of write overruns observed.
func (s *SharedMemoryRegion) NumOverruns() uint32 { return s.numOverruns }

// SetTimestamp stamps the region with the time samples were last written.
func (s *SharedMemoryRegion) SetTimestamp(t time.Time) { s.timestamp = t }

// Timestamp returns the region's last-write timestamp.
func (s *SharedMemoryRegion) Timestamp() time.Time { return s.timestamp }

// Level returns the number of unread bytes queued in the current read
// buffer, used by callers computing cb_threshold comparisons.
func (s *SharedMemoryRegion) Level() int {
	i := s.readBufIdx
	read := clampReadOffset(s.readOffset[i], s.usedSize)
	write := s.writeOffset[i]
	if write < read {
		return 0
	}
	return write - read
}

// WireRegion is the packed, fixed-layout struct that would be mapped across
// a process boundary in a true shared-memory implementation; Snapshot
// produces one from the current region state for transport or diagnostics.
type WireRegion struct {
	UsedSize        uint32
	FrameBytes      uint32
	ReadBufIdx      uint32
	WriteBufIdx     uint32
	ReadOffset      [2]uint32
	WriteOffset     [2]uint32
	WriteInProgress [2]int32
	VolumeScaler    float32
	Mute            int32
	CallbackPending int32
	NumOverruns     uint32
	TsSec           int64
	TsNsec          int64
}

// Snapshot returns the wire-layout view of the region's current state.
func (s *SharedMemoryRegion) Snapshot() WireRegion {
	w := WireRegion{
		UsedSize:        uint32(s.usedSize),
		FrameBytes:      uint32(s.frameBytes),
		ReadBufIdx:      uint32(s.readBufIdx),
		WriteBufIdx:     uint32(s.writeBufIdx),
		VolumeScaler:    float32(s.volumeScaler),
		NumOverruns:     s.numOverruns,
		TsSec:           s.timestamp.Unix(),
		TsNsec:          int64(s.timestamp.Nanosecond()),
	}
	for i := 0; i < numBuffers; i++ {
		w.ReadOffset[i] = uint32(s.readOffset[i])
		w.WriteOffset[i] = uint32(s.writeOffset[i])
		if s.writeInProgress[i] {
			w.WriteInProgress[i] = 1
		}
	}
	if s.mute {
		w.Mute = 1
	}
	if s.callbackPending {
		w.CallbackPending = 1
	}
	return w
}
