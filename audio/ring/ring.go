/*
NAME
  ring.go

DESCRIPTION
  ring.go provides ByteBuffer, a fixed-capacity power-of-two byte ring used
  as intermediate storage inside the per-stream format-conversion pipeline.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package ring provides ByteBuffer, a single-producer single-consumer byte
// ring with an explicit used_size smaller than or equal to its allocated
// capacity.
package ring

// ByteBuffer is a fixed-capacity byte ring. It is not safe for concurrent
// use by more than one reader and one writer.
type ByteBuffer struct {
	bytes    []byte
	maxSize  int
	usedSize int
	readIdx  int
	writeIdx int
	level    int
}

// New allocates a ByteBuffer with capacity maxSize. The effective size
// starts out equal to maxSize; use SetUsedSize to shrink it.
func New(maxSize int) *ByteBuffer {
	return &ByteBuffer{
		bytes:    make([]byte, maxSize),
		maxSize:  maxSize,
		usedSize: maxSize,
	}
}

// SetUsedSize sets the effective size of the buffer, clamping to maxSize.
// The buffer is reset as part of changing its effective size.
func (b *ByteBuffer) SetUsedSize(n int) {
	if n > b.maxSize {
		n = b.maxSize
	}
	if n < 0 {
		n = 0
	}
	b.usedSize = n
	b.Reset()
}

// Reset empties the buffer without changing its used size.
func (b *ByteBuffer) Reset() {
	b.readIdx = 0
	b.writeIdx = 0
	b.level = 0
}

// UsedSize returns the buffer's current effective size.
func (b *ByteBuffer) UsedSize() int { return b.usedSize }

// QueuedBytes returns the number of bytes currently held in the buffer.
func (b *ByteBuffer) QueuedBytes() int { return b.level }

// AvailableBytes returns the number of bytes that can still be written
// before the buffer is full.
func (b *ByteBuffer) AvailableBytes() int { return b.usedSize - b.level }

// ReadableBytes returns the number of contiguous bytes available at
// ReadPointer without wrapping.
func (b *ByteBuffer) ReadableBytes() int {
	if b.usedSize == 0 {
		return 0
	}
	n := b.usedSize - b.readIdx
	if n > b.level {
		n = b.level
	}
	return n
}

// WritableBytes returns the number of contiguous bytes available at
// WritePointer without wrapping. A writer must call WritePointer/
// WritableBytes twice to fill a region spanning the wrap point.
func (b *ByteBuffer) WritableBytes() int {
	if b.level == b.usedSize || b.usedSize == 0 {
		return 0
	}
	free := b.usedSize - b.level
	toWrap := b.usedSize - b.writeIdx
	if free < toWrap {
		return free
	}
	return toWrap
}

// ReadPointer returns the slice a reader may read from; its length is
// ReadableBytes().
func (b *ByteBuffer) ReadPointer() []byte {
	n := b.ReadableBytes()
	return b.bytes[b.readIdx : b.readIdx+n]
}

// WritePointer returns the slice a writer may write into; its length is
// WritableBytes().
func (b *ByteBuffer) WritePointer() []byte {
	n := b.WritableBytes()
	return b.bytes[b.writeIdx : b.writeIdx+n]
}

// IncrementRead advances the read pointer by up to n bytes (clamped to the
// queued level) and decreases the level by the same amount.
func (b *ByteBuffer) IncrementRead(n int) int {
	if n > b.level {
		n = b.level
	}
	if b.usedSize > 0 {
		b.readIdx = (b.readIdx + n) % b.usedSize
	}
	b.level -= n
	return n
}

// IncrementWrite advances the write pointer by n bytes and increases the
// level by the same amount, saturating at usedSize. Writing past usedSize is
// an engine programming error: the caller must size usedSize so that never
// happens in correct use.
func (b *ByteBuffer) IncrementWrite(n int) int {
	if b.usedSize > 0 {
		b.writeIdx = (b.writeIdx + n) % b.usedSize
	}
	b.level += n
	if b.level > b.usedSize {
		b.level = b.usedSize
	}
	return n
}
