// Package ioring provides a completion-based vectored file I/O queue.
// Requests are submitted to a submission queue and picked up again as
// completion events, decoupling archive writers from disk latency.
package ioring

import (
	"github.com/fgeck/pgbackctl/internal/models"
)

// Ring geometry defaults.
const (
	DefaultQueueDepth = 8
	DefaultBlockSize  = 4096
)

// VectoredBuffer aggregates a fixed number of equally sized blocks
// submitted as one vectored request. The effective size marks how many
// bytes of the buffer carry payload; a short trailing block is the
// rule for the last chunk of a stream.
type VectoredBuffer struct {
	blocks    [][]byte
	blockSize int

	// fileOffset is the absolute file position of the request.
	fileOffset int64

	// pos is the buffer-relative read/write cursor.
	pos int

	effectiveSize int
}

// NewVectoredBuffer allocates count blocks of size bytes each.
func NewVectoredBuffer(count, size int) (*VectoredBuffer, error) {
	if count <= 0 {
		return nil, models.NewRingError(0, "invalid block count %d", count)
	}
	if size <= 0 {
		return nil, models.NewRingError(0, "invalid block size %d", size)
	}

	blocks := make([][]byte, count)
	for i := range blocks {
		blocks[i] = make([]byte, size)
	}
	return &VectoredBuffer{blocks: blocks, blockSize: size}, nil
}

// Capacity returns the total byte capacity of the buffer.
func (b *VectoredBuffer) Capacity() int {
	return len(b.blocks) * b.blockSize
}

// BlockSize returns the size of one block.
func (b *VectoredBuffer) BlockSize() int {
	return b.blockSize
}

// NumBlocks returns the number of blocks.
func (b *VectoredBuffer) NumBlocks() int {
	return len(b.blocks)
}

// FileOffset returns the absolute file position of the request.
func (b *VectoredBuffer) FileOffset() int64 {
	return b.fileOffset
}

// SetFileOffset positions the request at the given absolute file
// offset.
func (b *VectoredBuffer) SetFileOffset(pos int64) error {
	if pos < 0 {
		return models.NewRingError(0, "negative file offset %d", pos)
	}
	b.fileOffset = pos
	return nil
}

// Offset returns the buffer-relative cursor.
func (b *VectoredBuffer) Offset() int {
	return b.pos
}

// SetOffset moves the buffer-relative cursor. Offsets beyond capacity
// are rejected.
func (b *VectoredBuffer) SetOffset(pos int) error {
	if pos < 0 || pos > b.Capacity() {
		return models.NewRingError(0, "buffer offset %d out of range [0, %d]", pos, b.Capacity())
	}
	b.pos = pos
	return nil
}

// EffectiveSize returns the payload watermark of the buffer.
func (b *VectoredBuffer) EffectiveSize() int {
	return b.effectiveSize
}

// SetEffectiveSize sets the payload watermark. Negative values and
// values above capacity are rejected.
func (b *VectoredBuffer) SetEffectiveSize(size int) error {
	if size < 0 || size > b.Capacity() {
		return models.NewRingError(0, "effective size %d out of range [0, %d]", size, b.Capacity())
	}
	b.effectiveSize = size
	if b.pos > size {
		b.pos = size
	}
	return nil
}

// Write copies data into the buffer at the cursor, advancing cursor
// and watermark. It returns the number of bytes copied, which is short
// when the buffer runs full.
func (b *VectoredBuffer) Write(data []byte) int {
	written := 0
	for len(data) > 0 && b.pos < b.Capacity() {
		block := b.pos / b.blockSize
		off := b.pos % b.blockSize
		n := copy(b.blocks[block][off:], data)
		data = data[n:]
		b.pos += n
		written += n
	}
	if b.pos > b.effectiveSize {
		b.effectiveSize = b.pos
	}
	return written
}

// Full reports whether the payload watermark reached capacity.
func (b *VectoredBuffer) Full() bool {
	return b.effectiveSize == b.Capacity()
}

// Reset clears cursor, watermark and file offset for buffer reuse.
func (b *VectoredBuffer) Reset() {
	b.pos = 0
	b.effectiveSize = 0
	b.fileOffset = 0
}

// iovecs returns the byte slices participating in the vectored
// request, trimmed to the effective size.
func (b *VectoredBuffer) iovecs() [][]byte {
	remaining := b.effectiveSize
	var iovs [][]byte
	for _, block := range b.blocks {
		if remaining <= 0 {
			break
		}
		n := remaining
		if n > len(block) {
			n = len(block)
		}
		iovs = append(iovs, block[:n])
		remaining -= n
	}
	return iovs
}

// Bytes returns the payload up to the effective size as one contiguous
// slice.
func (b *VectoredBuffer) Bytes() []byte {
	out := make([]byte, 0, b.effectiveSize)
	for _, iov := range b.iovecs() {
		out = append(out, iov...)
	}
	return out
}
