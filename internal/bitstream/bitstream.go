// Package bitstream packs and unpacks fixed-width integer fields into a byte
// buffer, most significant bit first.
//
// There is no framing: fields must be read back in exactly the order and with
// exactly the widths they were written with.
//
//	Write(0b1011, 0, 4); Write(0b01, 0, 2); Write(0b111, 0, 3)
//
//	 byte 0            byte 1
//	+-+-+-+-+-+-+-+-+ +-+-+-+-+-+-+-+-+
//	|1 0 1 1|0 1|1 1| |1|             |
//	+-+-+-+-+-+-+-+-+ +-+-+-+-+-+-+-+-+
package bitstream

import (
	"github.com/blukai/rudpnet/internal/debug"
	"github.com/pkg/errors"
)

const (
	ByteSize = 8
	// MaxFieldBits is the widest field a single Write or Read can move.
	MaxFieldBits = 32
)

// ErrOutOfBounds is returned when a write would run past the end of the
// buffer or a read would start or end outside of it.
var ErrOutOfBounds = errors.New("bitstream: out of bounds")

// BitStream wraps a byte buffer. The write cursor only moves forward; the read
// cursor is independent of it, so a stream can be written and then read back.
type BitStream struct {
	buf []byte

	// absolute bit offsets
	writePos int
	readPos  int
}

// New borrows buf; the stream never grows it.
func New(buf []byte) *BitStream {
	return &BitStream{buf: buf}
}

// NewSize allocates a zeroed buffer large enough to hold bits.
func NewSize(bits int) *BitStream {
	return New(make([]byte, BytesFor(bits)))
}

// BytesFor rounds bits up to whole bytes.
func BytesFor(bits int) int {
	return (bits + ByteSize - 1) / ByteSize
}

// Write shifts value right by offset and writes the low bits of the result.
// Bits already present at the destination are overwritten.
func (bs *BitStream) Write(value uint32, offset, bits int) error {
	debug.Assertf(bits >= 0 && bits <= MaxFieldBits, "invalid bit count %d", bits)
	debug.Assertf(offset >= 0, "invalid offset %d", offset)

	if capacity := bs.Cap(); bs.writePos+bits > capacity {
		return errors.Wrapf(ErrOutOfBounds,
			"write of %d bits at bit %d exceeds capacity of %d bits",
			bits, bs.writePos, capacity)
	}

	value >>= uint(offset)
	for remaining := bits; remaining > 0; {
		index := bs.writePos / ByteSize
		space := ByteSize - bs.writePos%ByteSize
		n := min(space, remaining)

		chunk := (value >> uint(remaining-n)) & lowMask(n)
		shift := uint(space - n)
		mask := byte(lowMask(n) << shift)
		bs.buf[index] = bs.buf[index]&^mask | byte(chunk<<shift)

		bs.writePos += n
		remaining -= n
	}

	return nil
}

// WriteUint8 is Write for single byte values. It is what raw byte runs (utf-8
// names, float bytes) go through.
func (bs *BitStream) WriteUint8(value byte, offset, bits int) error {
	debug.Assertf(bits >= 0 && bits <= ByteSize, "invalid bit count %d for a byte", bits)
	return bs.Write(uint32(value), offset, bits)
}

// Read returns bits bits starting at the absolute bit offset. It does not move
// any cursor.
func (bs *BitStream) Read(offset, bits int) (uint32, error) {
	debug.Assertf(bits >= 0 && bits <= MaxFieldBits, "invalid bit count %d", bits)

	if capacity := bs.Cap(); offset < 0 || offset+bits > capacity {
		return 0, errors.Wrapf(ErrOutOfBounds,
			"read of %d bits at bit %d exceeds capacity of %d bits",
			bits, offset, capacity)
	}

	var out uint32
	for remaining := bits; remaining > 0; {
		index := offset / ByteSize
		bit := offset % ByteSize
		n := min(ByteSize-bit, remaining)

		chunk := (uint32(bs.buf[index]) >> uint(ByteSize-bit-n)) & lowMask(n)
		out = out<<uint(n) | chunk

		offset += n
		remaining -= n
	}

	return out, nil
}

// ReadUint8 is Read for fields of at most 8 bits.
func (bs *BitStream) ReadUint8(offset, bits int) (byte, error) {
	debug.Assertf(bits >= 0 && bits <= ByteSize, "invalid bit count %d for a byte", bits)
	v, err := bs.Read(offset, bits)
	return byte(v), err
}

// ReadNext reads at the read cursor and advances it. The cursor does not move
// when the read fails.
func (bs *BitStream) ReadNext(bits int) (uint32, error) {
	v, err := bs.Read(bs.readPos, bits)
	if err != nil {
		return 0, err
	}
	bs.readPos += bits
	return v, nil
}

func (bs *BitStream) ReadNextUint8(bits int) (byte, error) {
	v, err := bs.ReadUint8(bs.readPos, bits)
	if err != nil {
		return 0, err
	}
	bs.readPos += bits
	return v, nil
}

// Cap is the capacity in bits.
func (bs *BitStream) Cap() int { return len(bs.buf) * ByteSize }

func (bs *BitStream) BitsWritten() int { return bs.writePos }

func (bs *BitStream) BitsRead() int { return bs.readPos }

// Bytes returns the written part of the buffer, including the partially
// filled last byte.
func (bs *BitStream) Bytes() []byte {
	return bs.buf[:BytesFor(bs.writePos)]
}

func lowMask(n int) uint32 {
	if n >= MaxFieldBits {
		return ^uint32(0)
	}
	return uint32(1)<<uint(n) - 1
}
