package bitstream_test

import (
	"errors"
	"testing"

	"github.com/blukai/rudpnet/internal/bitstream"
	"github.com/matryer/is"
)

func TestWriteRead(t *testing.T) {
	is := is.New(t)

	testCases := []struct {
		name  string
		value uint32
		bits  int
	}{
		{"less than a byte", 14, 4},
		{"full byte", 225, 8},
		{"more than a byte", 1057, 20},
		{"full word", 0xdeadbeef, 32},
		{"zero width", 0, 0},
	}

	for _, tc := range testCases {
		bs := bitstream.New(make([]byte, 1024))

		err := bs.Write(tc.value, 0, tc.bits)
		is.NoErr(err)
		is.Equal(bs.BitsWritten(), tc.bits)

		got, err := bs.Read(0, tc.bits)
		is.NoErr(err)
		is.Equal(got, tc.value) // tc.name
	}
}

func TestWriteOffset(t *testing.T) {
	is := is.New(t)

	bs := bitstream.New(make([]byte, 1024))
	err := bs.Write(1057, 10, 20)
	is.NoErr(err)

	got, err := bs.Read(0, 20)
	is.NoErr(err)
	is.Equal(got, uint32(1057>>10))
}

func TestWriteTruncatesToWidth(t *testing.T) {
	is := is.New(t)

	bs := bitstream.New(make([]byte, 4))
	err := bs.Write(0b1011_0110, 2, 3) // 0b101101 -> low 3 bits 0b101
	is.NoErr(err)

	got, err := bs.Read(0, 3)
	is.NoErr(err)
	is.Equal(got, uint32(0b101))
}

func TestWriteMultiple(t *testing.T) {
	is := is.New(t)

	bs := bitstream.New(make([]byte, 1024))
	is.NoErr(bs.Write(1057, 0, 20))
	is.NoErr(bs.Write(15, 0, 4))
	is.NoErr(bs.Write(4, 0, 3))

	first, err := bs.Read(0, 20)
	is.NoErr(err)
	second, err := bs.Read(20, 4)
	is.NoErr(err)
	third, err := bs.Read(24, 3)
	is.NoErr(err)

	is.Equal(first, uint32(1057))
	is.Equal(second, uint32(15))
	is.Equal(third, uint32(4))
}

func TestReadNext(t *testing.T) {
	is := is.New(t)

	bs := bitstream.New(make([]byte, 1024))
	is.NoErr(bs.Write(1057, 0, 20))
	is.NoErr(bs.Write(15, 0, 4))
	is.NoErr(bs.Write(4, 0, 3))

	first, err := bs.ReadNext(20)
	is.NoErr(err)
	second, err := bs.ReadNext(4)
	is.NoErr(err)
	third, err := bs.ReadNext(3)
	is.NoErr(err)

	is.Equal(first, uint32(1057))
	is.Equal(second, uint32(15))
	is.Equal(third, uint32(4))
	is.Equal(bs.BitsRead(), 27)
}

func TestMSBFirstLayout(t *testing.T) {
	is := is.New(t)

	bs := bitstream.New(make([]byte, 2))
	is.NoErr(bs.Write(0b1011, 0, 4))
	is.NoErr(bs.Write(0b01, 0, 2))
	is.NoErr(bs.Write(0b111, 0, 3))

	is.Equal(bs.Bytes(), []byte{0b1011_0111, 0b1000_0000})
}

func TestUint8(t *testing.T) {
	is := is.New(t)

	bs := bitstream.New(make([]byte, 1024))
	is.NoErr(bs.WriteUint8(14, 0, 4))
	is.NoErr(bs.WriteUint8(0xa5, 0, 8))

	got, err := bs.ReadUint8(0, 4)
	is.NoErr(err)
	is.Equal(got, byte(14))

	_, err = bs.ReadNextUint8(4)
	is.NoErr(err)
	got, err = bs.ReadNextUint8(8)
	is.NoErr(err)
	is.Equal(got, byte(0xa5))
}

func TestOverwriteClearsDestination(t *testing.T) {
	is := is.New(t)

	buf := []byte{0xff, 0xff}
	bs := bitstream.New(buf)
	is.NoErr(bs.Write(0, 0, 12))

	is.Equal(buf, []byte{0x00, 0x0f})
}

func TestWriteOutOfBounds(t *testing.T) {
	is := is.New(t)

	buf := make([]byte, 2)
	bs := bitstream.New(buf)
	is.NoErr(bs.Write(0x3ff, 0, 10))

	err := bs.Write(0x7f, 0, 7)
	is.True(errors.Is(err, bitstream.ErrOutOfBounds))
	// failed write must not touch the buffer or the cursor
	is.Equal(bs.BitsWritten(), 10)
	is.Equal(buf, []byte{0xff, 0xc0})

	is.NoErr(bs.Write(0x3f, 0, 6))
	is.Equal(bs.BitsWritten(), bs.Cap())
}

func TestReadOutOfBounds(t *testing.T) {
	is := is.New(t)

	bs := bitstream.New(make([]byte, 1))

	_, err := bs.Read(4, 5)
	is.True(errors.Is(err, bitstream.ErrOutOfBounds))

	_, err = bs.Read(-1, 1)
	is.True(errors.Is(err, bitstream.ErrOutOfBounds))

	_, err = bs.ReadNext(6)
	is.NoErr(err)
	_, err = bs.ReadNext(3)
	is.True(errors.Is(err, bitstream.ErrOutOfBounds))
	is.Equal(bs.BitsRead(), 6)
}

func TestNewSize(t *testing.T) {
	is := is.New(t)

	is.Equal(bitstream.NewSize(0).Cap(), 0)
	is.Equal(bitstream.NewSize(1).Cap(), 8)
	is.Equal(bitstream.NewSize(8).Cap(), 8)
	is.Equal(bitstream.NewSize(39).Cap(), 40)
}
