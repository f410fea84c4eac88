package protocol

import (
	"math"
	"unicode/utf8"

	"github.com/blukai/rudpnet/internal/bitstream"
	"github.com/blukai/rudpnet/internal/byteorder"
	"github.com/hashicorp/go-multierror"
)

// Float32Bits is the width of a float field; floats are never bit packed.
const Float32Bits = 4 * bitstream.ByteSize

// fieldWriter remembers the first error so that serializers can be written as
// a flat list of fields.
type fieldWriter struct {
	bs  *bitstream.BitStream
	err error
}

func (w *fieldWriter) uint(v, bits int) {
	if w.err != nil {
		return
	}
	w.err = w.bs.Write(uint32(v), 0, bits)
}

// count writes a length prefix. A prefix that does not fit would be
// truncated and desync every field after it, so it fails instead.
func (w *fieldWriter) count(id ElementID, field string, n, max, bits int) {
	if w.err != nil {
		return
	}
	if n > max {
		w.err = &ValidationError{
			Element: id,
			Field:   field,
			Value:   n,
			Min:     0,
			Max:     max,
		}
		return
	}
	w.uint(n, bits)
}

func (w *fieldWriter) bool(v bool) {
	b := 0
	if v {
		b = 1
	}
	w.uint(b, 1)
}

func (w *fieldWriter) bytes(p []byte) {
	for _, b := range p {
		if w.err != nil {
			return
		}
		w.err = w.bs.WriteUint8(b, 0, bitstream.ByteSize)
	}
}

func (w *fieldWriter) float32(f float32) {
	b := byteorder.Htonf(f)
	w.bytes(b[:])
}

type fieldReader struct {
	bs  *bitstream.BitStream
	err error
}

func (r *fieldReader) uint(bits int) int {
	if r.err != nil {
		return 0
	}
	v, err := r.bs.ReadNext(bits)
	r.err = err
	return int(v)
}

func (r *fieldReader) bool() bool {
	return r.uint(1) == 1
}

func (r *fieldReader) bytes(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		if r.err != nil {
			return nil
		}
		p[i], r.err = r.bs.ReadNextUint8(bitstream.ByteSize)
	}
	return p
}

func (r *fieldReader) float32() float32 {
	var b [4]byte
	copy(b[:], r.bytes(len(b)))
	return byteorder.Ntohf(b)
}

// validator collects every violated bound of an element.
type validator struct {
	id  ElementID
	err error
}

func (v *validator) max(field string, value, max int) {
	if value < 0 || value > max {
		v.err = multierror.Append(v.err, &ValidationError{
			Element: v.id,
			Field:   field,
			Value:   value,
			Min:     0,
			Max:     max,
		})
	}
}

func (v *validator) float(field string, value, min, max float32) {
	f := float64(value)
	if math.IsNaN(f) || math.IsInf(f, 0) || value < min || value > max {
		v.err = multierror.Append(v.err, &ValidationError{
			Element: v.id,
			Field:   field,
			Value:   value,
			Min:     min,
			Max:     max,
		})
	}
}

func (v *validator) name(field string, name string) {
	if len(name) > NameBytesMax || !utf8.ValidString(name) {
		v.err = multierror.Append(v.err, &ValidationError{
			Element: v.id,
			Field:   field,
			Value:   name,
			Min:     0,
			Max:     NameBytesMax,
		})
	}
}

func (v *validator) Err() error {
	return v.err
}
