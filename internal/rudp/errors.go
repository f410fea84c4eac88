package rudp

import (
	"fmt"

	"github.com/blukai/rudpnet/internal/bitstream"
	"github.com/blukai/rudpnet/internal/protocol"
	"github.com/pkg/errors"
)

var (
	// ErrBufferFull is matched by every BufferFullError.
	ErrBufferFull = errors.New("reliable buffer full")
	// ErrUnexpectedPacketType is matched by every PacketTypeError.
	ErrUnexpectedPacketType = errors.New("unexpected packet type")
)

// BufferFullError means that enqueueing Requested more reliable elements
// would overwrite elements the peer has not acknowledged yet. Nothing was
// enqueued; the caller should retry once acks come in.
type BufferFullError struct {
	InFlight  int
	Requested int
}

func (e *BufferFullError) Error() string {
	return fmt.Sprintf("reliable buffer full: %d in flight, %d requested, %d max",
		e.InFlight, e.Requested, MaxInFlight)
}

func (e *BufferFullError) Is(target error) bool {
	return target == ErrBufferFull
}

type PacketTypeError struct {
	Expected protocol.PacketType
	Got      protocol.PacketType
}

func (e *PacketTypeError) Error() string {
	return fmt.Sprintf("unexpected packet type (got %s; want %s)", e.Got, e.Expected)
}

func (e *PacketTypeError) Is(target error) bool {
	return target == ErrUnexpectedPacketType
}

// Packet sections, in wire order.
const (
	SectionHeader     = "header"
	SectionClientID   = "client id"
	SectionUnreliable = "unreliable"
	SectionReliable   = "reliable"
)

// DecodeError carries everything needed to diagnose a framing desync: the
// bit stream has no markers to resynchronize on, so the raw datagram and the
// unreliable layout the caller expected are all there is.
type DecodeError struct {
	Data     []byte
	Expected []protocol.ElementID
	Section  string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode %s section of %d byte packet (expected unreliable %v): %v",
		e.Section, len(e.Data), e.Expected, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrorKind maps an error returned by this package to a short stable label,
// suitable for metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrBufferFull):
		return "buffer_full"
	case errors.Is(err, ErrUnexpectedPacketType):
		return "packet_type"
	case errors.Is(err, protocol.ErrUnknownElement):
		return "unknown_element"
	case errors.Is(err, protocol.ErrInvalidPacketData):
		return "invalid_data"
	case errors.Is(err, bitstream.ErrOutOfBounds):
		return "out_of_bounds"
	default:
		return "other"
	}
}
