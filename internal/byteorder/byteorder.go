package byteorder

import (
	"encoding/binary"
	"math"
)

// https://linux.die.net/man/3/ntohs
// https://github.com/vishvananda/netlink/blob/e5fd1f8193dee65ec93fafde8faf67e32a34692a/order.go

// decrypt names:
// h  = host
// n  = network
// f  = float     = 32 bit ieee-754

// Htonf returns the raw ieee-754 bits of val in network order. NaN payloads
// are preserved.
func Htonf(val float32) [4]byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], math.Float32bits(val))
	return buf
}

func Ntohf(buf [4]byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(buf[:]))
}
