package protocol

import (
	"fmt"
	"math/bits"

	"github.com/blukai/rudpnet/internal/bitstream"
	"github.com/pkg/errors"
)

// ElementID tags an element kind. Only update elements (1..MaxIndicator) are
// ever written to the wire as indicators; plain elements sit above that range
// so that an indicator can never decode to them.
type ElementID uint8

const (
	IDInvalid ElementID = iota

	// update elements
	IDHealth
	IDPosition
	IDSpawn
	IDMovement
	IDTargetedAbility
	IDAreaAbility
	IDCollision
	IDLobbyStatus
	IDReady
	IDGameStart
	IDGameEnd
	IDExperience
	IDAbilityAssignment
	IDRemainingLives
	IDTowerHealth

	// plain elements
	IDElementIndicator
	IDPacketHeader
	IDClientID
)

var elementIDToString = map[ElementID]string{
	IDInvalid:           "Invalid",
	IDHealth:            "Health",
	IDPosition:          "Position",
	IDSpawn:             "Spawn",
	IDMovement:          "Movement",
	IDTargetedAbility:   "TargetedAbility",
	IDAreaAbility:       "AreaAbility",
	IDCollision:         "Collision",
	IDLobbyStatus:       "LobbyStatus",
	IDReady:             "Ready",
	IDGameStart:         "GameStart",
	IDGameEnd:           "GameEnd",
	IDExperience:        "Experience",
	IDAbilityAssignment: "AbilityAssignment",
	IDRemainingLives:    "RemainingLives",
	IDTowerHealth:       "TowerHealth",
	IDElementIndicator:  "ElementIndicator",
	IDPacketHeader:      "PacketHeader",
	IDClientID:          "ClientID",
}

func (id ElementID) String() string {
	s, ok := elementIDToString[id]
	if !ok {
		s = "unknown element"
	}
	return fmt.Sprintf("%s [id %d]", s, uint8(id))
}

// IsUpdate reports whether id names an element that can change game state and
// therefore may travel in the reliable section.
func (id ElementID) IsUpdate() bool {
	return id >= IDHealth && id <= IDTowerHealth
}

// Element is a unit of protocol data that knows how to put itself on and take
// itself off a bit stream.
type Element interface {
	ID() ElementID
	// Bits is the exact serialized width for the current field values.
	Bits() int
	Serialize(bs *bitstream.BitStream) error
	Deserialize(bs *bitstream.BitStream) error
	// Validate rejects field values outside of their declared range.
	Validate() error
}

// UpdateElement is an Element that applies itself to game state.
type UpdateElement interface {
	Element
	UpdateState(bridge StateBridge)
}

// WriteTo serializes e.
func WriteTo(bs *bitstream.BitStream, e Element) error {
	if err := e.Serialize(bs); err != nil {
		return errors.Wrapf(err, "could not serialize %s", e.ID())
	}
	return nil
}

// ReadFrom deserializes into e and validates the result.
func ReadFrom(bs *bitstream.BitStream, e Element) error {
	if err := e.Deserialize(bs); err != nil {
		return errors.Wrapf(err, "could not deserialize %s", e.ID())
	}
	if err := e.Validate(); err != nil {
		return errors.Wrapf(err, "could not validate %s", e.ID())
	}
	return nil
}

// RequiredBits returns the number of bits needed to store every value in
// 0..max. Zero still takes one bit.
func RequiredBits(max int) int {
	if max <= 0 {
		return 1
	}
	return bits.Len(uint(max))
}

var (
	// ErrInvalidPacketData is matched by every ValidationError.
	ErrInvalidPacketData = errors.New("invalid packet data")
	// ErrUnknownElement is matched by every UnknownElementError.
	ErrUnknownElement = errors.New("unknown element")
)

// ValidationError describes one field that is out of range.
type ValidationError struct {
	Element ElementID
	Field   string
	Value   any
	Min     any
	Max     any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid packet data: %s.%s = %v outside of [%v, %v]",
		elementIDToString[e.Element], e.Field, e.Value, e.Min, e.Max)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPacketData
}

// UnknownElementError is returned by the factory for ids it cannot build.
// Once it happens the amount of bits the element would have taken is unknown,
// so nothing after it in the stream can be trusted.
type UnknownElementError struct {
	ID ElementID
}

func (e *UnknownElementError) Error() string {
	return fmt.Sprintf("unknown element: %s", e.ID)
}

func (e *UnknownElementError) Is(target error) bool {
	return target == ErrUnknownElement
}
