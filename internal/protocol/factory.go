package protocol

import (
	"github.com/blukai/rudpnet/internal/bitstream"
	"github.com/pkg/errors"
)

func newUpdateElement(id ElementID) UpdateElement {
	switch id {
	case IDHealth:
		return &Health{}
	case IDPosition:
		return &Position{}
	case IDSpawn:
		return &Spawn{}
	case IDMovement:
		return &Movement{}
	case IDTargetedAbility:
		return &TargetedAbility{}
	case IDAreaAbility:
		return &AreaAbility{}
	case IDCollision:
		return &Collision{}
	case IDLobbyStatus:
		return &LobbyStatus{}
	case IDReady:
		return &Ready{}
	case IDGameStart:
		return &GameStart{}
	case IDGameEnd:
		return &GameEnd{}
	case IDExperience:
		return &Experience{}
	case IDAbilityAssignment:
		return &AbilityAssignment{}
	case IDRemainingLives:
		return &RemainingLives{}
	case IDTowerHealth:
		return &TowerHealth{}
	default:
		return nil
	}
}

func newElement(id ElementID) Element {
	switch id {
	case IDPacketHeader:
		return &PacketHeader{}
	case IDClientID:
		return &ClientID{}
	case IDElementIndicator:
		return &ElementIndicator{}
	}
	// NOTE: a nil UpdateElement must not be returned as a non-nil Element.
	if e := newUpdateElement(id); e != nil {
		return e
	}
	return nil
}

// CreateElement reads and validates an element of any kind from bs.
func CreateElement(id ElementID, bs *bitstream.BitStream) (Element, error) {
	e := newElement(id)
	if e == nil {
		return nil, errors.WithStack(&UnknownElementError{ID: id})
	}
	if err := ReadFrom(bs, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateUpdateElement is CreateElement restricted to elements that may appear
// in the reliable section.
func CreateUpdateElement(id ElementID, bs *bitstream.BitStream) (UpdateElement, error) {
	e := newUpdateElement(id)
	if e == nil {
		return nil, errors.WithStack(&UnknownElementError{ID: id})
	}
	if err := ReadFrom(bs, e); err != nil {
		return nil, err
	}
	return e, nil
}
