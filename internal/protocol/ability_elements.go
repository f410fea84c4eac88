package protocol

import (
	"github.com/blukai/rudpnet/internal/bitstream"
)

const (
	AbilityActorIDMax = 255
	AbilityTypeMax    = 127
	AbilityTargetMax  = 255
)

var (
	abilityActorIDBits = RequiredBits(AbilityActorIDMax)
	abilityTypeBits    = RequiredBits(AbilityTypeMax)
	abilityTargetBits  = RequiredBits(AbilityTargetMax)
)

type TargetedAbility struct {
	ActorID  int
	Ability  AbilityType
	TargetID int
}

var _ UpdateElement = (*TargetedAbility)(nil)

func (e *TargetedAbility) ID() ElementID { return IDTargetedAbility }

func (e *TargetedAbility) Bits() int {
	return abilityActorIDBits + abilityTypeBits + abilityTargetBits
}

func (e *TargetedAbility) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(e.ActorID, abilityActorIDBits)
	w.uint(int(e.Ability), abilityTypeBits)
	w.uint(e.TargetID, abilityTargetBits)
	return w.err
}

func (e *TargetedAbility) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.ActorID = r.uint(abilityActorIDBits)
	e.Ability = AbilityType(r.uint(abilityTypeBits))
	e.TargetID = r.uint(abilityTargetBits)
	return r.err
}

func (e *TargetedAbility) Validate() error {
	v := validator{id: e.ID()}
	v.max("actor_id", e.ActorID, AbilityActorIDMax)
	v.max("ability", int(e.Ability), AbilityTypeMax)
	v.max("target_id", e.TargetID, AbilityTargetMax)
	return v.Err()
}

func (e *TargetedAbility) UpdateState(bridge StateBridge) {
	bridge.UseTargetedAbility(e.ActorID, e.Ability, e.TargetID)
}

// AreaAbility is an ability cast at a point rather than at an actor.
type AreaAbility struct {
	ActorID int
	Ability AbilityType
	X       float32
	Z       float32
}

var _ UpdateElement = (*AreaAbility)(nil)

func (e *AreaAbility) ID() ElementID { return IDAreaAbility }

func (e *AreaAbility) Bits() int {
	return abilityActorIDBits + abilityTypeBits + 2*Float32Bits
}

func (e *AreaAbility) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(e.ActorID, abilityActorIDBits)
	w.uint(int(e.Ability), abilityTypeBits)
	w.float32(e.X)
	w.float32(e.Z)
	return w.err
}

func (e *AreaAbility) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.ActorID = r.uint(abilityActorIDBits)
	e.Ability = AbilityType(r.uint(abilityTypeBits))
	e.X = r.float32()
	e.Z = r.float32()
	return r.err
}

func (e *AreaAbility) Validate() error {
	v := validator{id: e.ID()}
	v.max("actor_id", e.ActorID, AbilityActorIDMax)
	v.max("ability", int(e.Ability), AbilityTypeMax)
	v.float("x", e.X, CoordMin, CoordMax)
	v.float("z", e.Z, CoordMin, CoordMax)
	return v.Err()
}

func (e *AreaAbility) UpdateState(bridge StateBridge) {
	bridge.UseAreaAbility(e.ActorID, e.Ability, e.X, e.Z)
}

const (
	CollisionActorIDMax = 255
	CollisionIDMax      = 255
)

var (
	collisionActorIDBits = RequiredBits(CollisionActorIDMax)
	collisionIDBits      = RequiredBits(CollisionIDMax)
)

// Collision reports that the projectile CollisionID of an ability cast by
// ActorCastID hit ActorHitID.
type Collision struct {
	Ability     AbilityType
	ActorHitID  int
	ActorCastID int
	CollisionID int
}

var _ UpdateElement = (*Collision)(nil)

func (e *Collision) ID() ElementID { return IDCollision }

func (e *Collision) Bits() int {
	return abilityTypeBits + 2*collisionActorIDBits + collisionIDBits
}

func (e *Collision) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(int(e.Ability), abilityTypeBits)
	w.uint(e.ActorHitID, collisionActorIDBits)
	w.uint(e.ActorCastID, collisionActorIDBits)
	w.uint(e.CollisionID, collisionIDBits)
	return w.err
}

func (e *Collision) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.Ability = AbilityType(r.uint(abilityTypeBits))
	e.ActorHitID = r.uint(collisionActorIDBits)
	e.ActorCastID = r.uint(collisionActorIDBits)
	e.CollisionID = r.uint(collisionIDBits)
	return r.err
}

func (e *Collision) Validate() error {
	v := validator{id: e.ID()}
	v.max("ability", int(e.Ability), AbilityTypeMax)
	v.max("actor_hit_id", e.ActorHitID, CollisionActorIDMax)
	v.max("actor_cast_id", e.ActorCastID, CollisionActorIDMax)
	v.max("collision_id", e.CollisionID, CollisionIDMax)
	return v.Err()
}

func (e *Collision) UpdateState(bridge StateBridge) {
	bridge.ProcessCollision(e.Ability, e.ActorHitID, e.ActorCastID, e.CollisionID)
}

const (
	AssignmentActorIDMax = 127
	AssignmentAbilityMax = 32
)

var (
	assignmentActorIDBits = RequiredBits(AssignmentActorIDMax)
	assignmentAbilityBits = RequiredBits(AssignmentAbilityMax)
)

type AbilityAssignment struct {
	ActorID int
	Ability AbilityType
}

var _ UpdateElement = (*AbilityAssignment)(nil)

func (e *AbilityAssignment) ID() ElementID { return IDAbilityAssignment }

func (e *AbilityAssignment) Bits() int {
	return assignmentActorIDBits + assignmentAbilityBits
}

func (e *AbilityAssignment) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(e.ActorID, assignmentActorIDBits)
	w.uint(int(e.Ability), assignmentAbilityBits)
	return w.err
}

func (e *AbilityAssignment) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.ActorID = r.uint(assignmentActorIDBits)
	e.Ability = AbilityType(r.uint(assignmentAbilityBits))
	return r.err
}

func (e *AbilityAssignment) Validate() error {
	v := validator{id: e.ID()}
	v.max("actor_id", e.ActorID, AssignmentActorIDMax)
	v.max("ability", int(e.Ability), AssignmentAbilityMax)
	return v.Err()
}

func (e *AbilityAssignment) UpdateState(bridge StateBridge) {
	bridge.UpdateAbilityAssignment(e.ActorID, e.Ability)
}
