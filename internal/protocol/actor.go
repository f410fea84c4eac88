package protocol

import (
	"github.com/blukai/rudpnet/internal/bitstream"
)

// World coordinates are floats on the wire and must stay inside the map.
const (
	CoordMin float32 = 0
	CoordMax float32 = 500
)

const (
	HealthActorIDMax = 32
	HealthMax        = 20
)

var (
	healthActorIDBits = RequiredBits(HealthActorIDMax)
	healthBits        = RequiredBits(HealthMax)
)

type Health struct {
	ActorID int
	Health  int
}

var _ UpdateElement = (*Health)(nil)

func (e *Health) ID() ElementID { return IDHealth }

func (e *Health) Bits() int { return healthActorIDBits + healthBits }

func (e *Health) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(e.ActorID, healthActorIDBits)
	w.uint(e.Health, healthBits)
	return w.err
}

func (e *Health) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.ActorID = r.uint(healthActorIDBits)
	e.Health = r.uint(healthBits)
	return r.err
}

func (e *Health) Validate() error {
	v := validator{id: e.ID()}
	v.max("actor_id", e.ActorID, HealthActorIDMax)
	v.max("health", e.Health, HealthMax)
	return v.Err()
}

func (e *Health) UpdateState(bridge StateBridge) {
	bridge.UpdateActorHealth(e.ActorID, e.Health)
}

const PositionActorIDMax = 127

var positionActorIDBits = RequiredBits(PositionActorIDMax)

type Position struct {
	ActorID int
	X       float32
	Z       float32
}

var _ UpdateElement = (*Position)(nil)

func (e *Position) ID() ElementID { return IDPosition }

func (e *Position) Bits() int { return positionActorIDBits + 2*Float32Bits }

func (e *Position) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(e.ActorID, positionActorIDBits)
	w.float32(e.X)
	w.float32(e.Z)
	return w.err
}

func (e *Position) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.ActorID = r.uint(positionActorIDBits)
	e.X = r.float32()
	e.Z = r.float32()
	return r.err
}

func (e *Position) Validate() error {
	v := validator{id: e.ID()}
	v.max("actor_id", e.ActorID, PositionActorIDMax)
	v.float("x", e.X, CoordMin, CoordMax)
	v.float("z", e.Z, CoordMin, CoordMax)
	return v.Err()
}

func (e *Position) UpdateState(bridge StateBridge) {
	bridge.UpdateActorPosition(e.ActorID, e.X, e.Z)
}

const (
	SpawnActorTypeMax = 31
	SpawnActorIDMax   = 255
	SpawnTeamMax      = 7
)

var (
	spawnActorTypeBits = RequiredBits(SpawnActorTypeMax)
	spawnActorIDBits   = RequiredBits(SpawnActorIDMax)
	spawnTeamBits      = RequiredBits(SpawnTeamMax)
)

type Spawn struct {
	ActorType ActorType
	ActorID   int
	Team      int
	X         float32
	Z         float32
}

var _ UpdateElement = (*Spawn)(nil)

func (e *Spawn) ID() ElementID { return IDSpawn }

func (e *Spawn) Bits() int {
	return spawnActorTypeBits + spawnActorIDBits + spawnTeamBits + 2*Float32Bits
}

func (e *Spawn) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(int(e.ActorType), spawnActorTypeBits)
	w.uint(e.ActorID, spawnActorIDBits)
	w.uint(e.Team, spawnTeamBits)
	w.float32(e.X)
	w.float32(e.Z)
	return w.err
}

func (e *Spawn) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.ActorType = ActorType(r.uint(spawnActorTypeBits))
	e.ActorID = r.uint(spawnActorIDBits)
	e.Team = r.uint(spawnTeamBits)
	e.X = r.float32()
	e.Z = r.float32()
	return r.err
}

func (e *Spawn) Validate() error {
	v := validator{id: e.ID()}
	v.max("actor_type", int(e.ActorType), SpawnActorTypeMax)
	v.max("actor_id", e.ActorID, SpawnActorIDMax)
	v.max("team", e.Team, SpawnTeamMax)
	v.float("x", e.X, CoordMin, CoordMax)
	v.float("z", e.Z, CoordMin, CoordMax)
	return v.Err()
}

func (e *Spawn) UpdateState(bridge StateBridge) {
	bridge.SpawnActor(e.ActorType, e.ActorID, e.Team, e.X, e.Z)
}

const MovementActorIDMax = 127

var movementActorIDBits = RequiredBits(MovementActorIDMax)

// Movement carries where an actor is and where it is heading.
type Movement struct {
	ActorID int
	X       float32
	Z       float32
	TargetX float32
	TargetZ float32
}

var _ UpdateElement = (*Movement)(nil)

func (e *Movement) ID() ElementID { return IDMovement }

func (e *Movement) Bits() int { return movementActorIDBits + 4*Float32Bits }

func (e *Movement) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(e.ActorID, movementActorIDBits)
	w.float32(e.X)
	w.float32(e.Z)
	w.float32(e.TargetX)
	w.float32(e.TargetZ)
	return w.err
}

func (e *Movement) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.ActorID = r.uint(movementActorIDBits)
	e.X = r.float32()
	e.Z = r.float32()
	e.TargetX = r.float32()
	e.TargetZ = r.float32()
	return r.err
}

func (e *Movement) Validate() error {
	v := validator{id: e.ID()}
	v.max("actor_id", e.ActorID, MovementActorIDMax)
	v.float("x", e.X, CoordMin, CoordMax)
	v.float("z", e.Z, CoordMin, CoordMax)
	v.float("target_x", e.TargetX, CoordMin, CoordMax)
	v.float("target_z", e.TargetZ, CoordMin, CoordMax)
	return v.Err()
}

func (e *Movement) UpdateState(bridge StateBridge) {
	bridge.SetActorMovement(e.ActorID, e.X, e.Z, e.TargetX, e.TargetZ)
}

const (
	ExperienceActorIDMax = 127
	ExperienceMax        = 4000
)

var (
	experienceActorIDBits = RequiredBits(ExperienceActorIDMax)
	experienceBits        = RequiredBits(ExperienceMax)
)

type Experience struct {
	ActorID    int
	Experience int
}

var _ UpdateElement = (*Experience)(nil)

func (e *Experience) ID() ElementID { return IDExperience }

func (e *Experience) Bits() int { return experienceActorIDBits + experienceBits }

func (e *Experience) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(e.ActorID, experienceActorIDBits)
	w.uint(e.Experience, experienceBits)
	return w.err
}

func (e *Experience) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.ActorID = r.uint(experienceActorIDBits)
	e.Experience = r.uint(experienceBits)
	return r.err
}

func (e *Experience) Validate() error {
	v := validator{id: e.ID()}
	v.max("actor_id", e.ActorID, ExperienceActorIDMax)
	v.max("experience", e.Experience, ExperienceMax)
	return v.Err()
}

func (e *Experience) UpdateState(bridge StateBridge) {
	bridge.UpdateActorExperience(e.ActorID, e.Experience)
}

const (
	TowersMax       = 31
	TowerActorIDMax = 127
	TowerHealthMax  = 1000
)

var (
	towersBits       = RequiredBits(TowersMax)
	towerActorIDBits = RequiredBits(TowerActorIDMax)
	towerHealthBits  = RequiredBits(TowerHealthMax)
)

type TowerInfo struct {
	ActorID int
	Health  int
}

// TowerHealth batches the health of several towers into one element.
type TowerHealth struct {
	Towers []TowerInfo
}

var _ UpdateElement = (*TowerHealth)(nil)

func (e *TowerHealth) ID() ElementID { return IDTowerHealth }

func (e *TowerHealth) Bits() int {
	return towersBits + len(e.Towers)*(towerActorIDBits+towerHealthBits)
}

func (e *TowerHealth) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.count(e.ID(), "towers", len(e.Towers), TowersMax, towersBits)
	for _, tower := range e.Towers {
		w.uint(tower.ActorID, towerActorIDBits)
		w.uint(tower.Health, towerHealthBits)
	}
	return w.err
}

func (e *TowerHealth) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	n := r.uint(towersBits)
	e.Towers = make([]TowerInfo, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		e.Towers = append(e.Towers, TowerInfo{
			ActorID: r.uint(towerActorIDBits),
			Health:  r.uint(towerHealthBits),
		})
	}
	return r.err
}

func (e *TowerHealth) Validate() error {
	v := validator{id: e.ID()}
	v.max("towers", len(e.Towers), TowersMax)
	for _, tower := range e.Towers {
		v.max("actor_id", tower.ActorID, TowerActorIDMax)
		v.max("health", tower.Health, TowerHealthMax)
	}
	return v.Err()
}

func (e *TowerHealth) UpdateState(bridge StateBridge) {
	for _, tower := range e.Towers {
		bridge.UpdateActorHealth(tower.ActorID, tower.Health)
	}
}
