package protocol

import "time"

type AbilityType int

const (
	AbilityTestProjectile AbilityType = iota
	AbilityTestTargeted
	AbilityTestTargetedHoming
	AbilityTestAreaOfEffect
	AbilityAutoAttack
	AbilityWall
	AbilityBanish
	AbilityBullet
	AbilityPorkChop
	AbilityDart
	AbilityPurification
)

type ActorType int

const (
	ActorHumanPlayerA ActorType = iota
	ActorHumanPlayerB
	ActorHumanPlayerC
	ActorHumanPlayerD
	ActorHumanPlayerE
	ActorOrcPlayerA
	ActorOrcPlayerB
	ActorOrcPlayerC
	ActorOrcPlayerD
	ActorOrcPlayerE
)

// AbilityInfo is static per ability configuration. It is not part of the
// wire format.
type AbilityInfo struct {
	IsArea             bool
	IsTargeted         bool
	IsSelf             bool
	AllyTargetAllowed  bool
	EnemyTargetAllowed bool
	RequiresCollision  bool

	Cooldown time.Duration
	// Range is in world units; zero means unlimited.
	Range float32
}

var abilityInfos = map[AbilityType]AbilityInfo{
	AbilityTestProjectile:     {IsArea: true, RequiresCollision: true, Cooldown: time.Second, Range: 50},
	AbilityTestTargeted:       {IsTargeted: true, AllyTargetAllowed: true, EnemyTargetAllowed: true, Cooldown: time.Second, Range: 30},
	AbilityTestTargetedHoming: {IsTargeted: true, EnemyTargetAllowed: true, RequiresCollision: true, Cooldown: 2 * time.Second, Range: 40},
	AbilityTestAreaOfEffect:   {IsArea: true, Cooldown: 3 * time.Second, Range: 25},
	AbilityAutoAttack:         {IsTargeted: true, EnemyTargetAllowed: true, Cooldown: 500 * time.Millisecond, Range: 10},
	AbilityWall:               {IsArea: true, Cooldown: 8 * time.Second, Range: 20},
	AbilityBanish:             {IsTargeted: true, EnemyTargetAllowed: true, Cooldown: 10 * time.Second, Range: 15},
	AbilityBullet:             {IsArea: true, RequiresCollision: true, Cooldown: 700 * time.Millisecond, Range: 60},
	AbilityPorkChop:           {IsTargeted: true, AllyTargetAllowed: true, Cooldown: 6 * time.Second, Range: 20},
	AbilityDart:               {IsArea: true, RequiresCollision: true, Cooldown: 4 * time.Second, Range: 45},
	AbilityPurification:       {IsSelf: true, Cooldown: 12 * time.Second},
}

// LookupAbility returns the static info of an ability.
func LookupAbility(ability AbilityType) (AbilityInfo, bool) {
	info, ok := abilityInfos[ability]
	return info, ok
}
