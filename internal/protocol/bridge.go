package protocol

// StateBridge is the only way decoded elements reach game state. Each update
// element calls exactly one of these methods (TowerHealth calls
// UpdateActorHealth once per tower).
type StateBridge interface {
	UpdateActorHealth(actorID, health int)
	UpdateActorPosition(actorID int, x, z float32)
	SpawnActor(actorType ActorType, actorID, team int, x, z float32)
	SetActorMovement(actorID int, x, z, targetX, targetZ float32)
	UseTargetedAbility(actorID int, ability AbilityType, targetID int)
	UseAreaAbility(actorID int, ability AbilityType, x, z float32)
	ProcessCollision(ability AbilityType, actorHitID, actorCastID, collisionID int)
	SetLobbyStatus(players []PlayerInfo)
	UpdateReadyStatus(ready bool, clientID, team int)
	StartGame(playerNum int)
	EndGame(winningTeam int)
	UpdateActorExperience(actorID, experience int)
	UpdateAbilityAssignment(actorID int, ability AbilityType)
	UpdateLifeCount(lives []TeamLives)
}

// NopBridge ignores everything. Embed it to implement only the methods a
// consumer cares about.
type NopBridge struct{}

var _ StateBridge = NopBridge{}

func (NopBridge) UpdateActorHealth(int, int) {}
func (NopBridge) UpdateActorPosition(int, float32, float32) {}
func (NopBridge) SpawnActor(ActorType, int, int, float32, float32) {}
func (NopBridge) SetActorMovement(int, float32, float32, float32, float32) {}
func (NopBridge) UseTargetedAbility(int, AbilityType, int) {}
func (NopBridge) UseAreaAbility(int, AbilityType, float32, float32) {}
func (NopBridge) ProcessCollision(AbilityType, int, int, int) {}
func (NopBridge) SetLobbyStatus([]PlayerInfo) {}
func (NopBridge) UpdateReadyStatus(bool, int, int) {}
func (NopBridge) StartGame(int) {}
func (NopBridge) EndGame(int) {}
func (NopBridge) UpdateActorExperience(int, int) {}
func (NopBridge) UpdateAbilityAssignment(int, AbilityType) {}
func (NopBridge) UpdateLifeCount([]TeamLives) {}
