package protocol

import (
	"github.com/blukai/rudpnet/internal/bitstream"
)

const (
	PlayersMax     = 31
	PlayerIDMax    = 31
	PlayerTeamMax  = 7
	NameBytesMax   = 32
	GamePlayersMax = 127
	WinningTeamMax = 7
	LivesTeamsMax  = 7
	LivesTeamMax   = 7
	LivesMax       = 50
)

var (
	playersBits     = RequiredBits(PlayersMax)
	playerIDBits    = RequiredBits(PlayerIDMax)
	playerTeamBits  = RequiredBits(PlayerTeamMax)
	nameLenBits     = RequiredBits(NameBytesMax)
	gamePlayersBits = RequiredBits(GamePlayersMax)
	winningTeamBits = RequiredBits(WinningTeamMax)
	livesTeamsBits  = RequiredBits(LivesTeamsMax)
	livesTeamBits   = RequiredBits(LivesTeamMax)
	livesBits       = RequiredBits(LivesMax)
)

type PlayerInfo struct {
	ID    int
	Name  string
	Team  int
	Ready bool
}

// LobbyStatus is the full list of players waiting in the lobby. It is the only
// element whose width depends on string data.
type LobbyStatus struct {
	Players []PlayerInfo
}

var _ UpdateElement = (*LobbyStatus)(nil)

func (e *LobbyStatus) ID() ElementID { return IDLobbyStatus }

func (e *LobbyStatus) Bits() int {
	n := playersBits
	for _, p := range e.Players {
		n += playerIDBits + playerTeamBits + 1 + nameLenBits + len(p.Name)*bitstream.ByteSize
	}
	return n
}

func (e *LobbyStatus) Serialize(bs *bitstream.BitStream) error {
	// the length prefix would silently wrap otherwise
	for _, p := range e.Players {
		if len(p.Name) > NameBytesMax {
			return &ValidationError{
				Element: e.ID(),
				Field:   "name",
				Value:   p.Name,
				Min:     0,
				Max:     NameBytesMax,
			}
		}
	}

	w := fieldWriter{bs: bs}
	w.count(e.ID(), "players", len(e.Players), PlayersMax, playersBits)
	for _, p := range e.Players {
		w.uint(p.ID, playerIDBits)
		w.uint(p.Team, playerTeamBits)
		w.bool(p.Ready)
		w.uint(len(p.Name), nameLenBits)
		w.bytes([]byte(p.Name))
	}
	return w.err
}

func (e *LobbyStatus) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	n := r.uint(playersBits)
	e.Players = make([]PlayerInfo, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		var p PlayerInfo
		p.ID = r.uint(playerIDBits)
		p.Team = r.uint(playerTeamBits)
		p.Ready = r.bool()
		p.Name = string(r.bytes(r.uint(nameLenBits)))
		e.Players = append(e.Players, p)
	}
	return r.err
}

func (e *LobbyStatus) Validate() error {
	v := validator{id: e.ID()}
	v.max("players", len(e.Players), PlayersMax)
	for _, p := range e.Players {
		v.max("id", p.ID, PlayerIDMax)
		v.max("team", p.Team, PlayerTeamMax)
		v.name("name", p.Name)
	}
	return v.Err()
}

func (e *LobbyStatus) UpdateState(bridge StateBridge) {
	bridge.SetLobbyStatus(e.Players)
}

// Ready is sent by a client whenever its ready flag or team changes.
type Ready struct {
	Ready    bool
	ClientID int
	Team     int
}

var _ UpdateElement = (*Ready)(nil)

func (e *Ready) ID() ElementID { return IDReady }

func (e *Ready) Bits() int { return 1 + playerIDBits + playerTeamBits }

func (e *Ready) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.bool(e.Ready)
	w.uint(e.ClientID, playerIDBits)
	w.uint(e.Team, playerTeamBits)
	return w.err
}

func (e *Ready) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.Ready = r.bool()
	e.ClientID = r.uint(playerIDBits)
	e.Team = r.uint(playerTeamBits)
	return r.err
}

func (e *Ready) Validate() error {
	v := validator{id: e.ID()}
	v.max("client_id", e.ClientID, PlayerIDMax)
	v.max("team", e.Team, PlayerTeamMax)
	return v.Err()
}

func (e *Ready) UpdateState(bridge StateBridge) {
	bridge.UpdateReadyStatus(e.Ready, e.ClientID, e.Team)
}

type GameStart struct {
	PlayerNum int
}

var _ UpdateElement = (*GameStart)(nil)

func (e *GameStart) ID() ElementID { return IDGameStart }

func (e *GameStart) Bits() int { return gamePlayersBits }

func (e *GameStart) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(e.PlayerNum, gamePlayersBits)
	return w.err
}

func (e *GameStart) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.PlayerNum = r.uint(gamePlayersBits)
	return r.err
}

func (e *GameStart) Validate() error {
	v := validator{id: e.ID()}
	v.max("player_num", e.PlayerNum, GamePlayersMax)
	return v.Err()
}

func (e *GameStart) UpdateState(bridge StateBridge) {
	bridge.StartGame(e.PlayerNum)
}

type GameEnd struct {
	WinningTeam int
}

var _ UpdateElement = (*GameEnd)(nil)

func (e *GameEnd) ID() ElementID { return IDGameEnd }

func (e *GameEnd) Bits() int { return winningTeamBits }

func (e *GameEnd) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(e.WinningTeam, winningTeamBits)
	return w.err
}

func (e *GameEnd) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.WinningTeam = r.uint(winningTeamBits)
	return r.err
}

func (e *GameEnd) Validate() error {
	v := validator{id: e.ID()}
	v.max("winning_team", e.WinningTeam, WinningTeamMax)
	return v.Err()
}

func (e *GameEnd) UpdateState(bridge StateBridge) {
	bridge.EndGame(e.WinningTeam)
}

type TeamLives struct {
	Team  int
	Lives int
}

type RemainingLives struct {
	Teams []TeamLives
}

var _ UpdateElement = (*RemainingLives)(nil)

func (e *RemainingLives) ID() ElementID { return IDRemainingLives }

func (e *RemainingLives) Bits() int {
	return livesTeamsBits + len(e.Teams)*(livesTeamBits+livesBits)
}

func (e *RemainingLives) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.count(e.ID(), "teams", len(e.Teams), LivesTeamsMax, livesTeamsBits)
	for _, t := range e.Teams {
		w.uint(t.Team, livesTeamBits)
		w.uint(t.Lives, livesBits)
	}
	return w.err
}

func (e *RemainingLives) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	n := r.uint(livesTeamsBits)
	e.Teams = make([]TeamLives, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		e.Teams = append(e.Teams, TeamLives{
			Team:  r.uint(livesTeamBits),
			Lives: r.uint(livesBits),
		})
	}
	return r.err
}

func (e *RemainingLives) Validate() error {
	v := validator{id: e.ID()}
	v.max("teams", len(e.Teams), LivesTeamsMax)
	for _, t := range e.Teams {
		v.max("team", t.Team, LivesTeamMax)
		v.max("lives", t.Lives, LivesMax)
	}
	return v.Err()
}

func (e *RemainingLives) UpdateState(bridge StateBridge) {
	bridge.UpdateLifeCount(e.Teams)
}
