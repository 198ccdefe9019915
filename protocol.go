package main

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire message discriminants. Every message is a flat JSON object
// carrying a "type" field.
const (
	// peer -> host
	MsgJoinRequest  = "JOIN_REQUEST"
	MsgPlayerInput  = "PLAYER_INPUT"
	MsgSkillRequest = "SKILL_REQUEST"
	MsgStateRequest = "STATE_REQUEST"
	MsgStartGame    = "START_GAME"
	MsgRestartGame  = "RESTART_GAME"
	MsgBinaryMode   = "BINARY_MODE"

	// host -> peer
	MsgJoinResponse = "JOIN_RESPONSE"
	MsgStateUpdate  = "GAME_STATE_UPDATE"
	MsgPlayerDied   = "PLAYER_DIED"
)

// ErrUnknownMessage marks inbound messages with an unrecognized type;
// the relay drops them without touching simulation state.
var ErrUnknownMessage = errors.New("unknown message type")

// InboundMessage is the tagged union of everything a peer may send.
// DecodeMessage is the single decode boundary; the simulation switches
// exhaustively over these concrete types.
type InboundMessage interface {
	inbound()
}

// JoinRequestMsg asks the host to admit a peer. PlayerID is optional
// (the host assigns one when empty); RejoinToken reclaims a previous
// identity after a reconnect.
type JoinRequestMsg struct {
	Type        string `json:"type"`
	PlayerID    string `json:"playerId,omitempty"`
	Username    string `json:"username,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Password    string `json:"password,omitempty"`
	RejoinToken string `json:"rejoinToken,omitempty"`
}

// JoinResponseMsg answers a join request. Join is the only request
// that gets an explicit failure notice; everything else fails silently.
type JoinResponseMsg struct {
	Type          string     `json:"type"`
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
	MapConfig     *MapConfig `json:"mapConfig,omitempty"`
	PlayerID      string     `json:"playerId,omitempty"`
	SpawnPosition Vec3       `json:"spawnPosition"`
	RejoinToken   string     `json:"rejoinToken,omitempty"`
	Skills        []SkillDef `json:"skills,omitempty"`
}

// PlayerInputMsg sets or clears a movement target
type PlayerInputMsg struct {
	Type         string `json:"type"`
	Destination  *Vec3  `json:"destination,omitempty"`
	StopMovement bool   `json:"stopMovement,omitempty"`
}

// SkillRequestMsg routes to the matching ability attempt. Target is a
// world point (teleport destination, missile click point); Direction
// is a unit-ish aim vector (laser). Timestamp is the client's send
// time, carried for client-side latency accounting only.
type SkillRequestMsg struct {
	Type      string    `json:"type"`
	SkillType SkillType `json:"skillType"`
	Target    *Vec3     `json:"target,omitempty"`
	Direction *Vec3     `json:"direction,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
}

// StateRequestMsg asks for an immediate full snapshot (used right
// after join, before the first broadcast arrives)
type StateRequestMsg struct {
	Type string `json:"type"`
}

// StartGameMsg and RestartGameMsg are honored only when the sender is
// the host's own peer id
type StartGameMsg struct {
	Type string `json:"type"`
}

type RestartGameMsg struct {
	Type string `json:"type"`
}

// BinaryModeMsg switches this peer's snapshot broadcasts to msgpack
// binary frames
type BinaryModeMsg struct {
	Type string `json:"type"`
}

func (*JoinRequestMsg) inbound()  {}
func (*PlayerInputMsg) inbound()  {}
func (*SkillRequestMsg) inbound() {}
func (*StateRequestMsg) inbound() {}
func (*StartGameMsg) inbound()    {}
func (*RestartGameMsg) inbound()  {}
func (*BinaryModeMsg) inbound()   {}

// StateUpdateMsg carries the per-tick snapshot
type StateUpdateMsg struct {
	Type      string    `json:"type" msgpack:"type"`
	State     GameState `json:"state" msgpack:"state"`
	Timestamp int64     `json:"timestamp" msgpack:"timestamp"`
}

// PlayerDiedMsg announces a removed peer, broadcast in lieu of a final
// snapshot entry for that player
type PlayerDiedMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// PlayerState is the externally relevant slice of a Player
type PlayerState struct {
	ID             string           `json:"id" msgpack:"id"`
	Username       string           `json:"username" msgpack:"username"`
	Avatar         string           `json:"avatar,omitempty" msgpack:"avatar,omitempty"`
	Position       Vec3             `json:"position" msgpack:"position"`
	Rotation       Quat             `json:"rotation" msgpack:"rotation"`
	Health         int              `json:"health" msgpack:"health"`
	MaxHealth      int              `json:"maxHealth" msgpack:"maxHealth"`
	Alive          bool             `json:"alive" msgpack:"alive"`
	Frozen         bool             `json:"frozen" msgpack:"frozen"`
	Invulnerable   bool             `json:"invulnerable" msgpack:"invulnerable"`
	Teleporting    bool             `json:"teleporting" msgpack:"teleporting"`
	Kills          int              `json:"kills" msgpack:"kills"`
	Deaths         int              `json:"deaths" msgpack:"deaths"`
	RoundsSurvived int              `json:"roundsSurvived" msgpack:"roundsSurvived"`
	Cooldowns      map[string]int64 `json:"cooldowns" msgpack:"cooldowns"`
}

// MissileState is the externally relevant slice of a Missile
type MissileState struct {
	ID       string `json:"id" msgpack:"id"`
	OwnerID  string `json:"ownerId" msgpack:"ownerId"`
	TargetID string `json:"targetId,omitempty" msgpack:"targetId,omitempty"`
	Position Vec3   `json:"position" msgpack:"position"`
	Velocity Vec3   `json:"velocity" msgpack:"velocity"`
}

// LaserBeamState is the externally relevant slice of a LaserBeam; the
// hit set stays host-side
type LaserBeamState struct {
	ID        string `json:"id" msgpack:"id"`
	OwnerID   string `json:"ownerId" msgpack:"ownerId"`
	Start     Vec3   `json:"start" msgpack:"start"`
	End       Vec3   `json:"end" msgpack:"end"`
	ExpiresAt int64  `json:"expiresAt" msgpack:"expiresAt"`
}

// GameState is the full snapshot broadcast every tick
type GameState struct {
	Players       []PlayerState    `json:"players" msgpack:"players"`
	Missiles      []MissileState   `json:"missiles" msgpack:"missiles"`
	LaserBeams    []LaserBeamState `json:"laserBeams" msgpack:"laserBeams"`
	Timestamp     int64            `json:"timestamp" msgpack:"timestamp"`
	GameMode      string           `json:"gameMode" msgpack:"gameMode"`
	CurrentRound  int              `json:"currentRound" msgpack:"currentRound"`
	TotalRounds   int              `json:"totalRounds" msgpack:"totalRounds"`
	FreezeTimeEnd int64            `json:"freezeTimeEnd,omitempty" msgpack:"freezeTimeEnd,omitempty"`
	WinnerID      string           `json:"winnerId,omitempty" msgpack:"winnerId,omitempty"`
	RoundWinnerID string           `json:"roundWinnerId,omitempty" msgpack:"roundWinnerId,omitempty"`
}

// DecodeMessage is the tagged-union decode boundary. Unknown or
// malformed messages come back as errors and are dropped by the relay.
func DecodeMessage(raw []byte) (InboundMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg InboundMessage
	switch head.Type {
	case MsgJoinRequest:
		msg = &JoinRequestMsg{}
	case MsgPlayerInput:
		msg = &PlayerInputMsg{}
	case MsgSkillRequest:
		msg = &SkillRequestMsg{}
	case MsgStateRequest:
		msg = &StateRequestMsg{}
	case MsgStartGame:
		msg = &StartGameMsg{}
	case MsgRestartGame:
		msg = &RestartGameMsg{}
	case MsgBinaryMode:
		msg = &BinaryModeMsg{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, head.Type)
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return msg, nil
}
