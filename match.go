package main

import (
	"math/rand"
	"time"
)

// MatchPhase represents the lifecycle of a hosted match
type MatchPhase int

const (
	PhaseWarmup     MatchPhase = 0
	PhaseFreezeTime MatchPhase = 1
	PhaseRound      MatchPhase = 2
	PhaseRoundEnd   MatchPhase = 3
	PhaseGameOver   MatchPhase = 4
)

func (ph MatchPhase) String() string {
	switch ph {
	case PhaseFreezeTime:
		return "FREEZE_TIME"
	case PhaseRound:
		return "ROUND"
	case PhaseRoundEnd:
		return "ROUND_END"
	case PhaseGameOver:
		return "GAME_OVER"
	default:
		return "WARMUP"
	}
}

const (
	MinPlayersToStart  = 2
	DefaultTotalRounds = 5
	FreezeDuration     = 5 * time.Second
	RoundEndDuration   = 4 * time.Second
	WarmupRespawnDelay = 3 * time.Second
)

// Match is the phase machine for one hosted session. It outlives
// individual connects and disconnects; exactly one exists per host.
type Match struct {
	Phase         MatchPhase
	CurrentRound  int // completed rounds
	TotalRounds   int
	FreezeEnd     time.Time
	RoundEndAt    time.Time
	RoundWinnerID string
	WinnerID      string
}

// NewMatch creates a match in warmup
func NewMatch(totalRounds int) *Match {
	if totalRounds <= 0 {
		totalRounds = DefaultTotalRounds
	}
	return &Match{Phase: PhaseWarmup, TotalRounds: totalRounds}
}

// CanStart reports whether a START_GAME command is currently legal
func (m *Match) CanStart(playerCount int) bool {
	return m.Phase == PhaseWarmup && playerCount >= MinPlayersToStart
}

// EnterFreeze moves into freeze time; the caller resets and freezes
// every player
func (m *Match) EnterFreeze(now time.Time) {
	m.Phase = PhaseFreezeTime
	m.FreezeEnd = now.Add(FreezeDuration)
	m.RoundWinnerID = ""
}

// EnterRound begins play once the freeze timer expires
func (m *Match) EnterRound() {
	m.Phase = PhaseRound
	m.FreezeEnd = time.Time{}
}

// EndRound records the round result and advances the counter exactly
// once. winnerID may be empty when the last players died in the same
// tick. Returns true when the match is over.
func (m *Match) EndRound(winnerID string, now time.Time) bool {
	m.RoundWinnerID = winnerID
	m.CurrentRound++
	if m.CurrentRound >= m.TotalRounds {
		m.Phase = PhaseGameOver
		return true
	}
	m.Phase = PhaseRoundEnd
	m.RoundEndAt = now.Add(RoundEndDuration)
	return false
}

// Reset returns the match to warmup (RESTART_GAME)
func (m *Match) Reset() {
	m.Phase = PhaseWarmup
	m.CurrentRound = 0
	m.FreezeEnd = time.Time{}
	m.RoundEndAt = time.Time{}
	m.RoundWinnerID = ""
	m.WinnerID = ""
}

// RespawnsEnabled reports whether the warmup auto-respawn rule is
// active in the current phase
func (m *Match) RespawnsEnabled() bool {
	return m.Phase == PhaseWarmup
}

// InputAllowed reports whether movement/ability requests are accepted
// in the current phase
func (m *Match) InputAllowed() bool {
	return m.Phase == PhaseWarmup || m.Phase == PhaseRound || m.Phase == PhaseRoundEnd
}

// SpawnClaims assigns each player one shuffled spawn-point index for
// the whole match; the same index is reused on every respawn and
// released on disconnect.
type SpawnClaims struct {
	points   []Vec3
	free     []int
	byPlayer map[string]int
}

// NewSpawnClaims shuffles the map's spawn points into a claim pool
func NewSpawnClaims(points []Vec3) *SpawnClaims {
	free := make([]int, len(points))
	for i := range free {
		free[i] = i
	}
	rand.Shuffle(len(free), func(i, j int) {
		free[i], free[j] = free[j], free[i]
	})
	return &SpawnClaims{
		points:   points,
		free:     free,
		byPlayer: make(map[string]int),
	}
}

// Claim assigns the next free spawn index to a player. Returns false
// when every spawn point is taken.
func (sc *SpawnClaims) Claim(playerID string) (int, bool) {
	if idx, ok := sc.byPlayer[playerID]; ok {
		return idx, true
	}
	if len(sc.free) == 0 {
		return 0, false
	}
	idx := sc.free[0]
	sc.free = sc.free[1:]
	sc.byPlayer[playerID] = idx
	return idx, true
}

// Release returns a player's spawn index to the pool
func (sc *SpawnClaims) Release(playerID string) {
	idx, ok := sc.byPlayer[playerID]
	if !ok {
		return
	}
	delete(sc.byPlayer, playerID)
	sc.free = append(sc.free, idx)
}

// Point returns the spawn position for a claimed index
func (sc *SpawnClaims) Point(idx int) Vec3 {
	return sc.points[idx]
}

// Claimed returns the number of outstanding claims
func (sc *SpawnClaims) Claimed() int {
	return len(sc.byPlayer)
}
