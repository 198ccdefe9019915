package main

import (
	"encoding/json"
	"sync"
)

// How fast visual entities converge on authoritative values. High
// enough to hide a couple of dropped snapshots, low enough not to pop.
const replicaLerpRate = 12.0

// ReplicaPlayer is the presentation-side view of one player
type ReplicaPlayer struct {
	ID       string
	Username string
	Pos      Vec3 // smoothed
	Target   Vec3 // authoritative
	Rotation Quat
	Health   int
	Alive    bool
	Frozen   bool
}

// ReplicaMissile extrapolates between snapshots along its velocity
type ReplicaMissile struct {
	ID     string
	Pos    Vec3
	Target Vec3
	Vel    Vec3
}

// Replica is the client-reconciliation world that every peer runs,
// including the host's own client view. It consumes broadcast
// snapshots and advances visual entities toward authoritative values;
// "latest snapshot wins", an older one is simply overwritten by the
// next.
type Replica struct {
	mu       sync.Mutex
	players  map[string]*ReplicaPlayer
	missiles map[string]*ReplicaMissile
	beams    []LaserBeamState
	mode     string
	round    int
	winnerID string
	lastTS   int64
}

// NewReplica creates an empty replica world
func NewReplica() *Replica {
	return &Replica{
		players:  make(map[string]*ReplicaPlayer),
		missiles: make(map[string]*ReplicaMissile),
	}
}

// ApplyFrame decodes one broadcast frame. Frames that are not state
// updates (join responses, death notices) are ignored here.
func (r *Replica) ApplyFrame(raw []byte) {
	var update StateUpdateMsg
	if err := json.Unmarshal(raw, &update); err != nil || update.Type != MsgStateUpdate {
		return
	}
	r.Apply(update.State)
}

// Apply folds an authoritative snapshot into the replica. Entities
// absent from the snapshot are despawned; new ones spawn directly at
// their authoritative position (no lerp-in from origin).
func (r *Replica) Apply(state GameState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state.Timestamp < r.lastTS {
		return // stale frame, the newer snapshot already won
	}
	r.lastTS = state.Timestamp
	r.mode = state.GameMode
	r.round = state.CurrentRound
	r.winnerID = state.WinnerID
	r.beams = state.LaserBeams

	seen := make(map[string]bool, len(state.Players))
	for _, ps := range state.Players {
		seen[ps.ID] = true
		rp, ok := r.players[ps.ID]
		if !ok {
			rp = &ReplicaPlayer{ID: ps.ID, Pos: ps.Position}
			r.players[ps.ID] = rp
		}
		rp.Username = ps.Username
		rp.Target = ps.Position
		rp.Rotation = ps.Rotation
		rp.Health = ps.Health
		rp.Alive = ps.Alive
		rp.Frozen = ps.Frozen
		if !ps.Alive || ps.Teleporting {
			// Deaths and teleports snap; smoothing a teleport across
			// the arena looks worse than the cut.
			rp.Pos = ps.Position
		}
	}
	for id := range r.players {
		if !seen[id] {
			delete(r.players, id)
		}
	}

	seenM := make(map[string]bool, len(state.Missiles))
	for _, ms := range state.Missiles {
		seenM[ms.ID] = true
		rm, ok := r.missiles[ms.ID]
		if !ok {
			rm = &ReplicaMissile{ID: ms.ID, Pos: ms.Position}
			r.missiles[ms.ID] = rm
		}
		rm.Target = ms.Position
		rm.Vel = ms.Velocity
	}
	for id := range r.missiles {
		if !seenM[id] {
			delete(r.missiles, id)
		}
	}
}

// Advance moves visual state toward authoritative values. Call once
// per render frame with the frame delta.
func (r *Replica) Advance(dt float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := replicaLerpRate * dt
	if t > 1 {
		t = 1
	}
	for _, rp := range r.players {
		rp.Pos = rp.Pos.Lerp(rp.Target, t)
	}
	for _, rm := range r.missiles {
		// Extrapolate along velocity, then pull toward the snapshot
		rm.Pos = rm.Pos.Add(rm.Vel.Scale(dt)).Lerp(rm.Target, t)
	}
}

// Player returns a copy of one replica player
func (r *Replica) Player(id string) (ReplicaPlayer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.players[id]
	if !ok {
		return ReplicaPlayer{}, false
	}
	return *rp, true
}

// PlayerCount returns the number of replicated players
func (r *Replica) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Mode returns the replicated match phase name
func (r *Replica) Mode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}
