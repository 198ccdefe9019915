package main

import "time"

const (
	PlayerMaxHP  = 100
	PlayerSpeed  = 5.0 // units/s toward the movement destination
	PlayerRadius = 0.5
	PlayerHeight = 1.8
)

// Player is the authoritative state for one connected peer's avatar.
// All mutation happens on the simulation goroutine.
type Player struct {
	ID     string
	Name   string
	Avatar string

	Pos    Vec3
	Facing Quat

	HP    int
	MaxHP int
	Alive bool
	// Frozen is set by the match machine during freeze time; a frozen
	// player ignores movement and ability requests.
	Frozen bool

	CDs         Cooldowns
	InvulnUntil time.Time

	// Teleporting players snap toward TeleportDest over subsequent
	// ticks at TeleportSpeed with no collision checks.
	Teleporting  bool
	TeleportDest Vec3

	// Dest is the current click-to-move target, nil when idle.
	Dest *Vec3

	// PendingInput holds the latest unconsumed movement request; the
	// command handler writes it, the tick consumes and clears it.
	PendingInput *PlayerInputMsg

	Kills          int
	Deaths         int
	RoundsSurvived int // rounds ended as the last player alive

	// DiedAt drives the warmup auto-respawn rule
	DiedAt time.Time

	SpawnIndex int
}

// NewPlayer creates a player at its claimed spawn point
func NewPlayer(id, name string, spawnIndex int, spawn Vec3) *Player {
	return &Player{
		ID:         id,
		Name:       name,
		Pos:        spawn,
		Facing:     IdentityQuat(),
		HP:         PlayerMaxHP,
		MaxHP:      PlayerMaxHP,
		Alive:      true,
		SpawnIndex: spawnIndex,
	}
}

// SetDestination records a movement target. Ignored while dead or
// frozen; the requester finds out from the next snapshot.
func (p *Player) SetDestination(dest Vec3) {
	if !p.Alive || p.Frozen {
		return
	}
	dest.Y = 0
	p.Dest = &dest
}

// StopMovement clears the movement target
func (p *Player) StopMovement() {
	p.Dest = nil
}

// IsInvulnerable reports whether the invincibility window covers now
func (p *Player) IsInvulnerable(now time.Time) bool {
	return now.Before(p.InvulnUntil)
}

// Update advances the player one tick. Teleporting players move
// straight to the teleport destination with no collision checks;
// normal movement is cancelled when the capsule-approximated box at
// the candidate position would overlap an obstacle or another living
// player.
func (p *Player) Update(dt float64, m *MapConfig, others []*Player) {
	if !p.Alive || p.Frozen {
		return
	}

	if p.Teleporting {
		delta := p.TeleportDest.Sub(p.Pos)
		step := TeleportSpeed * dt
		if delta.Length() <= step {
			p.Pos = p.TeleportDest
			p.Teleporting = false
		} else {
			p.Pos = p.Pos.Add(delta.Normalize().Scale(step))
		}
		p.Facing = FacingQuat(delta)
		return
	}

	if p.Dest == nil {
		return
	}

	delta := p.Dest.Sub(p.Pos)
	delta.Y = 0
	dist := delta.Length()
	step := PlayerSpeed * dt

	arrived := dist <= step
	var candidate Vec3
	if arrived {
		candidate = *p.Dest
	} else {
		candidate = p.Pos.Add(delta.Normalize().Scale(step))
	}

	box := BoxAt(candidate, PlayerRadius, PlayerHeight)
	for _, ob := range m.Obstacles {
		if box.Intersects(ob) {
			p.Dest = nil
			return
		}
	}
	for _, other := range others {
		if other.ID == p.ID || !other.Alive {
			continue
		}
		if box.Intersects(BoxAt(other.Pos, PlayerRadius, PlayerHeight)) {
			p.Dest = nil
			return
		}
	}

	p.Pos = m.ClampToArena(candidate)
	p.Facing = FacingQuat(delta)
	if arrived {
		p.Dest = nil
	}
}

// TryTeleport validates and applies a teleport request. On success the
// player enters the teleporting state (it snaps over subsequent ticks,
// not instantly) and the cooldown starts immediately.
func (p *Player) TryTeleport(target Vec3, now time.Time, m *MapConfig) bool {
	if !p.Alive || p.Frozen {
		return false
	}
	if !p.CDs.Ready(SkillTeleport, now) {
		return false
	}
	target.Y = 0
	if p.Pos.DistanceTo(target) > TeleportRange+TeleportTolerance {
		return false
	}
	if !m.InBounds(target) {
		return false
	}
	box := BoxAt(target, PlayerRadius, PlayerHeight)
	for _, ob := range m.Obstacles {
		if box.Intersects(ob) {
			return false
		}
	}

	p.Teleporting = true
	p.TeleportDest = target
	p.Dest = nil
	p.CDs.Trigger(SkillTeleport, now)
	return true
}

// TryMissile validates and applies a homing-missile request. The
// missile locks onto the single nearest other living player within the
// mouse radius of the click point, or flies unguided if nobody
// qualifies.
func (p *Player) TryMissile(click Vec3, now time.Time, others []*Player) *Missile {
	if !p.Alive || p.Frozen {
		return nil
	}
	if !p.CDs.Ready(SkillMissile, now) {
		return nil
	}

	click.Y = 0
	targetID := ""
	best := MissileMouseRadius
	for _, other := range others {
		if other.ID == p.ID || !other.Alive {
			continue
		}
		d := other.Pos.DistanceTo(click)
		if d <= best {
			best = d
			targetID = other.ID
		}
	}

	origin := p.Pos.Add(Vec3{Y: ChestHeight})
	aim := click.Add(Vec3{Y: ChestHeight}).Sub(origin).Normalize()
	if aim.Length() == 0 {
		aim = Vec3{Z: 1}
	}

	p.CDs.Trigger(SkillMissile, now)
	return NewMissile(p.ID, origin, aim, targetID)
}

// TryLaser validates and applies a laser-beam request. The beam end is
// raycast against static obstacles from chest height and capped at the
// ability range.
func (p *Player) TryLaser(dir Vec3, now time.Time, m *MapConfig) *LaserBeam {
	if !p.Alive || p.Frozen {
		return nil
	}
	if !p.CDs.Ready(SkillLaser, now) {
		return nil
	}
	dir = dir.Normalize()
	if dir.Length() == 0 {
		return nil
	}

	origin := p.Pos.Add(Vec3{Y: ChestHeight})
	reach := LaserRange
	for _, ob := range m.Obstacles {
		if t, hit := RayBox(origin, dir, ob); hit && t < reach {
			reach = t
		}
	}

	p.CDs.Trigger(SkillLaser, now)
	return NewLaserBeam(p.ID, origin, origin.Add(dir.Scale(reach)), now)
}

// TryInvincibility grants a fixed-duration invulnerability window
func (p *Player) TryInvincibility(now time.Time) bool {
	if !p.Alive || p.Frozen {
		return false
	}
	if !p.CDs.Ready(SkillInvuln, now) {
		return false
	}
	p.InvulnUntil = now.Add(InvulnDuration)
	p.CDs.Trigger(SkillInvuln, now)
	return true
}

// TakeDamage reduces HP and returns true if the player died. No-op
// while dead or invulnerable. Kill attribution is the caller's job;
// the victim's own death counter is incremented here.
func (p *Player) TakeDamage(amount int, now time.Time) bool {
	if !p.Alive || p.IsInvulnerable(now) {
		return false
	}
	p.HP -= amount
	if p.HP <= 0 {
		p.HP = 0
		p.Alive = false
		p.Deaths++
		p.DiedAt = now
		p.Dest = nil
		p.Teleporting = false
		return true
	}
	return false
}

// ResetToSpawn restores vitals, clears cooldowns and transient state,
// and places the player at its claimed spawn point
func (p *Player) ResetToSpawn(spawn Vec3) {
	p.Pos = spawn
	p.Facing = IdentityQuat()
	p.HP = p.MaxHP
	p.Alive = true
	p.CDs.Reset()
	p.InvulnUntil = time.Time{}
	p.DiedAt = time.Time{}
	p.Teleporting = false
	p.Dest = nil
	p.PendingInput = nil
}

// ResetStats zeroes match statistics (RESTART_GAME)
func (p *Player) ResetStats() {
	p.Kills = 0
	p.Deaths = 0
	p.RoundsSurvived = 0
}

// ToState converts to the snapshot record. Internal fields (pending
// input, teleport destination) never leave the host.
func (p *Player) ToState(now time.Time) PlayerState {
	return PlayerState{
		ID:             p.ID,
		Username:       p.Name,
		Avatar:         p.Avatar,
		Position:       p.Pos,
		Rotation:       p.Facing,
		Health:         p.HP,
		MaxHealth:      p.MaxHP,
		Alive:          p.Alive,
		Frozen:         p.Frozen,
		Invulnerable:   p.IsInvulnerable(now),
		Teleporting:    p.Teleporting,
		Kills:          p.Kills,
		Deaths:         p.Deaths,
		RoundsSurvived: p.RoundsSurvived,
		Cooldowns:      p.CDs.snapshot(),
	}
}
