package main

import "time"

// SkillType identifies an ability on the wire and in the config table
type SkillType string

const (
	SkillTeleport SkillType = "TELEPORT"
	SkillMissile  SkillType = "HOMING_MISSILE"
	SkillLaser    SkillType = "LASER_BEAM"
	SkillInvuln   SkillType = "INVINCIBILITY"
)

// Skill tuning. All four abilities share the validate-then-apply shape:
// reject while now < cooldown deadline, set the deadline immediately on
// success so request spam during the wind-up cannot double-fire.
const (
	TeleportRange     = 10.0
	TeleportTolerance = 0.5 // forgives client/host float drift on the range check
	TeleportSpeed     = 40.0
	TeleportCooldown  = 5 * time.Second

	MissileCooldown    = 8 * time.Second
	MissileSpeed       = 15.0
	MissileDamage      = 25
	MissileLifetime    = 5.0 // seconds
	MissileSteerRate   = 3.0 // velocity lerp factor per second toward the target
	MissileRadius      = 0.3
	MissileMouseRadius = 4.0 // how close the click must be to a player to lock on

	LaserCooldown = 6 * time.Second
	LaserRange    = 30.0
	LaserDamage   = 40
	LaserRadius   = 0.2
	LaserDuration = 500 * time.Millisecond

	InvulnCooldown = 12 * time.Second
	InvulnDuration = 3 * time.Second

	ChestHeight = 1.2 // beam/missile origin height above the feet
)

// SkillDef describes one ability for the config snapshot sent to
// clients, so cooldown UI can be predicted without hardcoding values
type SkillDef struct {
	Type       SkillType `json:"type"`
	CooldownMs int64     `json:"cooldownMs"`
	Range      float64   `json:"range,omitempty"`
	Damage     int       `json:"damage,omitempty"`
}

// SkillTable is the shared ability configuration table
var SkillTable = []SkillDef{
	{Type: SkillTeleport, CooldownMs: TeleportCooldown.Milliseconds(), Range: TeleportRange},
	{Type: SkillMissile, CooldownMs: MissileCooldown.Milliseconds(), Range: MissileMouseRadius, Damage: MissileDamage},
	{Type: SkillLaser, CooldownMs: LaserCooldown.Milliseconds(), Range: LaserRange, Damage: LaserDamage},
	{Type: SkillInvuln, CooldownMs: InvulnCooldown.Milliseconds()},
}

// Cooldowns tracks the per-skill deadline after which each ability may
// next be used. "now before deadline" means still on cooldown.
type Cooldowns struct {
	Teleport time.Time
	Missile  time.Time
	Laser    time.Time
	Invuln   time.Time
}

// Ready reports whether the given skill is off cooldown at now
func (c *Cooldowns) Ready(skill SkillType, now time.Time) bool {
	return !now.Before(c.deadline(skill))
}

// Trigger starts the cooldown for a skill at now
func (c *Cooldowns) Trigger(skill SkillType, now time.Time) {
	switch skill {
	case SkillTeleport:
		c.Teleport = now.Add(TeleportCooldown)
	case SkillMissile:
		c.Missile = now.Add(MissileCooldown)
	case SkillLaser:
		c.Laser = now.Add(LaserCooldown)
	case SkillInvuln:
		c.Invuln = now.Add(InvulnCooldown)
	}
}

// Reset clears all cooldowns (freeze-time start, respawn, restart)
func (c *Cooldowns) Reset() {
	*c = Cooldowns{}
}

func (c *Cooldowns) deadline(skill SkillType) time.Time {
	switch skill {
	case SkillTeleport:
		return c.Teleport
	case SkillMissile:
		return c.Missile
	case SkillLaser:
		return c.Laser
	case SkillInvuln:
		return c.Invuln
	}
	return time.Time{}
}

// snapshot converts deadlines to epoch milliseconds for the wire
// (zero deadline encodes as 0, i.e. ready)
func (c *Cooldowns) snapshot() map[string]int64 {
	out := make(map[string]int64, 4)
	put := func(k SkillType, t time.Time) {
		if t.IsZero() {
			out[string(k)] = 0
			return
		}
		out[string(k)] = t.UnixMilli()
	}
	put(SkillTeleport, c.Teleport)
	put(SkillMissile, c.Missile)
	put(SkillLaser, c.Laser)
	put(SkillInvuln, c.Invuln)
	return out
}
