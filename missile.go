package main

// Missile is a homing projectile. Steering is a linear blend of the
// velocity vector toward the target direction, which produces a lazy
// curve rather than an instant lock.
type Missile struct {
	ID       string
	OwnerID  string
	TargetID string // empty when unguided
	Pos      Vec3
	Vel      Vec3
	Life     float64 // seconds remaining
	Damage   int
	Alive    bool
}

// NewMissile creates a missile flying along dir, homing on targetID if
// one was locked
func NewMissile(ownerID string, origin, dir Vec3, targetID string) *Missile {
	return &Missile{
		ID:       GenerateID(4),
		OwnerID:  ownerID,
		TargetID: targetID,
		Pos:      origin,
		Vel:      dir.Normalize().Scale(MissileSpeed),
		Life:     MissileLifetime,
		Damage:   MissileDamage,
		Alive:    true,
	}
}

// Update advances the missile one tick. Returns the player hit this
// tick, or nil. A missile that hits an obstacle dies without dealing
// damage; a dead or missing homing target leaves it on its last
// velocity. Players are tested in registration order, first hit wins.
func (ms *Missile) Update(dt float64, m *MapConfig, byID map[string]*Player, order []*Player) *Player {
	if !ms.Alive {
		return nil
	}

	ms.Life -= dt
	if ms.Life <= 0 {
		ms.Alive = false
		return nil
	}

	if ms.TargetID != "" {
		if target, ok := byID[ms.TargetID]; ok && target.Alive {
			want := target.Pos.Add(Vec3{Y: ChestHeight}).Sub(ms.Pos).Normalize().Scale(MissileSpeed)
			t := MissileSteerRate * dt
			if t > 1 {
				t = 1
			}
			ms.Vel = ms.Vel.Lerp(want, t).Normalize().Scale(MissileSpeed)
		}
	}

	ms.Pos = ms.Pos.Add(ms.Vel.Scale(dt))

	box := BoxAt(Vec3{X: ms.Pos.X, Y: ms.Pos.Y - MissileRadius, Z: ms.Pos.Z}, MissileRadius, MissileRadius*2)
	for _, ob := range m.Obstacles {
		if box.Intersects(ob) {
			ms.Alive = false
			return nil
		}
	}

	for _, p := range order {
		if p.ID == ms.OwnerID || !p.Alive {
			continue
		}
		if box.Intersects(BoxAt(p.Pos, PlayerRadius, PlayerHeight)) {
			ms.Alive = false
			return p
		}
	}
	return nil
}

// ToState converts to the snapshot record
func (ms *Missile) ToState() MissileState {
	return MissileState{
		ID:       ms.ID,
		OwnerID:  ms.OwnerID,
		TargetID: ms.TargetID,
		Position: ms.Pos,
		Velocity: ms.Vel,
	}
}
