package main

import "time"

// LaserBeam is an instantaneous raycast beam that persists visually
// for a short window. While it persists it strikes each player at most
// once, tracked by the hit set.
type LaserBeam struct {
	ID        string
	OwnerID   string
	Start     Vec3
	End       Vec3
	ExpiresAt time.Time
	hit       map[string]bool
}

// NewLaserBeam creates a beam from start to the raycast-clipped end
func NewLaserBeam(ownerID string, start, end Vec3, now time.Time) *LaserBeam {
	return &LaserBeam{
		ID:        GenerateID(4),
		OwnerID:   ownerID,
		Start:     start,
		End:       end,
		ExpiresAt: now.Add(LaserDuration),
		hit:       make(map[string]bool),
	}
}

// Expired reports whether the beam is past its lifetime
func (lb *LaserBeam) Expired(now time.Time) bool {
	return !now.Before(lb.ExpiresAt)
}

// Hits tests one player against the beam, approximating the player as
// a vertical capsule: planar distance from the player center to the
// clamped closest point on the segment, plus a vertical overlap check.
// The owner never qualifies, and a player already in the hit set is
// skipped.
func (lb *LaserBeam) Hits(p *Player) bool {
	if p.ID == lb.OwnerID || !p.Alive || lb.hit[p.ID] {
		return false
	}

	center := p.Pos.Add(Vec3{Y: PlayerHeight / 2})
	closest := ClosestOnSegment(center, lb.Start, lb.End)

	dx := closest.X - center.X
	dz := closest.Z - center.Z
	reach := LaserRadius + PlayerRadius
	if dx*dx+dz*dz > reach*reach {
		return false
	}
	if closest.Y < p.Pos.Y || closest.Y > p.Pos.Y+PlayerHeight {
		return false
	}
	return true
}

// MarkHit records a damaged victim so later ticks skip it
func (lb *LaserBeam) MarkHit(playerID string) {
	lb.hit[playerID] = true
}

// ToState converts to the snapshot record. The hit set is internal and
// never serialized.
func (lb *LaserBeam) ToState() LaserBeamState {
	return LaserBeamState{
		ID:        lb.ID,
		OwnerID:   lb.OwnerID,
		Start:     lb.Start,
		End:       lb.End,
		ExpiresAt: lb.ExpiresAt.UnixMilli(),
	}
}
