package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// MapConfig is the static arena description. It is loaded once before
// hosting begins and never mutated afterwards; a malformed document is
// fatal at load time.
type MapConfig struct {
	Name        string  `json:"name"`
	ArenaSize   float64 `json:"arenaSize"` // side of the square arena, centered on origin
	SpawnPoints []Vec3  `json:"spawnPoints"`
	Obstacles   []Box   `json:"obstacles"`
}

// HalfExtent is the distance from the arena center to each wall.
func (m *MapConfig) HalfExtent() float64 { return m.ArenaSize / 2 }

// InBounds reports whether p lies inside the arena square.
func (m *MapConfig) InBounds(p Vec3) bool {
	h := m.HalfExtent()
	return p.X >= -h && p.X <= h && p.Z >= -h && p.Z <= h
}

// ClampToArena pulls p back inside the arena square, leaving Y alone.
func (m *MapConfig) ClampToArena(p Vec3) Vec3 {
	h := m.HalfExtent()
	p.X = Clamp(p.X, -h, h)
	p.Z = Clamp(p.Z, -h, h)
	return p
}

// Validate checks structural invariants of the map document.
func (m *MapConfig) Validate() error {
	if m.ArenaSize <= 0 {
		return fmt.Errorf("map %q: arenaSize must be positive, got %v", m.Name, m.ArenaSize)
	}
	if len(m.SpawnPoints) < MinPlayersToStart {
		return fmt.Errorf("map %q: need at least %d spawn points, got %d",
			m.Name, MinPlayersToStart, len(m.SpawnPoints))
	}
	for i, sp := range m.SpawnPoints {
		if !m.InBounds(sp) {
			return fmt.Errorf("map %q: spawn point %d outside arena bounds", m.Name, i)
		}
	}
	for i, ob := range m.Obstacles {
		if ob.Min.X >= ob.Max.X || ob.Min.Y >= ob.Max.Y || ob.Min.Z >= ob.Max.Z {
			return fmt.Errorf("map %q: obstacle %d has inverted extents", m.Name, i)
		}
	}
	return nil
}

// LoadMapConfig reads and validates a map document from disk.
func LoadMapConfig(path string) (*MapConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map: %w", err)
	}
	return ParseMapConfig(data)
}

// ParseMapConfig decodes and validates a map document.
func ParseMapConfig(data []byte) (*MapConfig, error) {
	var m MapConfig
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse map: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DefaultMap is used when the host is started without a -map flag: an
// open square with four cover boxes around the middle.
func DefaultMap() *MapConfig {
	return &MapConfig{
		Name:      "quad",
		ArenaSize: 60,
		SpawnPoints: []Vec3{
			{X: -25, Z: -25}, {X: 25, Z: -25},
			{X: -25, Z: 25}, {X: 25, Z: 25},
			{X: 0, Z: -27}, {X: 0, Z: 27},
			{X: -27, Z: 0}, {X: 27, Z: 0},
		},
		Obstacles: []Box{
			{Min: Vec3{X: -12, Y: 0, Z: -12}, Max: Vec3{X: -8, Y: 3, Z: -8}},
			{Min: Vec3{X: 8, Y: 0, Z: -12}, Max: Vec3{X: 12, Y: 3, Z: -8}},
			{Min: Vec3{X: -12, Y: 0, Z: 8}, Max: Vec3{X: -8, Y: 3, Z: 12}},
			{Min: Vec3{X: 8, Y: 0, Z: 8}, Max: Vec3{X: 12, Y: 3, Z: 12}},
		},
	}
}
