package main

import "math"

// Vec3 is a 3D point or direction, Y up.
type Vec3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Normalize returns the unit vector, or zero if v is (near) zero length.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l < 1e-9 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

func (v Vec3) DistanceTo(o Vec3) float64 { return o.Sub(v).Length() }

// Lerp interpolates component-wise; t outside [0,1] extrapolates.
func (v Vec3) Lerp(o Vec3, t float64) Vec3 {
	return Vec3{
		v.X + (o.X-v.X)*t,
		v.Y + (o.Y-v.Y)*t,
		v.Z + (o.Z-v.Z)*t,
	}
}

// Quat is a rotation quaternion. Players only ever yaw, so facing
// quaternions are built around the Y axis, but the wire shape carries
// all four components.
type Quat struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
	W float64 `json:"w" msgpack:"w"`
}

// IdentityQuat faces down -Z.
func IdentityQuat() Quat { return Quat{W: 1} }

// YawQuat builds a rotation of angle radians around +Y.
func YawQuat(angle float64) Quat {
	half := angle / 2
	return Quat{Y: math.Sin(half), W: math.Cos(half)}
}

// FacingQuat returns the yaw quaternion looking along dir on the ground
// plane. Zero-length directions keep identity.
func FacingQuat(dir Vec3) Quat {
	if dir.X*dir.X+dir.Z*dir.Z < 1e-12 {
		return IdentityQuat()
	}
	return YawQuat(math.Atan2(dir.X, dir.Z))
}

// Box is a static axis-aligned volume.
type Box struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// BoxAt builds an AABB centered (horizontally) at pos covering a body
// of the given radius and height, with pos at the feet.
func BoxAt(pos Vec3, radius, height float64) Box {
	return Box{
		Min: Vec3{pos.X - radius, pos.Y, pos.Z - radius},
		Max: Vec3{pos.X + radius, pos.Y + height, pos.Z + radius},
	}
}

// Intersects reports AABB overlap (touching counts as no overlap).
func (b Box) Intersects(o Box) bool {
	return b.Min.X < o.Max.X && b.Max.X > o.Min.X &&
		b.Min.Y < o.Max.Y && b.Max.Y > o.Min.Y &&
		b.Min.Z < o.Max.Z && b.Max.Z > o.Min.Z
}

// RayBox intersects a ray (origin, unit dir) with an AABB using the
// slab method. Returns the entry distance and whether the ray hits for
// t >= 0.
func RayBox(origin, dir Vec3, b Box) (float64, bool) {
	tmin := math.Inf(-1)
	tmax := math.Inf(1)

	for axis := 0; axis < 3; axis++ {
		var o, d, lo, hi float64
		switch axis {
		case 0:
			o, d, lo, hi = origin.X, dir.X, b.Min.X, b.Max.X
		case 1:
			o, d, lo, hi = origin.Y, dir.Y, b.Min.Y, b.Max.Y
		default:
			o, d, lo, hi = origin.Z, dir.Z, b.Min.Z, b.Max.Z
		}
		if math.Abs(d) < 1e-12 {
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}
		t1 := (lo - o) / d
		t2 := (hi - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return 0, false
		}
	}
	if tmax < 0 {
		return 0, false
	}
	if tmin < 0 {
		tmin = 0
	}
	return tmin, true
}

// ClosestOnSegment projects p onto the segment a-b, clamped to the
// segment extent.
func ClosestOnSegment(p, a, b Vec3) Vec3 {
	ab := b.Sub(a)
	len2 := ab.Dot(ab)
	if len2 < 1e-12 {
		return a
	}
	t := p.Sub(a).Dot(ab) / len2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return a.Add(ab.Scale(t))
}

// Clamp restricts v to [min, max].
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
