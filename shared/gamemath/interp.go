// Package gamemath holds the float32 vector helpers shared by the server
// simulation and the client interpolation.
package gamemath

import (
	"github.com/go-gl/mathgl/mgl32"
)

const nearZero = 1e-6

// Lerp linearly interpolates from a to b.
func Lerp(a, b mgl32.Vec3, f float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(f))
}

// Hermite evaluates the cubic Hermite curve from p1 to p2 with endpoint
// tangents v1 and v2 at s in [0,1]. Tangents are normalized unless they are
// near zero.
func Hermite(p1, p2, v1, v2 mgl32.Vec3, s float32) mgl32.Vec3 {
	v1 = normalizeOrZero(v1)
	v2 = normalizeOrZero(v2)

	s2 := s * s
	s3 := s2 * s
	h1 := 2*s3 - 3*s2 + 1
	h2 := -2*s3 + 3*s2
	h3 := s3 - 2*s2 + s
	h4 := s3 - s2

	return p1.Mul(h1).Add(p2.Mul(h2)).Add(v1.Mul(h3)).Add(v2.Mul(h4))
}

// Slerp spherically interpolates between two unit quaternions along the
// shortest arc.
func Slerp(a, b mgl32.Quat, f float32) mgl32.Quat {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	if f <= 0 {
		return a
	}
	if f >= 1 {
		return b
	}
	return mgl32.QuatSlerp(a, b, f).Normalize()
}

func normalizeOrZero(v mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l < nearZero {
		return mgl32.Vec3{}
	}
	return v.Mul(1 / l)
}
