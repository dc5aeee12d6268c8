package gamemath

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ClampLength scales v down so its length does not exceed max.
func ClampLength(v mgl32.Vec3, max float32) mgl32.Vec3 {
	l2 := v.Dot(v)
	if l2 <= max*max {
		return v
	}
	return v.Mul(max / math32.Sqrt(l2))
}

// DistSqr returns the squared distance between a and b.
func DistSqr(a, b mgl32.Vec3) float32 {
	d := b.Sub(a)
	return d.Dot(d)
}

// YawQuat returns a rotation of yaw radians about the up (Y) axis.
func YawQuat(yaw float32) mgl32.Quat {
	return mgl32.QuatRotate(yaw, mgl32.Vec3{0, 1, 0})
}

// FacingQuat returns the yaw rotation that faces along v on the XZ plane, or
// fallback when v has no horizontal component.
func FacingQuat(v mgl32.Vec3, fallback mgl32.Quat) mgl32.Quat {
	if math32.Abs(v[0]) < 1e-6 && math32.Abs(v[2]) < 1e-6 {
		return fallback
	}
	return YawQuat(math32.Atan2(v[0], v[2]))
}

// Finite reports whether every value is neither NaN nor infinite.
func Finite(vs ...float32) bool {
	for _, v := range vs {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}
