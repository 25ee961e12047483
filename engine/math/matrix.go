package math

import stdmath "math"

func NewMat4Identity() Mat4 {
	m := Mat4{}
	m.Data[0] = 1
	m.Data[5] = 1
	m.Data[10] = 1
	m.Data[15] = 1
	return m
}

// Mul returns mt × other. Points are row vectors, so a.Mul(b) applies a first.
func (mt Mat4) Mul(other Mat4) Mat4 {
	var out Mat4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			sum := float32(0)
			for i := 0; i < 4; i++ {
				sum += mt.Data[row*4+i] * other.Data[i*4+col]
			}
			out.Data[row*4+col] = sum
		}
	}
	return out
}

func NewMat4Translation(position Vec3) Mat4 {
	m := NewMat4Identity()
	m.Data[12] = position.X
	m.Data[13] = position.Y
	m.Data[14] = position.Z
	return m
}

func NewMat4Scale(scale Vec3) Mat4 {
	m := NewMat4Identity()
	m.Data[0] = scale.X
	m.Data[5] = scale.Y
	m.Data[10] = scale.Z
	return m
}

func NewMat4Orthographic(left, right, bottom, top, nearClip, farClip float32) Mat4 {
	m := NewMat4Identity()
	lr := 1 / (left - right)
	bt := 1 / (bottom - top)
	nf := 1 / (nearClip - farClip)

	m.Data[0] = -2 * lr
	m.Data[5] = -2 * bt
	m.Data[10] = 2 * nf
	m.Data[12] = (left + right) * lr
	m.Data[13] = (top + bottom) * bt
	m.Data[14] = (farClip + nearClip) * nf
	return m
}

func NewMat4Perspective(fovRadians, aspectRatio, nearClip, farClip float32) Mat4 {
	halfTanFov := float32(stdmath.Tan(float64(fovRadians) * 0.5))
	m := Mat4{}
	m.Data[0] = 1 / (aspectRatio * halfTanFov)
	m.Data[5] = 1 / halfTanFov
	m.Data[10] = -((farClip + nearClip) / (farClip - nearClip))
	m.Data[11] = -1
	m.Data[14] = -((2 * farClip * nearClip) / (farClip - nearClip))
	return m
}

// Compare reports whether every element is within tolerance.
func (mt Mat4) Compare(other Mat4, tolerance float32) bool {
	for i := range mt.Data {
		if abs(mt.Data[i]-other.Data[i]) > tolerance {
			return false
		}
	}
	return true
}

func NewQuatIdentity() Quaternion {
	return Quaternion{0, 0, 0, 1}
}

func NewQuatFromAxisAngle(axis Vec3, angle float32) Quaternion {
	half := float64(angle) * 0.5
	s := float32(stdmath.Sin(half))
	c := float32(stdmath.Cos(half))
	return Quaternion{s * axis.X, s * axis.Y, s * axis.Z, c}.Normalize()
}

func (q Quaternion) Normalize() Quaternion {
	n := float32(stdmath.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if n == 0 {
		return NewQuatIdentity()
	}
	return Quaternion{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

func (q Quaternion) Mul(other Quaternion) Quaternion {
	return Quaternion{
		q.X*other.W + q.Y*other.Z - q.Z*other.Y + q.W*other.X,
		-q.X*other.Z + q.Y*other.W + q.Z*other.X + q.W*other.Y,
		q.X*other.Y - q.Y*other.X + q.Z*other.W + q.W*other.Z,
		-q.X*other.X - q.Y*other.Y - q.Z*other.Z + q.W*other.W,
	}
}

// ToMat4 builds the rotation matrix for row vectors.
func (q Quaternion) ToMat4() Mat4 {
	n := q.Normalize()
	m := NewMat4Identity()

	m.Data[0] = 1 - 2*n.Y*n.Y - 2*n.Z*n.Z
	m.Data[1] = 2*n.X*n.Y + 2*n.Z*n.W
	m.Data[2] = 2*n.X*n.Z - 2*n.Y*n.W

	m.Data[4] = 2*n.X*n.Y - 2*n.Z*n.W
	m.Data[5] = 1 - 2*n.X*n.X - 2*n.Z*n.Z
	m.Data[6] = 2*n.Y*n.Z + 2*n.X*n.W

	m.Data[8] = 2*n.X*n.Z + 2*n.Y*n.W
	m.Data[9] = 2*n.Y*n.Z - 2*n.X*n.W
	m.Data[10] = 1 - 2*n.X*n.X - 2*n.Y*n.Y
	return m
}
