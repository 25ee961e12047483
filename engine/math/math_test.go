package math

import (
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMat4IdentityIsNeutral(t *testing.T) {
	tr := NewMat4Translation(NewVec3(1, 2, 3))
	assert.Equal(t, tr, NewMat4Identity().Mul(tr))
	assert.Equal(t, tr, tr.Mul(NewMat4Identity()))
}

func TestMulAppliesLeftOperandFirst(t *testing.T) {
	// scale then translate
	m := NewMat4Scale(NewVec3(2, 2, 2)).Mul(NewMat4Translation(NewVec3(1, 0, 0)))
	p := NewVec3(1, 1, 1).Transform(m)
	assert.True(t, p.Compare(NewVec3(3, 2, 2), 1e-6), "got %v", p)
}

func TestTransformLocal(t *testing.T) {
	tf := TransformFromPosition(NewVec3(0, 5, 0))
	tf.SetRotation(NewQuatFromAxisAngle(NewVec3(0, 0, 1), float32(stdmath.Pi/2)))
	p := NewVec3(1, 0, 0).Transform(tf.Local())
	assert.True(t, p.Compare(NewVec3(0, 6, 0), 1e-5), "got %v", p)

	var nilTransform *Transform
	assert.Equal(t, NewMat4Identity(), nilTransform.Local())
}
