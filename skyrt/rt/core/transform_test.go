package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestTransform_ObjectToWorld(t *testing.T) {
	tr := NewTransform()
	assert.True(t, tr.ObjectToWorld().ApproxEqual(mgl32.Ident4()))

	tr.Position = mgl32.Vec3{1, 2, 3}
	tr.Rotation = mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1})
	tr.Scale = mgl32.Vec3{2, 2, 2}

	// scale, then rotate X onto Y, then translate
	p := tr.ObjectToWorld().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 1, p.X(), 1e-5)
	assert.InDelta(t, 4, p.Y(), 1e-5)
	assert.InDelta(t, 3, p.Z(), 1e-5)
}

func TestTransform_FollowXYKeepsHeight(t *testing.T) {
	tr := NewTransform()
	tr.Position = mgl32.Vec3{0, 0, 60}

	tr.FollowXY(mgl32.Vec3{-12, 7, 3})
	assert.Equal(t, mgl32.Vec3{-12, 7, 60}, tr.Position)
}

func TestTransform_ScaledLayerFollowsCamera(t *testing.T) {
	tr := NewTransform()
	tr.Position = mgl32.Vec3{10, 0, 60}
	tr.Scale = mgl32.Vec3{2, 2, 1}

	p := tr.ObjectToWorld().Mul4x1(mgl32.Vec4{1, 1, 0, 1})
	assert.Equal(t, mgl32.Vec4{12, 2, 60, 1}, p)

	tr.FollowXY(mgl32.Vec3{-4, 7, 100})
	assert.Equal(t, mgl32.Vec3{-4, 7, 60}, tr.Position)
}
