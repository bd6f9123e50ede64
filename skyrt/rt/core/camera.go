package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraState is a Z-up free-look camera.
type CameraState struct {
	Position    mgl32.Vec3
	Yaw         float32
	Pitch       float32
	Speed       float32
	Sensitivity float32

	FovY float32
	Near float32
	Far  float32
}

const maxPitch = math.Pi/2 - 0.01

func NewCameraState() *CameraState {
	return &CameraState{
		Position:    mgl32.Vec3{0, 0, 2},
		Pitch:       0.35,
		Speed:       10.0,
		Sensitivity: 0.003,
		FovY:        mgl32.DegToRad(60),
		Near:        0.1,
		Far:         2000,
	}
}

func (c *CameraState) GetForward() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(-math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
	}
}

// GetRight is forward × up, flattened onto the XY plane.
func (c *CameraState) GetRight() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(-math.Cos(float64(c.Yaw))),
		float32(-math.Sin(float64(c.Yaw))),
		0,
	}
}

// Look applies a mouse delta in pixels. Pitch is clamped short of straight up/down.
func (c *CameraState) Look(dx, dy float32) {
	c.Yaw += dx * c.Sensitivity
	c.Pitch -= dy * c.Sensitivity
	c.Pitch = mgl32.Clamp(c.Pitch, -maxPitch, maxPitch)
}

func (c *CameraState) GetViewMatrix() mgl32.Mat4 {
	eye := c.Position
	target := eye.Add(c.GetForward())
	up := mgl32.Vec3{0, 0, 1}
	return mgl32.LookAtV(eye, target, up)
}

// clipZToUnit remaps OpenGL clip depth [-1,1] to the WebGPU range [0,1].
var clipZToUnit = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

func (c *CameraState) GetProjectionMatrix(width, height int) mgl32.Mat4 {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	return clipZToUnit.Mul4(mgl32.Perspective(c.FovY, aspect, c.Near, c.Far))
}

// Move translates the camera along its forward and right axes.
func (c *CameraState) Move(forward, right, dt float32) {
	step := c.Speed * dt
	c.Position = c.Position.
		Add(c.GetForward().Mul(forward * step)).
		Add(c.GetRight().Mul(right * step))
}
