package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Sizes of the uniform blocks declared in clouds_vs.wgsl / clouds_ps.wgsl.
const (
	mat4Size         = 64
	MatrixBufferSize = 3 * mat4Size
	ScrollDataSize   = 16
)

// MatrixBuffer is the vertex-stage uniform block:
//
//	struct MatrixBuffer {
//	  world: mat4x4<f32>;       -- 0
//	  view: mat4x4<f32>;        -- 64
//	  projection: mat4x4<f32>;  -- 128
//	} -> 192 bytes
//
// The matrices are stored already transposed.
type MatrixBuffer struct {
	World      mgl32.Mat4
	View       mgl32.Mat4
	Projection mgl32.Mat4
}

// NewMatrixBuffer transposes each matrix for upload.
func NewMatrixBuffer(world, view, projection mgl32.Mat4) MatrixBuffer {
	return MatrixBuffer{
		World:      world.Transpose(),
		View:       view.Transpose(),
		Projection: projection.Transpose(),
	}
}

func (m MatrixBuffer) Bytes() []byte {
	buf := make([]byte, MatrixBufferSize)
	m.Put(buf)
	return buf
}

// Put writes the block into dst, which must hold MatrixBufferSize bytes.
func (m MatrixBuffer) Put(dst []byte) {
	putMat4(dst[0:], m.World)
	putMat4(dst[mat4Size:], m.View)
	putMat4(dst[2*mat4Size:], m.Projection)
}

// ScrollData is the pixel-stage uniform block, a single vec4<f32> holding
// (scroll speed, time, 0, 0).
type ScrollData struct {
	ScrollSpeed float32
	Time        float32
}

func (s ScrollData) Vec4() mgl32.Vec4 {
	return mgl32.Vec4{s.ScrollSpeed, s.Time, 0, 0}
}

func (s ScrollData) Bytes() []byte {
	buf := make([]byte, ScrollDataSize)
	s.Put(buf)
	return buf
}

func (s ScrollData) Put(dst []byte) {
	v := s.Vec4()
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v[i]))
	}
}

// DecodeMat4 reads a matrix written by Put. Element order matches mgl32.Mat4.
func DecodeMat4(src []byte) mgl32.Mat4 {
	var m mgl32.Mat4
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return m
}

func DecodeVec4(src []byte) mgl32.Vec4 {
	var v mgl32.Vec4
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return v
}

func putMat4(dst []byte, m mgl32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}
