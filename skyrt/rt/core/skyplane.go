package core

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SkyVertex matches the clouds_vs.wgsl vertex input.
type SkyVertex struct {
	Pos [3]float32
	UV  [2]float32
}

const SkyVertexStride = 20

// SkyPlane is a square grid bent into a shallow dome: height falls off
// quadratically from Top at the centre to Bottom at the edge midpoints.
type SkyPlane struct {
	Vertices []SkyVertex
	Indices  []uint32
}

func NewSkyPlane(resolution int, width, top, bottom, uvRepeat float32) (*SkyPlane, error) {
	if resolution < 1 {
		return nil, fmt.Errorf("sky plane resolution must be >= 1, got %d", resolution)
	}
	if width <= 0 {
		return nil, fmt.Errorf("sky plane width must be positive, got %g", width)
	}
	if bottom > top {
		return nil, fmt.Errorf("sky plane bottom %g above top %g", bottom, top)
	}

	half := width / 2
	step := width / float32(resolution)
	curve := (top - bottom) / (half * half)
	n := resolution + 1

	p := &SkyPlane{
		Vertices: make([]SkyVertex, 0, n*n),
		Indices:  make([]uint32, 0, resolution*resolution*6),
	}
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			x := -half + float32(i)*step
			y := -half + float32(j)*step
			z := top - curve*(x*x+y*y)
			p.Vertices = append(p.Vertices, SkyVertex{
				Pos: [3]float32{x, y, z},
				UV:  [2]float32{float32(i) / float32(resolution) * uvRepeat, float32(j) / float32(resolution) * uvRepeat},
			})
		}
	}
	for j := 0; j < resolution; j++ {
		for i := 0; i < resolution; i++ {
			a := uint32(j*n + i)
			b := a + 1
			c := a + uint32(n)
			d := c + 1
			p.Indices = append(p.Indices, a, c, b, b, c, d)
		}
	}
	return p, nil
}

func (p *SkyPlane) VertexBytes() []byte {
	buf := make([]byte, len(p.Vertices)*SkyVertexStride)
	for i, v := range p.Vertices {
		off := i * SkyVertexStride
		for k, f := range [5]float32{v.Pos[0], v.Pos[1], v.Pos[2], v.UV[0], v.UV[1]} {
			binary.LittleEndian.PutUint32(buf[off+k*4:], math.Float32bits(f))
		}
	}
	return buf
}

func (p *SkyPlane) IndexBytes() []byte {
	buf := make([]byte, len(p.Indices)*4)
	for i, idx := range p.Indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

func (p *SkyPlane) IndexCount() uint32 {
	return uint32(len(p.Indices))
}
