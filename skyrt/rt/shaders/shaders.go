package shaders

import (
	_ "embed"
)

//go:embed clouds_vs.wgsl
var CloudsVertexWGSL string

//go:embed clouds_ps.wgsl
var CloudsPixelWGSL string
