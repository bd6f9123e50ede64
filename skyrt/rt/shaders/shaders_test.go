package shaders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddedPrograms(t *testing.T) {
	assert.Contains(t, CloudsVertexWGSL, "fn vs_main")
	assert.Contains(t, CloudsVertexWGSL, "@group(0) @binding(0)")
	assert.Contains(t, CloudsPixelWGSL, "fn fs_main")
	assert.Contains(t, CloudsPixelWGSL, "@group(1) @binding(0)")
	assert.Contains(t, CloudsPixelWGSL, "@group(1) @binding(4)")
	assert.Contains(t, CloudsPixelWGSL, "@group(1) @binding(8)")
}
