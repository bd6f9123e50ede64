package shader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gekko3d/clouds"
	"github.com/gekko3d/clouds/skyrt/rt/core"
	"github.com/gekko3d/clouds/skyrt/rt/gpu"
)

var (
	// ErrShaderLoad wraps failures reading or compiling a shader program.
	ErrShaderLoad = errors.New("shader load failed")
	// ErrResourceCreate wraps failures creating buffers, samplers or blend states.
	ErrResourceCreate = errors.New("shader resource creation failed")
	// ErrFrameWrite wraps per-frame map/write failures.
	ErrFrameWrite = errors.New("shader parameter upload failed")
	// ErrReleased is returned by calls on a released shader.
	ErrReleased   = errors.New("shader released")
	ErrNilTexture = errors.New("shader texture is nil")
)

// Sources are the WGSL programs used when a load path is empty.
type Sources struct {
	Vertex string
	Pixel  string
}

// SkyVertexLayout describes core.SkyVertex.
func SkyVertexLayout() gpu.InputLayoutDesc {
	return gpu.InputLayoutDesc{
		Label:  "SkyVertexLayout",
		Stride: core.SkyVertexStride,
		Attributes: []gpu.VertexAttribute{
			{Format: gpu.VertexFloat32x3, Offset: 0, Location: 0},
			{Format: gpu.VertexFloat32x2, Offset: 12, Location: 1},
		},
	}
}

// BaseShader owns a vertex/pixel program pair and the vertex input layout.
type BaseShader struct {
	Provider gpu.Provider
	Logger   clouds.Logger
	// VertexLayout is created alongside the vertex shader.
	VertexLayout gpu.InputLayoutDesc

	defaults     Sources
	vertexShader gpu.ShaderModule
	pixelShader  gpu.ShaderModule
	layout       gpu.InputLayout
}

func NewBaseShader(provider gpu.Provider, logger clouds.Logger, defaults Sources) *BaseShader {
	return &BaseShader{
		Provider:     provider,
		Logger:       clouds.OrNop(logger),
		VertexLayout: SkyVertexLayout(),
		defaults:     defaults,
	}
}

func (s *BaseShader) readSource(path, fallback, stage string) (label, source string, err error) {
	if path == "" {
		if fallback == "" {
			return "", "", fmt.Errorf("%w: no %s program path and no embedded default", ErrShaderLoad, stage)
		}
		return "embedded " + stage, fallback, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: read %s program: %w", ErrShaderLoad, stage, err)
	}
	return filepath.Base(path), string(raw), nil
}

// LoadVertexShader compiles the vertex program at path and creates the input
// layout. An empty path selects the embedded default.
func (s *BaseShader) LoadVertexShader(path string) error {
	label, source, err := s.readSource(path, s.defaults.Vertex, "vertex")
	if err != nil {
		return err
	}
	module, err := s.Provider.CreateShaderModule(gpu.StageVertex, label, source)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShaderLoad, err)
	}
	layout, err := s.Provider.CreateInputLayout(s.VertexLayout)
	if err != nil {
		module.Release()
		return fmt.Errorf("%w: input layout: %w", ErrShaderLoad, err)
	}
	s.releaseVertex()
	s.vertexShader = module
	s.layout = layout
	s.Logger.Debugf("loaded vertex shader %s (%s)", label, module.ID())
	return nil
}

// LoadPixelShader compiles the pixel program at path. An empty path selects
// the embedded default.
func (s *BaseShader) LoadPixelShader(path string) error {
	label, source, err := s.readSource(path, s.defaults.Pixel, "pixel")
	if err != nil {
		return err
	}
	module, err := s.Provider.CreateShaderModule(gpu.StagePixel, label, source)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShaderLoad, err)
	}
	if s.pixelShader != nil {
		s.pixelShader.Release()
	}
	s.pixelShader = module
	s.Logger.Debugf("loaded pixel shader %s (%s)", label, module.ID())
	return nil
}

func (s *BaseShader) VertexShader() gpu.ShaderModule { return s.vertexShader }
func (s *BaseShader) PixelShader() gpu.ShaderModule  { return s.pixelShader }
func (s *BaseShader) InputLayout() gpu.InputLayout   { return s.layout }

// Render binds the programs and input layout and draws indexCount indices
// from the vertex/index buffers already set on ctx.
func (s *BaseShader) Render(ctx gpu.Context, indexCount uint32) error {
	if s == nil || s.vertexShader == nil || s.pixelShader == nil || s.layout == nil {
		return fmt.Errorf("render: %w", ErrReleased)
	}
	ctx.SetShaders(s.vertexShader, s.pixelShader)
	ctx.SetInputLayout(s.layout)
	return ctx.DrawIndexed(indexCount)
}

func (s *BaseShader) releaseVertex() {
	if s.vertexShader != nil {
		s.vertexShader.Release()
		s.vertexShader = nil
	}
	s.releaseLayout()
}

func (s *BaseShader) releaseLayout() {
	if s != nil && s.layout != nil {
		s.layout.Release()
		s.layout = nil
	}
}

// Release frees both programs and the input layout. Safe to call repeatedly
// and on a nil receiver.
func (s *BaseShader) Release() {
	if s == nil {
		return
	}
	s.releaseVertex()
	if s.pixelShader != nil {
		s.pixelShader.Release()
		s.pixelShader = nil
	}
}
