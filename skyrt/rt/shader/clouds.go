package shader

import (
	"fmt"

	"github.com/gekko3d/clouds"
	"github.com/gekko3d/clouds/skyrt/rt/core"
	"github.com/gekko3d/clouds/skyrt/rt/gpu"
	"github.com/gekko3d/clouds/skyrt/rt/shaders"
	"github.com/go-gl/mathgl/mgl32"
)

// Slot 0 on each stage, matching clouds_vs.wgsl and clouds_ps.wgsl.
const (
	matrixSlot  = 0
	scrollSlot  = 0
	textureSlot = 0
	samplerSlot = 0
)

var (
	opaqueWhite   = [4]float64{1, 1, 1, 1}
	allSampleBits = uint32(0xFFFFFFFF)
)

// CloudsShader draws a scrolling, alpha-blended cloud layer.
type CloudsShader struct {
	*BaseShader

	matrixBuffer     gpu.Buffer
	sampleState      gpu.Sampler
	scrollDataBuffer gpu.Buffer
	blendState       gpu.BlendState
	released         bool
}

// CloudsBlendDesc is standard alpha transparency on render target 0.
func CloudsBlendDesc() gpu.BlendDesc {
	return gpu.BlendDesc{
		Label:     "CloudsBlend",
		Enable:    true,
		SrcColor:  gpu.BlendSrcAlpha,
		DstColor:  gpu.BlendInvSrcAlpha,
		ColorOp:   gpu.BlendOpAdd,
		SrcAlpha:  gpu.BlendOne,
		DstAlpha:  gpu.BlendZero,
		AlphaOp:   gpu.BlendOpAdd,
		WriteMask: gpu.ColorWriteAll,
	}
}

func CloudsSamplerDesc() gpu.SamplerDesc {
	return gpu.SamplerDesc{
		Label:         "CloudsSampler",
		Filter:        gpu.FilterAnisotropic,
		AddressU:      gpu.AddressWrap,
		AddressV:      gpu.AddressWrap,
		AddressW:      gpu.AddressWrap,
		MipLODBias:    0,
		MaxAnisotropy: 1,
		Compare:       gpu.CompareAlways,
		MinLOD:        0,
		MaxLOD:        gpu.MaxLOD,
	}
}

func dynamicUniform(label string, size uint64) gpu.BufferDesc {
	return gpu.BufferDesc{
		Label:     label,
		Size:      size,
		Usage:     gpu.UsageDynamic,
		Bind:      gpu.BindUniform,
		CPUAccess: gpu.CPUAccessWrite,
	}
}

// NewCloudsShader loads the program pair and creates the matrix buffer,
// sampler, scroll buffer and blend state. Empty paths select the embedded
// programs. On failure everything created so far is released.
func NewCloudsShader(provider gpu.Provider, logger clouds.Logger, vsPath, psPath string) (*CloudsShader, error) {
	s := &CloudsShader{
		BaseShader: NewBaseShader(provider, logger, Sources{
			Vertex: shaders.CloudsVertexWGSL,
			Pixel:  shaders.CloudsPixelWGSL,
		}),
	}
	if err := s.init(vsPath, psPath); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

func (s *CloudsShader) init(vsPath, psPath string) error {
	if err := s.LoadVertexShader(vsPath); err != nil {
		return err
	}
	if err := s.LoadPixelShader(psPath); err != nil {
		return err
	}

	var err error
	if s.blendState, err = s.Provider.CreateBlendState(CloudsBlendDesc()); err != nil {
		return fmt.Errorf("%w: blend state: %w", ErrResourceCreate, err)
	}
	if s.matrixBuffer, err = s.Provider.CreateBuffer(dynamicUniform("CloudsMatrixBuffer", core.MatrixBufferSize)); err != nil {
		return fmt.Errorf("%w: matrix buffer: %w", ErrResourceCreate, err)
	}
	if s.sampleState, err = s.Provider.CreateSampler(CloudsSamplerDesc()); err != nil {
		return fmt.Errorf("%w: sampler: %w", ErrResourceCreate, err)
	}
	if s.scrollDataBuffer, err = s.Provider.CreateBuffer(dynamicUniform("CloudsScrollBuffer", core.ScrollDataSize)); err != nil {
		return fmt.Errorf("%w: scroll buffer: %w", ErrResourceCreate, err)
	}
	s.Logger.Debugf("clouds shader ready: matrix=%s scroll=%s sampler=%s blend=%s",
		s.matrixBuffer.ID(), s.scrollDataBuffer.ID(), s.sampleState.ID(), s.blendState.ID())
	return nil
}

func (s *CloudsShader) MatrixBuffer() gpu.Buffer   { return s.matrixBuffer }
func (s *CloudsShader) ScrollBuffer() gpu.Buffer   { return s.scrollDataBuffer }
func (s *CloudsShader) Sampler() gpu.Sampler       { return s.sampleState }
func (s *CloudsShader) BlendState() gpu.BlendState { return s.blendState }

// SetShaderParameters uploads the transposed matrices to the vertex stage and
// (scrollSpeed, time, 0, 0) to the pixel stage, then binds the blend state,
// texture and sampler. The caller issues the draw.
func (s *CloudsShader) SetShaderParameters(ctx gpu.Context, world, view, projection mgl32.Mat4, texture gpu.Texture, scrollSpeed, time float32) error {
	if s.released || s.matrixBuffer == nil || s.scrollDataBuffer == nil {
		return ErrReleased
	}
	if texture == nil {
		return ErrNilTexture
	}

	matrices := core.NewMatrixBuffer(world, view, projection)
	if err := gpu.WriteDiscard(ctx, s.matrixBuffer, matrices.Put); err != nil {
		return fmt.Errorf("%w: %w", ErrFrameWrite, err)
	}
	ctx.SetUniformBuffer(gpu.StageVertex, matrixSlot, s.matrixBuffer)

	scroll := core.ScrollData{ScrollSpeed: scrollSpeed, Time: time}
	if err := gpu.WriteDiscard(ctx, s.scrollDataBuffer, scroll.Put); err != nil {
		return fmt.Errorf("%w: %w", ErrFrameWrite, err)
	}
	ctx.SetUniformBuffer(gpu.StagePixel, scrollSlot, s.scrollDataBuffer)

	ctx.SetBlendState(s.blendState, opaqueWhite, allSampleBits)

	ctx.SetTexture(gpu.StagePixel, textureSlot, texture)
	ctx.SetSampler(gpu.StagePixel, samplerSlot, s.sampleState)
	return nil
}

// Release frees the sampler, matrix buffer, input layout, scroll buffer and
// blend state, then the shader programs. Safe to call repeatedly and on a
// partially constructed shader.
func (s *CloudsShader) Release() {
	s.released = true
	if s.sampleState != nil {
		s.sampleState.Release()
		s.sampleState = nil
	}
	if s.matrixBuffer != nil {
		s.matrixBuffer.Release()
		s.matrixBuffer = nil
	}
	s.releaseLayout()
	if s.scrollDataBuffer != nil {
		s.scrollDataBuffer.Release()
		s.scrollDataBuffer = nil
	}
	if s.blendState != nil {
		s.blendState.Release()
		s.blendState = nil
	}
	s.BaseShader.Release()
}
