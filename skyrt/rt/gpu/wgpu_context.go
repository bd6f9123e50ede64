package gpu

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// RenderContext records pipeline state for one render pass and resolves it
// into a cached pipeline and bind groups at draw time.
type RenderContext struct {
	provider *WgpuProvider
	pass     *wgpu.RenderPassEncoder

	vs, ps     *wgpuShaderModule
	layout     *wgpuInputLayout
	blend      *wgpuBlendState
	factor     [4]float64
	sampleMask uint32

	uniforms map[Stage]map[uint32]*wgpuBuffer
	textures map[Stage]map[uint32]*wgpuTexture
	samplers map[Stage]map[uint32]*wgpuSampler

	vertexBuf *wgpuBuffer
	indexBuf  *wgpuBuffer

	// err holds the first invalid binding; DrawIndexed reports it.
	err error
}

var _ Context = (*RenderContext)(nil)

func (p *WgpuProvider) NewRenderContext(pass *wgpu.RenderPassEncoder) *RenderContext {
	return &RenderContext{
		provider:   p,
		pass:       pass,
		sampleMask: 0xFFFFFFFF,
		factor:     [4]float64{1, 1, 1, 1},
		uniforms:   make(map[Stage]map[uint32]*wgpuBuffer),
		textures:   make(map[Stage]map[uint32]*wgpuTexture),
		samplers:   make(map[Stage]map[uint32]*wgpuSampler),
	}
}

func asBuffer(buf Buffer) (*wgpuBuffer, error) {
	b, ok := buf.(*wgpuBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer %T not created by wgpu provider: %w", buf, ErrUnsupported)
	}
	if b.released {
		return nil, fmt.Errorf("buffer %s: %w", b.label, ErrReleased)
	}
	return b, nil
}

func (c *RenderContext) Map(buf Buffer, mode MapMode) ([]byte, error) {
	b, err := asBuffer(buf)
	if err != nil {
		return nil, err
	}
	if mode != MapWriteDiscard || b.staging == nil {
		return nil, fmt.Errorf("map %s: %w", b.label, ErrUnsupported)
	}
	if b.mapped {
		return nil, fmt.Errorf("map %s: %w", b.label, ErrMapped)
	}
	b.mapped = true
	clear(b.staging)
	return b.staging, nil
}

func (c *RenderContext) Unmap(buf Buffer) error {
	b, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if !b.mapped {
		return fmt.Errorf("unmap %s: %w", b.label, ErrNotMapped)
	}
	b.mapped = false
	return c.provider.Queue.WriteBuffer(b.buf, 0, b.staging)
}

func (c *RenderContext) SetShaders(vs, ps ShaderModule) {
	c.vs, _ = vs.(*wgpuShaderModule)
	c.ps, _ = ps.(*wgpuShaderModule)
}

func (c *RenderContext) SetInputLayout(layout InputLayout) {
	c.layout, _ = layout.(*wgpuInputLayout)
}

func (c *RenderContext) fail(err error) bool {
	if err != nil && c.err == nil {
		c.err = err
	}
	return err != nil
}

func (c *RenderContext) SetUniformBuffer(stage Stage, slot uint32, buf Buffer) {
	if c.fail(CheckSlot("uniform", slot)) {
		return
	}
	b, _ := buf.(*wgpuBuffer)
	slots(c.uniforms, stage)[slot] = b
}

func (c *RenderContext) SetBlendState(state BlendState, factor [4]float64, sampleMask uint32) {
	c.blend, _ = state.(*wgpuBlendState)
	c.factor = factor
	c.sampleMask = sampleMask
}

func (c *RenderContext) SetTexture(stage Stage, slot uint32, tex Texture) {
	if c.fail(CheckSlot("texture", slot)) {
		return
	}
	t, _ := tex.(*wgpuTexture)
	slots(c.textures, stage)[slot] = t
}

func (c *RenderContext) SetSampler(stage Stage, slot uint32, s Sampler) {
	if c.fail(CheckSlot("sampler", slot)) {
		return
	}
	smp, _ := s.(*wgpuSampler)
	slots(c.samplers, stage)[slot] = smp
}

func (c *RenderContext) SetVertexBuffer(buf Buffer) {
	c.vertexBuf, _ = buf.(*wgpuBuffer)
}

func (c *RenderContext) SetIndexBuffer(buf Buffer) {
	c.indexBuf, _ = buf.(*wgpuBuffer)
}

func slots[T any](m map[Stage]map[uint32]T, stage Stage) map[uint32]T {
	s, ok := m[stage]
	if !ok {
		s = make(map[uint32]T)
		m[stage] = s
	}
	return s
}

func (c *RenderContext) DrawIndexed(indexCount uint32) error {
	if c.err != nil {
		return fmt.Errorf("draw: %w", c.err)
	}
	if c.vs == nil || c.ps == nil || c.layout == nil {
		return fmt.Errorf("draw: shaders and input layout must be set: %w", ErrUnsupported)
	}
	if c.vertexBuf == nil || c.indexBuf == nil {
		return fmt.Errorf("draw: vertex and index buffers must be set: %w", ErrUnsupported)
	}

	pipeline, err := c.pipeline()
	if err != nil {
		return err
	}
	c.pass.SetPipeline(pipeline)

	for _, stage := range []Stage{StageVertex, StagePixel} {
		group, err := c.bindGroup(pipeline, stage)
		if err != nil {
			return err
		}
		if group != nil {
			c.pass.SetBindGroup(BindGroupIndex(stage), group, nil)
		}
	}

	c.pass.SetBlendConstant(&wgpu.Color{R: c.factor[0], G: c.factor[1], B: c.factor[2], A: c.factor[3]})
	c.pass.SetVertexBuffer(0, c.vertexBuf.buf, 0, wgpu.WholeSize)
	c.pass.SetIndexBuffer(c.indexBuf.buf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	c.pass.DrawIndexed(indexCount, 1, 0, 0, 0)
	return nil
}

func (c *RenderContext) pipeline() (*wgpu.RenderPipeline, error) {
	key := pipelineKey{vs: c.vs.id, ps: c.ps.id, layout: c.layout.id, sampleMask: c.sampleMask}
	if c.blend != nil {
		key.blend = c.blend.id
	}

	p := c.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.pipelines[key]; ok {
		return cached.pipeline, nil
	}

	attrs := make([]wgpu.VertexAttribute, 0, len(c.layout.desc.Attributes))
	for _, a := range c.layout.desc.Attributes {
		f, err := vertexFormat(a.Format)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, wgpu.VertexAttribute{Format: f, Offset: a.Offset, ShaderLocation: a.Location})
	}

	target := wgpu.ColorTargetState{Format: p.Format, WriteMask: wgpu.ColorWriteMaskAll}
	ids := []uuid.UUID{c.vs.id, c.ps.id, c.layout.id}
	if c.blend != nil {
		bs, err := blendState(c.blend.desc)
		if err != nil {
			return nil, err
		}
		target.Blend = bs
		target.WriteMask = writeMask(c.blend.desc.WriteMask)
		ids = append(ids, c.blend.id)
	}

	pipeline, err := p.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: c.vs.label + "+" + c.ps.label,
		Vertex: wgpu.VertexState{
			Module:     c.vs.module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: c.layout.desc.Stride,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes:  attrs,
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     c.ps.module,
			EntryPoint: "fs_main",
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  c.sampleMask,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create render pipeline: %w", err)
	}
	p.pipelines[key] = &cachedPipeline{pipeline: pipeline, ids: ids}
	return pipeline, nil
}

// bindGroup returns nil when nothing is bound to stage.
func (c *RenderContext) bindGroup(pipeline *wgpu.RenderPipeline, stage Stage) (*wgpu.BindGroup, error) {
	var entries []wgpu.BindGroupEntry
	var ids []uuid.UUID

	for slot, b := range c.uniforms[stage] {
		if b == nil {
			continue
		}
		if b.released {
			return nil, fmt.Errorf("bind %s uniform %d: %w", stage, slot, ErrReleased)
		}
		entries = append(entries, wgpu.BindGroupEntry{Binding: UniformBinding(slot), Buffer: b.buf, Offset: 0, Size: b.size})
		ids = append(ids, b.id)
	}
	for slot, t := range c.textures[stage] {
		if t == nil {
			continue
		}
		if t.released {
			return nil, fmt.Errorf("bind %s texture %d: %w", stage, slot, ErrReleased)
		}
		entries = append(entries, wgpu.BindGroupEntry{Binding: TextureBinding(slot), TextureView: t.view})
		ids = append(ids, t.id)
	}
	for slot, s := range c.samplers[stage] {
		if s == nil {
			continue
		}
		if s.released {
			return nil, fmt.Errorf("bind %s sampler %d: %w", stage, slot, ErrReleased)
		}
		entries = append(entries, wgpu.BindGroupEntry{Binding: SamplerBinding(slot), Sampler: s.sampler})
		ids = append(ids, s.id)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })

	key := bindGroupKey(pipeline, stage, entries)

	p := c.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.bindGroups[key]; ok {
		return cached.group, nil
	}

	group, err := p.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s bind group", stage),
		Layout:  pipeline.GetBindGroupLayout(BindGroupIndex(stage)),
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s bind group: %w", stage, err)
	}
	p.bindGroups[key] = &cachedBindGroup{group: group, ids: ids}
	return group, nil
}

func bindGroupKey(pipeline *wgpu.RenderPipeline, stage Stage, entries []wgpu.BindGroupEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%p/%d", pipeline, stage)
	for _, e := range entries {
		fmt.Fprintf(&sb, "/%d:%p%p%p", e.Binding, e.Buffer, e.TextureView, e.Sampler)
	}
	return sb.String()
}
