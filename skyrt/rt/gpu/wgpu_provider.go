package gpu

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// WgpuProvider implements Provider on a WebGPU device.
//
// WebGPU has no standalone blend-state object and no CPU-mappable uniform
// buffers, so blend states are descriptors folded into cached render
// pipelines, and uniform buffers carry a staging slice that Unmap uploads
// with Queue.WriteBuffer.
type WgpuProvider struct {
	Device *wgpu.Device
	Queue  *wgpu.Queue
	Format wgpu.TextureFormat

	mu         sync.Mutex
	pipelines  map[pipelineKey]*cachedPipeline
	bindGroups map[string]*cachedBindGroup
}

type pipelineKey struct {
	vs, ps, layout, blend uuid.UUID
	sampleMask            uint32
}

type cachedPipeline struct {
	pipeline *wgpu.RenderPipeline
	ids      []uuid.UUID
}

type cachedBindGroup struct {
	group *wgpu.BindGroup
	ids   []uuid.UUID
}

func NewWgpuProvider(device *wgpu.Device, format wgpu.TextureFormat) *WgpuProvider {
	return &WgpuProvider{
		Device:     device,
		Queue:      device.GetQueue(),
		Format:     format,
		pipelines:  make(map[pipelineKey]*cachedPipeline),
		bindGroups: make(map[string]*cachedBindGroup),
	}
}

// Release drops every cached pipeline and bind group.
func (p *WgpuProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, c := range p.pipelines {
		c.pipeline.Release()
		delete(p.pipelines, k)
	}
	for k, c := range p.bindGroups {
		c.group.Release()
		delete(p.bindGroups, k)
	}
}

// forget evicts cached objects that reference id.
func (p *WgpuProvider) forget(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, c := range p.pipelines {
		if containsID(c.ids, id) {
			c.pipeline.Release()
			delete(p.pipelines, k)
		}
	}
	for k, c := range p.bindGroups {
		if containsID(c.ids, id) {
			c.group.Release()
			delete(p.bindGroups, k)
		}
	}
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type handle struct {
	id       uuid.UUID
	label    string
	released bool
	owner    *WgpuProvider
}

func newHandle(owner *WgpuProvider, label string) handle {
	id := uuid.New()
	if label == "" {
		label = id.String()
	}
	return handle{id: id, label: label, owner: owner}
}

func (h *handle) ID() uuid.UUID { return h.id }
func (h *handle) Label() string { return h.label }
func (h *handle) markReleased() bool {
	if h.released {
		return false
	}
	h.released = true
	if h.owner != nil {
		h.owner.forget(h.id)
	}
	return true
}

type wgpuBuffer struct {
	handle
	buf     *wgpu.Buffer
	size    uint64
	staging []byte
	mapped  bool
}

func (b *wgpuBuffer) Size() uint64 { return b.size }
func (b *wgpuBuffer) Release() {
	if b.markReleased() && b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

type wgpuSampler struct {
	handle
	desc    SamplerDesc
	sampler *wgpu.Sampler
}

func (s *wgpuSampler) Desc() SamplerDesc { return s.desc }
func (s *wgpuSampler) Release() {
	if s.markReleased() && s.sampler != nil {
		s.sampler.Release()
		s.sampler = nil
	}
}

type wgpuBlendState struct {
	handle
	desc BlendDesc
}

func (b *wgpuBlendState) Desc() BlendDesc { return b.desc }
func (b *wgpuBlendState) Release()        { b.markReleased() }

type wgpuTexture struct {
	handle
	tex           *wgpu.Texture
	view          *wgpu.TextureView
	width, height uint32
}

func (t *wgpuTexture) Width() uint32  { return t.width }
func (t *wgpuTexture) Height() uint32 { return t.height }
func (t *wgpuTexture) Release() {
	if !t.markReleased() {
		return
	}
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
}

type wgpuShaderModule struct {
	handle
	stage  Stage
	module *wgpu.ShaderModule
}

func (m *wgpuShaderModule) Stage() Stage { return m.stage }
func (m *wgpuShaderModule) Release() {
	if m.markReleased() && m.module != nil {
		m.module.Release()
		m.module = nil
	}
}

type wgpuInputLayout struct {
	handle
	desc InputLayoutDesc
}

func (l *wgpuInputLayout) Desc() InputLayoutDesc { return l.desc }
func (l *wgpuInputLayout) Release()              { l.markReleased() }

func (p *WgpuProvider) CreateShaderModule(stage Stage, label string, source string) (ShaderModule, error) {
	module, err := p.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s shader %q: %w", stage, label, err)
	}
	return &wgpuShaderModule{handle: newHandle(p, label), stage: stage, module: module}, nil
}

func (p *WgpuProvider) CreateInputLayout(desc InputLayoutDesc) (InputLayout, error) {
	if desc.Stride == 0 || len(desc.Attributes) == 0 {
		return nil, fmt.Errorf("input layout %q: %w", desc.Label, ErrUnsupported)
	}
	for _, a := range desc.Attributes {
		if _, err := vertexFormat(a.Format); err != nil {
			return nil, fmt.Errorf("input layout %q: %w", desc.Label, err)
		}
	}
	return &wgpuInputLayout{handle: newHandle(p, desc.Label), desc: desc}, nil
}

func (p *WgpuProvider) CreateBuffer(desc BufferDesc) (Buffer, error) {
	var usage wgpu.BufferUsage
	if desc.Bind&BindUniform != 0 {
		usage |= wgpu.BufferUsageUniform
	}
	if desc.Bind&BindVertex != 0 {
		usage |= wgpu.BufferUsageVertex
	}
	if desc.Bind&BindIndex != 0 {
		usage |= wgpu.BufferUsageIndex
	}
	if usage == 0 {
		return nil, fmt.Errorf("buffer %q: no bind flags: %w", desc.Label, ErrUnsupported)
	}

	size := desc.Size
	if size == 0 {
		size = uint64(len(desc.Contents))
	}
	// WebGPU requires 4-byte aligned copies
	if size%4 != 0 {
		size += 4 - size%4
	}

	b := &wgpuBuffer{handle: newHandle(p, desc.Label), size: size}
	var err error
	if len(desc.Contents) > 0 && desc.CPUAccess == CPUAccessNone {
		contents := desc.Contents
		if uint64(len(contents)) < size {
			contents = append(append([]byte(nil), contents...), make([]byte, size-uint64(len(contents)))...)
		}
		b.buf, err = p.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: contents,
			Usage:    usage,
		})
	} else {
		b.buf, err = p.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            desc.Label,
			Size:             size,
			Usage:            usage | wgpu.BufferUsageCopyDst,
			MappedAtCreation: false,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}
	if desc.Usage == UsageDynamic && desc.CPUAccess&CPUAccessWrite != 0 {
		b.staging = make([]byte, size)
	}
	return b, nil
}

func (p *WgpuProvider) CreateSampler(desc SamplerDesc) (Sampler, error) {
	wdesc := &wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  addressMode(desc.AddressU),
		AddressModeV:  addressMode(desc.AddressV),
		AddressModeW:  addressMode(desc.AddressW),
		LodMinClamp:   desc.MinLOD,
		LodMaxClamp:   desc.MaxLOD,
		MaxAnisotropy: max(desc.MaxAnisotropy, 1),
	}
	// mip chains never exceed 32 levels
	if wdesc.LodMaxClamp > 32 {
		wdesc.LodMaxClamp = 32
	}
	switch desc.Filter {
	case FilterPoint:
		wdesc.MagFilter = wgpu.FilterModeNearest
		wdesc.MinFilter = wgpu.FilterModeNearest
		wdesc.MipmapFilter = wgpu.MipmapFilterModeNearest
		wdesc.MaxAnisotropy = 1
	default:
		wdesc.MagFilter = wgpu.FilterModeLinear
		wdesc.MinFilter = wgpu.FilterModeLinear
		wdesc.MipmapFilter = wgpu.MipmapFilterModeLinear
	}
	if desc.Filter != FilterAnisotropic {
		wdesc.MaxAnisotropy = 1
	}
	// Compare only applies to comparison samplers; Always and Never are
	// accepted on filtering samplers and ignored.
	if desc.Compare == CompareLess {
		wdesc.Compare = wgpu.CompareFunctionLess
	}

	s, err := p.Device.CreateSampler(wdesc)
	if err != nil {
		return nil, fmt.Errorf("create sampler %q: %w", desc.Label, err)
	}
	return &wgpuSampler{handle: newHandle(p, desc.Label), desc: desc, sampler: s}, nil
}

func (p *WgpuProvider) CreateBlendState(desc BlendDesc) (BlendState, error) {
	if _, err := blendState(desc); err != nil {
		return nil, fmt.Errorf("blend state %q: %w", desc.Label, err)
	}
	return &wgpuBlendState{handle: newHandle(p, desc.Label), desc: desc}, nil
}

func (p *WgpuProvider) CreateTexture(desc TextureDesc, pixels []byte) (Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture %q: empty extent: %w", desc.Label, ErrUnsupported)
	}
	want := int(desc.Width) * int(desc.Height) * 4
	if len(pixels) != want {
		return nil, fmt.Errorf("texture %q: got %d bytes, want %d", desc.Label, len(pixels), want)
	}
	format := wgpu.TextureFormatRGBA8Unorm
	if desc.Format == TextureRGBA8UnormSrgb {
		format = wgpu.TextureFormatRGBA8UnormSrgb
	}
	extent := wgpu.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1}
	tex, err := p.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}
	if err := p.Queue.WriteTexture(tex.AsImageCopy(), pixels, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  desc.Width * 4,
		RowsPerImage: desc.Height,
	}, &extent); err != nil {
		tex.Release()
		return nil, fmt.Errorf("upload texture %q: %w", desc.Label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("texture view %q: %w", desc.Label, err)
	}
	return &wgpuTexture{
		handle: newHandle(p, desc.Label),
		tex:    tex,
		view:   view,
		width:  desc.Width,
		height: desc.Height,
	}, nil
}

func addressMode(m AddressMode) wgpu.AddressMode {
	switch m {
	case AddressClamp:
		return wgpu.AddressModeClampToEdge
	case AddressMirror:
		return wgpu.AddressModeMirrorRepeat
	}
	return wgpu.AddressModeRepeat
}

func vertexFormat(f VertexFormat) (wgpu.VertexFormat, error) {
	switch f {
	case VertexFloat32x2:
		return wgpu.VertexFormatFloat32x2, nil
	case VertexFloat32x3:
		return wgpu.VertexFormatFloat32x3, nil
	case VertexFloat32x4:
		return wgpu.VertexFormatFloat32x4, nil
	}
	return 0, fmt.Errorf("vertex format %d: %w", f, ErrUnsupported)
}

func blendFactor(f BlendFactor) (wgpu.BlendFactor, error) {
	switch f {
	case BlendZero:
		return wgpu.BlendFactorZero, nil
	case BlendOne:
		return wgpu.BlendFactorOne, nil
	case BlendSrcAlpha:
		return wgpu.BlendFactorSrcAlpha, nil
	case BlendInvSrcAlpha:
		return wgpu.BlendFactorOneMinusSrcAlpha, nil
	case BlendBlendFactor:
		return wgpu.BlendFactorConstant, nil
	}
	return 0, fmt.Errorf("blend factor %d: %w", f, ErrUnsupported)
}

func blendOp(op BlendOp) (wgpu.BlendOperation, error) {
	switch op {
	case BlendOpAdd:
		return wgpu.BlendOperationAdd, nil
	case BlendOpSubtract:
		return wgpu.BlendOperationSubtract, nil
	}
	return 0, fmt.Errorf("blend op %d: %w", op, ErrUnsupported)
}

func blendComponent(src, dst BlendFactor, op BlendOp) (wgpu.BlendComponent, error) {
	s, err := blendFactor(src)
	if err != nil {
		return wgpu.BlendComponent{}, err
	}
	d, err := blendFactor(dst)
	if err != nil {
		return wgpu.BlendComponent{}, err
	}
	o, err := blendOp(op)
	if err != nil {
		return wgpu.BlendComponent{}, err
	}
	return wgpu.BlendComponent{SrcFactor: s, DstFactor: d, Operation: o}, nil
}

// blendState returns nil when blending is disabled.
func blendState(desc BlendDesc) (*wgpu.BlendState, error) {
	if !desc.Enable {
		return nil, nil
	}
	color, err := blendComponent(desc.SrcColor, desc.DstColor, desc.ColorOp)
	if err != nil {
		return nil, err
	}
	alpha, err := blendComponent(desc.SrcAlpha, desc.DstAlpha, desc.AlphaOp)
	if err != nil {
		return nil, err
	}
	return &wgpu.BlendState{Color: color, Alpha: alpha}, nil
}

func writeMask(m ColorWriteMask) wgpu.ColorWriteMask {
	var out wgpu.ColorWriteMask
	if m&ColorWriteRed != 0 {
		out |= wgpu.ColorWriteMaskRed
	}
	if m&ColorWriteGreen != 0 {
		out |= wgpu.ColorWriteMaskGreen
	}
	if m&ColorWriteBlue != 0 {
		out |= wgpu.ColorWriteMaskBlue
	}
	if m&ColorWriteAlpha != 0 {
		out |= wgpu.ColorWriteMaskAlpha
	}
	return out
}
