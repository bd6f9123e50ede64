package gpu

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

var (
	ErrReleased    = errors.New("gpu: resource released")
	ErrNotMapped   = errors.New("gpu: buffer not mapped")
	ErrMapped      = errors.New("gpu: buffer already mapped")
	ErrUnsupported = errors.New("gpu: unsupported descriptor")
	ErrSlotRange   = errors.New("gpu: binding slot out of range")
)

// Stage selects the programmable pipeline stage a resource is bound to.
type Stage uint8

const (
	StageVertex Stage = iota
	StagePixel
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StagePixel:
		return "pixel"
	}
	return "unknown"
}

type MapMode uint8

const (
	// MapWriteDiscard hands out write access to the whole buffer.
	// Prior contents are undefined to the writer.
	MapWriteDiscard MapMode = iota
)

type Usage uint8

const (
	UsageDefault Usage = iota
	UsageDynamic
)

type BindFlags uint8

const (
	BindUniform BindFlags = 1 << iota
	BindVertex
	BindIndex
)

type CPUAccess uint8

const (
	CPUAccessNone  CPUAccess = 0
	CPUAccessWrite CPUAccess = 1
)

type BufferDesc struct {
	Label     string
	Size      uint64
	Usage     Usage
	Bind      BindFlags
	CPUAccess CPUAccess
	// Contents initialises immutable vertex/index buffers.
	Contents []byte
}

type Filter uint8

const (
	FilterLinear Filter = iota
	FilterPoint
	FilterAnisotropic
)

type AddressMode uint8

const (
	AddressWrap AddressMode = iota
	AddressClamp
	AddressMirror
)

type CompareFunc uint8

const (
	CompareNever CompareFunc = iota
	CompareAlways
	CompareLess
)

// MaxLOD leaves the sampled mip range unbounded.
const MaxLOD = math.MaxFloat32

type SamplerDesc struct {
	Label         string
	Filter        Filter
	AddressU      AddressMode
	AddressV      AddressMode
	AddressW      AddressMode
	MipLODBias    float32
	MaxAnisotropy uint16
	Compare       CompareFunc
	MinLOD        float32
	MaxLOD        float32
}

type BlendFactor uint8

const (
	BlendZero BlendFactor = iota
	BlendOne
	BlendSrcAlpha
	BlendInvSrcAlpha
	BlendBlendFactor
)

type BlendOp uint8

const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
)

type ColorWriteMask uint8

const (
	ColorWriteRed ColorWriteMask = 1 << iota
	ColorWriteGreen
	ColorWriteBlue
	ColorWriteAlpha
	ColorWriteAll = ColorWriteRed | ColorWriteGreen | ColorWriteBlue | ColorWriteAlpha
)

// BlendDesc describes blending for render target 0.
type BlendDesc struct {
	Label     string
	Enable    bool
	SrcColor  BlendFactor
	DstColor  BlendFactor
	ColorOp   BlendOp
	SrcAlpha  BlendFactor
	DstAlpha  BlendFactor
	AlphaOp   BlendOp
	WriteMask ColorWriteMask
}

type TextureFormat uint8

const (
	TextureRGBA8Unorm TextureFormat = iota
	TextureRGBA8UnormSrgb
)

type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format TextureFormat
}

type VertexFormat uint8

const (
	VertexFloat32x2 VertexFormat = iota
	VertexFloat32x3
	VertexFloat32x4
)

type VertexAttribute struct {
	Format   VertexFormat
	Offset   uint64
	Location uint32
}

type InputLayoutDesc struct {
	Label      string
	Stride     uint64
	Attributes []VertexAttribute
}

type Resource interface {
	ID() uuid.UUID
	Label() string
	// Release frees the native object. Releasing twice is a no-op.
	Release()
}

type Buffer interface {
	Resource
	Size() uint64
}

type Sampler interface {
	Resource
	Desc() SamplerDesc
}

type BlendState interface {
	Resource
	Desc() BlendDesc
}

type Texture interface {
	Resource
	Width() uint32
	Height() uint32
}

type ShaderModule interface {
	Resource
	Stage() Stage
}

type InputLayout interface {
	Resource
	Desc() InputLayoutDesc
}

// Provider creates device-owned resources. The caller owns every handle returned.
type Provider interface {
	CreateShaderModule(stage Stage, label string, source string) (ShaderModule, error)
	CreateInputLayout(desc InputLayoutDesc) (InputLayout, error)
	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	CreateBlendState(desc BlendDesc) (BlendState, error)
	CreateTexture(desc TextureDesc, pixels []byte) (Texture, error)
}

// Context mutates the pipeline state of one in-flight render pass.
// It is not safe for concurrent use.
type Context interface {
	Map(buf Buffer, mode MapMode) ([]byte, error)
	Unmap(buf Buffer) error

	SetShaders(vs, ps ShaderModule)
	SetInputLayout(layout InputLayout)
	SetUniformBuffer(stage Stage, slot uint32, buf Buffer)
	SetBlendState(state BlendState, factor [4]float64, sampleMask uint32)
	SetTexture(stage Stage, slot uint32, tex Texture)
	SetSampler(stage Stage, slot uint32, s Sampler)
	SetVertexBuffer(buf Buffer)
	SetIndexBuffer(buf Buffer)
	DrawIndexed(indexCount uint32) error
}

// Binding slots are packed into one bind group per stage.
const (
	UniformBindingBase = 0
	TextureBindingBase = 4
	SamplerBindingBase = 8
	MaxSlotsPerKind    = 4
)

// CheckSlot rejects slots that would spill into the next kind's bindings.
func CheckSlot(kind string, slot uint32) error {
	if slot >= MaxSlotsPerKind {
		return fmt.Errorf("%s slot %d (max %d): %w", kind, slot, MaxSlotsPerKind-1, ErrSlotRange)
	}
	return nil
}

func UniformBinding(slot uint32) uint32 { return UniformBindingBase + slot }
func TextureBinding(slot uint32) uint32 { return TextureBindingBase + slot }
func SamplerBinding(slot uint32) uint32 { return SamplerBindingBase + slot }

// BindGroupIndex maps a stage to its bind group.
func BindGroupIndex(s Stage) uint32 { return uint32(s) }
