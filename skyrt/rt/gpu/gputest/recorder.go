// Package gputest provides an in-memory gpu.Provider and gpu.Context that
// record every call, for testing code that drives the GPU abstraction.
package gputest

import (
	"errors"
	"fmt"

	"github.com/gekko3d/clouds/skyrt/rt/gpu"
	"github.com/google/uuid"
)

var ErrInjected = errors.New("gputest: injected failure")

// Op names a Provider or Context call that can be made to fail.
type Op string

const (
	OpShaderModule Op = "shader"
	OpInputLayout  Op = "input_layout"
	OpBuffer       Op = "buffer"
	OpSampler      Op = "sampler"
	OpBlendState   Op = "blend_state"
	OpTexture      Op = "texture"
	OpMap          Op = "map"
	OpUnmap        Op = "unmap"
	OpDraw         Op = "draw"
)

type Handle struct {
	id       uuid.UUID
	label    string
	kind     Op
	releases int
	rec      *Recorder
}

func (h *Handle) ID() uuid.UUID  { return h.id }
func (h *Handle) Label() string  { return h.label }
func (h *Handle) Kind() Op       { return h.kind }
func (h *Handle) Released() bool { return h.releases > 0 }

// Release counts every call; only the first is a real release.
func (h *Handle) Release() {
	h.releases++
	if h.releases == 1 {
		h.rec.live--
		h.rec.Released = append(h.rec.Released, h)
	} else {
		h.rec.DoubleReleases = append(h.rec.DoubleReleases, h.label)
	}
}

type Buffer struct {
	*Handle
	Desc   gpu.BufferDesc
	Data   []byte
	mapped bool
	// Writes holds the payload of every completed discard write.
	Writes [][]byte
}

func (b *Buffer) Size() uint64 { return b.Desc.Size }

type Sampler struct {
	*Handle
	desc gpu.SamplerDesc
}

func (s *Sampler) Desc() gpu.SamplerDesc { return s.desc }

type BlendState struct {
	*Handle
	desc gpu.BlendDesc
}

func (b *BlendState) Desc() gpu.BlendDesc { return b.desc }

type Texture struct {
	*Handle
	desc   gpu.TextureDesc
	Pixels []byte
}

func (t *Texture) Width() uint32  { return t.desc.Width }
func (t *Texture) Height() uint32 { return t.desc.Height }

type ShaderModule struct {
	*Handle
	stage  gpu.Stage
	Source string
}

func (m *ShaderModule) Stage() gpu.Stage { return m.stage }

type InputLayout struct {
	*Handle
	desc gpu.InputLayoutDesc
}

func (l *InputLayout) Desc() gpu.InputLayoutDesc { return l.desc }

// Call is one recorded Context binding call.
type Call struct {
	Method     string
	Stage      gpu.Stage
	Slot       uint32
	Resource   gpu.Resource
	Factor     [4]float64
	SampleMask uint32
	Count      uint32
}

// Recorder implements gpu.Provider and gpu.Context.
type Recorder struct {
	Created []gpu.Resource
	// Released lists handles in the order they were first released.
	Released       []*Handle
	DoubleReleases []string
	Calls          []Call

	fail    map[Op]int
	live    int
	bindErr error
}

var (
	_ gpu.Provider = (*Recorder)(nil)
	_ gpu.Context  = (*Recorder)(nil)
)

func NewRecorder() *Recorder {
	return &Recorder{fail: make(map[Op]int)}
}

// FailOn makes the n-th (1-based) upcoming call of op return ErrInjected.
func (r *Recorder) FailOn(op Op, n int) {
	r.fail[op] = n
}

// Live is the number of created resources not yet released.
func (r *Recorder) Live() int { return r.live }

// CallsTo returns the recorded calls of one Context method, in order.
func (r *Recorder) CallsTo(method string) []Call {
	var out []Call
	for _, c := range r.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded Context calls and binding errors, keeping resources.
func (r *Recorder) Reset() {
	r.Calls = nil
	r.bindErr = nil
}

func (r *Recorder) check(op Op) error {
	n, ok := r.fail[op]
	if !ok {
		return nil
	}
	n--
	if n <= 0 {
		delete(r.fail, op)
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	r.fail[op] = n
	return nil
}

func (r *Recorder) newHandle(kind Op, label string) *Handle {
	r.live++
	return &Handle{id: uuid.New(), label: label, kind: kind, rec: r}
}

func (r *Recorder) CreateShaderModule(stage gpu.Stage, label string, source string) (gpu.ShaderModule, error) {
	if err := r.check(OpShaderModule); err != nil {
		return nil, err
	}
	m := &ShaderModule{Handle: r.newHandle(OpShaderModule, label), stage: stage, Source: source}
	r.Created = append(r.Created, m)
	return m, nil
}

func (r *Recorder) CreateInputLayout(desc gpu.InputLayoutDesc) (gpu.InputLayout, error) {
	if err := r.check(OpInputLayout); err != nil {
		return nil, err
	}
	l := &InputLayout{Handle: r.newHandle(OpInputLayout, desc.Label), desc: desc}
	r.Created = append(r.Created, l)
	return l, nil
}

func (r *Recorder) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if err := r.check(OpBuffer); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		desc.Size = uint64(len(desc.Contents))
	}
	b := &Buffer{Handle: r.newHandle(OpBuffer, desc.Label), Desc: desc, Data: make([]byte, desc.Size)}
	copy(b.Data, desc.Contents)
	r.Created = append(r.Created, b)
	return b, nil
}

func (r *Recorder) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	if err := r.check(OpSampler); err != nil {
		return nil, err
	}
	s := &Sampler{Handle: r.newHandle(OpSampler, desc.Label), desc: desc}
	r.Created = append(r.Created, s)
	return s, nil
}

func (r *Recorder) CreateBlendState(desc gpu.BlendDesc) (gpu.BlendState, error) {
	if err := r.check(OpBlendState); err != nil {
		return nil, err
	}
	b := &BlendState{Handle: r.newHandle(OpBlendState, desc.Label), desc: desc}
	r.Created = append(r.Created, b)
	return b, nil
}

func (r *Recorder) CreateTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, error) {
	if err := r.check(OpTexture); err != nil {
		return nil, err
	}
	t := &Texture{Handle: r.newHandle(OpTexture, desc.Label), desc: desc, Pixels: pixels}
	r.Created = append(r.Created, t)
	return t, nil
}

// Map fills the buffer with 0xCD so that stale bytes show up in assertions.
func (r *Recorder) Map(buf gpu.Buffer, mode gpu.MapMode) ([]byte, error) {
	b, ok := buf.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("map %T: %w", buf, gpu.ErrUnsupported)
	}
	if b.Released() {
		return nil, fmt.Errorf("map %s: %w", b.label, gpu.ErrReleased)
	}
	if b.mapped {
		return nil, fmt.Errorf("map %s: %w", b.label, gpu.ErrMapped)
	}
	if err := r.check(OpMap); err != nil {
		return nil, err
	}
	b.mapped = true
	for i := range b.Data {
		b.Data[i] = 0xCD
	}
	r.Calls = append(r.Calls, Call{Method: "Map", Resource: b})
	return b.Data, nil
}

func (r *Recorder) Unmap(buf gpu.Buffer) error {
	b, ok := buf.(*Buffer)
	if !ok {
		return fmt.Errorf("unmap %T: %w", buf, gpu.ErrUnsupported)
	}
	if !b.mapped {
		return fmt.Errorf("unmap %s: %w", b.label, gpu.ErrNotMapped)
	}
	b.mapped = false
	r.Calls = append(r.Calls, Call{Method: "Unmap", Resource: b})
	if err := r.check(OpUnmap); err != nil {
		return err
	}
	b.Writes = append(b.Writes, append([]byte(nil), b.Data...))
	return nil
}

// Mapped reports whether buf is currently mapped.
func (r *Recorder) Mapped(buf gpu.Buffer) bool {
	b, ok := buf.(*Buffer)
	return ok && b.mapped
}

func (r *Recorder) SetShaders(vs, ps gpu.ShaderModule) {
	r.Calls = append(r.Calls, Call{Method: "SetShaders", Stage: gpu.StageVertex, Resource: vs})
	r.Calls = append(r.Calls, Call{Method: "SetShaders", Stage: gpu.StagePixel, Resource: ps})
}

func (r *Recorder) SetInputLayout(layout gpu.InputLayout) {
	r.Calls = append(r.Calls, Call{Method: "SetInputLayout", Resource: layout})
}

func (r *Recorder) SetUniformBuffer(stage gpu.Stage, slot uint32, buf gpu.Buffer) {
	r.checkSlot("uniform", slot)
	r.Calls = append(r.Calls, Call{Method: "SetUniformBuffer", Stage: stage, Slot: slot, Resource: buf})
}

func (r *Recorder) SetBlendState(state gpu.BlendState, factor [4]float64, sampleMask uint32) {
	r.Calls = append(r.Calls, Call{Method: "SetBlendState", Resource: state, Factor: factor, SampleMask: sampleMask})
}

func (r *Recorder) SetTexture(stage gpu.Stage, slot uint32, tex gpu.Texture) {
	r.checkSlot("texture", slot)
	r.Calls = append(r.Calls, Call{Method: "SetTexture", Stage: stage, Slot: slot, Resource: tex})
}

func (r *Recorder) SetSampler(stage gpu.Stage, slot uint32, s gpu.Sampler) {
	r.checkSlot("sampler", slot)
	r.Calls = append(r.Calls, Call{Method: "SetSampler", Stage: stage, Slot: slot, Resource: s})
}

func (r *Recorder) SetVertexBuffer(buf gpu.Buffer) {
	r.Calls = append(r.Calls, Call{Method: "SetVertexBuffer", Resource: buf})
}

func (r *Recorder) SetIndexBuffer(buf gpu.Buffer) {
	r.Calls = append(r.Calls, Call{Method: "SetIndexBuffer", Resource: buf})
}

func (r *Recorder) checkSlot(kind string, slot uint32) {
	if err := gpu.CheckSlot(kind, slot); err != nil && r.bindErr == nil {
		r.bindErr = err
	}
}

// DrawIndexed fails like the wgpu backend when an earlier binding was out of range.
func (r *Recorder) DrawIndexed(indexCount uint32) error {
	if r.bindErr != nil {
		return fmt.Errorf("draw: %w", r.bindErr)
	}
	if err := r.check(OpDraw); err != nil {
		return err
	}
	r.Calls = append(r.Calls, Call{Method: "DrawIndexed", Count: indexCount})
	return nil
}
