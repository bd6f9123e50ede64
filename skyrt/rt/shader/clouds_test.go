package shader_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gekko3d/clouds"
	"github.com/gekko3d/clouds/skyrt/rt/core"
	"github.com/gekko3d/clouds/skyrt/rt/gpu"
	"github.com/gekko3d/clouds/skyrt/rt/gpu/gputest"
	"github.com/gekko3d/clouds/skyrt/rt/shader"
	"github.com/gekko3d/clouds/skyrt/rt/shaders"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTexture(t *testing.T, rec *gputest.Recorder) gpu.Texture {
	t.Helper()
	tex, err := rec.CreateTexture(gpu.TextureDesc{Label: "clouds", Width: 2, Height: 2, Format: gpu.TextureRGBA8Unorm}, make([]byte, 16))
	require.NoError(t, err)
	return tex
}

func newShader(t *testing.T) (*gputest.Recorder, *shader.CloudsShader) {
	t.Helper()
	rec := gputest.NewRecorder()
	s, err := shader.NewCloudsShader(rec, nil, "", "")
	require.NoError(t, err)
	return rec, s
}

func lastWrite(t *testing.T, buf gpu.Buffer) []byte {
	t.Helper()
	b, ok := buf.(*gputest.Buffer)
	require.True(t, ok)
	require.NotEmpty(t, b.Writes)
	return b.Writes[len(b.Writes)-1]
}

func TestNewCloudsShader_CreatesResources(t *testing.T) {
	rec, s := newShader(t)

	require.NotNil(t, s.MatrixBuffer())
	require.NotNil(t, s.ScrollBuffer())
	require.NotNil(t, s.Sampler())
	require.NotNil(t, s.BlendState())
	require.NotNil(t, s.VertexShader())
	require.NotNil(t, s.PixelShader())
	require.NotNil(t, s.InputLayout())

	assert.Equal(t, uint64(core.MatrixBufferSize), s.MatrixBuffer().Size())
	assert.Equal(t, uint64(core.ScrollDataSize), s.ScrollBuffer().Size())

	mb := s.MatrixBuffer().(*gputest.Buffer)
	assert.Equal(t, gpu.UsageDynamic, mb.Desc.Usage)
	assert.Equal(t, gpu.BindUniform, mb.Desc.Bind)
	assert.Equal(t, gpu.CPUAccessWrite, mb.Desc.CPUAccess)

	sd := s.Sampler().Desc()
	assert.Equal(t, gpu.FilterAnisotropic, sd.Filter)
	assert.Equal(t, gpu.AddressWrap, sd.AddressU)
	assert.Equal(t, gpu.AddressWrap, sd.AddressV)
	assert.Equal(t, gpu.AddressWrap, sd.AddressW)
	assert.Equal(t, uint16(1), sd.MaxAnisotropy)
	assert.Equal(t, gpu.CompareAlways, sd.Compare)
	assert.Equal(t, float32(0), sd.MinLOD)
	assert.Equal(t, float32(gpu.MaxLOD), sd.MaxLOD)

	bd := s.BlendState().Desc()
	assert.True(t, bd.Enable)
	assert.Equal(t, gpu.BlendSrcAlpha, bd.SrcColor)
	assert.Equal(t, gpu.BlendInvSrcAlpha, bd.DstColor)
	assert.Equal(t, gpu.BlendOpAdd, bd.ColorOp)
	assert.Equal(t, gpu.BlendOne, bd.SrcAlpha)
	assert.Equal(t, gpu.BlendZero, bd.DstAlpha)
	assert.Equal(t, gpu.BlendOpAdd, bd.AlphaOp)
	assert.Equal(t, gpu.ColorWriteAll, bd.WriteMask)

	layout := s.InputLayout().Desc()
	assert.Equal(t, uint64(core.SkyVertexStride), layout.Stride)
	require.Len(t, layout.Attributes, 2)

	vs := s.VertexShader().(*gputest.ShaderModule)
	assert.Equal(t, shaders.CloudsVertexWGSL, vs.Source)
	assert.Equal(t, gpu.StagePixel, s.PixelShader().Stage())

	// vs, layout, ps, blend, matrix, sampler, scroll
	assert.Equal(t, 7, rec.Live())
	assert.Empty(t, rec.Calls)
}

func TestSetShaderParameters_TransposesMatrices(t *testing.T) {
	rec, s := newShader(t)
	tex := newTexture(t, rec)

	world := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.HomogRotate3DZ(0.5))
	view := mgl32.LookAtV(mgl32.Vec3{0, -5, 2}, mgl32.Vec3{}, mgl32.Vec3{0, 0, 1})
	proj := mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 100)

	require.NoError(t, s.SetShaderParameters(rec, world, view, proj, tex, 0.1, 1))

	w := lastWrite(t, s.MatrixBuffer())
	require.Len(t, w, core.MatrixBufferSize)
	assert.Equal(t, world.Transpose(), core.DecodeMat4(w[0:64]))
	assert.Equal(t, view.Transpose(), core.DecodeMat4(w[64:128]))
	assert.Equal(t, proj.Transpose(), core.DecodeMat4(w[128:192]))
}

func TestSetShaderParameters_ScrollPayload(t *testing.T) {
	cases := []struct {
		name        string
		speed, time float32
	}{
		{"typical", 2, 5},
		{"zero", 0, 0},
		{"negative", -0.25, -3},
		{"large time", 0.01, 86400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, s := newShader(t)
			tex := newTexture(t, rec)

			require.NoError(t, s.SetShaderParameters(rec, mgl32.Ident4(), mgl32.Ident4(), mgl32.Ident4(), tex, tc.speed, tc.time))

			w := lastWrite(t, s.ScrollBuffer())
			assert.Equal(t, mgl32.Vec4{tc.speed, tc.time, 0, 0}, core.DecodeVec4(w))
		})
	}
}

func TestSetShaderParameters_BindingOrder(t *testing.T) {
	rec, s := newShader(t)
	tex := newTexture(t, rec)

	require.NoError(t, s.SetShaderParameters(rec, mgl32.Ident4(), mgl32.Ident4(), mgl32.Ident4(), tex, 1, 2))

	methods := make([]string, 0, len(rec.Calls))
	for _, c := range rec.Calls {
		methods = append(methods, c.Method)
	}
	assert.Equal(t, []string{
		"Map", "Unmap", "SetUniformBuffer",
		"Map", "Unmap", "SetUniformBuffer",
		"SetBlendState", "SetTexture", "SetSampler",
	}, methods)

	uniforms := rec.CallsTo("SetUniformBuffer")
	require.Len(t, uniforms, 2)
	assert.Equal(t, gpu.StageVertex, uniforms[0].Stage)
	assert.Equal(t, uint32(0), uniforms[0].Slot)
	assert.Equal(t, s.MatrixBuffer(), uniforms[0].Resource)
	assert.Equal(t, gpu.StagePixel, uniforms[1].Stage)
	assert.Equal(t, uint32(0), uniforms[1].Slot)
	assert.Equal(t, s.ScrollBuffer(), uniforms[1].Resource)

	blend := rec.CallsTo("SetBlendState")[0]
	assert.Equal(t, s.BlendState(), blend.Resource)
	assert.Equal(t, [4]float64{1, 1, 1, 1}, blend.Factor)
	assert.Equal(t, uint32(0xFFFFFFFF), blend.SampleMask)

	texCall := rec.CallsTo("SetTexture")[0]
	assert.Equal(t, gpu.StagePixel, texCall.Stage)
	assert.Equal(t, uint32(0), texCall.Slot)
	assert.Equal(t, tex, texCall.Resource)

	samp := rec.CallsTo("SetSampler")[0]
	assert.Equal(t, gpu.StagePixel, samp.Stage)
	assert.Equal(t, uint32(0), samp.Slot)
	assert.Equal(t, s.Sampler(), samp.Resource)

	assert.False(t, rec.Mapped(s.MatrixBuffer()))
	assert.False(t, rec.Mapped(s.ScrollBuffer()))
}

func TestSetShaderParameters_EveryCallWrites(t *testing.T) {
	rec, s := newShader(t)
	tex := newTexture(t, rec)

	const frames = 5
	for i := 0; i < frames; i++ {
		require.NoError(t, s.SetShaderParameters(rec, mgl32.Ident4(), mgl32.Ident4(), mgl32.Ident4(), tex, 0.5, float32(i)))
	}

	mb := s.MatrixBuffer().(*gputest.Buffer)
	sb := s.ScrollBuffer().(*gputest.Buffer)
	assert.Len(t, mb.Writes, frames)
	assert.Len(t, sb.Writes, frames)
	assert.Equal(t, mgl32.Vec4{0.5, frames - 1, 0, 0}, core.DecodeVec4(lastWrite(t, sb)))
}

func TestSetShaderParameters_MapFailure(t *testing.T) {
	for _, n := range []int{1, 2} {
		rec, s := newShader(t)
		tex := newTexture(t, rec)
		rec.FailOn(gputest.OpMap, n)

		err := s.SetShaderParameters(rec, mgl32.Ident4(), mgl32.Ident4(), mgl32.Ident4(), tex, 1, 1)
		require.ErrorIs(t, err, shader.ErrFrameWrite)
		require.ErrorIs(t, err, gputest.ErrInjected)
		assert.Empty(t, rec.CallsTo("SetBlendState"))
		assert.False(t, rec.Mapped(s.MatrixBuffer()))
		assert.False(t, rec.Mapped(s.ScrollBuffer()))
	}
}

func TestSetShaderParameters_UnmapFailure(t *testing.T) {
	rec, s := newShader(t)
	tex := newTexture(t, rec)
	rec.FailOn(gputest.OpUnmap, 1)

	err := s.SetShaderParameters(rec, mgl32.Ident4(), mgl32.Ident4(), mgl32.Ident4(), tex, 1, 1)
	require.ErrorIs(t, err, shader.ErrFrameWrite)
	assert.Empty(t, rec.CallsTo("SetUniformBuffer"))
}

func TestSetShaderParameters_NilTexture(t *testing.T) {
	rec, s := newShader(t)

	err := s.SetShaderParameters(rec, mgl32.Ident4(), mgl32.Ident4(), mgl32.Ident4(), nil, 1, 1)
	require.ErrorIs(t, err, shader.ErrNilTexture)
	assert.Empty(t, rec.Calls)
}

func TestCloudsShader_Render(t *testing.T) {
	rec, s := newShader(t)

	require.NoError(t, s.Render(rec, 36))

	shadersSet := rec.CallsTo("SetShaders")
	require.Len(t, shadersSet, 2)
	assert.Equal(t, s.VertexShader(), shadersSet[0].Resource)
	assert.Equal(t, s.PixelShader(), shadersSet[1].Resource)
	assert.Equal(t, s.InputLayout(), rec.CallsTo("SetInputLayout")[0].Resource)
	assert.Equal(t, uint32(36), rec.CallsTo("DrawIndexed")[0].Count)
}

func TestCloudsShader_ReleaseIsIdempotent(t *testing.T) {
	rec, s := newShader(t)
	sampler, matrix, layout, scroll, blend := s.Sampler(), s.MatrixBuffer(), s.InputLayout(), s.ScrollBuffer(), s.BlendState()

	s.Release()
	s.Release()

	assert.Equal(t, 0, rec.Live())
	assert.Empty(t, rec.DoubleReleases)
	require.Len(t, rec.Released, 7)
	order := make([]uuid.UUID, 0, 5)
	for _, h := range rec.Released[:5] {
		order = append(order, h.ID())
	}
	assert.Equal(t, []uuid.UUID{sampler.ID(), matrix.ID(), layout.ID(), scroll.ID(), blend.ID()}, order)

	assert.Nil(t, s.MatrixBuffer())
	assert.Nil(t, s.ScrollBuffer())
	assert.Nil(t, s.Sampler())
	assert.Nil(t, s.BlendState())
}

func TestCloudsShader_UseAfterRelease(t *testing.T) {
	rec, s := newShader(t)
	tex := newTexture(t, rec)
	s.Release()

	err := s.SetShaderParameters(rec, mgl32.Ident4(), mgl32.Ident4(), mgl32.Ident4(), tex, 1, 1)
	assert.ErrorIs(t, err, shader.ErrReleased)
	assert.ErrorIs(t, s.Render(rec, 6), shader.ErrReleased)
	assert.Empty(t, rec.Calls)
}

func TestCloudsShader_ZeroValue(t *testing.T) {
	rec := gputest.NewRecorder()
	tex := newTexture(t, rec)

	var s shader.CloudsShader
	assert.NotPanics(t, func() {
		s.Release()
		s.Release()
	})

	var fresh shader.CloudsShader
	err := fresh.SetShaderParameters(rec, mgl32.Ident4(), mgl32.Ident4(), mgl32.Ident4(), tex, 1, 1)
	assert.ErrorIs(t, err, shader.ErrReleased)
	assert.ErrorIs(t, fresh.Render(rec, 6), shader.ErrReleased)
	assert.Empty(t, rec.Calls)
}

func TestNewCloudsShader_PartialFailureCleansUp(t *testing.T) {
	cases := []struct {
		name string
		op   gputest.Op
		n    int
		want error
	}{
		{"vertex shader", gputest.OpShaderModule, 1, shader.ErrShaderLoad},
		{"input layout", gputest.OpInputLayout, 1, shader.ErrShaderLoad},
		{"pixel shader", gputest.OpShaderModule, 2, shader.ErrShaderLoad},
		{"blend state", gputest.OpBlendState, 1, shader.ErrResourceCreate},
		{"matrix buffer", gputest.OpBuffer, 1, shader.ErrResourceCreate},
		{"sampler", gputest.OpSampler, 1, shader.ErrResourceCreate},
		{"scroll buffer", gputest.OpBuffer, 2, shader.ErrResourceCreate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := gputest.NewRecorder()
			rec.FailOn(tc.op, tc.n)

			s, err := shader.NewCloudsShader(rec, nil, "", "")
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, gputest.ErrInjected)
			assert.Equal(t, 0, rec.Live())
			assert.Empty(t, rec.DoubleReleases)
		})
	}
}

func TestNewCloudsShader_LoadsFromPath(t *testing.T) {
	dir := t.TempDir()
	vsPath := filepath.Join(dir, "clouds.vs.wgsl")
	psPath := filepath.Join(dir, "clouds.ps.wgsl")
	require.NoError(t, os.WriteFile(vsPath, []byte("// vs\n"+shaders.CloudsVertexWGSL), 0o644))
	require.NoError(t, os.WriteFile(psPath, []byte("// ps\n"+shaders.CloudsPixelWGSL), 0o644))

	rec := gputest.NewRecorder()
	s, err := shader.NewCloudsShader(rec, nil, vsPath, psPath)
	require.NoError(t, err)
	defer s.Release()

	vs := s.VertexShader().(*gputest.ShaderModule)
	ps := s.PixelShader().(*gputest.ShaderModule)
	assert.Equal(t, "clouds.vs.wgsl", vs.Label())
	assert.Contains(t, vs.Source, "// vs")
	assert.Equal(t, "clouds.ps.wgsl", ps.Label())
	assert.Contains(t, ps.Source, "// ps")
}

func TestNewCloudsShader_MissingFile(t *testing.T) {
	rec := gputest.NewRecorder()
	missing := filepath.Join(t.TempDir(), "nope.wgsl")

	_, err := shader.NewCloudsShader(rec, nil, "", missing)
	require.ErrorIs(t, err, shader.ErrShaderLoad)
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 0, rec.Live())
}

func TestNewCloudsShader_LogsResources(t *testing.T) {
	var out bytes.Buffer
	logger := clouds.NewWriterLogger("sky", true, &out, &out)

	rec := gputest.NewRecorder()
	s, err := shader.NewCloudsShader(rec, logger, "", "")
	require.NoError(t, err)
	defer s.Release()

	assert.Contains(t, out.String(), "loaded vertex shader embedded vertex")
	assert.Contains(t, out.String(), "clouds shader ready")
	assert.Contains(t, out.String(), s.MatrixBuffer().ID().String())
}

func TestBaseShader_ReloadReleasesPrevious(t *testing.T) {
	rec := gputest.NewRecorder()
	base := shader.NewBaseShader(rec, nil, shader.Sources{
		Vertex: shaders.CloudsVertexWGSL,
		Pixel:  shaders.CloudsPixelWGSL,
	})
	require.NoError(t, base.LoadVertexShader(""))
	require.NoError(t, base.LoadPixelShader(""))
	first := base.VertexShader()

	require.NoError(t, base.LoadVertexShader(""))
	assert.True(t, first.(*gputest.ShaderModule).Released())
	assert.Equal(t, 3, rec.Live())

	base.Release()
	base.Release()
	assert.Equal(t, 0, rec.Live())
	assert.Empty(t, rec.DoubleReleases)
}

func TestBaseShader_NoDefaultSource(t *testing.T) {
	base := shader.NewBaseShader(gputest.NewRecorder(), nil, shader.Sources{})
	assert.ErrorIs(t, base.LoadPixelShader(""), shader.ErrShaderLoad)
}
