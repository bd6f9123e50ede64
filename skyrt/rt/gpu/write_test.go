package gpu_test

import (
	"testing"

	"github.com/gekko3d/clouds/skyrt/rt/gpu"
	"github.com/gekko3d/clouds/skyrt/rt/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUniform(t *testing.T, rec *gputest.Recorder, size uint64) *gputest.Buffer {
	t.Helper()
	buf, err := rec.CreateBuffer(gpu.BufferDesc{
		Label:     "uniform",
		Size:      size,
		Usage:     gpu.UsageDynamic,
		Bind:      gpu.BindUniform,
		CPUAccess: gpu.CPUAccessWrite,
	})
	require.NoError(t, err)
	return buf.(*gputest.Buffer)
}

func TestWriteDiscard_FillsWholeBufferAndUnmaps(t *testing.T) {
	rec := gputest.NewRecorder()
	buf := newUniform(t, rec, 8)

	err := gpu.WriteDiscard(rec, buf, func(dst []byte) {
		assert.Len(t, dst, 8)
		for i := range dst {
			dst[i] = byte(i)
		}
	})
	require.NoError(t, err)

	assert.False(t, rec.Mapped(buf))
	require.Len(t, buf.Writes, 1)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, buf.Writes[0])

	methods := []string{}
	for _, c := range rec.Calls {
		methods = append(methods, c.Method)
	}
	assert.Equal(t, []string{"Map", "Unmap"}, methods)
}

func TestWriteDiscard_UnmapsOnPanic(t *testing.T) {
	rec := gputest.NewRecorder()
	buf := newUniform(t, rec, 4)

	assert.Panics(t, func() {
		_ = gpu.WriteDiscard(rec, buf, func(dst []byte) {
			panic("fill failed")
		})
	})
	assert.False(t, rec.Mapped(buf))

	// the buffer is usable again
	require.NoError(t, gpu.WriteDiscard(rec, buf, func(dst []byte) { copy(dst, []byte{9, 9, 9, 9}) }))
	assert.Equal(t, []byte{9, 9, 9, 9}, buf.Writes[len(buf.Writes)-1])
}

func TestWriteDiscard_MapFailure(t *testing.T) {
	rec := gputest.NewRecorder()
	buf := newUniform(t, rec, 4)
	rec.FailOn(gputest.OpMap, 1)

	called := false
	err := gpu.WriteDiscard(rec, buf, func(dst []byte) { called = true })
	require.ErrorIs(t, err, gputest.ErrInjected)
	assert.False(t, called)
	assert.Empty(t, rec.CallsTo("Unmap"))
}

func TestWriteDiscard_UnmapFailure(t *testing.T) {
	rec := gputest.NewRecorder()
	buf := newUniform(t, rec, 4)
	rec.FailOn(gputest.OpUnmap, 1)

	err := gpu.WriteDiscard(rec, buf, func(dst []byte) {})
	require.ErrorIs(t, err, gputest.ErrInjected)
	assert.Contains(t, err.Error(), "unmap uniform")
	assert.False(t, rec.Mapped(buf))
}

func TestWriteDiscard_ReleasedBuffer(t *testing.T) {
	rec := gputest.NewRecorder()
	buf := newUniform(t, rec, 4)
	buf.Release()

	err := gpu.WriteDiscard(rec, buf, func(dst []byte) {})
	assert.ErrorIs(t, err, gpu.ErrReleased)

	err = gpu.WriteDiscard(rec, nil, func(dst []byte) {})
	assert.ErrorIs(t, err, gpu.ErrReleased)
}

func TestBindingSlots(t *testing.T) {
	assert.Equal(t, uint32(0), gpu.UniformBinding(0))
	assert.Equal(t, uint32(4), gpu.TextureBinding(0))
	assert.Equal(t, uint32(9), gpu.SamplerBinding(1))
	assert.Equal(t, uint32(0), gpu.BindGroupIndex(gpu.StageVertex))
	assert.Equal(t, uint32(1), gpu.BindGroupIndex(gpu.StagePixel))
	assert.Equal(t, "pixel", gpu.StagePixel.String())
}

func TestCheckSlot(t *testing.T) {
	assert.NoError(t, gpu.CheckSlot("uniform", gpu.MaxSlotsPerKind-1))
	assert.ErrorIs(t, gpu.CheckSlot("uniform", gpu.MaxSlotsPerKind), gpu.ErrSlotRange)

	// slot 4 would alias texture binding 0
	assert.Equal(t, gpu.TextureBinding(0), gpu.UniformBinding(gpu.MaxSlotsPerKind))
}

func TestRecorder_OutOfRangeSlotFailsDraw(t *testing.T) {
	rec := gputest.NewRecorder()
	rec.SetTexture(gpu.StagePixel, 5, nil)

	err := rec.DrawIndexed(3)
	require.ErrorIs(t, err, gpu.ErrSlotRange)

	rec.Reset()
	assert.NoError(t, rec.DrawIndexed(3))
}
