package vertexarray_test

import (
	"testing"

	"github.com/spaghettifunk/anima/engine/config"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/math"
	"github.com/spaghettifunk/anima/engine/renderer/buffer"
	"github.com/spaghettifunk/anima/engine/renderer/device"
	"github.com/spaghettifunk/anima/engine/renderer/headless"
	"github.com/spaghettifunk/anima/engine/renderer/vertexarray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*device.Registry, *headless.Context) {
	t.Helper()
	reg := device.NewRegistry(4)
	ctx := headless.NewContext(headless.NewDevice(0))
	require.NoError(t, reg.MakeCurrent(ctx))
	return reg, ctx
}

func vec3s(t *testing.T, reg *device.Registry, items ...math.Vec3) *buffer.ArrayBuffer[math.Vec3] {
	t.Helper()
	layout, err := buffer.FlatLayout(buffer.ItemType{Scalar: device.ScalarFloat32, Components: 3})
	require.NoError(t, err)
	b, err := buffer.NewArrayBuffer[math.Vec3](reg, layout, config.ClientRetain)
	require.NoError(t, err)
	if len(items) > 0 {
		require.NoError(t, b.SetItems(items))
	}
	return b
}

func strip() []math.Vec3 {
	return []math.Vec3{
		math.NewVec3(0, 0, 0),
		math.NewVec3(1, 0, 0),
		math.NewVec3(0, 1, 0),
		math.NewVec3(1, 1, 0),
	}
}

func newVertexArray(t *testing.T, reg *device.Registry) *vertexarray.VertexArray {
	t.Helper()
	va, err := vertexarray.New(reg)
	require.NoError(t, err)
	return va
}

func TestTriangleStripEndToEnd(t *testing.T) {
	reg, ctx := setup(t)
	positions := vec3s(t, reg)
	require.NoError(t, positions.CreateWithCount(ctx, 4))

	va := newVertexArray(t, reg)
	require.NoError(t, va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition))
	require.NoError(t, va.SetElementArray(device.TopologyTriangleStrip))

	require.NoError(t, va.Create(ctx))
	require.NoError(t, va.Draw(ctx, nil))
	assert.Equal(t, uint32(4), va.ArrayLength())

	draws := ctx.Headless().Draws()
	require.Len(t, draws, 1)
	call := draws[0]
	assert.Equal(t, device.TopologyTriangleStrip, call.Topology)
	assert.Equal(t, uint32(4), call.Count)
	assert.Nil(t, call.Index)
	require.Len(t, call.Bindings, 1)
	assert.Equal(t, device.VertexBinding{
		Location:   0,
		Buffer:     positions.ObjectName(),
		Stride:     12,
		Type:       device.ScalarFloat32,
		Components: 3,
	}, call.Bindings[0])
}

func TestDisposeReleasesEveryBoundArray(t *testing.T) {
	reg, ctx := setup(t)
	a, b, c := vec3s(t, reg, strip()...), vec3s(t, reg, strip()...), vec3s(t, reg, strip()...)

	va := newVertexArray(t, reg)
	require.NoError(t, va.SetSemanticArray(a, 0, vertexarray.SemanticPosition))
	require.NoError(t, va.SetSemanticArray(b, 0, vertexarray.SemanticNormal))
	require.NoError(t, va.SetArray(c, "tint", ""))
	require.NoError(t, va.Create(ctx))
	assert.Equal(t, 3, ctx.Headless().LiveBuffers())

	require.NoError(t, va.Dispose())
	assert.True(t, va.IsDisposed())
	assert.True(t, a.IsDisposed())
	assert.True(t, b.IsDisposed())
	assert.True(t, c.IsDisposed())
	assert.Equal(t, 0, ctx.Headless().LiveBuffers())
	assert.Equal(t, 0, reg.Arena().Len())
}

func TestBindingTheSameArrayTwiceTakesTwoReferences(t *testing.T) {
	reg, ctx := setup(t)
	shared := vec3s(t, reg, strip()...)

	va := newVertexArray(t, reg)
	require.NoError(t, va.SetSemanticArray(shared, 0, vertexarray.SemanticPosition))
	require.NoError(t, va.SetSemanticArray(shared, 0, vertexarray.SemanticNormal))
	assert.Equal(t, uint32(2), shared.RefCount())

	// a second holder keeps the buffer alive past the vertex array
	require.NoError(t, shared.IncRef())
	require.NoError(t, va.Create(ctx))
	require.NoError(t, va.Dispose())
	assert.False(t, shared.IsDisposed())
	assert.Equal(t, uint32(1), shared.RefCount())

	require.NoError(t, shared.DecRef())
	assert.True(t, shared.IsDisposed())
}

func TestRebindingReleasesThePreviousArray(t *testing.T) {
	reg, _ := setup(t)
	first, second := vec3s(t, reg, strip()...), vec3s(t, reg, strip()...)

	va := newVertexArray(t, reg)
	require.NoError(t, va.SetArray(first, "position", ""))
	require.NoError(t, va.SetArray(first, "position", ""))
	assert.Equal(t, uint32(1), first.RefCount())

	require.NoError(t, va.SetArray(second, "position", ""))
	assert.True(t, first.IsDisposed())
	assert.Equal(t, uint32(1), second.RefCount())
	assert.Same(t, second, va.GetVertexArray("position", "").Array)
}

func TestBindingValidation(t *testing.T) {
	reg, _ := setup(t)
	va := newVertexArray(t, reg)
	full := vec3s(t, reg, strip()...)
	empty := vec3s(t, reg)

	assert.ErrorIs(t, va.SetArray(full, "", "block"), core.ErrInvalidArgument)
	assert.ErrorIs(t, va.SetSemanticArray(full, 0, vertexarray.SemanticNone), core.ErrInvalidArgument)
	assert.ErrorIs(t, va.SetArray(nil, "position", ""), core.ErrNullArgument)

	err := va.SetArray(empty, "position", "")
	assert.ErrorIs(t, err, core.ErrEmptyBuffer)
	assert.NotErrorIs(t, err, core.ErrSectionOutOfRange)

	err = va.SetArraySection(full, 1, "position", "")
	assert.ErrorIs(t, err, core.ErrSectionOutOfRange)
	assert.NotErrorIs(t, err, core.ErrEmptyBuffer)

	assert.ErrorIs(t, va.SetInstancedArray(full, 0, 0, "offset", ""), core.ErrInvalidArgument)
	assert.Equal(t, uint32(0), full.RefCount(), "rejected bindings take no reference")
	assert.Nil(t, va.GetVertexArray("position", ""))
	assert.Nil(t, va.GetSemanticArray(vertexarray.SemanticPosition))
}

func TestInterleavedSections(t *testing.T) {
	reg, ctx := setup(t)
	vertices, err := buffer.NewArrayBuffer[math.Vertex3D](reg, buffer.Vertex3DLayout(), config.ClientRetain)
	require.NoError(t, err)
	require.NoError(t, vertices.SetItems(make([]math.Vertex3D, 3)))

	va := newVertexArray(t, reg)
	require.NoError(t, va.SetSemanticArray(vertices, 0, vertexarray.SemanticPosition))
	require.NoError(t, va.SetSemanticArray(vertices, 3, vertexarray.SemanticColor))
	require.NoError(t, va.SetSemanticArray(vertices, 2, vertexarray.SemanticTexCoord))
	assert.ErrorIs(t, va.SetSemanticArray(vertices, 4, vertexarray.SemanticTangent), core.ErrSectionOutOfRange)

	require.NoError(t, va.Create(ctx))
	require.NoError(t, va.Draw(ctx, nil))

	call := ctx.Headless().Draws()[0]
	require.Len(t, call.Bindings, 3)
	color := call.Bindings[1]
	assert.Equal(t, uint32(2), color.Location)
	assert.Equal(t, uint64(32), color.Offset)
	assert.Equal(t, uint32(48), color.Stride)
	assert.Equal(t, uint32(4), color.Components)
	assert.Equal(t, uint32(3), call.Count)
}

func TestPackedArrayLength(t *testing.T) {
	reg, _ := setup(t)
	type record struct{ A, B [2]float32 }
	f32x2 := buffer.ItemType{Scalar: device.ScalarFloat32, Components: 2}
	layout, err := buffer.PackedLayout(16,
		buffer.Section{Type: f32x2, Offset: 0, Stride: 8},
		buffer.Section{Type: f32x2, Offset: 8, Stride: 16},
	)
	require.NoError(t, err)
	packed, err := buffer.NewArrayBuffer[record](reg, layout, config.ClientRetain)
	require.NoError(t, err)
	require.NoError(t, packed.SetCount(4))

	// 64 bytes read as 8 byte values from offset 0
	va := newVertexArray(t, reg)
	require.NoError(t, va.SetSemanticArray(packed, 0, vertexarray.SemanticPosition))
	assert.Equal(t, uint32(8), va.ArrayLength())

	// 64 bytes read every 16 bytes from offset 8
	other := newVertexArray(t, reg)
	require.NoError(t, other.SetSemanticArray(packed, 1, vertexarray.SemanticPosition))
	assert.Equal(t, uint32(4), other.ArrayLength())
}

func TestIndexedAndRangedDraws(t *testing.T) {
	reg, ctx := setup(t)
	positions := vec3s(t, reg, strip()...)
	indices, err := buffer.NewElementBuffer[uint16](reg, config.ClientRetain)
	require.NoError(t, err)
	require.NoError(t, indices.SetItems([]uint16{0, 1, 2, 2, 1, 3}))

	va := newVertexArray(t, reg)
	require.NoError(t, va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition))
	require.NoError(t, va.SetElementBuffer(device.TopologyTriangles, indices))
	assert.Equal(t, uint32(1), indices.RefCount())
	require.NoError(t, va.Create(ctx))
	require.NoError(t, va.Draw(ctx, nil))

	call := ctx.Headless().Draws()[0]
	require.NotNil(t, call.Index)
	assert.Equal(t, indices.ObjectName(), call.Index.Buffer)
	assert.Equal(t, device.ScalarUint16, call.Index.Type)
	assert.Equal(t, uint32(6), call.Count)

	require.NoError(t, va.SetElementRange(device.TopologyTriangles, indices, 3, 3))
	assert.Equal(t, uint32(1), indices.RefCount())
	require.NoError(t, va.Draw(ctx, nil))
	call = ctx.Headless().Draws()[1]
	assert.Equal(t, uint32(3), call.First)
	assert.Equal(t, uint32(3), call.Count)

	require.NoError(t, va.SetElementRange(device.TopologyTriangles, indices, 4, 3))
	assert.ErrorIs(t, va.Draw(ctx, nil), core.ErrIndexOutOfRange)

	require.NoError(t, va.SetElementRange(device.TopologyLineStrip, nil, 1, 3))
	assert.True(t, indices.IsDisposed(), "dropping the element buffer releases it")
	require.NoError(t, va.Draw(ctx, nil))
	call = ctx.Headless().Draws()[2]
	assert.Nil(t, call.Index)
	assert.Equal(t, uint32(1), call.First)

	assert.ErrorIs(t, va.SetElementRange(device.TopologyLines, nil, 0, 0), core.ErrInvalidArgument)
	assert.ErrorIs(t, va.SetElementBuffer(device.TopologyLines, positions), core.ErrInvalidArgument)
}

func TestNamedBindingsResolveThroughTheProgram(t *testing.T) {
	reg, ctx := setup(t)
	positions := vec3s(t, reg, strip()...)
	offsets := vec3s(t, reg, math.NewVec3(0, 0, 0), math.NewVec3(2, 0, 0))

	va := newVertexArray(t, reg)
	require.NoError(t, va.SetArray(positions, "a_position", ""))
	require.NoError(t, va.SetInstancedArray(offsets, 0, 1, "offset", "instance"))
	require.NoError(t, va.SetElementArray(device.TopologyTriangleStrip))
	require.NoError(t, va.Create(ctx))

	program := headless.NewProgram(map[string]uint32{"a_position": 3, "instance.offset": 7})
	require.NoError(t, va.DrawInstanced(ctx, program, 2))
	call := ctx.Headless().Draws()[0]
	assert.Equal(t, uint32(2), call.InstanceCount)
	require.Len(t, call.Bindings, 2)
	assert.Equal(t, uint32(3), call.Bindings[0].Location)
	assert.Equal(t, uint32(7), call.Bindings[1].Location)
	assert.Equal(t, uint32(1), call.Bindings[1].Divisor)
	assert.Equal(t, uint32(4), call.Count)

	assert.ErrorIs(t, va.DrawInstanced(ctx, program, 0), core.ErrInvalidArgument)

	// without a program there is nothing to bind named attributes to
	assert.ErrorIs(t, va.Draw(ctx, nil), core.ErrInvalidState)
}

func TestDrawUploadsPendingArrays(t *testing.T) {
	reg, ctx := setup(t)
	positions := vec3s(t, reg, strip()...)
	va := newVertexArray(t, reg)
	require.NoError(t, va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition))
	require.NoError(t, va.Create(ctx))
	assert.False(t, positions.Pending())

	require.NoError(t, positions.SetItems(append(strip(), math.NewVec3(2, 2, 0))))
	require.NoError(t, va.Draw(ctx, nil))
	assert.False(t, positions.Pending())
	assert.Equal(t, uint32(5), ctx.Headless().Draws()[0].Count)
}

func TestLifecycleErrors(t *testing.T) {
	reg, ctx := setup(t)
	va := newVertexArray(t, reg)
	assert.ErrorIs(t, va.Create(ctx), core.ErrInvalidState)
	assert.ErrorIs(t, va.Create(nil), core.ErrNullArgument)

	positions := vec3s(t, reg, strip()...)
	require.NoError(t, va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition))
	assert.ErrorIs(t, va.Draw(ctx, nil), core.ErrNotCreated)
	assert.False(t, va.Exists(ctx))

	require.NoError(t, va.Create(ctx))
	assert.True(t, va.Exists(ctx))

	other := headless.NewContext(ctx.Headless())
	require.NoError(t, reg.MakeCurrent(other))
	assert.False(t, va.Exists(other))
	assert.ErrorIs(t, va.Draw(other, nil), core.ErrContextMismatch)
	assert.ErrorIs(t, va.Delete(other), core.ErrContextMismatch)

	require.NoError(t, reg.MakeCurrent(ctx))
	require.NoError(t, va.Delete(ctx))
	assert.False(t, va.Exists(ctx))
	assert.True(t, positions.Exists(ctx), "buffers are shared and outlive the vertex array state")
	require.NoError(t, va.Delete(ctx))

	require.NoError(t, va.Dispose())
	assert.ErrorIs(t, va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition), core.ErrInvalidState)
}

func TestVertexArrayRefCount(t *testing.T) {
	reg, _ := setup(t)
	positions := vec3s(t, reg, strip()...)
	va := newVertexArray(t, reg)
	require.NoError(t, va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition))

	require.NoError(t, va.IncRef())
	require.NoError(t, va.IncRef())
	require.NoError(t, va.DecRef())
	assert.False(t, va.IsDisposed())
	require.NoError(t, va.DecRef())
	assert.True(t, va.IsDisposed())
	assert.True(t, positions.IsDisposed())
}

func TestSemantics(t *testing.T) {
	loc, ok := vertexarray.SemanticLocation(vertexarray.SemanticPosition)
	assert.True(t, ok)
	assert.Equal(t, uint32(0), loc)
	loc, ok = vertexarray.SemanticLocation(vertexarray.SemanticTangent)
	assert.True(t, ok)
	assert.Equal(t, uint32(4), loc)
	_, ok = vertexarray.SemanticLocation(vertexarray.SemanticNone)
	assert.False(t, ok)

	assert.Equal(t, "normal", vertexarray.SemanticNormal.String())
	assert.Equal(t, "instance.offset", vertexarray.Key{Attribute: "offset", Block: "instance"}.String())
}

func TestFailedCreateDeletesTheBuffersItCreated(t *testing.T) {
	reg := device.NewRegistry(4)
	// room for the shared buffer and one more
	ctx := headless.NewContext(headless.NewDevice(2))
	require.NoError(t, reg.MakeCurrent(ctx))

	shared := vec3s(t, reg, strip()...)
	require.NoError(t, shared.Create(ctx))
	positions := vec3s(t, reg, strip()...)
	colors := vec3s(t, reg, strip()...)

	va := newVertexArray(t, reg)
	require.NoError(t, va.SetSemanticArray(shared, 0, vertexarray.SemanticNormal))
	require.NoError(t, va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition))
	require.NoError(t, va.SetSemanticArray(colors, 0, vertexarray.SemanticColor))

	require.Error(t, va.Create(ctx))
	assert.False(t, va.Exists(ctx))
	assert.False(t, positions.Exists(ctx))
	assert.False(t, colors.Exists(ctx))
	assert.True(t, shared.Exists(ctx), "buffers created before the call are kept")
	assert.Equal(t, 1, ctx.Headless().LiveBuffers())
}

func TestCreationUndo(t *testing.T) {
	reg, ctx := setup(t)
	shared := vec3s(t, reg, strip()...)
	require.NoError(t, shared.Create(ctx))
	positions := vec3s(t, reg, strip()...)

	va := newVertexArray(t, reg)
	require.NoError(t, va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition))
	require.NoError(t, va.SetSemanticArray(shared, 0, vertexarray.SemanticNormal))

	creation, err := va.CreateRecorded(ctx)
	require.NoError(t, err)
	require.Len(t, creation.Arrays(), 1)
	assert.Same(t, positions, creation.Arrays()[0])
	assert.Equal(t, 2, ctx.Headless().LiveBuffers())

	// a second call on a created vertex array creates nothing
	again, err := va.CreateRecorded(ctx)
	require.NoError(t, err)
	require.NoError(t, again.Undo(ctx))
	assert.True(t, va.Exists(ctx))

	require.NoError(t, creation.Undo(ctx))
	assert.False(t, va.Exists(ctx))
	assert.False(t, positions.Exists(ctx))
	assert.True(t, shared.Exists(ctx))
	assert.Equal(t, 1, ctx.Headless().LiveBuffers())
	require.NoError(t, creation.Undo(ctx))
}
