package scene

import (
	"errors"
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

func triangleMesh(t *testing.T, reg *device.Registry, program vertexarray.Program) (*Mesh, *buffer.ArrayBuffer[math.Vec3]) {
	t.Helper()
	layout, err := buffer.FlatLayout(buffer.ItemType{Scalar: device.ScalarFloat32, Components: 3})
	require.NoError(t, err)
	positions, err := buffer.NewArrayBuffer[math.Vec3](reg, layout, config.ClientRetain)
	require.NoError(t, err)
	require.NoError(t, positions.SetItems([]math.Vec3{
		math.NewVec3(0, 0, 0), math.NewVec3(1, 0, 0), math.NewVec3(0, 1, 0),
	}))

	va, err := vertexarray.New(reg)
	require.NoError(t, err)
	require.NoError(t, va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition))
	mesh, err := NewMesh(va, program)
	require.NoError(t, err)
	return mesh, positions
}

func TestMeshTreeLifecycle(t *testing.T) {
	reg, ctx := currentContext(t)
	rootMesh, rootPositions := triangleMesh(t, reg, nil)
	childMesh, childPositions := triangleMesh(t, reg, nil)
	leafMesh, leafPositions := triangleMesh(t, reg, nil)

	root, child, leaf := NewNode("root", rootMesh), NewNode("child", childMesh), NewNode("leaf", leafMesh)
	require.NoError(t, root.AddChild(child))
	require.NoError(t, child.AddChild(leaf))

	require.NoError(t, root.Create(ctx))
	for _, n := range []*Node{root, child, leaf} {
		assert.True(t, n.Exists(ctx), n.Name())
	}
	assert.Equal(t, 3, ctx.Headless().LiveBuffers())

	require.NoError(t, root.Draw(ctx))
	assert.Len(t, ctx.Headless().Draws(), 3)

	require.NoError(t, root.Dispose())
	for _, n := range []*Node{root, child, leaf} {
		assert.False(t, n.Exists(ctx), n.Name())
	}
	for _, b := range []*buffer.ArrayBuffer[math.Vec3]{rootPositions, childPositions, leafPositions} {
		assert.True(t, b.IsDisposed())
	}
	assert.Equal(t, 0, ctx.Headless().LiveBuffers())
	assert.Equal(t, 0, reg.Arena().Len())
}

func TestMeshSetsMatrixUniforms(t *testing.T) {
	reg, ctx := currentContext(t)
	program := headless.NewProgram(nil)
	mesh, _ := triangleMesh(t, reg, nil)

	root := NewNode("root", nil)
	root.SetProgram(program)
	root.SetLocalModel(math.NewMat4Translation(math.NewVec3(0, 0, -5)))
	root.SetLocalProjection(math.NewMat4Perspective(1, 1.5, 0.1, 100))
	child := NewNode("mesh", mesh)
	child.SetLocalModel(math.NewMat4Scale(math.NewVec3(3, 3, 3)))
	require.NoError(t, root.AddChild(child))

	require.NoError(t, root.Create(ctx))
	require.NoError(t, root.Draw(ctx))

	model, ok := program.Uniform(ModelUniform)
	require.True(t, ok)
	want := math.NewMat4Scale(math.NewVec3(3, 3, 3)).Mul(math.NewMat4Translation(math.NewVec3(0, 0, -5)))
	assert.Equal(t, want, model)
	projection, ok := program.Uniform(ProjectionUniform)
	require.True(t, ok)
	assert.Equal(t, math.NewMat4Perspective(1, 1.5, 0.1, 100), projection)
}

func TestMeshInstances(t *testing.T) {
	reg, ctx := currentContext(t)
	mesh, _ := triangleMesh(t, reg, nil)
	mesh.SetInstances(3)
	node := NewNode("instanced", mesh)
	require.NoError(t, node.Create(ctx))
	require.NoError(t, node.Draw(ctx))
	assert.Equal(t, uint32(3), ctx.Headless().Draws()[0].InstanceCount)
}

func TestMeshHoldsTheVertexArray(t *testing.T) {
	reg, _ := currentContext(t)
	mesh, positions := triangleMesh(t, reg, nil)
	va := mesh.VertexArray()
	assert.Equal(t, uint32(1), va.RefCount())

	_, err := NewMesh(nil, nil)
	assert.ErrorIs(t, err, core.ErrNullArgument)

	require.NoError(t, mesh.Dispose())
	assert.True(t, va.IsDisposed())
	assert.True(t, positions.IsDisposed())
	require.NoError(t, mesh.Dispose())
	assert.ErrorIs(t, mesh.Draw(nil, State{}), core.ErrInvalidState)
}

func TestRendererFrame(t *testing.T) {
	reg, ctx := currentContext(t)
	mesh, _ := triangleMesh(t, reg, nil)
	root := NewNode("root", mesh)
	hidden, _ := triangleMesh(t, reg, nil)
	hiddenNode := NewNode("hidden", hidden)
	hiddenNode.SetHidden(true)
	require.NoError(t, root.AddChild(hiddenNode))

	r := NewRenderer(reg, config.Default().Scene)
	require.NoError(t, r.Create(ctx, root))

	// a buffer disposed while another context was current
	orphan, _ := triangleMesh(t, reg, nil)
	require.NoError(t, orphan.Create(ctx))
	other := headless.NewContext(ctx.Headless())
	require.NoError(t, other.MakeCurrent(true))
	require.NoError(t, orphan.Dispose())
	assert.Equal(t, 1, reg.Pending(ctx.Namespace()))

	require.NoError(t, ctx.MakeCurrent(true))
	require.NoError(t, r.Frame(ctx, root))
	assert.Equal(t, 0, reg.Pending(ctx.Namespace()))
	assert.Equal(t, uint64(1), r.Metrics().LastFrameDraws())
	assert.Equal(t, uint64(1), r.Metrics().Frames())

	require.NoError(t, other.MakeCurrent(true))
	assert.ErrorIs(t, r.Frame(ctx, root), core.ErrContextMismatch)
}

func TestCreateRollbackFreesMeshBuffers(t *testing.T) {
	reg, ctx := currentContext(t)
	mesh, positions := triangleMesh(t, reg, nil)
	root, a := NewNode("root", nil), NewNode("a", mesh)
	b, bRec := newRecorder(&journal{}, "b")
	bRec.failCreate = errors.New("shader compile failed")
	require.NoError(t, root.AddChild(a))
	require.NoError(t, root.AddChild(b))

	require.Error(t, root.Create(ctx))
	assert.False(t, a.Exists(ctx))
	assert.False(t, mesh.VertexArray().Exists(ctx))
	assert.False(t, positions.Exists(ctx))
	assert.Equal(t, 0, ctx.Headless().LiveBuffers())

	bRec.failCreate = nil
	require.NoError(t, root.Create(ctx))
	assert.True(t, a.Exists(ctx))
	assert.Equal(t, 1, ctx.Headless().LiveBuffers())
}

func TestCreateRollbackKeepsSharedBuffers(t *testing.T) {
	reg, ctx := currentContext(t)
	keptMesh, positions := triangleMesh(t, reg, nil)
	kept := NewNode("kept", keptMesh)
	require.NoError(t, kept.Create(ctx))

	// a second mesh reading the same positions
	va, err := vertexarray.New(reg)
	require.NoError(t, err)
	require.NoError(t, va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition))
	sharing, err := NewMesh(va, nil)
	require.NoError(t, err)

	root := NewNode("root", nil)
	b, bRec := newRecorder(&journal{}, "b")
	bRec.failCreate = errors.New("boom")
	require.NoError(t, root.AddChild(kept))
	require.NoError(t, root.AddChild(NewNode("sharing", sharing)))
	require.NoError(t, root.AddChild(b))

	require.Error(t, root.Create(ctx))
	assert.False(t, va.Exists(ctx))
	assert.True(t, kept.Exists(ctx))
	assert.True(t, positions.Exists(ctx))
	assert.Equal(t, 1, ctx.Headless().LiveBuffers())
}
