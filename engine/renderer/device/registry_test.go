package device_test

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/device"
	"github.com/spaghettifunk/anima/engine/renderer/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// block is the smallest resource kind: a fixed size device buffer.
type block struct {
	device.Object
	disposals int
}

func newBlock(t *testing.T, reg *device.Registry) *block {
	t.Helper()
	b := &block{}
	require.NoError(t, b.Init(reg, b, "block", func(dev device.Device, name uint32) error {
		return dev.FreeBuffer(name)
	}))
	return b
}

func (b *block) Create(ctx device.Context) error {
	return b.CreateName(ctx, func(dev device.Device) (uint32, error) {
		return dev.AllocateBuffer(64)
	})
}

func (b *block) Dispose() error {
	b.disposals++
	return b.Object.Dispose()
}

var _ device.Resource = (*block)(nil)

func current(t *testing.T, reg *device.Registry, dev *headless.Device) *headless.Context {
	t.Helper()
	ctx := headless.NewContext(dev)
	require.NoError(t, reg.MakeCurrent(ctx))
	return ctx
}

func TestCreateExistsDelete(t *testing.T) {
	reg := device.NewRegistry(2)
	ctx := current(t, reg, headless.NewDevice(0))
	b := newBlock(t, reg)

	assert.False(t, b.Exists(ctx))
	assert.True(t, b.ObjectNamespace().IsZero())

	require.NoError(t, b.Create(ctx))
	name := b.ObjectName()
	assert.NotZero(t, name)
	assert.Equal(t, ctx.Namespace(), b.ObjectNamespace())
	assert.True(t, b.Exists(ctx))

	require.NoError(t, b.Create(ctx), "create is idempotent in the same namespace")
	assert.Equal(t, name, b.ObjectName())
	assert.Equal(t, 1, ctx.Headless().LiveBuffers())

	require.NoError(t, b.Delete(ctx))
	assert.Zero(t, b.ObjectName())
	assert.True(t, b.ObjectNamespace().IsZero())
	assert.False(t, b.Exists(ctx))
	require.NoError(t, b.Delete(ctx), "deleting a missing object is a no-op")
	assert.Equal(t, 0, ctx.Headless().LiveBuffers())
}

func TestSharedContextsShareObjects(t *testing.T) {
	reg := device.NewRegistry(2)
	ctx := current(t, reg, headless.NewDevice(0))
	shared := headless.NewSharedContext(ctx)
	b := newBlock(t, reg)
	require.NoError(t, b.Create(ctx))

	assert.True(t, b.Exists(shared))
	require.NoError(t, reg.MakeCurrent(shared))
	require.NoError(t, b.Delete(shared))
}

func TestCreateInAnotherNamespaceFails(t *testing.T) {
	reg := device.NewRegistry(2)
	dev := headless.NewDevice(0)
	first := current(t, reg, dev)
	b := newBlock(t, reg)
	require.NoError(t, b.Create(first))

	second := current(t, reg, dev)
	assert.False(t, b.Exists(second))
	assert.ErrorIs(t, b.Create(second), core.ErrContextMismatch)
	assert.ErrorIs(t, b.Delete(second), core.ErrContextMismatch)
}

func TestOperationsNeedACurrentContext(t *testing.T) {
	reg := device.NewRegistry(2)
	ctx := current(t, reg, headless.NewDevice(0))
	b := newBlock(t, reg)

	assert.ErrorIs(t, b.Create(nil), core.ErrNullArgument)
	require.NoError(t, ctx.MakeCurrent(false))
	assert.ErrorIs(t, b.Create(ctx), core.ErrContextMismatch)
	assert.ErrorIs(t, device.CheckCurrent(ctx), core.ErrContextMismatch)
	assert.ErrorIs(t, device.CheckCurrent(nil), core.ErrNullArgument)
}

func TestDeviceFailuresCarryContext(t *testing.T) {
	reg := device.NewRegistry(2)
	ctx := current(t, reg, headless.NewDevice(1))
	first := newBlock(t, reg)
	require.NoError(t, first.Create(ctx))

	second := newBlock(t, reg)
	err := second.Create(ctx)
	require.Error(t, err, "the device holds a single object")
	assert.Zero(t, second.ObjectName())

	ctx.Headless().FailNext(headless.OpFree, errors.New("lost"))
	err = first.Delete(ctx)
	assert.ErrorIs(t, err, core.ErrDeviceFailure)
	var derr *core.DeviceError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, first.ObjectName(), derr.Object)
	assert.Equal(t, "delete block", derr.Op)
}

func TestDisposeDeletesWhenContextIsCurrent(t *testing.T) {
	reg := device.NewRegistry(2)
	ctx := current(t, reg, headless.NewDevice(0))
	b := newBlock(t, reg)
	require.NoError(t, b.Create(ctx))

	require.NoError(t, b.Dispose())
	assert.True(t, b.IsDisposed())
	assert.Equal(t, 0, ctx.Headless().LiveBuffers())
	assert.Equal(t, 0, reg.Pending(ctx.Namespace()))
	assert.Equal(t, 0, reg.Arena().Len())

	require.NoError(t, b.Dispose())
	assert.ErrorIs(t, b.Create(ctx), core.ErrInvalidState)
}

func TestDisposeFromAnotherContextIsDeferred(t *testing.T) {
	reg := device.NewRegistry(1)
	dev := headless.NewDevice(0)
	owner := current(t, reg, dev)

	blocks := make([]*block, 3)
	for i := range blocks {
		blocks[i] = newBlock(t, reg)
		require.NoError(t, blocks[i].Create(owner))
	}

	other := current(t, reg, dev)
	for _, b := range blocks {
		require.NoError(t, b.Dispose())
	}
	assert.Equal(t, 3, dev.LiveBuffers(), "nothing is freed while the owner is not current")
	assert.Equal(t, 3, reg.Pending(owner.Namespace()))

	_, err := reg.ReleaseGarbage(owner)
	assert.ErrorIs(t, err, core.ErrContextMismatch)

	released, err := reg.ReleaseGarbage(other)
	require.NoError(t, err)
	assert.Zero(t, released, "garbage belongs to its own namespace")

	require.NoError(t, owner.MakeCurrent(true))
	released, err = reg.ReleaseGarbage(owner)
	require.NoError(t, err)
	assert.Equal(t, 3, released)
	assert.Equal(t, 0, dev.LiveBuffers())
	assert.Equal(t, 0, reg.Pending(owner.Namespace()))
}

func TestReleaseGarbageReportsEveryFailure(t *testing.T) {
	reg := device.NewRegistry(2)
	dev := headless.NewDevice(0)
	owner := current(t, reg, dev)
	a, b := newBlock(t, reg), newBlock(t, reg)
	require.NoError(t, a.Create(owner))
	require.NoError(t, b.Create(owner))

	current(t, reg, dev)
	require.NoError(t, a.Dispose())
	require.NoError(t, b.Dispose())

	dev.FailNext(headless.OpFree, errors.New("busy"))
	require.NoError(t, owner.MakeCurrent(true))
	released, err := reg.ReleaseGarbage(owner)
	assert.ErrorIs(t, err, core.ErrDeviceFailure)
	assert.Equal(t, 1, released, "a failure does not stop the drain")
	assert.Equal(t, 0, reg.Pending(owner.Namespace()))
}

func TestRefCountedDisposal(t *testing.T) {
	reg := device.NewRegistry(2)
	ctx := current(t, reg, headless.NewDevice(0))
	b := newBlock(t, reg)
	require.NoError(t, b.Create(ctx))

	require.NoError(t, b.IncRef())
	require.NoError(t, b.IncRef())
	assert.Equal(t, uint32(2), b.RefCount())

	require.NoError(t, b.DecRef())
	assert.Equal(t, 0, b.disposals)
	require.NoError(t, b.DecRef())
	assert.Equal(t, 1, b.disposals)
	assert.Equal(t, 0, ctx.Headless().LiveBuffers())

	assert.ErrorIs(t, b.IncRef(), core.ErrStaleHandle)
	assert.ErrorIs(t, b.DecRef(), core.ErrStaleHandle)
	assert.Equal(t, 1, b.disposals)
}

func TestRegistryContexts(t *testing.T) {
	reg := device.NewRegistry(0)
	ctx := headless.NewContext(headless.NewDevice(0))

	assert.ErrorIs(t, reg.Register(nil), core.ErrNullArgument)
	assert.ErrorIs(t, reg.MakeCurrent(nil), core.ErrNullArgument)

	_, ok := reg.Lookup(ctx.Namespace())
	assert.False(t, ok)
	require.NoError(t, reg.MakeCurrent(ctx))
	found, ok := reg.Lookup(ctx.Namespace())
	require.True(t, ok)
	assert.Same(t, ctx, found)
	assert.True(t, ctx.IsCurrent())

	reg.Unregister(ctx)
	_, ok = reg.Lookup(ctx.Namespace())
	assert.False(t, ok)
}

func TestNamespaces(t *testing.T) {
	var zero device.Namespace
	assert.True(t, zero.IsZero())
	assert.Equal(t, "<none>", zero.String())

	a, b := device.NewNamespace(), device.NewNamespace()
	assert.False(t, a.IsZero())
	assert.NotEqual(t, a, b)
}
