// Package buffer implements linear device memory with a client side copy:
// the buffer object with its map/unmap protocol, and array buffers whose
// items are staged on the client and uploaded on demand.
package buffer

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/device"
)

func freeBuffer(dev device.Device, name uint32) error {
	return dev.FreeBuffer(name)
}

/**
 * @brief A device buffer: the device object, its size on device and on the
 * client, and the mapping state. Mapping is single level.
 */
type Object struct {
	device.Object

	bufferSize       uint64
	clientBufferSize uint64

	view   []byte
	access device.AccessMode
	mapped bool
}

// BufferSize is the size in bytes of the device buffer, 0 until created.
func (b *Object) BufferSize() uint64 {
	return b.bufferSize
}

// ClientBufferSize is the size in bytes of the client copy.
func (b *Object) ClientBufferSize() uint64 {
	return b.clientBufferSize
}

func (b *Object) IsMapped() bool {
	return b.mapped
}

// Map maps the whole device buffer. The returned view is valid until Unmap.
func (b *Object) Map(ctx device.Context, access device.AccessMode) ([]byte, error) {
	if err := b.CheckExists(ctx); err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}
	if b.mapped {
		return nil, fmt.Errorf("map %s %d: %w", b.Kind(), b.ObjectName(), core.ErrMapped)
	}
	if access < device.AccessRead || access > device.AccessReadWrite {
		return nil, fmt.Errorf("map with access %d: %w", access, core.ErrInvalidArgument)
	}
	view, err := ctx.Device().MapBuffer(b.ObjectName(), access)
	if err != nil {
		return nil, core.NewDeviceError("map "+b.Kind(), b.ObjectName(), b.bufferSize, err)
	}
	if uint64(len(view)) < b.bufferSize {
		_ = ctx.Device().UnmapBuffer(b.ObjectName())
		return nil, core.NewDeviceError("map "+b.Kind(), b.ObjectName(), b.bufferSize,
			fmt.Errorf("device returned %d bytes", len(view)))
	}
	b.view = view[:b.bufferSize]
	b.access = access
	b.mapped = true
	return b.view, nil
}

func (b *Object) Unmap(ctx device.Context) error {
	if !b.mapped {
		return fmt.Errorf("unmap %s %d: %w", b.Kind(), b.ObjectName(), core.ErrNotMapped)
	}
	if err := b.CheckExists(ctx); err != nil {
		return fmt.Errorf("unmap: %w", err)
	}
	if err := ctx.Device().UnmapBuffer(b.ObjectName()); err != nil {
		return core.NewDeviceError("unmap "+b.Kind(), b.ObjectName(), b.bufferSize, err)
	}
	b.clearMapping()
	return nil
}

func (b *Object) clearMapping() {
	b.view = nil
	b.access = 0
	b.mapped = false
}

// allocate makes the device buffer size bytes long. An existing device
// buffer keeps its name and gets new storage.
func (b *Object) allocate(ctx device.Context, size uint64) error {
	if size == 0 {
		return fmt.Errorf("allocate %s of 0 bytes: %w", b.Kind(), core.ErrInvalidArgument)
	}
	if b.mapped {
		return fmt.Errorf("resize %s %d: %w", b.Kind(), b.ObjectName(), core.ErrMapped)
	}
	if b.ObjectName() != 0 {
		if err := b.CheckExists(ctx); err != nil {
			return err
		}
		if err := ctx.Device().ResizeBuffer(b.ObjectName(), size); err != nil {
			return core.NewDeviceError("resize "+b.Kind(), b.ObjectName(), size, err)
		}
		b.bufferSize = size
		return nil
	}
	err := b.CreateName(ctx, func(dev device.Device) (uint32, error) {
		name, err := dev.AllocateBuffer(size)
		if err != nil {
			return 0, core.NewDeviceError("allocate "+b.Kind(), 0, size, err)
		}
		return name, nil
	})
	if err != nil {
		return err
	}
	b.bufferSize = size
	return nil
}

func (b *Object) upload(ctx device.Context, data []byte) error {
	if err := ctx.Device().UploadBuffer(b.ObjectName(), 0, data); err != nil {
		return core.NewDeviceError("upload "+b.Kind(), b.ObjectName(), uint64(len(data)), err)
	}
	return nil
}

// Delete frees the device buffer. A mapped buffer cannot be deleted.
func (b *Object) Delete(ctx device.Context) error {
	if b.mapped {
		return fmt.Errorf("delete %s %d: %w", b.Kind(), b.ObjectName(), core.ErrMapped)
	}
	if err := b.Object.Delete(ctx); err != nil {
		return err
	}
	b.bufferSize = 0
	return nil
}

// Dispose releases the device buffer, unmapping it first when its context
// is current.
func (b *Object) Dispose() error {
	if b.IsDisposed() {
		return nil
	}
	if b.mapped {
		if ctx, ok := b.Registry().Lookup(b.ObjectNamespace()); ok && ctx.IsCurrent() {
			if err := ctx.Device().UnmapBuffer(b.ObjectName()); err != nil {
				core.LogWarn("unmap %s %d on dispose: %s", b.Kind(), b.ObjectName(), err)
			}
		}
		b.clearMapping()
	}
	err := b.Object.Dispose()
	b.bufferSize = 0
	b.clientBufferSize = 0
	return err
}
