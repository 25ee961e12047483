package buffer

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/anima/engine/config"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/device"
)

// Array is the type independent view of an array buffer used by vertex
// arrays and the scene.
type Array interface {
	device.Resource

	ObjectName() uint32
	Layout() Layout
	ItemSize() uint32
	ItemCount() uint32
	ClientItemCount() uint32
	BufferSize() uint64
	Pending() bool

	IncRef() error
	DecRef() error
	RefCount() uint32
	IsDisposed() bool
}

/**
 * @brief A buffer of items of type T with a client copy and a device copy.
 *
 * The two copies are staged independently: client edits are never uploaded
 * until Create(ctx) (or one of the combined calls) runs.
 */
type ArrayBuffer[T any] struct {
	Object

	layout Layout
	policy config.ClientPolicy

	client  []T
	pending bool
	/** @brief Device item count, 0 until the device buffer exists. */
	itemCount uint32
	/** @brief Device item count last known, kept across Delete for re-creation. */
	knownCount uint32

	logger *log.Logger
}

// NewArrayBuffer builds an empty array buffer owned by the arena of reg.
// The size of T must match the item size of layout.
func NewArrayBuffer[T any](reg *device.Registry, layout Layout, policy config.ClientPolicy) (*ArrayBuffer[T], error) {
	if layout.ItemSize() == 0 {
		return nil, fmt.Errorf("array buffer without layout: %w", core.ErrInvalidArgument)
	}
	if size := uint32(sizeOf[T]()); size != layout.ItemSize() {
		return nil, fmt.Errorf("array buffer item of %d bytes for a %s layout of %d bytes: %w",
			size, layout.Kind(), layout.ItemSize(), core.ErrInvalidArgument)
	}
	switch policy {
	case "":
		policy = config.ClientRetain
	case config.ClientRetain, config.ClientDiscard:
	default:
		return nil, fmt.Errorf("client policy %q: %w", policy, core.ErrInvalidArgument)
	}

	b := &ArrayBuffer[T]{
		layout: layout,
		policy: policy,
		logger: core.LogWith("kind", "array buffer", "layout", layout.Kind().String()),
	}
	if err := b.Init(reg, b, "array buffer", freeBuffer); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *ArrayBuffer[T]) Layout() Layout {
	return b.layout
}

func (b *ArrayBuffer[T]) Policy() config.ClientPolicy {
	return b.policy
}

func (b *ArrayBuffer[T]) ItemSize() uint32 {
	return b.layout.ItemSize()
}

// ItemCount is the number of items on the device.
func (b *ArrayBuffer[T]) ItemCount() uint32 {
	return b.itemCount
}

// ClientItemCount is the number of items in the client copy.
func (b *ArrayBuffer[T]) ClientItemCount() uint32 {
	return uint32(len(b.client))
}

// Pending reports client items that have not been uploaded yet.
func (b *ArrayBuffer[T]) Pending() bool {
	return b.pending
}

func (b *ArrayBuffer[T]) SectionCount() int {
	return b.layout.SectionCount()
}

func (b *ArrayBuffer[T]) SectionType(index int) (ItemType, error) {
	s, err := b.layout.Section(index)
	return s.Type, err
}

func (b *ArrayBuffer[T]) SectionOffset(index int) (uint32, error) {
	s, err := b.layout.Section(index)
	return s.Offset, err
}

func (b *ArrayBuffer[T]) SectionStride(index int) (uint32, error) {
	s, err := b.layout.Section(index)
	return s.Stride, err
}

func (b *ArrayBuffer[T]) checkUsable(op string) error {
	if b.IsDisposed() {
		return fmt.Errorf("%s on disposed %s: %w", op, b.Kind(), core.ErrInvalidState)
	}
	return nil
}

func (b *ArrayBuffer[T]) setClient(items []T) {
	b.client = items
	b.clientBufferSize = uint64(len(items)) * uint64(b.ItemSize())
	b.pending = true
}

// SetCount resizes the client copy to count items. Existing items are kept,
// new ones are zero. The device copy is untouched.
func (b *ArrayBuffer[T]) SetCount(count uint32) error {
	if err := b.checkUsable("set count"); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("set count of %s to 0: %w", b.Kind(), core.ErrInvalidArgument)
	}
	items := make([]T, count)
	copy(items, b.client)
	b.setClient(items)
	return nil
}

// SetItems replaces the client copy with a copy of items. The device copy
// is untouched.
func (b *ArrayBuffer[T]) SetItems(items []T) error {
	if err := b.checkUsable("set items"); err != nil {
		return err
	}
	if items == nil {
		return fmt.Errorf("set items of %s: %w", b.Kind(), core.ErrNullArgument)
	}
	if len(items) == 0 {
		return fmt.Errorf("set items of %s with no items: %w", b.Kind(), core.ErrInvalidArgument)
	}
	b.setClient(slices.Clone(items))
	return nil
}

// Create brings the device copy up to date. Pending client items are
// uploaded, resizing the device buffer in place. Without pending items a
// missing device buffer is re-created at its last known size, from the
// retained client copy when it still matches and with undefined contents
// otherwise. An existing up to date device buffer is left alone.
func (b *ArrayBuffer[T]) Create(ctx device.Context) error {
	if err := device.CheckCurrent(ctx); err != nil {
		return err
	}
	if err := b.checkUsable("create"); err != nil {
		return err
	}

	if b.pending {
		return b.uploadClient(ctx)
	}
	if b.Exists(ctx) {
		return nil
	}
	if b.ObjectName() != 0 {
		return fmt.Errorf("create %s %d: exists in namespace %s: %w",
			b.Kind(), b.ObjectName(), b.ObjectNamespace(), core.ErrContextMismatch)
	}
	if b.knownCount == 0 {
		return fmt.Errorf("create %s without items: %w", b.Kind(), core.ErrInvalidArgument)
	}
	if uint32(len(b.client)) == b.knownCount {
		return b.uploadClient(ctx)
	}
	size := uint64(b.knownCount) * uint64(b.ItemSize())
	if err := b.allocate(ctx, size); err != nil {
		return err
	}
	b.itemCount = b.knownCount
	return nil
}

func (b *ArrayBuffer[T]) uploadClient(ctx device.Context) error {
	count := uint32(len(b.client))
	size := uint64(count) * uint64(b.ItemSize())
	if err := b.allocate(ctx, size); err != nil {
		return err
	}
	if err := b.upload(ctx, asBytes(b.client)); err != nil {
		// the storage was already replaced, leave the buffer not created
		if derr := b.Delete(ctx); derr != nil {
			b.logger.Error("delete after failed upload", "object", b.ObjectName(), "err", derr)
		}
		b.itemCount = 0
		return err
	}
	b.itemCount = count
	b.knownCount = count
	b.pending = false
	b.logger.Debug("uploaded", "object", b.ObjectName(), "items", count, "size", size)

	if b.policy == config.ClientDiscard {
		b.client = nil
		b.clientBufferSize = 0
	}
	return nil
}

// CreateWithCount sets the client copy to count zero items and creates the
// device copy from it.
func (b *ArrayBuffer[T]) CreateWithCount(ctx device.Context, count uint32) error {
	if err := device.CheckCurrent(ctx); err != nil {
		return err
	}
	if err := b.SetCount(count); err != nil {
		return err
	}
	return b.Create(ctx)
}

// CreateWithItems sets the client copy to items and uploads it.
func (b *ArrayBuffer[T]) CreateWithItems(ctx device.Context, items []T) error {
	if err := device.CheckCurrent(ctx); err != nil {
		return err
	}
	if err := b.SetItems(items); err != nil {
		return err
	}
	return b.Create(ctx)
}

// Delete frees the device buffer. The client copy is kept and the device
// item count is remembered for a later Create.
func (b *ArrayBuffer[T]) Delete(ctx device.Context) error {
	if err := b.Object.Delete(ctx); err != nil {
		return err
	}
	b.itemCount = 0
	return nil
}

// ToArray returns a copy of the client items.
func (b *ArrayBuffer[T]) ToArray() ([]T, error) {
	if b.client == nil {
		return nil, fmt.Errorf("%s has no client copy: %w", b.Kind(), core.ErrInvalidState)
	}
	return slices.Clone(b.client), nil
}

// Download maps the device buffer for reading and decodes its items.
func (b *ArrayBuffer[T]) Download(ctx device.Context) ([]T, error) {
	if err := device.CheckCurrent(ctx); err != nil {
		return nil, err
	}
	if !b.Exists(ctx) {
		return nil, fmt.Errorf("download %s: %w", b.Kind(), core.ErrNotCreated)
	}
	view, err := b.Map(ctx, device.AccessRead)
	if err != nil {
		return nil, err
	}
	items := make([]T, b.itemCount)
	copy(asBytes(items), view)
	if err := b.Unmap(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

// Get reads item index from the mapped device view when the buffer is
// mapped and from the client copy otherwise.
func (b *ArrayBuffer[T]) Get(ctx device.Context, index uint32) (T, error) {
	var item T
	if b.mapped {
		if err := b.CheckExists(ctx); err != nil {
			return item, err
		}
		if !b.access.CanRead() {
			return item, fmt.Errorf("read from write-only mapping of %s %d: %w", b.Kind(), b.ObjectName(), core.ErrInvalidState)
		}
		if index >= b.itemCount {
			return item, fmt.Errorf("get item %d of %d: %w", index, b.itemCount, core.ErrIndexOutOfRange)
		}
		size := b.ItemSize()
		return decodeOne[T](b.view[index*size : (index+1)*size]), nil
	}
	if index >= uint32(len(b.client)) {
		return item, fmt.Errorf("get client item %d of %d: %w", index, len(b.client), core.ErrIndexOutOfRange)
	}
	return b.client[index], nil
}

// Set writes item index of the mapped device view when the buffer is mapped
// and of the client copy otherwise. Client writes leave the buffer pending.
func (b *ArrayBuffer[T]) Set(value T, index uint32) error {
	if b.mapped {
		if !b.access.CanWrite() {
			return fmt.Errorf("write to read-only mapping of %s %d: %w", b.Kind(), b.ObjectName(), core.ErrInvalidState)
		}
		if index >= b.itemCount {
			return fmt.Errorf("set item %d of %d: %w", index, b.itemCount, core.ErrIndexOutOfRange)
		}
		size := b.ItemSize()
		copy(b.view[index*size:(index+1)*size], asBytes([]T{value}))
		return nil
	}
	if index >= uint32(len(b.client)) {
		return fmt.Errorf("set client item %d of %d: %w", index, len(b.client), core.ErrIndexOutOfRange)
	}
	b.client[index] = value
	b.pending = true
	return nil
}

// MapClient returns the client items for in place editing.
func (b *ArrayBuffer[T]) MapClient() ([]T, error) {
	if b.client == nil {
		return nil, fmt.Errorf("map client copy of %s: %w", b.Kind(), core.ErrInvalidState)
	}
	return b.client, nil
}

// UnmapClient ends a client edit and leaves the buffer pending. It is legal
// whenever a client copy exists.
func (b *ArrayBuffer[T]) UnmapClient() error {
	if b.client == nil {
		return fmt.Errorf("unmap client copy of %s: %w", b.Kind(), core.ErrInvalidState)
	}
	b.pending = true
	return nil
}

// Dispose releases the device buffer and the client copy.
func (b *ArrayBuffer[T]) Dispose() error {
	if b.IsDisposed() {
		return nil
	}
	err := b.Object.Dispose()
	b.client = nil
	b.pending = false
	b.itemCount = 0
	b.knownCount = 0
	return err
}

func asBytes[T any](items []T) []byte {
	if len(items) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(items[0]))
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(items))), len(items)*size)
}

func decodeOne[T any](data []byte) T {
	var item [1]T
	copy(asBytes(item[:]), data)
	return item[0]
}

func sizeOf[T any]() uintptr {
	var zero T
	return unsafe.Sizeof(zero)
}
