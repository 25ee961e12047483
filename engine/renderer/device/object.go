package device

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/resource"
)

// Object is the device facet shared by every resource kind: a device name,
// the namespace it was created in, and a slot in the registry arena that
// counts its holders. Resource kinds embed it and call Init from their
// constructor.
type Object struct {
	registry  *Registry
	handle    resource.Handle
	name      uint32
	namespace Namespace
	kind      string
	deleter   Deleter
	disposed  bool
}

// Init registers owner in the arena of reg. owner is the outermost value
// embedding o; it is what gets disposed when the last reference goes away.
func (o *Object) Init(reg *Registry, owner resource.Disposer, kind string, deleter Deleter) error {
	if reg == nil || owner == nil || deleter == nil {
		return fmt.Errorf("init %s: %w", kind, core.ErrNullArgument)
	}
	if !o.handle.IsZero() {
		return fmt.Errorf("init %s: already initialized: %w", kind, core.ErrInvalidState)
	}
	o.registry = reg
	o.kind = kind
	o.deleter = deleter
	o.handle = reg.arena.Insert(owner)
	return nil
}

func (o *Object) Registry() *Registry {
	return o.registry
}

func (o *Object) Kind() string {
	return o.kind
}

// ObjectName is the device name, 0 when the object does not exist on a device.
func (o *Object) ObjectName() uint32 {
	return o.name
}

func (o *Object) ObjectNamespace() Namespace {
	return o.namespace
}

// Exists reports whether the object lives in the namespace of ctx.
func (o *Object) Exists(ctx Context) bool {
	if IsNull(ctx) || o.name == 0 {
		return false
	}
	return o.namespace == ctx.Namespace()
}

// CreateName allocates the device object through alloc unless it already
// exists in the namespace of ctx. Creating it for a different namespace
// while it exists elsewhere is an error.
func (o *Object) CreateName(ctx Context, alloc func(dev Device) (uint32, error)) error {
	if err := CheckCurrent(ctx); err != nil {
		return err
	}
	if o.disposed {
		return fmt.Errorf("create %s: disposed: %w", o.kind, core.ErrInvalidState)
	}
	if o.name != 0 {
		if o.namespace == ctx.Namespace() {
			return nil
		}
		return fmt.Errorf("create %s %d: exists in namespace %s, not %s: %w",
			o.kind, o.name, o.namespace, ctx.Namespace(), core.ErrContextMismatch)
	}

	name, err := alloc(ctx.Device())
	if err != nil {
		return err
	}
	if name == 0 {
		return core.NewDeviceError("allocate "+o.kind, 0, 0, fmt.Errorf("device returned name 0"))
	}
	o.name = name
	o.namespace = ctx.Namespace()
	if _, known := o.registry.Lookup(o.namespace); !known {
		if err := o.registry.Register(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CheckExists validates that the object can be used with ctx.
func (o *Object) CheckExists(ctx Context) error {
	if err := CheckCurrent(ctx); err != nil {
		return err
	}
	if o.name == 0 {
		return fmt.Errorf("%s: %w", o.kind, core.ErrNotCreated)
	}
	if o.namespace != ctx.Namespace() {
		return fmt.Errorf("%s %d belongs to namespace %s, not %s: %w",
			o.kind, o.name, o.namespace, ctx.Namespace(), core.ErrContextMismatch)
	}
	return nil
}

// Delete frees the device object. Deleting an object that does not exist is
// a no-op.
func (o *Object) Delete(ctx Context) error {
	if o.name == 0 {
		return nil
	}
	if err := o.CheckExists(ctx); err != nil {
		return err
	}
	if err := o.deleter(ctx.Device(), o.name); err != nil {
		return core.NewDeviceError("delete "+o.kind, o.name, 0, err)
	}
	o.name = 0
	o.namespace = Namespace{}
	return nil
}

// Dispose leaves the arena and frees the device object. When the owning
// context is not current the deletion is queued on the registry and runs the
// next time that context is made current through it. Only the first call
// has any effect.
func (o *Object) Dispose() error {
	if o.disposed || o.registry == nil {
		return nil
	}
	o.disposed = true

	arena := o.registry.arena
	if arena.Contains(o.handle) {
		if err := arena.Remove(o.handle); err != nil {
			return err
		}
	}
	if o.name == 0 {
		return nil
	}

	name, ns := o.name, o.namespace
	o.name = 0
	o.namespace = Namespace{}

	if ctx, ok := o.registry.Lookup(ns); ok && ctx.IsCurrent() {
		if err := o.deleter(ctx.Device(), name); err != nil {
			return core.NewDeviceError("delete "+o.kind, name, 0, err)
		}
		return nil
	}
	o.registry.Defer(ns, name, o.kind, o.deleter)
	return nil
}

func (o *Object) IsDisposed() bool {
	return o.disposed
}

func (o *Object) IncRef() error {
	if o.registry == nil {
		return fmt.Errorf("%s: %w", o.kind, core.ErrNotCreated)
	}
	return o.registry.arena.IncRef(o.handle)
}

// DecRef releases one reference; the last one disposes the owner.
func (o *Object) DecRef() error {
	if o.registry == nil {
		return fmt.Errorf("%s: %w", o.kind, core.ErrNotCreated)
	}
	_, err := o.registry.arena.DecRef(o.handle)
	return err
}

func (o *Object) RefCount() uint32 {
	if o.registry == nil {
		return 0
	}
	return o.registry.arena.RefCount(o.handle)
}
