package device

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima/engine/containers"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/resource"
)

// Deleter frees one device object through the device that owns it.
type Deleter func(dev Device, name uint32) error

type garbage struct {
	name    uint32
	kind    string
	deleter Deleter
}

// Registry ties together the contexts of an application, the arena that
// owns its resources and the deletions waiting for their context to become
// current again. It is created once and handed to every resource.
type Registry struct {
	arena    *resource.Arena
	contexts map[Namespace]Context
	garbage  map[Namespace]*containers.RingQueue[garbage]
	capacity int
}

func NewRegistry(garbageCapacity int) *Registry {
	if garbageCapacity < 1 {
		garbageCapacity = 1
	}
	return &Registry{
		arena:    resource.NewArena(),
		contexts: make(map[Namespace]Context),
		garbage:  make(map[Namespace]*containers.RingQueue[garbage]),
		capacity: garbageCapacity,
	}
}

func (r *Registry) Arena() *resource.Arena {
	return r.arena
}

// Register makes ctx known under its namespace. Sharing contexts register
// under the same namespace; the last one registered is used for teardown.
func (r *Registry) Register(ctx Context) error {
	if IsNull(ctx) {
		return fmt.Errorf("register context: %w", core.ErrNullArgument)
	}
	r.contexts[ctx.Namespace()] = ctx
	return nil
}

func (r *Registry) Unregister(ctx Context) {
	if IsNull(ctx) {
		return
	}
	ns := ctx.Namespace()
	if known, ok := r.contexts[ns]; ok && known == ctx {
		delete(r.contexts, ns)
	}
	if n := r.Pending(ns); n > 0 {
		core.LogWarn("context %s unregistered with %d deferred deletions pending", ns, n)
	}
}

func (r *Registry) Lookup(ns Namespace) (Context, bool) {
	ctx, ok := r.contexts[ns]
	return ctx, ok
}

// MakeCurrent makes ctx current, registers it and releases the deletions
// that were waiting for it.
func (r *Registry) MakeCurrent(ctx Context) error {
	if IsNull(ctx) {
		return fmt.Errorf("make current: %w", core.ErrNullArgument)
	}
	if err := ctx.MakeCurrent(true); err != nil {
		return err
	}
	if err := r.Register(ctx); err != nil {
		return err
	}
	_, err := r.ReleaseGarbage(ctx)
	return err
}

// Defer queues the deletion of name until a context of ns is current.
func (r *Registry) Defer(ns Namespace, name uint32, kind string, deleter Deleter) {
	q, ok := r.garbage[ns]
	if !ok {
		q = containers.NewRingQueue[garbage](r.capacity)
		r.garbage[ns] = q
	}
	q.Enqueue(garbage{name: name, kind: kind, deleter: deleter})
	core.LogDebug("deferred deletion of %s %d in namespace %s", kind, name, ns)
}

func (r *Registry) Pending(ns Namespace) int {
	if q, ok := r.garbage[ns]; ok {
		return q.Len()
	}
	return 0
}

// ReleaseGarbage runs every deletion deferred for the namespace of ctx and
// returns how many were run. Failures do not stop the drain.
func (r *Registry) ReleaseGarbage(ctx Context) (int, error) {
	if err := CheckCurrent(ctx); err != nil {
		return 0, err
	}
	q, ok := r.garbage[ctx.Namespace()]
	if !ok {
		return 0, nil
	}

	var errs []error
	released := 0
	for !q.IsEmpty() {
		g, _ := q.Dequeue()
		if err := g.deleter(ctx.Device(), g.name); err != nil {
			errs = append(errs, core.NewDeviceError("delete "+g.kind, g.name, 0, err))
			continue
		}
		released++
	}
	if released > 0 {
		core.LogDebug("released %d deferred objects in namespace %s", released, ctx.Namespace())
	}
	return released, errors.Join(errs...)
}
