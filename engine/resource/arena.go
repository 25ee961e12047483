// Package resource implements shared ownership of engine resources through
// an arena of reference counted entries addressed by small handles.
//
// Holders retain and release a Handle instead of poking a counter on the
// object itself; when the last reference is released the arena drops the
// entry and disposes the object, exactly once.
package resource

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
)

// Disposer is implemented by everything the arena can own.
type Disposer interface {
	Dispose() error
}

// Handle is a copyable token for an arena entry. The zero Handle is invalid.
type Handle struct {
	index      uint32
	generation uint32
}

func (h Handle) IsZero() bool {
	return h.generation == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.index, h.generation)
}

type entry struct {
	object     Disposer
	refs       uint32
	generation uint32
	live       bool
}

type Arena struct {
	entries []entry
	free    []uint32
}

func NewArena() *Arena {
	return &Arena{}
}

// Insert registers object with a reference count of zero.
func (a *Arena) Insert(object Disposer) Handle {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.entries = append(a.entries, entry{})
		index = uint32(len(a.entries) - 1)
	}
	e := &a.entries[index]
	e.generation++
	e.object = object
	e.refs = 0
	e.live = true
	return Handle{index: index, generation: e.generation}
}

func (a *Arena) lookup(h Handle) (*entry, error) {
	if h.IsZero() || int(h.index) >= len(a.entries) {
		return nil, fmt.Errorf("handle %s: %w", h, core.ErrStaleHandle)
	}
	e := &a.entries[h.index]
	if !e.live || e.generation != h.generation {
		return nil, fmt.Errorf("handle %s: %w", h, core.ErrStaleHandle)
	}
	return e, nil
}

func (a *Arena) Contains(h Handle) bool {
	_, err := a.lookup(h)
	return err == nil
}

// Get returns the object behind h.
func (a *Arena) Get(h Handle) (Disposer, bool) {
	e, err := a.lookup(h)
	if err != nil {
		return nil, false
	}
	return e.object, true
}

// RefCount returns the number of outstanding references, 0 for stale handles.
func (a *Arena) RefCount(h Handle) uint32 {
	e, err := a.lookup(h)
	if err != nil {
		return 0
	}
	return e.refs
}

func (a *Arena) IncRef(h Handle) error {
	e, err := a.lookup(h)
	if err != nil {
		return err
	}
	e.refs++
	return nil
}

// DecRef releases one reference. When the count reaches zero the entry is
// removed and its object disposed; disposed reports whether that happened.
// Releasing an entry whose count is already zero is an error.
func (a *Arena) DecRef(h Handle) (disposed bool, err error) {
	e, err := a.lookup(h)
	if err != nil {
		return false, err
	}
	if e.refs == 0 {
		core.LogError("DecRef on %s with a reference count of zero", h)
		return false, fmt.Errorf("handle %s: %w", h, core.ErrRefCountUnderflow)
	}
	e.refs--
	if e.refs > 0 {
		return false, nil
	}
	return true, a.dispose(h, e)
}

// Dispose removes the entry and disposes its object regardless of the
// reference count. This is the deterministic scope-exit path.
func (a *Arena) Dispose(h Handle) error {
	e, err := a.lookup(h)
	if err != nil {
		return err
	}
	return a.dispose(h, e)
}

// Remove detaches the entry without disposing it. Owners that dispose
// themselves use it to leave the arena.
func (a *Arena) Remove(h Handle) error {
	e, err := a.lookup(h)
	if err != nil {
		return err
	}
	a.release(h, e)
	return nil
}

func (a *Arena) dispose(h Handle, e *entry) error {
	object := a.release(h, e)
	return object.Dispose()
}

func (a *Arena) release(h Handle, e *entry) Disposer {
	object := e.object
	e.object = nil
	e.refs = 0
	e.live = false
	a.free = append(a.free, h.index)
	return object
}

// Len is the number of live entries.
func (a *Arena) Len() int {
	return len(a.entries) - len(a.free)
}
