package core

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Identifiers hands out small integer ids and reuses released slots.
// Id 0 is never handed out, so it can stand for "no object".
type Identifiers[ID constraints.Unsigned, T any] struct {
	owners []identifierSlot[T]
}

type identifierSlot[T any] struct {
	owner T
	used  bool
}

func NewIdentifiers[ID constraints.Unsigned, T any](capacity int) *Identifiers[ID, T] {
	return &Identifiers[ID, T]{
		owners: make([]identifierSlot[T], 1, capacity+1),
	}
}

// Acquire stores owner in the first free slot and returns its id.
func (ids *Identifiers[ID, T]) Acquire(owner T) ID {
	if len(ids.owners) == 0 {
		ids.owners = make([]identifierSlot[T], 1)
	}
	for i := 1; i < len(ids.owners); i++ {
		// Existing free spot. Take it.
		if !ids.owners[i].used {
			ids.owners[i] = identifierSlot[T]{owner: owner, used: true}
			return ID(i)
		}
	}
	ids.owners = append(ids.owners, identifierSlot[T]{owner: owner, used: true})
	return ID(len(ids.owners) - 1)
}

func (ids *Identifiers[ID, T]) Get(id ID) (T, bool) {
	var zero T
	if id == 0 || int(id) >= len(ids.owners) || !ids.owners[id].used {
		return zero, false
	}
	return ids.owners[id].owner, true
}

// Set replaces the owner of an id that is in use.
func (ids *Identifiers[ID, T]) Set(id ID, owner T) error {
	if id == 0 || int(id) >= len(ids.owners) || !ids.owners[id].used {
		return fmt.Errorf("identifier %d is not in use: %w", id, ErrInvalidArgument)
	}
	ids.owners[id].owner = owner
	return nil
}

// Release zeroes out the slot, making it available for use.
func (ids *Identifiers[ID, T]) Release(id ID) error {
	if id == 0 || int(id) >= len(ids.owners) {
		return fmt.Errorf("identifier %d out of range (max=%d): %w", id, len(ids.owners)-1, ErrInvalidArgument)
	}
	if !ids.owners[id].used {
		return fmt.Errorf("identifier %d already released: %w", id, ErrInvalidArgument)
	}
	ids.owners[id] = identifierSlot[T]{}
	return nil
}

// Len is the number of ids currently in use.
func (ids *Identifiers[ID, T]) Len() int {
	n := 0
	for i := 1; i < len(ids.owners); i++ {
		if ids.owners[i].used {
			n++
		}
	}
	return n
}
