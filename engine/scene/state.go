package scene

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/math"
	"github.com/spaghettifunk/anima/engine/renderer/vertexarray"
)

/**
 * @brief The render state delta of a node. Unset fields inherit the value
 * of the parent.
 */
type State struct {
	/** @brief Local transform, concatenated with the parent transform. */
	Model *math.Mat4
	/** @brief Projection, replaces the parent projection. */
	Projection *math.Mat4
	/** @brief Program, replaces the parent program. */
	Program vertexarray.Program
	/** @brief Hides the node and its whole subtree. */
	Hidden bool
}

// Merge returns the state of a child with the local delta below s.
func (s State) Merge(local State) State {
	out := s
	if local.Model != nil {
		m := *local.Model
		if s.Model != nil {
			m = local.Model.Mul(*s.Model)
		}
		out.Model = &m
	}
	if local.Projection != nil {
		p := *local.Projection
		out.Projection = &p
	}
	if local.Program != nil {
		out.Program = local.Program
	}
	out.Hidden = s.Hidden || local.Hidden
	return out
}

// ModelMatrix is the merged model transform, identity when none was set.
func (s State) ModelMatrix() math.Mat4 {
	if s.Model == nil {
		return math.NewMat4Identity()
	}
	return *s.Model
}

// ProjectionMatrix is the merged projection, identity when none was set.
func (s State) ProjectionMatrix() math.Mat4 {
	if s.Projection == nil {
		return math.NewMat4Identity()
	}
	return *s.Projection
}

// StateStack holds the merged states of the path from the root to the node
// being drawn. The top is always the merged view.
type StateStack struct {
	base   State
	states []State
}

func NewStateStack() *StateStack {
	return &StateStack{}
}

// NewStateStackFrom starts the stack from base instead of the empty state.
func NewStateStackFrom(base State) *StateStack {
	return &StateStack{base: base}
}

// Push merges local into the current state and makes the result current.
func (ss *StateStack) Push(local State) State {
	merged := ss.Current().Merge(local)
	ss.states = append(ss.states, merged)
	return merged
}

// Pop restores the state before the last Push.
func (ss *StateStack) Pop() error {
	if len(ss.states) == 0 {
		return fmt.Errorf("pop of an empty state stack: %w", core.ErrInvalidState)
	}
	ss.states = ss.states[:len(ss.states)-1]
	return nil
}

func (ss *StateStack) Current() State {
	if n := len(ss.states); n > 0 {
		return ss.states[n-1]
	}
	return ss.base
}

// Depth is the number of pushed states.
func (ss *StateStack) Depth() int {
	return len(ss.states)
}
