// Package scene is the scene graph: a tree of nodes carrying render state
// deltas and payloads, drawn depth first through a state stack.
package scene

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/math"
	"github.com/spaghettifunk/anima/engine/renderer/device"
	"github.com/spaghettifunk/anima/engine/renderer/vertexarray"
)

// Payload capabilities. A node payload implements the ones it needs.
type (
	Drawable interface {
		Draw(ctx device.Context, state State) error
	}
	Updatable interface {
		Update(delta time.Duration) error
	}
	Creatable interface {
		Create(ctx device.Context) error
	}
	Deletable interface {
		Delete(ctx device.Context) error
	}
	Existent interface {
		Exists(ctx device.Context) bool
	}
	Disposable interface {
		Dispose() error
	}
	// Revertible payloads create themselves and return how to undo that
	// creation, used when a subtree creation rolls back.
	Revertible interface {
		CreateRevertible(ctx device.Context) (undo func(device.Context) error, err error)
	}
)

// NodeError is the failure of one node of a tree operation.
type NodeError struct {
	Node *Node
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %s", e.Node.Name(), e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

/**
 * @brief A scene graph node. A node is attached to at most one parent, once,
 * and owns its children.
 */
type Node struct {
	name     string
	parent   *Node
	children []*Node
	state    State
	payload  any

	/** @brief Namespace the node was created in, zero when not created. */
	namespace device.Namespace
	disposed  bool
}

// NewNode builds a detached node. payload may be nil for grouping nodes.
func NewNode(name string, payload any) *Node {
	return &Node{name: name, payload: payload}
}

func (n *Node) Name() string {
	return n.name
}

func (n *Node) Payload() any {
	return n.payload
}

func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the children in insertion order.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// AddChild attaches child below n.
func (n *Node) AddChild(child *Node) error {
	if child == nil {
		return fmt.Errorf("add child to %q: %w", n.name, core.ErrNullArgument)
	}
	if child.parent != nil {
		return fmt.Errorf("add %q to %q, parent is %q: %w", child.name, n.name, child.parent.name, core.ErrAlreadyParented)
	}
	for p := n; p != nil; p = p.parent {
		if p == child {
			return fmt.Errorf("add %q to its own subtree: %w", child.name, core.ErrInvalidArgument)
		}
	}
	if n.disposed || child.disposed {
		return fmt.Errorf("add %q to %q: disposed: %w", child.name, n.name, core.ErrInvalidState)
	}
	child.parent = n
	n.children = append(n.children, child)
	return nil
}

func (n *Node) State() State {
	return n.state
}

func (n *Node) SetState(state State) {
	n.state = state
}

func (n *Node) LocalModel() (math.Mat4, bool) {
	if n.state.Model == nil {
		return math.Mat4{}, false
	}
	return *n.state.Model, true
}

func (n *Node) SetLocalModel(model math.Mat4) {
	n.state.Model = &model
}

func (n *Node) ClearLocalModel() {
	n.state.Model = nil
}

func (n *Node) LocalProjection() (math.Mat4, bool) {
	if n.state.Projection == nil {
		return math.Mat4{}, false
	}
	return *n.state.Projection, true
}

func (n *Node) SetLocalProjection(projection math.Mat4) {
	n.state.Projection = &projection
}

func (n *Node) SetProgram(program vertexarray.Program) {
	n.state.Program = program
}

func (n *Node) SetHidden(hidden bool) {
	n.state.Hidden = hidden
}

// Walk visits n and its descendants depth first, in insertion order.
func (n *Node) Walk(visit func(*Node) bool) {
	if !visit(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(visit)
	}
}

// Exists reports whether the node was created in the namespace of ctx and
// its payload, if it has device state, still exists there.
func (n *Node) Exists(ctx device.Context) bool {
	if device.IsNull(ctx) || n.namespace.IsZero() || n.namespace != ctx.Namespace() {
		return false
	}
	if e, ok := n.payload.(Existent); ok {
		return e.Exists(ctx)
	}
	return true
}

func (n *Node) createSelf(ctx device.Context) error {
	_, err := n.createSelfRevertible(ctx)
	return err
}

// createSelfRevertible creates the node and returns how to undo it, nil
// when the node already existed.
func (n *Node) createSelfRevertible(ctx device.Context) (func(device.Context) error, error) {
	if n.disposed {
		return nil, fmt.Errorf("create: disposed: %w", core.ErrInvalidState)
	}
	if n.Exists(ctx) {
		return nil, nil
	}
	if !n.namespace.IsZero() && n.namespace != ctx.Namespace() {
		return nil, fmt.Errorf("created in namespace %s, not %s: %w", n.namespace, ctx.Namespace(), core.ErrContextMismatch)
	}
	undo := n.deleteSelf
	switch p := n.payload.(type) {
	case Revertible:
		undoPayload, err := p.CreateRevertible(ctx)
		if err != nil {
			return nil, err
		}
		undo = func(ctx device.Context) error {
			n.namespace = device.Namespace{}
			return undoPayload(ctx)
		}
	case Creatable:
		if err := p.Create(ctx); err != nil {
			return nil, err
		}
	}
	n.namespace = ctx.Namespace()
	return undo, nil
}

func (n *Node) deleteSelf(ctx device.Context) error {
	if n.namespace.IsZero() {
		return nil
	}
	if d, ok := n.payload.(Deletable); ok {
		if err := d.Delete(ctx); err != nil {
			return err
		}
	}
	n.namespace = device.Namespace{}
	return nil
}

// Create creates the subtree rooted at n, parents before children. It is
// all or nothing: when a node fails, every node created by this call is
// deleted again, in reverse order, and the error names the failing node.
// Nodes that existed before the call are left alone.
func (n *Node) Create(ctx device.Context) error {
	if err := device.CheckCurrent(ctx); err != nil {
		return err
	}

	type creation struct {
		node *Node
		undo func(device.Context) error
	}
	var created []creation
	var failure error
	n.Walk(func(node *Node) bool {
		if failure != nil {
			return false
		}
		undo, err := node.createSelfRevertible(ctx)
		if err != nil {
			failure = &NodeError{Node: node, Err: err}
			return false
		}
		if undo != nil {
			created = append(created, creation{node: node, undo: undo})
		}
		return true
	})
	if failure == nil {
		return nil
	}

	errs := []error{failure}
	for i := len(created) - 1; i >= 0; i-- {
		if err := created[i].undo(ctx); err != nil {
			errs = append(errs, &NodeError{Node: created[i].node, Err: fmt.Errorf("rollback: %w", err)})
		}
	}
	core.LogWarn("scene create of %q rolled back %d nodes: %s", n.name, len(created), failure)
	return errors.Join(errs...)
}

// CreateReport lists the outcome of a partial subtree creation.
type CreateReport struct {
	Created []*Node
	Failed  []*NodeError
	// Skipped are the descendants of failed nodes.
	Skipped []*Node
}

// CreateReport creates the subtree rooted at n without rolling back. A
// failing node does not stop its siblings; its own subtree is skipped.
func (n *Node) CreateReport(ctx device.Context) (*CreateReport, error) {
	if err := device.CheckCurrent(ctx); err != nil {
		return nil, err
	}
	report := &CreateReport{}
	n.createPartial(ctx, report)
	if len(report.Failed) == 0 {
		return report, nil
	}
	errs := make([]error, len(report.Failed))
	for i, f := range report.Failed {
		errs[i] = f
	}
	return report, errors.Join(errs...)
}

func (n *Node) createPartial(ctx device.Context, report *CreateReport) {
	existed := n.Exists(ctx)
	if err := n.createSelf(ctx); err != nil {
		report.Failed = append(report.Failed, &NodeError{Node: n, Err: err})
		for _, c := range n.children {
			c.Walk(func(skipped *Node) bool {
				report.Skipped = append(report.Skipped, skipped)
				return true
			})
		}
		return
	}
	if !existed {
		report.Created = append(report.Created, n)
	}
	for _, c := range n.children {
		c.createPartial(ctx, report)
	}
}

// Delete deletes the device state of the subtree, children first.
func (n *Node) Delete(ctx device.Context) error {
	if err := device.CheckCurrent(ctx); err != nil {
		return err
	}
	var errs []error
	for _, c := range n.children {
		if err := c.Delete(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := n.deleteSelf(ctx); err != nil {
		errs = append(errs, &NodeError{Node: n, Err: err})
	}
	return errors.Join(errs...)
}

// Dispose disposes the payload of n, then of every descendant. The nodes
// stay attached but can no longer be created.
func (n *Node) Dispose() error {
	var errs []error
	n.Walk(func(node *Node) bool {
		if node.disposed {
			return true
		}
		node.disposed = true
		node.namespace = device.Namespace{}
		if d, ok := node.payload.(Disposable); ok {
			if err := d.Dispose(); err != nil {
				errs = append(errs, &NodeError{Node: node, Err: err})
			}
		}
		return true
	})
	return errors.Join(errs...)
}

func (n *Node) IsDisposed() bool {
	return n.disposed
}

// Update advances the payloads of the subtree by delta.
func (n *Node) Update(delta time.Duration) error {
	var errs []error
	n.Walk(func(node *Node) bool {
		if u, ok := node.payload.(Updatable); ok {
			if err := u.Update(delta); err != nil {
				errs = append(errs, &NodeError{Node: node, Err: err})
			}
		}
		return true
	})
	return errors.Join(errs...)
}

// Draw draws the subtree rooted at n from an empty state.
func (n *Node) Draw(ctx device.Context) error {
	_, err := n.Traverse(ctx, NewStateStack())
	return err
}

// Traverse draws the subtree rooted at n on top of stack and returns the
// number of payloads drawn. The stack is left as it was given.
func (n *Node) Traverse(ctx device.Context, stack *StateStack) (int, error) {
	if err := device.CheckCurrent(ctx); err != nil {
		return 0, err
	}
	if stack == nil {
		return 0, fmt.Errorf("traverse %q: %w", n.name, core.ErrNullArgument)
	}
	return n.traverse(ctx, stack)
}

func (n *Node) traverse(ctx device.Context, stack *StateStack) (drawn int, err error) {
	state := stack.Push(n.state)
	defer func() {
		if perr := stack.Pop(); perr != nil && err == nil {
			err = perr
		}
	}()
	if state.Hidden {
		return 0, nil
	}

	if d, ok := n.payload.(Drawable); ok {
		if err := d.Draw(ctx, state); err != nil {
			return drawn, &NodeError{Node: n, Err: err}
		}
		drawn++
	}
	for _, c := range n.children {
		count, err := c.traverse(ctx, stack)
		drawn += count
		if err != nil {
			return drawn, err
		}
	}
	return drawn, nil
}
