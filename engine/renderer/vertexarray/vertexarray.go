// Package vertexarray binds array buffers to vertex attributes and issues
// the draws that read them.
package vertexarray

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/buffer"
	"github.com/spaghettifunk/anima/engine/renderer/device"
	"github.com/spaghettifunk/anima/engine/resource"
)

// Program resolves attribute names against the active attributes of a
// linked shader program.
type Program interface {
	AttributeLocation(attribute, block string) (uint32, bool)
}

/**
 * @brief One binding of a vertex array: which buffer, which attribute of
 * its items, and how fast it advances.
 */
type Entry struct {
	Array   buffer.Array
	Section int
	/** @brief 0 advances per vertex, N advances every N instances. */
	Divisor uint32
}

type elementArray struct {
	topology device.Topology
	indices  buffer.Array
	// when ranged, [offset, offset+count) of the indices, or of the vertices
	// when there are none
	ranged bool
	offset uint32
	count  uint32
}

type VertexArray struct {
	registry *device.Registry
	handle   resource.Handle

	entries  map[Key]*Entry
	order    []Key
	elements elementArray

	namespace device.Namespace
	created   bool
	disposed  bool

	logger *log.Logger
}

// New builds an empty vertex array drawing triangles, owned by the arena of reg.
func New(reg *device.Registry) (*VertexArray, error) {
	if reg == nil {
		return nil, fmt.Errorf("vertex array: %w", core.ErrNullArgument)
	}
	va := &VertexArray{
		registry: reg,
		entries:  make(map[Key]*Entry),
		elements: elementArray{topology: device.TopologyTriangles},
		logger:   core.LogWith("kind", "vertex array"),
	}
	va.handle = reg.Arena().Insert(va)
	return va, nil
}

// SetArray binds the first section of buf to an attribute.
func (va *VertexArray) SetArray(buf buffer.Array, attribute, block string) error {
	return va.SetArraySection(buf, 0, attribute, block)
}

// SetArraySection binds section of buf to an attribute.
func (va *VertexArray) SetArraySection(buf buffer.Array, section int, attribute, block string) error {
	if attribute == "" {
		return fmt.Errorf("bind array without attribute name: %w", core.ErrInvalidArgument)
	}
	return va.bind(Key{Attribute: attribute, Block: block}, buf, section, 0)
}

// SetSemanticArray binds section of buf to a semantic.
func (va *VertexArray) SetSemanticArray(buf buffer.Array, section int, semantic Semantic) error {
	if !semantic.Valid() {
		return fmt.Errorf("bind array to semantic %s: %w", semantic, core.ErrInvalidArgument)
	}
	return va.bind(Key{Semantic: semantic}, buf, section, 0)
}

// SetInstancedArray binds section of buf to an attribute advancing every
// divisor instances.
func (va *VertexArray) SetInstancedArray(buf buffer.Array, section int, divisor uint32, attribute, block string) error {
	if attribute == "" {
		return fmt.Errorf("bind instanced array without attribute name: %w", core.ErrInvalidArgument)
	}
	if divisor == 0 {
		return fmt.Errorf("bind instanced array %q with divisor 0: %w", attribute, core.ErrInvalidArgument)
	}
	return va.bind(Key{Attribute: attribute, Block: block}, buf, section, divisor)
}

func checkArray(buf buffer.Array) error {
	if buf == nil {
		return fmt.Errorf("array buffer: %w", core.ErrNullArgument)
	}
	if buf.IsDisposed() {
		return fmt.Errorf("array buffer is disposed: %w", core.ErrInvalidState)
	}
	if buf.ItemCount() == 0 && buf.ClientItemCount() == 0 {
		return fmt.Errorf("array buffer %d: %w", buf.ObjectName(), core.ErrEmptyBuffer)
	}
	return nil
}

func (va *VertexArray) bind(key Key, buf buffer.Array, section int, divisor uint32) error {
	if va.disposed {
		return fmt.Errorf("bind %s on disposed vertex array: %w", key, core.ErrInvalidState)
	}
	if err := checkArray(buf); err != nil {
		return fmt.Errorf("bind %s: %w", key, err)
	}
	if _, err := buf.Layout().Section(section); err != nil {
		return fmt.Errorf("bind %s: %w", key, err)
	}

	if err := buf.IncRef(); err != nil {
		return err
	}
	previous, rebound := va.entries[key]
	va.entries[key] = &Entry{Array: buf, Section: section, Divisor: divisor}
	if !rebound {
		va.order = append(va.order, key)
		return nil
	}
	return previous.Array.DecRef()
}

// SetElementArray draws the bound vertices directly with topology.
func (va *VertexArray) SetElementArray(topology device.Topology) error {
	return va.setElements(elementArray{topology: topology})
}

// SetElementBuffer draws every index of indices with topology.
func (va *VertexArray) SetElementBuffer(topology device.Topology, indices buffer.Array) error {
	if err := checkArray(indices); err != nil {
		return fmt.Errorf("element buffer: %w", err)
	}
	return va.setElements(elementArray{topology: topology, indices: indices})
}

// SetElementRange draws count elements starting at offset. The range is over
// indices when given, over the bound vertices otherwise.
func (va *VertexArray) SetElementRange(topology device.Topology, indices buffer.Array, offset, count uint32) error {
	if count == 0 {
		return fmt.Errorf("element range of 0 elements: %w", core.ErrInvalidArgument)
	}
	if indices != nil {
		if err := checkArray(indices); err != nil {
			return fmt.Errorf("element buffer: %w", err)
		}
	}
	return va.setElements(elementArray{topology: topology, indices: indices, ranged: true, offset: offset, count: count})
}

func (va *VertexArray) setElements(e elementArray) error {
	if va.disposed {
		return fmt.Errorf("set elements on disposed vertex array: %w", core.ErrInvalidState)
	}
	if e.topology > device.TopologyTriangleFan {
		return fmt.Errorf("topology %s: %w", e.topology, core.ErrInvalidArgument)
	}
	if e.indices != nil {
		if _, err := buffer.IndexType(e.indices); err != nil {
			return err
		}
		if err := e.indices.IncRef(); err != nil {
			return err
		}
	}
	previous := va.elements.indices
	va.elements = e
	if previous != nil {
		return previous.DecRef()
	}
	return nil
}

// GetVertexArray returns the binding of an attribute, nil when unbound.
func (va *VertexArray) GetVertexArray(attribute, block string) *Entry {
	return va.entries[Key{Attribute: attribute, Block: block}]
}

// GetSemanticArray returns the binding of a semantic, nil when unbound.
func (va *VertexArray) GetSemanticArray(semantic Semantic) *Entry {
	return va.entries[Key{Semantic: semantic}]
}

func (va *VertexArray) Topology() device.Topology {
	return va.elements.topology
}

func (va *VertexArray) ElementBuffer() buffer.Array {
	return va.elements.indices
}

// ArrayLength is the number of vertices of a non-instanced draw, taken from
// the position binding, or the first per-vertex binding without one.
func (va *VertexArray) ArrayLength() uint32 {
	if e, ok := va.entries[Key{Semantic: SemanticPosition}]; ok {
		return sectionLength(e)
	}
	for _, key := range va.order {
		if e := va.entries[key]; e.Divisor == 0 {
			return sectionLength(e)
		}
	}
	return 0
}

// sectionLength is the number of values of the bound section that fit in
// the buffer.
func sectionLength(e *Entry) uint32 {
	count := e.Array.ItemCount()
	if count == 0 {
		count = e.Array.ClientItemCount()
	}
	layout := e.Array.Layout()
	if layout.Kind() != buffer.LayoutPacked {
		return count
	}
	s, err := layout.Section(e.Section)
	if err != nil || s.Stride == 0 {
		return 0
	}
	bytes := uint64(count) * uint64(layout.ItemSize())
	end := uint64(s.Offset) + uint64(s.Type.Size())
	if bytes < end {
		return 0
	}
	return uint32((bytes-end)/uint64(s.Stride) + 1)
}

// arrays lists every distinct bound buffer, the element buffer last.
func (va *VertexArray) arrays() []buffer.Array {
	seen := make(map[buffer.Array]bool, len(va.entries)+1)
	out := make([]buffer.Array, 0, len(va.entries)+1)
	for _, key := range va.order {
		arr := va.entries[key].Array
		if !seen[arr] {
			seen[arr] = true
			out = append(out, arr)
		}
	}
	if idx := va.elements.indices; idx != nil && !seen[idx] {
		out = append(out, idx)
	}
	return out
}

// Create creates the device copy of every bound buffer, uploading pending
// client items.
func (va *VertexArray) Create(ctx device.Context) error {
	_, err := va.CreateRecorded(ctx)
	return err
}

// Creation lists what one CreateRecorded call brought into existence.
type Creation struct {
	va     *VertexArray
	arrays []buffer.Array
	// state is set when the vertex array itself was not created before
	state bool
}

// Arrays are the buffers the call created, in creation order.
func (c *Creation) Arrays() []buffer.Array {
	return c.arrays
}

// Undo deletes what the call created, newest first. Buffers that existed
// before the call keep their device copies.
func (c *Creation) Undo(ctx device.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.state {
		errs = append(errs, c.va.Delete(ctx))
	}
	for i := len(c.arrays) - 1; i >= 0; i-- {
		errs = append(errs, c.arrays[i].Delete(ctx))
	}
	c.arrays, c.state = nil, false
	return errors.Join(errs...)
}

// CreateRecorded is Create returning what it created, so a caller can undo
// it. A failing call deletes the buffers it created before returning.
func (va *VertexArray) CreateRecorded(ctx device.Context) (*Creation, error) {
	if err := device.CheckCurrent(ctx); err != nil {
		return nil, err
	}
	if va.disposed {
		return nil, fmt.Errorf("create disposed vertex array: %w", core.ErrInvalidState)
	}
	if len(va.entries) == 0 {
		return nil, fmt.Errorf("create vertex array without bindings: %w", core.ErrInvalidState)
	}
	if va.created && va.namespace != ctx.Namespace() {
		return nil, fmt.Errorf("vertex array created in namespace %s, not %s: %w",
			va.namespace, ctx.Namespace(), core.ErrContextMismatch)
	}
	c := &Creation{va: va}
	for _, arr := range va.arrays() {
		existed := arr.Exists(ctx)
		if err := arr.Create(ctx); err != nil {
			err = fmt.Errorf("create vertex array: %w", err)
			if undoErr := c.Undo(ctx); undoErr != nil {
				err = errors.Join(err, fmt.Errorf("undo: %w", undoErr))
			}
			return nil, err
		}
		if !existed {
			c.arrays = append(c.arrays, arr)
		}
	}
	c.state = !va.created
	va.namespace = ctx.Namespace()
	va.created = true
	va.logger.Debug("created", "bindings", len(va.entries), "new buffers", len(c.arrays), "namespace", va.namespace)
	return c, nil
}

// Exists reports whether the vertex array and all of its buffers exist in
// the namespace of ctx.
func (va *VertexArray) Exists(ctx device.Context) bool {
	if device.IsNull(ctx) || !va.created || va.namespace != ctx.Namespace() {
		return false
	}
	for _, arr := range va.arrays() {
		if !arr.Exists(ctx) {
			return false
		}
	}
	return true
}

// Delete forgets the device state of the vertex array. Bound buffers are
// shared and keep their device copies.
func (va *VertexArray) Delete(ctx device.Context) error {
	if !va.created {
		return nil
	}
	if err := device.CheckCurrent(ctx); err != nil {
		return err
	}
	if va.namespace != ctx.Namespace() {
		return fmt.Errorf("delete vertex array of namespace %s with %s: %w",
			va.namespace, ctx.Namespace(), core.ErrContextMismatch)
	}
	va.created = false
	va.namespace = device.Namespace{}
	return nil
}

// Draw issues a non-instanced draw of the bound arrays.
func (va *VertexArray) Draw(ctx device.Context, program Program) error {
	return va.draw(ctx, program, 0)
}

// DrawInstanced issues instances draws of the bound arrays.
func (va *VertexArray) DrawInstanced(ctx device.Context, program Program, instances uint32) error {
	if instances == 0 {
		return fmt.Errorf("draw 0 instances: %w", core.ErrInvalidArgument)
	}
	return va.draw(ctx, program, instances)
}

func (va *VertexArray) draw(ctx device.Context, program Program, instances uint32) error {
	if err := device.CheckCurrent(ctx); err != nil {
		return err
	}
	if va.disposed || !va.created {
		return fmt.Errorf("draw vertex array: %w", core.ErrNotCreated)
	}
	if va.namespace != ctx.Namespace() {
		return fmt.Errorf("draw vertex array of namespace %s with %s: %w",
			va.namespace, ctx.Namespace(), core.ErrContextMismatch)
	}

	for _, arr := range va.arrays() {
		if arr.Pending() || !arr.Exists(ctx) {
			if err := arr.Create(ctx); err != nil {
				return fmt.Errorf("draw vertex array: %w", err)
			}
		}
	}

	call := device.DrawCall{
		Topology:      va.elements.topology,
		InstanceCount: instances,
	}
	for _, key := range va.order {
		binding, ok, err := va.resolve(key, program)
		if err != nil {
			return err
		}
		if ok {
			call.Bindings = append(call.Bindings, binding)
		}
	}
	if len(call.Bindings) == 0 {
		return fmt.Errorf("draw vertex array: no binding resolved to an attribute location: %w", core.ErrInvalidState)
	}
	if err := va.resolveRange(&call); err != nil {
		return err
	}

	if err := ctx.Device().IssueDraw(call); err != nil {
		return core.NewDeviceError("draw "+call.Topology.String(), 0, uint64(call.Count), err)
	}
	return nil
}

func (va *VertexArray) resolve(key Key, program Program) (device.VertexBinding, bool, error) {
	e := va.entries[key]
	var location uint32
	var ok bool
	switch {
	case key.Semantic != SemanticNone:
		location, ok = SemanticLocation(key.Semantic)
	case program != nil:
		location, ok = program.AttributeLocation(key.Attribute, key.Block)
	}
	if !ok {
		va.logger.Warn("binding has no attribute location, skipped", "key", key.String())
		return device.VertexBinding{}, false, nil
	}
	s, err := e.Array.Layout().Section(e.Section)
	if err != nil {
		return device.VertexBinding{}, false, err
	}
	return device.VertexBinding{
		Location:   location,
		Buffer:     e.Array.ObjectName(),
		Offset:     uint64(s.Offset),
		Stride:     s.Stride,
		Type:       s.Type.Scalar,
		Components: s.Type.Components,
		Divisor:    e.Divisor,
	}, true, nil
}

func (va *VertexArray) resolveRange(call *device.DrawCall) error {
	el := va.elements
	if el.indices != nil {
		indexType, err := buffer.IndexType(el.indices)
		if err != nil {
			return err
		}
		call.Index = &device.IndexBinding{Buffer: el.indices.ObjectName(), Type: indexType}
		total := el.indices.ItemCount()
		call.First, call.Count = 0, total
		if el.ranged {
			if uint64(el.offset)+uint64(el.count) > uint64(total) {
				return fmt.Errorf("index range [%d, %d) of %d indices: %w",
					el.offset, el.offset+el.count, total, core.ErrIndexOutOfRange)
			}
			call.First, call.Count = el.offset, el.count
		}
		return nil
	}

	length := va.ArrayLength()
	call.First, call.Count = 0, length
	if el.ranged {
		if uint64(el.offset)+uint64(el.count) > uint64(length) {
			return fmt.Errorf("vertex range [%d, %d) of %d vertices: %w",
				el.offset, el.offset+el.count, length, core.ErrIndexOutOfRange)
		}
		call.First, call.Count = el.offset, el.count
	}
	if call.Count == 0 {
		return fmt.Errorf("draw vertex array without vertices: %w", core.ErrInvalidState)
	}
	return nil
}

// Dispose releases every bound buffer and the element buffer. Buffers no
// longer referenced anywhere else are disposed.
func (va *VertexArray) Dispose() error {
	if va.disposed {
		return nil
	}
	va.disposed = true
	arena := va.registry.Arena()
	if arena.Contains(va.handle) {
		if err := arena.Remove(va.handle); err != nil {
			return err
		}
	}

	var errs []error
	for _, key := range va.order {
		if err := va.entries[key].Array.DecRef(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", key, err))
		}
	}
	if idx := va.elements.indices; idx != nil {
		if err := idx.DecRef(); err != nil {
			errs = append(errs, fmt.Errorf("release element buffer: %w", err))
		}
	}
	va.entries = make(map[Key]*Entry)
	va.order = nil
	va.elements = elementArray{}
	va.created = false
	va.namespace = device.Namespace{}
	return errors.Join(errs...)
}

func (va *VertexArray) IsDisposed() bool {
	return va.disposed
}

func (va *VertexArray) IncRef() error {
	return va.registry.Arena().IncRef(va.handle)
}

// DecRef releases one reference; the last one disposes the vertex array.
func (va *VertexArray) DecRef() error {
	_, err := va.registry.Arena().DecRef(va.handle)
	return err
}

func (va *VertexArray) RefCount() uint32 {
	return va.registry.Arena().RefCount(va.handle)
}
