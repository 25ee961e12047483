// Package headless is an in-memory graphics device. It keeps buffers in
// host memory, records draw calls instead of rasterizing them and lets
// callers inject failures, which makes it the device of tests, the testbed
// and CI machines without a GPU.
package headless

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/device"
)

// Op names a device entry point for failure injection.
type Op string

const (
	OpAllocate Op = "allocate"
	OpResize   Op = "resize"
	OpFree     Op = "free"
	OpUpload   Op = "upload"
	OpMap      Op = "map"
	OpUnmap    Op = "unmap"
	OpDraw     Op = "draw"
)

type memory struct {
	data   []byte
	mapped bool
	access device.AccessMode
}

type Device struct {
	buffers    *core.Identifiers[uint32, *memory]
	maxObjects uint32
	current    *Context

	draws       []device.DrawCall
	failures    map[Op]error
	allocations int
}

// NewDevice builds a device holding at most maxObjects live buffers, 0
// meaning unlimited.
func NewDevice(maxObjects uint32) *Device {
	return &Device{
		buffers:    core.NewIdentifiers[uint32, *memory](16),
		maxObjects: maxObjects,
		failures:   make(map[Op]error),
	}
}

// FailNext makes the next call of op fail with err.
func (d *Device) FailNext(op Op, err error) {
	d.failures[op] = err
}

func (d *Device) injected(op Op) error {
	if err, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return err
	}
	return nil
}

func (d *Device) lookup(name uint32) (*memory, error) {
	mem, ok := d.buffers.Get(name)
	if !ok {
		return nil, fmt.Errorf("buffer %d does not exist", name)
	}
	return mem, nil
}

func (d *Device) AllocateBuffer(size uint64) (uint32, error) {
	if err := d.injected(OpAllocate); err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, fmt.Errorf("allocate of 0 bytes")
	}
	if d.maxObjects > 0 && uint32(d.buffers.Len()) >= d.maxObjects {
		return 0, fmt.Errorf("out of device objects (max=%d)", d.maxObjects)
	}
	d.allocations++
	return d.buffers.Acquire(&memory{data: make([]byte, size)}), nil
}

func (d *Device) ResizeBuffer(name uint32, size uint64) error {
	if err := d.injected(OpResize); err != nil {
		return err
	}
	mem, err := d.lookup(name)
	if err != nil {
		return err
	}
	if mem.mapped {
		return fmt.Errorf("buffer %d is mapped", name)
	}
	mem.data = make([]byte, size)
	return nil
}

func (d *Device) FreeBuffer(name uint32) error {
	if err := d.injected(OpFree); err != nil {
		return err
	}
	if _, err := d.lookup(name); err != nil {
		return err
	}
	return d.buffers.Release(name)
}

func (d *Device) UploadBuffer(name uint32, offset uint64, data []byte) error {
	if err := d.injected(OpUpload); err != nil {
		return err
	}
	mem, err := d.lookup(name)
	if err != nil {
		return err
	}
	if mem.mapped {
		return fmt.Errorf("buffer %d is mapped", name)
	}
	if offset+uint64(len(data)) > uint64(len(mem.data)) {
		return fmt.Errorf("upload of %d bytes at %d overflows buffer %d of %d bytes", len(data), offset, name, len(mem.data))
	}
	copy(mem.data[offset:], data)
	return nil
}

func (d *Device) MapBuffer(name uint32, access device.AccessMode) ([]byte, error) {
	if err := d.injected(OpMap); err != nil {
		return nil, err
	}
	mem, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	if mem.mapped {
		return nil, fmt.Errorf("buffer %d is already mapped", name)
	}
	mem.mapped = true
	mem.access = access
	return mem.data, nil
}

func (d *Device) UnmapBuffer(name uint32) error {
	if err := d.injected(OpUnmap); err != nil {
		return err
	}
	mem, err := d.lookup(name)
	if err != nil {
		return err
	}
	if !mem.mapped {
		return fmt.Errorf("buffer %d is not mapped", name)
	}
	mem.mapped = false
	mem.access = 0
	return nil
}

// IssueDraw validates call against the live buffers and records it.
func (d *Device) IssueDraw(call device.DrawCall) error {
	if err := d.injected(OpDraw); err != nil {
		return err
	}
	if call.Count == 0 {
		return fmt.Errorf("draw of 0 elements")
	}

	vertices := uint64(call.First) + uint64(call.Count)
	if call.Index != nil {
		maxIndex, err := d.maxIndex(call)
		if err != nil {
			return err
		}
		vertices = maxIndex + 1
	}

	for _, b := range call.Bindings {
		mem, err := d.lookup(b.Buffer)
		if err != nil {
			return fmt.Errorf("binding at location %d: %w", b.Location, err)
		}
		if mem.mapped {
			return fmt.Errorf("binding at location %d: buffer %d is mapped", b.Location, b.Buffer)
		}
		elements := vertices
		if b.Divisor > 0 {
			instances := uint64(max(call.InstanceCount, 1))
			elements = (instances + uint64(b.Divisor) - 1) / uint64(b.Divisor)
		}
		need := b.Offset + (elements-1)*uint64(b.Stride) + uint64(b.Type.Size()*b.Components)
		if need > uint64(len(mem.data)) {
			return fmt.Errorf("binding at location %d reads %d bytes of buffer %d holding %d",
				b.Location, need, b.Buffer, len(mem.data))
		}
	}

	recorded := call
	recorded.Bindings = append([]device.VertexBinding(nil), call.Bindings...)
	if call.Index != nil {
		index := *call.Index
		recorded.Index = &index
	}
	d.draws = append(d.draws, recorded)
	return nil
}

func (d *Device) maxIndex(call device.DrawCall) (uint64, error) {
	mem, err := d.lookup(call.Index.Buffer)
	if err != nil {
		return 0, fmt.Errorf("index buffer: %w", err)
	}
	size := uint64(call.Index.Type.Size())
	if size == 0 {
		return 0, fmt.Errorf("index buffer of %s", call.Index.Type)
	}
	end := (uint64(call.First) + uint64(call.Count)) * size
	if end > uint64(len(mem.data)) {
		return 0, fmt.Errorf("index range [%d, %d) overflows index buffer %d of %d bytes",
			call.First, call.First+call.Count, call.Index.Buffer, len(mem.data))
	}
	var highest uint64
	for off := uint64(call.First) * size; off < end; off += size {
		var v uint64
		for i := uint64(0); i < size; i++ {
			v |= uint64(mem.data[off+i]) << (8 * i)
		}
		highest = max(highest, v)
	}
	return highest, nil
}

// Draws returns the draw calls issued so far.
func (d *Device) Draws() []device.DrawCall {
	return d.draws
}

func (d *Device) ResetDraws() {
	d.draws = nil
}

// LiveBuffers is the number of allocated buffers.
func (d *Device) LiveBuffers() int {
	return d.buffers.Len()
}

// Allocations counts AllocateBuffer calls that succeeded.
func (d *Device) Allocations() int {
	return d.allocations
}

// BufferData returns a copy of the contents of name.
func (d *Device) BufferData(name uint32) ([]byte, bool) {
	mem, ok := d.buffers.Get(name)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), mem.data...), true
}

func (d *Device) IsMapped(name uint32) bool {
	mem, ok := d.buffers.Get(name)
	return ok && mem.mapped
}
