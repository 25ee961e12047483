// Package vulkan drives geometry buffers and draws through a vulkan logical
// device owned by the host application. Buffers live in host visible,
// coherent memory so uploads and mappings need no staging copy.
package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/device"
)

const bufferUsage = vk.BufferUsageVertexBufferBit | vk.BufferUsageIndexBufferBit |
	vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit

const memoryProperties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit

type buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	mapped bool
}

/**
 * @brief A device.Device over a vulkan logical device. Draws are recorded
 * into the command buffer given at construction.
 */
type Device struct {
	logical   vk.Device
	memory    vk.PhysicalDeviceMemoryProperties
	allocator *vk.AllocationCallbacks
	commands  *CommandBuffer
	buffers   *core.Identifiers[uint32, *buffer]
}

func NewDevice(logical vk.Device, physical vk.PhysicalDevice, commands *CommandBuffer) *Device {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physical, &props)
	props.Deref()
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		props.MemoryTypes[i].Deref()
	}
	return newDevice(logical, props, commands)
}

func newDevice(logical vk.Device, props vk.PhysicalDeviceMemoryProperties, commands *CommandBuffer) *Device {
	return &Device{
		logical:  logical,
		memory:   props,
		commands: commands,
		buffers:  core.NewIdentifiers[uint32, *buffer](64),
	}
}

// SetCommandBuffer switches the command buffer draws are recorded into,
// typically once per frame in flight.
func (d *Device) SetCommandBuffer(commands *CommandBuffer) {
	d.commands = commands
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every bit of propertyFlags, or -1.
func (d *Device) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		if (typeFilter&(1<<i)) != 0 && (uint32(d.memory.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func (d *Device) lookup(name uint32) (*buffer, error) {
	buf, ok := d.buffers.Get(name)
	if !ok {
		return nil, fmt.Errorf("buffer %d does not exist", name)
	}
	return buf, nil
}

func (d *Device) create(size uint64) (*buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("allocate of 0 bytes")
	}
	var handle vk.Buffer
	res := vk.CreateBuffer(d.logical, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(bufferUsage),
		SharingMode: vk.SharingModeExclusive,
	}, d.allocator, &handle)
	if err := check("vkCreateBuffer", res); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, handle, &reqs)
	reqs.Deref()
	index := d.FindMemoryIndex(reqs.MemoryTypeBits, uint32(memoryProperties))
	if index < 0 {
		vk.DestroyBuffer(d.logical, handle, d.allocator)
		return nil, fmt.Errorf("no host visible memory type for buffer of %d bytes", size)
	}

	var memory vk.DeviceMemory
	res = vk.AllocateMemory(d.logical, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}, d.allocator, &memory)
	if err := check("vkAllocateMemory", res); err != nil {
		vk.DestroyBuffer(d.logical, handle, d.allocator)
		return nil, err
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(d.logical, handle, memory, 0)); err != nil {
		vk.FreeMemory(d.logical, memory, d.allocator)
		vk.DestroyBuffer(d.logical, handle, d.allocator)
		return nil, err
	}
	return &buffer{handle: handle, memory: memory, size: size}, nil
}

func (d *Device) destroy(buf *buffer) {
	if buf.mapped {
		vk.UnmapMemory(d.logical, buf.memory)
		buf.mapped = false
	}
	vk.FreeMemory(d.logical, buf.memory, d.allocator)
	vk.DestroyBuffer(d.logical, buf.handle, d.allocator)
}

func (d *Device) AllocateBuffer(size uint64) (uint32, error) {
	buf, err := d.create(size)
	if err != nil {
		return 0, err
	}
	return d.buffers.Acquire(buf), nil
}

// ResizeBuffer creates new storage and only then destroys the old one, so
// a failure leaves name untouched.
func (d *Device) ResizeBuffer(name uint32, size uint64) error {
	old, err := d.lookup(name)
	if err != nil {
		return err
	}
	if old.mapped {
		return fmt.Errorf("buffer %d is mapped", name)
	}
	buf, err := d.create(size)
	if err != nil {
		return err
	}
	d.destroy(old)
	return d.buffers.Set(name, buf)
}

func (d *Device) FreeBuffer(name uint32) error {
	buf, err := d.lookup(name)
	if err != nil {
		return err
	}
	d.destroy(buf)
	return d.buffers.Release(name)
}

func (d *Device) UploadBuffer(name uint32, offset uint64, data []byte) error {
	buf, err := d.lookup(name)
	if err != nil {
		return err
	}
	if buf.mapped {
		return fmt.Errorf("buffer %d is mapped", name)
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("upload of %d bytes at %d overflows buffer %d of %d bytes", len(data), offset, name, buf.size)
	}
	if len(data) == 0 {
		return nil
	}
	var ptr unsafe.Pointer
	res := vk.MapMemory(d.logical, buf.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr)
	if err := check("vkMapMemory", res); err != nil {
		return err
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(d.logical, buf.memory)
	return nil
}

// MapBuffer maps the whole buffer. The memory is coherent, so writes are
// visible to the device without a flush.
func (d *Device) MapBuffer(name uint32, access device.AccessMode) ([]byte, error) {
	buf, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	if buf.mapped {
		return nil, fmt.Errorf("buffer %d is already mapped", name)
	}
	var ptr unsafe.Pointer
	res := vk.MapMemory(d.logical, buf.memory, 0, vk.DeviceSize(buf.size), 0, &ptr)
	if err := check("vkMapMemory", res); err != nil {
		return nil, err
	}
	buf.mapped = true
	return unsafe.Slice((*byte)(ptr), buf.size), nil
}

func (d *Device) UnmapBuffer(name uint32) error {
	buf, err := d.lookup(name)
	if err != nil {
		return err
	}
	if !buf.mapped {
		return fmt.Errorf("buffer %d is not mapped", name)
	}
	vk.UnmapMemory(d.logical, buf.memory)
	buf.mapped = false
	return nil
}

// IssueDraw records call. Binding locations are used as vertex input
// binding numbers; the topology and attribute formats are part of the
// pipeline the caller has bound.
func (d *Device) IssueDraw(call device.DrawCall) error {
	if err := d.commands.canDraw(); err != nil {
		return err
	}
	if call.Count == 0 {
		return fmt.Errorf("draw of 0 elements")
	}
	if call.Topology == device.TopologyLineLoop {
		return fmt.Errorf("topology %s is not supported", call.Topology)
	}

	handles := make([]vk.Buffer, len(call.Bindings))
	for i, b := range call.Bindings {
		buf, err := d.lookup(b.Buffer)
		if err != nil {
			return fmt.Errorf("binding at location %d: %w", b.Location, err)
		}
		if buf.mapped {
			return fmt.Errorf("binding at location %d: buffer %d is mapped", b.Location, b.Buffer)
		}
		handles[i] = buf.handle
	}

	var index vk.Buffer
	var indexType vk.IndexType
	if call.Index != nil {
		buf, err := d.lookup(call.Index.Buffer)
		if err != nil {
			return fmt.Errorf("index buffer: %w", err)
		}
		indexType, err = vulkanIndexType(call.Index.Type)
		if err != nil {
			return err
		}
		index = buf.handle
	}

	cmd := d.commands.Handle
	for i, b := range call.Bindings {
		vk.CmdBindVertexBuffers(cmd, b.Location, 1, handles[i:i+1], []vk.DeviceSize{vk.DeviceSize(b.Offset)})
	}
	instances := max(call.InstanceCount, 1)
	if call.Index != nil {
		vk.CmdBindIndexBuffer(cmd, index, 0, indexType)
		vk.CmdDrawIndexed(cmd, call.Count, instances, call.First, 0, 0)
		return nil
	}
	vk.CmdDraw(cmd, call.Count, instances, call.First, 0)
	return nil
}

func vulkanIndexType(t device.ScalarType) (vk.IndexType, error) {
	switch t {
	case device.ScalarUint16:
		return vk.IndexTypeUint16, nil
	case device.ScalarUint32:
		return vk.IndexTypeUint32, nil
	default:
		return 0, fmt.Errorf("index type %s is not supported", t)
	}
}

// LiveBuffers is the number of allocated buffers.
func (d *Device) LiveBuffers() int {
	return d.buffers.Len()
}

// Destroy frees every buffer still alive.
func (d *Device) Destroy() {
	for name := uint32(1); d.buffers.Len() > 0; name++ {
		if buf, ok := d.buffers.Get(name); ok {
			d.destroy(buf)
			_ = d.buffers.Release(name)
		}
	}
}
