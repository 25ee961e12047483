package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
)

type CommandBufferState int

const (
	CommandBufferReady CommandBufferState = iota
	CommandBufferRecording
	CommandBufferInRenderPass
	CommandBufferRecordingEnded
	CommandBufferSubmitted
	CommandBufferNotAllocated
)

func (s CommandBufferState) String() string {
	switch s {
	case CommandBufferReady:
		return "ready"
	case CommandBufferRecording:
		return "recording"
	case CommandBufferInRenderPass:
		return "in render pass"
	case CommandBufferRecordingEnded:
		return "recording ended"
	case CommandBufferSubmitted:
		return "submitted"
	case CommandBufferNotAllocated:
		return "not allocated"
	default:
		return fmt.Sprintf("CommandBufferState(%d)", int(s))
	}
}

// CommandBuffer is a command buffer and the state of its recording. Draws
// are recorded only while it is inside a render pass.
type CommandBuffer struct {
	Handle vk.CommandBuffer
	State  CommandBufferState
}

func NewCommandBuffer(logical vk.Device, pool vk.CommandPool, primary bool) (*CommandBuffer, error) {
	level := vk.CommandBufferLevelSecondary
	if primary {
		level = vk.CommandBufferLevelPrimary
	}
	handles := make([]vk.CommandBuffer, 1)
	res := vk.AllocateCommandBuffers(logical, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              level,
		CommandBufferCount: 1,
	}, handles)
	if err := check("vkAllocateCommandBuffers", res); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &CommandBuffer{Handle: handles[0], State: CommandBufferReady}, nil
}

// WrapCommandBuffer adopts a command buffer recorded by someone else, for
// instance the frame loop of a host application.
func WrapCommandBuffer(handle vk.CommandBuffer, state CommandBufferState) *CommandBuffer {
	return &CommandBuffer{Handle: handle, State: state}
}

func (c *CommandBuffer) Free(logical vk.Device, pool vk.CommandPool) {
	if c.State == CommandBufferNotAllocated {
		return
	}
	vk.FreeCommandBuffers(logical, pool, 1, []vk.CommandBuffer{c.Handle})
	c.Handle = nil
	c.State = CommandBufferNotAllocated
}

func (c *CommandBuffer) Begin(singleUse, renderPassContinue, simultaneousUse bool) error {
	if c.State != CommandBufferReady {
		return fmt.Errorf("begin command buffer in state %s: %w", c.State, core.ErrInvalidState)
	}
	info := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if singleUse {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if renderPassContinue {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if simultaneousUse {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(c.Handle, info)); err != nil {
		core.LogError(err.Error())
		return err
	}
	c.State = CommandBufferRecording
	return nil
}

func (c *CommandBuffer) End() error {
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(c.Handle)); err != nil {
		core.LogError(err.Error())
		return err
	}
	c.State = CommandBufferRecordingEnded
	return nil
}

// BeginRenderPass and EndRenderPass only track the state, the render pass
// itself belongs to the caller.
func (c *CommandBuffer) BeginRenderPass() error {
	if c.State != CommandBufferRecording {
		return fmt.Errorf("begin render pass in state %s: %w", c.State, core.ErrInvalidState)
	}
	c.State = CommandBufferInRenderPass
	return nil
}

func (c *CommandBuffer) EndRenderPass() error {
	if c.State != CommandBufferInRenderPass {
		return fmt.Errorf("end render pass in state %s: %w", c.State, core.ErrInvalidState)
	}
	c.State = CommandBufferRecording
	return nil
}

func (c *CommandBuffer) UpdateSubmitted() {
	c.State = CommandBufferSubmitted
}

func (c *CommandBuffer) Reset() {
	c.State = CommandBufferReady
}

func (c *CommandBuffer) canDraw() error {
	if c == nil {
		return fmt.Errorf("no command buffer: %w", core.ErrNullArgument)
	}
	if c.State != CommandBufferInRenderPass {
		return fmt.Errorf("draw into command buffer in state %s: %w", c.State, core.ErrInvalidState)
	}
	return nil
}
