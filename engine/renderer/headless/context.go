package headless

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/math"
	"github.com/spaghettifunk/anima/engine/renderer/device"
)

// Context is a context of a headless device. At most one context per
// device is current at a time.
type Context struct {
	dev *Device
	ns  device.Namespace
}

// NewContext builds a context with its own namespace on dev.
func NewContext(dev *Device) *Context {
	return &Context{dev: dev, ns: device.NewNamespace()}
}

// NewSharedContext builds a context sharing the objects of other.
func NewSharedContext(other *Context) *Context {
	return &Context{dev: other.dev, ns: other.ns}
}

func (c *Context) IsCurrent() bool {
	return c != nil && c.dev.current == c
}

func (c *Context) MakeCurrent(current bool) error {
	if c == nil {
		return fmt.Errorf("make current: %w", core.ErrNullArgument)
	}
	if current {
		c.dev.current = c
		return nil
	}
	if c.dev.current == c {
		c.dev.current = nil
	}
	return nil
}

func (c *Context) Namespace() device.Namespace {
	if c == nil {
		return device.Namespace{}
	}
	return c.ns
}

func (c *Context) Device() device.Device {
	return c.dev
}

// Headless returns the concrete device for inspection.
func (c *Context) Headless() *Device {
	return c.dev
}

// Program resolves attribute locations from a fixed table and stores the
// uniforms it is given.
type Program struct {
	locations map[string]uint32
	uniforms  map[string]math.Mat4
}

// NewProgram builds a program whose active attributes are locations. Keys
// of attributes inside a block are written "block.attribute".
func NewProgram(locations map[string]uint32) *Program {
	l := make(map[string]uint32, len(locations))
	for k, v := range locations {
		l[k] = v
	}
	return &Program{locations: l, uniforms: make(map[string]math.Mat4)}
}

func (p *Program) AttributeLocation(attribute, block string) (uint32, bool) {
	key := attribute
	if block != "" {
		key = block + "." + attribute
	}
	loc, ok := p.locations[key]
	return loc, ok
}

func (p *Program) SetUniformMat4(name string, value math.Mat4) error {
	if name == "" {
		return fmt.Errorf("uniform name: %w", core.ErrInvalidArgument)
	}
	p.uniforms[name] = value
	return nil
}

func (p *Program) Uniform(name string) (math.Mat4, bool) {
	m, ok := p.uniforms[name]
	return m, ok
}
