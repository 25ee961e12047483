// Package platform owns the GLFW window and turns it into a device context.
package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima/engine/config"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/device"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window    *glfw.Window
	events    *core.Events
	clientAPI string
	startTime float64
}

// New builds a platform that fires window events on events.
func New(events *core.Events) *Platform {
	return &Platform{events: events}
}

func (p *Platform) Startup(applicationName string, cfg config.WindowConfig) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	if cfg.ClientAPI == "opengl" {
		glfw.WindowHint(glfw.ClientAPI, glfw.OpenGLAPI)
	} else {
		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.
	}

	window, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window
	p.clientAPI = cfg.ClientAPI

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(cfg.X), int(cfg.Y))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events and reports whether the
// window is still open.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return p.Window != nil && !p.Window.ShouldClose()
}

// GetAbsoluteTime is the time in seconds since Startup.
func (p *Platform) GetAbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	switch action {
	case glfw.Press:
		if key == glfw.KeyEscape {
			p.events.Fire(core.EventApplicationQuit, p, nil)
			return
		}
		p.events.Fire(core.EventKeyPressed, p, core.KeyEvent{Key: int(key)})
	case glfw.Release:
		p.events.Fire(core.EventKeyReleased, p, core.KeyEvent{Key: int(key)})
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.events.Fire(core.EventResized, p, core.ResizeEvent{Width: uint32(width), Height: uint32(height)})
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.events.Fire(core.EventApplicationQuit, p, nil)
}

// current is the window context current on the main thread when the
// window has no client API to track it.
var current *WindowContext

/**
 * @brief A device context bound to the platform window. With an OpenGL
 * window currency is the GLFW current context; with a vulkan window,
 * which has no client context, it is tracked here.
 */
type WindowContext struct {
	platform *Platform
	dev      device.Device
	ns       device.Namespace
}

// NewContext builds a context for dev on the window.
func (p *Platform) NewContext(dev device.Device) (*WindowContext, error) {
	if p.Window == nil {
		return nil, fmt.Errorf("window context: platform not started: %w", core.ErrInvalidState)
	}
	if dev == nil {
		return nil, fmt.Errorf("window context: %w", core.ErrNullArgument)
	}
	return &WindowContext{platform: p, dev: dev, ns: device.NewNamespace()}, nil
}

func (c *WindowContext) IsCurrent() bool {
	if c == nil || c.platform.Window == nil {
		return false
	}
	if c.platform.clientAPI == "opengl" {
		return glfw.GetCurrentContext() == c.platform.Window
	}
	return current == c
}

func (c *WindowContext) MakeCurrent(makeCurrent bool) error {
	if c == nil {
		return fmt.Errorf("make current: %w", core.ErrNullArgument)
	}
	if c.platform.Window == nil {
		return fmt.Errorf("window destroyed: %w", core.ErrInvalidState)
	}
	if c.platform.clientAPI == "opengl" {
		if makeCurrent {
			c.platform.Window.MakeContextCurrent()
		} else if c.IsCurrent() {
			glfw.DetachCurrentContext()
		}
		return nil
	}
	if makeCurrent {
		current = c
	} else if current == c {
		current = nil
	}
	return nil
}

func (c *WindowContext) Namespace() device.Namespace {
	if c == nil {
		return device.Namespace{}
	}
	return c.ns
}

func (c *WindowContext) Device() device.Device {
	return c.dev
}
