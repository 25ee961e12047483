// Package engine runs a scene frame by frame: it loads the configuration,
// sets up the device, its context and registry, and drives the game hooks.
package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima/engine/config"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/platform"
	"github.com/spaghettifunk/anima/engine/renderer/device"
	"github.com/spaghettifunk/anima/engine/renderer/headless"
	"github.com/spaghettifunk/anima/engine/scene"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it held
	EngineStageShutdown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	watcher      *config.Watcher
	events       *core.Events

	// nil when running headless
	platform *platform.Platform
	device   *headless.Device
	context  device.Context
	registry *device.Registry
	renderer *scene.Renderer
	root     *scene.Node

	clock       *core.Clock
	isRunning   atomic.Bool
	isSuspended bool
	width       uint32
	height      uint32
	frames      uint64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("engine: game: %w", core.ErrNullArgument)
	}
	cfg := config.Default()
	if path := g.ApplicationConfig.ConfigPath; path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		cfg = loaded
	}
	if g.ApplicationConfig.Name != "" {
		cfg.App.Name = g.ApplicationConfig.Name
	}
	if err := core.ConfigureLogger(cfg.Logger()); err != nil {
		return nil, fmt.Errorf("engine: log level: %w", err)
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		events:       core.NewEvents(),
		clock:        core.NewClock(),
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
	}, nil
}

func (e *Engine) Config() *config.Config {
	return e.config
}

func (e *Engine) Events() *core.Events {
	return e.events
}

func (e *Engine) Registry() *device.Registry {
	return e.registry
}

func (e *Engine) Context() device.Context {
	return e.context
}

// Device is the headless device the geometry is recorded on.
func (e *Engine) Device() *headless.Device {
	return e.device
}

// Root is the scene the engine draws every frame.
func (e *Engine) Root() *scene.Node {
	return e.root
}

func (e *Engine) Renderer() *scene.Renderer {
	return e.renderer
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Frames is the number of frames run so far.
func (e *Engine) Frames() uint64 {
	return e.frames
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine: initialize in stage %d: %w", e.currentStage, core.ErrInvalidState)
	}
	e.currentStage = EngineStageInitializing

	// register some events
	for code, fn := range map[core.EventCode]core.FnOnEvent{
		core.EventApplicationQuit: e.onQuit,
		core.EventResized:         e.onResized,
		core.EventConfigReloaded:  e.onConfigReloaded,
	} {
		if _, err := e.events.Register(code, fn); err != nil {
			return err
		}
	}

	e.device = headless.NewDevice(e.config.Device.MaxObjects)
	if e.config.Window.Enabled {
		e.platform = platform.New(e.events)
		if err := e.platform.Startup(e.config.App.Name, e.config.Window); err != nil {
			return err
		}
		ctx, err := e.platform.NewContext(e.device)
		if err != nil {
			return err
		}
		e.context = ctx
	} else {
		e.context = headless.NewContext(e.device)
	}

	e.registry = device.NewRegistry(e.config.Device.GarbageCapacity)
	if err := e.registry.MakeCurrent(e.context); err != nil {
		return err
	}
	e.renderer = scene.NewRenderer(e.registry, e.config.Scene)
	e.root = scene.NewNode(e.config.App.Name, nil)

	if e.gameInstance.ApplicationConfig.Watch && e.gameInstance.ApplicationConfig.ConfigPath != "" {
		w, err := config.NewWatcher(e.gameInstance.ApplicationConfig.ConfigPath, func(cfg *config.Config) {
			e.events.Fire(core.EventConfigReloaded, e, cfg)
		})
		if err != nil {
			return err
		}
		e.watcher = w
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	if err := e.renderer.Create(e.context, e.root); err != nil {
		return err
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized (window=%t, atomic_create=%t)", e.config.Window.Enabled, e.config.Scene.AtomicCreate)
	return nil
}

// Run runs frames until Stop is called, the window closes or app.max_frames
// is reached. It must run on the goroutine that called Initialize.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine: run in stage %d: %w", e.currentStage, core.ErrInvalidState)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	lastTime := e.clock.Elapsed()

	var targetFrame time.Duration
	if e.config.App.TargetFPS > 0 {
		targetFrame = time.Second / time.Duration(e.config.App.TargetFPS)
	}

	for e.isRunning.Load() {
		if e.platform != nil && !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended {
			time.Sleep(max(targetFrame, 10*time.Millisecond))
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - lastTime

		if err := e.frame(delta); err != nil {
			e.isRunning.Store(false)
			return err
		}
		e.frames++
		if limit := e.config.App.MaxFrames; limit > 0 && e.frames >= limit {
			e.isRunning.Store(false)
		}

		// Figure out how long the frame took and give the rest back to the OS.
		e.clock.Update()
		if remaining := targetFrame - (e.clock.Elapsed() - currentTime); remaining > 0 && e.isRunning.Load() {
			time.Sleep(remaining)
		}
		lastTime = currentTime
	}
	return nil
}

func (e *Engine) frame(delta time.Duration) error {
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("game update failed, shutting down: %s", err)
			return err
		}
	}
	if err := e.root.Update(delta); err != nil {
		core.LogError("scene update failed, shutting down: %s", err)
		return err
	}

	// the headless device keeps what it recorded, only the last frame matters
	e.device.ResetDraws()
	if err := e.renderer.Frame(e.context, e.root); err != nil {
		core.LogError("frame failed, shutting down: %s", err)
		return err
	}

	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(e.renderer.Metrics(), delta); err != nil {
			core.LogError("game render failed, shutting down: %s", err)
			return err
		}
	}
	return nil
}

// Stop asks Run to return after the current frame. It is safe to call from
// any goroutine.
func (e *Engine) Stop() {
	e.events.Fire(core.EventApplicationQuit, e, nil)
}

// Shutdown disposes the scene and releases everything the engine holds.
// It must run on the goroutine that called Initialize, after Run returned.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.root != nil {
		errs = append(errs, e.root.Dispose())
	}
	if e.registry != nil && e.context != nil && e.context.IsCurrent() {
		if _, err := e.registry.ReleaseGarbage(e.context); err != nil {
			errs = append(errs, err)
		}
		if err := e.context.MakeCurrent(false); err != nil {
			errs = append(errs, err)
		}
		e.registry.Unregister(e.context)
	}
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
	}
	if e.device != nil && e.device.LiveBuffers() > 0 {
		core.LogWarn("%d device buffers still alive at shutdown", e.device.LiveBuffers())
	}
	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order) of the
// application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onQuit(ctx core.EventContext) bool {
	core.LogInfo("quit received, shutting down.")
	e.isRunning.Store(false)
	return true
}

func (e *Engine) onResized(ctx core.EventContext) bool {
	se, ok := ctx.Data.(core.ResizeEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", ctx.Code)
		return false
	}
	if se.Width == e.width && se.Height == e.height {
		return false
	}
	e.width, e.height = se.Width, se.Height
	core.LogDebug("Window resize: %d, %d", se.Width, se.Height)

	// Handle minimization
	if se.Width == 0 || se.Height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(se.Width, se.Height); err != nil {
			core.LogError(err.Error())
		}
	}
	return false
}

// onConfigReloaded runs on the watcher goroutine. Only the logger, which
// is safe for concurrent use, is reconfigured; the rest applies on restart.
func (e *Engine) onConfigReloaded(ctx core.EventContext) bool {
	cfg, ok := ctx.Data.(*config.Config)
	if !ok {
		return false
	}
	if err := core.ConfigureLogger(cfg.Logger()); err != nil {
		core.LogWarn("configuration reload: %s", err)
		return false
	}
	core.LogInfo("configuration reloaded, log level %q", cfg.Log.Level)
	return false
}
