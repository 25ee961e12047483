package engine

import (
	"time"

	"github.com/spaghettifunk/anima/engine/core"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize builds the scene below the engine root. The scene is created
// on the device right after it returns.
type Initialize func(e *Engine) error
type Update func(delta time.Duration) error
type Render func(metrics *core.Metrics, delta time.Duration) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
