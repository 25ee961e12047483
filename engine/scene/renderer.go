package scene

import (
	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/anima/engine/config"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/device"
)

// Renderer drives frames of a scene: deferred deletions are released, the
// tree is drawn and the frame is timed.
type Renderer struct {
	registry     *device.Registry
	atomicCreate bool
	clock        *core.Clock
	metrics      *core.Metrics
	logger       *log.Logger
}

func NewRenderer(reg *device.Registry, cfg config.SceneConfig) *Renderer {
	return &Renderer{
		registry:     reg,
		atomicCreate: cfg.AtomicCreate,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		logger:       core.LogWith("kind", "scene renderer"),
	}
}

func (r *Renderer) Metrics() *core.Metrics {
	return r.metrics
}

// SetAtomicCreate switches between all or nothing and partial creation.
func (r *Renderer) SetAtomicCreate(atomic bool) {
	r.atomicCreate = atomic
}

// Create creates the tree rooted at root.
func (r *Renderer) Create(ctx device.Context, root *Node) error {
	if r.atomicCreate {
		return root.Create(ctx)
	}
	report, err := root.CreateReport(ctx)
	if report != nil && err != nil {
		r.logger.Warn("partial scene creation",
			"created", len(report.Created), "failed", len(report.Failed), "skipped", len(report.Skipped))
	}
	return err
}

// Frame draws one frame of root.
func (r *Renderer) Frame(ctx device.Context, root *Node) error {
	if err := device.CheckCurrent(ctx); err != nil {
		return err
	}
	r.clock.Start()
	if released, err := r.registry.ReleaseGarbage(ctx); err != nil {
		r.logger.Error("releasing deferred deletions", "err", err)
	} else if released > 0 {
		r.logger.Debug("released deferred deletions", "count", released)
	}

	drawn, err := root.Traverse(ctx, NewStateStack())
	for i := 0; i < drawn; i++ {
		r.metrics.CountDraw()
	}
	r.clock.Update()
	r.metrics.Update(r.clock.Elapsed())
	r.clock.Stop()
	return err
}
