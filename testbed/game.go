package testbed

import (
	"time"

	"github.com/spaghettifunk/anima/engine"
	"github.com/spaghettifunk/anima/engine/config"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/math"
	"github.com/spaghettifunk/anima/engine/renderer/buffer"
	"github.com/spaghettifunk/anima/engine/renderer/device"
	"github.com/spaghettifunk/anima/engine/renderer/headless"
	"github.com/spaghettifunk/anima/engine/renderer/vertexarray"
	"github.com/spaghettifunk/anima/engine/scene"
)

// Attribute location of the per instance offset in the instanced program.
const offsetLocation = 5

type TestGame struct {
	*engine.Game
}

type gameState struct {
	engine *engine.Engine

	// spin rotates the quad group around the Y axis
	spin      *math.Transform
	spinGroup *scene.Node
	program   *headless.Program

	width  uint32
	height uint32
	frames uint64
}

// NewTestGame builds the testbed. configPath may be empty to run on the
// default configuration.
func NewTestGame(configPath string, watch bool) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:       "Anima Testbed",
				ConfigPath: configPath,
				Watch:      watch,
			},
			State: &gameState{
				spin:    math.TransformCreate(),
				program: headless.NewProgram(map[string]uint32{"offset": offsetLocation}),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogInfo("initializing testbed scene...")
	state := g.state()
	state.engine = e
	reg := e.Registry()
	policy := e.Config().Buffer.ClientPolicy

	quad, err := newQuadMesh(reg, policy)
	if err != nil {
		return err
	}
	strip, err := newStripMesh(reg, policy)
	if err != nil {
		return err
	}
	instanced, err := newInstancedMesh(reg, policy, state.program)
	if err != nil {
		return err
	}

	root := e.Root()
	root.SetLocalProjection(math.NewMat4Perspective(1.0472, 16.0/9.0, 0.1, 1000))
	root.SetLocalModel(math.NewMat4Translation(math.NewVec3(0, 0, -10)))

	state.spinGroup = scene.NewNode("spin", nil)
	quadNode := scene.NewNode("quad", quad)
	stripNode := scene.NewNode("strip", strip)
	stripNode.SetLocalModel(math.NewMat4Translation(math.NewVec3(3, 0, 0)))
	instancedNode := scene.NewNode("instanced", instanced)
	instancedNode.SetProgram(state.program)

	for _, step := range []struct{ parent, child *scene.Node }{
		{root, state.spinGroup},
		{state.spinGroup, quadNode},
		{state.spinGroup, stripNode},
		{root, instancedNode},
	} {
		if err := step.parent.AddChild(step.child); err != nil {
			return err
		}
	}
	return nil
}

func newQuadMesh(reg *device.Registry, policy config.ClientPolicy) (*scene.Mesh, error) {
	vertices, err := buffer.NewArrayBuffer[math.Vertex3D](reg, buffer.Vertex3DLayout(), policy)
	if err != nil {
		return nil, err
	}
	normal := math.NewVec3(0, 0, 1)
	white := math.NewVec4(1, 1, 1, 1)
	if err := vertices.SetItems([]math.Vertex3D{
		{Position: math.NewVec3(-1, -1, 0), Normal: normal, Texcoord: math.NewVec2(0, 0), Colour: white},
		{Position: math.NewVec3(1, -1, 0), Normal: normal, Texcoord: math.NewVec2(1, 0), Colour: white},
		{Position: math.NewVec3(-1, 1, 0), Normal: normal, Texcoord: math.NewVec2(0, 1), Colour: white},
		{Position: math.NewVec3(1, 1, 0), Normal: normal, Texcoord: math.NewVec2(1, 1), Colour: white},
	}); err != nil {
		return nil, err
	}
	indices, err := buffer.NewElementBuffer[uint16](reg, policy)
	if err != nil {
		return nil, err
	}
	if err := indices.SetItems([]uint16{0, 1, 2, 2, 1, 3}); err != nil {
		return nil, err
	}

	va, err := vertexarray.New(reg)
	if err != nil {
		return nil, err
	}
	for section, semantic := range []vertexarray.Semantic{
		vertexarray.SemanticPosition,
		vertexarray.SemanticNormal,
		vertexarray.SemanticTexCoord,
		vertexarray.SemanticColor,
	} {
		if err := va.SetSemanticArray(vertices, section, semantic); err != nil {
			return nil, err
		}
	}
	if err := va.SetElementBuffer(device.TopologyTriangles, indices); err != nil {
		return nil, err
	}
	return scene.NewMesh(va, nil)
}

func newStripMesh(reg *device.Registry, policy config.ClientPolicy) (*scene.Mesh, error) {
	layout, err := buffer.FlatLayout(buffer.ItemType{Scalar: device.ScalarFloat32, Components: 3})
	if err != nil {
		return nil, err
	}
	positions, err := buffer.NewArrayBuffer[math.Vec3](reg, layout, policy)
	if err != nil {
		return nil, err
	}
	if err := positions.SetItems([]math.Vec3{
		math.NewVec3(0, 0, 0), math.NewVec3(1, 0, 0),
		math.NewVec3(0, 1, 0), math.NewVec3(1, 1, 0),
		math.NewVec3(0, 2, 0), math.NewVec3(1, 2, 0),
	}); err != nil {
		return nil, err
	}
	va, err := vertexarray.New(reg)
	if err != nil {
		return nil, err
	}
	if err := va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition); err != nil {
		return nil, err
	}
	if err := va.SetElementArray(device.TopologyTriangleStrip); err != nil {
		return nil, err
	}
	return scene.NewMesh(va, nil)
}

func newInstancedMesh(reg *device.Registry, policy config.ClientPolicy, program vertexarray.Program) (*scene.Mesh, error) {
	layout, err := buffer.FlatLayout(buffer.ItemType{Scalar: device.ScalarFloat32, Components: 3})
	if err != nil {
		return nil, err
	}
	positions, err := buffer.NewArrayBuffer[math.Vec3](reg, layout, policy)
	if err != nil {
		return nil, err
	}
	if err := positions.SetItems([]math.Vec3{
		math.NewVec3(0, 0, 0), math.NewVec3(0.5, 0, 0), math.NewVec3(0, 0.5, 0),
	}); err != nil {
		return nil, err
	}
	offsets, err := buffer.NewArrayBuffer[math.Vec3](reg, layout, policy)
	if err != nil {
		return nil, err
	}
	if err := offsets.SetItems([]math.Vec3{
		math.NewVec3(-3, -2, 0), math.NewVec3(-1, -2, 0), math.NewVec3(1, -2, 0), math.NewVec3(3, -2, 0),
	}); err != nil {
		return nil, err
	}

	va, err := vertexarray.New(reg)
	if err != nil {
		return nil, err
	}
	if err := va.SetSemanticArray(positions, 0, vertexarray.SemanticPosition); err != nil {
		return nil, err
	}
	if err := va.SetInstancedArray(offsets, 0, 1, "offset", ""); err != nil {
		return nil, err
	}
	mesh, err := scene.NewMesh(va, program)
	if err != nil {
		return nil, err
	}
	mesh.SetInstances(offsets.ClientItemCount())
	return mesh, nil
}

func (g *TestGame) Update(delta time.Duration) error {
	state := g.state()
	rotation := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), float32(0.5*delta.Seconds()))
	state.spin.Rotate(rotation)
	state.spinGroup.SetLocalModel(state.spin.Local())
	return nil
}

func (g *TestGame) Render(metrics *core.Metrics, delta time.Duration) error {
	state := g.state()
	state.frames++
	if state.frames%120 == 0 {
		core.LogDebug("frame %d: %.1f fps, %.3f ms, %d draws",
			metrics.Frames(), metrics.FPS(), metrics.FrameTime(), metrics.LastFrameDraws())
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width, state.height = width, height
	if height == 0 || state.engine == nil {
		return nil
	}
	state.engine.Root().SetLocalProjection(math.NewMat4Perspective(1.0472, float32(width)/float32(height), 0.1, 1000))
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed after %d frames", g.state().frames)
	return nil
}
