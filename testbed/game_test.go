package testbed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima/engine"
	"github.com/spaghettifunk/anima/engine/config"
	"github.com/spaghettifunk/anima/engine/renderer/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestbedRunsHeadless(t *testing.T) {
	tb := NewTestGame("", false)
	e, err := engine.New(tb.Game)
	require.NoError(t, err)
	e.Config().App.MaxFrames = 5
	e.Config().App.TargetFPS = 0

	require.NoError(t, e.Initialize())
	assert.Equal(t, 5, e.Device().LiveBuffers())
	require.NoError(t, e.Run())
	assert.Equal(t, uint64(5), e.Frames())
	assert.Equal(t, uint64(3), e.Renderer().Metrics().LastFrameDraws())

	draws := e.Device().Draws()
	require.Len(t, draws, 3)
	quad, strip, instanced := draws[0], draws[1], draws[2]
	require.NotNil(t, quad.Index)
	assert.Equal(t, device.ScalarUint16, quad.Index.Type)
	assert.Equal(t, uint32(6), quad.Count)
	assert.Len(t, quad.Bindings, 4)
	assert.Equal(t, device.TopologyTriangleStrip, strip.Topology)
	assert.Equal(t, uint32(6), strip.Count)
	assert.Equal(t, uint32(4), instanced.InstanceCount)
	require.Len(t, instanced.Bindings, 2)
	assert.Equal(t, uint32(offsetLocation), instanced.Bindings[1].Location)
	assert.Equal(t, uint32(1), instanced.Bindings[1].Divisor)

	require.NoError(t, e.Shutdown())
	assert.Equal(t, engine.EngineStageShutdown, e.Stage())
	assert.Equal(t, 0, e.Device().LiveBuffers())
	assert.Equal(t, 0, e.Registry().Arena().Len())
	require.NoError(t, e.Shutdown(), "shutting down twice is harmless")
}

func TestTestbedFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	doc := `
[app]
max_frames = 2
target_fps = 0

[log]
level = "warn"

[buffer]
client_policy = "discard"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	tb := NewTestGame(path, true)
	e, err := engine.New(tb.Game)
	require.NoError(t, err)
	assert.Equal(t, config.ClientDiscard, e.Config().Buffer.ClientPolicy)
	assert.Equal(t, "Anima Testbed", e.Config().App.Name)

	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run())
	assert.Equal(t, uint64(2), e.Frames())
	assert.Equal(t, uint64(2), tb.state().frames)
	require.NoError(t, e.Shutdown())
	assert.Equal(t, 0, e.Device().LiveBuffers())
}
