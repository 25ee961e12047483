package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOverridesDefaults(t *testing.T) {
	doc := `
[log]
level = "debug"

[buffer]
client_policy = "discard"

[scene]
atomic_create = false
`
	cfg, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ClientDiscard, cfg.Buffer.ClientPolicy)
	assert.False(t, cfg.Scene.AtomicCreate)
	// untouched sections keep their defaults
	assert.Equal(t, 64, cfg.Device.GarbageCapacity)
}

func TestDecodeRejectsUnknownKeysAndPolicies(t *testing.T) {
	_, err := Decode(strings.NewReader("[device]\nbogus = 1\n"))
	assert.Error(t, err)

	_, err = Decode(strings.NewReader("[buffer]\nclient_policy = \"sometimes\"\n"))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = Decode(strings.NewReader("[window]\nclient_api = \"metal\"\n"))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = Decode(strings.NewReader("[window]\nenabled = true\nwidth = 0\n"))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestEncodeRoundTripsThroughDecode(t *testing.T) {
	cfg := Default()
	cfg.Device.MaxObjects = 12
	cfg.App.MaxFrames = 300
	cfg.Window.Enabled = true

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf))

	back, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anima.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o644))

	var level atomic.Value
	w, err := NewWatcher(path, func(c *Config) {
		level.Store(c.Log.Level)
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"warn\"\n"), 0o644))

	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "warn"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcherCloseTwice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anima.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := NewWatcher(path, func(*Config) {})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Error(t, w.Close())
}
