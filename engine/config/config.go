// Package config loads the engine settings from a TOML file.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima/engine/core"
)

type ClientPolicy string

const (
	// ClientRetain keeps the client copy of an array buffer after upload.
	ClientRetain ClientPolicy = "retain"
	// ClientDiscard drops the client copy once it has been uploaded.
	ClientDiscard ClientPolicy = "discard"
)

type LogConfig struct {
	Level        string `toml:"level"`
	Prefix       string `toml:"prefix"`
	ReportCaller bool   `toml:"report_caller"`
}

type DeviceConfig struct {
	/** @brief Initial size of each deferred deletion queue. */
	GarbageCapacity int `toml:"garbage_capacity"`
	/** @brief Maximum live objects on the headless device, 0 means unlimited. */
	MaxObjects uint32 `toml:"max_objects"`
}

type BufferConfig struct {
	ClientPolicy ClientPolicy `toml:"client_policy"`
}

type SceneConfig struct {
	/** @brief Roll back a partially created subtree when a node fails to create. */
	AtomicCreate bool `toml:"atomic_create"`
}

type AppConfig struct {
	Name string `toml:"name"`
	/** @brief Frames to run before stopping, 0 runs until quit. */
	MaxFrames uint64 `toml:"max_frames"`
	/** @brief Frame rate cap, 0 disables the limiter. */
	TargetFPS uint32 `toml:"target_fps"`
}

type WindowConfig struct {
	// Enabled opens a GLFW window. Without it the application runs headless.
	Enabled bool   `toml:"enabled"`
	X       uint32 `toml:"x"`
	Y       uint32 `toml:"y"`
	Width   uint32 `toml:"width"`
	Height  uint32 `toml:"height"`
	// ClientAPI is "none" for vulkan surfaces or "opengl".
	ClientAPI string `toml:"client_api"`
}

type Config struct {
	App    AppConfig    `toml:"app"`
	Window WindowConfig `toml:"window"`
	Log    LogConfig    `toml:"log"`
	Device DeviceConfig `toml:"device"`
	Buffer BufferConfig `toml:"buffer"`
	Scene  SceneConfig  `toml:"scene"`
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:      "Anima",
			TargetFPS: 60,
		},
		Window: WindowConfig{
			X:         100,
			Y:         100,
			Width:     1280,
			Height:    720,
			ClientAPI: "none",
		},
		Log: LogConfig{
			Level:        "info",
			ReportCaller: true,
		},
		Device: DeviceConfig{
			GarbageCapacity: 64,
		},
		Buffer: BufferConfig{
			ClientPolicy: ClientRetain,
		},
		Scene: SceneConfig{
			AtomicCreate: true,
		},
	}
}

// Decode reads a TOML document on top of the defaults. Unknown keys are rejected.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	core.LogDebug("configuration loaded from %s", path)
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Buffer.ClientPolicy {
	case ClientRetain, ClientDiscard:
	default:
		return fmt.Errorf("config: unknown buffer.client_policy %q: %w", c.Buffer.ClientPolicy, core.ErrInvalidArgument)
	}
	switch c.Window.ClientAPI {
	case "none", "opengl":
	default:
		return fmt.Errorf("config: unknown window.client_api %q: %w", c.Window.ClientAPI, core.ErrInvalidArgument)
	}
	if c.Window.Enabled && (c.Window.Width == 0 || c.Window.Height == 0) {
		return fmt.Errorf("config: window size must be non-zero: %w", core.ErrInvalidArgument)
	}
	if c.Device.GarbageCapacity < 0 {
		return fmt.Errorf("config: device.garbage_capacity must be >= 0: %w", core.ErrInvalidArgument)
	}
	return nil
}

// Encode writes the configuration as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Logger converts the log section for core.ConfigureLogger.
func (c *Config) Logger() core.LoggerOptions {
	return core.LoggerOptions{
		Level:        c.Log.Level,
		Prefix:       c.Log.Prefix,
		ReportCaller: c.Log.ReportCaller,
	}
}
