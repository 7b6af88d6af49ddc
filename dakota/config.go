package dakota

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
)

// PresentMode names a caller's preference for how the swapchain presents.
// No swapchain backend reads it: the VkSurface backend picks MAILBOX when
// the surface offers it and FIFO otherwise.
type PresentMode string

const (
	PresentModeFifo    PresentMode = "fifo"
	PresentModeMailbox PresentMode = "mailbox"
	PresentModeImmediate PresentMode = "immediate"
)

// WindowConfig holds window and swapchain defaults.
type WindowConfig struct {
	Title             string      `toml:"title"`
	Width             int32       `toml:"width"`
	Height            int32       `toml:"height"`
	PresentMode       PresentMode `toml:"present_mode"`
	ValidationLayers  bool        `toml:"validation_layers"`
	PreferredGPUIndex int         `toml:"preferred_gpu_index"`
}

// FontConfig holds defaults used when a scene document does not specify
// them explicitly for a given font.
type FontConfig struct {
	DefaultPixelSize uint32 `toml:"default_pixel_size"`
	SDFPadding       uint32 `toml:"sdf_padding"`
}

// Config is dakota's top-level configuration, loaded from TOML (ground:
// cogentcore-core's grows/tomls Open/Save pattern).
type Config struct {
	Window WindowConfig `toml:"window"`
	Font   FontConfig   `toml:"font"`
}

// DefaultConfig returns the configuration used when no file is loaded.
func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{
			Title:             "dakota",
			Width:             1024,
			Height:            768,
			PresentMode:       PresentModeFifo,
			ValidationLayers:  false,
			PreferredGPUIndex: 0,
		},
		Font: FontConfig{
			DefaultPixelSize: 16,
			SDFPadding:       4,
		},
	}
}

// LoadConfig reads a TOML configuration file, starting from DefaultConfig
// and overlaying whatever fields path sets.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("dakota: load config: %w", err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("dakota: load config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as TOML.
func SaveConfig(cfg Config, path string) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("dakota: save config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("dakota: save config: %w", err)
	}
	return nil
}

// MustLoadConfig loads path, falling back to DefaultConfig and logging the
// error when the file cannot be read or parsed.
func MustLoadConfig(path string) Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		logging.Error(err)
		return DefaultConfig()
	}
	return cfg
}
