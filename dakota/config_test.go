package dakota

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigEmptyFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dakota.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverlaysProvidedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dakota.toml")
	require.NoError(t, os.WriteFile(path, []byte("[window]\ntitle = \"custom\"\nwidth = 640\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Window.Title)
	assert.Equal(t, int32(640), cfg.Window.Width)
	assert.Equal(t, DefaultConfig().Window.Height, cfg.Window.Height)
	assert.Equal(t, DefaultConfig().Font, cfg.Font)
}

func TestLoadConfigMissingFileReturnsError(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dakota.toml")

	cfg := DefaultConfig()
	cfg.Window.Title = "roundtrip"
	cfg.Window.Width = 800
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestMustLoadConfigFallsBackOnError(t *testing.T) {
	cfg := MustLoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Equal(t, DefaultConfig(), cfg)
}
