package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlConfig = `
[paths]
data_dir = "/data/comics"
models_dir = "/data/models"

[detection]
method = "edge"
min_frame_width = 80
min_frame_height = 120

[logging]
level = "debug"

[cache]
base_dir = "/data/cache"

[cache.frame]
enabled = true
max_size_mb = 250
ttl_seconds = 3600
`

const yamlConfig = `
paths:
  data_dir: /data/comics
detection:
  method: edge
  min_frame_width: 80
logging:
  level: warn
`

func TestLoadFromReader_TOML(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(tomlConfig), "toml")
	require.NoError(t, err)

	assert.Equal(t, "/data/comics", cfg.Paths.DataDir)
	assert.Equal(t, "/data/models", cfg.Paths.ModelsDir)
	assert.Equal(t, "edge", cfg.Detection.Method)
	assert.Equal(t, 80, cfg.Detection.MinFrameWidth)
	assert.Equal(t, 120, cfg.Detection.MinFrameHeight)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/data/cache", cfg.Cache.BaseDir)
	assert.Equal(t, int64(250), cfg.Cache.Frame.MaxSizeMB)

	// Values absent from the file keep their defaults
	assert.Equal(t, int64(2000), cfg.Cache.Model.MaxSizeMB)
	assert.Equal(t, 100, cfg.Cache.Memory.MaxEntries)
}

func TestLoadFromReader_YAML(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(yamlConfig), "yaml")
	require.NoError(t, err)

	assert.Equal(t, "/data/comics", cfg.Paths.DataDir)
	assert.Equal(t, "edge", cfg.Detection.Method)
	assert.Equal(t, 80, cfg.Detection.MinFrameWidth)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromReader_InvalidSyntax(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("{not toml"), "toml")
	require.Error(t, err)

	_, err = LoadFromReader(strings.NewReader("[unclosed"), "yaml")
	require.Error(t, err)
}

func TestLoad_PicksFormatByExtension(t *testing.T) {
	dir := t.TempDir()

	tomlPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(tomlConfig), 0o600))
	cfg, err := Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "/data/comics", cfg.Paths.DataDir)

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlConfig), 0o600))
	cfg, err = Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("COMICFRAMES_TEST_DIR", "/expanded/path")

	content := `
[paths]
data_dir = "${COMICFRAMES_TEST_DIR}/comics"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/expanded/path/comics", cfg.Paths.DataDir)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("COMICFRAMES_DATA_DIR", "/env/data")
	t.Setenv("COMICFRAMES_DETECTION_METHOD", "edge")
	t.Setenv("COMICFRAMES_MIN_WIDTH", "90")
	t.Setenv("COMICFRAMES_ENABLE_CACHE", "false")
	t.Setenv("COMICFRAMES_LOG_LEVEL", "error")

	cfg := FromEnv()

	assert.Equal(t, "/env/data", cfg.Paths.DataDir)
	assert.Equal(t, "edge", cfg.Detection.Method)
	assert.Equal(t, 90, cfg.Detection.MinFrameWidth)
	assert.False(t, cfg.Cache.Frame.Enabled)
	assert.False(t, cfg.Cache.Model.Enabled)
	assert.False(t, cfg.Cache.Processing.Enabled)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestApplyEnvOverrides_IgnoresBadInt(t *testing.T) {
	t.Setenv("COMICFRAMES_MIN_WIDTH", "not-a-number")

	cfg := FromEnv()
	assert.Equal(t, Default(".").Detection.MinFrameWidth, cfg.Detection.MinFrameWidth)
}

func TestConfigValidate(t *testing.T) {
	cfg := Default(t.TempDir())
	require.NoError(t, cfg.Validate())

	cfg.Detection.Method = "magic"
	require.Error(t, cfg.Validate())

	cfg = Default(t.TempDir())
	cfg.Paths.DataDir = ""
	require.Error(t, cfg.Validate())

	cfg = Default(t.TempDir())
	cfg.Detection.MinFrameWidth = -1
	require.Error(t, cfg.Validate())
}

func TestDetectionConfig_GetEffectiveMethod(t *testing.T) {
	d := DetectionConfig{}
	assert.Equal(t, MethodThreshold, d.GetEffectiveMethod())

	d.Method = MethodEdge
	assert.Equal(t, MethodEdge, d.GetEffectiveMethod())
}

func TestLoggingConfig_ParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		l := LoggingConfig{Level: tt.level}
		assert.Equal(t, tt.want, l.ParseLevel(), "level %q", tt.level)
	}
}

func TestRuntime(t *testing.T) {
	first := Default(".")
	rt := NewRuntime(first)
	assert.Same(t, first, rt.Get())

	second := Default("/elsewhere")
	rt.Store(second)
	assert.Same(t, second, rt.Get())
}
