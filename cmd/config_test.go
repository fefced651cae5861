package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/board/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	setDefaults()
	viper.Set("state_dir", dir)
	viper.Set("db_path", filepath.Join(dir, "board.db"))

	// Initialize output
	ui = output.New()
	configForce = false

	// Fresh store per test, opened lazily by getStore.
	t.Cleanup(func() {
		if dataStore != nil {
			_ = dataStore.Close()
			dataStore = nil
		}
	})

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "board configuration")
	assert.Contains(t, string(data), "velocity_window: 5")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "board configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_WithFile(t *testing.T) {
	testEnv(t)
	require.NoError(t, configInitRun())

	var buf bytes.Buffer
	ui.Out = &buf
	require.NoError(t, configShowRun())

	out := buf.String()
	assert.Regexp(t, `serve\.port\s+8080\s+\(file\)`, out)
	assert.Regexp(t, `db_path\s+\S+board\.db\s+\(default\)`, out)
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)
	t.Setenv("EDITOR", "")
	t.Setenv("VISUAL", "")

	err := configEditRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)
	t.Setenv("EDITOR", "true")

	err := configEditRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "board config init")
}

func TestConfigEdit_RunsEditor(t *testing.T) {
	testEnv(t)
	t.Setenv("EDITOR", "true")
	require.NoError(t, configInitRun())

	assert.NoError(t, configEditRun())
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"serve.port": true, "log.level": true}

	t.Setenv("BOARD_LOG_LEVEL", "debug")
	assert.Equal(t, "(env: BOARD_LOG_LEVEL)", detectSource("log.level", fileValues))
	assert.Equal(t, "(file)", detectSource("serve.port", fileValues))
	assert.Equal(t, "(default)", detectSource("db_path", fileValues))
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"nested": map[string]any{
			"a": "1",
			"b": "2",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["nested.a"])
	assert.True(t, result["nested.b"])
	assert.False(t, result["nested"])
}

func TestEnvVarFor(t *testing.T) {
	assert.Equal(t, "BOARD_DB_PATH", envVarFor("db_path"))
	assert.Equal(t, "BOARD_SERVE_ALLOWED_ORIGINS", envVarFor("serve.allowed_origins"))
}

func TestConfigInit_RendersOrigins(t *testing.T) {
	dir := testEnv(t)
	viper.Set("serve.allowed_origins", []string{"https://a.example", "https://b.example"})
	configForce = true
	t.Cleanup(func() { configForce = false })

	require.NoError(t, configInitRun())

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `allowed_origins: ["https://a.example", "https://b.example"]`)
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	newLogger(&buf, "nonsense", "text").Debug("dropped")
	assert.Empty(t, buf.String())
}
