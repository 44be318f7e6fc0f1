package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCommand builds a command carrying the global flags, parsed from args.
func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{Use: "test"}
	pf := cmd.PersistentFlags()
	pf.String("log-level", "info", "")
	pf.String("log-format", "text", "")
	pf.Bool("no-color", false, "")
	pf.BoolP("quiet", "q", false, "")

	require.NoError(t, cmd.ParseFlags(args))

	return cmd
}

// ---------------------------------------------------------------------------
// Defaults and validation
// ---------------------------------------------------------------------------

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.False(t, cfg.NoColor)
	assert.False(t, cfg.Quiet)
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "trace"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestEffectiveLogLevel_Quiet(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = LogLevelDebug
	cfg.Quiet = true

	assert.Equal(t, LogLevelError, cfg.EffectiveLogLevel())

	cfg.Quiet = false
	assert.Equal(t, LogLevelDebug, cfg.EffectiveLogLevel())
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	cmd := newTestCommand(t)

	cfg, err := Load(cmd, "")
	require.NoError(t, err)

	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	cmd := newTestCommand(t, "--log-level", "debug", "--log-format", "json", "--quiet")

	cfg, err := Load(cmd, "")
	require.NoError(t, err)

	assert.Equal(t, LogLevelDebug, cfg.LogLevel)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.True(t, cfg.Quiet)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log-level: warn\nno-color: true\n"), 0o644))

	cmd := newTestCommand(t)

	cfg, err := Load(cmd, path)
	require.NoError(t, err)

	assert.Equal(t, LogLevelWarn, cfg.LogLevel)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	cmd := newTestCommand(t)

	_, err := Load(cmd, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidValueFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log-level: trace\n"), 0o644))

	cmd := newTestCommand(t)

	_, err := Load(cmd, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoad_EnvVariable(t *testing.T) {
	t.Setenv("XMANGLE_LOG_LEVEL", "error")

	cmd := newTestCommand(t)

	cfg, err := Load(cmd, "")
	require.NoError(t, err)

	assert.Equal(t, LogLevelError, cfg.LogLevel)
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

func TestContext_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = LogLevelDebug

	ctx := NewContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	cfg := FromContext(context.Background())
	assert.Equal(t, Default(), cfg)
}
