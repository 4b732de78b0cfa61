package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}

	assert.Equal(t, DefaultPort, cfg.Server.GetPort())
	assert.Equal(t, DefaultMetricsPort, cfg.Server.GetMetricsPort())
	assert.Equal(t, DefaultPassphrase, cfg.Server.GetPassphrase())
	assert.Equal(t, DefaultIdleTimeout, cfg.Server.GetIdleTimeout())
	assert.Equal(t, DefaultIP, cfg.Client.GetIP())
	assert.Equal(t, DefaultPort, cfg.Client.GetPort())
	assert.Equal(t, DefaultFrameRate, cfg.Client.GetFrameRate())
	assert.Equal(t, DefaultInterpRate, cfg.Client.GetInterpRate())
	assert.Equal(t, DefaultTickRate, cfg.Sim.GetTickRate())
	assert.Equal(t, DefaultMoveSpeed, cfg.Sim.GetMoveSpeed())
}

func TestConfig_EnvFallback(t *testing.T) {
	t.Setenv("MOVESYNC_PORT", "6000")
	t.Setenv("MOVESYNC_PASSPHRASE", "env-secret")
	t.Setenv("MOVESYNC_IP", "10.0.0.1")

	cfg := &Config{}
	assert.Equal(t, 6000, cfg.Server.GetPort())
	assert.Equal(t, "env-secret", cfg.Server.GetPassphrase())
	assert.Equal(t, "10.0.0.1", cfg.Client.GetIP())

	// Явное значение конфига перекрывает ENV
	cfg.Server.Port = 7000
	assert.Equal(t, 7000, cfg.Server.GetPort())
}

func TestConfig_BadEnvIgnored(t *testing.T) {
	t.Setenv("MOVESYNC_PORT", "not-a-port")

	cfg := &Config{}
	assert.Equal(t, DefaultPort, cfg.Server.GetPort())
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movesync.yml")
	data := []byte(`
server:
  port: 9000
  passphrase: file-secret
sim:
  tick_rate: 32
  move_speed: 50
client:
  interp_rate: 20
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.GetPort())
	assert.Equal(t, "file-secret", cfg.Server.GetPassphrase())
	assert.Equal(t, 32, cfg.Sim.GetTickRate())
	assert.Equal(t, 50.0, cfg.Sim.GetMoveSpeed())
	assert.Equal(t, 20.0, cfg.Client.GetInterpRate())
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("MOVESYNC_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Server.GetPort())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/movesync.yml")
	assert.Error(t, err)
}
