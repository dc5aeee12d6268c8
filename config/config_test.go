package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lynx.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
name = "test"
port = 9000
transport = "raknet"

[sim]
npc_count = 2

[log]
level = "debug"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Server.Name)
	assert.Equal(t, uint(9000), cfg.Server.Port)
	assert.Equal(t, TransportRakNet, cfg.Server.Transport)
	assert.Equal(t, 2, cfg.Sim.NPCCount)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, Default().Sim.PlayerSpeed, cfg.Sim.PlayerSpeed)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\ntransport = \"carrier-pigeon\"\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.MaxClients = 99
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Sim.NPCCount = -1
	assert.Error(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(LogConfig{Level: "warn"}, &buf)
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.Equal(t, logrus.InfoLevel, newLogger(LogConfig{Level: "nope"}, &buf).GetLevel())
}
