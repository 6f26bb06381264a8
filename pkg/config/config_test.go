package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Signal.Address)
	assert.Equal(t, 100*time.Millisecond, cfg.Broadcast.FrameInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
signal:
  address: ":9000"
logging:
  level: debug
discovery:
  probe_timeout: 250ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Signal.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Discovery.ProbeTimeout)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8090", cfg.Broadcast.Address)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("signal: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Signal.Address = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Broadcast.FrameInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.WebRTC.ForceRelay = true
	assert.Error(t, cfg.Validate(), "force relay without a TURN server is unusable")
	cfg.WebRTC.TURN.URL = "turn:turn.example.com:3478"
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Discovery.ProbePorts = []int{0}
	assert.Error(t, cfg.Validate())
}
