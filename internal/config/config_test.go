package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egoscan/egoscan/internal/finder"
)

func TestDefaultConfig(t *testing.T) {
	c := Default()
	assert.Equal(t, "127.0.0.1:8000", c.Server.Listen)
	assert.Equal(t, "json", c.Output.Format)
	assert.True(t, c.Chrome.DisableImages)
	assert.NotEmpty(t, c.Finder.BaseURL)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chrome:
  headless: true
  remotePort: 9333
server:
  listen: "0.0.0.0:9000"
output:
  format: xlsx
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.True(t, c.Chrome.Headless)
	assert.Equal(t, 9333, c.Chrome.RemotePort)
	assert.Equal(t, "0.0.0.0:9000", c.Server.Listen)
	assert.Equal(t, "xlsx", c.Output.Format)
	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Finder.BaseURL, c.Finder.BaseURL)
}

func TestLoadParsesFinderTimeout(t *testing.T) {
	c, err := LoadFromBytes([]byte("finder:\n  resultsTimeout: 45s\n"))
	require.NoError(t, err)
	assert.Equal(t, finder.Duration(45*time.Second), c.Finder.ResultsTimeout)

	// A bare number is read as seconds.
	c, err = LoadFromBytes([]byte("finder:\n  resultsTimeout: 30\n"))
	require.NoError(t, err)
	assert.Equal(t, finder.Duration(30*time.Second), c.Finder.ResultsTimeout)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("EGOSCAN_LISTEN", "127.0.0.1:7777")

	c, err := LoadFromBytes([]byte("server:\n  listen: ${EGOSCAN_LISTEN}\n"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7777", c.Server.Listen)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("chrome: ["))
	assert.Error(t, err)
}
