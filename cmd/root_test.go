package cmd

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout runs fn and returns what it printed.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func resetFlags(t *testing.T) {
	t.Helper()
	configFile, claudeHome, groveConfig = "", "", ""
	t.Cleanup(func() { configFile, claudeHome, groveConfig = "", "", "" })
}

func TestStandardFlagsReachConfig(t *testing.T) {
	resetFlags(t)
	t.Setenv("GROVE_LOG_LEVEL", "")
	t.Setenv("CLAUDE_HOME", "")

	grovePath := filepath.Join(t.TempDir(), "grove.yml")
	require.NoError(t, os.WriteFile(grovePath, []byte(`
version: "1.0"
agconsole:
  claude_home: /srv/agent
  server:
    port: 4567
`), 0o644))

	root := NewRootCmd()
	root.SetArgs([]string{"-c", grovePath, "--verbose", "version"})
	captureStdout(t, func() { require.NoError(t, root.Execute()) })

	assert.Equal(t, grovePath, groveConfig)
	assert.Equal(t, "debug", os.Getenv("GROVE_LOG_LEVEL"))

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 4567, cfg.Server.Port)
	assert.Equal(t, "/srv/agent", cfg.ClaudeHome)
}

func TestMissingGroveConfigFails(t *testing.T) {
	resetFlags(t)

	root := NewRootCmd()
	root.SetArgs([]string{"-c", filepath.Join(t.TempDir(), "missing.yml"), "list"})
	root.SilenceUsage = true
	root.SilenceErrors = true
	assert.Error(t, root.Execute())
}

func TestVersionJSON(t *testing.T) {
	resetFlags(t)

	root := NewRootCmd()
	root.SetArgs([]string{"version", "--json"})
	out := captureStdout(t, func() { require.NoError(t, root.Execute()) })

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	for _, key := range []string{"version", "commit", "branch", "buildDate", "goVersion", "platform"} {
		assert.Contains(t, info, key)
	}
}
