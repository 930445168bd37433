package agentconsole

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionID = "5f0c8f8e-0d6b-4c8e-9a51-3f1b2d7c6e10"

func setupHome(t *testing.T) (string, string) {
	t.Helper()
	home := t.TempDir()
	project := filepath.Join(home, "projects", "-work-demo")
	require.NoError(t, os.MkdirAll(project, 0o755))
	lines := `{"type":"user","cwd":"/work/demo","timestamp":"2025-03-01T09:00:00.000Z","message":{"role":"user","content":"hello"}}
{"type":"assistant","timestamp":"2025-03-01T09:00:01.000Z","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}
`
	require.NoError(t, os.WriteFile(filepath.Join(project, sessionID+".jsonl"), []byte(lines), 0o644))
	return home, "-work-demo"
}

func TestConsoleReadExportDelete(t *testing.T) {
	home, project := setupHome(t)
	c := Open(home, Options{})

	projects := c.ListProjects()
	require.Len(t, projects, 1)
	assert.Equal(t, "/work/demo", projects[0].Path)
	require.Len(t, projects[0].Sessions, 1)
	assert.Equal(t, sessionID, projects[0].Sessions[0].ID)

	detail, err := c.GetSession(project, sessionID)
	require.NoError(t, err)
	assert.Len(t, detail.Messages, 2)

	md, err := c.Export(project, sessionID, "")
	require.NoError(t, err)
	assert.Equal(t, sessionID+".md", md.Filename(sessionID))
	assert.Contains(t, string(md.Body), "hello")

	_, err = c.Export(project, "not-a-uuid", "json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Delete(project, sessionID))
	_, err = c.GetSession(project, sessionID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.Delete(project, sessionID), ErrNotFound)
}

func TestConsoleWatch(t *testing.T) {
	home, project := setupHome(t)
	c := Open(home, Options{SettleWindow: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, func(ev Event) {
			select {
			case events <- ev:
			default:
			}
		})
	}()

	// Keep creating files until the watcher is up and reports one.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var got Event
	for i := 0; got.Path == ""; i++ {
		select {
		case got = <-events:
		case <-ticker.C:
			name := filepath.Join(home, "projects", project, fmt.Sprintf("note-%d.txt", i))
			require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
		case <-deadline:
			t.Fatal("no change event received")
		}
	}
	assert.Equal(t, "session-change", string(got.Category))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
