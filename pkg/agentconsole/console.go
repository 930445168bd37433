// Package agentconsole is the embeddable API for reading, exporting, and
// watching agent session transcripts.
package agentconsole

import (
	"context"
	"path/filepath"
	"time"

	"github.com/grovetools/agentconsole/internal/session"
	"github.com/grovetools/agentconsole/internal/watcher"
)

type (
	Project        = session.Project
	SessionSummary = session.SessionSummary
	SessionDetail  = session.SessionDetail
	Rendered       = session.Rendered
	Event          = watcher.Event
)

// ErrNotFound is returned for invalid identifiers and missing transcripts.
var ErrNotFound = session.ErrNotFound

// Options tunes the session cache and the change watcher.
type Options struct {
	TTL          time.Duration
	MaxEntries   int
	SettleWindow time.Duration
}

// Console reads sessions under one agent home directory.
type Console struct {
	home  string
	opts  Options
	cache *session.Cache
}

// Open returns a console for the agent home directory (usually ~/.claude).
func Open(claudeHome string, opts Options) *Console {
	home := filepath.Clean(claudeHome)
	return &Console{
		home: home,
		opts: opts,
		cache: session.NewCache(filepath.Join(home, "projects"), session.Options{
			TTL:        opts.TTL,
			MaxEntries: opts.MaxEntries,
		}),
	}
}

// ListProjects returns every project and its sessions, most recent first.
func (c *Console) ListProjects() []Project {
	return c.cache.ListProjects()
}

// GetSession returns the parsed transcript of one session.
func (c *Console) GetSession(project, sessionID string) (*SessionDetail, error) {
	return c.cache.GetSessionDetail(project, sessionID)
}

// Export renders one session as markdown, json, or html.
func (c *Console) Export(project, sessionID, format string) (Rendered, error) {
	detail, err := c.cache.GetSessionDetail(project, sessionID)
	if err != nil {
		return Rendered{}, err
	}
	return session.Export(detail, format)
}

// Delete removes one session transcript.
func (c *Console) Delete(project, sessionID string) error {
	return c.cache.DeleteSession(project, sessionID)
}

// Watch calls fn for every change under the home directory until ctx is
// cancelled. fn runs on a single goroutine, in event order.
func (c *Console) Watch(ctx context.Context, fn func(Event)) error {
	w := watcher.New(watcher.Paths{
		SessionRoot:  filepath.Join(c.home, "projects"),
		SettingsFile: filepath.Join(c.home, "settings.json"),
		PluginsFile:  filepath.Join(c.home, "plugins", "installed_plugins.json"),
	}, watcher.Options{SettleWindow: c.opts.SettleWindow})
	defer w.Close()

	cancel := w.Subscribe(fn)
	defer cancel()
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
