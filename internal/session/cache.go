package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grovetools/agentconsole/internal/transcript"
	"github.com/grovetools/core/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound covers malformed identifiers, absent transcripts and
	// unreadable transcripts alike, so callers learn nothing about the filesystem.
	ErrNotFound = errors.New("session not found")

	// ErrDeleteFailed is returned when a transcript exists but cannot be removed.
	ErrDeleteFailed = errors.New("failed to delete session")
)

const (
	DefaultTTL        = 5 * time.Second
	DefaultMaxEntries = 100

	projectsKey = "projects"
)

// Options tunes a Cache. Zero values select the defaults.
type Options struct {
	TTL        time.Duration
	MaxEntries int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Cache serves project listings and parsed transcripts from memory for a
// short TTL so that large append-only transcripts are not re-parsed on every
// request. It does not watch the filesystem; explicit invalidation covers
// deletions made through it.
type Cache struct {
	root    string
	scanner *Scanner
	ttl     time.Duration
	now     func() time.Time
	log     *logrus.Entry

	mu       sync.Mutex
	projects *boundedStore[[]Project]
	details  *boundedStore[cachedDetail]
	// epoch advances on every invalidation. A read that started in an older
	// epoch must not populate the cache.
	epoch uint64

	scanGroup singleflight.Group
	scans     atomic.Int64
}

// NewCache creates a cache over the project directories in root.
func NewCache(root string, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		root:     filepath.Clean(root),
		scanner:  NewScanner(),
		ttl:      opts.TTL,
		now:      opts.Now,
		log:      logging.NewLogger("agconsole.cache"),
		projects: newBoundedStore[[]Project](opts.MaxEntries),
		details:  newBoundedStore[cachedDetail](opts.MaxEntries),
	}
}

// Root returns the session root directory.
func (c *Cache) Root() string {
	return c.root
}

func (c *Cache) fresh(cachedAt time.Time) bool {
	return c.now().Sub(cachedAt) < c.ttl
}

// ListProjects returns every non-empty project. Results are shared between
// callers and must not be modified. Concurrent misses share one scan. A scan
// that finds nothing does not replace a previous listing, and that listing is
// returned instead so a transient empty read does not blank the UI.
func (c *Cache) ListProjects() []Project {
	if projects, ok := c.cachedProjects(); ok {
		return projects
	}

	v, _, _ := c.scanGroup.Do(projectsKey, func() (interface{}, error) {
		// Double-check: another caller may have finished a scan meanwhile.
		if projects, ok := c.cachedProjects(); ok {
			return projects, nil
		}

		c.mu.Lock()
		epoch := c.epoch
		c.mu.Unlock()

		startedAt := c.now()
		projects := c.scanner.ScanRoot(c.root)
		c.scans.Add(1)

		c.mu.Lock()
		defer c.mu.Unlock()
		if len(projects) == 0 {
			if previous, ok := c.projects.get(projectsKey); ok {
				return previous.value, nil
			}
			return projects, nil
		}
		if c.epoch == epoch {
			c.projects.put(projectsKey, projects, startedAt)
		}
		return projects, nil
	})
	return v.([]Project)
}

func (c *Cache) cachedProjects() ([]Project, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.projects.get(projectsKey); ok && c.fresh(e.cachedAt) {
		return e.value, true
	}
	return nil, false
}

// cachedDetail is a parsed transcript and the file state it was parsed from.
type cachedDetail struct {
	detail  *SessionDetail
	modTime time.Time
	size    int64
}

// unchanged reports whether the file still has the mtime and size observed
// when it was read. The mtime comes from a coarser clock than time.Now, so it
// is only ever compared to another mtime.
func (d cachedDetail) unchanged(info os.FileInfo) bool {
	return info.ModTime().Equal(d.modTime) && info.Size() == d.size
}

// GetSessionDetail returns the parsed transcript of one session. A cached
// transcript is served while its TTL holds, and past the TTL as long as the
// file has not been modified since it was read.
func (c *Cache) GetSessionDetail(project, sessionID string) (*SessionDetail, error) {
	path, ok := transcriptPath(c.root, project, sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	key := project + "/" + sessionID

	c.mu.Lock()
	e, hit := c.details.get(key)
	epoch := c.epoch
	c.mu.Unlock()

	if hit {
		if c.fresh(e.cachedAt) {
			return e.value.detail, nil
		}
		info, err := os.Stat(path)
		if err == nil && e.value.unchanged(info) {
			return e.value.detail, nil
		}
	}

	startedAt := c.now()
	read, err := c.readDetail(path, project, sessionID)
	if err != nil {
		if hit {
			c.mu.Lock()
			c.details.remove(key)
			c.mu.Unlock()
		}
		return nil, err
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.details.put(key, read, startedAt)
	}
	c.mu.Unlock()
	return read.detail, nil
}

// readDetail stats before parsing, so a write racing the read leaves the
// recorded state older than the file and forces the next lookup to re-read.
func (c *Cache) readDetail(path, project, sessionID string) (cachedDetail, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return cachedDetail{}, ErrNotFound
	}

	records, err := transcript.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.log.WithError(err).WithFields(logrus.Fields{
				"project": project,
				"session": sessionID,
			}).Warn("Failed to parse transcript")
		}
		return cachedDetail{}, ErrNotFound
	}

	createdAt := formatTime(info.ModTime())
	if len(records) > 0 && records[0].Timestamp != "" {
		createdAt = records[0].Timestamp
	}

	return cachedDetail{
		detail: &SessionDetail{
			ID:          sessionID,
			ProjectPath: filepath.Dir(path),
			CreatedAt:   createdAt,
			Messages:    records,
		},
		modTime: info.ModTime(),
		size:    info.Size(),
	}, nil
}

// InvalidateSession drops a session's cached transcript and marks the project
// listing stale, so the next read of either reflects the filesystem.
func (c *Cache) InvalidateSession(project, sessionID string) {
	c.mu.Lock()
	c.epoch++
	c.details.remove(project + "/" + sessionID)
	c.projects.remove(projectsKey)
	c.mu.Unlock()

	// A scan already in flight may predate the invalidation.
	c.scanGroup.Forget(projectsKey)
}

// DeleteSession removes a transcript from disk and invalidates it.
func (c *Cache) DeleteSession(project, sessionID string) error {
	path, ok := transcriptPath(c.root, project, sessionID)
	if !ok {
		return ErrNotFound
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ErrNotFound
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		c.log.WithError(err).WithFields(logrus.Fields{
			"project": project,
			"session": sessionID,
		}).Error("Failed to delete transcript")
		return fmt.Errorf("%w: %s/%s", ErrDeleteFailed, project, sessionID)
	}

	c.InvalidateSession(project, sessionID)
	c.log.WithFields(logrus.Fields{
		"project": project,
		"session": sessionID,
	}).Info("Deleted session")
	return nil
}

// GetProjectByPath reads one project directory directly, bypassing and
// leaving untouched the shared cache. The directory must sit directly under
// the session root.
func (c *Cache) GetProjectByPath(path string) (*Project, bool) {
	dir := filepath.Clean(path)
	if filepath.Dir(dir) != c.root {
		return nil, false
	}
	return c.scanner.ReadProject(dir)
}

// Stats reports cache occupancy and the number of root scans performed.
type Stats struct {
	Projects int   `json:"projects"`
	Details  int   `json:"details"`
	Scans    int64 `json:"scans"`
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Projects: c.projects.len(),
		Details:  c.details.len(),
		Scans:    c.scans.Load(),
	}
}
