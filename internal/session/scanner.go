package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/grovetools/core/logging"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	indexFileName = "sessions-index.json"
	transcriptExt = ".jsonl"

	// isoMillis matches the timestamps the agent itself writes.
	isoMillis = "2006-01-02T15:04:05.000Z07:00"

	maxFirstLineSize = 1024 * 1024 // 1MB
)

// sessionIndex is the precomputed sessions-index.json of a project directory.
type sessionIndex struct {
	Version      int                 `json:"version"`
	Entries      []sessionIndexEntry `json:"entries"`
	OriginalPath string              `json:"originalPath"`
}

type sessionIndexEntry struct {
	SessionID    string `json:"sessionId"`
	FullPath     string `json:"fullPath"`
	FileMtime    int64  `json:"fileMtime"`
	FirstPrompt  string `json:"firstPrompt"`
	Summary      string `json:"summary"`
	MessageCount int    `json:"messageCount"`
	Created      string `json:"created"`
	Modified     string `json:"modified"`
	GitBranch    string `json:"gitBranch"`
	ProjectPath  string `json:"projectPath"`
	IsSidechain  bool   `json:"isSidechain"`
}

// Scanner builds Project records from project directories on disk.
type Scanner struct {
	log *logrus.Entry
}

// NewScanner creates a new project scanner.
func NewScanner() *Scanner {
	return &Scanner{log: logging.NewLogger("agconsole.scanner")}
}

// ScanRoot reads every project directory under root, skipping projects that
// fail to read or contain no sessions.
func (s *Scanner) ScanRoot(root string) []Project {
	projects := []Project{}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.WithError(err).WithField("root", root).Warn("Failed to read session root")
		}
		return projects
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		project, ok := s.ReadProject(filepath.Join(root, entry.Name()))
		if !ok || len(project.Sessions) == 0 {
			continue
		}
		projects = append(projects, *project)
	}
	return projects
}

// ReadProject produces the Project for one directory, from its session index
// when present or by listing its transcripts otherwise. Any failure yields
// false so that one broken project never aborts a listing.
func (s *Scanner) ReadProject(dir string) (*Project, bool) {
	encoded := filepath.Base(dir)
	if !ValidProjectDir(encoded) {
		return nil, false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.WithError(err).WithField("dir", dir).Debug("Skipping unreadable project")
		return nil, false
	}

	var project *Project
	indexPath := filepath.Join(dir, indexFileName)
	if _, err := os.Stat(indexPath); err == nil {
		project, err = s.readIndex(indexPath, encoded, entries)
		if err != nil {
			s.log.WithError(err).WithField("index", indexPath).Warn("Skipping project with unreadable session index")
			return nil, false
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		project = s.scanTranscripts(dir, encoded, entries)
	} else {
		return nil, false
	}

	sortNewestFirst(project.Sessions)
	return project, true
}

// readIndex maps index entries to summaries, keeping the stored timestamps.
// Entries whose transcript is no longer on disk are dropped so that deletions
// show up before the agent rewrites its index.
func (s *Scanner) readIndex(indexPath, encoded string, entries []os.DirEntry) (*Project, error) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, err
	}
	var index sessionIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), transcriptExt) {
			present[strings.TrimSuffix(e.Name(), transcriptExt)] = true
		}
	}

	sessions := make([]SessionSummary, 0, len(index.Entries))
	for _, entry := range index.Entries {
		if !ValidSessionID(entry.SessionID) || !present[entry.SessionID] {
			continue
		}
		sessions = append(sessions, SessionSummary{
			ID:           entry.SessionID,
			CreatedAt:    entry.Created,
			UpdatedAt:    entry.Modified,
			MessageCount: entry.MessageCount,
		})
	}

	return &Project{
		Path:        index.OriginalPath,
		EncodedPath: encoded,
		Sessions:    sessions,
	}, nil
}

// scanTranscripts is the slow path used when a project has no index. Message
// counts are left at zero: counting would mean reading every transcript in
// full on every listing.
func (s *Scanner) scanTranscripts(dir, encoded string, entries []os.DirEntry) *Project {
	project := &Project{EncodedPath: encoded, Sessions: []SessionSummary{}}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, transcriptExt) {
			continue
		}
		id := strings.TrimSuffix(name, transcriptExt)
		if !ValidSessionID(id) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		updated := formatTime(info.ModTime())
		created := updated
		first := peekFirstLine(filepath.Join(dir, name))
		if ts := first.Get("timestamp"); ts.Type == gjson.String {
			if _, err := time.Parse(time.RFC3339Nano, ts.Str); err == nil {
				created = ts.Str
			}
		}
		if project.Path == "" {
			if cwd := first.Get("cwd"); cwd.Type == gjson.String && cwd.Str != "" {
				project.Path = cwd.Str
			}
		}

		project.Sessions = append(project.Sessions, SessionSummary{
			ID:        id,
			CreatedAt: created,
			UpdatedAt: updated,
		})
	}

	if project.Path == "" {
		project.Path = decodeProjectPath(encoded)
	}
	return project
}

// peekFirstLine parses only the first line of a transcript. Any failure
// yields an empty result.
func peekFirstLine(path string) gjson.Result {
	file, err := os.Open(path)
	if err != nil {
		return gjson.Result{}
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxFirstLineSize)
	if !scanner.Scan() {
		return gjson.Result{}
	}
	line := scanner.Bytes()
	if !gjson.ValidBytes(line) {
		return gjson.Result{}
	}
	return gjson.ParseBytes(line)
}

// decodeProjectPath reverses the agent's directory encoding, which replaces
// path separators with hyphens. Hyphens in the original path are lost.
func decodeProjectPath(encoded string) string {
	return strings.ReplaceAll(encoded, "-", "/")
}

func sortNewestFirst(sessions []SessionSummary) {
	sort.SliceStable(sessions, func(i, j int) bool {
		ti, errI := time.Parse(time.RFC3339Nano, sessions[i].UpdatedAt)
		tj, errJ := time.Parse(time.RFC3339Nano, sessions[j].UpdatedAt)
		if errI != nil || errJ != nil {
			return sessions[i].UpdatedAt > sessions[j].UpdatedAt
		}
		return ti.After(tj)
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
