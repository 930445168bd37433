package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrAmbiguous is returned when a session-ID prefix matches more than one session.
var ErrAmbiguous = errors.New("session spec is ambiguous")

// minPrefixLen is the shortest session-ID prefix Resolve accepts.
const minPrefixLen = 4

// Ref identifies one transcript by project directory and session ID.
type Ref struct {
	Project   string `json:"project"`
	SessionID string `json:"sessionId"`
}

// Resolve finds a session from a spec, which can be a transcript file path,
// a full session ID, or a unique session-ID prefix. The file path is tried
// first because it needs no scan.
func (c *Cache) Resolve(spec string) (Ref, error) {
	if strings.HasSuffix(spec, transcriptExt) {
		abs, err := filepath.Abs(spec)
		if err == nil && filepath.Dir(filepath.Dir(abs)) == c.root {
			ref := Ref{
				Project:   filepath.Base(filepath.Dir(abs)),
				SessionID: strings.TrimSuffix(filepath.Base(abs), transcriptExt),
			}
			if ValidProjectDir(ref.Project) && ValidSessionID(ref.SessionID) {
				return ref, nil
			}
		}
		return Ref{}, fmt.Errorf("%w: %s", ErrNotFound, spec)
	}

	var matches []Ref
	for _, p := range c.ListProjects() {
		for _, s := range p.Sessions {
			if s.ID == spec {
				return Ref{Project: p.EncodedPath, SessionID: s.ID}, nil
			}
			if len(spec) >= minPrefixLen && strings.HasPrefix(s.ID, spec) {
				matches = append(matches, Ref{Project: p.EncodedPath, SessionID: s.ID})
			}
		}
	}

	switch len(matches) {
	case 0:
		return Ref{}, fmt.Errorf("%w: %s", ErrNotFound, spec)
	case 1:
		return matches[0], nil
	}
	return Ref{}, fmt.Errorf("%w: %s matches %d sessions", ErrAmbiguous, spec, len(matches))
}
