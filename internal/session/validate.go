package session

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	projectDirPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	sessionIDPattern  = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// ValidProjectDir reports whether name is an acceptable encoded project
// directory: letters, digits, underscore and hyphen only.
func ValidProjectDir(name string) bool {
	return projectDirPattern.MatchString(name) && !hasTraversal(name)
}

// ValidSessionID reports whether id is a canonical 8-4-4-4-12 hex UUID.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id) && !hasTraversal(id)
}

func hasTraversal(s string) bool {
	return strings.Contains(s, "..") || strings.ContainsAny(s, `/\`)
}

// transcriptPath joins root, project and session into a transcript path.
// It is the only place user-supplied identifiers become path components.
func transcriptPath(root, project, sessionID string) (string, bool) {
	if !ValidProjectDir(project) || !ValidSessionID(sessionID) {
		return "", false
	}
	return filepath.Join(root, project, sessionID+transcriptExt), true
}
