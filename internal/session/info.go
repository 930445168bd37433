package session

import "github.com/grovetools/agentconsole/internal/transcript"

// SessionSummary holds the listing metadata of one transcript.
type SessionSummary struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
	MessageCount int    `json:"messageCount"`
}

// Project is one directory of session transcripts.
type Project struct {
	Path        string           `json:"path"`
	EncodedPath string           `json:"encodedPath"`
	Sessions    []SessionSummary `json:"sessions"`
}

// SessionDetail is a fully parsed transcript.
type SessionDetail struct {
	ID          string              `json:"id"`
	ProjectPath string              `json:"projectPath"`
	CreatedAt   string              `json:"createdAt"`
	Messages    []transcript.Record `json:"messages"`
}

// Header returns the export metadata for the transcript.
func (d *SessionDetail) Header() transcript.Header {
	return transcript.Header{
		SessionID:   d.ID,
		ProjectPath: d.ProjectPath,
		CreatedAt:   d.CreatedAt,
	}
}
