package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/grovetools/agentconsole/internal/transcript"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Rendered is an exported transcript ready to be written or downloaded.
type Rendered struct {
	Body        []byte
	ContentType string
	Extension   string
}

// Filename is the suggested download name for the export.
func (r Rendered) Filename(sessionID string) string {
	return sessionID + "." + r.Extension
}

// ParseFormat normalizes a requested export format. Empty and unknown values
// fall back to markdown.
func ParseFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		return FormatJSON
	case FormatHTML:
		return FormatHTML
	case "md":
		return FormatMarkdown
	}
	return FormatMarkdown
}

// Export renders a session detail in the given format.
func Export(detail *SessionDetail, format string) (Rendered, error) {
	switch ParseFormat(format) {
	case FormatJSON:
		body, err := json.MarshalIndent(detail, "", "  ")
		if err != nil {
			return Rendered{}, fmt.Errorf("failed to encode session %s: %w", detail.ID, err)
		}
		return Rendered{Body: body, ContentType: "application/json", Extension: "json"}, nil

	case FormatHTML:
		body, err := transcript.RenderHTML(detail.Header(), detail.Messages)
		if err != nil {
			return Rendered{}, fmt.Errorf("failed to render session %s: %w", detail.ID, err)
		}
		return Rendered{Body: body, ContentType: "text/html; charset=utf-8", Extension: "html"}, nil
	}

	md := transcript.RenderMarkdown(detail.Header(), detail.Messages)
	return Rendered{Body: []byte(md), ContentType: "text/markdown; charset=utf-8", Extension: "md"}, nil
}
