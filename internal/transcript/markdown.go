package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Header is the metadata block printed above an exported conversation.
type Header struct {
	SessionID   string
	ProjectPath string
	CreatedAt   string
}

// hiddenTypes are bookkeeping records that never appear in an export.
var hiddenTypes = map[string]bool{
	"queue-operation":       true,
	"progress":              true,
	"file-history-snapshot": true,
}

// Visible reports whether a record belongs in a rendered conversation.
func (r Record) Visible() bool {
	return !hiddenTypes[r.Type] && !r.IsMeta
}

// RenderMarkdown renders a transcript as a Markdown document: a heading, a
// metadata list, then one section per visible record in file order.
func RenderMarkdown(h Header, records []Record) string {
	var md strings.Builder
	md.WriteString("# Claude Session\n\n")
	fmt.Fprintf(&md, "- **Session ID**: `%s`\n", h.SessionID)
	fmt.Fprintf(&md, "- **Project**: `%s`\n", h.ProjectPath)
	fmt.Fprintf(&md, "- **Created**: %s\n", h.CreatedAt)
	fmt.Fprintf(&md, "- **Messages**: %d\n\n", len(records))
	md.WriteString("---\n\n")
	md.WriteString("## Conversation\n\n")

	for _, rec := range records {
		if !rec.Visible() {
			continue
		}

		text := strings.TrimSpace(recordText(rec))
		if text == "" {
			continue
		}

		if rec.role() == "user" {
			md.WriteString("### 👤 User\n\n")
		} else {
			md.WriteString("### 🤖 Assistant\n\n")
		}
		md.WriteString(text)
		md.WriteString("\n\n---\n\n")
	}

	return md.String()
}

var (
	htmlRenderer     goldmark.Markdown
	htmlRendererOnce sync.Once
)

func markdownToHTML() goldmark.Markdown {
	htmlRendererOnce.Do(func() {
		htmlRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return htmlRenderer
}

// RenderHTML renders the Markdown export as a standalone HTML page.
func RenderHTML(h Header, records []Record) ([]byte, error) {
	var body bytes.Buffer
	if err := markdownToHTML().Convert([]byte(RenderMarkdown(h, records)), &body); err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>Claude Session %s</title>\n", h.SessionID)
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

func (r Record) role() string {
	if r.Message != nil && r.Message.Role != "" {
		return r.Message.Role
	}
	return r.Type
}

func recordText(rec Record) string {
	if rec.Message == nil {
		return ""
	}
	if len(rec.Message.Blocks) == 0 {
		return rec.Message.Text
	}

	var text strings.Builder
	for _, block := range rec.Message.Blocks {
		switch block.Kind {
		case BlockText:
			text.WriteString(block.Text)
			text.WriteString("\n")
		case BlockToolUse:
			fmt.Fprintf(&text, "\n### Tool: %s\n", block.ToolName)
			text.WriteString("```json\n")
			text.WriteString(prettyJSON(block.Input))
			text.WriteString("\n```\n")
		case BlockToolResult:
			text.WriteString("\n**Tool Result**:\n")
			text.WriteString(block.Result)
			text.WriteString("\n")
		}
	}
	return text.String()
}

// prettyJSON indents raw JSON with two spaces, preserving key order.
func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}
