package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/agentconsole/internal/formatters"
	"github.com/grovetools/agentconsole/internal/session"
	"github.com/grovetools/agentconsole/internal/transcript"
	"github.com/grovetools/core/tui/theme"
)

// Options controls terminal rendering of a transcript.
type Options struct {
	// Full prints complete tool inputs and results instead of summaries.
	Full bool
	// Tools formats tool calls. Nil selects formatters.Default(10).
	Tools formatters.Registry
}

const resultPreviewLines = 3

// RenderTranscript renders a session for the terminal, one block per visible
// record, with tool calls passed through the tool formatters.
func RenderTranscript(detail *session.SessionDetail, opts Options) string {
	if opts.Tools == nil {
		opts.Tools = formatters.Default(10)
	}

	muted := lipgloss.NewStyle().Foreground(theme.DefaultColors.MutedText)
	robot := lipgloss.NewStyle().Foreground(theme.DefaultColors.Violet).Render(theme.IconRobot)
	user := lipgloss.NewStyle().Foreground(theme.DefaultColors.Yellow).Render(theme.IconLightbulb)

	var out strings.Builder
	out.WriteString(muted.Render(fmt.Sprintf("Session %s · %s · %s", detail.ID, detail.ProjectPath, detail.CreatedAt)))
	out.WriteString("\n\n")

	for _, rec := range detail.Messages {
		if !rec.Visible() || rec.Message == nil {
			continue
		}
		role := robot
		if rec.Kind == transcript.KindUser || rec.Message.Role == "user" {
			role = user
		}

		var text []string
		var tools []string
		if len(rec.Message.Blocks) == 0 && rec.Message.Text != "" {
			text = append(text, rec.Message.Text)
		}
		for _, block := range rec.Message.Blocks {
			switch block.Kind {
			case transcript.BlockText:
				if strings.TrimSpace(block.Text) != "" {
					text = append(text, block.Text)
				}
			case transcript.BlockToolUse:
				tools = append(tools, opts.Tools.Format(block.ToolName, block.Input, opts.Full))
			case transcript.BlockToolResult:
				if preview := resultPreview(block, opts.Full); preview != "" {
					tools = append(tools, muted.Render(preview)+"\n")
				}
			}
		}

		for _, tool := range tools {
			fmt.Fprintf(&out, "%s %s", robot, tool)
		}
		if len(tools) > 0 && len(text) > 0 {
			out.WriteString("\n")
		}
		if len(text) > 0 {
			fmt.Fprintf(&out, "%s %s\n\n", role, strings.Join(text, "\n"))
		}
	}
	return out.String()
}

func resultPreview(block transcript.Block, full bool) string {
	result := strings.TrimRight(block.Result, "\n")
	if result == "" {
		return ""
	}
	label := "↳ "
	if block.IsError {
		label = "↳ error: "
	}
	if full {
		return label + result
	}
	lines := strings.Split(result, "\n")
	if len(lines) > resultPreviewLines {
		lines = append(lines[:resultPreviewLines], fmt.Sprintf("... (%d more lines)", len(lines)-resultPreviewLines))
	}
	return label + strings.Join(lines, "\n  ")
}
