package formatters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/core/tui/theme"
)

// ToolFormatter renders the input of one tool call for the terminal. An empty
// result means the formatter could not interpret the input.
type ToolFormatter func(input json.RawMessage, full bool) string

// Registry maps tool names to their formatters.
type Registry map[string]ToolFormatter

// Default returns formatters for the agent's common tools. maxLines bounds
// diff output in summary mode; 0 shows everything.
func Default(maxLines int) Registry {
	write := func(input json.RawMessage, full bool) string {
		if full {
			return FormatWriteTool(input, 0)
		}
		return FormatWriteTool(input, maxLines)
	}
	return Registry{
		"Write":     write,
		"Edit":      write,
		"Read":      FormatReadTool,
		"Bash":      FormatBashTool,
		"TodoWrite": FormatTodoWriteTool,
	}
}

// Format renders a tool call, falling back to a one-line summary for tools
// without a dedicated formatter.
func (r Registry) Format(name string, input json.RawMessage, full bool) string {
	if f, ok := r[name]; ok {
		if out := f(input, full); out != "" {
			return out
		}
	}
	return FormatGeneric(name, input, full)
}

// FormatWriteTool shows an Edit as a removed/added diff and a Write as the
// lines written.
func FormatWriteTool(input json.RawMessage, maxLines int) string {
	var data struct {
		FilePath  string `json:"file_path"`
		Content   string `json:"content"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	}
	if err := json.Unmarshal(input, &data); err != nil {
		return ""
	}

	green := lipgloss.NewStyle().Foreground(theme.DefaultColors.Green)
	red := lipgloss.NewStyle().Foreground(theme.DefaultColors.Red)

	var out strings.Builder
	switch {
	case data.OldString != "" || data.NewString != "":
		fmt.Fprintf(&out, "%s Editing %s\n", theme.IconFile, data.FilePath)
		writeLines(&out, red, "  - ", "removed", stripCommonIndent(data.OldString), maxLines)
		writeLines(&out, green, "  + ", "added", stripCommonIndent(data.NewString), maxLines)
	case data.Content != "":
		fmt.Fprintf(&out, "%s Writing to %s\n", theme.IconFilePlus, data.FilePath)
		lines := strings.Split(stripCommonIndent(data.Content), "\n")
		if maxLines > 0 && len(lines) > maxLines {
			out.WriteString(green.Render(fmt.Sprintf("  + (%d lines)", len(lines))) + "\n")
		} else {
			writeLines(&out, green, "  + ", "added", strings.Join(lines, "\n"), 0)
		}
	default:
		return ""
	}
	return out.String()
}

func writeLines(out *strings.Builder, style lipgloss.Style, prefix, verb, text string, maxLines int) {
	if text == "" {
		return
	}
	lines := strings.Split(text, "\n")
	shown := len(lines)
	if maxLines > 0 && maxLines < shown {
		shown = maxLines
	}
	for _, line := range lines[:shown] {
		out.WriteString(style.Render(prefix+line) + "\n")
	}
	if rest := len(lines) - shown; rest > 0 {
		out.WriteString(style.Render(fmt.Sprintf("%s... (%d more lines %s)", prefix, rest, verb)) + "\n")
	}
}

// FormatReadTool shows the file being read and any window.
func FormatReadTool(input json.RawMessage, _ bool) string {
	var data struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &data); err != nil || data.FilePath == "" {
		return ""
	}

	var window []string
	if data.Offset > 0 {
		window = append(window, fmt.Sprintf("offset: %d", data.Offset))
	}
	if data.Limit > 0 {
		window = append(window, fmt.Sprintf("limit: %d", data.Limit))
	}

	out := fmt.Sprintf("%s Reading %s", theme.IconFile, data.FilePath)
	if len(window) > 0 {
		out += " (" + strings.Join(window, ", ") + ")"
	}
	return out + "\n"
}

// FormatBashTool shows the command, truncated in summary mode.
func FormatBashTool(input json.RawMessage, full bool) string {
	var data struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(input, &data); err != nil || data.Command == "" {
		return ""
	}

	command := data.Command
	if !full {
		command = truncate(firstLine(command), 80)
	}
	out := "$ " + command
	if data.Description != "" {
		muted := lipgloss.NewStyle().Foreground(theme.DefaultColors.MutedText)
		out += "  " + muted.Render("# "+data.Description)
	}
	return out + "\n"
}

// FormatTodoWriteTool renders the todo list as a checklist.
func FormatTodoWriteTool(input json.RawMessage, _ bool) string {
	var data struct {
		Todos []struct {
			Content string `json:"content"`
			Status  string `json:"status"`
		} `json:"todos"`
	}
	if err := json.Unmarshal(input, &data); err != nil || data.Todos == nil {
		return ""
	}

	var out strings.Builder
	fmt.Fprintf(&out, "%s TODO List Updated:\n", theme.IconChecklist)
	for _, item := range data.Todos {
		box := "[ ]"
		switch item.Status {
		case "completed":
			box = "[✓]"
		case "in_progress":
			box = "[→]"
		}
		fmt.Fprintf(&out, "  %s %s\n", box, item.Content)
	}
	return out.String()
}

// FormatGeneric summarizes any tool call. In full mode the whole input is
// printed as indented JSON.
func FormatGeneric(name string, input json.RawMessage, full bool) string {
	muted := lipgloss.NewStyle().Foreground(theme.DefaultColors.MutedText)
	if full {
		pretty, err := json.MarshalIndent(input, "", "  ")
		if err != nil || len(input) == 0 {
			pretty = input
		}
		return muted.Render(fmt.Sprintf("▼ Input for %s:\n%s", name, pretty)) + "\n"
	}

	summary := "[Using " + name
	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err == nil {
		for _, key := range keyParams(fields) {
			if s, ok := fields[key].(string); ok && s != "" {
				summary += ": " + truncate(firstLine(s), 50)
				break
			}
		}
	}
	return summary + "]\n"
}

// keyParams orders the inputs most likely to identify a tool call first.
func keyParams(fields map[string]any) []string {
	preferred := []string{"file_path", "path", "command", "pattern", "url", "query", "prompt"}
	var keys []string
	for _, k := range preferred {
		if _, ok := fields[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range fields {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// stripCommonIndent removes the leading whitespace shared by all non-blank lines.
func stripCommonIndent(text string) string {
	lines := strings.Split(text, "\n")

	indent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent == -1 || n < indent {
			indent = n
		}
	}
	if indent <= 0 {
		return text
	}

	for i, line := range lines {
		if len(line) >= indent {
			lines[i] = line[indent:]
		} else {
			lines[i] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.Join(lines, "\n")
}
