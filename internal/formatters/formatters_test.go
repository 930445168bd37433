package formatters

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCommonIndent(t *testing.T) {
	in := "    func a() {\n        return\n    }"
	assert.Equal(t, "func a() {\n    return\n}", stripCommonIndent(in))
	assert.Equal(t, "no indent\n  here", stripCommonIndent("no indent\n  here"))
}

func TestFormatWriteToolEdit(t *testing.T) {
	input := json.RawMessage(`{"file_path":"/a.go","old_string":"one\ntwo\nthree","new_string":"uno"}`)
	out := FormatWriteTool(input, 2)

	assert.Contains(t, out, "Editing /a.go")
	assert.Contains(t, out, "- one")
	assert.Contains(t, out, "- two")
	assert.NotContains(t, out, "- three")
	assert.Contains(t, out, "(1 more lines removed)")
	assert.Contains(t, out, "+ uno")
}

func TestFormatWriteToolWrite(t *testing.T) {
	input := json.RawMessage(`{"file_path":"/b.txt","content":"l1\nl2\nl3\nl4"}`)
	assert.Contains(t, FormatWriteTool(input, 2), "(4 lines)")
	assert.Contains(t, FormatWriteTool(input, 0), "+ l4")
	assert.Empty(t, FormatWriteTool(json.RawMessage(`"not an object"`), 0))
}

func TestFormatReadTool(t *testing.T) {
	out := FormatReadTool(json.RawMessage(`{"file_path":"/c.go","offset":10,"limit":5}`), false)
	assert.Contains(t, out, "Reading /c.go (offset: 10, limit: 5)")
	assert.Empty(t, FormatReadTool(json.RawMessage(`{}`), false))
}

func TestFormatBashTool(t *testing.T) {
	long := strings.Repeat("x", 100)
	input := json.RawMessage(`{"command":"` + long + `","description":"make xs"}`)

	summary := FormatBashTool(input, false)
	assert.Contains(t, summary, "$ "+strings.Repeat("x", 80)+"...")
	assert.Contains(t, summary, "# make xs")
	assert.Contains(t, FormatBashTool(input, true), "$ "+long)
}

func TestFormatTodoWriteTool(t *testing.T) {
	input := json.RawMessage(`{"todos":[{"content":"a","status":"completed"},{"content":"b","status":"in_progress"},{"content":"c","status":"pending"}]}`)
	out := FormatTodoWriteTool(input, false)
	assert.Contains(t, out, "[✓] a")
	assert.Contains(t, out, "[→] b")
	assert.Contains(t, out, "[ ] c")
}

func TestRegistryFallsBackToGeneric(t *testing.T) {
	r := Default(10)
	assert.Equal(t, "[Using Grep: TODO]\n", r.Format("Grep", json.RawMessage(`{"pattern":"TODO","glob":"*.go"}`), false))
	assert.Equal(t, "[Using Read]\n", r.Format("Read", json.RawMessage(`{}`), false))
	assert.Contains(t, r.Format("Grep", json.RawMessage(`{"pattern":"TODO"}`), true), `"pattern": "TODO"`)
}
