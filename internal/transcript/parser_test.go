package transcript

import (
	"encoding/json"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPreservesLineOrderAndSkipsBlankLines(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"user","uuid":"1","timestamp":"2025-01-01T12:00:00Z","message":{"role":"user","content":"Hello"}}`,
		``,
		`   `,
		`{"type":"assistant","uuid":"2","message":{"role":"assistant","content":[{"type":"text","text":"Hi"}]}}`,
		`{"type":"progress","uuid":"3","data":{"type":"hook"}}`,
		``,
	}, "\n")

	records, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "1", records[0].UUID)
	assert.Equal(t, KindUser, records[0].Kind)
	assert.Equal(t, "Hello", records[0].Message.Text)
	assert.Equal(t, "2025-01-01T12:00:00Z", records[0].Timestamp)

	assert.Equal(t, KindAssistant, records[1].Kind)
	require.Len(t, records[1].Message.Blocks, 1)
	assert.Equal(t, BlockText, records[1].Message.Blocks[0].Kind)

	assert.Equal(t, KindProgress, records[2].Kind)
	assert.Nil(t, records[2].Message)
}

func TestReadFailsClosedOnMalformedLine(t *testing.T) {
	input := `{"type":"user","uuid":"1"}
{"type":"assistant",
{"type":"user","uuid":"3"}`

	records, err := Read(strings.NewReader(input))
	require.Error(t, err)
	assert.Nil(t, records)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadRejectsNonObjectLines(t *testing.T) {
	for _, line := range []string{`null`, `42`, `"text"`, `[1,2]`} {
		_, err := Read(strings.NewReader(line))
		assert.Error(t, err, line)
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRecordMarshalsVerbatim(t *testing.T) {
	line := `{"type":"user","extra":{"nested":[1,2,3]},"message":{"role":"user","content":"x"}}`
	rec, err := DecodeRecord([]byte(line))
	require.NoError(t, err)

	out, err := json.Marshal([]Record{rec})
	require.NoError(t, err)
	assert.JSONEq(t, "["+line+"]", string(out))
}

func TestDecodeRecordToleratesUnexpectedFieldTypes(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"type":7,"isMeta":"yes","timestamp":false,"message":"oops"}`))
	require.NoError(t, err)
	assert.Equal(t, KindOther, rec.Kind)
	assert.False(t, rec.IsMeta)
	assert.Empty(t, rec.Timestamp)
	assert.Nil(t, rec.Message)
}

func TestDecodeToolBlocks(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"type":"user","message":{"role":"user","content":[
		{"type":"tool_result","tool_use_id":"t1","is_error":true,"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]},
		{"type":"image","source":{}}
	]}}`))
	require.NoError(t, err)
	require.Len(t, rec.Message.Blocks, 2)

	result := rec.Message.Blocks[0]
	assert.Equal(t, BlockToolResult, result.Kind)
	assert.Equal(t, "t1", result.ToolUseID)
	assert.True(t, result.IsError)
	assert.Equal(t, "a\nb", result.Result)

	assert.Equal(t, BlockOther, rec.Message.Blocks[1].Kind)
	assert.Equal(t, "image", rec.Message.Blocks[1].Type)
}
