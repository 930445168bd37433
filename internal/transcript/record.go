// Package transcript decodes agent transcript records and renders them for export.
package transcript

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNotObject = errors.New("record is not a JSON object")

// Kind classifies a record by its top-level "type" field.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindProgress  Kind = "progress"
	KindOther     Kind = "other"
)

// BlockKind classifies one element of an array-valued message content.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	BlockOther      BlockKind = "other"
)

// Record is one line of a transcript. The decoded fields are a typed view;
// the original bytes are kept so that JSON encoding reproduces the line verbatim.
type Record struct {
	Type      string
	Kind      Kind
	UUID      string
	Timestamp string
	IsMeta    bool
	Message   *Message

	raw json.RawMessage
}

// Message is the optional "message" object of a record.
type Message struct {
	Role string
	// Text is set when the content is a plain string.
	Text   string
	Blocks []Block
}

// Block is one content block of a message.
type Block struct {
	Kind BlockKind
	// Type is the raw block type, useful when Kind is BlockOther.
	Type string

	Text string

	ToolUseID string
	ToolName  string
	Input     json.RawMessage

	Result  string
	IsError bool
}

// Raw returns the record exactly as it appeared in the transcript.
func (r Record) Raw() json.RawMessage {
	return r.raw
}

// MarshalJSON emits the original line.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return []byte("null"), nil
	}
	return r.raw, nil
}

// UnmarshalJSON decodes a record with DecodeRecord.
func (r *Record) UnmarshalJSON(data []byte) error {
	rec, err := DecodeRecord(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// DecodeRecord decodes a single transcript line. The line must be a JSON
// object; every field inside it is optional and a field of an unexpected
// type is treated as absent.
func DecodeRecord(line []byte) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return Record{}, err
	}
	if fields == nil {
		return Record{}, errNotObject
	}

	raw := make(json.RawMessage, len(line))
	copy(raw, line)

	rec := Record{
		Type:      stringField(fields, "type"),
		UUID:      stringField(fields, "uuid"),
		Timestamp: stringField(fields, "timestamp"),
		IsMeta:    boolField(fields, "isMeta"),
		raw:       raw,
	}

	switch rec.Type {
	case "user":
		rec.Kind = KindUser
	case "assistant":
		rec.Kind = KindAssistant
	case "progress":
		rec.Kind = KindProgress
	default:
		rec.Kind = KindOther
	}

	if msg, ok := fields["message"]; ok {
		rec.Message = decodeMessage(msg)
	}
	return rec, nil
}

func decodeMessage(data json.RawMessage) *Message {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil
	}

	msg := &Message{Role: stringField(fields, "role")}
	content, ok := fields["content"]
	if !ok {
		return msg
	}

	var text string
	if err := json.Unmarshal(content, &text); err == nil {
		msg.Text = text
		return msg
	}

	var items []json.RawMessage
	if err := json.Unmarshal(content, &items); err != nil {
		return msg
	}
	for _, item := range items {
		if block, ok := decodeBlock(item); ok {
			msg.Blocks = append(msg.Blocks, block)
		}
	}
	return msg
}

func decodeBlock(data json.RawMessage) (Block, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Block{}, false
	}

	block := Block{Type: stringField(fields, "type")}
	switch block.Type {
	case "text":
		block.Kind = BlockText
		block.Text = stringField(fields, "text")
	case "tool_use":
		block.Kind = BlockToolUse
		block.ToolUseID = stringField(fields, "id")
		block.ToolName = stringField(fields, "name")
		block.Input = fields["input"]
	case "tool_result":
		block.Kind = BlockToolResult
		block.ToolUseID = stringField(fields, "tool_use_id")
		block.IsError = boolField(fields, "is_error")
		block.Result = resultText(fields["content"])
	default:
		block.Kind = BlockOther
	}
	return block, true
}

// resultText flattens tool_result content, which is either a string or an
// array of {"type":"text","text":...} parts joined by newlines.
func resultText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(content, &text); err == nil {
		return text
	}
	var parts []map[string]json.RawMessage
	if err := json.Unmarshal(content, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		texts = append(texts, stringField(part, "text"))
	}
	return strings.Join(texts, "\n")
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if v, ok := fields[key]; ok {
		_ = json.Unmarshal(v, &s)
	}
	return s
}

func boolField(fields map[string]json.RawMessage, key string) bool {
	var b bool
	if v, ok := fields[key]; ok {
		_ = json.Unmarshal(v, &b)
	}
	return b
}
