package session

import "github.com/grovetools/agentconsole/internal/transcript"

// Filter returns a copy of the detail keeping only visible records whose
// message role matches role (any role when empty), limited to the last tail
// records when tail is positive.
func (d *SessionDetail) Filter(role string, tail int) *SessionDetail {
	out := *d
	out.Messages = nil
	for _, rec := range d.Messages {
		if !rec.Visible() {
			continue
		}
		if role != "" && recordRole(rec) != role {
			continue
		}
		out.Messages = append(out.Messages, rec)
	}
	if tail > 0 && len(out.Messages) > tail {
		out.Messages = out.Messages[len(out.Messages)-tail:]
	}
	return &out
}

func recordRole(rec transcript.Record) string {
	if rec.Message != nil && rec.Message.Role != "" {
		return rec.Message.Role
	}
	return string(rec.Kind)
}
