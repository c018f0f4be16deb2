// ABOUTME: Conversation message model carried inside chat-messages frames
// ABOUTME: Identity-carrying records with typed parts, text-only for now

package wire

import "strings"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartTypeText is the only part type in the current contract.
const PartTypeText = "text"

// Part is one typed content fragment of a message.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message is one conversation entry. ID is stable across snapshots so
// receivers can diff instead of rebuilding.
type Message struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts,omitempty"`
}

// TextMessage builds a message with a single text part.
func TextMessage(id string, role Role, text string) Message {
	return Message{
		ID:    id,
		Role:  role,
		Parts: []Part{{Type: PartTypeText, Text: text}},
	}
}

// Text concatenates the message's text parts in order. Non-text parts
// contribute nothing.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Clone returns a deep copy so callers can hand messages across goroutines
// without sharing the parts slice.
func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		copy(out.Parts, m.Parts)
	}
	return out
}

// CloneMessages deep-copies a message list.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
