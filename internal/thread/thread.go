// Package thread provides durable storage for conversations and their
// parent-linked message threads.
//
// Messages within a conversation form a tree via ParentID, but the
// orchestrator only ever appends along a single active path: each new
// message's parent is the most recently persisted message. Exactly one
// message per conversation has an empty parent (the root).
package thread

import (
	"encoding/json"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleData      = "data"
)

// Tool invocation states.
const (
	// StatePending marks a call the model requested but whose result has
	// not arrived yet.
	StatePending = "pending"

	// StateResult marks a completed call; Result is non-null.
	StateResult = "result"

	// StateFailed marks a call rejected (unknown tool, bad arguments) or
	// whose execution failed; Error carries the reason.
	StateFailed = "failed"
)

// Conversation is a titled, user-owned container for a message thread.
type Conversation struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title,omitempty"`
	Archived  bool              `json:"archived"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Message is one persisted turn or sub-step in a conversation, linked to
// its logical predecessor via ParentID. Messages are never mutated after
// creation.
type Message struct {
	ID              string            `json:"id"`
	ConversationID  string            `json:"conversation_id"`
	UserID          string            `json:"user_id"`
	Role            string            `json:"role"`
	Content         string            `json:"content"`
	ToolInvocations []ToolInvocation  `json:"tool_invocations,omitempty"`
	ParentID        string            `json:"parent_message_id,omitempty"` // empty only for the thread root
	CreatedAt       time.Time         `json:"created_at"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ToolInvocation records the model requesting (and receiving the result
// of) one external capability call during a turn. It is embedded in a
// Message, not stored as a standalone row.
type ToolInvocation struct {
	State      string          `json:"state"`
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// TitleSeedMax caps the seeded title taken from the first user message.
// The seeded title is a placeholder until the generated title lands.
const TitleSeedMax = 100

// SeedTitle derives the initial conversation title from the first user
// message: a prefix truncated to TitleSeedMax characters.
func SeedTitle(firstMessage string) string {
	runes := []rune(firstMessage)
	if len(runes) <= TitleSeedMax {
		return firstMessage
	}
	return string(runes[:TitleSeedMax])
}

// Linearize orders a conversation's messages parent-first, starting from
// the first root (empty-parent) message and visiting each node's
// children in discovery order. Messages the walk cannot reach (extra
// roots, parents missing from the set) follow in storage order, so every
// input message appears exactly once. If no root exists (imported or
// externally edited data), the input order is preserved — degraded but
// deterministic, never an error.
func Linearize(messages []Message) []Message {
	if len(messages) == 0 {
		return nil
	}

	children := make(map[string][]*Message, len(messages))
	var root *Message
	for i := range messages {
		m := &messages[i]
		if m.ParentID == "" {
			if root == nil {
				root = m
			}
			continue
		}
		children[m.ParentID] = append(children[m.ParentID], m)
	}

	if root == nil {
		out := make([]Message, len(messages))
		copy(out, messages)
		return out
	}

	visited := make(map[string]bool, len(messages))
	out := make([]Message, 0, len(messages))
	stack := []*Message{root}
	for len(stack) > 0 {
		m := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, *m)
		visited[m.ID] = true

		// Push children in reverse so discovery order pops first.
		kids := children[m.ID]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}

	// Unreachable leftovers keep storage order.
	for i := range messages {
		if !visited[messages[i].ID] {
			out = append(out, messages[i])
		}
	}
	return out
}
