package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/aviara/copilot/internal/llm"
	"github.com/aviara/copilot/internal/thread"
)

// TransformStep normalizes one completed model step (text, tool calls,
// or both) into the uniform persisted-message shape. Content may be
// empty when the step carried only tool calls.
func TransformStep(conversationID, userID, parentID string, m llm.Message, invocations []thread.ToolInvocation) thread.Message {
	role := m.Role
	if role == "" || role == "tool" {
		role = thread.RoleAssistant
	}
	return thread.Message{
		ConversationID:  conversationID,
		UserID:          userID,
		Role:            role,
		Content:         m.Content,
		ToolInvocations: invocations,
		ParentID:        parentID,
	}
}

// NewInvocation builds a pending invocation record from a model tool
// call. Arguments the model produced are coerced to a JSON object; raw
// values that cannot be marshalled degrade to an empty object rather
// than poisoning the step.
func NewInvocation(tc llm.ToolCall) thread.ToolInvocation {
	args := json.RawMessage("{}")
	if tc.Function.Arguments != nil {
		if b, err := json.Marshal(tc.Function.Arguments); err == nil {
			args = b
		}
	}
	return thread.ToolInvocation{
		State:      thread.StatePending,
		ToolCallID: tc.ID,
		ToolName:   tc.Function.Name,
		Args:       args,
	}
}

// MarkResult transitions an invocation pending -> result. Results that
// are not valid JSON are wrapped as a JSON string so the stored payload
// is always well formed.
func MarkResult(inv *thread.ToolInvocation, result string) {
	inv.State = thread.StateResult
	if json.Valid([]byte(result)) && strings.TrimSpace(result) != "" {
		inv.Result = json.RawMessage(result)
		return
	}
	wrapped, err := json.Marshal(result)
	if err != nil {
		wrapped = []byte(`""`)
	}
	inv.Result = wrapped
}

// ContextMessages converts a persisted thread into the inference
// context: system prompt first, then each message in thread order, with
// completed tool invocations replayed as tool-role results so the model
// sees its own prior calls.
func ContextMessages(systemPrompt string, history []thread.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	out = append(out, llm.Message{Role: thread.RoleSystem, Content: systemPrompt})

	for _, m := range history {
		switch m.Role {
		case thread.RoleUser, thread.RoleAssistant, thread.RoleSystem:
		default:
			// Data and unknown roles are display-only.
			continue
		}

		if m.Content != "" || len(m.ToolInvocations) == 0 {
			out = append(out, llm.Message{Role: m.Role, Content: m.Content})
		}

		for _, inv := range m.ToolInvocations {
			if inv.State != thread.StateResult {
				continue
			}
			out = append(out, llm.Message{
				Role:       "tool",
				Content:    string(inv.Result),
				ToolCallID: inv.ToolCallID,
			})
		}
	}
	return out
}
