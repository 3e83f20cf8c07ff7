package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/aviara/copilot/internal/llm"
	"github.com/aviara/copilot/internal/thread"
)

func TestTransformStepNormalizesRole(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"assistant", thread.RoleAssistant},
		{"", thread.RoleAssistant},
		{"tool", thread.RoleAssistant},
		{"user", thread.RoleUser},
	}
	for _, tt := range tests {
		got := TransformStep("c1", "u1", "p1", llm.Message{Role: tt.in, Content: "x"}, nil)
		if got.Role != tt.want {
			t.Errorf("role %q -> %q, want %q", tt.in, got.Role, tt.want)
		}
		if got.ConversationID != "c1" || got.UserID != "u1" || got.ParentID != "p1" {
			t.Errorf("identity fields lost: %+v", got)
		}
	}
}

func TestNewInvocationCoercesArgs(t *testing.T) {
	tc := toolCall("call-9", "fetch_weather", map[string]any{"city": "Reno", "limit": float64(3)})
	inv := NewInvocation(tc)

	if inv.State != thread.StatePending {
		t.Errorf("state = %q, want pending", inv.State)
	}
	if inv.ToolCallID != "call-9" || inv.ToolName != "fetch_weather" {
		t.Errorf("identity = %+v", inv)
	}

	var decoded map[string]any
	if err := json.Unmarshal(inv.Args, &decoded); err != nil {
		t.Fatalf("args not JSON: %v", err)
	}
	if decoded["city"] != "Reno" {
		t.Errorf("args = %v", decoded)
	}

	// Nil arguments degrade to an empty object, never invalid JSON.
	empty := NewInvocation(toolCall("call-0", "x", nil))
	if string(empty.Args) != "{}" {
		t.Errorf("nil args = %q, want {}", empty.Args)
	}
}

func TestMarkResult(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
	}{
		{"json object passes through", `{"ok": true}`, `{"ok": true}`},
		{"json array passes through", `[1, 2]`, `[1, 2]`},
		{"plain text wrapped as string", "it worked", `"it worked"`},
		{"empty wrapped as string", "", `""`},
		{"broken json wrapped", `{"oops`, `"{\"oops"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := thread.ToolInvocation{State: thread.StatePending}
			MarkResult(&inv, tt.result)
			if inv.State != thread.StateResult {
				t.Errorf("state = %q", inv.State)
			}
			if string(inv.Result) != tt.want {
				t.Errorf("result = %s, want %s", inv.Result, tt.want)
			}
			if !json.Valid(inv.Result) {
				t.Errorf("stored result is not valid JSON: %s", inv.Result)
			}
		})
	}
}

func TestContextMessages(t *testing.T) {
	history := []thread.Message{
		{Role: thread.RoleUser, Content: "metar KJFK?"},
		{Role: thread.RoleAssistant, ToolInvocations: []thread.ToolInvocation{
			{State: thread.StateResult, ToolCallID: "c1", ToolName: "fetch_taf_and_metar", Result: json.RawMessage(`{"raw": "KJFK ..."}`)},
			{State: thread.StateFailed, ToolCallID: "c2", ToolName: "bogus", Error: "unknown"},
		}},
		{Role: thread.RoleAssistant, Content: "Here is the METAR."},
		{Role: thread.RoleData, Content: "display-only artifact"},
	}

	msgs := ContextMessages("system prompt", history)

	// system + user + 1 replayed tool result + assistant text.
	if len(msgs) != 4 {
		t.Fatalf("got %d messages: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != thread.RoleSystem || msgs[0].Content != "system prompt" {
		t.Errorf("system = %+v", msgs[0])
	}
	if msgs[1].Role != thread.RoleUser {
		t.Errorf("msg 1 = %+v", msgs[1])
	}
	if msgs[2].Role != "tool" || msgs[2].ToolCallID != "c1" {
		t.Errorf("tool replay = %+v", msgs[2])
	}
	if msgs[3].Content != "Here is the METAR." {
		t.Errorf("msg 3 = %+v", msgs[3])
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"KJFK Weather Briefing", "KJFK Weather Briefing"},
		{`"Crosswind Landing Limits"`, "Crosswind Landing Limits"},
		{"  Title: Pattern Entry Procedures.  ", "Pattern Entry Procedures"},
		{"One two three four five six seven", "One two three four five"},
		{"", ""},
		{`""`, ""},
		{"   \n  ", ""},
	}

	for _, tt := range tests {
		if got := CleanTitle(tt.in); got != tt.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
