package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if req.Options == nil || req.Options.Temperature != 0.2 {
			t.Errorf("options not forwarded: %+v", req.Options)
		}

		json.NewEncoder(w).Encode(chatChunk{
			Model:           "test-model",
			Message:         Message{Role: "assistant", Content: "VFR all day."},
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       5,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL)
	resp, err := c.Chat(context.Background(), "test-model", []Message{{Role: "user", Content: "wx?"}}, nil, &Options{Temperature: 0.2})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Message.Content != "VFR all day." {
		t.Errorf("content: got %q", resp.Message.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 5 {
		t.Errorf("usage: got %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestChatStreamAccumulates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(chatChunk{Message: Message{Role: "assistant", Content: "Winds "}})
		enc.Encode(chatChunk{Message: Message{Role: "assistant", Content: "calm."}})
		enc.Encode(chatChunk{Model: "test-model", Done: true, EvalCount: 2})
	}))
	defer srv.Close()

	var tokens []string
	c := NewOllamaClient(srv.URL)
	resp, err := c.ChatStream(context.Background(), "test-model", nil, nil, nil, func(ev StreamEvent) {
		if ev.Kind == KindToken {
			tokens = append(tokens, ev.Token)
		}
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if resp.Message.Content != "Winds calm." {
		t.Errorf("accumulated content: got %q", resp.Message.Content)
	}
	if len(tokens) != 2 {
		t.Errorf("expected 2 tokens, got %d: %v", len(tokens), tokens)
	}
}

func TestChatStreamToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := chatChunk{Done: true}
		var tc ToolCall
		tc.Function.Name = "fetch_taf_and_metar"
		tc.Function.Arguments = map[string]any{"airport": "KJFK"}
		chunk.Message = Message{Role: "assistant", ToolCalls: []ToolCall{tc}}
		json.NewEncoder(w).Encode(chunk)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL)
	resp, err := c.ChatStream(context.Background(), "m", nil, nil, nil, func(StreamEvent) {})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[0].Function.Name != "fetch_taf_and_metar" {
		t.Errorf("tool name: got %q", resp.Message.ToolCalls[0].Function.Name)
	}
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL)
	if _, err := c.Chat(context.Background(), "missing", nil, nil, nil); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantLen  int
		wantTool string
	}{
		{
			name:     "raw object",
			content:  `{"name": "fetch_weather", "arguments": {"city": "Wichita"}}`,
			wantLen:  1,
			wantTool: "fetch_weather",
		},
		{
			name:     "array",
			content:  `[{"name": "a", "arguments": {}}, {"name": "b", "arguments": {}}]`,
			wantLen:  2,
			wantTool: "a",
		},
		{
			name:     "tagged",
			content:  `<tool_call>{"name": "search_manuals", "arguments": {"query": "Vso"}}</tool_call>`,
			wantLen:  1,
			wantTool: "search_manuals",
		},
		{
			name:    "plain text",
			content: "The weather looks fine.",
			wantLen: 0,
		},
		{
			name:    "empty",
			content: "",
			wantLen: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := parseTextToolCalls(tc.content)
			if len(calls) != tc.wantLen {
				t.Fatalf("got %d calls, want %d", len(calls), tc.wantLen)
			}
			if tc.wantLen > 0 && calls[0].Function.Name != tc.wantTool {
				t.Errorf("tool: got %q, want %q", calls[0].Function.Name, tc.wantTool)
			}
		})
	}
}

func TestPing(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"models":[]}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
