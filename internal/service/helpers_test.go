package service

import (
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/modelmux/modelmux/internal/adapter/backend"
	"github.com/modelmux/modelmux/internal/config"
	"github.com/modelmux/modelmux/internal/domain/session"
)

// testModels is the model map used across service tests.
var testModels = config.Models{
	Orchestrator: "llama3.1:8b",
	Coding:       "qwen2.5-coder:7b",
	Math:         "mistral:7b",
	Explanation:  "deepseek-r1:7b",
	Critique:     "phi4:14b",
	Optimization: "mistral:7b",
	Creative:     "openthinker:7b",
	Default:      "llama3.1:8b",
}

// testClient builds a gateway with fast retries against a fake backend.
func testClient(url string) *backend.Client {
	return backend.NewClient(url, "", time.Second, 3, time.Millisecond)
}

// writeReply writes a chat-completions response with the given content.
func writeReply(t *testing.T, w http.ResponseWriter, content string, toolCalls ...backend.ToolCall) {
	t.Helper()
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": backend.Message{Role: "assistant", Content: content, ToolCalls: toolCalls}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Errorf("encode reply: %v", err)
	}
}

// decodeChat decodes the incoming chat request for scripted handlers.
func decodeChat(t *testing.T, r *http.Request) backend.ChatRequest {
	t.Helper()
	var req backend.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode chat request: %v", err)
	}
	return req
}

// capturedSink records progress entries for assertions.
type capturedSink struct {
	mu      sync.Mutex
	entries []session.Entry
}

func (s *capturedSink) Log(step string, payload any, level session.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, session.NewEntry(step, payload, level))
}

func (s *capturedSink) has(step string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Step == step {
			return true
		}
	}
	return false
}

// routeCall builds a route_to_model tool call with the given arguments.
func routeCall(args string) backend.ToolCall {
	return backend.ToolCall{
		Type: "function",
		Function: backend.FunctionCall{
			Name:      "route_to_model",
			Arguments: args,
		},
	}
}
