package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spacebio/knowledge-engine/backend/pkg/ai"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GraphOllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewGraphOllamaClient(NewGraphOllamaClientParams{
		ChatModel:             "llama3",
		BaseURL:               srv.URL,
		MaxConcurrentRequests: 1,
	})
	if err != nil {
		t.Fatalf("NewGraphOllamaClient: %v", err)
	}
	return c
}

func writeLines(w http.ResponseWriter, lines ...map[string]any) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	for _, l := range lines {
		b, _ := json.Marshal(l)
		_, _ = w.Write(append(b, '\n'))
	}
}

func TestGenerateChat(t *testing.T) {
	var req map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		writeLines(w, map[string]any{
			"model":             "llama3",
			"message":           map[string]any{"role": "assistant", "content": "Roots grow sideways."},
			"done":              true,
			"prompt_eval_count": 10,
			"eval_count":        4,
		})
	})

	answer, err := c.GenerateChat(context.Background(),
		[]ai.ChatMessage{{Role: ai.RoleUser, Message: "How do plants grow in orbit?"}},
		ai.WithSystemPrompts("persona"),
	)
	if err != nil {
		t.Fatalf("GenerateChat: %v", err)
	}
	if answer != "Roots grow sideways." {
		t.Fatalf("unexpected answer %q", answer)
	}
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected two messages, got %v", req["messages"])
	}
	if m := c.GetMetrics(); m.TotalTokens != 14 {
		t.Fatalf("usage not recorded: %+v", m)
	}
}

func TestGenerateCompletionWithFormat(t *testing.T) {
	var req map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		writeLines(w, map[string]any{
			"model":   "llama3",
			"message": map[string]any{"role": "assistant", "content": `{entities: [{text: 'ESA', label: 'ORG'}]}`},
			"done":    true,
		})
	})

	var out struct {
		Entities []struct {
			Text  string `json:"text"`
			Label string `json:"label"`
		} `json:"entities"`
	}
	if err := c.GenerateCompletionWithFormat(context.Background(), "entities", "", "text", &out); err != nil {
		t.Fatalf("GenerateCompletionWithFormat: %v", err)
	}
	if len(out.Entities) != 1 || out.Entities[0].Text != "ESA" {
		t.Fatalf("unexpected output %+v", out)
	}
	if _, ok := req["format"].(map[string]any); !ok {
		t.Fatalf("schema not sent as format: %v", req["format"])
	}

	var notPointer struct{}
	if err := c.GenerateCompletionWithFormat(context.Background(), "x", "", "text", notPointer); err == nil {
		t.Fatalf("expected error for non-pointer output")
	}
}

func TestGenerateChatStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeLines(w,
			map[string]any{"message": map[string]any{"role": "assistant", "content": "Bone "}},
			map[string]any{"message": map[string]any{"role": "assistant", "content": "loss."}},
			map[string]any{"message": map[string]any{"role": "assistant", "content": ""}, "done": true},
		)
	})
	stream, err := c.GenerateChatStream(context.Background(), []ai.ChatMessage{{Message: "hi"}})
	if err != nil {
		t.Fatalf("GenerateChatStream: %v", err)
	}
	var b strings.Builder
	for ev := range stream {
		if ev.Type == ai.EventError {
			t.Fatalf("stream error: %v", ev.Err)
		}
		b.WriteString(ev.Content)
	}
	if b.String() != "Bone loss." {
		t.Fatalf("unexpected text %q", b.String())
	}
}

func TestRateLimitIsMapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"too many requests"}`)
	})
	_, err := c.GenerateCompletion(context.Background(), "hi")
	if !errors.Is(err, ai.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	stream, err := c.GenerateChatStream(context.Background(), []ai.ChatMessage{{Message: "hi"}})
	if err != nil {
		t.Fatalf("GenerateChatStream: %v", err)
	}
	var last ai.StreamEvent
	for ev := range stream {
		last = ev
	}
	if last.Type != ai.EventError || !errors.Is(last.Err, ai.ErrRateLimited) {
		t.Fatalf("expected final rate limit event, got %+v", last)
	}
}

func TestContextSize(t *testing.T) {
	c := &GraphOllamaClient{}
	if n := c.contextSize("short prompt"); n != 0 {
		t.Fatalf("short prompt should use default window, got %d", n)
	}
	if n := c.contextSize(strings.Repeat("microgravity ", 4000)); n <= defaultContext {
		t.Fatalf("long prompt should widen the window, got %d", n)
	}
}
