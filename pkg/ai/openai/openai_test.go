package openai

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

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15},
	})
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *GraphOpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		ChatModel:  "test-model",
		URL:        srv.URL,
		Key:        "test",
		MaxRetries: 0,
	})
	if err != nil {
		t.Fatalf("NewGraphOpenAIClient: %v", err)
	}
	return c
}

func TestGenerateChat(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion("Microgravity reduces bone density."))
	})

	answer, err := c.GenerateChat(context.Background(),
		[]ai.ChatMessage{{Role: ai.RoleUser, Message: "What happens to bones?"}},
		ai.WithSystemPrompts("persona"),
	)
	if err != nil {
		t.Fatalf("GenerateChat: %v", err)
	}
	if answer != "Microgravity reduces bone density." {
		t.Fatalf("unexpected answer %q", answer)
	}

	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system + user message, got %v", got["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Fatalf("first message should be system, got %v", msgs[0])
	}
	if m := c.GetMetrics(); m.TotalTokens != 15 {
		t.Fatalf("usage not recorded: %+v", m)
	}
	c.ResetMetrics()
	if m := c.GetMetrics(); m.TotalTokens != 0 {
		t.Fatalf("metrics not reset: %+v", m)
	}
}

func TestGenerateCompletionWithFormat(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion(`{"entities":[{"text":"NASA","label":"ORG"}]}`))
	})

	var out struct {
		Entities []struct {
			Text  string `json:"text"`
			Label string `json:"label"`
		} `json:"entities"`
	}
	if err := c.GenerateCompletionWithFormat(context.Background(), "entities", "entities", "text", &out); err != nil {
		t.Fatalf("GenerateCompletionWithFormat: %v", err)
	}
	if len(out.Entities) != 1 || out.Entities[0].Text != "NASA" {
		t.Fatalf("unexpected output %+v", out)
	}
	format, _ := got["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("expected json_schema response format, got %v", got["response_format"])
	}
}

func TestUpstreamRefusalsAreMapped(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ai.ErrRateLimited},
		{http.StatusPaymentRequired, ai.ErrPaymentRequired},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"x"}}`)
		})
		_, err := c.GenerateCompletion(context.Background(), "hi")
		if !errors.Is(err, tt.want) {
			t.Fatalf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
		_, err = c.GenerateChatStream(context.Background(), []ai.ChatMessage{{Role: ai.RoleUser, Message: "hi"}})
		if !errors.Is(err, tt.want) {
			t.Fatalf("stream status %d: expected %v, got %v", tt.status, tt.want, err)
		}
	}
}

func TestGenerateChatStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"Bone ", "loss."} {
			chunk, _ := json.Marshal(map[string]any{
				"id": "c", "object": "chat.completion.chunk", "created": 0, "model": "test-model",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": piece}}},
			})
			_, _ = io.WriteString(w, "data: "+string(chunk)+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	stream, err := c.GenerateChatStream(context.Background(), []ai.ChatMessage{{Role: ai.RoleUser, Message: "hi"}})
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
		t.Fatalf("unexpected streamed text %q", b.String())
	}
}

func TestNewGraphOpenAIClientRequiresKey(t *testing.T) {
	if _, err := NewGraphOpenAIClient(NewGraphOpenAIClientParams{}); err == nil {
		t.Fatalf("expected error without key")
	}
}
