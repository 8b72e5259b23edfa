package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/spacebio/knowledge-engine/backend/pkg/ai"

	"github.com/ollama/ollama/api"
)

func buildMessages(options ai.GenerateOptions, messages []ai.ChatMessage) []api.Message {
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+len(messages))
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	for _, m := range messages {
		role := m.Role
		if role != ai.RoleAssistant {
			role = ai.RoleUser
		}
		msgs = append(msgs, api.Message{Role: role, Content: m.Message})
	}
	return msgs
}

func (c *GraphOllamaClient) newRequest(options ai.GenerateOptions, msgs []api.Message, stream bool) *api.ChatRequest {
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}

	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		texts = append(texts, m.Content)
	}
	if n := c.contextSize(texts...); n > 0 {
		req.Options["num_ctx"] = n
	}
	return req
}

// chat runs a non-streaming request and returns the full answer.
func (c *GraphOllamaClient) chat(ctx context.Context, req *api.ChatRequest) (string, error) {
	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var content strings.Builder
	err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		content.WriteString(cr.Message.Content)
		if cr.Done {
			c.recordUsage(cr.Metrics)
		}
		return nil
	})
	if err != nil {
		return "", wrapError(err)
	}
	return content.String(), nil
}

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *GraphOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.chatModel, Temperature: 0.3}, opts...)
	msgs := buildMessages(options, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}})
	return c.chat(ctx, c.newRequest(options, msgs, false))
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *GraphOllamaClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	rv := reflect.ValueOf(out)
	if out == nil || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	format, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return fmt.Errorf("schema for %s: %w", name, err)
	}

	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.extractionModel, Temperature: 0.1}, opts...)
	msgs := buildMessages(options, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}})
	req := c.newRequest(options, msgs, false)
	req.Format = json.RawMessage(format)

	content, err := c.chat(ctx, req)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(content, out)
}

// GenerateChat sends a multi-turn conversation and returns assistant text.
func (c *GraphOllamaClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.chatModel, Temperature: 0.2}, opts...)
	return c.chat(ctx, c.newRequest(options, buildMessages(options, messages), false))
}

// GenerateChatStream streams the reply. Errors reported by the server end
// the stream with an error event.
func (c *GraphOllamaClient) GenerateChatStream(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (<-chan ai.StreamEvent, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.chatModel, Temperature: 0.2}, opts...)
	req := c.newRequest(options, buildMessages(options, messages), true)

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	out := make(chan ai.StreamEvent, 16)
	go func() {
		defer close(out)
		defer c.reqLock.Release(1)

		err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
			if s := cr.Message.Thinking; s != "" {
				select {
				case out <- ai.StreamEvent{Type: ai.EventStep, Step: "thinking", Reasoning: s}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if s := cr.Message.Content; s != "" {
				select {
				case out <- ai.StreamEvent{Type: ai.EventContent, Content: s}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if cr.Done {
				c.recordUsage(cr.Metrics)
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			select {
			case out <- ai.StreamEvent{Type: ai.EventError, Err: fmt.Errorf("chat stream: %w", wrapError(err))}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}
