package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spacebio/knowledge-engine/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

func buildMessages(options ai.GenerateOptions, messages []ai.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+len(messages))
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	for _, m := range messages {
		switch m.Role {
		case ai.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Message))
		default:
			msgs = append(msgs, openai.UserMessage(m.Message))
		}
	}
	return msgs
}

func (c *GraphOpenAIClient) newBody(options ai.GenerateOptions, msgs []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}
	if options.Thinking != "" {
		// reasoning models on the hosted API only accept temperature 1
		if !c.customEndpoint {
			body.Temperature = openai.Float(1.0)
		}
		body.ReasoningEffort = shared.ReasoningEffort(options.Thinking)
	}
	return body
}

func (c *GraphOpenAIClient) complete(ctx context.Context, body openai.ChatCompletionNewParams) (string, error) {
	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", wrapError(err)
	}
	c.recordUsage(response.Usage, start)

	if len(response.Choices) == 0 {
		return "", errors.New("no choices in response from model")
	}
	return response.Choices[0].Message.Content, nil
}

// GenerateCompletion sends a single-turn prompt and returns the answer.
func (c *GraphOpenAIClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.chatModel, Temperature: 0.3}, opts...)
	msgs := buildMessages(options, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}})
	return c.complete(ctx, c.newBody(options, msgs))
}

// GenerateCompletionWithFormat sends prompt with a strict JSON schema
// derived from out and unmarshals the answer into out.
//
// Example:
//
//	var out struct {
//		Entities []nlp.Span `json:"entities"`
//	}
//	err := client.GenerateCompletionWithFormat(ctx, "entities", "Named entities", prompt, &out)
func (c *GraphOpenAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.extractionModel, Temperature: 0.1}, opts...)
	msgs := buildMessages(options, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}})
	body := c.newBody(options, msgs)
	body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        name,
				Description: openai.String(description),
				Schema:      ai.GenerateSchema(out),
				Strict:      openai.Bool(true),
			},
		},
	}

	message, err := c.complete(ctx, body)
	if err != nil {
		return err
	}
	if message == "" {
		return errors.New("empty response from model")
	}
	return ai.UnmarshalFlexible(message, out)
}

// GenerateChat sends the conversation and returns the assistant reply.
func (c *GraphOpenAIClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.chatModel, Temperature: 0.2}, opts...)
	return c.complete(ctx, c.newBody(options, buildMessages(options, messages)))
}

// GenerateChatStream streams the assistant reply. Upstream failures that
// happen before the first chunk are returned directly; later ones arrive as
// a final error event.
func (c *GraphOpenAIClient) GenerateChatStream(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (<-chan ai.StreamEvent, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.chatModel, Temperature: 0.2}, opts...)
	body := c.newBody(options, buildMessages(options, messages))
	body.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	start := time.Now()
	stream := c.ChatClient.Chat.Completions.NewStreaming(ctx, body)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, wrapError(err)
	}

	out := make(chan ai.StreamEvent, 10)
	go func() {
		defer close(out)
		defer stream.Close()

		send := func(ev ai.StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		acc := openai.ChatCompletionAccumulator{}
		contentStarted := false
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta

			if !contentStarted {
				if field, ok := delta.JSON.ExtraFields["reasoning"]; ok && field.Raw() != "" {
					var reasoning string
					if err := json.Unmarshal([]byte(field.Raw()), &reasoning); err == nil && reasoning != "" {
						if !send(ai.StreamEvent{Type: ai.EventStep, Step: "thinking", Reasoning: reasoning}) {
							return
						}
					}
				}
			}
			if delta.Content != "" {
				contentStarted = true
				if !send(ai.StreamEvent{Type: ai.EventContent, Content: delta.Content}) {
					return
				}
			}
		}
		c.recordUsage(acc.Usage, start)

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			send(ai.StreamEvent{Type: ai.EventError, Err: fmt.Errorf("chat stream: %w", wrapError(err))})
		}
	}()

	return out, nil
}
