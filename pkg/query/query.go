// Package query answers chat questions grounded in the knowledge graph: the
// question is turned into keywords, matching publication titles are
// retrieved and handed to the assistant as context.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spacebio/knowledge-engine/backend/pkg/ai"
	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/graph"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/metrics"
)

// DefaultMaxSources is the number of publication titles given as context.
const DefaultMaxSources = 5

var ErrEmptyQuestion = errors.New("query: last message must be a non-empty user message")

// Retriever finds publications for a free-text question.
// *graph.GraphClient satisfies it.
type Retriever interface {
	SearchPublications(ctx context.Context, query string, limit int) (graph.KeywordSet, []common.Publication, error)
}

type queryOptions struct {
	SystemPrompts []string
	Model         string
	Thinking      string
	MaxSources    int
}

// QueryOption is a functional option for configuring query behavior.
type QueryOption func(*queryOptions)

// WithSystemPrompts appends system prompts after the assistant persona.
func WithSystemPrompts(prompts ...string) QueryOption {
	return func(o *queryOptions) {
		o.SystemPrompts = append(o.SystemPrompts, prompts...)
	}
}

func WithModel(model string) QueryOption {
	return func(o *queryOptions) {
		o.Model = model
	}
}

func WithThinking(thinking string) QueryOption {
	return func(o *queryOptions) {
		o.Thinking = thinking
	}
}

// WithMaxSources caps the publication titles passed as context.
func WithMaxSources(n int) QueryOption {
	return func(o *queryOptions) {
		o.MaxSources = n
	}
}

// QueryClient combines a Retriever with an ai.GraphAIClient.
//
// A QueryClient should be created using NewQueryClient.
type QueryClient struct {
	aiClient  ai.GraphAIClient
	retriever Retriever
	metrics   *metrics.Metrics
	options   queryOptions
}

// NewQueryClient creates a QueryClient. retriever may be nil, in which case
// every answer is given without publication context.
//
// Example:
//
//	qc := query.NewQueryClient(aiClient, graphClient, m, query.WithMaxSources(5))
//	answer, err := qc.Ask(ctx, msgs)
func NewQueryClient(aiC ai.GraphAIClient, retriever Retriever, m *metrics.Metrics, opts ...QueryOption) *QueryClient {
	c := &QueryClient{
		aiClient:  aiC,
		retriever: retriever,
		metrics:   m,
		options:   queryOptions{MaxSources: DefaultMaxSources},
	}
	for _, o := range opts {
		o(&c.options)
	}
	if c.options.MaxSources <= 0 {
		c.options.MaxSources = DefaultMaxSources
	}
	return c
}

// With returns a copy of c with opts applied on top of its options. Used
// for per-request model and thinking overrides.
func (c *QueryClient) With(opts ...QueryOption) *QueryClient {
	cp := *c
	for _, o := range opts {
		o(&cp.options)
	}
	if cp.options.MaxSources <= 0 {
		cp.options.MaxSources = DefaultMaxSources
	}
	return &cp
}

// Grounding is the retrieval context behind an answer.
type Grounding struct {
	Keywords []string `json:"keywords"`
	Sources  []string `json:"sources"`
	// Publications carries the keys of the sources for subgraph lookups.
	Publications []common.Publication `json:"publications"`
}

// Grounded reports whether any publication backed the answer.
func (g Grounding) Grounded() bool { return len(g.Sources) > 0 }

type Answer struct {
	Grounding
	Text string `json:"answer"`
}

// StreamAnswer carries the grounding up front and the reply as events.
type StreamAnswer struct {
	Grounding
	Events <-chan ai.StreamEvent
}

func lastQuestion(msgs []ai.ChatMessage) (string, error) {
	if len(msgs) == 0 {
		return "", ErrEmptyQuestion
	}
	last := msgs[len(msgs)-1]
	if last.Role != ai.RoleUser || strings.TrimSpace(last.Message) == "" {
		return "", ErrEmptyQuestion
	}
	return last.Message, nil
}

// ground retrieves context for the question. A retrieval failure degrades
// to an answer without context instead of failing the request.
func (c *QueryClient) ground(ctx context.Context, question string) Grounding {
	g := Grounding{Keywords: []string{}, Sources: []string{}, Publications: []common.Publication{}}
	if c.retriever == nil {
		return g
	}
	keywords, pubs, err := c.retriever.SearchPublications(ctx, question, c.options.MaxSources)
	if keywords != nil {
		g.Keywords = keywords.Sorted()
	}
	if err != nil {
		logger.Warn("[Query] Retrieval failed, answering without context", "err", err)
		return g
	}
	if len(pubs) > c.options.MaxSources {
		pubs = pubs[:c.options.MaxSources]
	}
	if pubs != nil {
		g.Publications = pubs
	}
	g.Sources = graph.Titles(pubs)
	return g
}

func (c *QueryClient) generateOptions(g Grounding) []ai.GenerateOption {
	prompts := append([]string{ai.AssistantSystemPrompt(g.Sources)}, c.options.SystemPrompts...)
	opts := []ai.GenerateOption{ai.WithSystemPrompts(prompts...)}
	if c.options.Model != "" {
		opts = append(opts, ai.WithModel(c.options.Model))
	}
	if c.options.Thinking != "" {
		opts = append(opts, ai.WithThinking(c.options.Thinking))
	}
	return opts
}

// Ask answers the last user message of msgs.
func (c *QueryClient) Ask(ctx context.Context, msgs []ai.ChatMessage) (Answer, error) {
	question, err := lastQuestion(msgs)
	if err != nil {
		return Answer{}, err
	}
	g := c.ground(ctx, question)
	c.metrics.Chat("blocking", g.Grounded())

	text, err := c.aiClient.GenerateChat(ctx, msgs, c.generateOptions(g)...)
	if err != nil {
		return Answer{Grounding: g}, fmt.Errorf("generate answer: %w", err)
	}
	logger.Debug("[Query] Answered", "keywords", g.Keywords, "sources", len(g.Sources))
	return Answer{Grounding: g, Text: text}, nil
}

// AskStream is Ask with the reply streamed. Errors raised before the first
// event, including upstream rate limits, are returned directly.
func (c *QueryClient) AskStream(ctx context.Context, msgs []ai.ChatMessage) (*StreamAnswer, error) {
	question, err := lastQuestion(msgs)
	if err != nil {
		return nil, err
	}
	g := c.ground(ctx, question)
	c.metrics.Chat("stream", g.Grounded())

	events, err := c.aiClient.GenerateChatStream(ctx, msgs, c.generateOptions(g)...)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &StreamAnswer{Grounding: g, Events: events}, nil
}
