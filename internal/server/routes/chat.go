package routes

import (
	"encoding/json"
	"net/http"

	"github.com/spacebio/knowledge-engine/backend/internal/server/middleware"
	"github.com/spacebio/knowledge-engine/backend/pkg/ai"
	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/query"

	"github.com/labstack/echo/v4"
)

type chatRequest struct {
	Messages []ai.ChatMessage `json:"messages" validate:"required,min=1"`
	Model    string           `json:"model"`
	Think    bool             `json:"think"`
}

// bindChat validates the request and returns the query client with the
// request's overrides applied. A nil request means the error response was
// already written; err is the result of writing it.
func bindChat(c echo.Context) (*chatRequest, *query.QueryClient, error) {
	data := new(chatRequest)
	if err := c.Bind(data); err != nil {
		return nil, nil, badRequest(c, "invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return nil, nil, badRequest(c, "messages are required")
	}
	for _, m := range data.Messages {
		if m.Role != ai.RoleUser && m.Role != ai.RoleAssistant {
			return nil, nil, badRequest(c, "message role must be user or assistant")
		}
	}

	qc := c.(*middleware.AppContext).App.Query
	if qc == nil {
		return nil, nil, errorJSON(c, http.StatusServiceUnavailable, KindAIUnavailable, "no language model configured")
	}

	opts := []query.QueryOption{}
	if data.Model != "" {
		opts = append(opts, query.WithModel(data.Model))
	}
	if data.Think {
		opts = append(opts, query.WithThinking("medium"))
	}
	if len(opts) > 0 {
		qc = qc.With(opts...)
	}
	return data, qc, nil
}

// ChatHandler answers the last user message, grounded on retrieved
// publications.
func ChatHandler(c echo.Context) error {
	data, qc, err := bindChat(c)
	if data == nil {
		return err
	}

	answer, err := qc.Ask(c.Request().Context(), data.Messages)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, answer)
}

// Stream line types.
const (
	lineGrounding = "grounding"
	lineStep      = "step"
	lineContent   = "content"
	lineError     = "error"
	lineDone      = "done"
)

type streamLine struct {
	Type         string               `json:"type"`
	Keywords     []string             `json:"keywords,omitempty"`
	Sources      []string             `json:"sources,omitempty"`
	Publications []common.Publication `json:"publications,omitempty"`
	Step         string               `json:"step,omitempty"`
	Content      string               `json:"content,omitempty"`
	Reasoning    string               `json:"reasoning,omitempty"`
	Error        string               `json:"error,omitempty"`
	Detail       string               `json:"detail,omitempty"`
}

// ChatStreamHandler streams the answer as newline delimited JSON: one
// grounding line, then step and content lines, then a done or error line.
// Failures before the first line get a regular JSON error response.
func ChatStreamHandler(c echo.Context) error {
	data, qc, err := bindChat(c)
	if data == nil {
		return err
	}

	ctx := c.Request().Context()
	stream, err := qc.AskStream(ctx, data.Messages)
	if err != nil {
		return handleError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().WriteHeader(http.StatusOK)

	enc := json.NewEncoder(c.Response())
	write := func(line streamLine) error {
		if err := enc.Encode(line); err != nil {
			return err
		}
		c.Response().Flush()
		return nil
	}

	if err := write(streamLine{
		Type:         lineGrounding,
		Keywords:     stream.Keywords,
		Sources:      stream.Sources,
		Publications: stream.Publications,
	}); err != nil {
		return nil
	}

	for event := range stream.Events {
		var line streamLine
		switch event.Type {
		case ai.EventStep:
			line = streamLine{Type: lineStep, Step: event.Step, Reasoning: event.Reasoning}
		case ai.EventError:
			_, kind, detail := classify(event.Err)
			logger.Error("[Server] Chat stream failed", "err", event.Err)
			line = streamLine{Type: lineError, Error: kind, Detail: detail}
		default:
			line = streamLine{Type: lineContent, Content: event.Content}
		}
		if err := write(line); err != nil {
			// client went away; drain so the producer can finish
			for range stream.Events {
			}
			return nil
		}
		if event.Type == ai.EventError {
			return nil
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	_ = write(streamLine{Type: lineDone})
	return nil
}
