package openai

import (
	"errors"
	"sync"

	"github.com/spacebio/knowledge-engine/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GraphOpenAIClient talks to any OpenAI-compatible chat completion API.
// ChatModel answers users; ExtractionModel serves structured extraction.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	chatModel       string
	extractionModel string
	customEndpoint  bool

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewGraphOpenAIClientParams configures a GraphOpenAIClient.
//
// URL is optional and points the client at a compatible gateway.
// MaxRetries overrides the SDK retry count on transient upstream errors
// when set to zero or more; negative keeps the SDK default.
type NewGraphOpenAIClientParams struct {
	ChatModel       string
	ExtractionModel string

	URL        string
	Key        string
	MaxRetries int
}

// NewGraphOpenAIClient creates a GraphOpenAIClient.
//
// Example:
//
//	client, err := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		ChatModel:       "gpt-4o-mini",
//		ExtractionModel: "gpt-4o-mini",
//		Key:             os.Getenv("AI_CHAT_KEY"),
//		MaxRetries:      -1,
//	})
func NewGraphOpenAIClient(params NewGraphOpenAIClientParams) (*GraphOpenAIClient, error) {
	if params.Key == "" {
		return nil, errors.New("openai: api key is required")
	}
	options := []option.RequestOption{
		option.WithAPIKey(params.Key),
	}
	if params.URL != "" {
		options = append(options, option.WithBaseURL(params.URL))
	}
	if params.MaxRetries >= 0 {
		options = append(options, option.WithMaxRetries(params.MaxRetries))
	}
	client := openai.NewClient(options...)

	extraction := params.ExtractionModel
	if extraction == "" {
		extraction = params.ChatModel
	}
	return &GraphOpenAIClient{
		chatModel:       params.ChatModel,
		extractionModel: extraction,
		customEndpoint:  params.URL != "",
		ChatClient:      &client,
	}, nil
}

// wrapError surfaces rate limit and credit refusals as ai sentinels.
func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ai.WrapStatus(apiErr.StatusCode, err)
	}
	return err
}
