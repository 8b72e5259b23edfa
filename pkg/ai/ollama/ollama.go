package ollama

import (
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/spacebio/knowledge-engine/backend/pkg/ai"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/semaphore"
)

// defaultContext is the context window Ollama allocates unless told
// otherwise. Prompts estimated above it get a larger num_ctx.
const defaultContext = 4096

// GraphOllamaClient implements ai.GraphAIClient on a local or hosted Ollama
// server. Concurrent requests are bounded by a semaphore so a batch
// extraction cannot starve interactive chat.
type GraphOllamaClient struct {
	chatModel       string
	extractionModel string

	reqLock *semaphore.Weighted
	enc     *tiktoken.Tiktoken

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Client *api.Client
}

// NewGraphOllamaClientParams contains configuration options for creating a new GraphOllamaClient.
type NewGraphOllamaClientParams struct {
	ChatModel       string
	ExtractionModel string

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewGraphOllamaClient connects to the Ollama server at BaseURL, or the
// OLLAMA_HOST default when empty.
func NewGraphOllamaClient(params NewGraphOllamaClientParams) (*GraphOllamaClient, error) {
	var u *url.URL
	if params.BaseURL != "" {
		var err error
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := http.DefaultClient
	if params.ApiKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{"Authorization": "Bearer " + params.ApiKey},
				rt:      http.DefaultTransport,
			},
		}
	}

	var cli *api.Client
	if u != nil {
		cli = api.NewClient(u, httpClient)
	} else {
		var err error
		cli, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		logger.Warn("[Ollama] Tokenizer unavailable, estimating context size", "err", err)
	}

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	extraction := params.ExtractionModel
	if extraction == "" {
		extraction = params.ChatModel
	}

	return &GraphOllamaClient{
		chatModel:       params.ChatModel,
		extractionModel: extraction,
		reqLock:         semaphore.NewWeighted(maxConcurrent),
		enc:             enc,
		Client:          cli,
	}, nil
}

// contextSize estimates the tokens a request needs and returns a num_ctx
// value, or 0 when the default window suffices.
func (c *GraphOllamaClient) contextSize(texts ...string) int {
	tokens := 200
	for _, t := range texts {
		if c.enc != nil {
			tokens += len(c.enc.Encode(t, nil, nil))
		} else {
			tokens += len(t) / 3
		}
	}
	if tokens <= defaultContext {
		return 0
	}
	return tokens
}

func wrapError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return ai.WrapStatus(statusErr.StatusCode, err)
	}
	return err
}
