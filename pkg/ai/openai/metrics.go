package openai

import (
	"time"

	"github.com/spacebio/knowledge-engine/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
)

func (c *GraphOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	c.metrics = ai.ModelMetrics{}
	c.metricsLock.Unlock()
}

// GetMetrics returns token usage and timing accumulated since the last reset.
func (c *GraphOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *GraphOpenAIClient) recordUsage(usage openai.CompletionUsage, start time.Time) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.Add(ai.ModelMetrics{
		InputTokens:  int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
		TotalTokens:  int(usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})
}
