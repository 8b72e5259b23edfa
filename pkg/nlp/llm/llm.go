// Package llm recognizes named entities with a language model through
// structured output. Documents are split into token-bounded chunks that are
// extracted concurrently.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/spacebio/knowledge-engine/backend/pkg/ai"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/nlp"

	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkTokens = 2000
	DefaultParallel    = 4
)

type extraction struct {
	Entities []nlp.Span `json:"entities"`
}

// LLMRecognizer implements nlp.Recognizer on an ai.GraphAIClient.
type LLMRecognizer struct {
	client      ai.GraphAIClient
	enc         *tiktoken.Tiktoken
	chunkTokens int
	parallel    int
}

type NewLLMRecognizerParams struct {
	Client      ai.GraphAIClient
	ChunkTokens int
	Parallel    int
}

func NewLLMRecognizer(params NewLLMRecognizerParams) *LLMRecognizer {
	r := &LLMRecognizer{
		client:      params.Client,
		chunkTokens: params.ChunkTokens,
		parallel:    params.Parallel,
	}
	if r.chunkTokens <= 0 {
		r.chunkTokens = DefaultChunkTokens
	}
	if r.parallel <= 0 {
		r.parallel = DefaultParallel
	}
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		logger.Warn("[NER] Tokenizer unavailable, chunking by estimate", "err", err)
	} else {
		r.enc = enc
	}
	return r
}

func (r *LLMRecognizer) countTokens(s string) int {
	if r.enc == nil {
		return (len(s) + 3) / 4
	}
	return len(r.enc.Encode(s, nil, nil))
}

// Recognize extracts ORG, PERSON and GPE spans from text. The same
// (text, label) pair is returned once even if several chunks report it.
func (r *LLMRecognizer) Recognize(ctx context.Context, text string) ([]nlp.Span, error) {
	chunks := r.chunk(text)
	if len(chunks) == 0 {
		return nil, nil
	}

	results := make([][]nlp.Span, len(chunks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, chunk := range chunks {
		g.Go(func() error {
			var out extraction
			prompt := fmt.Sprintf(ai.EntityExtractionPrompt, chunk)
			if err := r.client.GenerateCompletionWithFormat(gCtx, "entities", "Named entities in the document", prompt, &out); err != nil {
				return fmt.Errorf("extract chunk %d/%d: %w", i+1, len(chunks), err)
			}
			results[i] = out.Entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[nlp.Span]struct{})
	var spans []nlp.Span
	for _, res := range results {
		for _, s := range res {
			s.Text = strings.TrimSpace(s.Text)
			s.Label = strings.ToUpper(strings.TrimSpace(s.Label))
			if s.Text == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			spans = append(spans, s)
		}
	}
	logger.Debug("[NER] Recognized entities", "chunks", len(chunks), "spans", len(spans))
	return spans, nil
}

// chunk splits text on paragraph, then line, then sentence boundaries into
// pieces of at most chunkTokens tokens. A single sentence over the limit is
// kept whole.
func (r *LLMRecognizer) chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if r.countTokens(text) <= r.chunkTokens {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
		size = 0
	}
	for _, piece := range splitPieces(text) {
		n := r.countTokens(piece)
		if size > 0 && size+n > r.chunkTokens {
			flush()
		}
		current.WriteString(piece)
		current.WriteByte(' ')
		size += n
	}
	flush()
	return chunks
}

func splitPieces(text string) []string {
	var pieces []string
	for para := range strings.SplitSeq(text, "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		start := 0
		for i := 0; i < len(para)-1; i++ {
			if (para[i] == '.' || para[i] == '!' || para[i] == '?') && para[i+1] == ' ' {
				pieces = append(pieces, para[start:i+1])
				start = i + 2
			}
		}
		if start < len(para) {
			pieces = append(pieces, para[start:])
		}
	}
	return pieces
}
