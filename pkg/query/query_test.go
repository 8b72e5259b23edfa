package query

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/spacebio/knowledge-engine/backend/pkg/ai"
	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/graph"
)

type fakeRetriever struct {
	titles []string
	err    error
	limit  int
}

func (f *fakeRetriever) SearchPublications(_ context.Context, _ string, limit int) (graph.KeywordSet, []common.Publication, error) {
	f.limit = limit
	var pubs []common.Publication
	for _, title := range f.titles {
		pubs = append(pubs, common.Publication{Key: "key-" + title, Title: title})
	}
	return graph.NewKeywordSet("rodent", "bone"), pubs, f.err
}

// fakeAI records the system prompts it was called with.
type fakeAI struct {
	ai.GraphAIClient
	system []string
	err    error
}

func (f *fakeAI) capture(opts []ai.GenerateOption) {
	f.system = ai.ApplyOptions(ai.GenerateOptions{}, opts...).SystemPrompts
}

func (f *fakeAI) GenerateChat(_ context.Context, _ []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	f.capture(opts)
	if f.err != nil {
		return "", f.err
	}
	return "answer", nil
}

func (f *fakeAI) GenerateChatStream(_ context.Context, _ []ai.ChatMessage, opts ...ai.GenerateOption) (<-chan ai.StreamEvent, error) {
	f.capture(opts)
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan ai.StreamEvent, 2)
	ch <- ai.StreamEvent{Type: ai.EventContent, Content: "ans"}
	ch <- ai.StreamEvent{Type: ai.EventContent, Content: "wer"}
	close(ch)
	return ch, nil
}

func question(q string) []ai.ChatMessage {
	return []ai.ChatMessage{{Role: ai.RoleUser, Message: q}}
}

func TestAskGrounded(t *testing.T) {
	r := &fakeRetriever{titles: []string{"Rodent Habitats", "Bone Loss in Orbit"}}
	f := &fakeAI{}
	qc := NewQueryClient(f, r, nil)

	answer, err := qc.Ask(context.Background(), question("Do mice lose bone in space?"))
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Text != "answer" || !answer.Grounded() {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if !slices.Equal(answer.Keywords, []string{"bone", "rodent"}) {
		t.Fatalf("unexpected keywords %v", answer.Keywords)
	}
	if r.limit != DefaultMaxSources {
		t.Fatalf("expected limit %d, got %d", DefaultMaxSources, r.limit)
	}
	if len(f.system) == 0 || !strings.Contains(f.system[0], "Rodent Habitats") {
		t.Fatalf("titles missing from system prompt: %v", f.system)
	}
}

func TestAskFallsBackWithoutContext(t *testing.T) {
	r := &fakeRetriever{err: errors.New("store down")}
	f := &fakeAI{}
	qc := NewQueryClient(f, r, nil, WithSystemPrompts("extra"))

	answer, err := qc.Ask(context.Background(), question("Why do plants grow upward?"))
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Grounded() || answer.Text != "answer" {
		t.Fatalf("expected ungrounded answer, got %+v", answer)
	}
	if len(f.system) != 2 || f.system[1] != "extra" {
		t.Fatalf("unexpected system prompts %v", f.system)
	}
	if strings.Contains(f.system[0], "publications to support") {
		t.Fatalf("fallback prompt should carry no context")
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	qc := NewQueryClient(&fakeAI{}, nil, nil)
	for _, msgs := range [][]ai.ChatMessage{
		nil,
		question("   "),
		{{Role: ai.RoleAssistant, Message: "hello"}},
	} {
		if _, err := qc.Ask(context.Background(), msgs); !errors.Is(err, ErrEmptyQuestion) {
			t.Fatalf("expected ErrEmptyQuestion for %v, got %v", msgs, err)
		}
	}
}

func TestAskPropagatesUpstreamRefusal(t *testing.T) {
	qc := NewQueryClient(&fakeAI{err: ai.ErrPaymentRequired}, nil, nil)
	if _, err := qc.Ask(context.Background(), question("hi")); !errors.Is(err, ai.ErrPaymentRequired) {
		t.Fatalf("expected payment required, got %v", err)
	}
	if _, err := qc.AskStream(context.Background(), question("hi")); !errors.Is(err, ai.ErrPaymentRequired) {
		t.Fatalf("expected payment required from stream, got %v", err)
	}
}

func TestAskStream(t *testing.T) {
	r := &fakeRetriever{titles: []string{"A", "B", "C"}}
	qc := NewQueryClient(&fakeAI{}, r, nil, WithMaxSources(2))

	res, err := qc.AskStream(context.Background(), question("q"))
	if err != nil {
		t.Fatalf("AskStream: %v", err)
	}
	if !slices.Equal(res.Sources, []string{"A", "B"}) {
		t.Fatalf("sources not capped: %v", res.Sources)
	}
	if len(res.Publications) != 2 || res.Publications[1].Key != "key-B" {
		t.Fatalf("publications not capped or missing keys: %+v", res.Publications)
	}
	var b strings.Builder
	for ev := range res.Events {
		b.WriteString(ev.Content)
	}
	if b.String() != "answer" {
		t.Fatalf("unexpected stream %q", b.String())
	}
}

func TestWithOverridesPerRequest(t *testing.T) {
	base := NewQueryClient(&fakeAI{}, &fakeRetriever{}, nil, WithMaxSources(3))
	derived := base.With(WithModel("small"), WithThinking("low"))

	if derived.options.Model != "small" || derived.options.Thinking != "low" {
		t.Fatalf("overrides not applied: %+v", derived.options)
	}
	if derived.options.MaxSources != 3 {
		t.Fatalf("max sources = %d, want 3", derived.options.MaxSources)
	}
	if base.options.Model != "" || base.options.Thinking != "" {
		t.Fatalf("base client modified: %+v", base.options)
	}
}
