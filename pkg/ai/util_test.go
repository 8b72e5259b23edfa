package ai

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
)

type span struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

type extraction struct {
	Entities []span `json:"entities"`
}

func TestUnmarshalFlexible(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"valid json", `{"entities":[{"text":"NASA","label":"ORG"}]}`},
		{"unquoted keys and single quotes", `{entities: [{text: 'NASA', label: 'ORG'}]}`},
		{"trailing comma", `{"entities":[{"text":"NASA","label":"ORG"},]}`},
		{"missing end bracket", `{"entities":[{"text":"NASA","label":"ORG"}`},
		{"double encoded", `"{\"entities\":[{\"text\":\"NASA\",\"label\":\"ORG\"}]}"`},
		{"duplicate leading brace", "{\n{\"entities\":[{\"text\":\"NASA\",\"label\":\"ORG\"}]}"},
		{"fenced", "```json\n{\"entities\":[{\"text\":\"NASA\",\"label\":\"ORG\"}]}\n```"},
		{"bare fence", "```\n{\"entities\":[{\"text\":\"NASA\",\"label\":\"ORG\"}]}```"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got extraction
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if len(got.Entities) != 1 || got.Entities[0] != (span{Text: "NASA", Label: "ORG"}) {
				t.Fatalf("UnmarshalFlexible() got = %+v", got)
			}
		})
	}
}

func TestUnmarshalFlexibleUnrecoverable(t *testing.T) {
	var got extraction
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("expected error for unrecoverable input")
	}
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(&extraction{})
	b, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"entities"`, `"label"`, `"additionalProperties":false`} {
		if !strings.Contains(s, want) {
			t.Fatalf("schema %s misses %s", s, want)
		}
	}
}

func TestWrapStatus(t *testing.T) {
	base := errors.New("upstream")
	if err := WrapStatus(http.StatusTooManyRequests, base); !errors.Is(err, ErrRateLimited) || !errors.Is(err, base) {
		t.Fatalf("429 not mapped: %v", err)
	}
	if err := WrapStatus(http.StatusPaymentRequired, base); !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("402 not mapped: %v", err)
	}
	if err := WrapStatus(http.StatusInternalServerError, base); err != base {
		t.Fatalf("500 should pass through, got %v", err)
	}
	if WrapStatus(http.StatusTooManyRequests, nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
}

func TestModelMetricsAdd(t *testing.T) {
	var m ModelMetrics
	m.Add(ModelMetrics{InputTokens: 10, OutputTokens: 20, TotalTokens: 30, DurationMs: 1000})
	m.Add(ModelMetrics{InputTokens: 5, OutputTokens: 5, TotalTokens: 10, DurationMs: 1000})
	if m.TotalTokens != 40 || m.DurationMs != 2000 || m.TokenPerSecond != 20 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestAssistantSystemPrompt(t *testing.T) {
	bare := AssistantSystemPrompt(nil)
	if strings.Contains(bare, "publications to support") || strings.Contains(bare, "%!") {
		t.Fatalf("bare prompt carries context: %s", bare)
	}
	grounded := AssistantSystemPrompt([]string{"Bone Loss in Orbit", "Rodent Habitats"})
	if !strings.Contains(grounded, "1. Bone Loss in Orbit") || !strings.Contains(grounded, "2. Rodent Habitats") {
		t.Fatalf("titles missing: %s", grounded)
	}
	if !strings.HasPrefix(grounded, "You are Dr. Aris") {
		t.Fatalf("persona missing")
	}
}
