// Package prose runs tagging and entity recognition in-process with
// jdkato/prose and lemmatizes with golem.
package prose

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/spacebio/knowledge-engine/backend/pkg/nlp"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/jdkato/prose/v2"
)

// orgCues mark a run of proper nouns as an organization. prose's model only
// knows PERSON and GPE.
var orgCues = map[string]struct{}{
	"academy": {}, "administration": {}, "agency": {}, "association": {},
	"center": {}, "centre": {}, "college": {}, "consortium": {},
	"corporation": {}, "council": {}, "department": {}, "facility": {},
	"foundation": {}, "hospital": {}, "inc": {}, "institute": {},
	"laboratory": {}, "laboratories": {}, "lab": {}, "ministry": {},
	"observatory": {}, "program": {}, "school": {}, "society": {},
	"station": {}, "university": {},
}

type ProsePipeline struct {
	lemmatizer *golem.Lemmatizer
}

func NewProsePipeline() (*ProsePipeline, error) {
	lem, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("load lemmatizer: %w", err)
	}
	return &ProsePipeline{lemmatizer: lem}, nil
}

func (p *ProsePipeline) document(ctx context.Context, text string) (*prose.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return prose.NewDocument(text, prose.WithSegmentation(false))
}

// Tag maps Penn Treebank tags onto universal tags. Lemmas come from golem;
// proper nouns keep their surface form.
func (p *ProsePipeline) Tag(ctx context.Context, text string) ([]nlp.Token, error) {
	doc, err := p.document(ctx, text)
	if err != nil {
		return nil, err
	}
	toks := doc.Tokens()
	out := make([]nlp.Token, 0, len(toks))
	for _, tok := range toks {
		pos := universalPOS(tok.Tag)
		lemma := tok.Text
		if pos == nlp.POSNoun {
			lemma = p.lemmatizer.Lemma(strings.ToLower(tok.Text))
		}
		out = append(out, nlp.Token{Text: tok.Text, POS: pos, Lemma: lemma})
	}
	return out, nil
}

func universalPOS(penn string) string {
	switch penn {
	case "NN", "NNS":
		return nlp.POSNoun
	case "NNP", "NNPS":
		return nlp.POSProperNoun
	}
	return nlp.POSOther
}

func (p *ProsePipeline) Recognize(ctx context.Context, text string) ([]nlp.Span, error) {
	doc, err := p.document(ctx, text)
	if err != nil {
		return nil, err
	}

	return mergeSpans(organizationRuns(doc.Tokens()), doc.Entities()), nil
}

// mergeSpans lists orgs as ORG spans followed by prose's entities. An entity
// inside an organization name is part of that name: "NASA" is not a person
// and "Colorado" in "University of Colorado" is not a place.
func mergeSpans(orgs []string, ents []prose.Entity) []nlp.Span {
	spans := make([]nlp.Span, 0, len(orgs)+len(ents))
	for _, o := range orgs {
		spans = append(spans, nlp.Span{Text: o, Label: "ORG"})
	}
	for _, ent := range ents {
		if (ent.Label == "GPE" || ent.Label == "PERSON") && coveredBy(ent.Text, orgs) {
			continue
		}
		spans = append(spans, nlp.Span{Text: ent.Text, Label: ent.Label})
	}
	return spans
}

// organizationRuns returns runs of proper nouns containing an organization
// cue word, plus standalone acronyms such as NASA.
func organizationRuns(toks []prose.Token) []string {
	var (
		out    []string
		run    []string
		hasCue bool
	)
	flush := func() {
		if len(run) > 0 && hasCue {
			out = append(out, strings.Join(run, " "))
		} else if len(run) == 1 && isAcronym(run[0]) {
			out = append(out, run[0])
		}
		run, hasCue = nil, false
	}
	for _, tok := range toks {
		pos := universalPOS(tok.Tag)
		_, cue := orgCues[strings.ToLower(tok.Text)]
		switch {
		case pos == nlp.POSProperNoun || (cue && len(run) > 0):
			run = append(run, tok.Text)
			hasCue = hasCue || cue
		case tok.Text == "of" && len(run) > 0:
			// "University of Colorado"
			run = append(run, tok.Text)
		default:
			if len(run) > 0 && run[len(run)-1] == "of" {
				run = run[:len(run)-1]
			}
			flush()
		}
	}
	if len(run) > 0 && run[len(run)-1] == "of" {
		run = run[:len(run)-1]
	}
	flush()
	return out
}

func isAcronym(s string) bool {
	if len(s) < 2 || len(s) > 6 {
		return false
	}
	for _, r := range s {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// coveredBy reports whether text appears as whole words in one of orgs.
func coveredBy(text string, orgs []string) bool {
	needle := " " + text + " "
	for _, o := range orgs {
		if strings.Contains(" "+o+" ", needle) {
			return true
		}
	}
	return false
}
