// Package nlp defines the narrow interfaces the graph pipeline needs from a
// language model: named entity spans and part-of-speech tagged tokens.
package nlp

import "context"

// Span is a recognized named entity. Label uses the OntoNotes scheme
// (ORG, PERSON, GPE, ...).
type Span struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Universal part-of-speech tags used by Token.POS.
const (
	POSNoun       = "NOUN"
	POSProperNoun = "PROPN"
	POSOther      = "X"
)

// Token is a word with its universal part of speech and lemma.
type Token struct {
	Text  string
	POS   string
	Lemma string
}

type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Span, error)
}

type Tagger interface {
	Tag(ctx context.Context, text string) ([]Token, error)
}

// Pipeline bundles both capabilities. Most backends provide both.
type Pipeline interface {
	Recognizer
	Tagger
}

// Combined joins a tagger with a separately configured recognizer.
type Combined struct {
	Recognizer
	Tagger
}
