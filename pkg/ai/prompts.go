package ai

import (
	"fmt"
	"strings"
)

// AssistantPrompt is the persona of the chat assistant.
const AssistantPrompt = `You are Dr. Aris, an AI assistant specialized in space biology. Your expertise covers:
- Astrobiology and space biology
- Adaptation of organisms to extreme environments
- Agriculture and plant growth under spaceflight conditions
- Space missions and the research conducted on them
- Effects of radiation and microgravity on biological systems

How you answer:
- Clearly and scientifically, in the language of the question
- Citing studies and publications when they are available
- With enthusiasm for the subject
- Explaining complex concepts accessibly
- Grounded in scientific evidence
%s
Answer concisely but informatively, always keeping scientific rigor.`

const assistantContext = `
Use the following scientific publications to support your answers where relevant:

%s`

// AssistantSystemPrompt renders the assistant persona. When titles is
// empty the prompt carries no publication context.
func AssistantSystemPrompt(titles []string) string {
	if len(titles) == 0 {
		return fmt.Sprintf(AssistantPrompt, "")
	}
	var b strings.Builder
	for i, t := range titles {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	return fmt.Sprintf(AssistantPrompt, fmt.Sprintf(assistantContext, b.String()))
}

// EntityExtractionPrompt asks for named entities in the document chunk.
// The labels match what the graph pipeline classifies.
const EntityExtractionPrompt = `
# Task Context
You extract named entities from scientific publications in space biology.

# Document
%s

# Rules
- Return every organization (label ORG): agencies, universities, laboratories, companies, research facilities.
- Return every person (label PERSON): authors, researchers, astronauts.
- Return every geopolitical or named location (label GPE): countries, cities, states, launch sites.
- Copy each name exactly as written in the document. Do not translate or expand abbreviations.
- Do not return organisms, chemicals, genes, dates or quantities.
- If the same name appears several times, return it once.

# Output Formatting
Return a JSON object:
{
  "entities": [
    {"text": "<name as written>", "label": "ORG" | "PERSON" | "GPE"}
  ]
}
`
