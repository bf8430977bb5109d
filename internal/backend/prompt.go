package backend

import (
	"fmt"
	"strings"

	"github.com/quarryhq/quarry/internal/model"
)

// ResearchSystemPrompt instructs a backend to answer with structured claims.
// Every adapter sends the same contract so results merge uniformly.
const ResearchSystemPrompt = `You are a research backend inside a multi-backend research orchestrator.
Research the user's query thoroughly and respond ONLY with JSON in exactly this shape:

{
  "summary": "2-4 sentence overview of your findings",
  "claims": [
    {
      "text": "one specific, self-contained factual claim",
      "source_urls": ["https://..."],
      "source_ids": ["id of a provided source, if the claim comes from one"],
      "confidence": 0.9
    }
  ]
}

Rules:
- Each claim must be a single verifiable assertion, not a paragraph.
- confidence is your own 0.0-1.0 estimate; omit it if unsure.
- Cite source_ids for claims drawn from the provided source material.
- Do not wrap the JSON in prose. Markdown code fences are tolerated but not required.`

const maxSourceChars = 4000

// BuildUserMessage embeds the session's source material into the query
func BuildUserMessage(query string, sources []model.Source) string {
	if len(sources) == 0 {
		return query
	}

	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\nThe user has provided the following source material. Cite a source's id when a claim is drawn from it.\n")
	for _, src := range sources {
		if src.Text == "" {
			continue
		}
		text := src.Text
		if len(text) > maxSourceChars {
			text = text[:maxSourceChars] + " [truncated]"
		}
		fmt.Fprintf(&b, "\n--- source %s (%s) ---\n%s\n", src.ID, src.Kind, text)
	}
	return b.String()
}
