package backend

import (
	"encoding/json"
	"strings"

	"github.com/quarryhq/quarry/internal/model"
)

// Wire shapes matching the research prompt contract
type resultPayload struct {
	Summary string         `json:"summary"`
	Claims  []claimPayload `json:"claims"`
}

type claimPayload struct {
	Text       string   `json:"text"`
	SourceURLs []string `json:"source_urls"`
	SourceIDs  []string `json:"source_ids"`
	Confidence *float64 `json:"confidence"`
}

// ParseResult decodes a backend reply. Models sometimes wrap the JSON in
// markdown fences despite instructions, so fences are stripped first. A
// reply that is not valid JSON degrades to a summary-only result rather
// than failing the backend.
func ParseResult(content string) *Result {
	stripped := stripFences(content)

	var payload resultPayload
	if err := json.Unmarshal([]byte(stripped), &payload); err != nil {
		return &Result{
			Summary: strings.TrimSpace(content),
			Raw:     content,
		}
	}

	drafts := make([]model.ClaimDraft, 0, len(payload.Claims))
	for _, c := range payload.Claims {
		confidence := 1.0
		if c.Confidence != nil {
			confidence = *c.Confidence
		}
		drafts = append(drafts, model.ClaimDraft{
			Text:       c.Text,
			SourceURLs: c.SourceURLs,
			SourceIDs:  c.SourceIDs,
			Confidence: confidence,
		})
	}

	return &Result{
		Summary: strings.TrimSpace(payload.Summary),
		Claims:  drafts,
		Raw:     content,
	}
}

// stripFences removes a leading ```json (or bare ```) fence and its closer
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}

	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	if i := strings.LastIndex(t, "```"); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
