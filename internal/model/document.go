package model

// Document is the render-agnostic structured report projected from a
// snapshot. Projection is pure: the same snapshot always yields an
// identical document.
type Document struct {
	SessionID string       `json:"session_id"`
	Query     string       `json:"query"`
	Sections  []DocSection `json:"sections"`
	Sources   []DocSource  `json:"sources,omitempty"`
	Summaries []DocSummary `json:"summaries,omitempty"`
}

// DocSection groups the claims that share a topic key
type DocSection struct {
	Title    string       `json:"title"`
	TopicKey string       `json:"topic_key"`
	Claims   []DocClaim   `json:"claims"`
	Conflict *DocConflict `json:"conflict,omitempty"` // Present when the topic is disputed
}

// DocClaim is a claim as it appears in the document
type DocClaim struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	Backends   []string      `json:"backends"`
	Confidence float64       `json:"confidence"`
	Citations  []DocCitation `json:"citations,omitempty"`
}

// DocCitation is a claim's provenance entry
type DocCitation struct {
	Backend  string `json:"backend"`
	URL      string `json:"url,omitempty"`
	SourceID string `json:"source_id,omitempty"`
}

// DocConflict flags a disputed topic with each side's position
type DocConflict struct {
	ID         string        `json:"id"`
	Positions  []DocPosition `json:"positions"`
	Resolution string        `json:"resolution,omitempty"`
}

// DocPosition is one side of a conflict
type DocPosition struct {
	ClaimID    string   `json:"claim_id"`
	Text       string   `json:"text"`
	Backends   []string `json:"backends"`
	Superseded bool     `json:"superseded,omitempty"`
}

// DocSource lists session source material
type DocSource struct {
	ID     string       `json:"id"`
	Kind   SourceKind   `json:"kind"`
	Origin SourceOrigin `json:"origin"`
	Label  string       `json:"label,omitempty"`
}

// DocSummary carries one backend's prose summary
type DocSummary struct {
	Backend string `json:"backend"`
	Text    string `json:"text"`
}
