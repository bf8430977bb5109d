package model

// Source is input material attached to a session. Sources are immutable
// once added; the session's source list is append-only.
type Source struct {
	ID       string            `json:"id"`
	Kind     SourceKind        `json:"kind"`
	Text     string            `json:"text"`               // Extracted text content (extraction happens upstream)
	Metadata map[string]string `json:"metadata,omitempty"` // Filename, title, url, etc.
	Origin   SourceOrigin      `json:"origin"`
}

// SourceKind describes what the source material is
type SourceKind string

const (
	SourceKindPDF       SourceKind = "pdf"
	SourceKindURL       SourceKind = "url"
	SourceKindDocument  SourceKind = "document"
	SourceKindPlainText SourceKind = "plain-text"
)

// SourceOrigin records how the source entered the session
type SourceOrigin string

const (
	OriginUserUploaded      SourceOrigin = "user-uploaded"      // Attached by the caller
	OriginBackendDiscovered SourceOrigin = "backend-discovered" // Surfaced by a backend during research
)
