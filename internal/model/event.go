package model

// EventType identifies a status stream event
type EventType string

const (
	EventStatus        EventType = "status"         // Stage change with per-backend states
	EventBackendUpdate EventType = "backend_update" // One backend finished or failed
	EventDocument      EventType = "document"       // Updated document projection
	EventError         EventType = "error"          // Fatal round error
)

// Event is one message on a session's status stream. Fields beyond Type
// are populated per event kind.
type Event struct {
	Type EventType `json:"type"`

	// status
	Stage           Stage                    `json:"stage,omitempty"`
	BackendStatuses map[string]BackendStatus `json:"backend_statuses,omitempty"`

	// backend_update
	Backend       string        `json:"backend,omitempty"`
	BackendStatus BackendStatus `json:"backend_status,omitempty"`
	ClaimCount    int           `json:"claim_count,omitempty"`

	// document
	Document *Document `json:"document,omitempty"`

	// error, also reused for backend_update failure detail
	Error string `json:"error,omitempty"`
}
