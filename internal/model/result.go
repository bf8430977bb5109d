package model

import "time"

// ClaimDraft is a raw claim as a backend reported it, before sanitization
// and merging. Drafts are transient; once consumed they are never stored.
type ClaimDraft struct {
	Text       string   `json:"text"`
	SourceURLs []string `json:"source_urls,omitempty"` // URLs the backend cites for this claim
	SourceIDs  []string `json:"source_ids,omitempty"`  // Uploaded source ids the backend cites
	Confidence float64  `json:"confidence"`            // 0.0 - 1.0, defaults to 1.0 when the backend omits it
}

// BackendResult is the outcome of one backend's research call within a round
type BackendResult struct {
	BackendName string        `json:"backend_name"`
	Status      ResultStatus  `json:"status"`
	Summary     string        `json:"summary,omitempty"`      // Backend's own prose summary
	RawClaims   []ClaimDraft  `json:"raw_claims,omitempty"`   // Empty unless Status is ok
	ErrorDetail string        `json:"error_detail,omitempty"` // Set when Status is failed or timed-out
	Elapsed     time.Duration `json:"elapsed,omitempty"`
}

// ResultStatus is the terminal state of a single backend call
type ResultStatus string

const (
	ResultOK       ResultStatus = "ok"
	ResultFailed   ResultStatus = "failed"
	ResultTimedOut ResultStatus = "timed-out"
)

// BackendStatus is the live per-backend state surfaced on the status stream
type BackendStatus string

const (
	BackendPending   BackendStatus = "pending"
	BackendSearching BackendStatus = "searching"
	BackendDone      BackendStatus = "done"
	BackendFailed    BackendStatus = "failed" // Covers both adapter failure and timeout
)

// BackendSummary is the latest prose summary a backend produced for the session
type BackendSummary struct {
	Backend string `json:"backend"`
	Text    string `json:"text"`
}
