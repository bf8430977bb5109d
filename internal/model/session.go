package model

// Stage is the session lifecycle state
type Stage string

const (
	StageIdle         Stage = "idle"         // Created, nothing submitted yet
	StageDispatching  Stage = "dispatching"  // Fan-out sent, no results back yet
	StageSynthesizing Stage = "synthesizing" // At least one result arrived, merging in progress
	StageGenerating   Stage = "generating"   // Round exhausted, final document being projected
	StageDone         Stage = "done"         // Document current; follow-ups start a new round
	StageFailed       Stage = "failed"       // Every backend in a round failed; terminal
)

// Snapshot is a consistent, deeply-copied view of a session's accumulated
// state. Slices are ordered deterministically: claims by Seq, conflicts and
// sources by creation order, summaries by backend name.
type Snapshot struct {
	SessionID string           `json:"session_id"`
	Query     string           `json:"query"`
	Stage     Stage            `json:"stage"`
	Claims    []Claim          `json:"claims"`
	Conflicts []Conflict       `json:"conflicts"`
	Sources   []Source         `json:"sources"`
	Summaries []BackendSummary `json:"summaries,omitempty"`
}
