package backend

import (
	"context"

	"github.com/quarryhq/quarry/internal/model"
)

// Adapter is a single research backend. Implementations must honor context
// cancellation: the dispatcher sets a per-backend deadline on every call.
type Adapter interface {
	// Name returns the backend name used in provenance and status events
	Name() string

	// Research runs one research call for the query, with the session's
	// accumulated sources embedded in the prompt
	Research(ctx context.Context, query string, sources []model.Source) (*Result, error)
}

// Result is the parsed output of one research call
type Result struct {
	Summary string             // Backend's prose summary
	Claims  []model.ClaimDraft // Structured claims, unsanitized
	Raw     string             // Raw model output, kept for diagnostics
}
