package synth

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/model"
	"github.com/quarryhq/quarry/internal/store"
)

func newTestSynthesizer(t *testing.T) (*Synthesizer, *store.Store) {
	t.Helper()
	st := store.New()
	return New(st, nil, 0, zap.NewNop()), st
}

func TestIngestAddsClaimsAndSummary(t *testing.T) {
	sy, st := newTestSynthesizer(t)

	ch := sy.Ingest(model.BackendResult{
		BackendName: "openai",
		Status:      model.ResultOK,
		Summary:     "short prose digest",
		RawClaims: []model.ClaimDraft{
			{Text: "Go was announced in November 2009", Confidence: 0.9},
			{Text: "Go modules landed in Go 1.11", Confidence: 0.8},
		},
	})

	if len(ch.AddedClaimIDs) != 2 || len(ch.MergedClaimIDs) != 0 ||
		len(ch.ConflictIDs) != 0 || ch.Dropped != 0 {
		t.Fatalf("unexpected change set %+v", ch)
	}

	snap := st.Snapshot()
	if len(snap.Claims) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(snap.Claims))
	}
	if len(snap.Summaries) != 1 || snap.Summaries[0].Backend != "openai" {
		t.Errorf("summary not recorded: %+v", snap.Summaries)
	}
	for i, c := range snap.Claims {
		if c.TopicKey == "" {
			t.Errorf("claim %q has no topic key", c.Text)
		}
		if ch.AddedClaimIDs[i] != c.ID {
			t.Errorf("added id %q does not match stored claim %q", ch.AddedClaimIDs[i], c.ID)
		}
	}
}

func TestIngestIgnoresFailedResults(t *testing.T) {
	sy, st := newTestSynthesizer(t)

	for _, status := range []model.ResultStatus{model.ResultFailed, model.ResultTimedOut} {
		ch := sy.Ingest(model.BackendResult{
			BackendName: "grok",
			Status:      status,
			ErrorDetail: "upstream 500",
			RawClaims:   []model.ClaimDraft{{Text: "should never land", Confidence: 1}},
		})
		if !ch.Empty() {
			t.Errorf("status %q produced changes %+v", status, ch)
		}
	}

	if got := len(st.Snapshot().Claims); got != 0 {
		t.Errorf("expected empty store, got %d claims", got)
	}
}

func TestIngestMergesAcrossBackends(t *testing.T) {
	sy, st := newTestSynthesizer(t)

	sy.Ingest(model.BackendResult{
		BackendName: "openai",
		Status:      model.ResultOK,
		RawClaims:   []model.ClaimDraft{{Text: "the capital of France is Paris", Confidence: 0.9}},
	})
	ch := sy.Ingest(model.BackendResult{
		BackendName: "anthropic",
		Status:      model.ResultOK,
		RawClaims:   []model.ClaimDraft{{Text: "The capital of France is Paris.", Confidence: 0.8}},
	})

	if len(ch.MergedClaimIDs) != 1 || len(ch.AddedClaimIDs) != 0 {
		t.Fatalf("expected a merge, got %+v", ch)
	}

	snap := st.Snapshot()
	if len(snap.Claims) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(snap.Claims))
	}
	if ch.MergedClaimIDs[0] != snap.Claims[0].ID {
		t.Errorf("merged id = %q, want %q", ch.MergedClaimIDs[0], snap.Claims[0].ID)
	}
	if got := snap.Claims[0].ReportingBackends; len(got) != 2 {
		t.Errorf("reporting backends = %v", got)
	}
}

func TestIngestRecordsConflicts(t *testing.T) {
	sy, st := newTestSynthesizer(t)

	sy.Ingest(model.BackendResult{
		BackendName: "openai",
		Status:      model.ResultOK,
		RawClaims:   []model.ClaimDraft{{Text: "Revenue grew to $2.1B in 2024", Confidence: 0.9}},
	})
	ch := sy.Ingest(model.BackendResult{
		BackendName: "grok",
		Status:      model.ResultOK,
		RawClaims:   []model.ClaimDraft{{Text: "Revenue grew to $1.8B in 2024", Confidence: 0.9}},
	})

	if len(ch.ConflictIDs) != 1 || len(ch.AddedClaimIDs) != 1 {
		t.Fatalf("expected a conflict, got %+v", ch)
	}

	snap := st.Snapshot()
	if len(snap.Claims) != 2 {
		t.Fatalf("both claims should be kept, got %d", len(snap.Claims))
	}
	if len(snap.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(snap.Conflicts))
	}
	if ch.ConflictIDs[0] != snap.Conflicts[0].ID {
		t.Errorf("conflict id = %q, want %q", ch.ConflictIDs[0], snap.Conflicts[0].ID)
	}
	if snap.Claims[0].TopicKey != snap.Claims[1].TopicKey {
		t.Errorf("conflicting claims have different topic keys: %q vs %q",
			snap.Claims[0].TopicKey, snap.Claims[1].TopicKey)
	}
}

func TestIngestDropsJunkDrafts(t *testing.T) {
	sy, st := newTestSynthesizer(t)
	sy.MaxClaimChars = 50

	ch := sy.Ingest(model.BackendResult{
		BackendName: "openai",
		Status:      model.ResultOK,
		RawClaims: []model.ClaimDraft{
			{Text: "a fine claim", Confidence: 1},
			{Text: "   ", Confidence: 1},
			{Text: strings.Repeat("x", 51), Confidence: 1},
		},
	})

	if len(ch.AddedClaimIDs) != 1 || ch.Dropped != 2 {
		t.Fatalf("unexpected change set %+v", ch)
	}
	if got := len(st.Snapshot().Claims); got != 1 {
		t.Errorf("expected 1 claim, got %d", got)
	}
}

func TestIngestCollapsesRepeatedDrafts(t *testing.T) {
	sy, st := newTestSynthesizer(t)

	ch := sy.Ingest(model.BackendResult{
		BackendName: "openai",
		Status:      model.ResultOK,
		RawClaims: []model.ClaimDraft{
			{Text: "the capital of France is Paris", Confidence: 0.9},
			{Text: "The capital of France is Paris.", Confidence: 0.8},
		},
	})

	if len(ch.AddedClaimIDs) != 1 || len(ch.MergedClaimIDs) != 0 {
		t.Fatalf("repeat within one result should fold into the added claim, got %+v", ch)
	}
	if got := len(st.Snapshot().Claims); got != 1 {
		t.Errorf("expected 1 claim, got %d", got)
	}
}

func TestIngestRegistersDiscoveredSources(t *testing.T) {
	sy, st := newTestSynthesizer(t)

	sy.Ingest(model.BackendResult{
		BackendName: "openai",
		Status:      model.ResultOK,
		RawClaims: []model.ClaimDraft{
			{Text: "claim one", SourceURLs: []string{"https://example.com/a"}, Confidence: 1},
			{Text: "claim two", SourceURLs: []string{"https://example.com/a", "https://example.com/b"}, Confidence: 1},
		},
	})

	snap := st.Snapshot()
	if len(snap.Sources) != 2 {
		t.Fatalf("expected 2 discovered sources, got %d", len(snap.Sources))
	}
	for _, src := range snap.Sources {
		if src.Origin != model.OriginBackendDiscovered {
			t.Errorf("source origin = %q, want %q", src.Origin, model.OriginBackendDiscovered)
		}
	}
}

func TestIngestCustomKeyFn(t *testing.T) {
	sy, st := newTestSynthesizer(t)
	sy.KeyFn = func(string) string { return "fixed" }

	sy.Ingest(model.BackendResult{
		BackendName: "openai",
		Status:      model.ResultOK,
		RawClaims:   []model.ClaimDraft{{Text: "anything at all", Confidence: 1}},
	})

	if got := st.Snapshot().Claims[0].TopicKey; got != "fixed" {
		t.Errorf("topic key = %q, want %q", got, "fixed")
	}
}
