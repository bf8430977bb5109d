package synth

import (
	"slices"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/model"
	"github.com/quarryhq/quarry/internal/store"
)

// defaultMaxClaimChars caps a single claim's length after sanitization
const defaultMaxClaimChars = 2000

// Synthesizer folds backend results into the session store. It owns no
// state of its own; every mutation goes through the store, so concurrent
// Ingest calls for different results are safe.
type Synthesizer struct {
	KeyFn         TopicKeyFunc
	Classifier    Classifier
	MaxClaimChars int

	store  *store.Store
	logger *zap.Logger
}

// ChangeSet records the claim and conflict ids one Ingest call touched.
// A claim id lands in at most one of the two claim lists, and every id
// list is duplicate-free.
type ChangeSet struct {
	AddedClaimIDs  []string // New claims, including conflicting ones
	MergedClaimIDs []string // Existing claims that absorbed a draft
	ConflictIDs    []string // Conflicts opened or extended
	Dropped        int      // Drafts rejected by sanitization
}

// Empty reports whether the ingest changed nothing
func (c ChangeSet) Empty() bool {
	return len(c.AddedClaimIDs) == 0 && len(c.MergedClaimIDs) == 0 &&
		len(c.ConflictIDs) == 0 && c.Dropped == 0
}

// ClaimCount is the number of claims the ingest added or updated
func (c ChangeSet) ClaimCount() int {
	return len(c.AddedClaimIDs) + len(c.MergedClaimIDs)
}

func New(st *store.Store, classifier Classifier, maxClaimChars int, logger *zap.Logger) *Synthesizer {
	if classifier == nil {
		classifier = NewLexicalClassifier(DefaultDupThreshold, DefaultConflictThreshold)
	}
	if maxClaimChars <= 0 {
		maxClaimChars = defaultMaxClaimChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		KeyFn:         DefaultTopicKey,
		Classifier:    classifier,
		MaxClaimChars: maxClaimChars,
		store:         st,
		logger:        logger,
	}
}

// Ingest merges one backend result into the store. Results that are not ok
// change nothing. URLs the backend cited are registered as discovered
// sources before the claims that cite them are merged.
func (sy *Synthesizer) Ingest(res model.BackendResult) ChangeSet {
	var ch ChangeSet
	if res.Status != model.ResultOK {
		return ch
	}

	if res.Summary != "" {
		sy.store.SetSummary(res.BackendName, res.Summary)
	}

	for _, draft := range res.RawClaims {
		clean, ok := Sanitize(draft, sy.MaxClaimChars)
		if !ok {
			ch.Dropped++
			sy.logger.Warn("dropped claim draft",
				zap.String("backend", res.BackendName),
				zap.Int("chars", len(draft.Text)))
			continue
		}

		for _, u := range clean.SourceURLs {
			sy.store.AddDiscoveredSource(u)
		}

		key := sy.KeyFn(clean.Text)
		out := sy.store.AddOrMerge(clean, res.BackendName, key, sy.Classifier.Classify)
		switch out.Kind {
		case store.MergeAdded:
			ch.AddedClaimIDs = append(ch.AddedClaimIDs, out.ClaimID)
		case store.MergeMerged:
			// A draft may fold into a claim this same call just added.
			if !slices.Contains(ch.AddedClaimIDs, out.ClaimID) {
				ch.MergedClaimIDs = appendID(ch.MergedClaimIDs, out.ClaimID)
			}
		case store.MergeConflicted:
			ch.AddedClaimIDs = append(ch.AddedClaimIDs, out.ClaimID)
			ch.ConflictIDs = appendID(ch.ConflictIDs, out.ConflictID)
			sy.logger.Info("claims conflict",
				zap.String("backend", res.BackendName),
				zap.String("topic_key", key),
				zap.String("conflict_id", out.ConflictID))
		}
	}

	sy.logger.Debug("ingested backend result",
		zap.String("backend", res.BackendName),
		zap.Int("added", len(ch.AddedClaimIDs)),
		zap.Int("merged", len(ch.MergedClaimIDs)),
		zap.Int("conflicts", len(ch.ConflictIDs)),
		zap.Int("dropped", ch.Dropped))

	return ch
}

func appendID(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}
