package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/quarryhq/quarry/internal/model"
)

var (
	ErrConflictNotFound = errors.New("conflict not found")
	ErrClaimNotFound    = errors.New("claim not found")
)

// MergeKind describes what AddOrMerge did with a draft
type MergeKind string

const (
	MergeAdded      MergeKind = "added"      // New claim, no relation to existing ones
	MergeMerged     MergeKind = "merged"     // Provenance folded into an existing claim
	MergeConflicted MergeKind = "conflicted" // New claim that disputes an existing one
)

// MergeOutcome reports the effect of one AddOrMerge call
type MergeOutcome struct {
	Kind       MergeKind
	ClaimID    string
	ConflictID string // Set when Kind is MergeConflicted
}

// Store holds one session's accumulated claims, conflicts, and sources.
// All methods are safe for concurrent use. Merges for the same topic key
// are serialized; distinct keys proceed in parallel. Snapshots are deep
// copies and never observe a half-applied merge.
type Store struct {
	mu sync.RWMutex

	claims     map[string]*model.Claim
	claimOrder []string            // claim ids by insertion
	byTopic    map[string][]string // topic key -> claim ids by insertion

	conflicts       map[string]*model.Conflict
	conflictOrder   []string
	conflictByTopic map[string]string // one conflict per topic key

	sources    []model.Source
	discovered map[string]bool // urls already registered as discovered sources

	summaries map[string]string // backend name -> latest prose summary

	nextSeq int

	keyMu    sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// New creates an empty session store
func New() *Store {
	return &Store{
		claims:          make(map[string]*model.Claim),
		byTopic:         make(map[string][]string),
		conflicts:       make(map[string]*model.Conflict),
		conflictByTopic: make(map[string]string),
		discovered:      make(map[string]bool),
		summaries:       make(map[string]string),
		keyLocks:        make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing merges for a topic key
func (s *Store) keyLock(topicKey string) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	if l, ok := s.keyLocks[topicKey]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.keyLocks[topicKey] = l
	return l
}

// AddOrMerge folds one sanitized draft into the store. The classify
// predicate compares the draft against each live claim under the same
// topic key: any duplicate match merges provenance into the earliest such
// claim; otherwise any conflicting match adds the draft as a new claim and
// records (or extends) the topic's conflict; otherwise the draft becomes a
// new independent claim.
func (s *Store) AddOrMerge(draft model.ClaimDraft, backendName, topicKey string, classify func(existing, candidate string) model.Relation) MergeOutcome {
	kl := s.keyLock(topicKey)
	kl.Lock()
	defer kl.Unlock()

	type candidate struct {
		id   string
		text string
	}

	s.mu.RLock()
	var candidates []candidate
	for _, id := range s.byTopic[topicKey] {
		c := s.claims[id]
		if c.SupersededBy != "" {
			continue // retired claims are not merge targets
		}
		candidates = append(candidates, candidate{id: c.ID, text: c.Text})
	}
	s.mu.RUnlock()

	// Classify outside the store lock; the predicate may be expensive.
	var dupID string
	var conflictingIDs []string
	for _, c := range candidates {
		switch classify(c.text, draft.Text) {
		case model.RelationDuplicate:
			if dupID == "" {
				dupID = c.id
			}
		case model.RelationConflicting:
			conflictingIDs = append(conflictingIDs, c.id)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dupID != "" {
		s.mergeInto(dupID, draft, backendName)
		return MergeOutcome{Kind: MergeMerged, ClaimID: dupID}
	}

	claim := s.addClaim(draft, backendName, topicKey)
	if len(conflictingIDs) > 0 {
		members := append(conflictingIDs, claim.ID)
		conflictID := s.ensureConflict(topicKey, members)
		return MergeOutcome{Kind: MergeConflicted, ClaimID: claim.ID, ConflictID: conflictID}
	}

	return MergeOutcome{Kind: MergeAdded, ClaimID: claim.ID}
}

// mergeInto folds a draft's provenance into an existing claim.
// Caller holds s.mu.
func (s *Store) mergeInto(claimID string, draft model.ClaimDraft, backendName string) {
	c := s.claims[claimID]

	if !containsString(c.ReportingBackends, backendName) {
		c.ReportingBackends = append(c.ReportingBackends, backendName)
		sort.Strings(c.ReportingBackends)
	}

	existing := make(map[citationKey]bool, len(c.Citations))
	for _, cit := range c.Citations {
		existing[keyOf(cit)] = true
	}
	for _, cit := range citationsFromDraft(claimID, backendName, draft) {
		if !existing[keyOf(cit)] {
			existing[keyOf(cit)] = true
			c.Citations = append(c.Citations, cit)
		}
	}

	if draft.Confidence > c.Confidence {
		c.Confidence = draft.Confidence
	}
}

// addClaim creates a new claim from a draft. Caller holds s.mu.
func (s *Store) addClaim(draft model.ClaimDraft, backendName, topicKey string) *model.Claim {
	id := uuid.NewString()
	c := &model.Claim{
		ID:                id,
		Seq:               s.nextSeq,
		Text:              draft.Text,
		TopicKey:          topicKey,
		ReportingBackends: []string{backendName},
		Citations:         citationsFromDraft(id, backendName, draft),
		Confidence:        draft.Confidence,
	}
	s.nextSeq++

	s.claims[id] = c
	s.claimOrder = append(s.claimOrder, id)
	s.byTopic[topicKey] = append(s.byTopic[topicKey], id)
	return c
}

// ensureConflict records or extends the topic's conflict. Caller holds s.mu.
func (s *Store) ensureConflict(topicKey string, memberIDs []string) string {
	if cid, ok := s.conflictByTopic[topicKey]; ok {
		cf := s.conflicts[cid]
		for _, m := range memberIDs {
			if !containsString(cf.MemberClaimIDs, m) {
				cf.MemberClaimIDs = append(cf.MemberClaimIDs, m)
			}
		}
		return cid
	}

	cf := &model.Conflict{
		ID:       uuid.NewString(),
		TopicKey: topicKey,
	}
	for _, m := range memberIDs {
		if !containsString(cf.MemberClaimIDs, m) {
			cf.MemberClaimIDs = append(cf.MemberClaimIDs, m)
		}
	}
	s.conflicts[cf.ID] = cf
	s.conflictOrder = append(s.conflictOrder, cf.ID)
	s.conflictByTopic[topicKey] = cf.ID
	return cf.ID
}

// AddSource appends source material to the session. The id is assigned
// when empty; origin defaults to user-uploaded.
func (s *Store) AddSource(src model.Source) model.Source {
	s.mu.Lock()
	defer s.mu.Unlock()

	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.Kind == "" {
		src.Kind = model.SourceKindPlainText
	}
	if src.Origin == "" {
		src.Origin = model.OriginUserUploaded
	}
	s.sources = append(s.sources, src)
	return src
}

// AddDiscoveredSource registers a URL a backend surfaced during research.
// Each URL is registered once per session.
func (s *Store) AddDiscoveredSource(url string) (model.Source, bool) {
	if url == "" {
		return model.Source{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discovered[url] {
		return model.Source{}, false
	}
	s.discovered[url] = true

	src := model.Source{
		ID:       uuid.NewString(),
		Kind:     model.SourceKindURL,
		Origin:   model.OriginBackendDiscovered,
		Metadata: map[string]string{"url": url},
	}
	s.sources = append(s.sources, src)
	return src, true
}

// SetSummary records a backend's latest prose summary
func (s *Store) SetSummary(backendName, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[backendName] = text
}

// SourcesSnapshot returns a deep copy of the session's sources
func (s *Store) SourcesSnapshot() []model.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySources(s.sources)
}

// Snapshot returns a consistent deep copy of the store. Claims are ordered
// by insertion sequence, conflicts and sources by creation order, and
// summaries by backend name.
func (s *Store) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := model.Snapshot{
		Claims:    make([]model.Claim, 0, len(s.claimOrder)),
		Conflicts: make([]model.Conflict, 0, len(s.conflictOrder)),
	}

	for _, id := range s.claimOrder {
		snap.Claims = append(snap.Claims, copyClaim(s.claims[id]))
	}
	for _, id := range s.conflictOrder {
		snap.Conflicts = append(snap.Conflicts, copyConflict(s.conflicts[id]))
	}
	snap.Sources = copySources(s.sources)

	if len(s.summaries) > 0 {
		names := make([]string, 0, len(s.summaries))
		for name := range s.summaries {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			snap.Summaries = append(snap.Summaries, model.BackendSummary{Backend: name, Text: s.summaries[name]})
		}
	}

	return snap
}

// ResolveConflict attaches a resolution note. The conflict stays visible;
// resolving twice with the same text is a no-op.
func (s *Store) ResolveConflict(conflictID, resolution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, ok := s.conflicts[conflictID]
	if !ok {
		return ErrConflictNotFound
	}
	cf.Resolution = resolution
	return nil
}

// SupersedeClaim marks a claim as replaced. Superseding never happens
// automatically; this is an explicit curation action.
func (s *Store) SupersedeClaim(claimID, replacementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok {
		return ErrClaimNotFound
	}
	if _, ok := s.claims[replacementID]; !ok {
		return ErrClaimNotFound
	}
	if claimID == replacementID {
		return errors.New("claim cannot supersede itself")
	}
	c.SupersededBy = replacementID
	return nil
}

// CheckIntegrity verifies the store's referential invariants: citations
// point at their owning claim, conflicts have at least two members sharing
// the conflict's topic key, and supersede references resolve. Intended for
// tests and debugging.
func (s *Store) CheckIntegrity() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.claimOrder {
		c, ok := s.claims[id]
		if !ok {
			return fmt.Errorf("claim %s in order list but not in map", id)
		}
		if len(c.ReportingBackends) == 0 {
			return fmt.Errorf("claim %s has no reporting backends", id)
		}
		if len(c.Citations) == 0 {
			return fmt.Errorf("claim %s has no citations", id)
		}
		for _, cit := range c.Citations {
			if cit.ClaimID != c.ID {
				return fmt.Errorf("claim %s carries citation for %s", c.ID, cit.ClaimID)
			}
		}
		if c.SupersededBy != "" {
			if _, ok := s.claims[c.SupersededBy]; !ok {
				return fmt.Errorf("claim %s superseded by unknown claim %s", c.ID, c.SupersededBy)
			}
		}
	}

	for _, id := range s.conflictOrder {
		cf, ok := s.conflicts[id]
		if !ok {
			return fmt.Errorf("conflict %s in order list but not in map", id)
		}
		if len(cf.MemberClaimIDs) < 2 {
			return fmt.Errorf("conflict %s has %d members", id, len(cf.MemberClaimIDs))
		}
		for _, m := range cf.MemberClaimIDs {
			member, ok := s.claims[m]
			if !ok {
				return fmt.Errorf("conflict %s references unknown claim %s", id, m)
			}
			if member.TopicKey != cf.TopicKey {
				return fmt.Errorf("conflict %s member %s has topic %q, want %q", id, m, member.TopicKey, cf.TopicKey)
			}
		}
	}

	return nil
}

type citationKey struct {
	backend  string
	url      string
	sourceID string
}

func keyOf(c model.Citation) citationKey {
	return citationKey{backend: c.Backend, url: c.URL, sourceID: c.SourceID}
}

// citationsFromDraft builds the provenance entries a draft contributes.
// A draft with no underlying sources still yields one citation naming the
// reporting backend.
func citationsFromDraft(claimID, backendName string, draft model.ClaimDraft) []model.Citation {
	var cites []model.Citation
	for _, u := range draft.SourceURLs {
		cites = append(cites, model.Citation{ClaimID: claimID, Backend: backendName, URL: u})
	}
	for _, id := range draft.SourceIDs {
		cites = append(cites, model.Citation{ClaimID: claimID, Backend: backendName, SourceID: id})
	}
	if len(cites) == 0 {
		cites = append(cites, model.Citation{ClaimID: claimID, Backend: backendName})
	}
	return cites
}

func copyClaim(c *model.Claim) model.Claim {
	dup := *c
	dup.ReportingBackends = append([]string(nil), c.ReportingBackends...)
	dup.Citations = append([]model.Citation(nil), c.Citations...)
	return dup
}

func copyConflict(c *model.Conflict) model.Conflict {
	dup := *c
	dup.MemberClaimIDs = append([]string(nil), c.MemberClaimIDs...)
	return dup
}

func copySources(sources []model.Source) []model.Source {
	if sources == nil {
		return nil
	}
	out := make([]model.Source, len(sources))
	for i, src := range sources {
		out[i] = src
		if src.Metadata != nil {
			md := make(map[string]string, len(src.Metadata))
			for k, v := range src.Metadata {
				md[k] = v
			}
			out[i].Metadata = md
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
