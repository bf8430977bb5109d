package model

// Claim is a single factual assertion in the working document
type Claim struct {
	ID                string     `json:"id"`                      // Unique claim id
	Seq               int        `json:"seq"`                     // Insertion order within the session
	Text              string     `json:"text"`                    // The claim text itself
	TopicKey          string     `json:"topic_key"`               // Normalized grouping key
	ReportingBackends []string   `json:"reporting_backends"`      // Backends that reported this claim (sorted set)
	Citations         []Citation `json:"citations"`               // Provenance, in arrival order
	Confidence        float64    `json:"confidence"`              // 0.0 - 1.0
	SupersededBy      string     `json:"superseded_by,omitempty"` // Claim id that replaced this one
}

// Citation records where a claim came from. Every claim carries at least
// one citation naming the backend that reported it.
type Citation struct {
	ClaimID  string `json:"claim_id"`
	Backend  string `json:"backend"`             // Reporting backend name
	URL      string `json:"url,omitempty"`       // Underlying source URL, if the backend gave one
	SourceID string `json:"source_id,omitempty"` // Underlying uploaded source, if any
}

// Conflict groups claims about the same topic that disagree
type Conflict struct {
	ID             string   `json:"id"`
	TopicKey       string   `json:"topic_key"`
	MemberClaimIDs []string `json:"member_claim_ids"`     // At least two claims sharing the topic key
	Resolution     string   `json:"resolution,omitempty"` // Free-text note; conflict stays visible once set
}

// Relation classifies a candidate claim against an existing one
type Relation string

const (
	RelationDuplicate   Relation = "duplicate"   // Same assertion, merge provenance
	RelationConflicting Relation = "conflicting" // Same topic, contradictory content
	RelationUnrelated   Relation = "unrelated"   // Coexists without merging
)
