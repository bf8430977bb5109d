package synth

import "github.com/quarryhq/quarry/internal/model"

// Classifier decides how a candidate claim relates to an existing one.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(existing, candidate string) model.Relation
}

// Default classifier thresholds
const (
	DefaultDupThreshold      = 0.7
	DefaultConflictThreshold = 0.9
)

// LexicalClassifier compares claims by token overlap. Two claims whose
// token sets mostly agree are duplicates. Two claims that agree everywhere
// except their numbers dispute the same fact and are conflicting. Plain
// paraphrases with low overlap stay unrelated; no semantic understanding
// is attempted.
type LexicalClassifier struct {
	DupThreshold      float64 // Jaccard similarity at or above which texts are duplicates
	ConflictThreshold float64 // Number-masked similarity at or above which differing numbers conflict
}

// NewLexicalClassifier builds a classifier, applying defaults for
// out-of-range thresholds.
func NewLexicalClassifier(dupThreshold, conflictThreshold float64) *LexicalClassifier {
	if dupThreshold <= 0 || dupThreshold > 1 {
		dupThreshold = DefaultDupThreshold
	}
	if conflictThreshold <= 0 || conflictThreshold > 1 {
		conflictThreshold = DefaultConflictThreshold
	}
	return &LexicalClassifier{DupThreshold: dupThreshold, ConflictThreshold: conflictThreshold}
}

func (lc *LexicalClassifier) Classify(existing, candidate string) model.Relation {
	a := tokenSet(existing)
	b := tokenSet(candidate)

	if jaccard(a, b) >= lc.DupThreshold {
		return model.RelationDuplicate
	}

	maskedA, numsA := maskNumbers(a)
	maskedB, numsB := maskNumbers(b)
	if jaccard(maskedA, maskedB) >= lc.ConflictThreshold && !sameSet(numsA, numsB) {
		return model.RelationConflicting
	}

	return model.RelationUnrelated
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenize(text) {
		set[tok] = true
	}
	return set
}

// jaccard is intersection over union of two token sets
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// maskNumbers replaces numeric tokens with a placeholder and returns the
// masked set alongside the numbers that were removed.
func maskNumbers(set map[string]bool) (masked, nums map[string]bool) {
	masked = make(map[string]bool, len(set))
	nums = make(map[string]bool)
	for tok := range set {
		if leadsWithDigit(tok) {
			masked["#"] = true
			nums[tok] = true
			continue
		}
		masked[tok] = true
	}
	return masked, nums
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for tok := range a {
		if !b[tok] {
			return false
		}
	}
	return true
}
