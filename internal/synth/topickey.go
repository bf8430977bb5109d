package synth

import "strings"

// TopicKeyFunc derives the grouping key for a claim text. Claims sharing a
// key land in the same document section and are candidates for merging.
type TopicKeyFunc func(text string) string

// keyWords is the number of significant words a topic key keeps
const keyWords = 4

// stopwords are dropped when deriving topic keys. Short function words
// carry no topical signal and would fragment keys across phrasings.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"had": true, "has": true, "have": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "this": true, "to": true, "was": true,
	"were": true, "which": true, "with": true,
}

// DefaultTopicKey lowercases the text, strips punctuation, and joins the
// first few significant words. Numeric tokens are skipped so variants of
// the same figure ("$2.1B" vs "$1.8B") share a key and can be compared.
func DefaultTopicKey(text string) string {
	tokens := tokenize(text)

	var words []string
	for _, tok := range tokens {
		if stopwords[tok] || leadsWithDigit(tok) {
			continue
		}
		words = append(words, tok)
		if len(words) == keyWords {
			break
		}
	}

	// Nothing significant: fall back to the raw tokens so short numeric
	// or stopword-only claims still get a stable key.
	if len(words) == 0 {
		for _, tok := range tokens {
			words = append(words, tok)
			if len(words) == keyWords {
				break
			}
		}
	}
	if len(words) == 0 {
		return "general"
	}
	return strings.Join(words, "-")
}

// tokenize splits text into lowercase alphanumeric runs
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isAlnum(r)
	})
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r >= 'A' && r <= 'Z'
}

func leadsWithDigit(tok string) bool {
	return len(tok) > 0 && tok[0] >= '0' && tok[0] <= '9'
}
