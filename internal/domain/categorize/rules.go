package categorize

import (
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"

	"github.com/fincopilot-dev/fincopilot/internal/domain/chart"
)

// Rule-tier confidence levels. A keyword hit is trusted enough to stand on
// its own unless the caller asks for a second opinion; a fuzzy hit is below
// the review threshold and will be double-checked by the language model
// when one is available.
const (
	KeywordConfidence = 0.7
	FuzzyConfidence   = 0.55
)

// Match is a rule-tier categorization verdict.
type Match struct {
	Code       string
	Confidence float64
	Reason     string
}

// Matcher maps a transaction description to a chart-of-accounts code.
// Implementations must be safe for concurrent use.
type Matcher interface {
	Match(description string, amount decimal.Decimal) (Match, bool)
}

// NoopMatcher never matches. Useful as a seam in tests and when the chart
// has no usable vocabulary yet.
type NoopMatcher struct{}

func (NoopMatcher) Match(string, decimal.Decimal) (Match, bool) { return Match{}, false }

// merchantAliases maps merchant vocabulary that rarely appears in account
// names to the codes of the default chart. Longest alias wins on overlap.
var merchantAliases = map[string]string{
	"PAYROLL":     "110",
	"DIRECT DEP":  "110",
	"SUPERMARKET": "230",
	"GROCERY":     "230",
	"WHOLE FOODS": "230",
	"TRADER JOE":  "230",
	"UBER":        "240",
	"LYFT":        "240",
	"TAXI":        "240",
	"METRO":       "240",
	"SHELL":       "240",
	"CHEVRON":     "240",
	"PHARMACY":    "260",
	"WALGREENS":   "260",
	"CVS":         "260",
	"RESTAURANT":  "272",
	"CAFE":        "272",
	"COFFEE":      "272",
	"STARBUCKS":   "272",
	"PIZZA":       "272",
	"BURGER":      "272",
	"NETFLIX":     "274",
	"SPOTIFY":     "274",
	"CINEMA":      "274",
	"AMAZON":      "276",
	"AIRLINE":     "278",
	"AIRBNB":      "278",
	"HOTEL":       "278",
}

// KeywordMatcher does exact substring matching of chart keywords and
// merchant aliases against the transaction description. Patterns are
// compiled into a single automaton so one pass over the description finds
// every hit regardless of vocabulary size.
type KeywordMatcher struct {
	automaton *ahocorasick.Matcher
	patterns  []string
	codes     []string
}

// NewKeywordMatcher compiles the registry vocabulary plus the built-in
// merchant aliases.
func NewKeywordMatcher(reg *chart.Registry) *KeywordMatcher {
	byPattern := make(map[string]string)
	for code, kws := range reg.Keywords() {
		if code == chart.UncategorizedCode {
			continue
		}
		for _, kw := range kws {
			byPattern[kw] = code
		}
	}
	for alias, code := range merchantAliases {
		if reg.Has(code) {
			byPattern[alias] = code
		}
	}

	patterns := make([]string, 0, len(byPattern))
	for p := range byPattern {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	codes := make([]string, len(patterns))
	for i, p := range patterns {
		codes[i] = byPattern[p]
	}

	return &KeywordMatcher{
		automaton: ahocorasick.NewStringMatcher(patterns),
		patterns:  patterns,
		codes:     codes,
	}
}

func (m *KeywordMatcher) Match(description string, _ decimal.Decimal) (Match, bool) {
	if len(m.patterns) == 0 {
		return Match{}, false
	}
	hits := m.automaton.Match([]byte(strings.ToUpper(description)))
	if len(hits) == 0 {
		return Match{}, false
	}

	// Longest matched pattern wins: "WHOLE FOODS" beats "FOOD".
	best := -1
	for _, h := range hits {
		i := int(h)
		if best == -1 || len(m.patterns[i]) > len(m.patterns[best]) {
			best = i
		}
	}

	return Match{
		Code:       m.codes[best],
		Confidence: KeywordConfidence,
		Reason:     "keyword match: " + strings.ToLower(m.patterns[best]),
	}, true
}

// FuzzyMatcher catches misspelled or truncated merchant strings that the
// exact tier misses. Each description token is ranked against the
// vocabulary and the closest edit-distance hit under the cutoff wins.
type FuzzyMatcher struct {
	vocabulary []string
	codes      map[string]string
	maxRank    int
}

// NewFuzzyMatcher builds a fuzzy matcher over the registry vocabulary.
func NewFuzzyMatcher(reg *chart.Registry) *FuzzyMatcher {
	codes := make(map[string]string)
	for code, kws := range reg.Keywords() {
		if code == chart.UncategorizedCode {
			continue
		}
		for _, kw := range kws {
			codes[kw] = code
		}
	}
	for alias, code := range merchantAliases {
		if reg.Has(code) && !strings.Contains(alias, " ") {
			codes[alias] = code
		}
	}

	vocabulary := make([]string, 0, len(codes))
	for w := range codes {
		vocabulary = append(vocabulary, w)
	}
	sort.Strings(vocabulary)

	return &FuzzyMatcher{vocabulary: vocabulary, codes: codes, maxRank: 2}
}

func (m *FuzzyMatcher) Match(description string, _ decimal.Decimal) (Match, bool) {
	bestRank := m.maxRank + 1
	var bestWord string
	for _, token := range strings.Fields(strings.ToUpper(description)) {
		token = strings.Trim(token, "&/,.()*#")
		if len(token) < 4 {
			continue
		}
		for _, r := range fuzzy.RankFindFold(token, m.vocabulary) {
			if r.Distance >= 0 && r.Distance < bestRank {
				bestRank = r.Distance
				bestWord = r.Target
			}
		}
	}
	if bestWord == "" {
		return Match{}, false
	}
	return Match{
		Code:       m.codes[bestWord],
		Confidence: FuzzyConfidence,
		Reason:     "fuzzy match: " + strings.ToLower(bestWord),
	}, true
}

// TieredMatcher tries the exact tier first and falls back to the fuzzy
// tier. The exact tier returns a confidence above the review threshold,
// the fuzzy tier below it.
type TieredMatcher struct {
	tiers []Matcher
}

// NewTieredMatcher builds the standard keyword-then-fuzzy chain from a
// chart registry.
func NewTieredMatcher(reg *chart.Registry) *TieredMatcher {
	return &TieredMatcher{tiers: []Matcher{
		NewKeywordMatcher(reg),
		NewFuzzyMatcher(reg),
	}}
}

func (m *TieredMatcher) Match(description string, amount decimal.Decimal) (Match, bool) {
	for _, tier := range m.tiers {
		if match, ok := tier.Match(description, amount); ok {
			return match, true
		}
	}
	return Match{}, false
}
