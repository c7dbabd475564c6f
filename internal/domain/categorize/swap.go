package categorize

import (
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// SwappableMatcher is a Matcher whose underlying implementation can be
// replaced at runtime. The engine holds one instance for the process
// lifetime; the background chart refresh swaps in a rebuilt matcher when
// the chart of accounts changes.
type SwappableMatcher struct {
	current atomic.Value // Matcher
}

type matcherBox struct{ m Matcher }

// NewSwappableMatcher wraps an initial matcher.
func NewSwappableMatcher(m Matcher) *SwappableMatcher {
	s := &SwappableMatcher{}
	s.Swap(m)
	return s
}

// Swap replaces the active matcher. Nil falls back to NoopMatcher.
func (s *SwappableMatcher) Swap(m Matcher) {
	if m == nil {
		m = NoopMatcher{}
	}
	s.current.Store(matcherBox{m: m})
}

func (s *SwappableMatcher) Match(description string, amount decimal.Decimal) (Match, bool) {
	return s.current.Load().(matcherBox).m.Match(description, amount)
}
