// Package chart provides the chart-of-accounts registry: the read-only
// mapping of account codes to category metadata used by rule matching and
// LLM classification.
package chart

import (
	"sort"
	"strings"
)

// UncategorizedCode is the sentinel account code assigned when no
// classification is available.
const UncategorizedCode = "000"

// Entry describes a single chart-of-accounts category.
type Entry struct {
	Code          string `json:"code"`
	AccountType   string `json:"accountType"`
	ParentAccount string `json:"parentAccount,omitempty"`
	Account       string `json:"account"`
	Description   string `json:"description,omitempty"`
}

// Registry is an immutable snapshot of the chart of accounts, loaded once
// per pipeline run and safe to share across concurrent runs.
type Registry struct {
	byCode map[string]Entry
	codes  []string // stable, sorted
}

// NewRegistry builds a registry from a code -> entry mapping.
func NewRegistry(entries map[string]Entry) *Registry {
	byCode := make(map[string]Entry, len(entries))
	codes := make([]string, 0, len(entries))
	for code, e := range entries {
		if code == "" {
			continue
		}
		e.Code = code
		byCode[code] = e
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return &Registry{byCode: byCode, codes: codes}
}

// Lookup returns the entry for a code.
func (r *Registry) Lookup(code string) (Entry, bool) {
	e, ok := r.byCode[code]
	return e, ok
}

// Has reports whether a code exists in the chart.
func (r *Registry) Has(code string) bool {
	_, ok := r.byCode[code]
	return ok
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.codes)
}

// All returns every entry in stable code order.
func (r *Registry) All() []Entry {
	entries := make([]Entry, 0, len(r.codes))
	for _, code := range r.codes {
		entries = append(entries, r.byCode[code])
	}
	return entries
}

// Excerpt returns at most n entries in stable code order. Used to bound
// the size of LLM prompts.
func (r *Registry) Excerpt(n int) []Entry {
	if n <= 0 || n >= len(r.codes) {
		return r.All()
	}
	entries := make([]Entry, 0, n)
	for _, code := range r.codes[:n] {
		entries = append(entries, r.byCode[code])
	}
	return entries
}

// ByType returns entries of the given account type in stable code order.
func (r *Registry) ByType(accountType string) []Entry {
	var entries []Entry
	for _, code := range r.codes {
		if strings.EqualFold(r.byCode[code].AccountType, accountType) {
			entries = append(entries, r.byCode[code])
		}
	}
	return entries
}

// Keywords returns, per entry, uppercase tokens drawn from the account
// name. These are the primitives the rule-based matcher is built from.
func (r *Registry) Keywords() map[string][]string {
	keywords := make(map[string][]string, len(r.codes))
	for _, code := range r.codes {
		e := r.byCode[code]
		var tokens []string
		for _, tok := range strings.Fields(strings.ToUpper(e.Account)) {
			tok = strings.Trim(tok, "&/,.()")
			if len(tok) >= 3 {
				tokens = append(tokens, tok)
			}
		}
		if len(tokens) > 0 {
			keywords[code] = tokens
		}
	}
	return keywords
}
