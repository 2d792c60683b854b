// Package resolver matches free-text area queries against the canonical
// comuna names of the current dataset snapshot. Matching runs through
// ordered tiers, from exact equality down to fuzzy similarity, and
// always reports which tier produced the answer.
package resolver

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xrash/smetrics"

	"github.com/farmaturno/farmacias-api/normalizer"
)

// Method identifies the matching tier that produced a result.
type Method string

const (
	MethodExact      Method = "exact"
	MethodNormalized Method = "normalized"
	MethodPartial    Method = "partial"
	MethodFuzzy      Method = "fuzzy"
	MethodNone       Method = "none"

	// MethodFallback marks results recovered by an external language
	// model after every lexical tier failed. Resolve never returns it;
	// only the search service does.
	MethodFallback Method = "fallback"
)

const (
	// DefaultFuzzyThreshold is the similarity cutoff used when the
	// index is built without an explicit one.
	DefaultFuzzyThreshold = 0.75

	// confidenceNormalized is fixed for tier-2 matches; partial and
	// fuzzy confidences are capped below it so a weaker tier can never
	// outrank a normalized hit.
	confidenceNormalized = 0.95
	confidenceCap        = 0.90
	partialFloor         = 0.60

	// minSegment is the shortest substring that counts as a partial
	// match. Anything below it matches half the map by accident.
	minSegment = 3

	maxSuggestions = 3
)

// MatchResult is the outcome of resolving one query.
type MatchResult struct {
	Query           string   `json:"query"`
	NormalizedQuery string   `json:"normalized_query"`
	Matched         string   `json:"matched"`
	Confidence      float64  `json:"confidence"`
	Method          Method   `json:"method"`
	Suggestions     []string `json:"suggestions"`
}

// Found reports whether resolution produced a usable area.
func (m MatchResult) Found() bool {
	return m.Method != MethodNone && m.Matched != ""
}

// candidate is one canonical comuna with its precomputed lookup forms.
type candidate struct {
	canonical  string
	normalized string
	aliases    []string
}

// forms returns every normalized string this candidate answers to.
func (c *candidate) forms() []string {
	out := make([]string, 0, 1+len(c.aliases))
	out = append(out, c.normalized)
	out = append(out, c.aliases...)
	return out
}

// Index is an immutable comuna lookup built from one dataset snapshot.
// Build a new one on every refresh instead of mutating in place.
type Index struct {
	candidates []candidate
	exact      map[string]string
	normalized map[string]string
	threshold  float64
}

// NewIndex builds an index over the canonical comuna names. aliases
// maps shorthand forms to canonical names; entries whose canonical
// name is absent from comunas are dropped. A non-positive threshold
// falls back to DefaultFuzzyThreshold.
func NewIndex(comunas []string, aliases map[string]string, threshold float64) *Index {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}

	seen := make(map[string]bool, len(comunas))
	names := make([]string, 0, len(comunas))
	for _, name := range comunas {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	// Candidate order doubles as the tie-break: fewer characters first,
	// then alphabetical, so scans that keep the first best score are
	// deterministic.
	sort.Slice(names, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(names[i]), utf8.RuneCountInString(names[j])
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})

	idx := &Index{
		candidates: make([]candidate, 0, len(names)),
		exact:      make(map[string]string, len(names)),
		normalized: make(map[string]string, len(names)),
		threshold:  threshold,
	}

	pos := make(map[string]int, len(names))
	for _, name := range names {
		norm := normalizer.Normalize(name)
		idx.exact[name] = name
		if _, taken := idx.normalized[norm]; !taken {
			idx.normalized[norm] = name
		}
		pos[name] = len(idx.candidates)
		idx.candidates = append(idx.candidates, candidate{canonical: name, normalized: norm})
	}

	// Aliases are processed in sorted order so duplicate shorthands
	// resolve the same way on every build.
	aliasKeys := make([]string, 0, len(aliases))
	for k := range aliases {
		aliasKeys = append(aliasKeys, k)
	}
	sort.Strings(aliasKeys)

	for _, alias := range aliasKeys {
		canonical, ok := idx.normalized[normalizer.Normalize(aliases[alias])]
		if !ok {
			continue
		}
		normAlias := normalizer.Normalize(alias)
		if normAlias == "" {
			continue
		}
		if _, taken := idx.normalized[normAlias]; !taken {
			idx.normalized[normAlias] = canonical
		}
		i := pos[canonical]
		idx.candidates[i].aliases = append(idx.candidates[i].aliases, normAlias)
	}

	return idx
}

// Comunas returns the canonical names in tie-break order.
func (idx *Index) Comunas() []string {
	out := make([]string, len(idx.candidates))
	for i, c := range idx.candidates {
		out[i] = c.canonical
	}
	return out
}

// Len returns the number of canonical areas in the index.
func (idx *Index) Len() int {
	return len(idx.candidates)
}

// Threshold returns the fuzzy similarity cutoff the index was built with.
func (idx *Index) Threshold() float64 {
	return idx.threshold
}

// Resolve runs the query through the matching tiers and returns the
// first success. Empty queries skip straight to the no-match result.
func (idx *Index) Resolve(query string) MatchResult {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return MatchResult{
			Query:       query,
			Method:      MethodNone,
			Suggestions: []string{},
		}
	}

	normQuery := normalizer.Normalize(trimmed)
	result := MatchResult{
		Query:           query,
		NormalizedQuery: normQuery,
		Suggestions:     []string{},
	}

	// Tier 1: the raw query is itself a canonical name.
	if canonical, ok := idx.exact[trimmed]; ok {
		result.Matched = canonical
		result.Confidence = 1.0
		result.Method = MethodExact
		return result
	}

	// Tier 2: the normalized query equals a normalized name or alias.
	if canonical, ok := idx.normalized[normQuery]; ok {
		result.Matched = canonical
		result.Confidence = confidenceNormalized
		result.Method = MethodNormalized
		return result
	}

	// Tier 3: substring containment in either direction, which is what
	// catches phrases like "farmacias en quilpue".
	if canonical, confidence, ok := idx.partialMatch(normQuery); ok {
		result.Matched = canonical
		result.Confidence = confidence
		result.Method = MethodPartial
		return result
	}

	// Tier 4: fuzzy similarity. The full ranking is computed either
	// way because tier 5 reuses it for suggestions.
	ranked := idx.rankBySimilarity(normQuery)
	if len(ranked) > 0 && ranked[0].similarity >= idx.threshold {
		result.Matched = ranked[0].canonical
		result.Confidence = min(ranked[0].similarity, confidenceCap)
		result.Method = MethodFuzzy
		result.Suggestions = topNames(ranked[1:], maxSuggestions-1)
		return result
	}

	// Tier 5: no match. Suggestions come from the similarity ranking
	// regardless of the threshold.
	result.Method = MethodNone
	result.Suggestions = topNames(ranked, maxSuggestions)
	return result
}

// partialMatch finds the best containment match between the normalized
// query and any candidate form. Confidence grows with the share of the
// query covered by the matched segment.
func (idx *Index) partialMatch(normQuery string) (string, float64, bool) {
	queryLen := utf8.RuneCountInString(normQuery)
	if queryLen < minSegment {
		return "", 0, false
	}

	best := ""
	bestConfidence := 0.0
	for i := range idx.candidates {
		c := &idx.candidates[i]
		for _, form := range c.forms() {
			formLen := utf8.RuneCountInString(form)
			if formLen < minSegment {
				continue
			}
			if !strings.Contains(normQuery, form) && !strings.Contains(form, normQuery) {
				continue
			}

			segment := formLen
			if queryLen < segment {
				segment = queryLen
			}
			confidence := float64(segment) / float64(queryLen)
			if confidence < partialFloor {
				confidence = partialFloor
			}
			if confidence > confidenceCap {
				confidence = confidenceCap
			}
			if confidence > bestConfidence {
				bestConfidence = confidence
				best = c.canonical
			}
		}
	}

	return best, bestConfidence, best != ""
}

type scored struct {
	canonical  string
	similarity float64
}

// rankBySimilarity scores every candidate against the query and returns
// them best first. Candidate order breaks ties, so equal scores keep
// the shorter, alphabetically earlier name in front.
func (idx *Index) rankBySimilarity(normQuery string) []scored {
	if normQuery == "" {
		return nil
	}

	ranked := make([]scored, 0, len(idx.candidates))
	for i := range idx.candidates {
		c := &idx.candidates[i]
		best := 0.0
		for _, form := range c.forms() {
			if s := smetrics.JaroWinkler(normQuery, form, 0.7, 4); s > best {
				best = s
			}
		}
		ranked = append(ranked, scored{canonical: c.canonical, similarity: best})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].similarity > ranked[j].similarity
	})
	return ranked
}

func topNames(ranked []scored, n int) []string {
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, s := range ranked[:n] {
		out = append(out, s.canonical)
	}
	return out
}
