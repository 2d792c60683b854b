// Package llm provides the semantic fallback consulted when staged comuna
// matching fails: a language model picks the intended comuna from the
// canonical list, or says it cannot.
package llm

import "context"

// Provider resolves a free-text place phrase to one of the given candidate
// comunas. Implementations must return a candidate from the list or an
// error; an invented name is treated the same as a refusal.
type Provider interface {
	ResolveComuna(ctx context.Context, query string, candidates []string) (string, error)
}
