package download

// Scope selects how much export history a run fetches.
type Scope string

const (
	// ScopeWide is the catch-up fetch: the recent full-day packages plus
	// the increments published so far today.
	ScopeWide Scope = "wide"
	// ScopeNarrow is the bounded fetch: today's increments only.
	ScopeNarrow Scope = "narrow"
)
