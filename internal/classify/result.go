package classify

// Result is the outcome of classifying one payload. Categories preserves
// rule-table order; Severities and MatchedPattern are keyed by category.
type Result struct {
	Categories     []string          `json:"categories"`
	Severities     map[string]string `json:"severities"`
	MatchedPattern map[string]string `json:"matched_pattern"`
	Reasons        []string          `json:"reasons"`
}

// Suspicious reports whether any category matched.
func (r *Result) Suspicious() bool {
	return len(r.Categories) > 0
}

// MaxSeverity returns the highest severity across matched categories, or ""
// when nothing matched.
func (r *Result) MaxSeverity() string {
	max := ""
	for _, sev := range r.Severities {
		if max == "" || severityRank[sev] > severityRank[max] {
			max = sev
		}
	}
	return max
}

// Has reports whether the given category matched.
func (r *Result) Has(category string) bool {
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// IsScanner reports the behavioral scanner flag derived from this result.
func (r *Result) IsScanner() bool {
	return r.Has(CategoryScan)
}

// IsExploiter reports the behavioral exploiter flag derived from this result.
func (r *Result) IsExploiter() bool {
	return r.Has(CategoryExploit) || r.Has(CategoryCommandInjection)
}
