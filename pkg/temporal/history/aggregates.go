package history

import "regexp"

// aggregateRE matches a call to any SQL aggregate function the engine knows
// about. Token matching over the projection is good enough here; a parser
// walk would be the thorough alternative.
var aggregateRE = regexp.MustCompile(`(?i)(?:^|[^a-z0-9_])(?:` +
	`min|max|sum|count|avg` +
	`|stddev(?:_pop|_samp)?` +
	`|var(?:iance|_pop|_samp)?` +
	`|corr|covar_pop|covar_samp|regr_[a-z]+` +
	`|bit_and|bit_or|bool_and|bool_or` +
	`|array_agg|string_agg|xmlagg|every` +
	`)\s*\(`)

// HasAggregate reports whether any projection expression calls an aggregate
// function.
func HasAggregate(selects []string) bool {
	for _, s := range selects {
		if aggregateRE.MatchString(s) {
			return true
		}
	}
	return false
}
