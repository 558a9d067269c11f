package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAggregate(t *testing.T) {
	positive := []string{
		`COUNT(*)`,
		`count(*)`,
		`max(valid_to)`,
		`MIN("valid_from")`,
		`sum(rank) + 1`,
		`stddev_pop(x)`,
		`var_samp(x)`,
		`variance(x)`,
		`regr_slope(y, x)`,
		`bool_and(flag)`,
		`array_agg(name)`,
		`string_agg(name, ',')`,
		`every(flag)`,
	}
	for _, s := range positive {
		assert.True(t, HasAggregate([]string{s}), s)
	}

	negative := []string{
		`name`,
		`"count"`,
		`account(x)`,
		`summary(x)`,
		`mincount`,
		`upper(name)`,
	}
	for _, s := range negative {
		assert.False(t, HasAggregate([]string{s}), s)
	}

	assert.False(t, HasAggregate(nil))
	assert.True(t, HasAggregate([]string{"name", "count(*)"}))
}
