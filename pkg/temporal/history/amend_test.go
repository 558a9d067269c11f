package history

import (
	"context"
	"testing"
	"time"

	"github.com/Arkanys/chronomodel/pkg/temporal"
	"github.com/stretchr/testify/assert"
)

func TestAmendPeriodRejectsNonUTC(t *testing.T) {
	h := New(&temporal.Engine{}, temporal.NewEntity("foos", "name"))

	utc := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	local := utc.In(time.FixedZone("plus2", 2*60*60))

	err := h.AmendPeriod(context.Background(), 1, local, utc)
	assert.ErrorIs(t, err, temporal.ErrNonUTCTimestamp)

	err = h.AmendPeriod(context.Background(), 1, utc, local)
	assert.ErrorIs(t, err, temporal.ErrNonUTCTimestamp)
}

func TestFieldsMemoized(t *testing.T) {
	h := New(&temporal.Engine{}, temporal.NewEntity("foos", "name", "rank"))
	first := h.Fields()
	assert.Equal(t,
		`hid, "id" AS rid, "id", "name", "rank", valid_from, valid_to, recorded_at`, first)
	assert.Equal(t, first, h.Fields())
}
