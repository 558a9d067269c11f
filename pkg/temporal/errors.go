package temporal

import (
	"errors"
	"fmt"

	"github.com/Arkanys/chronomodel/pkg/timefmt"
)

// ErrTemporal is the base of every engine error. Callers can match the whole
// taxonomy with errors.Is(err, temporal.ErrTemporal) or a specific kind with
// the sentinels below.
var ErrTemporal = errors.New("temporal engine")

var (
	// ErrUnsupportedDatabase - the backend is not PostgreSQL >= 9.0.
	ErrUnsupportedDatabase = fmt.Errorf("%w: unsupported database", ErrTemporal)
	// ErrNonTemporalTable - an entity was registered against a table whose
	// physical layout is not temporal.
	ErrNonTemporalTable = fmt.Errorf("%w: table is not temporal", ErrTemporal)
	// ErrPrimaryKeyRequired - temporal tables need a primary key.
	ErrPrimaryKeyRequired = fmt.Errorf("%w: temporal table requires a primary key", ErrTemporal)
	// ErrNonUTCTimestamp - an amendment endpoint did not carry UTC.
	ErrNonUTCTimestamp = fmt.Errorf("%w: timestamp must be UTC", ErrTemporal)
	// ErrReadOnlyRecord - a mutation was attempted on a history row.
	ErrReadOnlyRecord = fmt.Errorf("%w: history records are read-only", ErrTemporal)
	// ErrMalformedTimestamp - input string is not a canonical datetime.
	// Wraps both sentinels so errors.Is matches the taxonomy base and the
	// timefmt error alike.
	ErrMalformedTimestamp = fmt.Errorf("%w: %w", ErrTemporal, timefmt.ErrMalformedTimestamp)
)
