package db

import (
	"time"

	"github.com/Arkanys/chronomodel/pkg/logging"
	"github.com/jackc/pgx/v4"
)

// loggedRows wraps pgx.Rows to report the full statement duration once the
// rows are closed.
type loggedRows struct {
	pgx.Rows
	start  time.Time
	logger logging.Logger
	done   bool
}

// Logged returns rows wrapped with duration logging on Close.
func Logged(rows pgx.Rows, start time.Time, logger logging.Logger) pgx.Rows {
	return &loggedRows{Rows: rows, start: start, logger: logger}
}

func (l *loggedRows) report() {
	if l.done {
		return
	}
	l.done = true
	took := time.Since(l.start)
	log := l.logger.WithField("took", took)
	if err := l.Rows.Err(); err != nil {
		log.WithError(err).Error("SQL query failed with error")
		return
	}
	log.Trace("SQL query done")
}

func (l *loggedRows) Close() {
	l.Rows.Close()
	l.report()
}
