// Package pgquote renders identifiers and literals for SQL emission. Every
// schema, table or column name this module interpolates into SQL text goes
// through Ident; every string or timestamp literal goes through Literal.
package pgquote

import (
	"strings"
	"time"

	"github.com/Arkanys/chronomodel/pkg/timefmt"
	"github.com/jackc/pgx/v4"
)

// Ident quotes one or more identifier parts and joins them with dots:
// Ident("history", "foos") == `"history"."foos"`.
func Ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// Literal single-quotes s, doubling embedded quotes. Assumes
// standard_conforming_strings, which is the server default since 9.1.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// TimestampLiteral renders t as a quoted UTC timestamp literal.
func TimestampLiteral(t time.Time) string {
	return Literal(timefmt.Format(t))
}
