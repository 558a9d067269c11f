package ddl

import (
	"fmt"
	"strings"

	"github.com/Arkanys/chronomodel/pkg/pgquote"
)

// ColumnSpec is one user column of a table definition. The primary key is
// not listed here; it is part of TableSpec.
type ColumnSpec struct {
	Name    string
	Type    string
	NotNull bool
	Default string
}

func (c ColumnSpec) definition() string {
	var b strings.Builder
	b.WriteString(pgquote.Ident(c.Name))
	b.WriteString(" ")
	b.WriteString(c.Type)
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	return b.String()
}

// TableSpec is the relational definition the compiler translates into the
// temporal object set.
type TableSpec struct {
	Name string
	// PrimaryKey is the serial primary key column. Empty means the table has
	// no primary key, which is allowed only for non-temporal tables.
	PrimaryKey string
	Columns    []ColumnSpec
}

// ColumnNames returns the user column names, without the primary key.
func (s TableSpec) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

func seqName(table, column string) string {
	return fmt.Sprintf("%s_%s_seq", table, column)
}
