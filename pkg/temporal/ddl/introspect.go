package ddl

import (
	"context"
	"fmt"

	"github.com/Arkanys/chronomodel/pkg/db"
	"github.com/Arkanys/chronomodel/pkg/temporal"
)

// ColumnDefinition is one column as reported by introspection.
type ColumnDefinition struct {
	Name     string  `db:"column_name"`
	Type     string  `db:"data_type"`
	Nullable bool    `db:"nullable"`
	Default  *string `db:"column_default"`
}

// IndexDefinition is one index as reported by introspection.
type IndexDefinition struct {
	Name       string `db:"indexname"`
	Definition string `db:"indexdef"`
}

const columnsQuery = `
SELECT column_name, data_type, is_nullable = 'YES' AS nullable, column_default
  FROM information_schema.columns
 WHERE table_schema = current_schema() AND table_name = $1
 ORDER BY ordinal_position`

const primaryKeyQuery = `
SELECT a.attname
  FROM pg_index i
  JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY (i.indkey)
 WHERE i.indrelid = to_regclass(quote_ident(current_schema()) || '.' || quote_ident($1))
   AND i.indisprimary`

const indexesQuery = `
SELECT indexname, indexdef
  FROM pg_indexes
 WHERE schemaname = current_schema() AND tablename = $1
 ORDER BY indexname`

// Columns reports the user-visible column set of a table. For temporal
// tables introspection runs against the current schema with nesting
// disallowed: the stock queries resolve through current_schema(), and
// pointing the path at the current table keeps the history system columns
// out of the answer.
func (a *Adapter) Columns(ctx context.Context, table string) ([]ColumnDefinition, error) {
	var defs []ColumnDefinition
	err := a.introspect(ctx, table, func(tx db.Tx) error {
		return tx.Select(&defs, columnsQuery, table)
	})
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	return defs, nil
}

// PrimaryKey reports the table's primary key column.
func (a *Adapter) PrimaryKey(ctx context.Context, table string) (string, error) {
	var pk string
	err := a.introspect(ctx, table, func(tx db.Tx) error {
		return tx.GetPrimitive(&pk, primaryKeyQuery, table)
	})
	if err != nil {
		return "", fmt.Errorf("primary key of %s: %w", table, err)
	}
	return pk, nil
}

// Indexes reports the indexes of the table in the schema introspection
// resolves to.
func (a *Adapter) Indexes(ctx context.Context, table string) ([]IndexDefinition, error) {
	var defs []IndexDefinition
	err := a.introspect(ctx, table, func(tx db.Tx) error {
		return tx.Select(&defs, indexesQuery, table)
	})
	if err != nil {
		return nil, fmt.Errorf("indexes of %s: %w", table, err)
	}
	return defs, nil
}

// introspect runs fn with introspection pointed at the right schema: the
// current schema for temporal tables, public otherwise.
func (a *Adapter) introspect(ctx context.Context, table string, fn func(db.Tx) error) error {
	isTemporal, err := a.engine.IsTemporal(ctx, table)
	if err != nil {
		return err
	}
	schema := temporal.SchemaPublic
	if isTemporal {
		schema = temporal.SchemaCurrent
	}
	_, err = a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		router := db.NewSchemaRouter(a.log)
		return router.OnSchema(tx, schema, func() error {
			return fn(tx)
		}, db.DisallowNesting())
	}), db.ReadOnly())
	return err
}

// primaryKey is the in-transaction variant used by DDL plans that already
// hold a transaction.
func (a *Adapter) primaryKey(tx db.Tx, table string) (string, error) {
	router := db.NewSchemaRouter(a.log)
	var pk string
	err := router.OnSchema(tx, temporal.SchemaCurrent, func() error {
		return tx.GetPrimitive(&pk, primaryKeyQuery, table)
	}, db.DisallowNesting())
	if err != nil {
		return "", fmt.Errorf("primary key of %s: %w", table, err)
	}
	return pk, nil
}

// columnNames is the in-transaction column list, primary key excluded, used
// when rebuilding rule bodies.
func (a *Adapter) columnNames(tx db.Tx, table, pk string) ([]string, error) {
	router := db.NewSchemaRouter(a.log)
	var defs []ColumnDefinition
	err := router.OnSchema(tx, temporal.SchemaCurrent, func() error {
		return tx.Select(&defs, columnsQuery, table)
	}, db.DisallowNesting())
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		if d.Name == pk {
			continue
		}
		names = append(names, d.Name)
	}
	return names, nil
}
