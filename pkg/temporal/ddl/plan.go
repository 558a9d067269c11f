package ddl

import (
	"fmt"
	"strings"

	"github.com/Arkanys/chronomodel/pkg/pgquote"
	"github.com/Arkanys/chronomodel/pkg/temporal"
)

// TimeInfinity closes no history row: an open version is valid until the end
// of time. TimeOrigin is the matching lower bound.
const (
	TimeInfinity = "9999-12-31"
	TimeOrigin   = "0001-01-01"
)

// utcNow is evaluated once per statement by PostgreSQL, which is what makes
// the close-then-insert rule pair gapless: the closed row's valid_to equals
// the fresh row's valid_from.
const utcNow = `timezone('UTC', now())`

func qualified(schema, name string) string {
	return pgquote.Ident(schema, name)
}

// quoteAll quotes each column name for SQL emission.
func quoteAll(cols []string) []string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgquote.Ident(c)
	}
	return quoted
}

func prefixAll(prefix string, cols []string) []string {
	prefixed := make([]string, len(cols))
	for i, c := range cols {
		prefixed[i] = prefix + "." + pgquote.Ident(c)
	}
	return prefixed
}

// createTablePlan is the full object set for a new temporal table: both
// schemas, the current table, the inherited history table with its
// consistency constraints and indexes, the public view and its three rewrite
// rules.
func createTablePlan(spec TableSpec) []string {
	name := spec.Name
	pk := spec.PrimaryKey
	cols := spec.ColumnNames()

	columnDefs := make([]string, 0, len(spec.Columns)+1)
	columnDefs = append(columnDefs, pgquote.Ident(pk)+" bigserial PRIMARY KEY")
	for _, c := range spec.Columns {
		columnDefs = append(columnDefs, c.definition())
	}

	plan := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgquote.Ident(temporal.SchemaCurrent),
		`CREATE SCHEMA IF NOT EXISTS ` + pgquote.Ident(temporal.SchemaHistory),
		fmt.Sprintf(`CREATE TABLE %s ( %s )`,
			qualified(temporal.SchemaCurrent, name), strings.Join(columnDefs, ", ")),
		historyTableSQL(name, pk),
		fmt.Sprintf(`CREATE INDEX %s ON %s USING btree ( valid_from, valid_to ) WITH ( fillfactor = 100 )`,
			pgquote.Ident(name+"_validity_idx"), qualified(temporal.SchemaHistory, name)),
		fmt.Sprintf(`CREATE INDEX %s ON %s USING btree ( %s ) WITH ( fillfactor = 90 )`,
			pgquote.Ident(name+"_record_idx"), qualified(temporal.SchemaHistory, name), pgquote.Ident(pk)),
	}
	plan = append(plan, viewPlan(name, pk, cols)...)
	return plan
}

// historyTableSQL inherits the current table and adds the four system
// columns plus the two constraints that make the version timeline sound:
// directionality and non-overlap per logical record. The exclusion
// constraint shrinks valid_to by one millisecond so adjacent half-open
// intervals do not collide.
func historyTableSQL(name, pk string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
  hid bigserial PRIMARY KEY,
  valid_from timestamp NOT NULL,
  valid_to timestamp NOT NULL DEFAULT '%s',
  recorded_at timestamp NOT NULL DEFAULT %s,
  CONSTRAINT %s CHECK ( valid_from < valid_to ),
  CONSTRAINT %s EXCLUDE USING gist (
    box(
      point( date_part( 'epoch', valid_from ), %s ),
      point( date_part( 'epoch', valid_to - interval '1 millisecond' ), %s )
    ) WITH &&
  )
) INHERITS ( %s )`,
		qualified(temporal.SchemaHistory, name),
		TimeInfinity,
		utcNow,
		pgquote.Ident(name+"_timeline_consistency"),
		pgquote.Ident(name+"_overlapping_times"),
		pgquote.Ident(pk), pgquote.Ident(pk),
		qualified(temporal.SchemaCurrent, name))
}

// viewPlan creates the public view and its three INSTEAD rules. Rule bodies
// embed the column list, so any column change rebuilds all of this.
func viewPlan(name, pk string, cols []string) []string {
	return []string{
		fmt.Sprintf(`CREATE VIEW %s AS SELECT * FROM ONLY %s`,
			qualified(temporal.SchemaPublic, name), qualified(temporal.SchemaCurrent, name)),
		insertRuleSQL(name, pk, cols),
		updateRuleSQL(name, pk, cols),
		deleteRuleSQL(name, pk),
	}
}

// insertRuleSQL writes the row to the current table, then opens its first
// history version with the key just assigned by the sequence.
func insertRuleSQL(name, pk string, cols []string) string {
	quotedCols := quoteAll(cols)
	newCols := prefixAll("NEW", cols)
	seq := pgquote.Ident(temporal.SchemaCurrent, seqName(name, pk))

	return fmt.Sprintf(`CREATE RULE %s AS ON INSERT TO %s DO INSTEAD (
  INSERT INTO %s ( %s ) VALUES ( %s );
  INSERT INTO %s ( %s, %s, valid_from )
  VALUES ( currval(%s), %s, %s )
  RETURNING %s, %s
)`,
		pgquote.Ident(name+"_ins"),
		qualified(temporal.SchemaPublic, name),
		qualified(temporal.SchemaCurrent, name),
		strings.Join(quotedCols, ", "), strings.Join(newCols, ", "),
		qualified(temporal.SchemaHistory, name),
		pgquote.Ident(pk), strings.Join(quotedCols, ", "),
		pgquote.Literal(seq),
		strings.Join(newCols, ", "),
		utcNow,
		pgquote.Ident(pk), strings.Join(quotedCols, ", "))
}

// updateRuleSQL closes the open history row, records the new values as a
// fresh version and applies them to the current table. The close must come
// first or the exclusion constraint fires on the overlap with the new row.
func updateRuleSQL(name, pk string, cols []string) string {
	quotedCols := quoteAll(cols)
	newCols := prefixAll("NEW", cols)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = pgquote.Ident(c) + " = NEW." + pgquote.Ident(c)
	}

	return fmt.Sprintf(`CREATE RULE %s AS ON UPDATE TO %s DO INSTEAD (
  UPDATE %s SET valid_to = %s
   WHERE %s = OLD.%s AND valid_to = '%s';
  INSERT INTO %s ( %s, %s, valid_from )
  VALUES ( OLD.%s, %s, %s );
  UPDATE ONLY %s SET %s WHERE %s = OLD.%s
)`,
		pgquote.Ident(name+"_upd"),
		qualified(temporal.SchemaPublic, name),
		qualified(temporal.SchemaHistory, name), utcNow,
		pgquote.Ident(pk), pgquote.Ident(pk), TimeInfinity,
		qualified(temporal.SchemaHistory, name),
		pgquote.Ident(pk), strings.Join(quotedCols, ", "),
		pgquote.Ident(pk), strings.Join(newCols, ", "), utcNow,
		qualified(temporal.SchemaCurrent, name),
		strings.Join(sets, ", "),
		pgquote.Ident(pk), pgquote.Ident(pk))
}

// deleteRuleSQL closes the open history row and removes the current one.
// The historical trail stays.
func deleteRuleSQL(name, pk string) string {
	return fmt.Sprintf(`CREATE RULE %s AS ON DELETE TO %s DO INSTEAD (
  UPDATE %s SET valid_to = %s
   WHERE %s = OLD.%s AND valid_to = '%s';
  DELETE FROM ONLY %s WHERE %s = OLD.%s
)`,
		pgquote.Ident(name+"_del"),
		qualified(temporal.SchemaPublic, name),
		qualified(temporal.SchemaHistory, name), utcNow,
		pgquote.Ident(pk), pgquote.Ident(pk), TimeInfinity,
		qualified(temporal.SchemaCurrent, name),
		pgquote.Ident(pk), pgquote.Ident(pk))
}

// rebuildViewPlan drops and recreates the view with its rules. CREATE OR
// REPLACE cannot shrink or reorder a view's column list, so the rebuild is
// always drop-then-create.
func rebuildViewPlan(name, pk string, cols []string) []string {
	plan := []string{
		`DROP VIEW IF EXISTS ` + qualified(temporal.SchemaPublic, name),
	}
	return append(plan, viewPlan(name, pk, cols)...)
}

// dropTablePlan removes the whole temporal object set. The CASCADE takes the
// inherited history table, the view and its rules along.
func dropTablePlan(name string) []string {
	return []string{
		fmt.Sprintf(`DROP TABLE %s CASCADE`, qualified(temporal.SchemaCurrent, name)),
	}
}

// renameTablePlan renames the tables, their sequences and the view. Rewrite
// rules reference relations by OID and survive the rename untouched.
func renameTablePlan(oldName, newName, pk string) []string {
	return []string{
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`,
			qualified(temporal.SchemaCurrent, oldName), pgquote.Ident(newName)),
		fmt.Sprintf(`ALTER SEQUENCE %s RENAME TO %s`,
			qualified(temporal.SchemaCurrent, seqName(oldName, pk)), pgquote.Ident(seqName(newName, pk))),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`,
			qualified(temporal.SchemaHistory, oldName), pgquote.Ident(newName)),
		fmt.Sprintf(`ALTER SEQUENCE %s RENAME TO %s`,
			qualified(temporal.SchemaHistory, seqName(oldName, "hid")), pgquote.Ident(seqName(newName, "hid"))),
		fmt.Sprintf(`ALTER VIEW %s RENAME TO %s`,
			qualified(temporal.SchemaPublic, oldName), pgquote.Ident(newName)),
	}
}

// addIndexPlan indexes the current table as requested and the history table
// with UNIQUE stripped: several versions of the same logical row are the
// point of the history table.
func addIndexPlan(table, index string, cols []string, unique bool) []string {
	unit := ""
	if unique {
		unit = "UNIQUE "
	}
	columnList := strings.Join(quoteAll(cols), ", ")
	return []string{
		fmt.Sprintf(`CREATE %sINDEX %s ON %s ( %s )`,
			unit, pgquote.Ident(index), qualified(temporal.SchemaCurrent, table), columnList),
		fmt.Sprintf(`CREATE INDEX %s ON %s ( %s )`,
			pgquote.Ident(index), qualified(temporal.SchemaHistory, table), columnList),
	}
}

func removeIndexPlan(index string) []string {
	return []string{
		`DROP INDEX ` + qualified(temporal.SchemaCurrent, index),
		`DROP INDEX ` + qualified(temporal.SchemaHistory, index),
	}
}
