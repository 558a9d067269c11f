package ddl

import (
	"context"
	"fmt"
	"strings"

	"github.com/Arkanys/chronomodel/pkg/db"
	"github.com/Arkanys/chronomodel/pkg/logging"
	"github.com/Arkanys/chronomodel/pkg/pgquote"
	"github.com/Arkanys/chronomodel/pkg/temporal"
)

// Adapter compiles relational DDL into the coordinated statement sequences
// that keep a temporal table's three incarnations consistent. Every
// operation runs inside a single transaction, so a failure leaves no
// half-built object set behind. Operations on tables the cache does not know
// as temporal fall through to plain single-table DDL against public.
type Adapter struct {
	engine *temporal.Engine
	log    logging.Logger
}

func NewAdapter(engine *temporal.Engine) *Adapter {
	return &Adapter{
		engine: engine,
		log:    engine.Log,
	}
}

type CreateTableOptions struct {
	Temporal bool
}

func execPlan(tx db.Tx, plan []string) error {
	for _, stmt := range plan {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) opLog(name, op string) logging.Logger {
	return a.log.WithFields(logging.Fields{
		logging.TableFieldKey:     name,
		logging.OperationFieldKey: op,
	})
}

// CreateTable creates spec as a temporal table when requested, or as a plain
// public table otherwise. Temporal tables must carry a primary key: the
// history machinery keys every version on it.
func (a *Adapter) CreateTable(ctx context.Context, spec TableSpec, opts CreateTableOptions) error {
	if !opts.Temporal {
		return a.createPlainTable(ctx, spec)
	}
	if spec.PrimaryKey == "" {
		return fmt.Errorf("create table %s: %w", spec.Name, temporal.ErrPrimaryKeyRequired)
	}
	_, err := a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		return execPlan(tx, createTablePlan(spec))
	}))
	if err != nil {
		return fmt.Errorf("create temporal table %s: %w", spec.Name, err)
	}
	a.engine.Cache.Add(spec.Name)
	a.opLog(spec.Name, "create_table").Info("created temporal table")
	return nil
}

func (a *Adapter) createPlainTable(ctx context.Context, spec TableSpec) error {
	columnDefs := make([]string, 0, len(spec.Columns)+1)
	if spec.PrimaryKey != "" {
		columnDefs = append(columnDefs, pgquote.Ident(spec.PrimaryKey)+" bigserial PRIMARY KEY")
	}
	for _, c := range spec.Columns {
		columnDefs = append(columnDefs, c.definition())
	}
	stmt := fmt.Sprintf(`CREATE TABLE %s ( %s )`,
		qualified(temporal.SchemaPublic, spec.Name), strings.Join(columnDefs, ", "))
	_, err := a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		_, err := tx.Exec(stmt)
		return err
	}))
	if err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	a.engine.Cache.AddNegative(spec.Name)
	return nil
}

// DropTable drops the current table with CASCADE, which removes the
// inherited history table, the view and the rules in one statement.
func (a *Adapter) DropTable(ctx context.Context, name string) error {
	isTemporal, err := a.engine.IsTemporal(ctx, name)
	if err != nil {
		return err
	}
	stmt := `DROP TABLE ` + qualified(temporal.SchemaPublic, name)
	plan := []string{stmt}
	if isTemporal {
		plan = dropTablePlan(name)
	}
	_, err = a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		return execPlan(tx, plan)
	}))
	if err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	a.engine.Cache.Del(name)
	a.opLog(name, "drop_table").Info("dropped table")
	return nil
}

// RenameTable renames the tables, their sequences and the view in both
// schemas, then moves the cache entry.
func (a *Adapter) RenameTable(ctx context.Context, oldName, newName string) error {
	isTemporal, err := a.engine.IsTemporal(ctx, oldName)
	if err != nil {
		return err
	}
	if !isTemporal {
		_, err = a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
			_, err := tx.Exec(fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`,
				qualified(temporal.SchemaPublic, oldName), pgquote.Ident(newName)))
			return err
		}))
		if err != nil {
			return fmt.Errorf("rename table %s: %w", oldName, err)
		}
		a.engine.Cache.Rename(oldName, newName)
		return nil
	}
	_, err = a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		pk, err := a.primaryKey(tx, oldName)
		if err != nil {
			return err
		}
		return execPlan(tx, renameTablePlan(oldName, newName, pk))
	}))
	if err != nil {
		return fmt.Errorf("rename table %s to %s: %w", oldName, newName, err)
	}
	a.engine.Cache.Rename(oldName, newName)
	a.opLog(newName, "rename_table").Info("renamed temporal table")
	return nil
}

// AddColumn adds the column to the current table (inheritance carries it to
// the history table) and rebuilds the view: rule bodies embed the column
// list.
func (a *Adapter) AddColumn(ctx context.Context, table string, col ColumnSpec) error {
	return a.alterAndRebuild(ctx, table, "add_column", func(tx db.Tx, target string) error {
		_, err := tx.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, target, col.definition()))
		return err
	}, false)
}

// RenameColumn renames on the current table and rebuilds the view so its
// output column picks up the new name.
func (a *Adapter) RenameColumn(ctx context.Context, table, oldCol, newCol string) error {
	return a.alterAndRebuild(ctx, table, "rename_column", func(tx db.Tx, target string) error {
		_, err := tx.Exec(fmt.Sprintf(`ALTER TABLE %s RENAME COLUMN %s TO %s`,
			target, pgquote.Ident(oldCol), pgquote.Ident(newCol)))
		return err
	}, false)
}

// ChangeColumn changes the column's type. The view blocks in-place type
// changes, so it is dropped first and rebuilt after.
func (a *Adapter) ChangeColumn(ctx context.Context, table, col, newType string) error {
	return a.alterAndRebuild(ctx, table, "change_column", func(tx db.Tx, target string) error {
		_, err := tx.Exec(fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE %s`,
			target, pgquote.Ident(col), newType))
		return err
	}, true)
}

// RemoveColumn drops the column from the current table; inheritance drops it
// from the history table as well.
func (a *Adapter) RemoveColumn(ctx context.Context, table, col string) error {
	return a.alterAndRebuild(ctx, table, "remove_column", func(tx db.Tx, target string) error {
		_, err := tx.Exec(fmt.Sprintf(`ALTER TABLE %s DROP COLUMN %s`,
			target, pgquote.Ident(col)))
		return err
	}, true)
}

// ChangeColumnDefault touches the current table only; defaults do not appear
// in rule bodies.
func (a *Adapter) ChangeColumnDefault(ctx context.Context, table, col, defaultExpr string) error {
	return a.alterCurrentOnly(ctx, table, "change_column_default", func(tx db.Tx, target string) error {
		var stmt string
		if defaultExpr == "" {
			stmt = fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT`,
				target, pgquote.Ident(col))
		} else {
			stmt = fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s`,
				target, pgquote.Ident(col), defaultExpr)
		}
		_, err := tx.Exec(stmt)
		return err
	})
}

// ChangeColumnNull toggles the NOT NULL constraint on the current table only.
func (a *Adapter) ChangeColumnNull(ctx context.Context, table, col string, notNull bool) error {
	return a.alterCurrentOnly(ctx, table, "change_column_null", func(tx db.Tx, target string) error {
		action := "DROP NOT NULL"
		if notNull {
			action = "SET NOT NULL"
		}
		_, err := tx.Exec(fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s %s`,
			target, pgquote.Ident(col), action))
		return err
	})
}

// AddIndex indexes the current table as asked. On the history table the
// UNIQUE flag is stripped: uniqueness cannot hold across versions of the
// same logical row.
func (a *Adapter) AddIndex(ctx context.Context, table, index string, cols []string, unique bool) error {
	isTemporal, err := a.engine.IsTemporal(ctx, table)
	if err != nil {
		return err
	}
	if !isTemporal {
		unit := ""
		if unique {
			unit = "UNIQUE "
		}
		_, err = a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
			_, err := tx.Exec(fmt.Sprintf(`CREATE %sINDEX %s ON %s ( %s )`,
				unit, pgquote.Ident(index), qualified(temporal.SchemaPublic, table),
				strings.Join(quoteAll(cols), ", ")))
			return err
		}))
		if err != nil {
			return fmt.Errorf("add index %s on %s: %w", index, table, err)
		}
		return nil
	}
	_, err = a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		return execPlan(tx, addIndexPlan(table, index, cols, unique))
	}))
	if err != nil {
		return fmt.Errorf("add index %s on %s: %w", index, table, err)
	}
	a.opLog(table, "add_index").Debug("added index on both schemas")
	return nil
}

// RemoveIndex drops the index from both schemas.
func (a *Adapter) RemoveIndex(ctx context.Context, table, index string) error {
	isTemporal, err := a.engine.IsTemporal(ctx, table)
	if err != nil {
		return err
	}
	if !isTemporal {
		_, err = a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
			_, err := tx.Exec(`DROP INDEX ` + qualified(temporal.SchemaPublic, index))
			return err
		}))
		return err
	}
	_, err = a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		return execPlan(tx, removeIndexPlan(index))
	}))
	if err != nil {
		return fmt.Errorf("remove index %s on %s: %w", index, table, err)
	}
	return nil
}

// alterAndRebuild runs alter against the current table and rebuilds the view
// and rules around it; on a non-temporal table it degenerates to the plain
// single-table statement against public. The alter callback receives the
// table reference to emit against. When dropFirst is set the view goes away
// before the alter (type changes and column drops conflict with a live view)
// and alter runs with search_path pointed at the current schema, so it emits
// plain unqualified DDL.
func (a *Adapter) alterAndRebuild(ctx context.Context, table, op string, alter func(db.Tx, string) error, dropFirst bool) error {
	isTemporal, err := a.engine.IsTemporal(ctx, table)
	if err != nil {
		return err
	}
	if !isTemporal {
		return a.alterPlain(ctx, table, op, alter)
	}
	_, err = a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		router := db.NewSchemaRouter(a.log)
		if dropFirst {
			if _, err := tx.Exec(`DROP VIEW ` + qualified(temporal.SchemaPublic, table)); err != nil {
				return err
			}
			if err := router.OnSchema(tx, temporal.SchemaCurrent, func() error {
				return alter(tx, pgquote.Ident(table))
			}); err != nil {
				return err
			}
		} else {
			if err := alter(tx, qualified(temporal.SchemaCurrent, table)); err != nil {
				return err
			}
			if _, err := tx.Exec(`DROP VIEW ` + qualified(temporal.SchemaPublic, table)); err != nil {
				return err
			}
		}
		pk, err := a.primaryKey(tx, table)
		if err != nil {
			return err
		}
		cols, err := a.columnNames(tx, table, pk)
		if err != nil {
			return err
		}
		return execPlan(tx, viewPlan(table, pk, cols))
	}))
	if err != nil {
		return fmt.Errorf("%s on %s: %w", op, table, err)
	}
	a.opLog(table, op).Info("altered temporal table")
	return nil
}

// alterCurrentOnly runs alter against the current table inside one
// transaction, with no view rebuild; non-temporal tables take the plain
// public path.
func (a *Adapter) alterCurrentOnly(ctx context.Context, table, op string, alter func(db.Tx, string) error) error {
	isTemporal, err := a.engine.IsTemporal(ctx, table)
	if err != nil {
		return err
	}
	if !isTemporal {
		return a.alterPlain(ctx, table, op, alter)
	}
	_, err = a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		return alter(tx, qualified(temporal.SchemaCurrent, table))
	}))
	if err != nil {
		return fmt.Errorf("%s on %s: %w", op, table, err)
	}
	return nil
}

// alterPlain is the non-temporal fallback: the same statement against the
// public table, nothing else to keep in step.
func (a *Adapter) alterPlain(ctx context.Context, table, op string, alter func(db.Tx, string) error) error {
	_, err := a.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		return alter(tx, qualified(temporal.SchemaPublic, table))
	}))
	if err != nil {
		return fmt.Errorf("%s on %s: %w", op, table, err)
	}
	return nil
}
