// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/0xsoniclabs/smartdb/change"
	"github.com/0xsoniclabs/smartdb/common/logging"
	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/0xsoniclabs/tracy"
	"github.com/rs/zerolog"
)

// queryer is implemented by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlGateway is a gateway storing every entity kind in a table of its own and
// the change history in a dedicated history table.
type sqlGateway struct {
	db       *sql.DB
	dialect  *Dialect
	builder  Builder
	registry *model.Registry
	log      zerolog.Logger
	onClose  func()
}

var _ gateway.Gateway = (*sqlGateway)(nil)

func newGateway(ctx context.Context, db *sql.DB, dialect *Dialect, registry *model.Registry, log zerolog.Logger) (*sqlGateway, error) {
	res := &sqlGateway{
		db:       db,
		dialect:  dialect,
		builder:  NewBuilder(dialect),
		registry: registry,
		log:      logging.Component(log, "sqldb").With().Str("dialect", dialect.Name).Logger(),
	}
	if err := res.createTables(ctx); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return res, nil
}

func (g *sqlGateway) createTables(ctx context.Context) error {
	statements := []string{g.builder.CreateHistoryTable()}
	for _, schema := range g.registry.Schemas() {
		statements = append(statements, g.builder.CreateTables(schema)...)
	}
	for _, statement := range statements {
		g.log.Trace().Str("sql", statement).Msg("create")
		if _, err := g.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to run %q: %w", statement, err)
		}
	}
	return nil
}

func (g *sqlGateway) Close() error {
	err := g.db.Close()
	if g.onClose != nil {
		g.onClose()
	}
	return err
}

// inTx runs the given function in a transaction which is committed if the
// function succeeds and rolled back otherwise.
func (g *sqlGateway) inTx(ctx context.Context, run func(tx *sql.Tx) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := run(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (g *sqlGateway) exec(ctx context.Context, q queryer, statement Statement) error {
	g.log.Trace().Str("sql", statement.Query).Msg("exec")
	result, err := q.ExecContext(ctx, statement.Query, statement.Args...)
	if err != nil {
		return fmt.Errorf("failed to run %q: %w", statement.Query, err)
	}
	if statement.Affected == 0 {
		return nil
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != statement.Affected {
		return fmt.Errorf("statement %q changed %d rows, expected %d", statement.Query, affected, statement.Affected)
	}
	return nil
}

// --- History ---

func (g *sqlGateway) LastHeight(ctx context.Context) (int64, error) {
	return g.lastHeight(ctx, g.db)
}

func (g *sqlGateway) lastHeight(ctx context.Context, q queryer) (int64, error) {
	var last sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", quote("height"), quote(historyTable))
	if err := q.QueryRowContext(ctx, query).Scan(&last); err != nil {
		return 0, err
	}
	if !last.Valid {
		return -1, nil
	}
	return last.Int64, nil
}

func (g *sqlGateway) History(ctx context.Context, from, to int64) ([]gateway.HistoryEntry, error) {
	return g.history(ctx, g.db, from, to)
}

func (g *sqlGateway) history(ctx context.Context, q queryer, from, to int64) ([]gateway.HistoryEntry, error) {
	if to < from || to < 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s >= %s AND %s <= %s ORDER BY %s",
		quote("height"), quote("digest"), quote("changes"), quote(historyTable),
		quote("height"), g.dialect.placeholder(1), quote("height"), g.dialect.placeholder(2),
		quote("height"))
	rows, err := q.QueryContext(ctx, query, max(from, 0), to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []gateway.HistoryEntry
	for rows.Next() {
		var height int64
		var digest, data []byte
		if err := rows.Scan(&height, &digest, &data); err != nil {
			return nil, err
		}
		changes, err := change.Decode(data, g.registry)
		if err != nil {
			return nil, fmt.Errorf("invalid history of height %d: %w", height, err)
		}
		entry := gateway.HistoryEntry{Height: height, Changes: changes}
		copy(entry.Digest[:], digest)
		res = append(res, entry)
	}
	return res, rows.Err()
}

func (g *sqlGateway) LoadHistory(ctx context.Context, from, to int64) (map[int64][]change.Record, error) {
	entries, err := g.History(ctx, from, to)
	if err != nil {
		return nil, err
	}
	res := make(map[int64][]change.Record, len(entries))
	for _, entry := range entries {
		res[entry.Height] = entry.Changes
	}
	return res, nil
}

// --- Writes ---

func (g *sqlGateway) Persist(ctx context.Context, height int64, block model.Entity, changes []change.Record) error {
	zone := tracy.ZoneBegin("sqldb::persist")
	defer zone.End()
	data, err := change.Encode(changes)
	if err != nil {
		return err
	}
	digest := change.DigestOf(data)
	return g.inTx(ctx, func(tx *sql.Tx) error {
		last, err := g.lastHeight(ctx, tx)
		if err != nil {
			return err
		}
		if height != last+1 {
			return fmt.Errorf("%w: persisting height %d after %d", gateway.ErrInvalidHeight, height, last)
		}
		for _, record := range changes {
			if err := g.apply(ctx, tx, record); err != nil {
				return err
			}
		}
		if block != nil {
			schema, err := g.registry.Get(model.BlockKind)
			if err != nil {
				return err
			}
			statement, err := g.builder.Insert(schema, block)
			if err != nil {
				return err
			}
			if err := g.exec(ctx, tx, statement); err != nil {
				return err
			}
		}
		return g.exec(ctx, tx, Statement{
			Query: fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
				quote(historyTable), quote("height"), quote("digest"), quote("changes"),
				g.dialect.placeholder(1), g.dialect.placeholder(2), g.dialect.placeholder(3)),
			Args:     []any{height, digest[:], data},
			Affected: 1,
		})
	})
}

func (g *sqlGateway) RevertTo(ctx context.Context, height int64) error {
	zone := tracy.ZoneBegin("sqldb::revert_to")
	defer zone.End()
	if height < -1 {
		return fmt.Errorf("%w: %d", gateway.ErrInvalidHeight, height)
	}
	return g.inTx(ctx, func(tx *sql.Tx) error {
		last, err := g.lastHeight(ctx, tx)
		if err != nil {
			return err
		}
		if height >= last {
			return nil
		}
		entries, err := g.history(ctx, tx, height+1, last)
		if err != nil {
			return err
		}
		for i := len(entries) - 1; i >= 0; i-- {
			changes := entries[i].Changes
			for j := len(changes) - 1; j >= 0; j-- {
				if err := g.apply(ctx, tx, changes[j].Inverse()); err != nil {
					return err
				}
			}
		}
		for _, table := range []string{model.BlockKind, historyTable} {
			statement := Statement{
				Query: fmt.Sprintf("DELETE FROM %s WHERE %s > %s", quote(table), quote("height"), g.dialect.placeholder(1)),
				Args:  []any{height},
			}
			if err := g.exec(ctx, tx, statement); err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *sqlGateway) apply(ctx context.Context, q queryer, record change.Record) error {
	schema, err := g.registry.Get(record.Model)
	if err != nil {
		return err
	}
	statement, err := g.builder.FromRecord(schema, record)
	if err != nil {
		return err
	}
	if err := g.exec(ctx, q, statement); err != nil {
		return fmt.Errorf("failed to apply %v: %w", record, err)
	}
	return nil
}

// --- Queries ---

func (g *sqlGateway) FindOne(ctx context.Context, kind string, where model.Key) (model.Entity, bool, error) {
	res, err := g.FindAll(ctx, kind, gateway.Query{Where: where, Limit: 1})
	if err != nil || len(res) == 0 {
		return nil, false, err
	}
	return res[0], true, nil
}

func (g *sqlGateway) FindAll(ctx context.Context, kind string, query gateway.Query) ([]model.Entity, error) {
	schema, err := g.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	query, err = query.Validate(schema)
	if err != nil {
		return nil, err
	}
	statement, err := g.builder.Select(schema, query)
	if err != nil {
		return nil, err
	}
	g.log.Trace().Str("sql", statement.Query).Msg("query")
	rows, err := g.db.QueryContext(ctx, statement.Query, statement.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run %q: %w", statement.Query, err)
	}
	defer rows.Close()
	res := []model.Entity{}
	for rows.Next() {
		entity, err := scanEntity(schema, rows)
		if err != nil {
			return nil, err
		}
		res = append(res, entity)
	}
	return res, rows.Err()
}

func (g *sqlGateway) Count(ctx context.Context, kind string, where model.Key) (int64, error) {
	schema, err := g.registry.Get(kind)
	if err != nil {
		return 0, err
	}
	query, err := gateway.Query{Where: where}.Validate(schema)
	if err != nil {
		return 0, err
	}
	statement, err := g.builder.Count(schema, query.Where)
	if err != nil {
		return 0, err
	}
	var res int64
	if err := g.db.QueryRowContext(ctx, statement.Query, statement.Args...).Scan(&res); err != nil {
		return 0, fmt.Errorf("failed to run %q: %w", statement.Query, err)
	}
	return res, nil
}

// scanEntity reads a row selected by Builder.Select. NULL columns are not
// part of the result.
func scanEntity(schema *model.Schema, rows *sql.Rows) (model.Entity, error) {
	names := schema.PropertyNames()
	targets := make([]any, len(names))
	for i, name := range names {
		property, _ := schema.Property(name)
		switch property.Type {
		case model.Int64:
			targets[i] = new(sql.NullInt64)
		case model.Bool:
			targets[i] = new(sql.NullBool)
		case model.Bytes:
			targets[i] = new([]byte)
		default:
			targets[i] = new(sql.NullString)
		}
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, err
	}
	values := make(map[string]any, len(names))
	for i, name := range names {
		switch target := targets[i].(type) {
		case *sql.NullInt64:
			if target.Valid {
				values[name] = target.Int64
			}
		case *sql.NullBool:
			if target.Valid {
				values[name] = target.Bool
			}
		case *[]byte:
			if *target != nil {
				values[name] = *target
			}
		case *sql.NullString:
			if !target.Valid {
				continue
			}
			property, _ := schema.Property(name)
			if property.Type != model.JSON {
				values[name] = target.String
				continue
			}
			value, err := decodeJSON(target.String)
			if err != nil {
				return nil, fmt.Errorf("invalid JSON in %s.%s: %w", schema.Name, name, err)
			}
			values[name] = value
		}
	}
	return schema.CoerceEntity(values)
}

func decodeJSON(data string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(data))
	decoder.UseNumber()
	var res any
	if err := decoder.Decode(&res); err != nil {
		return nil, err
	}
	return res, nil
}
