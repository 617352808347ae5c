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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/0xsoniclabs/smartdb/change"
	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/model"
)

const historyTable = "_history"

// Statement is a SQL statement with its arguments.
type Statement struct {
	Query string
	Args  []any
	// Affected is the number of rows the statement must change, 0 if unchecked.
	Affected int64
}

// Builder translates schemas, change records and queries into SQL.
type Builder struct {
	dialect *Dialect
}

func NewBuilder(dialect *Dialect) Builder {
	return Builder{dialect: dialect}
}

// args collects statement arguments and renders their placeholders.
type args struct {
	dialect *Dialect
	values  []any
}

func (a *args) add(value any) string {
	a.values = append(a.values, value)
	return a.dialect.placeholder(len(a.values))
}

// --- Schema ---

// CreateTables returns the statements creating the tables of a schema.
func (b Builder) CreateTables(schema *model.Schema) []string {
	columns := make([]string, 0, len(schema.Properties)+2)
	for _, property := range schema.Properties {
		columns = append(columns, quote(property.Name)+" "+b.dialect.columnType(property.Type))
	}
	columns = append(columns, quote(model.VersionProperty)+" "+b.dialect.columnType(model.Int64)+" NOT NULL DEFAULT 0")
	columns = append(columns, "PRIMARY KEY ("+quoteAll(schema.PrimaryKey)+")")

	res := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(schema.Name), strings.Join(columns, ", ")),
	}
	for _, unique := range schema.Uniques {
		res = append(res, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			quote(schema.Name+"_"+unique.Name+"_key"), quote(schema.Name), quoteAll(unique.Properties)))
	}
	return res
}

// CreateHistoryTable returns the statement creating the table of persisted
// change sets.
func (b Builder) CreateHistoryTable() string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s %s PRIMARY KEY, %s %s NOT NULL, %s %s NOT NULL)",
		quote(historyTable),
		quote("height"), b.dialect.columnType(model.Int64),
		quote("digest"), b.dialect.blobType(),
		quote("changes"), b.dialect.blobType(),
	)
}

// --- Changes ---

// Insert creates a row holding the given entity.
func (b Builder) Insert(schema *model.Schema, entity model.Entity) (Statement, error) {
	a := &args{dialect: b.dialect}
	var columns, placeholders []string
	for _, name := range schema.PropertyNames() {
		value, found := entity[name]
		if !found {
			continue
		}
		converted, err := b.toColumn(schema, name, value)
		if err != nil {
			return Statement{}, err
		}
		columns = append(columns, quote(name))
		placeholders = append(placeholders, a.add(converted))
	}
	return Statement{
		Query: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quote(schema.Name), strings.Join(columns, ", "), strings.Join(placeholders, ", ")),
		Args:     a.values,
		Affected: 1,
	}, nil
}

// Update sets the given values of the row with the given primary key. If
// expectedVersion is not nil, the row is only updated if it has this version.
func (b Builder) Update(schema *model.Schema, key model.Key, values model.Entity, expectedVersion *int64) (Statement, error) {
	a := &args{dialect: b.dialect}
	var assignments []string
	for _, name := range schema.PropertyNames() {
		value, found := values[name]
		if !found {
			continue
		}
		converted, err := b.toColumn(schema, name, value)
		if err != nil {
			return Statement{}, err
		}
		assignments = append(assignments, quote(name)+" = "+a.add(converted))
	}
	if len(assignments) == 0 {
		return Statement{}, fmt.Errorf("update of %s(%v) without values", schema.Name, key)
	}
	where := model.Key{}
	for name, value := range key {
		where[name] = value
	}
	if expectedVersion != nil {
		where[model.VersionProperty] = *expectedVersion
	}
	condition, err := b.where(schema, a, where, nil)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		Query:    fmt.Sprintf("UPDATE %s SET %s%s", quote(schema.Name), strings.Join(assignments, ", "), condition),
		Args:     a.values,
		Affected: 1,
	}, nil
}

// Delete removes the row with the given primary key.
func (b Builder) Delete(schema *model.Schema, key model.Key) (Statement, error) {
	a := &args{dialect: b.dialect}
	condition, err := b.where(schema, a, key, nil)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		Query:    fmt.Sprintf("DELETE FROM %s%s", quote(schema.Name), condition),
		Args:     a.values,
		Affected: 1,
	}, nil
}

// FromRecord translates a change record into the statement applying it.
func (b Builder) FromRecord(schema *model.Schema, record change.Record) (Statement, error) {
	switch record.Type {
	case change.New:
		return b.Insert(schema, record.Current())
	case change.Modify:
		var expected *int64
		for _, cur := range record.PropertyChanges {
			if cur.Name != model.VersionProperty {
				continue
			}
			if version, ok := cur.Original.(int64); ok {
				expected = &version
			}
		}
		return b.Update(schema, record.PrimaryKey, record.Current(), expected)
	case change.Delete:
		return b.Delete(schema, record.PrimaryKey)
	}
	return Statement{}, fmt.Errorf("unsupported change type %v", record.Type)
}

// --- Queries ---

// Select returns the statement listing the entities matching a query. The
// query is expected to be validated.
func (b Builder) Select(schema *model.Schema, query gateway.Query) (Statement, error) {
	a := &args{dialect: b.dialect}
	condition, err := b.where(schema, a, query.Where, query.In)
	if err != nil {
		return Statement{}, err
	}
	var order []string
	for _, cur := range query.Sort {
		direction := "ASC"
		if cur.Descending {
			direction = "DESC"
		}
		property, _ := schema.Property(cur.Property)
		if property.Type == model.Amount {
			// decimal strings without leading zeros order by length first
			order = append(order, fmt.Sprintf("LENGTH(%s) %s", quote(cur.Property), direction))
		}
		order = append(order, quote(cur.Property)+" "+direction)
	}
	var res strings.Builder
	fmt.Fprintf(&res, "SELECT %s FROM %s%s", quoteAll(schema.PropertyNames()), quote(schema.Name), condition)
	if len(order) > 0 {
		res.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	res.WriteString(b.dialect.limit(query.Limit, query.Offset))
	return Statement{Query: res.String(), Args: a.values}, nil
}

// Count returns the statement counting the entities matching the condition.
func (b Builder) Count(schema *model.Schema, where model.Key) (Statement, error) {
	a := &args{dialect: b.dialect}
	condition, err := b.where(schema, a, where, nil)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		Query: fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quote(schema.Name), condition),
		Args:  a.values,
	}, nil
}

func (b Builder) where(schema *model.Schema, a *args, where model.Key, in *gateway.InCondition) (string, error) {
	var conditions []string
	for _, name := range schema.PropertyNames() {
		value, found := where[name]
		if !found {
			continue
		}
		if value == nil {
			conditions = append(conditions, quote(name)+" IS NULL")
			continue
		}
		converted, err := b.toColumn(schema, name, value)
		if err != nil {
			return "", err
		}
		conditions = append(conditions, quote(name)+" = "+a.add(converted))
	}
	for name := range where {
		if !schema.IsValidProperty(name) {
			return "", &model.UnknownPropertyError{Kind: schema.Name, Property: name}
		}
	}
	if in != nil {
		if len(in.Values) == 0 {
			conditions = append(conditions, "1 = 0")
		} else {
			placeholders := make([]string, 0, len(in.Values))
			for _, value := range in.Values {
				converted, err := b.toColumn(schema, in.Property, value)
				if err != nil {
					return "", err
				}
				placeholders = append(placeholders, a.add(converted))
			}
			conditions = append(conditions, fmt.Sprintf("%s IN (%s)", quote(in.Property), strings.Join(placeholders, ", ")))
		}
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), nil
}

// toColumn converts a canonical property value into a column value.
func (b Builder) toColumn(schema *model.Schema, name string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	property, found := schema.Property(name)
	if !found {
		return nil, &model.UnknownPropertyError{Kind: schema.Name, Property: name}
	}
	switch property.Type {
	case model.Amount:
		if a, ok := value.(amount.Amount); ok {
			return a.String(), nil
		}
	case model.JSON:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s.%s: %w", schema.Name, name, err)
		}
		return string(data), nil
	default:
		return value, nil
	}
	return nil, &model.InvalidValueError{Kind: schema.Name, Property: name, Value: value, Type: property.Type}
}

func quoteAll(names []string) string {
	res := make([]string, len(names))
	for i, name := range names {
		res[i] = quote(name)
	}
	return strings.Join(res, ", ")
}
