// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package gateway

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"

	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/0xsoniclabs/smartdb/model"
)

// Query selects entities of a kind from durable storage.
type Query struct {
	Where  model.Key    // < properties required to equal the given values
	In     *InCondition // < optional property restricted to a list of values
	Sort   []Order
	Limit  int // < 0 for no limit
	Offset int
}

// InCondition restricts a property to one of a list of values.
type InCondition struct {
	Property string
	Values   []any
}

// Order sorts query results by a property.
type Order struct {
	Property   string
	Descending bool
}

// Validate checks that the query only refers to properties of the schema and
// normalizes its values.
func (q Query) Validate(schema *model.Schema) (Query, error) {
	res := q
	if q.Limit < 0 || q.Offset < 0 {
		return Query{}, fmt.Errorf("invalid limit %d or offset %d", q.Limit, q.Offset)
	}
	if q.Where != nil {
		where, err := schema.CoerceKey(q.Where)
		if err != nil {
			return Query{}, err
		}
		res.Where = where
	}
	if q.In != nil {
		in := &InCondition{Property: q.In.Property, Values: make([]any, 0, len(q.In.Values))}
		for _, value := range q.In.Values {
			coerced, err := schema.Coerce(q.In.Property, value)
			if err != nil {
				return Query{}, err
			}
			in.Values = append(in.Values, coerced)
		}
		res.In = in
	}
	for _, order := range q.Sort {
		if !schema.IsValidProperty(order.Property) {
			return Query{}, &model.UnknownPropertyError{Kind: schema.Name, Property: order.Property}
		}
	}
	return res, nil
}

// Matches reports whether an entity satisfies the filters of the query.
func (q Query) Matches(entity model.Entity) bool {
	if !q.Where.Matches(entity) {
		return false
	}
	if q.In == nil {
		return true
	}
	value := entity[q.In.Property]
	for _, candidate := range q.In.Values {
		if model.ValuesEqual(value, candidate) {
			return true
		}
	}
	return false
}

// Apply filters, sorts and pages a list of entities according to the query.
func (q Query) Apply(entities []model.Entity) []model.Entity {
	res := make([]model.Entity, 0, len(entities))
	for _, entity := range entities {
		if q.Matches(entity) {
			res = append(res, entity)
		}
	}
	if len(q.Sort) > 0 {
		slices.SortStableFunc(res, func(a, b model.Entity) int {
			for _, order := range q.Sort {
				c := CompareValues(a[order.Property], b[order.Property])
				if order.Descending {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}
	if q.Offset >= len(res) {
		return []model.Entity{}
	}
	res = res[q.Offset:]
	if q.Limit > 0 && q.Limit < len(res) {
		res = res[:q.Limit]
	}
	return res
}

// CompareValues orders canonical property values. nil is smaller than any
// other value; values of different types are ordered by their type.
func CompareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	case amount.Amount:
		if y, ok := b.(amount.Amount); ok {
			return x.Cmp(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case []byte:
		if y, ok := b.([]byte); ok {
			return bytes.Compare(x, y)
		}
	}
	return cmp.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}
