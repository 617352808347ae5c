// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/holiman/uint256"
	"golang.org/x/exp/maps"
)

// PropertyValue is a single entry of a Delta.
type PropertyValue struct {
	Name  string
	Value any
}

// Delta is a sparse update of an entity: a list of property values ordered by
// property name.
type Delta []PropertyValue

// Names lists the properties touched by the delta.
func (d Delta) Names() []string {
	res := make([]string, 0, len(d))
	for _, value := range d {
		res = append(res, value.Name)
	}
	return res
}

// Coerce converts a value into the canonical representation of the named
// property's type:
//
//	String -> string, Int64 -> int64, Amount -> amount.Amount,
//	Bool -> bool, Bytes -> []byte, JSON -> map[string]any / []any trees.
//
// nil is accepted for every type.
func (s *Schema) Coerce(name string, value any) (any, error) {
	property, found := s.Property(name)
	if !found {
		return nil, &UnknownPropertyError{Kind: s.Name, Property: name}
	}
	return s.coerce(property, value)
}

// CoerceEntity validates and normalizes all values of an entity. The result
// does not share state with the input.
func (s *Schema) CoerceEntity(values map[string]any) (Entity, error) {
	res := make(Entity, len(values))
	for name, value := range values {
		coerced, err := s.Coerce(name, value)
		if err != nil {
			return nil, err
		}
		res[name] = CloneValue(coerced)
	}
	return res, nil
}

// CoerceKey normalizes the values of a lookup key.
func (s *Schema) CoerceKey(values map[string]any) (Key, error) {
	entity, err := s.CoerceEntity(values)
	if err != nil {
		return nil, err
	}
	return Key(entity), nil
}

// CoerceDelta validates the given update values against the schema and
// returns them as a Delta ordered by property name.
func (s *Schema) CoerceDelta(values map[string]any) (Delta, error) {
	names := maps.Keys(values)
	slices.Sort(names)
	res := make(Delta, 0, len(names))
	for _, name := range names {
		coerced, err := s.Coerce(name, values[name])
		if err != nil {
			return nil, err
		}
		res = append(res, PropertyValue{Name: name, Value: CloneValue(coerced)})
	}
	return res, nil
}

func (s *Schema) coerce(property Property, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch property.Type {
	case String:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case Int64:
		if v, ok := toInt64(value); ok {
			return v, nil
		}
	case Amount:
		if v, ok := toAmount(value); ok {
			return v, nil
		}
	case Bool:
		switch v := value.(type) {
		case bool:
			return v, nil
		default:
			if i, ok := toInt64(value); ok && (i == 0 || i == 1) {
				return i == 1, nil
			}
		}
	case Bytes:
		switch v := value.(type) {
		case []byte:
			return bytes.Clone(v), nil
		case string:
			return []byte(v), nil
		}
	case JSON:
		if v, err := normalizeJSON(value); err == nil {
			return v, nil
		}
	}
	return nil, &InvalidValueError{Kind: s.Name, Property: property.Name, Value: value, Type: property.Type}
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), uint64(v) <= math.MaxInt64
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), v <= math.MaxInt64
	case float32:
		return toInt64(float64(v))
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	}
	return 0, false
}

func toAmount(value any) (amount.Amount, bool) {
	switch v := value.(type) {
	case amount.Amount:
		return v, true
	case *amount.Amount:
		if v != nil {
			return *v, true
		}
	case uint256.Int:
		return amount.NewFromUint256(&v), true
	case *uint256.Int:
		if v != nil {
			return amount.NewFromUint256(v), true
		}
	case string:
		if parsed, err := amount.NewFromString(v); err == nil {
			return parsed, true
		}
	case []byte:
		if parsed, err := amount.NewFromString(string(v)); err == nil {
			return parsed, true
		}
	case uint64:
		return amount.New(v), true
	default:
		if i, ok := toInt64(value); ok && i >= 0 {
			return amount.New(uint64(i)), true
		}
	}
	return amount.Amount{}, false
}

// normalizeJSON converts a JSON-like tree into maps of strings, slices of any
// and scalar leaves. Integral numbers become int64 so that values survive a
// round trip through a JSON encoding unchanged.
func normalizeJSON(value any) (any, error) {
	switch v := value.(type) {
	case nil, string, bool:
		return v, nil
	case float32:
		return normalizeJSON(float64(v))
	case float64:
		if i, ok := toInt64(v); ok {
			return i, nil
		}
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		return v.Float64()
	case map[string]any:
		res := make(map[string]any, len(v))
		for key, item := range v {
			normalized, err := normalizeJSON(item)
			if err != nil {
				return nil, err
			}
			res[key] = normalized
		}
		return res, nil
	case map[any]any:
		res := make(map[string]any, len(v))
		for key, item := range v {
			name, ok := key.(string)
			if !ok {
				return nil, fmt.Errorf("unsupported JSON object key %v", key)
			}
			normalized, err := normalizeJSON(item)
			if err != nil {
				return nil, err
			}
			res[name] = normalized
		}
		return res, nil
	case []any:
		res := make([]any, len(v))
		for i, item := range v {
			normalized, err := normalizeJSON(item)
			if err != nil {
				return nil, err
			}
			res[i] = normalized
		}
		return res, nil
	case []string:
		res := make([]any, len(v))
		for i, item := range v {
			res[i] = item
		}
		return res, nil
	}
	if i, ok := toInt64(value); ok {
		return i, nil
	}
	return nil, fmt.Errorf("unsupported JSON value of type %T", value)
}
