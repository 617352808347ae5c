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
	"testing"

	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/stretchr/testify/require"
)

func TestQuery_ValidateCoercesValues(t *testing.T) {
	require := require.New(t)
	query, err := Query{
		Where: model.Key{"balance": "12"},
		In:    &InCondition{Property: "flag", Values: []any{1, 2.0}},
	}.Validate(model.BalanceSchema)
	require.NoError(err)
	require.Equal(amount.New(12), query.Where["balance"])
	require.Equal([]any{int64(1), int64(2)}, query.In.Values)
}

func TestQuery_ValidateRejectsInvalidQueries(t *testing.T) {
	tests := map[string]Query{
		"negative limit":     {Limit: -1},
		"negative offset":    {Offset: -1},
		"unknown property":   {Where: model.Key{"color": "red"}},
		"invalid value":      {Where: model.Key{"flag": "x"}},
		"unknown in":         {In: &InCondition{Property: "color", Values: []any{"red"}}},
		"unknown sort order": {Sort: []Order{{Property: "color"}}},
	}
	for name, query := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := query.Validate(model.BalanceSchema)
			require.Error(t, err)
		})
	}
}

func TestQuery_ApplyFiltersSortsAndPages(t *testing.T) {
	require := require.New(t)
	entities := []model.Entity{
		{"address": "A1", "balance": amount.New(100)},
		{"address": "A2", "balance": amount.New(9), "flag": int64(1)},
		{"address": "A3", "balance": amount.New(10)},
		{"address": "A4", "balance": amount.New(10), "flag": int64(2)},
	}
	query := Query{Sort: []Order{{Property: "balance"}, {Property: "address", Descending: true}}}
	res := query.Apply(entities)
	require.Equal([]model.Entity{entities[1], entities[3], entities[2], entities[0]}, res)

	query = Query{Where: model.Key{"flag": nil}}
	require.Equal([]model.Entity{entities[0], entities[2]}, query.Apply(entities))

	query = Query{In: &InCondition{Property: "flag", Values: []any{int64(2), int64(3)}}}
	require.Equal([]model.Entity{entities[3]}, query.Apply(entities))

	query = Query{Offset: 1, Limit: 2}
	require.Equal([]model.Entity{entities[1], entities[2]}, query.Apply(entities))

	query = Query{Offset: 10}
	require.Empty(query.Apply(entities))
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{nil, nil, 0},
		{nil, int64(1), -1},
		{int64(1), nil, 1},
		{int64(1), int64(2), -1},
		{"b", "a", 1},
		{amount.New(9), amount.New(10), -1},
		{false, true, -1},
		{true, true, 0},
		{[]byte{1}, []byte{1, 0}, -1},
	}
	for _, test := range tests {
		require.Equal(t, test.want, CompareValues(test.a, test.b), "%v <=> %v", test.a, test.b)
	}
}
