// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package change

import (
	"fmt"

	"github.com/0xsoniclabs/smartdb/model"
)

// Type distinguishes the kinds of entity changes.
type Type uint8

const (
	New Type = iota + 1
	Modify
	Delete
)

func (t Type) String() string {
	switch t {
	case New:
		return "new"
	case Modify:
		return "modify"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// PropertyChange describes the transition of a single property. Original is
// not used by New records, Current is not used by Delete records.
type PropertyChange struct {
	Name     string
	Original any
	Current  any
}

// Record is a single registered mutation of an entity.
type Record struct {
	Type            Type
	Model           string
	PrimaryKey      model.Key
	DBVersion       int64 // < version of the entity after the change
	PropertyChanges []PropertyChange
}

// Clone creates a deep copy of the record.
func (r Record) Clone() Record {
	res := r
	res.PrimaryKey = r.PrimaryKey.Clone()
	res.PropertyChanges = make([]PropertyChange, len(r.PropertyChanges))
	for i, change := range r.PropertyChanges {
		res.PropertyChanges[i] = PropertyChange{
			Name:     change.Name,
			Original: model.CloneValue(change.Original),
			Current:  model.CloneValue(change.Current),
		}
	}
	return res
}

// Original collects the values the entity had before the change.
func (r Record) Original() model.Entity {
	res := make(model.Entity, len(r.PropertyChanges))
	for _, change := range r.PropertyChanges {
		res[change.Name] = model.CloneValue(change.Original)
	}
	return res
}

// Current collects the values the entity has after the change.
func (r Record) Current() model.Entity {
	res := make(model.Entity, len(r.PropertyChanges))
	for _, change := range r.PropertyChanges {
		res[change.Name] = model.CloneValue(change.Current)
	}
	return res
}

func (r Record) String() string {
	return fmt.Sprintf("%v %s(%v) v%d", r.Type, r.Model, r.PrimaryKey, r.DBVersion)
}

// CloneAll deep copies a list of records.
func CloneAll(records []Record) []Record {
	if records == nil {
		return nil
	}
	res := make([]Record, len(records))
	for i, record := range records {
		res[i] = record.Clone()
	}
	return res
}

// Inverse returns the record undoing this one: a creation becomes a
// deletion, a deletion a creation and a modification swaps its original and
// current values.
func (r Record) Inverse() Record {
	res := Record{
		Model:           r.Model,
		PrimaryKey:      r.PrimaryKey.Clone(),
		DBVersion:       r.DBVersion,
		PropertyChanges: make([]PropertyChange, len(r.PropertyChanges)),
	}
	for i, change := range r.PropertyChanges {
		res.PropertyChanges[i] = PropertyChange{
			Name:     change.Name,
			Original: model.CloneValue(change.Current),
			Current:  model.CloneValue(change.Original),
		}
	}
	switch r.Type {
	case New:
		res.Type = Delete
	case Delete:
		res.Type = New
	default:
		res.Type = r.Type
	}
	return res
}
