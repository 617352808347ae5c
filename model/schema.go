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
	"fmt"
	"slices"
)

// PropertyType is the declared type of an entity property.
type PropertyType int

const (
	String PropertyType = iota
	Int64
	Amount
	Bool
	Bytes
	JSON
)

func (t PropertyType) String() string {
	switch t {
	case String:
		return "string"
	case Int64:
		return "int64"
	case Amount:
		return "amount"
	case Bool:
		return "bool"
	case Bytes:
		return "bytes"
	case JSON:
		return "json"
	}
	return fmt.Sprintf("PropertyType(%d)", int(t))
}

// Property declares one property of an entity kind.
type Property struct {
	Name    string
	Type    PropertyType
	Default any // < applied on creation if the property is unset
}

// Unique declares a named set of properties identifying at most one entity.
type Unique struct {
	Name       string
	Properties []string
}

// Schema is the static description of an entity kind.
type Schema struct {
	Name       string
	Properties []Property
	PrimaryKey []string
	Uniques    []Unique
	MaxCached  int  // < cache capacity for this kind, 0 for the default
	Memory     bool // < all instances are kept in the cache

	index map[string]int
}

// NewSchema validates the given description and returns a ready to use schema.
func NewSchema(s Schema) (*Schema, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("schema without name")
	}
	if len(s.PrimaryKey) == 0 {
		return nil, fmt.Errorf("schema %s has no primary key", s.Name)
	}
	res := s
	res.Properties = slices.Clone(s.Properties)
	res.PrimaryKey = slices.Clone(s.PrimaryKey)
	res.Uniques = make([]Unique, 0, len(s.Uniques))
	res.index = make(map[string]int, len(s.Properties))
	for i, property := range res.Properties {
		if property.Name == VersionProperty {
			return nil, fmt.Errorf("schema %s must not declare reserved property %s", s.Name, VersionProperty)
		}
		if _, found := res.index[property.Name]; found {
			return nil, fmt.Errorf("schema %s declares property %s twice", s.Name, property.Name)
		}
		res.index[property.Name] = i
	}
	for i, property := range res.Properties {
		if property.Default == nil {
			continue
		}
		value, err := res.coerce(property, property.Default)
		if err != nil {
			return nil, err
		}
		res.Properties[i].Default = value
	}
	for _, name := range res.PrimaryKey {
		if _, found := res.index[name]; !found {
			return nil, fmt.Errorf("primary key property %s of schema %s is not declared", name, s.Name)
		}
	}
	for _, unique := range s.Uniques {
		if unique.Name == "" || len(unique.Properties) == 0 {
			return nil, fmt.Errorf("schema %s has an incomplete unique key", s.Name)
		}
		for _, name := range unique.Properties {
			if _, found := res.index[name]; !found {
				return nil, fmt.Errorf("unique key %s of schema %s refers to unknown property %s", unique.Name, s.Name, name)
			}
		}
		res.Uniques = append(res.Uniques, Unique{Name: unique.Name, Properties: slices.Clone(unique.Properties)})
	}
	return &res, nil
}

// MustSchema is NewSchema for static declarations; it panics on errors.
func MustSchema(s Schema) *Schema {
	res, err := NewSchema(s)
	if err != nil {
		panic(err)
	}
	return res
}

// IsValidProperty reports whether the given name is a declared property or
// the version property.
func (s *Schema) IsValidProperty(name string) bool {
	if name == VersionProperty {
		return true
	}
	_, found := s.index[name]
	return found
}

// Property returns the declaration of the named property.
func (s *Schema) Property(name string) (Property, bool) {
	if name == VersionProperty {
		return Property{Name: VersionProperty, Type: Int64}, true
	}
	pos, found := s.index[name]
	if !found {
		return Property{}, false
	}
	return s.Properties[pos], true
}

// PropertyNames lists the declared properties in declaration order followed by
// the version property.
func (s *Schema) PropertyNames() []string {
	res := make([]string, 0, len(s.Properties)+1)
	for _, property := range s.Properties {
		res = append(res, property.Name)
	}
	return append(res, VersionProperty)
}

// JSONProperties lists the properties persisted as serialized JSON.
func (s *Schema) JSONProperties() []string {
	var res []string
	for _, property := range s.Properties {
		if property.Type == JSON {
			res = append(res, property.Name)
		}
	}
	return res
}

func (s *Schema) IsCompositeKey() bool {
	return len(s.PrimaryKey) > 1
}

// SetDefaultValues fills unset properties that declare a default.
func (s *Schema) SetDefaultValues(entity Entity) {
	for _, property := range s.Properties {
		if property.Default == nil {
			continue
		}
		if _, found := entity[property.Name]; !found {
			entity[property.Name] = CloneValue(property.Default)
		}
	}
}

// PrimaryKeyOf extracts the normalized primary key of an entity.
func (s *Schema) PrimaryKeyOf(entity Entity) (Key, error) {
	key := make(Key, len(s.PrimaryKey))
	for _, name := range s.PrimaryKey {
		value, found := entity[name]
		if !found || value == nil {
			return nil, &IncompleteKeyError{Kind: s.Name, Key: s.keyOf(entity, s.PrimaryKey), Required: slices.Clone(s.PrimaryKey)}
		}
		key[name] = value
	}
	return key, nil
}

// UniqueKeyOf extracts the named unique key of an entity. The result is false
// if any of its properties is unset.
func (s *Schema) UniqueKeyOf(entity Entity, unique Unique) (Key, bool) {
	key := make(Key, len(unique.Properties))
	for _, name := range unique.Properties {
		value, found := entity[name]
		if !found || value == nil {
			return nil, false
		}
		key[name] = value
	}
	return key, true
}

// ResolvedKey is the result of resolving a user supplied key.
type ResolvedKey struct {
	Key       Key
	IsPrimary bool
	Unique    string // < name of the unique key if !IsPrimary
}

// ResolveKey determines whether a key addresses an entity by its primary key
// or by one of its unique keys. Keys covering neither are rejected with an
// IncompleteKeyError; in particular a partial composite primary key is never
// treated as a lookup miss.
func (s *Schema) ResolveKey(key Key) (ResolvedKey, error) {
	if primary, ok := s.project(key, s.PrimaryKey); ok {
		return ResolvedKey{Key: primary, IsPrimary: true}, nil
	}
	for _, unique := range s.Uniques {
		if projected, ok := s.project(key, unique.Properties); ok {
			return ResolvedKey{Key: projected, Unique: unique.Name}, nil
		}
	}
	return ResolvedKey{}, &IncompleteKeyError{Kind: s.Name, Key: key, Required: slices.Clone(s.PrimaryKey)}
}

func (s *Schema) project(key Key, names []string) (Key, bool) {
	res := make(Key, len(names))
	for _, name := range names {
		value, found := key[name]
		if !found || value == nil {
			return nil, false
		}
		res[name] = value
	}
	return res, true
}

func (s *Schema) keyOf(entity Entity, names []string) Key {
	res := Key{}
	for _, name := range names {
		if value, found := entity[name]; found {
			res[name] = value
		}
	}
	return res
}
