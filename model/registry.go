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
	"strings"
)

// Registry is the immutable set of entity kinds known to a store.
type Registry struct {
	schemas map[string]*Schema
	names   []string
}

// NewRegistry creates a registry for the given schemas. Kind names must be
// unique.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	res := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, schema := range schemas {
		if schema == nil || schema.index == nil {
			return nil, fmt.Errorf("schemas must be created using NewSchema")
		}
		if _, found := res.schemas[schema.Name]; found {
			return nil, fmt.Errorf("entity kind %s registered twice", schema.Name)
		}
		res.schemas[schema.Name] = schema
		res.names = append(res.names, schema.Name)
	}
	slices.SortFunc(res.names, strings.Compare)
	return res, nil
}

// Get returns the schema of the named kind.
func (r *Registry) Get(kind string) (*Schema, error) {
	if schema, found := r.schemas[kind]; found {
		return schema, nil
	}
	return nil, &UnregisteredKindError{Kind: kind}
}

// Has reports whether the named kind is registered.
func (r *Registry) Has(kind string) bool {
	_, found := r.schemas[kind]
	return found
}

// Kinds lists the registered kind names in lexicographical order.
func (r *Registry) Kinds() []string {
	return slices.Clone(r.names)
}

// Schemas lists the registered schemas ordered by kind name.
func (r *Registry) Schemas() []*Schema {
	res := make([]*Schema, 0, len(r.names))
	for _, name := range r.names {
		res = append(res, r.schemas[name])
	}
	return res
}
