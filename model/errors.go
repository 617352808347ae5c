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
	"strings"
)

// UnregisteredKindError is returned when an operation names an entity kind
// without a registered schema.
type UnregisteredKindError struct {
	Kind string
}

func (e *UnregisteredKindError) Error() string {
	return fmt.Sprintf("entity kind %q is not registered", e.Kind)
}

// IncompleteKeyError is returned when a key covers neither the complete
// primary key nor any unique key of a kind, e.g. a partial composite key.
type IncompleteKeyError struct {
	Kind     string
	Key      Key
	Required []string
}

func (e *IncompleteKeyError) Error() string {
	return fmt.Sprintf("key %v of entity kind %q is incomplete, required properties: %s",
		e.Key, e.Kind, strings.Join(e.Required, ", "))
}

// UnknownPropertyError is returned when a delta or an entity names a property
// the schema does not declare.
type UnknownPropertyError struct {
	Kind     string
	Property string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("entity kind %q has no property %q", e.Kind, e.Property)
}

// InvalidValueError is returned when a value cannot be converted to the
// declared type of its property.
type InvalidValueError struct {
	Kind     string
	Property string
	Value    any
	Type     PropertyType
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("value %v (%T) of %s.%s is not a valid %v", e.Value, e.Value, e.Kind, e.Property, e.Type)
}
