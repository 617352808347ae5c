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
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/mohae/deepcopy"
	"golang.org/x/exp/maps"
)

// VersionProperty is the reserved property holding an entity's version.
const VersionProperty = "_version_"

// Entity is a single instance of an entity kind, mapping property names to
// values. Values are expected to be in the canonical form produced by
// Schema.Coerce.
type Entity map[string]any

// Clone creates a deep copy of the entity.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	res := make(Entity, len(e))
	for name, value := range e {
		res[name] = CloneValue(value)
	}
	return res
}

// Version returns the entity's version or 0 if it has none.
func (e Entity) Version() int64 {
	version, _ := e[VersionProperty].(int64)
	return version
}

// Key identifies an entity through a primary or unique key. The map form is
// normalized by String which produces a token independent of the order in
// which properties were added.
type Key map[string]any

// String renders the key canonically, e.g. `address="A1",currency="GNY"`.
func (k Key) String() string {
	names := maps.Keys(k)
	slices.Sort(names)
	var builder strings.Builder
	for i, name := range names {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(name)
		builder.WriteByte('=')
		builder.WriteString(formatKeyValue(k[name]))
	}
	return builder.String()
}

func (k Key) Clone() Key {
	return Key(Entity(k).Clone())
}

// Matches reports whether the entity carries every value of this key.
func (k Key) Matches(entity Entity) bool {
	for name, value := range k {
		if !ValuesEqual(entity[name], value) {
			return false
		}
	}
	return true
}

func formatKeyValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case amount.Amount:
		return "#" + v.String()
	case []byte:
		return fmt.Sprintf("0x%x", v)
	}
	return fmt.Sprintf("%T(%v)", value, value)
}

// CloneValue deep copies a canonical property value.
func CloneValue(value any) any {
	switch v := value.(type) {
	case nil, string, int64, bool, amount.Amount:
		return v
	case []byte:
		return bytes.Clone(v)
	}
	return deepcopy.Copy(value)
}

// ValuesEqual compares two canonical property values.
func ValuesEqual(a, b any) bool {
	if x, ok := a.([]byte); ok {
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	}
	if x, ok := a.(amount.Amount); ok {
		y, ok := b.(amount.Amount)
		return ok && x.Equal(y)
	}
	switch a.(type) {
	case nil, string, int64, bool:
		return a == b
	}
	return formatKeyValue(a) == formatKeyValue(b)
}
