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
	"fmt"
	"strconv"
	"strings"

	"github.com/0xsoniclabs/smartdb/model"
)

// Dialect captures the differences between the supported SQL databases.
type Dialect struct {
	Name   string
	Driver string // < database/sql driver name
	types  map[model.PropertyType]string

	numbered bool // < placeholders are $1, $2, ... instead of ?
	// offsetNeedsLimit is set if OFFSET is only accepted after a LIMIT clause.
	offsetNeedsLimit bool
}

var (
	SQLite = &Dialect{
		Name:   "sqlite",
		Driver: "sqlite3",
		types: map[model.PropertyType]string{
			model.String: "TEXT",
			model.Int64:  "INTEGER",
			model.Amount: "TEXT",
			model.Bool:   "BOOLEAN",
			model.Bytes:  "BLOB",
			model.JSON:   "TEXT",
		},
		offsetNeedsLimit: true,
	}

	Postgres = &Dialect{
		Name:   "postgres",
		Driver: "pgx",
		types: map[model.PropertyType]string{
			model.String: "TEXT",
			model.Int64:  "BIGINT",
			model.Amount: "TEXT",
			model.Bool:   "BOOLEAN",
			model.Bytes:  "BYTEA",
			model.JSON:   "TEXT",
		},
		numbered: true,
	}
)

func (d *Dialect) String() string {
	return d.Name
}

func (d *Dialect) columnType(t model.PropertyType) string {
	if res, found := d.types[t]; found {
		return res
	}
	panic(fmt.Sprintf("unsupported property type %v", t))
}

func (d *Dialect) blobType() string {
	return d.types[model.Bytes]
}

func (d *Dialect) placeholder(position int) string {
	if d.numbered {
		return "$" + strconv.Itoa(position)
	}
	return "?"
}

func (d *Dialect) limit(limit, offset int) string {
	var res strings.Builder
	if limit > 0 {
		fmt.Fprintf(&res, " LIMIT %d", limit)
	} else if offset > 0 && d.offsetNeedsLimit {
		res.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		fmt.Fprintf(&res, " OFFSET %d", offset)
	}
	return res.String()
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
