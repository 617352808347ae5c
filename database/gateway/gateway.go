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

//go:generate mockgen -source gateway.go -destination gateway_mocks.go -package gateway

import (
	"context"

	"github.com/0xsoniclabs/smartdb/change"
	"github.com/0xsoniclabs/smartdb/common"
	"github.com/0xsoniclabs/smartdb/model"
)

const (
	ErrClosed        = common.ConstError("gateway is closed")
	ErrInvalidHeight = common.ConstError("invalid block height")
)

// Gateway is the durable storage of a store. It persists the changes of
// committed blocks, provides the change history needed to roll back heights
// no longer held in memory, reverts persisted heights and answers queries
// directly from durable storage.
type Gateway interface {
	// LoadHistory returns the changes of each persisted height in [from, to].
	LoadHistory(ctx context.Context, from, to int64) (map[int64][]change.Record, error)

	// History returns the persisted history rows of heights in [from, to]
	// ordered by height.
	History(ctx context.Context, from, to int64) ([]HistoryEntry, error)

	// LastHeight returns the height of the last persisted block or -1 if no
	// block has been persisted.
	LastHeight(ctx context.Context) (int64, error)

	// Persist writes the block of the given height together with its changes
	// in a single transaction. The height must follow the last persisted one.
	Persist(ctx context.Context, height int64, block model.Entity, changes []change.Record) error

	// RevertTo undoes all persisted heights above the given one, including
	// their blocks and history.
	RevertTo(ctx context.Context, height int64) error

	// FindOne returns the single entity matching all given property values.
	FindOne(ctx context.Context, kind string, where model.Key) (model.Entity, bool, error)

	// FindAll returns all entities matching the query.
	FindAll(ctx context.Context, kind string, query Query) ([]model.Entity, error)

	// Count returns the number of entities matching all given property values.
	Count(ctx context.Context, kind string, where model.Key) (int64, error)

	Close() error
}

// HistoryEntry is the persisted history of a single height.
type HistoryEntry struct {
	Height  int64
	Digest  change.Hash // < digest stored with the entry
	Changes []change.Record
}
