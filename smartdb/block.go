// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package smartdb

import (
	"context"
	"fmt"
	"time"

	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/0xsoniclabs/tracy"
)

// MaxBlockRange is the maximum number of blocks fetched by a single range
// query.
const MaxBlockRange = 1000

// Block is a committed block, optionally together with its transactions.
type Block struct {
	Entity       model.Entity
	Transactions []model.Entity // < nil unless requested
}

// --- Block Scope ---

// BeginBlock opens the block with the given header. Its height must follow
// the last committed height. All changes confirmed until CommitBlock become
// part of this block.
func (db *SmartDB) BeginBlock(block model.Entity) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.initialized {
		return ErrNotInitialized
	}
	if db.failure != nil {
		return db.failure
	}
	if db.currentBlock != nil {
		return ErrBlockAlreadyOpen
	}
	if block == nil {
		return fmt.Errorf("%w: missing block", ErrInvalidBlock)
	}
	entity, err := db.blockSchema.CoerceEntity(block)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	height, found := entity["height"].(int64)
	if !found {
		return fmt.Errorf("%w: block without height", ErrInvalidBlock)
	}
	if height != db.lastHeight+1 {
		return fmt.Errorf("%w: expected block %d, got %d", ErrInvalidHeight, db.lastHeight+1, height)
	}
	db.blockSchema.SetDefaultValues(entity)
	if _, found := entity[model.VersionProperty]; !found {
		entity[model.VersionProperty] = int64(0)
	}
	db.currentBlock = entity
	db.log.Debug().Int64("height", height).Msg("begin block")
	return nil
}

// CommitBlock files all confirmed changes under the height of the open block
// and persists them together with the block. If persisting fails, a
// PersistenceFailure is returned and no further blocks can be processed.
func (db *SmartDB) CommitBlock(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	zone := tracy.ZoneBegin("smartdb::commit_block")
	defer zone.End()
	if db.failure != nil {
		return db.failure
	}
	if db.currentBlock == nil {
		return ErrNoOpenBlock
	}
	if db.tracker.IsConfirming() {
		return ErrContractOpen
	}
	block := db.currentBlock
	height := block["height"].(int64)
	changes := db.tracker.AcceptChanges(height)
	db.currentBlock = nil

	start := time.Now()
	if err := db.gateway.Persist(ctx, height, block, changes); err != nil {
		db.failure = &PersistenceFailure{Height: height, Err: err}
		db.log.Error().Err(err).Int64("height", height).Msg("failed to persist block")
		return db.failure
	}
	db.metrics.BlockCommitted(height, time.Since(start))
	db.lastHeight = height
	db.lastBlock = block
	db.blocks.add(block)
	tracy.FrameMark()
	db.log.Info().Int64("height", height).Int("changes", len(changes)).Msg("committed block")
	return nil
}

// RollbackBlock discards the open block and all changes not yet committed.
// The last committed block is kept. Without an open block, only pending
// changes are discarded.
func (db *SmartDB) RollbackBlock() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.discardBlock()
}

func (db *SmartDB) discardBlock() {
	db.tracker.RejectChanges()
	if db.currentBlock != nil {
		db.log.Debug().Any("height", db.currentBlock["height"]).Msg("discarded block")
	}
	db.currentBlock = nil
}

// RollbackBlockTo discards the open block and reverts all committed blocks
// above the given height, in memory and in durable storage. Heights at or
// above the last committed height leave committed blocks untouched.
func (db *SmartDB) RollbackBlockTo(ctx context.Context, height int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.initialized {
		return ErrNotInitialized
	}
	if height < -1 {
		return fmt.Errorf("%w: %d", ErrInvalidHeight, height)
	}
	db.discardBlock()
	if height >= db.lastHeight {
		return nil
	}
	zone := tracy.ZoneBegin("smartdb::rollback_block_to")
	defer zone.End()
	if err := db.tracker.RollbackChanges(ctx, height+1); err != nil {
		return err
	}
	if err := db.gateway.RevertTo(ctx, height); err != nil {
		db.failure = &PersistenceFailure{Height: height, Err: err}
		db.log.Error().Err(err).Int64("height", height).Msg("failed to revert blocks")
		return db.failure
	}
	from := db.lastHeight
	db.lastHeight = height
	db.blocks.removeAbove(height)
	db.lastBlock = nil
	if height >= 0 {
		block, err := db.findBlock(ctx, height)
		if err != nil {
			return err
		}
		db.lastBlock = block
	}
	db.metrics.BlockRolledBack(height)
	db.log.Info().Int64("from", from).Int64("to", height).Msg("rolled back blocks")
	return nil
}

// --- Contract Scope ---

// BeginContract opens a contract scope. Changes made until the scope is
// committed or rolled back can be undone as a unit.
func (db *SmartDB) BeginContract() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.initialized {
		return ErrNotInitialized
	}
	if db.tracker.IsConfirming() {
		return ErrContractOpen
	}
	db.tracker.BeginConfirm()
	return nil
}

// CommitContract confirms the changes of the open contract scope for the
// next block.
func (db *SmartDB) CommitContract() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.tracker.IsConfirming() {
		return ErrNoOpenContract
	}
	db.tracker.Confirm()
	return nil
}

// RollbackContract undoes the changes of the open contract scope.
func (db *SmartDB) RollbackContract() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.tracker.IsConfirming() {
		return ErrNoOpenContract
	}
	db.tracker.CancelConfirm()
	return nil
}

// --- Block Queries ---

// LastBlockHeight returns the height of the last committed block or -1.
func (db *SmartDB) LastBlockHeight() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lastHeight
}

// BlocksCount returns the number of committed blocks.
func (db *SmartDB) BlocksCount() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lastHeight + 1
}

// LastBlock returns a copy of the last committed block, nil if there is none.
func (db *SmartDB) LastBlock() model.Entity {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lastBlock.Clone()
}

// CurrentBlock returns a copy of the open block, nil if there is none.
func (db *SmartDB) CurrentBlock() model.Entity {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.currentBlock.Clone()
}

// GetBlockByHeight returns the committed block of the given height, nil if
// there is none.
func (db *SmartDB) GetBlockByHeight(ctx context.Context, height int64, withTransactions bool) (*Block, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	entity, err := db.findBlock(ctx, height)
	if err != nil || entity == nil {
		return nil, err
	}
	return db.toBlock(ctx, entity, withTransactions)
}

// GetBlockByID returns the committed block with the given id, nil if there is
// none.
func (db *SmartDB) GetBlockByID(ctx context.Context, id string, withTransactions bool) (*Block, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	entity, found := db.blocks.byID(id)
	if !found {
		var err error
		entity, found, err = db.gateway.FindOne(ctx, model.BlockKind, model.Key{"id": id})
		if err != nil || !found {
			return nil, err
		}
	}
	return db.toBlock(ctx, entity, withTransactions)
}

// GetBlocksByHeightRange returns the committed blocks with heights in [from,
// to] ordered by height.
func (db *SmartDB) GetBlocksByHeightRange(ctx context.Context, from, to int64, withTransactions bool) ([]*Block, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if from < 0 || to < from || to-from >= MaxBlockRange {
		return nil, fmt.Errorf("%w: range [%d, %d]", ErrInvalidHeight, from, to)
	}
	heights := make([]any, 0, to-from+1)
	for height := from; height <= to; height++ {
		heights = append(heights, height)
	}
	entities, err := db.gateway.FindAll(ctx, model.BlockKind, gateway.Query{
		In:   &gateway.InCondition{Property: "height", Values: heights},
		Sort: []gateway.Order{{Property: "height"}},
	})
	if err != nil {
		return nil, err
	}
	res := make([]*Block, 0, len(entities))
	for _, entity := range entities {
		block, err := db.toBlock(ctx, entity, withTransactions)
		if err != nil {
			return nil, err
		}
		res = append(res, block)
	}
	return res, nil
}

// findBlock looks a committed block up in the block cache and in durable
// storage. The result is nil if there is no such block.
func (db *SmartDB) findBlock(ctx context.Context, height int64) (model.Entity, error) {
	if block, found := db.blocks.get(height); found {
		return block, nil
	}
	block, found, err := db.gateway.FindOne(ctx, model.BlockKind, model.Key{"height": height})
	if err != nil || !found {
		return nil, err
	}
	return block, nil
}

func (db *SmartDB) toBlock(ctx context.Context, entity model.Entity, withTransactions bool) (*Block, error) {
	res := &Block{Entity: entity.Clone()}
	if !withTransactions {
		return res, nil
	}
	transactions, err := db.gateway.FindAll(ctx, model.TransactionKind, gateway.Query{
		Where: model.Key{"height": entity["height"]},
		Sort:  []gateway.Order{{Property: "timestamp"}, {Property: "id"}},
	})
	if err != nil {
		return nil, err
	}
	res.Transactions = transactions
	return res, nil
}

// cachedBlock serves Get for blocks from the block cache.
func (db *SmartDB) cachedBlock(schema *model.Schema, key model.Key) (model.Entity, bool, error) {
	resolved, err := schema.ResolveKey(key)
	if err != nil {
		return nil, false, err
	}
	var block model.Entity
	var found bool
	if resolved.IsPrimary {
		height, _ := resolved.Key["height"].(int64)
		block, found = db.blocks.get(height)
	} else {
		id, _ := resolved.Key["id"].(string)
		block, found = db.blocks.byID(id)
	}
	if !found {
		return nil, false, nil
	}
	return block.Clone(), true, nil
}

// loadBlock serves Load for blocks from the block cache and durable storage.
// Blocks are never tracked.
func (db *SmartDB) loadBlock(ctx context.Context, schema *model.Schema, key model.Key) (model.Entity, bool, error) {
	block, found, err := db.cachedBlock(schema, key)
	if err != nil || found {
		return block, found, err
	}
	resolved, _ := schema.ResolveKey(key)
	return db.gateway.FindOne(ctx, model.BlockKind, resolved.Key)
}

// --- Block Cache ---

// blockCache holds the most recent committed blocks.
type blockCache struct {
	capacity int
	blocks   map[int64]model.Entity
	newest   int64
}

func newBlockCache(capacity int) *blockCache {
	return &blockCache{
		capacity: capacity,
		blocks:   make(map[int64]model.Entity, capacity),
		newest:   -1,
	}
}

func (c *blockCache) add(block model.Entity) {
	height, _ := block["height"].(int64)
	c.blocks[height] = block.Clone()
	c.newest = max(c.newest, height)
	for cur := range c.blocks {
		if cur <= c.newest-int64(c.capacity) {
			delete(c.blocks, cur)
		}
	}
}

func (c *blockCache) get(height int64) (model.Entity, bool) {
	block, found := c.blocks[height]
	return block, found
}

func (c *blockCache) byID(id string) (model.Entity, bool) {
	for _, block := range c.blocks {
		if block["id"] == id {
			return block, true
		}
	}
	return nil, false
}

func (c *blockCache) removeAbove(height int64) {
	for cur := range c.blocks {
		if cur > height {
			delete(c.blocks, cur)
		}
	}
	c.newest = min(c.newest, height)
}
