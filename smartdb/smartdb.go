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
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/0xsoniclabs/smartdb/change"
	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/0xsoniclabs/smartdb/common/logging"
	"github.com/0xsoniclabs/smartdb/database/cache"
	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/database/tracker"
	"github.com/0xsoniclabs/smartdb/metrics"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/rs/zerolog"
)

// DefaultCachedBlockCount is the number of recent blocks kept in memory
// unless configured otherwise.
const DefaultCachedBlockCount = 10

type Options struct {
	Registry               *model.Registry // < model.DefaultRegistry if nil
	MaxHistoryVersionsHold int
	CachedBlockCount       int
	CacheDefaultSize       int // < capacity of kinds without an explicit limit
	Logger                 zerolog.Logger
	Metrics                metrics.Collector
}

// SmartDB is the versioned entity store of a node. Entities are read and
// written through an in-memory cache; every mutation is tracked as a change
// which is persisted with the next committed block and can be undone by
// rolling back contracts or blocks.
//
// All methods are serialized; a SmartDB has a single logical writer.
type SmartDB struct {
	mu       sync.Mutex
	log      zerolog.Logger
	registry *model.Registry
	gateway  gateway.Gateway
	cache    *cache.Cache
	tracker  *tracker.Tracker
	metrics  metrics.Collector

	blockSchema  *model.Schema
	blocks       *blockCache
	lastHeight   int64
	lastBlock    model.Entity
	currentBlock model.Entity

	initialized bool
	failure     error // < set once persisting failed, ends block processing
}

// New creates a store on top of the given gateway. Init must be called before
// blocks can be processed.
func New(store gateway.Gateway, options Options) (*SmartDB, error) {
	if options.Registry == nil {
		options.Registry = model.DefaultRegistry
	}
	if options.Metrics == nil {
		options.Metrics = metrics.NewNoopCollector()
	}
	if options.CachedBlockCount <= 0 {
		options.CachedBlockCount = DefaultCachedBlockCount
	}
	blockSchema, err := options.Registry.Get(model.BlockKind)
	if err != nil {
		return nil, fmt.Errorf("the registry must contain blocks: %w", err)
	}

	log := logging.Component(options.Logger, "smartdb")
	entities, err := cache.New(options.Registry, cache.Options{
		DefaultCapacity: options.CacheDefaultSize,
		Metrics:         options.Metrics,
		Observer: func(kind string, key model.Key, _ model.Entity) {
			log.Debug().Str("model", kind).Stringer("key", key).Msg("evicted entity")
		},
	})
	if err != nil {
		return nil, err
	}
	return &SmartDB{
		log:      log,
		registry: options.Registry,
		gateway:  store,
		cache:    entities,
		tracker: tracker.New(entities, options.Registry, store, tracker.Options{
			MaxHistoryVersionsHold: options.MaxHistoryVersionsHold,
			Logger:                 options.Logger,
			Metrics:                options.Metrics,
		}),
		metrics:     options.Metrics,
		blockSchema: blockSchema,
		blocks:      newBlockCache(options.CachedBlockCount),
		lastHeight:  -1,
	}, nil
}

// Init restores the in-memory state from durable storage: the recent blocks,
// the history of the last block and all entities of memory kinds. Calling it
// again has no effect.
func (db *SmartDB) Init(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.initialized {
		return nil
	}
	last, err := db.gateway.LastHeight(ctx)
	if err != nil {
		return err
	}
	db.lastHeight = last
	if last >= 0 {
		blocks, err := db.gateway.FindAll(ctx, model.BlockKind, gateway.Query{
			Sort:  []gateway.Order{{Property: "height", Descending: true}},
			Limit: db.blocks.capacity,
		})
		if err != nil {
			return err
		}
		for i := len(blocks) - 1; i >= 0; i-- {
			db.blocks.add(blocks[i])
		}
		if db.lastBlock, err = db.findBlock(ctx, last); err != nil {
			return err
		}
	}
	if err := db.tracker.InitVersion(ctx, last); err != nil {
		return err
	}
	for _, schema := range db.registry.Schemas() {
		if !schema.Memory {
			continue
		}
		entities, err := db.gateway.FindAll(ctx, schema.Name, gateway.Query{})
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", schema.Name, err)
		}
		for _, entity := range entities {
			if _, err := db.tracker.TrackPersistent(schema, entity); err != nil {
				return err
			}
		}
		db.log.Debug().Str("model", schema.Name).Int("count", len(entities)).Msg("loaded memory entities")
	}
	db.initialized = true
	db.log.Info().Int64("height", last).Msg("initialized")
	return nil
}

func (db *SmartDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.gateway.Close()
}

// writable returns the schema of a kind that may be changed through entity
// operations.
func (db *SmartDB) writable(kind string) (*model.Schema, error) {
	if !db.initialized {
		return nil, ErrNotInitialized
	}
	if db.failure != nil {
		return nil, db.failure
	}
	schema, err := db.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	if schema.Name == model.BlockKind {
		return nil, ErrBlockKind
	}
	return schema, nil
}

// --- Entities ---

// Create tracks a new entity and returns a copy of it including default
// values and its version.
func (db *SmartDB) Create(kind string, values map[string]any) (model.Entity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	schema, err := db.writable(kind)
	if err != nil {
		return nil, err
	}
	entity, err := schema.CoerceEntity(values)
	if err != nil {
		return nil, err
	}
	return db.create(schema, entity)
}

func (db *SmartDB) create(schema *model.Schema, entity model.Entity) (model.Entity, error) {
	for name, value := range entity {
		if value == nil || name == model.VersionProperty {
			delete(entity, name)
		}
	}
	return db.tracker.TrackNew(schema, entity)
}

// CreateOrLoad loads the entity with the primary key contained in values or
// creates it from values if it does not exist. The result reports whether the
// entity was created.
func (db *SmartDB) CreateOrLoad(ctx context.Context, kind string, values map[string]any) (model.Entity, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	schema, err := db.writable(kind)
	if err != nil {
		return nil, false, err
	}
	entity, err := schema.CoerceEntity(values)
	if err != nil {
		return nil, false, err
	}
	key, err := schema.PrimaryKeyOf(entity)
	if err != nil {
		return nil, false, err
	}
	existing, found, err := db.load(ctx, schema, key)
	if err != nil || found {
		return existing, false, err
	}
	created, err := db.create(schema, entity)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// Get returns a copy of a cached entity addressed by its primary key or one
// of its unique keys. Durable storage is not consulted.
func (db *SmartDB) Get(kind string, key map[string]any) (model.Entity, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	schema, err := db.registry.Get(kind)
	if err != nil {
		return nil, false, err
	}
	normalized, err := schema.CoerceKey(key)
	if err != nil {
		return nil, false, err
	}
	if schema.Name == model.BlockKind {
		return db.cachedBlock(schema, normalized)
	}
	return db.tracker.GetTrackingEntity(schema, normalized)
}

// GetAll lists copies of all entities of a memory kind, most recently used
// first.
func (db *SmartDB) GetAll(kind string) ([]model.Entity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	schema, err := db.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	if !schema.Memory {
		return nil, fmt.Errorf("%w: %s", ErrNotMemory, kind)
	}
	entries := db.cache.Entries(kind)
	res := make([]model.Entity, 0, len(entries))
	for _, entry := range slices.Backward(entries) {
		res = append(res, entry.Entity.Clone())
	}
	return res, nil
}

// Load returns a copy of an entity from the cache or, if it is not cached,
// from durable storage. Loaded entities are tracked from then on. Entities
// deleted by changes not yet committed are absent.
func (db *SmartDB) Load(ctx context.Context, kind string, key map[string]any) (model.Entity, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	schema, err := db.registry.Get(kind)
	if err != nil {
		return nil, false, err
	}
	normalized, err := schema.CoerceKey(key)
	if err != nil {
		return nil, false, err
	}
	if schema.Name == model.BlockKind {
		return db.loadBlock(ctx, schema, normalized)
	}
	return db.load(ctx, schema, normalized)
}

func (db *SmartDB) load(ctx context.Context, schema *model.Schema, key model.Key) (model.Entity, bool, error) {
	entity, found, err := db.tracker.GetTrackingEntity(schema, key)
	if err != nil || found {
		return entity, found, err
	}
	resolved, err := schema.ResolveKey(key)
	if err != nil {
		return nil, false, err
	}
	if resolved.IsPrimary && db.tracker.IsDeleted(schema, resolved.Key) {
		return nil, false, nil
	}
	stored, found, err := db.gateway.FindOne(ctx, schema.Name, resolved.Key)
	if err != nil || !found {
		return nil, false, err
	}
	primaryKey, err := schema.PrimaryKeyOf(stored)
	if err != nil {
		return nil, false, err
	}
	if db.tracker.IsDeleted(schema, primaryKey) {
		return nil, false, nil
	}
	tracked, err := db.tracker.TrackPersistent(schema, stored)
	if err != nil {
		return nil, false, err
	}
	return tracked, true, nil
}

// Update sets the given property values of a tracked entity.
func (db *SmartDB) Update(kind string, values map[string]any, key map[string]any) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	schema, err := db.writable(kind)
	if err != nil {
		return err
	}
	delta, err := schema.CoerceDelta(values)
	if err != nil {
		return err
	}
	normalized, err := schema.CoerceKey(key)
	if err != nil {
		return err
	}
	return db.tracker.TrackModify(schema, normalized, delta)
}

// Increase adds the given deltas to numeric properties of a tracked entity.
// Deltas may be negative; amounts must not drop below zero.
func (db *SmartDB) Increase(kind string, deltas map[string]any, key map[string]any) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	schema, err := db.writable(kind)
	if err != nil {
		return err
	}
	normalized, err := schema.CoerceKey(key)
	if err != nil {
		return err
	}
	current, found, err := db.tracker.GetTrackingEntity(schema, normalized)
	if err != nil {
		return err
	}
	if !found {
		return &tracker.NotTrackingError{Kind: kind, Key: normalized}
	}
	values := make(map[string]any, len(deltas))
	for name, delta := range deltas {
		value, err := increase(schema, name, current[name], delta)
		if err != nil {
			return err
		}
		values[name] = value
	}
	delta, err := schema.CoerceDelta(values)
	if err != nil {
		return err
	}
	return db.tracker.TrackModify(schema, normalized, delta)
}

func increase(schema *model.Schema, name string, current, delta any) (any, error) {
	property, found := schema.Property(name)
	if !found || name == model.VersionProperty {
		return nil, &model.UnknownPropertyError{Kind: schema.Name, Property: name}
	}
	switch property.Type {
	case model.Int64:
		coerced, err := schema.Coerce(name, delta)
		if err != nil {
			return nil, err
		}
		value, _ := current.(int64)
		d, _ := coerced.(int64)
		if (d > 0 && value > math.MaxInt64-d) || (d < 0 && value < math.MinInt64-d) {
			return nil, fmt.Errorf("%w: %s.%s is %d, unable to add %d", ErrOverflow, schema.Name, name, value, d)
		}
		return value + d, nil
	case model.Amount:
		magnitude, negative := splitSign(delta)
		coerced, err := schema.Coerce(name, magnitude)
		if err != nil {
			return nil, err
		}
		value, _ := current.(amount.Amount)
		d, _ := coerced.(amount.Amount)
		if !negative {
			return value.Add(d)
		}
		res, err := value.Sub(d)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s is %v, unable to subtract %v", ErrInsufficientAmount, schema.Name, name, value, d)
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: %s.%s has type %v", ErrNotNumeric, schema.Name, name, property.Type)
}

// splitSign separates a signed number into its magnitude and sign.
func splitSign(value any) (any, bool) {
	switch v := value.(type) {
	case string:
		if rest, found := strings.CutPrefix(v, "-"); found {
			return rest, true
		}
	case int:
		if v < 0 {
			return uint64(-int64(v)), true
		}
	case int32:
		if v < 0 {
			return uint64(-int64(v)), true
		}
	case int64:
		if v < 0 {
			return uint64(-v), true
		}
	case float64:
		if v < 0 {
			return -v, true
		}
	}
	return value, false
}

// Del deletes a tracked entity.
func (db *SmartDB) Del(kind string, key map[string]any) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	schema, err := db.writable(kind)
	if err != nil {
		return err
	}
	normalized, err := schema.CoerceKey(key)
	if err != nil {
		return err
	}
	return db.tracker.TrackDelete(schema, normalized)
}

// --- Durable Storage ---

// FindOne reads a single entity from durable storage. Changes of blocks not
// yet committed are not visible.
func (db *SmartDB) FindOne(ctx context.Context, kind string, where map[string]any) (model.Entity, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.gateway.FindOne(ctx, kind, model.Key(where))
}

// FindAll reads entities from durable storage. Changes of blocks not yet
// committed are not visible.
func (db *SmartDB) FindAll(ctx context.Context, kind string, query gateway.Query) ([]model.Entity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.gateway.FindAll(ctx, kind, query)
}

// Count counts entities in durable storage. Changes of blocks not yet
// committed are not counted.
func (db *SmartDB) Count(ctx context.Context, kind string, where map[string]any) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.gateway.Count(ctx, kind, model.Key(where))
}

// --- History ---

// ChangesUntil returns all changes from the given height up to the last
// committed block.
func (db *SmartDB) ChangesUntil(ctx context.Context, height int64) ([]change.Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tracker.ChangesUntil(ctx, height)
}

// HistoryVersion returns the range of heights whose changes are held in
// memory.
func (db *SmartDB) HistoryVersion() (minVersion, currentVersion int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tracker.HistoryVersion()
}

// PendingChanges lists the changes not yet filed under a block height: those
// confirmed for the next block followed by those of an open contract.
func (db *SmartDB) PendingChanges() []change.Record {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append(db.tracker.ConfirmedChanges(), db.tracker.UnconfirmedChanges()...)
}
