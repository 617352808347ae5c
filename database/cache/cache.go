// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package cache

import (
	"math"

	"github.com/0xsoniclabs/smartdb/metrics"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	MinCapacity     = 100
	DefaultCapacity = 50_000
)

// EvictionObserver is notified whenever an entity is dropped because its
// kind exceeded its capacity. Explicit removals are not reported.
type EvictionObserver func(kind string, key model.Key, entity model.Entity)

// Options configure a Cache. Zero values select defaults.
type Options struct {
	DefaultCapacity int // < capacity of kinds without MaxCached
	Observer        EvictionObserver
	Metrics         metrics.Collector
}

// Entry is a resident entity together with its primary key.
type Entry struct {
	Key    model.Key
	Entity model.Entity
}

// Cache holds live entity snapshots in one LRU per entity kind. Entities are
// addressed by their normalized primary key and may also be found through any
// of the unique keys of their kind.
//
// Entities stored in the cache are owned by it; callers that hand out values
// must copy them. The cache is not safe for concurrent use.
type Cache struct {
	kinds    map[string]*kindCache
	observer EvictionObserver
	metrics  metrics.Collector
}

type kindCache struct {
	schema   *model.Schema
	capacity int
	entries  *simplelru.LRU[string, *Entry]
	uniques  map[string]map[string]string // < unique name -> unique token -> primary token
	removing bool
}

// New creates a cache for all kinds of the given registry.
func New(registry *model.Registry, options Options) (*Cache, error) {
	if options.DefaultCapacity <= 0 {
		options.DefaultCapacity = DefaultCapacity
	}
	if options.Metrics == nil {
		options.Metrics = metrics.NewNoopCollector()
	}
	res := &Cache{
		kinds:    make(map[string]*kindCache),
		observer: options.Observer,
		metrics:  options.Metrics,
	}
	for _, schema := range registry.Schemas() {
		kind := &kindCache{
			schema:   schema,
			capacity: CapacityOf(schema, options.DefaultCapacity),
			uniques:  make(map[string]map[string]string, len(schema.Uniques)),
		}
		for _, unique := range schema.Uniques {
			kind.uniques[unique.Name] = map[string]string{}
		}
		entries, err := simplelru.NewLRU[string, *Entry](kind.capacity, res.onEvict(kind))
		if err != nil {
			return nil, err
		}
		kind.entries = entries
		res.kinds[schema.Name] = kind
	}
	return res, nil
}

// CapacityOf computes the number of entities of a kind kept in the cache.
// Memory kinds are never evicted.
func CapacityOf(schema *model.Schema, defaultCapacity int) int {
	if schema.Memory {
		return math.MaxInt
	}
	capacity := schema.MaxCached
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return max(MinCapacity, capacity)
}

func (c *Cache) onEvict(kind *kindCache) simplelru.EvictCallback[string, *Entry] {
	return func(_ string, entry *Entry) {
		kind.unindex(entry)
		if kind.removing {
			return
		}
		c.metrics.CacheEviction(kind.schema.Name)
		if c.observer != nil {
			c.observer(kind.schema.Name, entry.Key, entry.Entity)
		}
	}
}

func (c *Cache) kind(name string) (*kindCache, error) {
	if kind, found := c.kinds[name]; found {
		return kind, nil
	}
	return nil, &model.UnregisteredKindError{Kind: name}
}

// Put inserts or replaces the entity stored under the given primary key.
func (c *Cache) Put(kindName string, key model.Key, entity model.Entity) error {
	kind, err := c.kind(kindName)
	if err != nil {
		return err
	}
	token := key.String()
	if previous, found := kind.entries.Peek(token); found {
		kind.unindex(previous)
	}
	entry := &Entry{Key: key, Entity: entity}
	kind.entries.Add(token, entry)
	kind.index(token, entry)
	c.metrics.CacheSize(kindName, kind.entries.Len())
	return nil
}

// Get returns the cached entity of the given primary key. The result is the
// cached instance itself and must not be modified.
func (c *Cache) Get(kindName string, key model.Key) (model.Entity, bool) {
	kind, found := c.kinds[kindName]
	if !found {
		return nil, false
	}
	entry, found := kind.entries.Get(key.String())
	if !found {
		c.metrics.CacheMiss(kindName)
		return nil, false
	}
	c.metrics.CacheHit(kindName)
	return entry.Entity, true
}

// GetByUnique looks an entity up by one of its unique keys.
func (c *Cache) GetByUnique(kindName string, unique string, key model.Key) (model.Entity, bool) {
	kind, found := c.kinds[kindName]
	if !found {
		return nil, false
	}
	token, found := kind.uniques[unique][key.String()]
	if !found {
		c.metrics.CacheMiss(kindName)
		return nil, false
	}
	entry, found := kind.entries.Get(token)
	if !found {
		c.metrics.CacheMiss(kindName)
		return nil, false
	}
	c.metrics.CacheHit(kindName)
	return entry.Entity, true
}

// Refresh applies the given property values to a cached entity and updates
// the unique key index. Nil values remove the property. The result is false
// if the entity is not cached.
func (c *Cache) Refresh(kindName string, key model.Key, values model.Entity) bool {
	kind, found := c.kinds[kindName]
	if !found {
		return false
	}
	token := key.String()
	entry, found := kind.entries.Peek(token)
	if !found {
		return false
	}
	kind.unindex(entry)
	for name, value := range values {
		if value == nil {
			delete(entry.Entity, name)
		} else {
			entry.Entity[name] = value
		}
	}
	kind.index(token, entry)
	return true
}

// Evict removes an entity from the cache. The eviction observer is not
// notified.
func (c *Cache) Evict(kindName string, key model.Key) bool {
	kind, found := c.kinds[kindName]
	if !found {
		return false
	}
	kind.removing = true
	defer func() { kind.removing = false }()
	present := kind.entries.Remove(key.String())
	c.metrics.CacheSize(kindName, kind.entries.Len())
	return present
}

// Entries lists the resident entities of a kind from the least to the most
// recently used one.
func (c *Cache) Entries(kindName string) []Entry {
	kind, found := c.kinds[kindName]
	if !found {
		return nil
	}
	values := kind.entries.Values()
	res := make([]Entry, 0, len(values))
	for _, entry := range values {
		res = append(res, *entry)
	}
	return res
}

func (c *Cache) Len(kindName string) int {
	kind, found := c.kinds[kindName]
	if !found {
		return 0
	}
	return kind.entries.Len()
}

// Capacity returns the maximum number of resident entities of a kind.
func (c *Cache) Capacity(kindName string) int {
	kind, found := c.kinds[kindName]
	if !found {
		return 0
	}
	return kind.capacity
}

// Clear removes all entities without notifying the eviction observer.
func (c *Cache) Clear() {
	for name, kind := range c.kinds {
		kind.removing = true
		kind.entries.Purge()
		kind.removing = false
		c.metrics.CacheSize(name, 0)
	}
}

func (k *kindCache) index(token string, entry *Entry) {
	for _, unique := range k.schema.Uniques {
		if key, ok := k.schema.UniqueKeyOf(entry.Entity, unique); ok {
			k.uniques[unique.Name][key.String()] = token
		}
	}
}

func (k *kindCache) unindex(entry *Entry) {
	token := entry.Key.String()
	for _, unique := range k.schema.Uniques {
		key, ok := k.schema.UniqueKeyOf(entry.Entity, unique)
		if !ok {
			continue
		}
		index := k.uniques[unique.Name]
		if cur, found := index[key.String()]; found && cur == token {
			delete(index, key.String())
		}
	}
}
