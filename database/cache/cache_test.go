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
	"fmt"
	"math"
	"testing"

	"github.com/0xsoniclabs/smartdb/model"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, options Options) *Cache {
	t.Helper()
	cache, err := New(model.DefaultRegistry, options)
	require.NoError(t, err)
	return cache
}

func account(address string, username any) (model.Key, model.Entity) {
	return model.Key{"address": address}, model.Entity{"address": address, "username": username}
}

func TestCache_PutAndGet(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t, Options{})

	key, entity := account("A1", "alice")
	require.NoError(cache.Put(model.AccountKind, key, entity))

	got, found := cache.Get(model.AccountKind, model.Key{"address": "A1"})
	require.True(found)
	require.Equal(entity, got)
	require.Equal(1, cache.Len(model.AccountKind))

	_, found = cache.Get(model.AccountKind, model.Key{"address": "A2"})
	require.False(found)
	_, found = cache.Get("Unknown", key)
	require.False(found)
}

func TestCache_PutUnknownKindFails(t *testing.T) {
	cache := newTestCache(t, Options{})
	err := cache.Put("Unknown", model.Key{"id": "x"}, model.Entity{})
	var unregistered *model.UnregisteredKindError
	require.ErrorAs(t, err, &unregistered)
}

func TestCache_CompositeKeysAreOrderIndependent(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t, Options{})
	entity := model.Entity{"address": "A1", "currency": "GNY"}
	require.NoError(cache.Put(model.BalanceKind, model.Key{"address": "A1", "currency": "GNY"}, entity))
	_, found := cache.Get(model.BalanceKind, model.Key{"currency": "GNY", "address": "A1"})
	require.True(found)
}

func TestCache_GetByUnique(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t, Options{})
	key, entity := account("A1", "alice")
	require.NoError(cache.Put(model.AccountKind, key, entity))

	got, found := cache.GetByUnique(model.AccountKind, "username", model.Key{"username": "alice"})
	require.True(found)
	require.Equal("A1", got["address"])

	_, found = cache.GetByUnique(model.AccountKind, "username", model.Key{"username": "bob"})
	require.False(found)
	_, found = cache.GetByUnique(model.AccountKind, "unknown", model.Key{"username": "alice"})
	require.False(found)
}

func TestCache_RefreshReindexesUniqueKeys(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t, Options{})
	key, entity := account("A1", nil)
	require.NoError(cache.Put(model.AccountKind, key, entity))

	_, found := cache.GetByUnique(model.AccountKind, "username", model.Key{"username": "alice"})
	require.False(found)

	require.True(cache.Refresh(model.AccountKind, key, model.Entity{"username": "alice"}))
	got, found := cache.GetByUnique(model.AccountKind, "username", model.Key{"username": "alice"})
	require.True(found)
	require.Equal("alice", got["username"])

	require.True(cache.Refresh(model.AccountKind, key, model.Entity{"username": "bob"}))
	_, found = cache.GetByUnique(model.AccountKind, "username", model.Key{"username": "alice"})
	require.False(found)
	_, found = cache.GetByUnique(model.AccountKind, "username", model.Key{"username": "bob"})
	require.True(found)

	require.False(cache.Refresh(model.AccountKind, model.Key{"address": "A2"}, model.Entity{"username": "x"}))
}

func TestCache_RefreshWithNilRemovesProperty(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t, Options{})
	key, entity := account("A1", "alice")
	require.NoError(cache.Put(model.AccountKind, key, entity))

	require.True(cache.Refresh(model.AccountKind, key, model.Entity{"username": nil}))
	got, found := cache.Get(model.AccountKind, key)
	require.True(found)
	require.NotContains(got, "username")
	_, found = cache.GetByUnique(model.AccountKind, "username", model.Key{"username": "alice"})
	require.False(found)
}

func TestCache_ReplacingAnEntityUpdatesUniqueIndex(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t, Options{})
	key, entity := account("A1", "alice")
	require.NoError(cache.Put(model.AccountKind, key, entity))
	_, replacement := account("A1", "bob")
	require.NoError(cache.Put(model.AccountKind, key, replacement))

	require.Equal(1, cache.Len(model.AccountKind))
	_, found := cache.GetByUnique(model.AccountKind, "username", model.Key{"username": "alice"})
	require.False(found)
	_, found = cache.GetByUnique(model.AccountKind, "username", model.Key{"username": "bob"})
	require.True(found)
}

func TestCache_EvictDoesNotNotifyObserver(t *testing.T) {
	require := require.New(t)
	notified := 0
	cache := newTestCache(t, Options{Observer: func(string, model.Key, model.Entity) { notified++ }})
	key, entity := account("A1", "alice")
	require.NoError(cache.Put(model.AccountKind, key, entity))

	require.True(cache.Evict(model.AccountKind, key))
	require.False(cache.Evict(model.AccountKind, key))
	require.Equal(0, notified)
	_, found := cache.GetByUnique(model.AccountKind, "username", model.Key{"username": "alice"})
	require.False(found)

	require.NoError(cache.Put(model.AccountKind, key, entity))
	cache.Clear()
	require.Equal(0, notified)
	require.Equal(0, cache.Len(model.AccountKind))
}

func TestCache_CapacityEvictionNotifiesObserver(t *testing.T) {
	require := require.New(t)
	var evicted []string
	cache := newTestCache(t, Options{
		DefaultCapacity: 1,
		Observer: func(kind string, key model.Key, entity model.Entity) {
			require.Equal(model.AccountKind, kind)
			evicted = append(evicted, key["address"].(string))
		},
	})
	require.Equal(MinCapacity, cache.Capacity(model.AccountKind))

	for i := 0; i <= MinCapacity; i++ {
		key, entity := account(fmt.Sprintf("A%d", i), fmt.Sprintf("user%d", i))
		require.NoError(cache.Put(model.AccountKind, key, entity))
	}
	require.Equal([]string{"A0"}, evicted)
	require.Equal(MinCapacity, cache.Len(model.AccountKind))
	_, found := cache.GetByUnique(model.AccountKind, "username", model.Key{"username": "user0"})
	require.False(found)
}

func TestCache_GetRefreshesRecency(t *testing.T) {
	require := require.New(t)
	var evicted []string
	cache := newTestCache(t, Options{
		Observer: func(_ string, key model.Key, _ model.Entity) {
			evicted = append(evicted, fmt.Sprint(key["round"]))
		},
	})
	for i := 0; i < MinCapacity; i++ {
		key := model.Key{"round": int64(i)}
		require.NoError(cache.Put(model.RoundKind, key, model.Entity{"round": int64(i)}))
	}
	_, found := cache.Get(model.RoundKind, model.Key{"round": int64(0)})
	require.True(found)
	require.NoError(cache.Put(model.RoundKind, model.Key{"round": int64(100)}, model.Entity{"round": int64(100)}))
	require.Equal([]string{"1"}, evicted)

	entries := cache.Entries(model.RoundKind)
	require.Len(entries, MinCapacity)
	require.Equal(int64(2), entries[0].Key["round"])
	require.Equal(int64(100), entries[len(entries)-1].Key["round"])
}

func TestCache_CapacityOf(t *testing.T) {
	require := require.New(t)
	require.Equal(DefaultCapacity, CapacityOf(model.AccountSchema, DefaultCapacity))
	require.Equal(10_000, CapacityOf(model.TransactionSchema, DefaultCapacity))
	require.Equal(MinCapacity, CapacityOf(model.AccountSchema, 5))
	require.Equal(math.MaxInt, CapacityOf(model.VariableSchema, DefaultCapacity))
}

func TestCache_UnknownKindsAreEmpty(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t, Options{})
	require.Nil(cache.Entries("Unknown"))
	require.Equal(0, cache.Len("Unknown"))
	require.Equal(0, cache.Capacity("Unknown"))
	require.False(cache.Evict("Unknown", model.Key{}))
	_, found := cache.GetByUnique("Unknown", "u", model.Key{})
	require.False(found)
}
