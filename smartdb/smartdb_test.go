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
	"testing"

	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/database/ldb"
	"github.com/0xsoniclabs/smartdb/database/tracker"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) gateway.Gateway {
	t.Helper()
	store, err := ldb.NewMemory(model.DefaultRegistry)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func openTestDB(t *testing.T, store gateway.Gateway, options Options) *SmartDB {
	t.Helper()
	db, err := New(store, options)
	require.NoError(t, err)
	require.NoError(t, db.Init(context.Background()))
	return db
}

func newTestDB(t *testing.T) *SmartDB {
	t.Helper()
	return openTestDB(t, newTestStore(t), Options{})
}

func block(height int64) model.Entity {
	return model.Entity{
		"height":      height,
		"id":          fmt.Sprintf("block-%d", height),
		"timestamp":   height * 1024,
		"prevBlockId": fmt.Sprintf("block-%d", height-1),
		"delegate":    "D1",
	}
}

func commitBlock(t *testing.T, db *SmartDB, height int64) {
	t.Helper()
	require.NoError(t, db.BeginBlock(block(height)))
	require.NoError(t, db.CommitBlock(context.Background()))
}

func delegate(address, username string) map[string]any {
	return map[string]any{
		"address":   address,
		"username":  username,
		"publicKey": "pk-" + address,
	}
}

func TestNew_RegistryWithoutBlocksFails(t *testing.T) {
	registry, err := model.NewRegistry(model.AccountSchema)
	require.NoError(t, err)
	_, err = New(newTestStore(t), Options{Registry: registry})
	var unregistered *model.UnregisteredKindError
	require.ErrorAs(t, err, &unregistered)
}

func TestSmartDB_OperationsRequireInit(t *testing.T) {
	db, err := New(newTestStore(t), Options{})
	require.NoError(t, err)
	_, err = db.Create(model.AccountKind, map[string]any{"address": "A1"})
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, db.BeginBlock(block(0)), ErrNotInitialized)
	require.ErrorIs(t, db.BeginContract(), ErrNotInitialized)
}

func TestSmartDB_CreateSetsVersionAndDefaults(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)
	commitBlock(t, db, 0)

	created, err := db.Create(model.AccountKind, map[string]any{"address": "A1", "username": nil})
	require.NoError(err)
	require.Equal(model.Entity{
		"address":             "A1",
		"gny":                 amount.New(0),
		"isDelegate":          int64(0),
		"isLocked":            int64(0),
		"lockHeight":          int64(0),
		"lockAmount":          amount.New(0),
		model.VersionProperty: int64(1),
	}, created)
}

func TestSmartDB_CreateReturnsCopy(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)

	created, err := db.Create(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	created["isLocked"] = int64(1)

	cached, found, err := db.Get(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.True(found)
	require.Equal(int64(0), cached["isLocked"])
}

func TestSmartDB_CreateValidatesInput(t *testing.T) {
	db := newTestDB(t)
	var unregistered *model.UnregisteredKindError
	var incomplete *model.IncompleteKeyError
	var unknown *model.UnknownPropertyError
	var invalid *model.InvalidValueError

	_, err := db.Create("DELG", map[string]any{"address": "A1"})
	require.ErrorAs(t, err, &unregistered)
	_, err = db.Create(model.AccountKind, map[string]any{"username": "a1300"})
	require.ErrorAs(t, err, &incomplete)
	_, err = db.Create(model.BalanceKind, map[string]any{"currency": "ABC.ABC"})
	require.ErrorAs(t, err, &incomplete)
	_, err = db.Create(model.AccountKind, map[string]any{"address": "A1", "color": "red"})
	require.ErrorAs(t, err, &unknown)
	_, err = db.Create(model.AccountKind, map[string]any{"address": "A1", "gny": "-5"})
	require.ErrorAs(t, err, &invalid)
}

func TestSmartDB_CreateTwiceFails(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(t, err)
	_, err = db.Create(model.AccountKind, map[string]any{"address": "A1"})
	var already *tracker.AlreadyTrackingError
	require.ErrorAs(t, err, &already)
}

func TestSmartDB_BlocksCanNotBeWrittenAsEntities(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Create(model.BlockKind, block(0))
	require.ErrorIs(t, err, ErrBlockKind)
	require.ErrorIs(t, db.Del(model.BlockKind, map[string]any{"height": 0}), ErrBlockKind)
}

func TestSmartDB_GetOnlyReadsTheCache(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)

	_, found, err := db.Get(model.RoundKind, map[string]any{"round": 3})
	require.NoError(err)
	require.False(found)

	_, err = db.Create(model.AccountKind, map[string]any{"address": "A1", "username": "a1300"})
	require.NoError(err)
	commitBlock(t, db, 0)
	require.NoError(db.Del(model.AccountKind, map[string]any{"address": "A1"}))

	_, found, err = db.Get(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.False(found)
}

func TestSmartDB_GetByUniqueKey(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)
	created, err := db.Create(model.AccountKind, map[string]any{"address": "A1", "username": "a1300"})
	require.NoError(err)

	got, found, err := db.Get(model.AccountKind, map[string]any{"username": "a1300"})
	require.NoError(err)
	require.True(found)
	require.Equal(created, got)
}

func TestSmartDB_GetWithPartialCompositeKeyFails(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Create(model.BalanceKind, map[string]any{"address": "A1", "currency": "ABC.ABC", "balance": 2000})
	require.NoError(t, err)

	_, _, err = db.Get(model.BalanceKind, map[string]any{"currency": "ABC.ABC"})
	var incomplete *model.IncompleteKeyError
	require.ErrorAs(t, err, &incomplete)
}

func TestSmartDB_CreateOrLoad(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)
	ctx := context.Background()
	commitBlock(t, db, 0)

	round, created, err := db.CreateOrLoad(ctx, model.RoundKind, map[string]any{"round": 1, "fee": 0, "reward": 0})
	require.NoError(err)
	require.True(created)
	require.Equal(model.Entity{"round": int64(1), "fee": amount.New(0), "reward": amount.New(0), model.VersionProperty: int64(1)}, round)

	loaded, created, err := db.CreateOrLoad(ctx, model.RoundKind, map[string]any{"round": 1})
	require.NoError(err)
	require.False(created)
	require.Equal(round, loaded)

	cached, found, err := db.Get(model.RoundKind, map[string]any{"round": 1})
	require.NoError(err)
	require.True(found)
	require.Equal(round, cached)
}

func TestSmartDB_CreateOrLoadReadsStorage(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	db := openTestDB(t, store, Options{})
	_, err := db.Create(model.RoundKind, map[string]any{"round": 1, "fee": 10})
	require.NoError(err)
	commitBlock(t, db, 0)

	db = openTestDB(t, store, Options{})
	round, created, err := db.CreateOrLoad(ctx, model.RoundKind, map[string]any{"round": 1, "fee": 99})
	require.NoError(err)
	require.False(created)
	require.Equal(amount.New(10), round["fee"])
}

func TestSmartDB_GetAll(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)

	_, err := db.GetAll(model.AccountKind)
	require.ErrorIs(err, ErrNotMemory)

	var created []model.Entity
	for i, name := range []string{"liangpeili", "a1300", "xpgeng"} {
		entity, err := db.Create(model.DelegateKind, delegate(fmt.Sprintf("D%d", i), name))
		require.NoError(err)
		created = append(created, entity)
	}
	all, err := db.GetAll(model.DelegateKind)
	require.NoError(err)
	require.Equal([]model.Entity{created[2], created[1], created[0]}, all)

	all[0]["votes"] = amount.New(5)
	again, err := db.GetAll(model.DelegateKind)
	require.NoError(err)
	require.Equal(amount.New(0), again[0]["votes"])
}

func TestSmartDB_InitLoadsMemoryKinds(t *testing.T) {
	require := require.New(t)
	store := newTestStore(t)

	db := openTestDB(t, store, Options{})
	_, err := db.Create(model.DelegateKind, delegate("D1", "liangpeili"))
	require.NoError(err)
	_, err = db.Create(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	commitBlock(t, db, 0)

	db = openTestDB(t, store, Options{})
	require.Equal(int64(0), db.LastBlockHeight())
	all, err := db.GetAll(model.DelegateKind)
	require.NoError(err)
	require.Len(all, 1)
	require.Equal("liangpeili", all[0]["username"])

	_, found, err := db.Get(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.False(found)
}

func TestSmartDB_LoadTracksStoredEntities(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	db := openTestDB(t, store, Options{})
	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1", "username": "a1300"})
	require.NoError(err)
	commitBlock(t, db, 0)

	db = openTestDB(t, store, Options{})
	loaded, found, err := db.Load(ctx, model.AccountKind, map[string]any{"username": "a1300"})
	require.NoError(err)
	require.True(found)
	require.Equal("A1", loaded["address"])

	require.NoError(db.Update(model.AccountKind, map[string]any{"isLocked": 1}, map[string]any{"address": "A1"}))
	cached, found, err := db.Get(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.True(found)
	require.Equal(int64(2), cached.Version())

	_, found, err = db.Load(ctx, model.AccountKind, map[string]any{"address": "unknown"})
	require.NoError(err)
	require.False(found)
}

func TestSmartDB_UpdateWithUnchangedValuesIsNoop(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)
	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1", "isLocked": 1})
	require.NoError(err)
	pending := len(db.PendingChanges())

	require.NoError(db.Update(model.AccountKind, map[string]any{"isLocked": 1}, map[string]any{"address": "A1"}))
	require.Len(db.PendingChanges(), pending)
	account, _, err := db.Get(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.Equal(int64(1), account.Version())
}

func TestSmartDB_UpdateValidatesInput(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(t, err)

	var unknown *model.UnknownPropertyError
	require.ErrorAs(t, db.Update(model.AccountKind, map[string]any{"color": "red"}, map[string]any{"address": "A1"}), &unknown)
	var notTracking *tracker.NotTrackingError
	require.ErrorAs(t, db.Update(model.AccountKind, map[string]any{"isLocked": 1}, map[string]any{"address": "A2"}), &notTracking)
}

func TestSmartDB_UpdateOfPrimaryKeyFails(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)

	err = db.Update(model.AccountKind, map[string]any{"address": "B1"}, map[string]any{"address": "A1"})
	var keyChange *tracker.PrimaryKeyChangeError
	require.ErrorAs(err, &keyChange)

	account, found, err := db.Get(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.True(found)
	require.Equal("A1", account["address"])
	require.Equal(int64(1), account.Version())
	_, found, err = db.Get(model.AccountKind, map[string]any{"address": "B1"})
	require.NoError(err)
	require.False(found)

	commitBlock(t, db, 0)
	count, err := db.Count(ctx, model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.Equal(int64(1), count)
}

func TestSmartDB_IncreaseOfPrimaryKeyFails(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)
	key := map[string]any{"round": 1}
	_, err := db.Create(model.RoundKind, key)
	require.NoError(err)

	var keyChange *tracker.PrimaryKeyChangeError
	require.ErrorAs(db.Increase(model.RoundKind, map[string]any{"round": 1}, key), &keyChange)
	require.Equal("round", keyChange.Property)
	_, found, err := db.Get(model.RoundKind, map[string]any{"round": 2})
	require.NoError(err)
	require.False(found)
}

func TestSmartDB_Increase(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)
	key := map[string]any{"address": "D1"}
	_, err := db.Create(model.DelegateKind, map[string]any{"address": "D1", "producedBlocks": 1})
	require.NoError(err)

	require.NoError(db.Increase(model.DelegateKind, map[string]any{"producedBlocks": 2}, key))
	require.NoError(db.Increase(model.DelegateKind, map[string]any{"missedBlocks": 1, "votes": 2000}, key))

	got, _, err := db.Get(model.DelegateKind, key)
	require.NoError(err)
	require.Equal(int64(3), got["producedBlocks"])
	require.Equal(int64(1), got["missedBlocks"])
	require.Equal(amount.New(2000), got["votes"])
	require.Equal(int64(3), got.Version())
}

func TestSmartDB_IncreaseByCompositeKey(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)
	for _, currency := range []string{"ABC.ABC", "CCC.DDD"} {
		_, err := db.Create(model.BalanceKind, map[string]any{"address": "A1", "currency": currency, "balance": 1})
		require.NoError(err)
	}
	require.NoError(db.Increase(model.BalanceKind, map[string]any{"balance": 1}, map[string]any{"address": "A1", "currency": "ABC.ABC"}))

	first, _, err := db.Get(model.BalanceKind, map[string]any{"address": "A1", "currency": "ABC.ABC"})
	require.NoError(err)
	second, _, err := db.Get(model.BalanceKind, map[string]any{"address": "A1", "currency": "CCC.DDD"})
	require.NoError(err)
	require.Equal(amount.New(2), first["balance"])
	require.Equal(amount.New(1), second["balance"])
}

func TestSmartDB_IncreaseByNegativeValues(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)
	key := map[string]any{"address": "A1"}
	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1", "gny": 4000, "lockHeight": 10})
	require.NoError(err)

	require.NoError(db.Increase(model.AccountKind, map[string]any{"gny": -1000, "lockHeight": -3}, key))
	require.NoError(db.Increase(model.AccountKind, map[string]any{"gny": "-500"}, key))
	got, _, err := db.Get(model.AccountKind, key)
	require.NoError(err)
	require.Equal(amount.New(2500), got["gny"])
	require.Equal(int64(7), got["lockHeight"])

	err = db.Increase(model.AccountKind, map[string]any{"gny": -2501}, key)
	require.ErrorIs(err, ErrInsufficientAmount)
	got, _, err = db.Get(model.AccountKind, key)
	require.NoError(err)
	require.Equal(amount.New(2500), got["gny"])
}

func TestSmartDB_IncreaseDetectsOverflows(t *testing.T) {
	require := require.New(t)
	db := newTestDB(t)
	key := map[string]any{"address": "A1"}
	_, err := db.Create(model.AccountKind, map[string]any{
		"address":    "A1",
		"isLocked":   int64(math.MaxInt64 - 1),
		"lockHeight": int64(math.MinInt64 + 1),
	})
	require.NoError(err)

	require.ErrorIs(db.Increase(model.AccountKind, map[string]any{"isLocked": 2}, key), ErrOverflow)
	require.ErrorIs(db.Increase(model.AccountKind, map[string]any{"lockHeight": -2}, key), ErrOverflow)
	require.NoError(db.Increase(model.AccountKind, map[string]any{"isLocked": 1, "lockHeight": -1}, key))

	got, _, err := db.Get(model.AccountKind, key)
	require.NoError(err)
	require.Equal(int64(math.MaxInt64), got["isLocked"])
	require.Equal(int64(math.MinInt64), got["lockHeight"])
	require.Equal(int64(2), got.Version())
}

func TestSmartDB_IncreaseRejectsInvalidProperties(t *testing.T) {
	db := newTestDB(t)
	key := map[string]any{"address": "A1"}
	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(t, err)

	require.ErrorIs(t, db.Increase(model.AccountKind, map[string]any{"username": 1}, key), ErrNotNumeric)
	var unknown *model.UnknownPropertyError
	require.ErrorAs(t, db.Increase(model.AccountKind, map[string]any{"color": 1}, key), &unknown)
	require.ErrorAs(t, db.Increase(model.AccountKind, map[string]any{model.VersionProperty: 1}, key), &unknown)
	var notTracking *tracker.NotTrackingError
	require.ErrorAs(t, db.Increase(model.AccountKind, map[string]any{"gny": 1}, map[string]any{"address": "A2"}), &notTracking)
}

func TestSmartDB_Del(t *testing.T) {
	tests := map[string]struct {
		kind   string
		values map[string]any
		key    map[string]any
	}{
		"primary key": {
			kind:   model.AccountKind,
			values: map[string]any{"address": "A1"},
			key:    map[string]any{"address": "A1"},
		},
		"unique key": {
			kind:   model.AccountKind,
			values: map[string]any{"address": "A1", "username": "a1300"},
			key:    map[string]any{"username": "a1300"},
		},
		"composite key": {
			kind:   model.BalanceKind,
			values: map[string]any{"address": "A1", "currency": "ABC.ABC", "balance": 3000},
			key:    map[string]any{"currency": "ABC.ABC", "address": "A1"},
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			db := newTestDB(t)
			created, err := db.Create(test.kind, test.values)
			require.NoError(err)

			before, found, err := db.Get(test.kind, test.key)
			require.NoError(err)
			require.True(found)
			require.Equal(created, before)

			require.NoError(db.Del(test.kind, test.key))
			_, found, err = db.Get(test.kind, test.key)
			require.NoError(err)
			require.False(found)

			var notTracking *tracker.NotTrackingError
			require.ErrorAs(db.Del(test.kind, test.key), &notTracking)
		})
	}
}

func TestSmartDB_DeletionIsPersistedWithNextBlock(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	commitBlock(t, db, 0)

	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1", "username": "a1300"})
	require.NoError(err)
	commitBlock(t, db, 1)
	count, err := db.Count(ctx, model.AccountKind, nil)
	require.NoError(err)
	require.Equal(int64(1), count)

	require.NoError(db.Del(model.AccountKind, map[string]any{"address": "A1"}))
	commitBlock(t, db, 2)
	count, err = db.Count(ctx, model.AccountKind, map[string]any{})
	require.NoError(err)
	require.Zero(count)
}

func TestSmartDB_LoadOfEntityDeletedInOpenBlockIsAbsent(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1", "username": "a1300", "gny": 7})
	require.NoError(err)
	commitBlock(t, db, 0)

	require.NoError(db.Del(model.AccountKind, map[string]any{"address": "A1"}))
	_, found, err := db.Load(ctx, model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.False(found)
	_, found, err = db.Load(ctx, model.AccountKind, map[string]any{"username": "a1300"})
	require.NoError(err)
	require.False(found)
	commitBlock(t, db, 1)

	count, err := db.Count(ctx, model.AccountKind, nil)
	require.NoError(err)
	require.Zero(count)
	_, found, err = db.Get(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.False(found)
	_, found, err = db.Load(ctx, model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.False(found)
}

func TestSmartDB_CreateOrLoadRecreatesEntityDeletedInOpenBlock(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1", "gny": 7})
	require.NoError(err)
	commitBlock(t, db, 0)

	require.NoError(db.Del(model.AccountKind, map[string]any{"address": "A1"}))
	account, created, err := db.CreateOrLoad(ctx, model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.True(created)
	require.Equal(amount.New(0), account["gny"])
	require.Equal(int64(1), account.Version())
	commitBlock(t, db, 1)

	require.NoError(db.Increase(model.AccountKind, map[string]any{"gny": 5}, map[string]any{"address": "A1"}))
	commitBlock(t, db, 2)
	stored, found, err := db.FindOne(ctx, model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.True(found)
	require.Equal(amount.New(5), stored["gny"])
	require.Equal(int64(2), stored.Version())
}

func TestSmartDB_LoadAfterRolledBackDeletionReadsStorage(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	db := openTestDB(t, store, Options{})
	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	commitBlock(t, db, 0)

	db = openTestDB(t, store, Options{})
	_, found, err := db.Load(ctx, model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.True(found)
	require.NoError(db.BeginContract())
	require.NoError(db.Del(model.AccountKind, map[string]any{"address": "A1"}))
	require.NoError(db.RollbackContract())

	_, found, err = db.Load(ctx, model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.True(found)
}

func TestSmartDB_FindAllBypassesCache(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	commitBlock(t, db, 0)

	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1", "gny": 100000})
	require.NoError(err)
	res, err := db.FindAll(ctx, model.AccountKind, gateway.Query{Where: model.Key{"address": "A1"}})
	require.NoError(err)
	require.Empty(res)
	_, found, err := db.FindOne(ctx, model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.False(found)
}

func TestSmartDB_FindAllQueries(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	commitBlock(t, db, 0)

	abc, err := db.Create(model.AssetKind, map[string]any{"name": "ABC.ABC", "tid": "t1", "maximum": "400000000", "precision": 8})
	require.NoError(err)
	tec, err := db.Create(model.AssetKind, map[string]any{"name": "TEC.TEC", "tid": "t2", "maximum": "400000000", "precision": 8})
	require.NoError(err)
	_, err = db.Create(model.BalanceKind, map[string]any{"address": "A1", "currency": "ABC.ABC", "balance": 100000, "flag": 2})
	require.NoError(err)
	_, err = db.Create(model.BalanceKind, map[string]any{"address": "A1", "currency": "FEE.FEE", "balance": 400000, "flag": 2})
	require.NoError(err)
	_, err = db.Create(model.BalanceKind, map[string]any{"address": "A2", "currency": "FEE.FEE", "balance": 1, "flag": 2})
	require.NoError(err)
	commitBlock(t, db, 1)

	count, err := db.Count(ctx, model.AssetKind, nil)
	require.NoError(err)
	require.Equal(int64(2), count)

	res, err := db.FindAll(ctx, model.AssetKind, gateway.Query{
		In: &gateway.InCondition{Property: "name", Values: []any{"ABC.ABC"}},
	})
	require.NoError(err)
	require.Equal([]model.Entity{abc}, res)

	res, err = db.FindAll(ctx, model.AssetKind, gateway.Query{Limit: 1})
	require.NoError(err)
	require.Len(res, 1)

	res, err = db.FindAll(ctx, model.AssetKind, gateway.Query{Limit: 1, Offset: 1, Sort: []gateway.Order{{Property: "name"}}})
	require.NoError(err)
	require.Equal([]model.Entity{tec}, res)

	res, err = db.FindAll(ctx, model.BalanceKind, gateway.Query{
		Where: model.Key{"address": "A1"},
		Sort:  []gateway.Order{{Property: "currency"}},
	})
	require.NoError(err)
	require.Equal([]model.Entity{
		{"address": "A1", "currency": "ABC.ABC", "balance": amount.New(100000), "flag": int64(2), model.VersionProperty: int64(1)},
		{"address": "A1", "currency": "FEE.FEE", "balance": amount.New(400000), "flag": int64(2), model.VersionProperty: int64(1)},
	}, res)
}

func TestSmartDB_FindOneReadsCommittedEntities(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	commitBlock(t, db, 0)

	_, err := db.Create(model.AccountKind, map[string]any{"address": "A1", "gny": 0})
	require.NoError(err)
	commitBlock(t, db, 1)

	res, found, err := db.FindOne(ctx, model.AccountKind, map[string]any{"address": "A1"})
	require.NoError(err)
	require.True(found)
	require.Equal(model.Entity{
		"address":             "A1",
		"gny":                 amount.New(0),
		"isDelegate":          int64(0),
		"isLocked":            int64(0),
		"lockHeight":          int64(0),
		"lockAmount":          amount.New(0),
		model.VersionProperty: int64(1),
	}, res)
}
