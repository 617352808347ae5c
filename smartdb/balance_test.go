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
	"testing"

	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/stretchr/testify/require"
)

func TestCurrencyFlag(t *testing.T) {
	tests := map[string]int64{
		"GNY":     NativeCurrencyFlag,
		"ABC.ABC": IssuedAssetFlag,
		"BTC":     GatewayCurrencyFlag,
	}
	for currency, want := range tests {
		require.Equal(t, want, CurrencyFlag(currency), currency)
	}
}

func TestBalanceManager_GetOfUnknownBalanceIsZero(t *testing.T) {
	db := newTestDB(t)
	value, err := db.Balances().Get(context.Background(), "A1", "ABC.ABC")
	require.NoError(t, err)
	require.True(t, value.IsZero())
}

func TestBalanceManager_IncreaseCreatesBalance(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	balances := db.Balances()

	require.NoError(balances.Increase(ctx, "A1", "ABC.ABC", amount.New(100)))
	require.NoError(balances.Increase(ctx, "A1", "ABC.ABC", amount.New(50)))
	require.NoError(balances.Increase(ctx, "A1", NativeCurrency, amount.New(0)))

	value, err := balances.Get(ctx, "A1", "ABC.ABC")
	require.NoError(err)
	require.Equal(amount.New(150), value)

	entity, found, err := db.Get(model.BalanceKind, map[string]any{"address": "A1", "currency": "ABC.ABC"})
	require.NoError(err)
	require.True(found)
	require.Equal(int64(IssuedAssetFlag), entity["flag"])
	require.Equal(int64(2), entity.Version())

	_, found, err = db.Get(model.BalanceKind, map[string]any{"address": "A1", "currency": NativeCurrency})
	require.NoError(err)
	require.False(found)
}

func TestBalanceManager_Decrease(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	balances := db.Balances()
	require.NoError(balances.Increase(ctx, "A1", "BTC", amount.New(100)))

	require.NoError(balances.Decrease(ctx, "A1", "BTC", amount.New(40)))
	require.ErrorIs(balances.Decrease(ctx, "A1", "BTC", amount.New(61)), ErrInsufficientAmount)
	require.ErrorIs(balances.Decrease(ctx, "A2", "BTC", amount.New(1)), ErrInsufficientAmount)

	value, err := balances.Get(ctx, "A1", "BTC")
	require.NoError(err)
	require.Equal(amount.New(60), value)
}

func TestBalanceManager_Transfer(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	balances := db.Balances()
	require.NoError(balances.Increase(ctx, "A1", NativeCurrency, amount.New(100)))

	require.NoError(balances.Transfer(ctx, NativeCurrency, amount.New(30), "A1", "A2"))
	require.ErrorIs(balances.Transfer(ctx, NativeCurrency, amount.New(71), "A1", "A2"), ErrInsufficientAmount)

	from, err := balances.Get(ctx, "A1", NativeCurrency)
	require.NoError(err)
	to, err := balances.Get(ctx, "A2", NativeCurrency)
	require.NoError(err)
	require.Equal(amount.New(70), from)
	require.Equal(amount.New(30), to)

	entity, _, err := db.Get(model.BalanceKind, map[string]any{"address": "A2", "currency": NativeCurrency})
	require.NoError(err)
	require.Equal(int64(NativeCurrencyFlag), entity["flag"])
}

func TestBalanceManager_ReadsCommittedBalances(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	db := openTestDB(t, store, Options{})
	require.NoError(db.Balances().Increase(ctx, "A1", "ABC.ABC", amount.New(7)))
	commitBlock(t, db, 0)

	db = openTestDB(t, store, Options{})
	balances := db.Balances()
	require.NoError(balances.Decrease(ctx, "A1", "ABC.ABC", amount.New(2)))
	value, err := balances.Get(ctx, "A1", "ABC.ABC")
	require.NoError(err)
	require.Equal(amount.New(5), value)
}

func TestBalanceManager_ChangesAreRolledBackWithContract(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	balances := db.Balances()
	require.NoError(balances.Increase(ctx, "A1", NativeCurrency, amount.New(10)))

	require.NoError(db.BeginContract())
	require.NoError(balances.Transfer(ctx, NativeCurrency, amount.New(10), "A1", "A2"))
	require.NoError(db.RollbackContract())

	value, err := balances.Get(ctx, "A1", NativeCurrency)
	require.NoError(err)
	require.Equal(amount.New(10), value)
	value, err = balances.Get(ctx, "A2", NativeCurrency)
	require.NoError(err)
	require.True(value.IsZero())
}
