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
	"strings"

	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/0xsoniclabs/smartdb/model"
)

// NativeCurrency is the currency of the chain itself.
const NativeCurrency = "GNY"

// Currency flags stored with balances.
const (
	NativeCurrencyFlag  = 1
	IssuedAssetFlag     = 2 // < assets named <issuer>.<asset>
	GatewayCurrencyFlag = 3
)

// CurrencyFlag classifies a currency.
func CurrencyFlag(currency string) int64 {
	switch {
	case currency == NativeCurrency:
		return NativeCurrencyFlag
	case strings.Contains(currency, "."):
		return IssuedAssetFlag
	}
	return GatewayCurrencyFlag
}

// BalanceManager maintains the Balance entities of accounts.
type BalanceManager struct {
	db *SmartDB
}

func (db *SmartDB) Balances() *BalanceManager {
	return &BalanceManager{db: db}
}

func balanceKey(address, currency string) map[string]any {
	return map[string]any{"address": address, "currency": currency}
}

// Get returns the balance of an account in the given currency, zero if there
// is none.
func (m *BalanceManager) Get(ctx context.Context, address, currency string) (amount.Amount, error) {
	entity, found, err := m.db.Load(ctx, model.BalanceKind, balanceKey(address, currency))
	if err != nil || !found {
		return amount.New(), err
	}
	value, _ := entity["balance"].(amount.Amount)
	return value, nil
}

// Increase adds the given amount to a balance, creating the balance if needed.
func (m *BalanceManager) Increase(ctx context.Context, address, currency string, value amount.Amount) error {
	if value.IsZero() {
		return nil
	}
	key := balanceKey(address, currency)
	_, found, err := m.db.Load(ctx, model.BalanceKind, key)
	if err != nil {
		return err
	}
	if found {
		return m.db.Increase(model.BalanceKind, map[string]any{"balance": value}, key)
	}
	_, err = m.db.Create(model.BalanceKind, map[string]any{
		"address":  address,
		"currency": currency,
		"balance":  value,
		"flag":     CurrencyFlag(currency),
	})
	return err
}

// Decrease subtracts the given amount from a balance. Balances never drop
// below zero; ErrInsufficientAmount is returned instead.
func (m *BalanceManager) Decrease(ctx context.Context, address, currency string, value amount.Amount) error {
	if value.IsZero() {
		return nil
	}
	key := balanceKey(address, currency)
	_, found, err := m.db.Load(ctx, model.BalanceKind, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s has no %s", ErrInsufficientAmount, address, currency)
	}
	return m.db.Increase(model.BalanceKind, map[string]any{"balance": "-" + value.String()}, key)
}

// Transfer moves the given amount between two accounts.
func (m *BalanceManager) Transfer(ctx context.Context, currency string, value amount.Amount, from, to string) error {
	if err := m.Decrease(ctx, from, currency, value); err != nil {
		return err
	}
	return m.Increase(ctx, to, currency, value)
}
