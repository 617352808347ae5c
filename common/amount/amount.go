// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package amount

import (
	"fmt"

	"github.com/0xsoniclabs/smartdb/common"
	"github.com/holiman/uint256"
)

const (
	ErrOverflow  = common.ConstError("amount overflow")
	ErrUnderflow = common.ConstError("amount underflow")
)

// Amount is a 256-bit unsigned token quantity. Amounts are immutable values;
// all arithmetic returns a new Amount.
type Amount struct {
	internal uint256.Int
}

// New creates an Amount from an optional uint64; New() is zero.
func New(value ...uint64) Amount {
	if len(value) > 1 {
		panic("too many arguments")
	}
	result := Amount{}
	if len(value) == 1 {
		result.internal.SetUint64(value[0])
	}
	return result
}

// NewFromUint256 creates an Amount from a uint256.Int.
func NewFromUint256(value *uint256.Int) Amount {
	result := Amount{}
	result.internal.Set(value)
	return result
}

// NewFromString parses a base-10 string.
func NewFromString(value string) (Amount, error) {
	parsed, err := uint256.FromDecimal(value)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return NewFromUint256(parsed), nil
}

// Uint256 returns a copy of the underlying integer.
func (a Amount) Uint256() uint256.Int {
	return a.internal
}

// Add returns a+b or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	result := Amount{}
	if _, overflow := result.internal.AddOverflow(&a.internal, &b.internal); overflow {
		return Amount{}, ErrOverflow
	}
	return result, nil
}

// Sub returns a-b or ErrUnderflow if b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	result := Amount{}
	if _, underflow := result.internal.SubOverflow(&a.internal, &b.internal); underflow {
		return Amount{}, ErrUnderflow
	}
	return result, nil
}

func (a Amount) Cmp(b Amount) int {
	return a.internal.Cmp(&b.internal)
}

func (a Amount) Equal(b Amount) bool {
	return a.internal == b.internal
}

func (a Amount) IsZero() bool {
	return a.internal.IsZero()
}

func (a Amount) String() string {
	return a.internal.Dec()
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := NewFromString(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// DeepCopy returns the amount itself; amounts are immutable values.
func (a Amount) DeepCopy() interface{} {
	return a
}
