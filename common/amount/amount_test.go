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
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestAmount_NewProducesExpectedValues(t *testing.T) {
	require := require.New(t)
	require.True(New().IsZero())
	require.Equal("42", New(42).String())

	largest := uint256.Int{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}
	require.Equal(largest.Dec(), NewFromUint256(&largest).String())
}

func TestAmount_ParsesDecimalStrings(t *testing.T) {
	require := require.New(t)

	a, err := NewFromString("1000000000000000000000")
	require.NoError(err)
	require.Equal("1000000000000000000000", a.String())

	_, err = NewFromString("-1")
	require.Error(err)
	_, err = NewFromString("abc")
	require.Error(err)
}

func TestAmount_AddAndSub(t *testing.T) {
	require := require.New(t)

	sum, err := New(10).Add(New(32))
	require.NoError(err)
	require.True(sum.Equal(New(42)))

	diff, err := sum.Sub(New(2))
	require.NoError(err)
	require.True(diff.Equal(New(40)))

	_, err = New(1).Sub(New(2))
	require.ErrorIs(err, ErrUnderflow)

	largest := uint256.Int{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}
	_, err = NewFromUint256(&largest).Add(New(1))
	require.ErrorIs(err, ErrOverflow)
}

func TestAmount_TextRoundTrip(t *testing.T) {
	require := require.New(t)

	text, err := New(12345).MarshalText()
	require.NoError(err)

	var restored Amount
	require.NoError(restored.UnmarshalText(text))
	require.Equal(0, restored.Cmp(New(12345)))
}
