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
	"fmt"

	"github.com/0xsoniclabs/smartdb/common"
)

const (
	ErrNotInitialized     = common.ConstError("store is not initialized")
	ErrNoOpenBlock        = common.ConstError("no block is open")
	ErrBlockAlreadyOpen   = common.ConstError("a block is already open")
	ErrInvalidBlock       = common.ConstError("invalid block")
	ErrInvalidHeight      = common.ConstError("invalid block height")
	ErrContractOpen       = common.ConstError("a contract scope is open")
	ErrNoOpenContract     = common.ConstError("no contract scope is open")
	ErrNotMemory          = common.ConstError("entity kind is not held in memory")
	ErrBlockKind          = common.ConstError("blocks are only written by committing them")
	ErrInsufficientAmount = common.ConstError("insufficient amount")
	ErrNotNumeric         = common.ConstError("property is not numeric")
	ErrOverflow           = common.ConstError("numeric overflow")
)

// PersistenceFailure is returned when the gateway failed to write or revert
// blocks. The in-memory state and the durable state may have diverged; block
// processing can not continue.
type PersistenceFailure struct {
	Height int64
	Err    error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("failed to persist block %d: %v", e.Height, e.Err)
}

func (e *PersistenceFailure) Unwrap() error {
	return e.Err
}
