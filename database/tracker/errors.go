// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package tracker

import (
	"fmt"

	"github.com/0xsoniclabs/smartdb/model"
)

// AlreadyTrackingError is returned when an entity is created or loaded while
// an entity with the same primary key is tracked.
type AlreadyTrackingError struct {
	Kind string
	Key  model.Key
}

func (e *AlreadyTrackingError) Error() string {
	return fmt.Sprintf("entity (model=%s, key=%v) is tracking already", e.Kind, e.Key)
}

// NotTrackingError is returned when an entity to be modified or deleted is not
// tracked.
type NotTrackingError struct {
	Kind string
	Key  model.Key
}

func (e *NotTrackingError) Error() string {
	return fmt.Sprintf("entity (model=%s, key=%v) is not tracking", e.Kind, e.Key)
}

// PrimaryKeyChangeError is returned when a modification would change a
// property of the primary key of a tracked entity.
type PrimaryKeyChangeError struct {
	Kind     string
	Key      model.Key
	Property string
}

func (e *PrimaryKeyChangeError) Error() string {
	return fmt.Sprintf("entity (model=%s, key=%v) can not change primary key property %s", e.Kind, e.Key, e.Property)
}
