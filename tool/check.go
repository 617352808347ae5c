// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/0xsoniclabs/smartdb/change"
	"github.com/0xsoniclabs/smartdb/common/amount"
	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/database/ldb"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/urfave/cli/v2"
)

var Check = cli.Command{
	Action:    check,
	Name:      "check",
	Usage:     "verifies the stored history digests and replays the history against the stored entities",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		&configFlag,
		&driverFlag,
	},
}

var amountComparer = cmp.Comparer(func(a, b amount.Amount) bool {
	return a.Equal(b)
})

func check(context *cli.Context) error {
	return withGateway(context, func(store gateway.Gateway) error {
		out := context.App.Writer
		fmt.Fprintf(out, "Checking %s ...\n", context.Args().First())
		if err := verify(context.Context, store, model.DefaultRegistry); err != nil {
			return err
		}
		fmt.Fprintf(out, "All checks passed!\n")
		return nil
	})
}

// verify checks that the history of every persisted height is present and
// matches its digest, and that replaying the complete history on an empty
// store reproduces the stored entities and blocks.
func verify(ctx context.Context, store gateway.Gateway, registry *model.Registry) error {
	last, err := store.LastHeight(ctx)
	if err != nil {
		return err
	}
	entries, err := store.History(ctx, 0, last)
	if err != nil {
		return err
	}
	var errs []error
	next := int64(0)
	for _, entry := range entries {
		if entry.Height != next {
			errs = append(errs, fmt.Errorf("history of heights [%d, %d] is missing", next, entry.Height-1))
		}
		next = entry.Height + 1
		digest, err := change.Digest(entry.Changes)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to encode changes of height %d: %w", entry.Height, err))
			continue
		}
		if digest != entry.Digest {
			errs = append(errs, fmt.Errorf("invalid digest of height %d, stored %v, computed %v", entry.Height, entry.Digest, digest))
		}
	}
	if next <= last {
		errs = append(errs, fmt.Errorf("history of heights [%d, %d] is missing", next, last))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return replay(ctx, store, registry, entries)
}

func replay(ctx context.Context, store gateway.Gateway, registry *model.Registry, entries []gateway.HistoryEntry) (err error) {
	replica, err := ldb.NewMemory(registry)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, replica.Close())
	}()

	for _, entry := range entries {
		block, found, err := store.FindOne(ctx, model.BlockKind, model.Key{"height": entry.Height})
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("block %d is missing", entry.Height)
		}
		if err := replica.Persist(ctx, entry.Height, block, entry.Changes); err != nil {
			return fmt.Errorf("failed to replay height %d: %w", entry.Height, err)
		}
	}

	var errs []error
	for _, schema := range registry.Schemas() {
		want, err := sortedEntities(ctx, replica, schema)
		if err != nil {
			return err
		}
		got, err := sortedEntities(ctx, store, schema)
		if err != nil {
			return err
		}
		if diff := cmp.Diff(want, got, amountComparer, cmpopts.EquateEmpty()); diff != "" {
			errs = append(errs, fmt.Errorf("stored %s entities differ from the replayed history (-replayed +stored):\n%s", schema.Name, diff))
		}
	}
	return errors.Join(errs...)
}

// sortedEntities lists all entities of a kind ordered by their primary key.
func sortedEntities(ctx context.Context, store gateway.Gateway, schema *model.Schema) ([]model.Entity, error) {
	entities, err := store.FindAll(ctx, schema.Name, gateway.Query{})
	if err != nil {
		return nil, err
	}
	type keyed struct {
		key    string
		entity model.Entity
	}
	list := make([]keyed, 0, len(entities))
	for _, entity := range entities {
		key, err := schema.PrimaryKeyOf(entity)
		if err != nil {
			return nil, err
		}
		list = append(list, keyed{key: key.String(), entity: entity})
	}
	slices.SortFunc(list, func(a, b keyed) int {
		return strings.Compare(a.key, b.key)
	})
	res := make([]model.Entity, 0, len(list))
	for _, cur := range list {
		res = append(res, cur.entity)
	}
	return res, nil
}
