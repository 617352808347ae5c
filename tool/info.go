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
	"fmt"

	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/urfave/cli/v2"
)

var Info = cli.Command{
	Action:    info,
	Name:      "info",
	Usage:     "prints the last height, the stored history range and entity counts",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		&configFlag,
		&driverFlag,
	},
}

func info(context *cli.Context) error {
	return withGateway(context, func(store gateway.Gateway) error {
		ctx := context.Context
		out := context.App.Writer

		last, err := store.LastHeight(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Last height: %d\n", last)

		entries, err := store.History(ctx, 0, last)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintf(out, "History: empty\n")
		} else {
			fmt.Fprintf(out, "History: %d heights in [%d, %d]\n", len(entries), entries[0].Height, entries[len(entries)-1].Height)
		}

		fmt.Fprintf(out, "Entities:\n")
		for _, schema := range model.DefaultRegistry.Schemas() {
			count, err := store.Count(ctx, schema.Name, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\t%-12s %d\n", schema.Name, count)
		}
		return nil
	})
}
