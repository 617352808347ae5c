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
	"encoding/json"
	"fmt"

	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/urfave/cli/v2"
)

var (
	fromFlag = cli.Int64Flag{
		Name:  "from",
		Usage: "first height to print",
		Value: 0,
	}
	toFlag = cli.Int64Flag{
		Name:  "to",
		Usage: "last height to print, -1 for the last persisted height",
		Value: -1,
	}
)

var History = cli.Command{
	Action:    history,
	Name:      "history",
	Usage:     "prints the stored change records of a range of heights as JSON",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		&configFlag,
		&driverFlag,
		&fromFlag,
		&toFlag,
	},
}

type historyEntry struct {
	Height  int64    `json:"height"`
	Digest  string   `json:"digest"`
	Changes []record `json:"changes"`
}

type record struct {
	Type       string           `json:"type"`
	Model      string           `json:"model"`
	PrimaryKey model.Key        `json:"primaryKey"`
	Version    int64            `json:"version"`
	Properties []propertyChange `json:"properties"`
}

type propertyChange struct {
	Name     string `json:"name"`
	Original any    `json:"original,omitempty"`
	Current  any    `json:"current,omitempty"`
}

func history(context *cli.Context) error {
	return withGateway(context, func(store gateway.Gateway) error {
		ctx := context.Context
		from, to := context.Int64(fromFlag.Name), context.Int64(toFlag.Name)
		if to < 0 {
			last, err := store.LastHeight(ctx)
			if err != nil {
				return err
			}
			to = last
		}
		if from < 0 || to < from {
			return fmt.Errorf("invalid height range [%d, %d]", from, to)
		}
		entries, err := store.History(ctx, from, to)
		if err != nil {
			return err
		}
		res := make([]historyEntry, 0, len(entries))
		for _, entry := range entries {
			res = append(res, toHistoryEntry(entry))
		}
		encoder := json.NewEncoder(context.App.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(res)
	})
}

func toHistoryEntry(entry gateway.HistoryEntry) historyEntry {
	res := historyEntry{
		Height:  entry.Height,
		Digest:  entry.Digest.String(),
		Changes: make([]record, 0, len(entry.Changes)),
	}
	for _, cur := range entry.Changes {
		properties := make([]propertyChange, 0, len(cur.PropertyChanges))
		for _, property := range cur.PropertyChanges {
			properties = append(properties, propertyChange(property))
		}
		res.Changes = append(res.Changes, record{
			Type:       cur.Type.String(),
			Model:      cur.Model,
			PrimaryKey: cur.PrimaryKey,
			Version:    cur.DBVersion,
			Properties: properties,
		})
	}
	return res
}
