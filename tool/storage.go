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
	"errors"
	"fmt"
	"os"

	"github.com/0xsoniclabs/smartdb/common/logging"
	"github.com/0xsoniclabs/smartdb/config"
	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/0xsoniclabs/smartdb/smartdb"
	"github.com/urfave/cli/v2"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "configuration file describing the storage",
	}
	driverFlag = cli.StringFlag{
		Name:  "driver",
		Usage: "storage driver, one of sqlite, postgres or leveldb",
	}
)

// withGateway opens the storage named by the command line, runs the given
// function on it and closes it again.
func withGateway(context *cli.Context, run func(gateway.Gateway) error) error {
	cfg, err := config.Load(context.String(configFlag.Name))
	if err != nil {
		return err
	}
	if context.IsSet(driverFlag.Name) {
		cfg.Storage.Driver = context.String(driverFlag.Name)
	}
	if context.Args().Len() > 1 {
		return fmt.Errorf("too many arguments")
	}
	if context.Args().Len() == 1 {
		cfg.Storage.Path = context.Args().Get(0)
	}
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return fmt.Errorf("the %s driver does not keep any data", cfg.Storage.Driver)
	case config.DriverSQLite, config.DriverLevelDB:
		if _, err := os.Stat(cfg.Storage.Path); err != nil {
			return fmt.Errorf("no storage found at %q: %w", cfg.Storage.Path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.LoggingConfig())
	if err != nil {
		return err
	}
	store, err := smartdb.OpenGateway(context.Context, cfg.Storage, model.DefaultRegistry, log)
	if err != nil {
		return err
	}
	return errors.Join(
		run(store),
		store.Close(),
	)
}
