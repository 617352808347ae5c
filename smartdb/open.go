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
	"errors"
	"fmt"

	"github.com/0xsoniclabs/smartdb/common/logging"
	"github.com/0xsoniclabs/smartdb/config"
	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/database/ldb"
	"github.com/0xsoniclabs/smartdb/database/sqldb"
	"github.com/0xsoniclabs/smartdb/metrics"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// OpenGateway opens the durable storage selected by the given configuration.
func OpenGateway(ctx context.Context, storage config.Storage, registry *model.Registry, log zerolog.Logger) (gateway.Gateway, error) {
	switch storage.Driver {
	case config.DriverSQLite:
		return sqldb.OpenSQLite(ctx, storage.Path, registry, log)
	case config.DriverPostgres:
		pg := storage.Postgres
		return sqldb.OpenPostgres(ctx, sqldb.PostgresConfig{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			DBName:   pg.DBName,
			SSLMode:  pg.SSLMode,
			MaxConns: int32(pg.MaxConns),
		}, registry, log)
	case config.DriverLevelDB:
		return ldb.Open(storage.Path, registry)
	case config.DriverMemory:
		return ldb.NewMemory(registry)
	}
	return nil, fmt.Errorf("unsupported storage driver %q", storage.Driver)
}

// Open creates and initializes a store of the built-in entity kinds as
// described by the given configuration. If metrics are enabled, they are
// registered with the given registerer or, if it is nil, with the default
// prometheus registerer.
func Open(ctx context.Context, cfg config.Config, registerer prometheus.Registerer) (*SmartDB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.LoggingConfig())
	if err != nil {
		return nil, err
	}
	var collector metrics.Collector = metrics.NewNoopCollector()
	if cfg.Metrics.Enabled {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		if collector, err = metrics.NewPrometheusCollector(registerer); err != nil {
			return nil, err
		}
	}

	store, err := OpenGateway(ctx, cfg.Storage, model.DefaultRegistry, log)
	if err != nil {
		return nil, err
	}
	db, err := New(store, Options{
		Registry:               model.DefaultRegistry,
		MaxHistoryVersionsHold: cfg.History.MaxVersionsHold,
		CachedBlockCount:       cfg.Cache.BlockCount,
		CacheDefaultSize:       cfg.Cache.EntityCacheSize(),
		Logger:                 log,
		Metrics:                collector,
	})
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	if err := db.Init(ctx); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return db, nil
}
