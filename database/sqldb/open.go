// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/0xsoniclabs/smartdb/common/logging"
	"github.com/0xsoniclabs/smartdb/database/gateway"
	"github.com/0xsoniclabs/smartdb/model"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/tracelog"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// OpenSQLite opens or creates a SQLite database file. The path ":memory:"
// selects a private in-memory database.
func OpenSQLite(ctx context.Context, path string, registry *model.Registry, log zerolog.Logger) (gateway.Gateway, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=off&_busy_timeout=5000&_journal_mode=WAL", path)
	if path == ":memory:" {
		dsn = "file::memory:"
	}
	db, err := sql.Open(SQLite.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// a single connection serializes writers and keeps in-memory databases alive
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	return newGateway(ctx, db, SQLite, registry, log)
}

// PostgresConfig holds the connection parameters of a PostgreSQL database.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

func (c PostgresConfig) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// DefaultPostgresConfig returns the parameters of a local database.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		DBName:   "smartdb",
		SSLMode:  "disable",
		MaxConns: 5,
	}
}

// OpenPostgres connects to a PostgreSQL database through a pgx pool. Queries
// issued by the pool are traced to the given logger.
func OpenPostgres(ctx context.Context, config PostgresConfig, registry *model.Registry, log zerolog.Logger) (gateway.Gateway, error) {
	poolConfig, err := pgxpool.ParseConfig(config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Minute * 30
	poolConfig.MaxConnIdleTime = time.Minute * 5
	poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   zerologAdapter(logging.Component(log, "pgx")),
		LogLevel: tracelogLevel(log.GetLevel()),
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	res, err := newGateway(ctx, stdlib.OpenDBFromPool(pool), Postgres, registry, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	res.onClose = pool.Close
	return res, nil
}

func zerologAdapter(log zerolog.Logger) tracelog.Logger {
	return tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		var event *zerolog.Event
		switch level {
		case tracelog.LogLevelTrace:
			event = log.Trace()
		case tracelog.LogLevelDebug:
			event = log.Debug()
		case tracelog.LogLevelInfo:
			event = log.Info()
		case tracelog.LogLevelWarn:
			event = log.Warn()
		case tracelog.LogLevelError:
			event = log.Error()
		default:
			return
		}
		event.Fields(data).Msg(msg)
	})
}

func tracelogLevel(level zerolog.Level) tracelog.LogLevel {
	switch level {
	case zerolog.TraceLevel:
		return tracelog.LogLevelTrace
	case zerolog.DebugLevel:
		return tracelog.LogLevelDebug
	case zerolog.InfoLevel:
		return tracelog.LogLevelInfo
	case zerolog.WarnLevel:
		return tracelog.LogLevelWarn
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return tracelog.LogLevelError
	}
	return tracelog.LogLevelNone
}
