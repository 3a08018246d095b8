package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Config struct {
	URL             string        `envconfig:"URL" split_words:"true"`
	MaxOpenConns    int           `split_words:"true" default:"10"`
	MaxIdleConns    int           `split_words:"true" default:"5"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"30m"`
	DialTimeout     time.Duration `split_words:"true" default:"5s"`
	MigrateOnStart  bool          `split_words:"true" default:"true"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// Open builds a bun.DB over pgdriver. It does not connect; call PingContext
// to check reachability.
func Open(cfg Config) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.URL)
	if dsn == "" {
		return nil, errors.New("database url is required")
	}

	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.DialTimeout > 0 {
		opts = append(opts, pgdriver.WithDialTimeout(cfg.DialTimeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func MustOpen(cfg Config) *bun.DB {
	db, err := Open(cfg)
	if err != nil {
		panic(err)
	}
	return db
}

// CreateTables creates the tables of models that do not exist yet, in order.
func CreateTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		q := db.NewCreateTable().Model(model).IfNotExists()
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table %T: %w", model, err)
		}
	}
	return nil
}
