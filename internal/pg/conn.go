// Package pg - Postgres-хранилище записей dev-бэкенда (stub.Store поверх pgx).
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// AppName попадает в pg_stat_activity.application_name.
const AppName = "backoffice-stub"

// Pool - лимиты пула database/sql.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	PingTimeout time.Duration
}

// DefaultPool хватает dev-бэкенду с одним оператором.
var DefaultPool = Pool{MaxOpen: 10, MaxIdle: 5, MaxLifetime: 30 * time.Minute, PingTimeout: 5 * time.Second}

// Open разбирает URL через pgx, открывает пул и проверяет соединение.
func Open(ctx context.Context, url string, pool Pool) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	if _, ok := connCfg.RuntimeParams["application_name"]; !ok {
		connCfg.RuntimeParams["application_name"] = AppName
	}

	db := stdlib.OpenDB(*connCfg)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)

	if pool.PingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pool.PingTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s@%s: %w", connCfg.User, connCfg.Host, err)
	}
	return db, nil
}
