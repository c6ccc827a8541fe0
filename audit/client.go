// Package audit implements the optional MySQL housekeeping-cycle
// ledger SPEC_FULL.md §9 adds on top of spec.md: one row per
// Housekeeper cycle, off by default, never load-bearing for
// correctness (spec.md's Non-goal "persistence guarantees beyond the
// backing store" still holds — this is a side channel, not a second
// source of truth).
//
// Adapted from the teacher's mysql.MysqlClient (mysql/client.go):
// same database/sql + go-sql-driver/mysql + sqlx wiring, generalized
// from a hardcoded DSN to a caller-supplied one.
package audit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
)

// Store wraps the sqlx connection the Sink writes through.
type Store struct {
	db *sqlx.DB
}

// Open connects to MySQL using dsn (a go-sql-driver/mysql DSN, e.g.
// "user:pass@tcp(host:3306)/dbname?parseTime=true").
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "audit: open")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "audit: ping")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
