// Package store is the durable single-file embedded database for holders,
// rounds, scan cursors, execution locks, and bot state. It is backed by
// SQLite in WAL mode (mattn/go-sqlite3) so the whole bot ships as one data
// file, with schema managed by golang-migrate against an embedded iofs
// source.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the single durable handle every other component depends on.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the embedded SQLite database at path and
// applies pending migrations. A single writer connection is used because
// SQLite allows only one writer at a time; WAL mode still lets concurrent
// readers (e.g. the status server) proceed without blocking.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrCorrupt, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: pinging database: %v", ErrCorrupt, err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("%w: migrating database: %v", ErrCorrupt, err)
	}

	log.WithField("path", path).Info("store opened")
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for components (e.g. tests) that need direct
// access; production code should prefer the typed operations below.
func (s *Store) DB() *sql.DB {
	return s.db
}
