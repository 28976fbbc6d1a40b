// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package fieldsqlite is the on-device half of field capture sync: a durable
// SQLite-backed queue of unconfirmed records, the coordinator that reconciles
// them against the server, a connectivity monitor that triggers passes, and a
// transport-level retry outbox for submissions made while offline.
package fieldsqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// OpenDB opens (or creates) the on-device database at path
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// single writer keeps slot snapshots strictly ordered
	db.SetMaxOpenConns(1)
	if err := initializeDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initializeDatabase creates the queue slot and retry outbox tables
func initializeDatabase(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous=FULL`); err != nil {
		return fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	tables := []string{
		// Durable key-value slots, one whole JSON queue per slot
		`CREATE TABLE IF NOT EXISTS _fieldsync_slots (
			slot       TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Outbox of sync submissions that failed at the transport layer
		`CREATE TABLE IF NOT EXISTS _fieldsync_retry (
			seq       INTEGER PRIMARY KEY AUTOINCREMENT,
			method    TEXT NOT NULL,
			url       TEXT NOT NULL,
			headers   TEXT NOT NULL,   -- JSON object of header name -> values
			body      BLOB,
			queued_at INTEGER NOT NULL, -- epoch millis
			attempts  INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range tables {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}
