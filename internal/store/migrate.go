// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/aki-sentinel/sentinel/pkg/log"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite3
var migrationFiles embed.FS

// ensureSchema brings db up to the latest migration, creating
// patient_history on a brand new file and doing nothing on an
// already-current one.
func ensureSchema(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("store: sqlite3 migration driver: %w", err)
	}

	d, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("store: migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: apply migrations: %w", err)
	}

	log.Debug("store: schema up to date")
	return nil
}
