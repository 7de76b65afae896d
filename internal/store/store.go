// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store implements the durable per-patient feature store: a
// single sqlite3 file with one row per MRN, fronted by an in-process
// read-through/write-through cache so a hot MRN doesn't round-trip
// to disk on every OBX.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/aki-sentinel/sentinel/pkg/log"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

var registerOnce sync.Once

func registerDriver() {
	sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &queryHooks{}))
}

// Record is a single patient's feature row. Nullable columns use the
// database/sql Null* types directly: a nil *int/*float64 API would
// hide the same "not yet observed" distinction one layer up for no
// benefit.
type Record struct {
	MRN   string          `db:"mrn"`
	Age   sql.NullInt64   `db:"age"`
	Sex   sql.NullInt64   `db:"sex"`
	Test1 sql.NullFloat64 `db:"test_1"`
	Test2 sql.NullFloat64 `db:"test_2"`
	Test3 sql.NullFloat64 `db:"test_3"`
	Test4 sql.NullFloat64 `db:"test_4"`
	Test5 sql.NullFloat64 `db:"test_5"`
}

// Store owns the one sqlite3 connection backing patient_history.
// sqlite3 does not multithread usefully, so the connection pool is
// capped at one; mu additionally makes the IngestCreatinine
// read-modify-write atomic relative to any concurrent Get/Snapshot.
type Store struct {
	db    *sqlx.DB
	mu    sync.Mutex
	cache map[string]*Record
}

// Exists reports whether a feature-store file is already present at
// path, used by the supervisor to decide whether to run the CSV
// preload.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Open connects to (and, if necessary, creates and migrates) the
// sqlite3 file at path.
func Open(path string) (*Store, error) {
	registerOnce.Do(registerDriver)

	db, err := sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}

	if err := ensureSchema(db.DB); err != nil {
		return nil, err
	}

	return &Store{db: db, cache: make(map[string]*Record)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryRecord(mrn string) (*Record, error) {
	var rec Record
	err := s.db.Get(&rec, `SELECT mrn, age, sex, test_1, test_2, test_3, test_4, test_5
		FROM patient_history WHERE mrn = ?`, mrn)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", mrn, err)
	}
	return &rec, nil
}

// Get returns the cached or persisted record for mrn. The bool is
// false when the MRN has never been referenced (I2).
func (s *Store) Get(mrn string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.cache[mrn]; ok {
		return rec, true
	}

	rec, err := s.queryRecord(mrn)
	if err != nil {
		log.Errorf("store: Get(%s): %s", mrn, err)
		return nil, false
	}
	if rec == nil {
		return nil, false
	}

	s.cache[mrn] = rec
	return rec, true
}

// UpsertDemographics creates the record if absent and sets age/sex,
// never touching the test_* columns (I3 demographics independence).
func (s *Store) UpsertDemographics(mrn string, age, sex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := sq.Insert("patient_history").
		Columns("mrn", "age", "sex").
		Values(mrn, age, sex).
		Suffix("ON CONFLICT(mrn) DO UPDATE SET age=excluded.age, sex=excluded.sex")

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("store: build upsert demographics: %w", err)
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("store: upsert demographics %s: %w", mrn, err)
	}

	rec, err := s.queryRecord(mrn)
	if err != nil {
		return err
	}
	s.cache[mrn] = rec
	return nil
}

// IngestCreatinine creates the record if absent. The first
// creatinine for an MRN fans out to fill all five test_k slots (I3);
// every subsequent one shifts test_1..test_4 one slot older and
// takes the test_1 slot itself (I4). The read-then-write is wrapped
// in a transaction so a concurrent Get never observes a half-shifted
// row.
func (s *Store) IngestCreatinine(mrn string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("store: begin ingest %s: %w", mrn, err)
	}
	defer tx.Rollback()

	var test1 sql.NullFloat64
	err = tx.Get(&test1, `SELECT test_1 FROM patient_history WHERE mrn = ?`, mrn)
	firstObservation := err == sql.ErrNoRows || !test1.Valid
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("store: read test_1 for %s: %w", mrn, err)
	}

	if firstObservation {
		q := sq.Insert("patient_history").
			Columns("mrn", "test_1", "test_2", "test_3", "test_4", "test_5").
			Values(mrn, value, value, value, value, value).
			Suffix(`ON CONFLICT(mrn) DO UPDATE SET
				test_1=excluded.test_1, test_2=excluded.test_2, test_3=excluded.test_3,
				test_4=excluded.test_4, test_5=excluded.test_5`)

		query, args, buildErr := q.ToSql()
		if buildErr != nil {
			return fmt.Errorf("store: build fan-out insert: %w", buildErr)
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("store: fan-out insert %s: %w", mrn, err)
		}
	} else {
		const shift = `UPDATE patient_history
			SET test_5 = test_4, test_4 = test_3, test_3 = test_2, test_2 = test_1, test_1 = ?
			WHERE mrn = ?`
		if _, err := tx.Exec(shift, value, mrn); err != nil {
			return fmt.Errorf("store: shift %s: %w", mrn, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit ingest %s: %w", mrn, err)
	}

	rec, err := s.queryRecord(mrn)
	if err != nil {
		return err
	}
	s.cache[mrn] = rec
	return nil
}

// Features is the seven-element vector [age, sex, test_1..test_5]
// the predictor consumes.
type Features [7]float64

// SnapshotFeatures returns the current feature vector for mrn and
// whether every component is populated. An incomplete snapshot means
// the predictor must not be invoked.
func (s *Store) SnapshotFeatures(mrn string) (Features, bool) {
	rec, ok := s.Get(mrn)
	if !ok {
		return Features{}, false
	}

	if !rec.Age.Valid || !rec.Sex.Valid || !rec.Test1.Valid || !rec.Test2.Valid ||
		!rec.Test3.Valid || !rec.Test4.Valid || !rec.Test5.Valid {
		return Features{}, false
	}

	return Features{
		float64(rec.Age.Int64),
		float64(rec.Sex.Int64),
		rec.Test1.Float64,
		rec.Test2.Float64,
		rec.Test3.Float64,
		rec.Test4.Float64,
		rec.Test5.Float64,
	}, true
}
