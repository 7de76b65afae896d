// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aki-sentinel/sentinel/internal/predictor"
	"github.com/aki-sentinel/sentinel/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenOrPreloadStoreSkipsPreloadWhenStoreExists(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "existing.db")

	// Create the store once up front so it "exists".
	pre, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, pre.UpsertDemographics("1", 40, 0))
	pre.Close()

	st, err := openOrPreloadStore(Options{DBPath: dbPath, Pathname: filepath.Join(dir, "does-not-matter.csv")})
	require.NoError(t, err)
	defer st.Close()

	rec, ok := st.Get("1")
	require.True(t, ok)
	assert.EqualValues(t, 40, rec.Age.Int64)
}

func TestOpenOrPreloadStorePreloadsWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "fresh.db")

	csvPath := filepath.Join(dir, "preload.csv")
	require.NoError(t, os.WriteFile(csvPath,
		[]byte("mrn,age,sex,test_1,test_2,test_3,test_4,test_5\n640400,33,0,107.66,116.58,85.98,100.95,104.96\n"),
		0o644))

	st, err := openOrPreloadStore(Options{DBPath: dbPath, Pathname: csvPath})
	require.NoError(t, err)
	defer st.Close()

	rec, ok := st.Get("640400")
	require.True(t, ok)
	assert.Equal(t, 107.66, rec.Test1.Float64)
}

func TestOpenOrPreloadStorePropagatesPreloadError(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "fresh.db")

	_, err := openOrPreloadStore(Options{DBPath: dbPath, Pathname: filepath.Join(dir, "missing.csv")})
	assert.Error(t, err)
}

func TestMissingModelArtifactIsFatal(t *testing.T) {
	_, err := predictor.Load(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}
