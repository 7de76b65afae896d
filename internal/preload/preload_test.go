// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package preload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aki-sentinel/sentinel/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "preload.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadLocalCSVFanOut(t *testing.T) {
	path := writeCSV(t, "mrn,age,sex,test_1,test_2,test_3,test_4,test_5\n"+
		"640400,33,0,250.0,,,,\n")

	s := openTestStore(t)
	require.NoError(t, Load(context.Background(), path, s))

	rec, ok := s.Get("640400")
	require.True(t, ok)
	assert.Equal(t, 250.0, rec.Test1.Float64)
	assert.Equal(t, 250.0, rec.Test5.Float64)
	assert.EqualValues(t, 33, rec.Age.Int64)
	assert.EqualValues(t, 0, rec.Sex.Int64)
}

func TestLoadLocalCSVShiftsInOrder(t *testing.T) {
	path := writeCSV(t, "mrn,age,sex,test_1,test_2,test_3,test_4,test_5\n"+
		"640400,33,0,107.66,116.58,85.98,100.95,104.96\n")

	s := openTestStore(t)
	require.NoError(t, Load(context.Background(), path, s))

	rec, ok := s.Get("640400")
	require.True(t, ok)
	assert.Equal(t, 107.66, rec.Test1.Float64)
	assert.Equal(t, 116.58, rec.Test2.Float64)
	assert.Equal(t, 85.98, rec.Test3.Float64)
	assert.Equal(t, 100.95, rec.Test4.Float64)
	assert.Equal(t, 104.96, rec.Test5.Float64)
}

func TestLoadEmptyPathnameIsNoOp(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, Load(context.Background(), "", s))
	_, ok := s.Get("anything")
	assert.False(t, ok)
}

func TestLoadMalformedHeaderIsError(t *testing.T) {
	path := writeCSV(t, "mrn,age,sex\n1,2,3\n")
	s := openTestStore(t)
	err := Load(context.Background(), path, s)
	assert.Error(t, err)
}

func TestLoadMissingFileIsError(t *testing.T) {
	s := openTestStore(t)
	err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), s)
	assert.Error(t, err)
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := parseS3URI("s3://my-bucket/path/to/file.csv")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/file.csv", key)

	_, _, err = parseS3URI("s3://bucket-only")
	assert.Error(t, err)
}
