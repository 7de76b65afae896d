// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package preload loads a historical CSV into the feature store
// before the receiver starts accepting live MLLP traffic. The source
// is either a local path or an s3:// URI; the CSV schema (MRN, age,
// sex, test_1..test_5) and the fan-out ingestion rule are identical
// for both.
package preload

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aki-sentinel/sentinel/internal/store"
	"github.com/aki-sentinel/sentinel/pkg/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// expected CSV header, in order. A differently-ordered or incomplete
// header is a fatal configuration error: the preload source is meant
// to come from the same external export tool every time.
var expectedColumns = []string{"mrn", "age", "sex", "test_1", "test_2", "test_3", "test_4", "test_5"}

// Load reads pathname (a local path or an s3:// URI) and ingests
// every row into st. Rows are applied through the same
// UpsertDemographics/IngestCreatinine calls the live pipeline uses, so
// a preloaded MRN observes the identical first-observation fan-out
// rule as a streamed one, applied uniformly rather than averaging
// missing slots at preload time.
func Load(ctx context.Context, pathname string, st *store.Store) error {
	if pathname == "" {
		return nil
	}

	r, err := open(ctx, pathname)
	if err != nil {
		return fmt.Errorf("preload: open %s: %w", pathname, err)
	}
	defer r.Close()

	return ingest(r, st)
}

func open(ctx context.Context, pathname string) (io.ReadCloser, error) {
	if strings.HasPrefix(pathname, "s3://") {
		return openS3(ctx, pathname)
	}
	return os.Open(pathname)
}

func openS3(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}

	return out.Body, nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed s3 URI %q, want s3://bucket/key", uri)
	}
	return parts[0], parts[1], nil
}

func ingest(r io.Reader, st *store.Store) error {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return err
	}

	rowNum := 1
	for {
		rowNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read row %d: %w", rowNum, err)
		}

		if err := ingestRow(st, record); err != nil {
			return fmt.Errorf("row %d: %w", rowNum, err)
		}
	}

	return nil
}

func validateHeader(header []string) error {
	if len(header) != len(expectedColumns) {
		return fmt.Errorf("expected %d columns %v, got %v", len(expectedColumns), expectedColumns, header)
	}
	for i, col := range expectedColumns {
		if strings.TrimSpace(strings.ToLower(header[i])) != col {
			return fmt.Errorf("expected column %d to be %q, got %q", i, col, header[i])
		}
	}
	return nil
}

func ingestRow(st *store.Store, record []string) error {
	mrn := strings.TrimSpace(record[0])
	if mrn == "" {
		return fmt.Errorf("empty MRN")
	}

	age, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return fmt.Errorf("parse age: %w", err)
	}

	sex, err := strconv.Atoi(strings.TrimSpace(record[2]))
	if err != nil {
		return fmt.Errorf("parse sex: %w", err)
	}

	if err := st.UpsertDemographics(mrn, age, sex); err != nil {
		return fmt.Errorf("upsert demographics: %w", err)
	}

	// IngestCreatinine always treats its argument as the newest
	// reading and shifts the rest older, so columns must be fed
	// oldest-to-newest (test_5 down to test_1) for the last call to
	// land the test_1 value where it belongs.
	for i := 4; i >= 0; i-- {
		field := strings.TrimSpace(record[3+i])
		if field == "" {
			continue
		}

		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return fmt.Errorf("parse test_%d: %w", i+1, err)
		}

		if err := st.IngestCreatinine(mrn, value); err != nil {
			return fmt.Errorf("ingest test_%d: %w", i+1, err)
		}
	}

	log.Debugf("preload: ingested MRN %s", mrn)
	return nil
}
