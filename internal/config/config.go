// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config holds the program-wide configuration, populated from
// defaults, an optional JSON config file, and environment variables,
// in that order of increasing precedence.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"time"

	"github.com/aki-sentinel/sentinel/pkg/log"
)

// Config is the format of the configuration (file). See Keys below
// for the defaults.
type Config struct {
	// host:port of the MLLP/TCP simulation source. Overridable by the
	// MLLP_ADDRESS environment variable.
	MLLPAddress string `json:"mllp-address"`

	// host:port of the paging HTTP sink. Overridable by PAGER_ADDRESS.
	PagerAddress string `json:"pager-address"`

	// host:port of an optional NATS server used for the alert bus.
	// Empty disables the alert bus entirely.
	NATSAddress string `json:"nats-address"`

	// Listen address for the Prometheus scrape endpoint.
	MetricsAddr string `json:"metrics-addr"`

	// Feature-store file path (sqlite3).
	DBPath string `json:"db-path"`

	// Metrics snapshot JSON file path.
	MetricsPath string `json:"metrics-path"`

	// Pretrained classifier artifact path, loaded once at startup.
	ModelPath string `json:"model-path"`

	// Historical preload source: a filesystem path or an s3:// URI,
	// used only when the feature store is absent on startup.
	Pathname string `json:"pathname"`

	// Reconnect attempt ceiling for the MLLP receiver; 0 means
	// unbounded.
	MaxReconnects int `json:"max-reconnects"`

	// Interval between periodic (non-shutdown) metrics snapshots.
	CheckpointEvery string `json:"checkpoint-every"`

	LogLevel string `json:"loglevel"`
	LogDate  bool   `json:"logdate"`
}

var Keys = Config{
	MLLPAddress:     "localhost:8440",
	PagerAddress:    "localhost:8441",
	NATSAddress:     "",
	MetricsAddr:     ":8000",
	DBPath:          "state/my_database.db",
	MetricsPath:     "state/counter_state.json",
	ModelPath:       "state/model.gob",
	Pathname:        "",
	MaxReconnects:   0,
	CheckpointEvery: "30s",
	LogLevel:        "info",
	LogDate:         false,
}

// Init loads path (if present) over the defaults in Keys, then lets
// the MLLP_ADDRESS/PAGER_ADDRESS/NATS_ADDRESS environment variables
// override the resulting values, for every network address this
// service dials.
func Init(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	} else {
		if err := validate(raw); err != nil {
			return err
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&Keys); err != nil {
			return err
		}
	}

	if v := os.Getenv("MLLP_ADDRESS"); v != "" {
		Keys.MLLPAddress = v
	}
	if v := os.Getenv("PAGER_ADDRESS"); v != "" {
		Keys.PagerAddress = v
	}
	if v := os.Getenv("NATS_ADDRESS"); v != "" {
		Keys.NATSAddress = v
	}

	log.SetLogLevel(Keys.LogLevel)
	log.SetLogDateTime(Keys.LogDate)

	return nil
}

// CheckpointInterval parses CheckpointEvery, falling back to 30s on
// a malformed value rather than failing startup over a cosmetic
// config mistake.
func CheckpointInterval() time.Duration {
	d, err := time.ParseDuration(Keys.CheckpointEvery)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
