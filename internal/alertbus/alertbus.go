// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package alertbus publishes a best-effort notification to a NATS
// subject whenever the processor records a positive AKI prediction.
// It is a second, optional channel alongside the mandatory HTTP page:
// a hospital integration engine can subscribe to aki.alerts without
// the pager's synchronous request/response contract.
package alertbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aki-sentinel/sentinel/pkg/log"
	"github.com/nats-io/nats.go"
)

const alertSubject = "aki.alerts"

// Bus wraps a NATS connection. A zero-value Bus (no conn) is a valid
// no-op: Publish silently does nothing when NATS was never
// configured, matching the "nats-address": "" default.
type Bus struct {
	conn *nats.Conn
}

// Connect dials address. An empty address returns a no-op Bus rather
// than an error, since the alert bus is optional infrastructure.
func Connect(address string) (*Bus, error) {
	if address == "" {
		return &Bus{}, nil
	}

	conn, err := nats.Connect(
		address,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("alertbus: disconnected: %s", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("alertbus: reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("alertbus: connect to %s: %w", address, err)
	}

	log.Infof("alertbus: connected to %s", address)
	return &Bus{conn: conn}, nil
}

type alertPayload struct {
	MRN         string `json:"mrn"`
	PredictedAt string `json:"predicted_at"`
}

// Publish sends a positive-prediction alert for mrn. With no
// connection configured it returns silently; a marshal or publish
// error is logged at Warn and swallowed: callers must never let this
// block or fail the ack-gate signal.
func (b *Bus) Publish(mrn string, predictedAt time.Time) {
	if b == nil || b.conn == nil {
		return
	}

	payload, err := json.Marshal(alertPayload{
		MRN:         mrn,
		PredictedAt: predictedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Warnf("alertbus: marshal alert for MRN %s: %s", mrn, err)
		return
	}

	if err := b.conn.Publish(alertSubject, payload); err != nil {
		log.Warnf("alertbus: publish alert for MRN %s: %s", mrn, err)
	}
}

// Close releases the underlying connection, if any.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	b.conn.Close()
}
