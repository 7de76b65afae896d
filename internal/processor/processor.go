// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package processor implements the state machine that turns one
// decoded MLLP frame into a store mutation, an optional prediction
// and page, and a signal back to the receiver authorizing the ACK.
package processor

import (
	"context"
	"time"

	"github.com/aki-sentinel/sentinel/internal/alertbus"
	"github.com/aki-sentinel/sentinel/internal/hl7"
	"github.com/aki-sentinel/sentinel/internal/metrics"
	"github.com/aki-sentinel/sentinel/internal/pager"
	"github.com/aki-sentinel/sentinel/internal/pending"
	"github.com/aki-sentinel/sentinel/internal/predictor"
	"github.com/aki-sentinel/sentinel/internal/store"
	"github.com/aki-sentinel/sentinel/pkg/log"
)

// Processor owns every component the per-message state machine
// touches. It is constructed once by the supervisor and shared by the
// receiver's ack-gate handshake; nothing else mutates its fields.
type Processor struct {
	Store     *store.Store
	Pending   *pending.Set
	Predictor *predictor.Predictor
	Pager     *pager.Client
	Metrics   *metrics.Registry
	AlertBus  *alertbus.Bus
}

// Process runs one decoded frame through the full state machine. Its
// only error return is a feature-store commit failure: the caller
// must not ACK and must instead tear down the connection so the
// upstream retransmits. Every other outcome (a validation failure, an
// unknown message type, a failed page) returns nil so the caller
// always ACKs, consistent with "acknowledge only after processing"
// meaning "after the attempt", not "after success".
func (p *Processor) Process(ctx context.Context, segments []string) error {
	msg, err := hl7.Extract(segments)
	if err != nil {
		log.Errorf("processor: %s", err)
		p.Metrics.IncMessagesProcessed()
		return nil
	}

	switch msg.Type {
	case hl7.Admission:
		if err := p.handleAdmission(ctx, msg); err != nil {
			return err
		}
	case hl7.LabResult:
		if msg.IsCreatinine {
			if err := p.handleCreatinine(ctx, msg); err != nil {
				return err
			}
		}
	default:
		// Discharge and any other trigger event: no state change.
	}

	p.Metrics.IncMessagesProcessed()
	return nil
}

func (p *Processor) handleAdmission(ctx context.Context, msg hl7.Message) error {
	age, err := hl7.Age(msg.DOB, time.Now())
	if err != nil {
		// Extract already validated the DOB format; this cannot
		// practically happen, but treat it the same as any other
		// validation failure rather than aborting the ACK.
		log.Errorf("processor: %s", err)
		return nil
	}
	sex := hl7.SexCode(msg.Sex)

	if err := p.Store.UpsertDemographics(msg.MRN, age, sex); err != nil {
		return err
	}

	if p.Pending.Contains(msg.MRN) {
		defer p.Pending.Remove(msg.MRN)
		return p.predict(ctx, msg.MRN)
	}

	return nil
}

func (p *Processor) handleCreatinine(ctx context.Context, msg hl7.Message) error {
	if err := p.Store.IngestCreatinine(msg.MRN, msg.CreatinineValue); err != nil {
		return err
	}
	p.Metrics.ObserveCreatinine(msg.CreatinineValue)

	rec, ok := p.Store.Get(msg.MRN)
	if !ok || !rec.Age.Valid || !rec.Sex.Valid {
		p.Pending.Insert(msg.MRN)
		return nil
	}

	return p.predict(ctx, msg.MRN)
}

func (p *Processor) predict(ctx context.Context, mrn string) error {
	features, complete := p.Store.SnapshotFeatures(mrn)
	if !p.Predictor.PredictOrZero(features, complete) {
		return nil
	}

	p.Metrics.ObservePositivePrediction()

	if err := p.Pager.Page(ctx, mrn); err != nil {
		log.Warnf("processor: page failed for MRN %s: %s", mrn, err)
		p.Metrics.IncUnsuccessfulPagerRequest()
	}

	p.AlertBus.Publish(mrn, time.Now())

	return nil
}
