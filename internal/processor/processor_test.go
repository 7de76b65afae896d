// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package processor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aki-sentinel/sentinel/internal/alertbus"
	"github.com/aki-sentinel/sentinel/internal/metrics"
	"github.com/aki-sentinel/sentinel/internal/pager"
	"github.com/aki-sentinel/sentinel/internal/pending"
	"github.com/aki-sentinel/sentinel/internal/predictor"
	"github.com/aki-sentinel/sentinel/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// thresholdModel treats test_1 > 200 as positive, matching the
// concrete creatinine values used in the scenario table.
func thresholdModel() predictor.Model {
	return predictor.Model{Weights: [7]float64{0, 0, 1, 0, 0, 0, 0}, Bias: -200}
}

type pageRecorder struct {
	mu    sync.Mutex
	pages []string
}

func (r *pageRecorder) record(mrn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, mrn)
}

func (r *pageRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

func newTestProcessor(t *testing.T) (*Processor, *pageRecorder) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	modelPath := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, predictor.Save(modelPath, thresholdModel()))
	pr, err := predictor.Load(modelPath)
	require.NoError(t, err)

	rec := &pageRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.record(string(body))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	bus, err := alertbus.Connect("")
	require.NoError(t, err)

	p := &Processor{
		Store:     s,
		Pending:   pending.New(),
		Predictor: pr,
		Pager:     pager.New(srv.Listener.Addr().String(), 0, 0),
		Metrics:   metrics.New(),
		AlertBus:  bus,
	}
	return p, rec
}

func preloadMRN640400(t *testing.T, p *Processor) {
	t.Helper()
	require.NoError(t, p.Store.UpsertDemographics("640400", 33, 0))
	for _, v := range []float64{104.96, 100.95, 85.98, 116.58, 107.66} {
		require.NoError(t, p.Store.IngestCreatinine("640400", v))
	}
	rec, ok := p.Store.Get("640400")
	require.True(t, ok)
	require.Equal(t, 107.66, rec.Test1.Float64)
}

func segMSH(msgType string) string {
	return "MSH|^~\\&|||||20240129093837||" + msgType + "|||2.5"
}

func TestAdmissionUpdatesDemographics(t *testing.T) {
	p, pages := newTestProcessor(t)

	segments := []string{
		segMSH("ADT^A01"),
		"PID|1||755374||AYAT BURKE||19940216|F",
	}
	require.NoError(t, p.Process(context.Background(), segments))

	rec, ok := p.Store.Get("755374")
	require.True(t, ok)
	assert.EqualValues(t, 1, rec.Sex.Int64)
	assert.Equal(t, 0, pages.count())
}

func TestNegativeCreatininePrediction(t *testing.T) {
	p, pages := newTestProcessor(t)
	preloadMRN640400(t, p)

	segments := []string{
		segMSH("ORU^R01"),
		"PID|1||640400",
		"OBX|1|NM|CREATININE||127.57|umol/L",
	}
	require.NoError(t, p.Process(context.Background(), segments))

	rec, ok := p.Store.Get("640400")
	require.True(t, ok)
	assert.Equal(t, 127.57, rec.Test1.Float64)
	assert.Equal(t, 107.66, rec.Test2.Float64)
	assert.Equal(t, 0, pages.count())
}

func TestPositiveCreatininePrediction(t *testing.T) {
	p, pages := newTestProcessor(t)
	preloadMRN640400(t, p)

	segments := []string{
		segMSH("ORU^R01"),
		"PID|1||640400",
		"OBX|1|NM|CREATININE||300.0|umol/L",
	}
	require.NoError(t, p.Process(context.Background(), segments))

	require.Equal(t, 1, pages.count())
	assert.Equal(t, "640400", pages.pages[0])
}

func TestDischargeIsNoOp(t *testing.T) {
	p, pages := newTestProcessor(t)

	segments := []string{
		segMSH("ADT^A03"),
		"PID|1||829339",
	}
	require.NoError(t, p.Process(context.Background(), segments))

	_, ok := p.Store.Get("829339")
	assert.False(t, ok)
	assert.Equal(t, 0, pages.count())
}

func TestPendingPredictionOrdering(t *testing.T) {
	p, pages := newTestProcessor(t)

	creatinine := []string{
		segMSH("ORU^R01"),
		"PID|1||999999",
		"OBX|1|NM|CREATININE||250.0|umol/L",
	}
	require.NoError(t, p.Process(context.Background(), creatinine))

	assert.Equal(t, 0, pages.count())
	assert.True(t, p.Pending.Contains("999999"))

	admission := []string{
		segMSH("ADT^A01"),
		"PID|1||999999||DOE JOHN||19880101|M",
	}
	require.NoError(t, p.Process(context.Background(), admission))

	assert.False(t, p.Pending.Contains("999999"))
	require.Equal(t, 1, pages.count())
	assert.Equal(t, "999999", pages.pages[0])
}

func TestMalformedMessageStillAcks(t *testing.T) {
	p, pages := newTestProcessor(t)

	segments := []string{
		segMSH("ADT^A01"),
		"PID|1||not-a-number||DOE JOHN||19880101|M",
	}
	err := p.Process(context.Background(), segments)
	assert.NoError(t, err)
	assert.Equal(t, 0, pages.count())

	_, ok := p.Store.Get("not-a-number")
	assert.False(t, ok)
}

func TestNonCreatinineOBXIgnored(t *testing.T) {
	p, _ := newTestProcessor(t)

	segments := []string{
		segMSH("ORU^R01"),
		"PID|1||640400",
		"OBX|1|NM|POTASSIUM||4.2|mmol/L",
	}
	require.NoError(t, p.Process(context.Background(), segments))

	_, ok := p.Store.Get("640400")
	assert.False(t, ok)
}
