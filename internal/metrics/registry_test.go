// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package metrics

import (
	"math"
	"path/filepath"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCreatinineMeanAndStddev(t *testing.T) {
	r := New()
	r.ObserveCreatinine(2)
	r.ObserveCreatinine(4)
	r.ObserveCreatinine(4)
	r.ObserveCreatinine(4)
	r.ObserveCreatinine(5)
	r.ObserveCreatinine(5)
	r.ObserveCreatinine(7)
	r.ObserveCreatinine(9)

	assert.InDelta(t, 5.0, r.welfordMean, 1e-9)
	assert.InDelta(t, 2.0, r.stddevLocked(), 1e-9)
	assert.Equal(t, int64(8), r.testCount)
}

func TestPositivePredictionRateZeroDenominator(t *testing.T) {
	r := New()
	assert.Equal(t, float64(0), getGauge(r.positivePredictionRate))
}

func TestPositivePredictionRateComputed(t *testing.T) {
	r := New()
	r.ObserveCreatinine(100)
	r.ObserveCreatinine(100)
	r.ObservePositivePrediction()

	assert.InDelta(t, 0.5, getGauge(r.positivePredictionRate), 1e-9)
}

func TestPersistAndRestoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")

	r := New()
	r.IncMessagesReceived()
	r.IncMessagesReceived()
	r.IncMessagesProcessed()
	r.IncMLLPSocketReconnections()
	r.IncUnsuccessfulPagerRequest()
	r.ObserveCreatinine(120)
	r.ObserveCreatinine(140)
	r.ObservePositivePrediction()

	require.NoError(t, r.Persist(path))

	restored := New()
	require.NoError(t, restored.Restore(path))

	assert.Equal(t, float64(2), getCounter(restored.messagesReceived))
	assert.Equal(t, float64(1), getCounter(restored.messagesProcessed))
	assert.Equal(t, float64(1), getCounter(restored.mllpSocketReconnections))
	assert.Equal(t, float64(1), getCounter(restored.unsuccessfulPagerRequests))
	assert.InDelta(t, 130.0, restored.welfordMean, 1e-9)
	assert.InDelta(t, 0.5, getGauge(restored.positivePredictionRate), 1e-9)
}

func TestRestoreMissingFileDefaultsToZero(t *testing.T) {
	r := New()
	require.NoError(t, r.Restore(filepath.Join(t.TempDir(), "does-not-exist.json")))
	assert.Equal(t, float64(0), getCounter(r.messagesReceived))
}

func getGauge(g prometheus.Gauge) float64 {
	var m dto.Metric
	_ = g.Write(&m)
	return m.GetGauge().GetValue()
}

func TestWelfordStddevSinglePointIsZero(t *testing.T) {
	r := New()
	r.ObserveCreatinine(50)
	assert.Equal(t, 0.0, math.Round(r.stddevLocked()*1e9)/1e9)
}
