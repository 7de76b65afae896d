// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the nine counters/gauges named by the
// processing pipeline as a Prometheus scrape endpoint, and persists
// them as a JSON snapshot so a restart does not lose history.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aki-sentinel/sentinel/pkg/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the nine named metrics plus the Welford accumulator
// that backs blood_test_result_mean/_stddev.
type Registry struct {
	mu sync.Mutex

	messagesReceived          prometheus.Counter
	messagesProcessed         prometheus.Counter
	bloodTestResultsReceived  prometheus.Counter
	positiveAKIPredictions    prometheus.Counter
	unsuccessfulPagerRequests prometheus.Counter
	mllpSocketReconnections   prometheus.Counter
	positivePredictionRate    prometheus.Gauge
	bloodTestResultMean       prometheus.Gauge
	bloodTestResultStddev     prometheus.Gauge

	positiveCount int64
	testCount     int64

	welfordCount int64
	welfordMean  float64
	welfordM2    float64

	srv *http.Server
}

// snapshot is the on-disk JSON shape. Counters are floats because
// prometheus exposes them as float64 internally and this keeps the
// (de)serialization symmetric.
type snapshot struct {
	MessagesReceived          float64 `json:"messages_received"`
	MessagesProcessed         float64 `json:"messages_processed"`
	BloodTestResultsReceived  float64 `json:"blood_test_results_received"`
	PositiveAKIPredictions    float64 `json:"positive_aki_predictions"`
	UnsuccessfulPagerRequests float64 `json:"unsuccessful_pager_requests"`
	MLLPSocketReconnections   float64 `json:"mllp_socket_reconnections"`
	WelfordCount              int64   `json:"welford_count"`
	WelfordMean               float64 `json:"welford_mean"`
	WelfordM2                 float64 `json:"welford_m2"`
}

// New constructs a Registry with all nine series. Serve registers them
// against a fresh prometheus.Registry (not the global default, so tests
// can run concurrently without collisions).
func New() *Registry {
	r := &Registry{}

	r.messagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_received",
		Help: "Frames accepted by the receiver.",
	})
	r.messagesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_processed",
		Help: "Messages for which an ACK has been emitted.",
	})
	r.bloodTestResultsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blood_test_results_received",
		Help: "OBX CREATININE observations parsed.",
	})
	r.positiveAKIPredictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "positive_aki_predictions",
		Help: "Times the predictor returned truthy.",
	})
	r.unsuccessfulPagerRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unsuccessful_pager_requests",
		Help: "Non-200 or errored pager calls.",
	})
	r.mllpSocketReconnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mllp_socket_reconnections",
		Help: "Times the receiver attempted to re-establish the TCP connection.",
	})
	r.positivePredictionRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "positive_prediction_rate",
		Help: "positive_aki_predictions / blood_test_results_received.",
	})
	r.bloodTestResultMean = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "blood_test_result_mean",
		Help: "Running arithmetic mean of creatinine values observed.",
	})
	r.bloodTestResultStddev = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "blood_test_result_stddev",
		Help: "Running population standard deviation of the same.",
	})

	return r
}

func (r *Registry) registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		r.messagesReceived,
		r.messagesProcessed,
		r.bloodTestResultsReceived,
		r.positiveAKIPredictions,
		r.unsuccessfulPagerRequests,
		r.mllpSocketReconnections,
		r.positivePredictionRate,
		r.bloodTestResultMean,
		r.bloodTestResultStddev,
	)
	return reg
}

// IncMessagesReceived counts one accepted frame.
func (r *Registry) IncMessagesReceived() { r.messagesReceived.Inc() }

// IncMessagesProcessed counts one emitted ACK.
func (r *Registry) IncMessagesProcessed() { r.messagesProcessed.Inc() }

// IncMLLPSocketReconnections counts one receiver reconnect attempt.
func (r *Registry) IncMLLPSocketReconnections() { r.mllpSocketReconnections.Inc() }

// IncUnsuccessfulPagerRequest counts one failed page attempt.
func (r *Registry) IncUnsuccessfulPagerRequest() { r.unsuccessfulPagerRequests.Inc() }

// ObserveCreatinine folds a new creatinine value into
// blood_test_results_received, the running mean/stddev (Welford's
// online algorithm, population variant), and the prediction-rate
// denominator.
func (r *Registry) ObserveCreatinine(value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bloodTestResultsReceived.Inc()
	r.testCount++

	r.welfordCount++
	delta := value - r.welfordMean
	r.welfordMean += delta / float64(r.welfordCount)
	delta2 := value - r.welfordMean
	r.welfordM2 += delta * delta2

	r.bloodTestResultMean.Set(r.welfordMean)
	r.bloodTestResultStddev.Set(r.stddevLocked())
	r.updateRateLocked()
}

// ObservePositivePrediction counts one truthy model call and
// recomputes positive_prediction_rate.
func (r *Registry) ObservePositivePrediction() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.positiveAKIPredictions.Inc()
	r.positiveCount++
	r.updateRateLocked()
}

func (r *Registry) stddevLocked() float64 {
	if r.welfordCount < 1 {
		return 0
	}
	return math.Sqrt(r.welfordM2 / float64(r.welfordCount))
}

func (r *Registry) updateRateLocked() {
	if r.testCount == 0 {
		r.positivePredictionRate.Set(0)
		return
	}
	r.positivePredictionRate.Set(float64(r.positiveCount) / float64(r.testCount))
}

// Serve starts the /metrics scrape server on addr. It returns
// immediately; call Shutdown to stop it.
func (r *Registry) Serve(addr string) error {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(r.registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	logged := handlers.LoggingHandler(os.Stdout, router)

	r.srv = &http.Server{
		Addr:    addr,
		Handler: logged,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen on %s: %w", addr, err)
	}

	go func() {
		if err := r.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics: server stopped: %s", err)
		}
	}()

	return nil
}

// Shutdown stops the scrape server gracefully.
func (r *Registry) Shutdown(ctx context.Context) error {
	if r.srv == nil {
		return nil
	}
	return r.srv.Shutdown(ctx)
}

// Persist writes the current counter values to path as JSON, creating
// parent directories as needed.
func (r *Registry) Persist(path string) error {
	r.mu.Lock()
	snap := snapshot{
		MessagesReceived:          getCounter(r.messagesReceived),
		MessagesProcessed:         getCounter(r.messagesProcessed),
		BloodTestResultsReceived:  getCounter(r.bloodTestResultsReceived),
		PositiveAKIPredictions:    getCounter(r.positiveAKIPredictions),
		UnsuccessfulPagerRequests: getCounter(r.unsuccessfulPagerRequests),
		MLLPSocketReconnections:   getCounter(r.mllpSocketReconnections),
		WelfordCount:              r.welfordCount,
		WelfordMean:               r.welfordMean,
		WelfordM2:                 r.welfordM2,
	}
	r.mu.Unlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("metrics: mkdir %s: %w", dir, err)
		}
	}

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("metrics: marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}

// Restore loads a previously persisted snapshot. A missing file is
// not an error: every key simply defaults to 0, per the restart
// contract.
func (r *Registry) Restore(path string) error {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("metrics: read %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("metrics: unmarshal %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.messagesReceived.Add(snap.MessagesReceived)
	r.messagesProcessed.Add(snap.MessagesProcessed)
	r.bloodTestResultsReceived.Add(snap.BloodTestResultsReceived)
	r.positiveAKIPredictions.Add(snap.PositiveAKIPredictions)
	r.unsuccessfulPagerRequests.Add(snap.UnsuccessfulPagerRequests)
	r.mllpSocketReconnections.Add(snap.MLLPSocketReconnections)

	r.testCount = int64(snap.BloodTestResultsReceived)
	r.positiveCount = int64(snap.PositiveAKIPredictions)
	r.welfordCount = snap.WelfordCount
	r.welfordMean = snap.WelfordMean
	r.welfordM2 = snap.WelfordM2

	r.bloodTestResultMean.Set(r.welfordMean)
	r.bloodTestResultStddev.Set(r.stddevLocked())
	r.updateRateLocked()

	return nil
}

func getCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	return m.GetCounter().GetValue()
}

// StartPeriodicPersist schedules Persist(path) to run every interval
// via a gocron scheduler, in addition to whatever shutdown-triggered
// call the caller also makes. The returned stop function cancels the
// schedule; it does not itself persist.
func (r *Registry) StartPeriodicPersist(path string, interval time.Duration) (stop func(), err error) {
	return startPeriodicPersist(r, path, interval)
}
