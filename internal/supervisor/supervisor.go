// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package supervisor owns the process lifecycle: load state, start
// the receiver and processor, wait for a shutdown signal, join
// cleanly, and persist metrics. Everything the two activities share
// is constructed once here and handed out by reference rather than
// kept in module-level globals.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aki-sentinel/sentinel/internal/alertbus"
	"github.com/aki-sentinel/sentinel/internal/config"
	"github.com/aki-sentinel/sentinel/internal/metrics"
	"github.com/aki-sentinel/sentinel/internal/pager"
	"github.com/aki-sentinel/sentinel/internal/pending"
	"github.com/aki-sentinel/sentinel/internal/predictor"
	"github.com/aki-sentinel/sentinel/internal/preload"
	"github.com/aki-sentinel/sentinel/internal/processor"
	"github.com/aki-sentinel/sentinel/internal/receiver"
	"github.com/aki-sentinel/sentinel/internal/runtimeEnv"
	"github.com/aki-sentinel/sentinel/internal/store"
	"github.com/aki-sentinel/sentinel/pkg/log"
	"golang.org/x/time/rate"
)

// Options gathers the CLI/config surface the supervisor needs. It is
// deliberately a plain struct rather than reading config.Keys
// directly, so tests can construct one without touching global state.
type Options struct {
	Pathname        string // historical CSV preload source, local path or s3://
	DBPath          string
	MetricsPath     string
	MLLPAddress     string
	PagerAddress    string
	NATSAddress     string
	MetricsAddr     string
	ModelPath       string
	MaxReconnects   int
	CheckpointEvery time.Duration
}

// Run performs the full startup sequence, blocks until a shutdown
// signal is observed, then shuts down cleanly and returns. A non-nil
// error means an unrecoverable startup failure, or that the receiver
// exhausted its reconnect attempts; either way the process should
// exit non-zero.
func Run(opts Options) error {
	if err := runtimeEnv.LoadEnv(".env"); err != nil && !os.IsNotExist(err) {
		log.Warnf("supervisor: loading .env: %s", err)
	}

	reg := metrics.New()
	if err := reg.Restore(opts.MetricsPath); err != nil {
		log.Warnf("supervisor: restoring metrics snapshot: %s", err)
	}

	if err := reg.Serve(opts.MetricsAddr); err != nil {
		return fmt.Errorf("supervisor: start metrics server: %w", err)
	}

	stopPersist, err := reg.StartPeriodicPersist(opts.MetricsPath, opts.CheckpointEvery)
	if err != nil {
		return fmt.Errorf("supervisor: schedule periodic metrics persist: %w", err)
	}
	defer stopPersist()

	st, err := openOrPreloadStore(opts)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	defer st.Close()

	pred, err := predictor.Load(opts.ModelPath)
	if err != nil {
		return fmt.Errorf("supervisor: load model artifact: %w", err)
	}

	bus, err := alertbus.Connect(opts.NATSAddress)
	if err != nil {
		log.Warnf("supervisor: alert bus unavailable: %s", err)
		bus = &alertbus.Bus{}
	}
	defer bus.Close()

	proc := &processor.Processor{
		Store:     st,
		Pending:   pending.New(),
		Predictor: pred,
		Pager:     pager.New(opts.PagerAddress, rate.Limit(50), 10),
		Metrics:   reg,
		AlertBus:  bus,
	}

	recv := receiver.New(opts.MLLPAddress, opts.MaxReconnects, reg)

	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	var runErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = recv.Run(ctx, proc.Process)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sigs
		log.Info("supervisor: shutdown signal received")
		runtimeEnv.SystemdNotifiy(false, "shutting down")
		cancel()
	}()

	runtimeEnv.SystemdNotifiy(true, "running")

	wg.Wait()

	if err := reg.Persist(opts.MetricsPath); err != nil {
		log.Errorf("supervisor: persist metrics on shutdown: %s", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := reg.Shutdown(shutdownCtx); err != nil {
		log.Warnf("supervisor: metrics server shutdown: %s", err)
	}

	return runErr
}

func openOrPreloadStore(opts Options) (*store.Store, error) {
	existed := store.Exists(opts.DBPath)

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open feature store: %w", err)
	}

	if !existed {
		log.Infof("supervisor: feature store %s absent, preloading from %s", opts.DBPath, opts.Pathname)
		if err := preload.Load(context.Background(), opts.Pathname, st); err != nil {
			st.Close()
			return nil, fmt.Errorf("preload historical CSV: %w", err)
		}
	}

	return st, nil
}

// DefaultOptionsFromConfig builds Options from the package-level
// config.Keys, the shape main() works with after config.Init. An
// empty pathname falls back to config.Keys.Pathname so the preload
// source can be set either by --pathname or by the config file.
func DefaultOptionsFromConfig(pathname string) Options {
	if pathname == "" {
		pathname = config.Keys.Pathname
	}

	return Options{
		Pathname:        pathname,
		DBPath:          config.Keys.DBPath,
		MetricsPath:     config.Keys.MetricsPath,
		MLLPAddress:     config.Keys.MLLPAddress,
		PagerAddress:    config.Keys.PagerAddress,
		NATSAddress:     config.Keys.NATSAddress,
		MetricsAddr:     config.Keys.MetricsAddr,
		ModelPath:       config.Keys.ModelPath,
		MaxReconnects:   config.Keys.MaxReconnects,
		CheckpointEvery: config.CheckpointInterval(),
	}
}
