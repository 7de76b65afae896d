// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package metrics

import (
	"fmt"
	"time"

	"github.com/aki-sentinel/sentinel/pkg/log"
	"github.com/go-co-op/gocron/v2"
)

// startPeriodicPersist wires a gocron scheduler to call r.Persist(path)
// on a fixed interval, so the checkpoint cadence can later grow
// cron-like jobs (e.g. daily rollups) without a second goroutine.
func startPeriodicPersist(r *Registry, path string, interval time.Duration) (func(), error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("metrics: create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := r.Persist(path); err != nil {
				log.Warnf("metrics: periodic persist failed: %s", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: schedule persist job: %w", err)
	}

	scheduler.Start()

	return func() {
		if err := scheduler.Shutdown(); err != nil {
			log.Warnf("metrics: scheduler shutdown: %s", err)
		}
	}, nil
}
