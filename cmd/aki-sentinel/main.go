// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"flag"

	"github.com/aki-sentinel/sentinel/internal/config"
	"github.com/aki-sentinel/sentinel/internal/supervisor"
	"github.com/aki-sentinel/sentinel/pkg/log"
	"github.com/google/gops/agent"
)

func main() {
	var flagConfigFile, flagPathname, flagDBPath, flagMetricsPath, flagModelPath string
	var flagGops bool

	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the global config options by those specified in `config.json`")
	flag.StringVar(&flagPathname, "pathname", "", "Historical preload source (local path or s3://bucket/key), used only when the feature store is absent on startup")
	flag.StringVar(&flagDBPath, "db_path", "", "Feature-store file path, overrides the config file value if set")
	flag.StringVar(&flagMetricsPath, "metrics_path", "", "Metrics snapshot path, overrides the config file value if set")
	flag.StringVar(&flagModelPath, "model_path", "", "Pretrained classifier artifact path, overrides the config file value if set")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatalf("loading config failed: %s", err.Error())
	}

	if flagDBPath != "" {
		config.Keys.DBPath = flagDBPath
	}
	if flagMetricsPath != "" {
		config.Keys.MetricsPath = flagMetricsPath
	}
	if flagModelPath != "" {
		config.Keys.ModelPath = flagModelPath
	}

	opts := supervisor.DefaultOptionsFromConfig(flagPathname)

	if err := supervisor.Run(opts); err != nil {
		log.Fatalf("supervisor exited with error: %s", err.Error())
	}
}
