// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package predictor wraps the pretrained AKI classifier. Training is
// explicitly out of scope here; this package only loads a serialized
// artifact once at startup and evaluates it against a feature
// vector. The artifact format (gob-encoded linear weights) is
// private to this module, nothing outside it depends on the
// encoding.
package predictor

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/aki-sentinel/sentinel/internal/store"
	"github.com/aki-sentinel/sentinel/pkg/log"
)

// Model is the serialized artifact shape: a logistic-regression-style
// linear classifier over the seven features
// [age, sex, test_1..test_5].
type Model struct {
	Weights [7]float64
	Bias    float64
}

// Predictor evaluates a loaded Model. The same vector always yields
// the same label; there is no hidden state between calls.
type Predictor struct {
	model Model
}

// Load reads a gob-encoded Model from path. A missing or corrupt
// artifact is fatal at startup.
func Load(path string) (*Predictor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("predictor: open artifact %s: %w", path, err)
	}
	defer f.Close()

	var m Model
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("predictor: decode artifact %s: %w", path, err)
	}

	return &Predictor{model: m}, nil
}

// Save writes m to path in the format Load expects. Used by the
// (external) training procedure and by tests; not part of the
// streaming hot path.
func Save(path string, m Model) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("predictor: create artifact %s: %w", path, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("predictor: encode artifact %s: %w", path, err)
	}
	return nil
}

// PredictOrZero evaluates features when complete is true. When complete
// is false it returns false without invoking the model; a panic inside
// the model evaluation is recovered and also yields false.
func (p *Predictor) PredictOrZero(features store.Features, complete bool) (positive bool) {
	if !complete {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("predictor: recovered panic during prediction: %v", r)
			positive = false
		}
	}()

	return p.predict(features)
}

func (p *Predictor) predict(features store.Features) bool {
	sum := p.model.Bias
	for i, w := range p.model.Weights {
		sum += w * features[i]
	}
	return sum > 0
}
