// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// validate checks raw config bytes against configSchema before they
// are decoded into Keys, keeping schema compliance and field decoding
// as two separate passes.
func validate(raw []byte) error {
	sch, err := jsonschema.CompileString("config.schema.json", configSchema)
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("config is not valid JSON: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}

	return nil
}
