// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

// configSchema validates the optional JSON config file before it is
// decoded into Keys. It guards value types and rejects unknown fields
// ("additionalProperties": false); decoding rejects unknown fields a
// second time.
const configSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"mllp-address":    { "type": "string" },
		"pager-address":   { "type": "string" },
		"nats-address":    { "type": "string" },
		"metrics-addr":    { "type": "string" },
		"db-path":         { "type": "string" },
		"metrics-path":    { "type": "string" },
		"model-path":      { "type": "string" },
		"pathname":        { "type": "string" },
		"max-reconnects":  { "type": "integer", "minimum": 0 },
		"checkpoint-every":{ "type": "string" },
		"loglevel":        { "type": "string" },
		"logdate":         { "type": "boolean" }
	},
	"additionalProperties": false
}`
