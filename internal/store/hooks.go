// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"time"

	"github.com/aki-sentinel/sentinel/pkg/log"
)

type ctxKey string

const beginKey ctxKey = "begin"

// queryHooks satisfies sqlhooks.Hooks, logging every statement and
// its elapsed time at debug level.
type queryHooks struct{}

func (h *queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("SQL query %s %q", query, args)
	return context.WithValue(ctx, beginKey, time.Now()), nil
}

func (h *queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey).(time.Time); ok {
		log.Debugf("SQL took: %s", time.Since(begin))
	}
	return ctx, nil
}
