// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pager sends the best-effort HTTP page that notifies
// operators of a positive AKI prediction.
package pager

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aki-sentinel/sentinel/pkg/log"
	"golang.org/x/time/rate"
)

// Client POSTs an MRN to the paging endpoint. A non-200 response or
// a network error is reported to the caller so it can be counted in
// unsuccessful_pager_requests, but never treated as fatal: the
// prediction itself has already been recorded by the time Page is
// called.
type Client struct {
	address    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New builds a pager client targeting http://address/page. limit
// bounds the outbound page rate (0 disables throttling) so a burst
// of positive predictions (a misbehaving model, a replay storm)
// cannot hammer the paging endpoint.
func New(address string, limit rate.Limit, burst int) *Client {
	var limiter *rate.Limiter
	if limit > 0 {
		limiter = rate.NewLimiter(limit, burst)
	}

	return &Client{
		address: address,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		limiter: limiter,
	}
}

// Page posts mrn as the request body. It returns an error describing
// why the request was considered unsuccessful; callers increment
// their own counter rather than this package doing it, so the
// counting stays in one place (the metrics registry).
func (c *Client) Page(ctx context.Context, mrn string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("pager: rate limiter: %w", err)
		}
	}

	url := fmt.Sprintf("http://%s/page", c.address)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(mrn)))
	if err != nil {
		return fmt.Errorf("pager: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warnf("pager: POST %s failed for MRN %s: %s", url, mrn, err)
		return fmt.Errorf("pager: request failed: %w", err)
	}
	defer resp.Body.Close()

	log.Infof("pager: POST %s (%d, %dms)", url, resp.StatusCode, time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pager: unexpected status %d", resp.StatusCode)
	}

	return nil
}
