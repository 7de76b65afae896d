// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pending tracks MRNs for which a creatinine result arrived
// before any admission carrying their demographics: LIMS ordering is
// not guaranteed to follow PAS, so such an MRN must be stored but
// not predicted until the demographics arrive.
package pending

import "sync"

// Set is an in-memory, process-lifetime-only collection of MRNs
// awaiting their first prediction attempt. It starts empty on every
// restart by design: it is not part of the durable store.
type Set struct {
	mu  sync.Mutex
	mrn map[string]struct{}
}

func New() *Set {
	return &Set{mrn: make(map[string]struct{})}
}

func (s *Set) Insert(mrn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mrn[mrn] = struct{}{}
}

func (s *Set) Contains(mrn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mrn[mrn]
	return ok
}

func (s *Set) Remove(mrn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mrn, mrn)
}
