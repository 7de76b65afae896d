// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package alertbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectEmptyAddressIsNoOp(t *testing.T) {
	b, err := Connect("")
	require.NoError(t, err)
	assert.NotNil(t, b)

	// Must not panic even though there is no underlying connection.
	assert.NotPanics(t, func() {
		b.Publish("12345678", time.Now())
		b.Close()
	})
}

func TestNilBusPublishIsNoOp(t *testing.T) {
	var b *Bus
	assert.NotPanics(t, func() {
		b.Publish("12345678", time.Now())
		b.Close()
	})
}

func TestConnectUnreachableAddressIsError(t *testing.T) {
	_, err := Connect("127.0.0.1:1")
	assert.Error(t, err)
}
