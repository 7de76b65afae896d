// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package mllp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripDecodeEncode(t *testing.T) {
	segments := []string{
		"MSH|^~\\&|||||20240129093837||ADT^A01|||2.5",
		"PID|1||755374||AYAT BURKE||19940216|F",
	}

	frame := Encode(segments)
	decoded, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, segments, decoded)
}

func TestRoundTripEncodeDecode(t *testing.T) {
	frame := []byte{startBlock}
	frame = append(frame, []byte("MSH|foo\rPID|bar\r")...)
	frame = append(frame, endBlock, carriageReturn)

	decoded, err := Decode(frame)
	require.NoError(t, err)

	reEncoded := Encode(decoded)
	assert.Equal(t, frame, reEncoded)
}

func TestDecodeMissingEndBlock(t *testing.T) {
	buf := []byte{startBlock}
	buf = append(buf, []byte("MSH|foo\r")...)

	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeMissingStartBlock(t *testing.T) {
	buf := []byte("MSH|foo\r")
	buf = append(buf, endBlock, carriageReturn)

	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestAckContainsSuccessCode(t *testing.T) {
	segments, err := Decode(Ack())
	require.NoError(t, err)
	assert.Equal(t, "MSA|AA", segments[1])
}
