// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mllp implements the Minimum Lower Layer Protocol byte
// framing used to carry HL7 v2 messages over TCP: a frame is
// 0x0B, one or more \r-terminated segments, then 0x1C 0x0D.
package mllp

import (
	"errors"
	"strings"
)

const (
	startBlock     byte = 0x0b
	endBlock       byte = 0x1c
	carriageReturn byte = 0x0d
)

// ErrMalformedFrame is returned by Decode when the start/end markers
// are absent or mis-ordered.
var ErrMalformedFrame = errors.New("mllp: malformed frame")

// AckTimestamp is a fixed placeholder used in every outbound ACK;
// downstream only checks the MSA segment's acknowledgement code.
const AckTimestamp = "20240129093837"

// Decode strips the MLLP envelope from buf and splits the remaining
// bytes on \r into segments. buf is assumed to contain exactly one
// frame. The final \r immediately before the end block is a
// terminator, not a segment boundary producing an empty segment.
func Decode(buf []byte) ([]string, error) {
	if len(buf) < 4 {
		return nil, ErrMalformedFrame
	}
	if buf[0] != startBlock {
		return nil, ErrMalformedFrame
	}
	if buf[len(buf)-2] != endBlock || buf[len(buf)-1] != carriageReturn {
		return nil, ErrMalformedFrame
	}

	body := buf[1 : len(buf)-2]
	str := strings.TrimSuffix(string(body), "\r")
	if str == "" {
		return nil, ErrMalformedFrame
	}

	return strings.Split(str, "\r"), nil
}

// Encode wraps segments in the MLLP envelope. Segments must not
// contain embedded 0x0B/0x1C bytes.
func Encode(segments []string) []byte {
	body := strings.Join(segments, "\r") + "\r"

	out := make([]byte, 0, len(body)+3)
	out = append(out, startBlock)
	out = append(out, body...)
	out = append(out, endBlock, carriageReturn)
	return out
}

// Ack builds the two-segment MSH/MSA acknowledgement frame sent back
// for every accepted message, regardless of whether it caused a
// state mutation.
func Ack() []byte {
	return Encode([]string{
		"MSH|^~\\&|||||" + AckTimestamp + "||ACK|||2.5",
		"MSA|AA",
	})
}
