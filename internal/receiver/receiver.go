// Copyright (C) 2026 AKI Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package receiver implements the TCP client to the MLLP source: it
// frames, enqueues, waits for the processor's ack-gate, and emits the
// MLLP ACK on the same connection before reading the next frame.
//
// The receiver/processor handshake is a pair of capacity-1 channels:
// msgChan carries a decoded frame from receiver to processor, ackChan
// carries the commit outcome back. Run starts both the socket-reading
// activity and the channel-pumping activity that invokes Handler, two
// long-running activities cooperating in parallel while the
// capacity-1 channels cap the system at one in-flight message.
package receiver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/aki-sentinel/sentinel/internal/metrics"
	"github.com/aki-sentinel/sentinel/internal/mllp"
	"github.com/aki-sentinel/sentinel/pkg/log"
)

const (
	backoffBase = 1 * time.Second
	backoffCap  = 30 * time.Second
	readBufSize = 4096
)

// Handler processes one decoded frame and reports whether its
// effects were durably committed. A non-nil error means the
// connection must be torn down without sending an ACK, so the
// upstream retransmits.
type Handler func(ctx context.Context, segments []string) error

// Receiver drives the Connecting/Receiving/AwaitingAckGate/Closing
// state machine against one MLLP address.
type Receiver struct {
	address       string
	maxReconnects int
	metrics       *metrics.Registry

	msgChan chan []string
	ackChan chan error
}

// New builds a Receiver. maxReconnects bounds the number of
// consecutive failed Connecting attempts before Run gives up and
// returns an error; 0 means unbounded.
func New(address string, maxReconnects int, reg *metrics.Registry) *Receiver {
	return &Receiver{
		address:       address,
		maxReconnects: maxReconnects,
		metrics:       reg,
		msgChan:       make(chan []string, 1),
		ackChan:       make(chan error, 1),
	}
}

// Run starts the processor-side channel pump and drives the
// Connecting/Receiving loop until ctx is cancelled. It returns nil on
// cooperative shutdown and a non-nil error only if maxReconnects is
// exhausted.
func (r *Receiver) Run(ctx context.Context, handle Handler) error {
	go r.pump(ctx, handle)
	return r.connectLoop(ctx)
}

// pump is the processor side of the handshake: it blocks on msgChan,
// invokes handle, and reports the outcome on ackChan. It never reads
// ahead, so at most one message is ever in flight.
func (r *Receiver) pump(ctx context.Context, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case segments, ok := <-r.msgChan:
			if !ok {
				return
			}
			err := handle(ctx, segments)
			select {
			case r.ackChan <- err:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *Receiver) connectLoop(ctx context.Context) error {
	attempt := 0
	dialed := false

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Every dial after the very first one is a reconnect, whether it
		// follows a failed dial or a dropped connection.
		if dialed {
			r.metrics.IncMLLPSocketReconnections()
		}
		dialed = true

		conn, err := net.Dial("tcp", r.address)
		if err != nil {
			attempt++
			if r.maxReconnects > 0 && attempt > r.maxReconnects {
				return fmt.Errorf("receiver: exhausted %d reconnect attempts: %w", r.maxReconnects, err)
			}

			delay := backoff(attempt)
			log.Warnf("receiver: connect to %s failed (attempt %d): %s; retrying in %s", r.address, attempt, err, delay)

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		attempt = 0
		stop := r.serveConnection(ctx, conn)
		conn.Close()
		if stop {
			return nil
		}
		// Connection dropped (EOF, commit failure, decode error):
		// loop back into Connecting.
	}
}

// backoff returns the exponential delay for the given 1-indexed
// attempt number, base 1s doubling up to a 30s cap.
func backoff(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

// serveConnection runs the Receiving/AwaitingAckGate loop on one live
// TCP connection. It returns true if the caller should stop entirely
// (cooperative shutdown observed between frames), false if the
// connection was dropped and Connecting should be retried.
func (r *Receiver) serveConnection(ctx context.Context, conn net.Conn) bool {
	buf := make([]byte, 0, readBufSize)
	tmp := make([]byte, readBufSize)

	for {
		if ctx.Err() != nil {
			return true
		}

		frame, rest, err := readFrame(conn, buf, tmp)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Infof("receiver: connection to %s closed cleanly", r.address)
			} else {
				log.Warnf("receiver: read from %s failed: %s", r.address, err)
			}
			return false
		}
		buf = rest

		segments, err := mllp.Decode(frame)
		if err != nil {
			log.Errorf("receiver: %s", err)
			// A malformed frame is dropped entirely: no enqueue, no
			// ACK. The connection is torn down so a reconnect can
			// resynchronize framing.
			return false
		}

		r.metrics.IncMessagesReceived()

		select {
		case r.msgChan <- segments:
		case <-ctx.Done():
			return true
		}

		var commitErr error
		select {
		case commitErr = <-r.ackChan:
		case <-ctx.Done():
			return true
		}

		if commitErr != nil {
			log.Errorf("receiver: commit failed, dropping connection: %s", commitErr)
			return false
		}

		if _, err := conn.Write(mllp.Ack()); err != nil {
			log.Warnf("receiver: write ACK to %s failed: %s", r.address, err)
			return false
		}
	}
}

// readFrame reads from conn until buf (prefixed with any bytes
// already buffered from a previous short read) contains one complete
// MLLP frame: a single recv is not guaranteed to deliver one whole
// frame. It returns the frame (start marker through end markers
// inclusive) and any leftover bytes belonging to the next frame.
func readFrame(conn net.Conn, buf, tmp []byte) (frame, rest []byte, err error) {
	for {
		if end := frameEnd(buf); end >= 0 {
			return buf[:end], buf[end:], nil
		}

		n, readErr := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if readErr != nil {
			return nil, nil, readErr
		}
	}
}

// frameEnd returns the index just past the end of the first complete
// frame in buf (i.e. past 0x1C 0x0D), or -1 if no complete frame is
// present yet.
func frameEnd(buf []byte) int {
	start := bytes.IndexByte(buf, 0x0b)
	if start < 0 {
		return -1
	}
	marker := []byte{0x1c, 0x0d}
	idx := bytes.Index(buf[start:], marker)
	if idx < 0 {
		return -1
	}
	return start + idx + len(marker)
}
