////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package transport multiplexes one real-time connection across many
// conversation rooms. Events are delivered at least once; within a room they
// are dispatched in the order they were received and redeliveries are
// dropped, while different rooms dispatch concurrently.
package transport

import (
	"context"

	"gitlab.com/heartline/convsync/wire"
)

// Link is one established connection carrying binary frames.
type Link interface {
	// WriteFrame writes one frame. It is only called from a single
	// goroutine.
	WriteFrame(frame []byte) error

	// ReadFrame blocks until a frame arrives or the link fails.
	ReadFrame() ([]byte, error)

	// Close tears the link down and unblocks ReadFrame.
	Close() error
}

// Dialer establishes links to the real-time server.
type Dialer interface {
	Dial(ctx context.Context) (Link, error)
}

// Handler is called once per received event for a room.
type Handler func(env wire.Envelope)

// ReconnectCallback is called after the connection has been re-established
// with the rooms that were re-joined. Server state for those rooms, such as
// presence, must be treated as reset.
type ReconnectCallback func(rooms []string)

// ListenerID identifies a registered Handler.
type ListenerID uint64
