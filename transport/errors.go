////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package transport

import (
	"github.com/pkg/errors"

	"gitlab.com/heartline/convsync/model"
)

var (
	// ErrClosed is returned by operations on a closed Session.
	ErrClosed = errors.New("transport session is closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("transport session already started")

	// ErrDisconnected is returned by Send while no link is up.
	ErrDisconnected = errors.Wrap(model.ErrTransportUnavailable,
		"not connected")

	// ErrQueueFull is returned by Send when the outbound queue is full.
	ErrQueueFull = errors.Wrap(model.ErrTransportUnavailable,
		"outbound queue full")
)
