////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package transport

import (
	"encoding/json"
	"time"
)

const (
	defaultSendRate                 = 100
	defaultOutboundQueueSize        = 256
	defaultRoomQueueSize            = 256
	defaultDedupeWindow             = 512
	defaultReconnectInitialInterval = 250 * time.Millisecond
	defaultReconnectMaxInterval     = 30 * time.Second
)

// Params contains the parameters for a Session.
type Params struct {
	// SendRate is the maximum number of frames written per second.
	SendRate int

	// OutboundQueueSize is the number of frames buffered for writing before
	// Send reports the transport as unavailable.
	OutboundQueueSize int

	// RoomQueueSize is the number of received events buffered per room.
	RoomQueueSize int

	// DedupeWindow is the number of recent event keys remembered per room
	// to drop redelivered events.
	DedupeWindow int

	// ReconnectInitialInterval and ReconnectMaxInterval bound the
	// exponential backoff between dial attempts.
	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration
}

// GetDefaultParams returns the default transport parameters.
func GetDefaultParams() Params {
	return Params{
		SendRate:                 defaultSendRate,
		OutboundQueueSize:        defaultOutboundQueueSize,
		RoomQueueSize:            defaultRoomQueueSize,
		DedupeWindow:             defaultDedupeWindow,
		ReconnectInitialInterval: defaultReconnectInitialInterval,
		ReconnectMaxInterval:     defaultReconnectMaxInterval,
	}
}

// GetParameters returns the default Params, or override with given
// parameters, if set.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}
