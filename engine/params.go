////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"encoding/json"
	"time"

	"gitlab.com/heartline/convsync/call"
	"gitlab.com/heartline/convsync/event"
	"gitlab.com/heartline/convsync/ledger"
	"gitlab.com/heartline/convsync/presence"
	"gitlab.com/heartline/convsync/transport"
)

// Params groups the parameters of every component the engine runs.
type Params struct {
	Transport transport.Params
	Presence  presence.Params
	Ledger    ledger.Params
	Call      call.Params

	// EventQueueSize is the update backlog past which updates coalesce.
	EventQueueSize int

	// RosterTimeout bounds the roster fetch done when a room is admitted
	// from a broadcast decision.
	RosterTimeout time.Duration
}

// GetDefaultParams returns a Params object containing the default
// parameters.
func GetDefaultParams() Params {
	return Params{
		Transport:      transport.GetDefaultParams(),
		Presence:       presence.GetDefaultParams(),
		Ledger:         ledger.GetDefaultParams(),
		Call:           call.GetDefaultParams(),
		EventQueueSize: event.DefaultQueueSize,
		RosterTimeout:  15 * time.Second,
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
