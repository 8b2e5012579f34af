////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package call

import (
	"strconv"
)

// State is the lifecycle stage of the local user's call.
type State uint8

const (
	Idle State = iota
	Connecting
	Active
	Ended
)

// String returns a human-readable version of [State]. This function adheres
// to the [fmt.Stringer] interface.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Ended:
		return "ended"
	default:
		return "INVALID CALL STATE: " + strconv.Itoa(int(s))
	}
}

// transitions lists the states reachable from each state. An ended call may
// be started again.
var transitions = map[State][]State{
	Idle:       {Connecting},
	Connecting: {Active, Ended},
	Active:     {Ended},
	Ended:      {Connecting},
}

// canTransition reports whether from may move to to.
func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InProgress reports whether the call is connecting or active.
func (s State) InProgress() bool {
	return s == Connecting || s == Active
}
