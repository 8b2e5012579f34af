////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package presence

import "time"

// Params configures the typing windows of a Tracker.
type Params struct {
	// TypingExpiry is how long a typing indicator stays fresh without a
	// refresh. It also auto-stops local typing after inactivity.
	TypingExpiry time.Duration

	// RefreshInterval is the minimum time between "still typing"
	// broadcasts while local typing continues. It must be shorter than
	// TypingExpiry so peers never expire an active typist.
	RefreshInterval time.Duration

	// SweepInterval is how often stale entries are physically removed.
	SweepInterval time.Duration
}

// GetDefaultParams returns the default typing windows.
func GetDefaultParams() Params {
	return Params{
		TypingExpiry:    3 * time.Second,
		RefreshInterval: 2 * time.Second,
		SweepInterval:   500 * time.Millisecond,
	}
}
