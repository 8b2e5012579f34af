////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package call

import (
	"encoding/json"
	"time"
)

// Params configures the Coordinator.
type Params struct {
	// IssueTimeout bounds a single credential request.
	IssueTimeout time.Duration

	// BreakerFailures is the number of consecutive issuer failures that open
	// the circuit breaker.
	BreakerFailures uint32

	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration

	// VideoOnStart is whether the camera is on when a call starts.
	VideoOnStart bool
}

// GetDefaultParams returns a Params object containing the default
// parameters.
func GetDefaultParams() Params {
	return Params{
		IssueTimeout:    10 * time.Second,
		BreakerFailures: 3,
		BreakerTimeout:  30 * time.Second,
		VideoOnStart:    true,
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
