////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package ledger

import "time"

// Params configures a Ledger.
type Params struct {
	// SendTimeout is how long a dispatched message may stay unacknowledged
	// before it is marked failed.
	SendTimeout time.Duration

	// ExpiryCheckInterval is how often pending sends are checked against
	// SendTimeout.
	ExpiryCheckInterval time.Duration

	// DefaultPageSize is used by FetchHistory when no limit is given.
	DefaultPageSize int
}

// GetDefaultParams returns the default ledger parameters.
func GetDefaultParams() Params {
	return Params{
		SendTimeout:         30 * time.Second,
		ExpiryCheckInterval: time.Second,
		DefaultPageSize:     50,
	}
}
