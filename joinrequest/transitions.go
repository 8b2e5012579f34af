////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package joinrequest

import (
	"github.com/pkg/errors"

	"gitlab.com/heartline/convsync/model"
)

// transitions lists every status a request may move to from each status.
// Terminal statuses have no entry.
var transitions = map[model.RequestStatus][]model.RequestStatus{
	model.Pending: {model.Approved, model.Rejected},
}

// checkTransition returns ErrAlreadyDecided when from cannot move to to.
func checkTransition(from, to model.RequestStatus) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return errors.Wrapf(model.ErrAlreadyDecided, "cannot move from %s to %s",
		from, to)
}
