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

var (
	ErrNotLiveSession = errors.Wrap(model.ErrInvalid,
		"join requests are only accepted by live sessions")
	ErrSessionEnded = errors.Wrap(model.ErrConflict,
		"the live session has ended")
	ErrApprovalNotRequired = errors.Wrap(model.ErrInvalid,
		"the live session does not require approval")
	ErrAlreadyParticipant = errors.Wrap(model.ErrConflict,
		"the requester is already a participant")
	ErrRequestPending = errors.Wrap(model.ErrConflict,
		"the requester already has a pending request")
	ErrRequestNotFound = errors.Wrap(model.ErrNotFound,
		"no such join request")
	ErrNotDecider = errors.Wrap(model.ErrAuthorization,
		"only the host, an admin or the owner may decide join requests")
	ErrWrongSession = errors.Wrap(model.ErrInvalid,
		"the join request belongs to another session")
)
