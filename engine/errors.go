////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"github.com/pkg/errors"

	"gitlab.com/heartline/convsync/model"
)

var (
	ErrNotOpen = errors.Wrap(model.ErrConflict,
		"the conversation is not open")
	ErrNotParticipant = errors.Wrap(model.ErrAuthorization,
		"the local user is not a participant")
	ErrApprovalRequired = errors.Wrap(model.ErrConflict,
		"the live session requires approval, send a join request")
	ErrCallsDisabled = errors.Wrap(model.ErrInvalid,
		"calls are disabled in this conversation")
	ErrNoCalls = errors.Wrap(model.ErrExternalService,
		"no media transport is configured")
	ErrNotHost = errors.Wrap(model.ErrAuthorization,
		"only the host, an admin or the owner may change the session")
	ErrStarted = errors.New("the engine has already been started")
)
