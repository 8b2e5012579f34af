////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package membership

import (
	"github.com/pkg/errors"

	"gitlab.com/heartline/convsync/model"
)

var (
	// ErrNotManager is returned when the actor is neither admin nor owner.
	ErrNotManager = errors.Wrap(model.ErrAuthorization,
		"only an admin or the owner may manage participants")

	// ErrOwnershipTransfer is returned when granting the owner role.
	ErrOwnershipTransfer = errors.Wrap(model.ErrAuthorization,
		"ownership cannot be transferred")

	// ErrOwnerCannotLeave is returned when the owner tries to leave.
	ErrOwnerCannotLeave = errors.Wrap(model.ErrConflict,
		"the owner cannot leave the conversation")

	// ErrAlreadyParticipant is returned when adding an existing participant.
	ErrAlreadyParticipant = errors.Wrap(model.ErrConflict,
		"the user is already a participant")

	// ErrNotParticipant is returned when the target is not in the roster.
	ErrNotParticipant = errors.Wrap(model.ErrNotFound,
		"the user is not a participant")

	// ErrUnknownConversation is returned for a roster that was never loaded.
	ErrUnknownConversation = errors.Wrap(model.ErrNotFound,
		"no roster for conversation")

	// ErrBelowCurrent is returned when lowering capacity below the number
	// of participants.
	ErrBelowCurrent = errors.Wrap(model.ErrConflict,
		"capacity is below the current number of participants")
)
