////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"github.com/pkg/errors"

	"gitlab.com/heartline/convsync/model"
)

var (
	// ErrMessageNotFound is returned when no visible message has the ID.
	ErrMessageNotFound = errors.Wrap(model.ErrNotFound, "message not found")

	// ErrNotSender is returned when editing someone else's message.
	ErrNotSender = errors.Wrap(model.ErrAuthorization,
		"only the sender may edit a message")

	// ErrCannotDelete is returned when deleting someone else's message for
	// everyone without a moderating role.
	ErrCannotDelete = errors.Wrap(model.ErrAuthorization,
		"insufficient role to delete another user's message")

	// ErrNotFailed is returned when resending a message that has not failed.
	ErrNotFailed = errors.Wrap(model.ErrConflict,
		"only failed messages may be resent")

	// ErrEmptyMessage is returned for a text message with no body.
	ErrEmptyMessage = errors.Wrap(model.ErrInvalid, "message is empty")

	// ErrPayloadMismatch is returned when an edit changes the payload type.
	ErrPayloadMismatch = errors.Wrap(model.ErrInvalid,
		"an edit must keep the payload type")

	// ErrNoUploader is returned by SendMedia when no upload store is set.
	ErrNoUploader = errors.Wrap(model.ErrExternalService,
		"no media upload store configured")
)
