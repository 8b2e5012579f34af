////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package call

import (
	"github.com/pkg/errors"

	"gitlab.com/heartline/convsync/model"
)

var (
	// ErrInProgress is returned when starting while a call is underway.
	ErrInProgress = errors.Wrap(model.ErrConflict, "a call is already in progress")

	// ErrNoCall is returned by toggles when no call is underway.
	ErrNoCall = errors.Wrap(model.ErrConflict, "no call in progress")
)

// Reasons reported with the ended state.
const (
	ReasonHangUp       = "hang up"
	ReasonLastPeerLeft = "last peer left"
	ReasonCredential   = "credential unavailable"
	ReasonJoinFailed   = "failed to join media channel"
	ReasonMediaError   = "media error"
	ReasonSessionEnded = "session ended"
	ReasonRemoved      = "removed from conversation"
)
