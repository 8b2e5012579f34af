////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package joinrequest

import (
	"context"

	"gitlab.com/heartline/convsync/model"
)

// Roster is the membership view the workflow needs. Admit must enforce the
// session capacity.
type Roster interface {
	Role(conversationID, userID string) (model.Role, bool)
	Admit(conversationID, userID string, role model.Role) (
		model.Participant, error)
}

// Sessions looks up live sessions by ID.
type Sessions interface {
	Get(conversationID string) (model.Conversation, error)
}

// Submitter delivers a new request to the durable store. The returned request
// may carry a server-assigned ID.
type Submitter interface {
	SubmitJoinRequest(ctx context.Context, req model.JoinRequest) (
		model.JoinRequest, error)
}

// ChangeCallback is called with the pending requests of a session after any
// change. decided is set when the change was a decision.
type ChangeCallback func(sessionID string, pending []model.JoinRequest,
	decided *model.JoinRequest)
