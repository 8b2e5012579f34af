////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"context"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/event"
	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/wire"
)

// AddParticipant adds a user with the given role. The local user must be an
// admin or the owner.
func (e *Engine) AddParticipant(conversationID, userID string,
	role model.Role) error {
	r, err := e.guard(conversationID)
	if err != nil {
		return err
	}
	defer r.mux.Unlock()
	if err = e.requireConnected(); err != nil {
		return err
	}

	p, err := e.members.Add(conversationID, e.self, userID, role)
	if err != nil {
		return err
	}
	e.reportMembership(conversationID)
	return e.announce(conversationID, wire.MembershipChanged{
		UserID:  userID,
		ActorID: e.self,
		Action:  wire.MemberAdded,
		Role:    p.Role,
		At:      p.JoinedAt,
	})
}

// RemoveParticipant removes a user. Removing the local user leaves the
// conversation.
func (e *Engine) RemoveParticipant(conversationID, userID string) error {
	r, err := e.guard(conversationID)
	if err != nil {
		return err
	}
	if err = e.requireConnected(); err != nil {
		r.mux.Unlock()
		return err
	}

	if err = e.members.Remove(conversationID, e.self, userID); err != nil {
		r.mux.Unlock()
		return err
	}
	err = e.announce(conversationID, wire.MembershipChanged{
		UserID:  userID,
		ActorID: e.self,
		Action:  wire.MemberRemoved,
	})
	if userID == e.self {
		r.removed = true
		r.mux.Unlock()
		e.teardown(conversationID)
		return err
	}
	r.mux.Unlock()
	e.reportMembership(conversationID)
	return err
}

// ChangeRole changes a participant's role. The local user must be an admin
// or the owner, and the change must be accepted by the backend.
func (e *Engine) ChangeRole(ctx context.Context, conversationID,
	userID string, role model.Role) error {
	r, err := e.guard(conversationID)
	if err != nil {
		return err
	}
	defer r.mux.Unlock()
	if err = e.requireConnected(); err != nil {
		return err
	}

	old, _ := e.members.Role(conversationID, userID)
	if err = e.members.ChangeRole(conversationID, e.self, userID, role); err != nil {
		return err
	}
	if old == role {
		return nil
	}

	err = e.backend.ChangeRole(ctx, conversationID, e.self, userID, role)
	if err != nil {
		e.members.Apply(conversationID, wire.MembershipChanged{
			UserID: userID, Action: wire.MemberRoleChanged, Role: old})
		return external(err, "failed to persist role change")
	}
	e.reportMembership(conversationID)
	return e.announce(conversationID, wire.MembershipChanged{
		UserID:  userID,
		ActorID: e.self,
		Action:  wire.MemberRoleChanged,
		Role:    role,
	})
}

// RequestJoin asks to join a live session that requires approval. The
// local user observes the session's room until the request is decided.
func (e *Engine) RequestJoin(ctx context.Context, sessionID,
	message string) (model.JoinRequest, error) {
	conv, err := e.directory.Get(sessionID)
	if err != nil {
		return model.JoinRequest{}, err
	}
	if err = e.loadRoster(ctx, conv); err != nil {
		return model.JoinRequest{}, err
	}
	if err = e.requireConnected(); err != nil {
		return model.JoinRequest{}, err
	}

	req, err := e.requests.Request(ctx, conv, e.self, message)
	if err != nil {
		return model.JoinRequest{}, err
	}
	if err = e.observe(sessionID); err != nil {
		jww.WARN.Printf("Failed to observe %s: %+v", sessionID, err)
	}
	if err = e.session.Send(sessionID, wire.JoinRequested{Request: req}); err != nil {
		jww.WARN.Printf("Request %s was stored but not broadcast: %+v",
			req.ID, err)
	}
	return req, nil
}

// Approve admits the requester of a pending join request as a guest. The
// local user must host the session or be an admin or the owner. A full
// session leaves the request pending.
func (e *Engine) Approve(requestID string) (model.JoinRequest, error) {
	return e.decide(requestID, true)
}

// Reject declines a pending join request.
func (e *Engine) Reject(requestID string) (model.JoinRequest, error) {
	return e.decide(requestID, false)
}

func (e *Engine) decide(requestID string, approve bool) (model.JoinRequest, error) {
	req, err := e.requests.Get(requestID)
	if err != nil {
		return model.JoinRequest{}, err
	}
	r, err := e.guard(req.LiveSessionID)
	if err != nil {
		return model.JoinRequest{}, err
	}
	defer r.mux.Unlock()
	if err = e.requireConnected(); err != nil {
		return model.JoinRequest{}, err
	}

	var decided model.JoinRequest
	if approve {
		decided, err = e.requests.Approve(requestID, e.self)
	} else {
		decided, err = e.requests.Reject(requestID, e.self)
	}
	if err != nil {
		return model.JoinRequest{}, err
	}

	err = e.announce(decided.LiveSessionID, wire.JoinDecided{
		RequestID:   decided.ID,
		RequesterID: decided.RequesterID,
		Status:      decided.Status,
		DecidedBy:   decided.DecidedBy,
		DecidedAt:   decided.DecidedAt,
	})
	if approve {
		e.reportMembership(decided.LiveSessionID)
		p := e.participant(decided.LiveSessionID, decided.RequesterID)
		if announceErr := e.announce(decided.LiveSessionID,
			wire.MembershipChanged{
				UserID:  decided.RequesterID,
				ActorID: e.self,
				Action:  wire.MemberAdded,
				Role:    p.Role,
				At:      p.JoinedAt,
			}); err == nil {
			err = announceErr
		}
	}
	return decided, err
}

// PendingRequests returns the pending join requests of a live session.
func (e *Engine) PendingRequests(sessionID string) []model.JoinRequest {
	return e.requests.Pending(sessionID)
}

// JoinRequest returns one join request.
func (e *Engine) JoinRequest(requestID string) (model.JoinRequest, error) {
	return e.requests.Get(requestID)
}

func (e *Engine) participant(conversationID, userID string) model.Participant {
	for _, p := range e.members.Participants(conversationID) {
		if p.UserID == userID {
			return p
		}
	}
	return model.Participant{UserID: userID, Role: model.Guest}
}

// announce broadcasts a change that has already been applied locally.
func (e *Engine) announce(conversationID string, ev wire.Event) error {
	if err := e.session.Send(conversationID, ev); err != nil {
		jww.WARN.Printf("Failed to broadcast %s in %s: %+v", ev.Kind(),
			conversationID, err)
		return errors.WithMessagef(err, "applied locally but failed to "+
			"broadcast %s", ev.Kind())
	}
	return nil
}

func (e *Engine) reportRequests(sessionID string) {
	e.events.Report(event.JoinRequestsChanged{
		ConversationID: sessionID,
		Pending:        e.requests.Pending(sessionID),
	})
}
