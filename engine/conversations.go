////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/heartline/convsync/call"
	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/wire"
)

// CreateConversation creates a conversation owned by the local user. A
// direct conversation has exactly one invitee. A live session is hosted by
// the local user and starts immediately.
func (e *Engine) CreateConversation(ctx context.Context, kind model.Kind,
	title string, settings model.Settings,
	invitees []string) (model.Conversation, error) {
	req := CreateRequest{
		Kind:     kind,
		Title:    strings.TrimSpace(title),
		OwnerID:  e.self,
		Settings: settings,
	}
	for _, u := range invitees {
		if u != e.self {
			req.Participants = append(req.Participants, u)
		}
	}

	switch kind {
	case model.Direct:
		if len(req.Participants) != 1 {
			return model.Conversation{}, errors.Wrapf(model.ErrInvalid,
				"a direct conversation has one invitee, got %d",
				len(req.Participants))
		}
		req.Settings.MaxParticipants = 2
	case model.Group, model.LiveSession:
		if req.Title == "" {
			return model.Conversation{}, errors.Wrapf(model.ErrInvalid,
				"a %s needs a title", kind)
		}
	default:
		return model.Conversation{}, errors.Wrapf(model.ErrInvalid,
			"unknown conversation kind %d", kind)
	}
	if req.Settings.MaxParticipants < 0 ||
		req.Settings.MaxParticipants > 0 &&
			len(req.Participants)+1 > req.Settings.MaxParticipants {
		return model.Conversation{}, errors.Wrapf(model.ErrInvalid,
			"%d participants exceed the capacity of %d",
			len(req.Participants)+1, req.Settings.MaxParticipants)
	}
	if kind == model.LiveSession {
		req.Live = &model.Live{
			HostID:   e.self,
			Status:   model.LiveActive,
			StartsAt: netTime.Now(),
		}
	}

	conv, roster, err := e.backend.CreateConversation(ctx, req)
	if err != nil {
		return model.Conversation{}, external(err,
			"failed to create conversation")
	}
	if err = e.members.Init(conv, roster); err != nil {
		jww.WARN.Printf("Roster of new conversation %s was not stored: %+v",
			conv.ID, err)
	}
	e.directory.Put(conv)
	jww.INFO.Printf("Created %s %s with %d participants", kind, conv.ID,
		len(roster))
	return conv, nil
}

// Open loads the roster of a conversation the local user participates in,
// joins its room and fetches the newest page of history. Opening an open
// conversation is a no-op.
func (e *Engine) Open(ctx context.Context, conversationID string) error {
	conv, err := e.directory.Get(conversationID)
	if err != nil {
		return err
	}

	if r := e.room(conversationID); r != nil && !r.observer {
		r.mux.Lock()
		removed := r.removed
		r.mux.Unlock()
		if removed {
			return errors.Wrapf(model.ErrRemoved, "%s", conversationID)
		}
		return nil
	}

	if err = e.loadRoster(ctx, conv); err != nil {
		return err
	}
	if !e.members.IsParticipant(conversationID, e.self) {
		return errors.Wrapf(ErrNotParticipant, "%s", conversationID)
	}
	return e.enter(ctx, conv)
}

// JoinLiveSession adds the local user to a live session that does not
// require approval and opens it.
func (e *Engine) JoinLiveSession(ctx context.Context, sessionID string) error {
	conv, err := e.directory.Get(sessionID)
	if err != nil {
		return err
	}
	if conv.Kind != model.LiveSession {
		return errors.Wrapf(model.ErrInvalid, "%s is not a live session",
			sessionID)
	} else if !conv.IsLive() {
		return errors.Wrapf(model.ErrConflict, "live session %s has ended",
			sessionID)
	}

	if err = e.loadRoster(ctx, conv); err != nil {
		return err
	}
	if e.members.IsParticipant(sessionID, e.self) {
		return e.Open(ctx, sessionID)
	} else if conv.Settings.RequireApproval {
		return errors.Wrapf(ErrApprovalRequired, "%s", sessionID)
	}
	if err = e.requireConnected(); err != nil {
		return err
	}

	p, err := e.members.Admit(sessionID, e.self, model.Guest)
	if err != nil {
		return err
	}
	if err = e.enter(ctx, conv); err != nil {
		return err
	}
	err = e.session.Send(sessionID, wire.MembershipChanged{
		UserID:  e.self,
		ActorID: e.self,
		Action:  wire.MemberAdded,
		Role:    p.Role,
		At:      p.JoinedAt,
	})
	if err != nil {
		return errors.WithMessagef(err, "joined %s but failed to announce",
			sessionID)
	}
	return nil
}

// loadRoster fetches the roster from the backend, falling back to the
// locally stored one when the backend cannot be reached.
func (e *Engine) loadRoster(ctx context.Context, conv model.Conversation) error {
	roster, err := e.backend.Roster(ctx, conv.ID)
	if err == nil {
		return e.members.Init(conv, roster)
	}
	jww.WARN.Printf("Failed to fetch roster of %s, using stored: %+v",
		conv.ID, err)
	if loadErr := e.members.Load(conv.ID); loadErr != nil {
		return external(err, "failed to fetch roster of "+conv.ID)
	}
	return nil
}

// enter registers the room handler, joins the room and pulls the newest
// history page. An observer room is upgraded in place.
func (e *Engine) enter(ctx context.Context, conv model.Conversation) error {
	// The room lock is never taken while holding the engine lock; handlers
	// take the engine lock under the room lock.
	e.mux.Lock()
	r, exists := e.rooms[conv.ID]
	if !exists {
		r = &room{id: conv.ID}
		r.listener = e.session.OnEvent(conv.ID, e.handler(conv.ID))
		e.rooms[conv.ID] = r
	}
	e.mux.Unlock()

	if exists {
		r.mux.Lock()
		if r.removed {
			r.listener = e.session.OnEvent(conv.ID, e.handler(conv.ID))
		}
		r.observer = false
		r.removed = false
		r.mux.Unlock()
	}

	if err := e.session.Join(conv.ID); err != nil {
		return errors.WithMessagef(err, "failed to join room %s", conv.ID)
	}
	if conv.Kind == model.LiveSession {
		if err := e.requests.Load(conv.ID); err != nil {
			jww.WARN.Printf("Failed to restore join requests of %s: %+v",
				conv.ID, err)
		}
		e.reportRequests(conv.ID)
	}
	e.reportMembership(conv.ID)

	if _, err := e.ledger.FetchHistory(ctx, conv.ID, 0, 0); err != nil {
		jww.WARN.Printf("Opened %s without fresh history: %+v", conv.ID, err)
	}
	jww.INFO.Printf("Opened %s %s", conv.Kind, conv.ID)
	return nil
}

// observe joins the room of a live session without participating so that
// the decision on a join request is received.
func (e *Engine) observe(sessionID string) error {
	e.mux.Lock()
	if _, exists := e.rooms[sessionID]; !exists {
		r := &room{id: sessionID, observer: true}
		r.listener = e.session.OnEvent(sessionID, e.handler(sessionID))
		e.rooms[sessionID] = r
	}
	e.mux.Unlock()
	return e.session.Join(sessionID)
}

// abandon leaves the room of a live session observed while waiting for a
// decision that was not an approval.
func (e *Engine) abandon(sessionID string) {
	e.mux.Lock()
	r, ok := e.rooms[sessionID]
	if !ok || !r.observer {
		e.mux.Unlock()
		return
	}
	delete(e.rooms, sessionID)
	e.mux.Unlock()

	e.session.Unregister(r.listener)
	e.session.Leave(sessionID)
	jww.INFO.Printf("Stopped observing %s", sessionID)
}

// CloseConversation leaves the room of a conversation and forgets its
// ephemeral state. The conversation's messages stay in the ledger.
func (e *Engine) CloseConversation(conversationID string) {
	e.mux.Lock()
	r, ok := e.rooms[conversationID]
	delete(e.rooms, conversationID)
	inCall := e.callConv == conversationID
	e.mux.Unlock()
	if !ok {
		return
	}

	if inCall && e.call != nil {
		e.call.End(call.ReasonHangUp)
	}
	e.presence.SetTyping(conversationID, false)
	e.session.Unregister(r.listener)
	e.session.Leave(conversationID)
	e.presence.RemoveRoom(conversationID)
	jww.INFO.Printf("Closed %s", conversationID)
}

// teardown is run once the local user has been removed from a conversation.
// The room entry stays so that later intents fail with ErrRemoved.
func (e *Engine) teardown(conversationID string) {
	e.mux.Lock()
	r, ok := e.rooms[conversationID]
	inCall := e.callConv == conversationID
	e.mux.Unlock()
	if !ok {
		return
	}

	if inCall && e.call != nil {
		e.call.End(call.ReasonRemoved)
	}
	e.session.Unregister(r.listener)
	e.session.Leave(conversationID)
	e.presence.RemoveRoom(conversationID)
	e.directory.MarkInactive(conversationID)
	e.reportMembership(conversationID)
	jww.INFO.Printf("Removed from %s", conversationID)
}

// UpdateSettings changes the title and settings of a conversation. The actor
// must be an admin, the owner or the host of a live session. The capacity
// cannot drop below the current number of participants.
func (e *Engine) UpdateSettings(conversationID, title string,
	settings model.Settings) error {
	r, err := e.guard(conversationID)
	if err != nil {
		return err
	}
	defer r.mux.Unlock()

	conv, err := e.directory.Get(conversationID)
	if err != nil {
		return err
	}
	if err = e.canManageSession(conv); err != nil {
		return err
	}
	if conv.Kind == model.Direct && settings.MaxParticipants != 2 {
		return errors.Wrap(model.ErrInvalid,
			"the capacity of a direct conversation is fixed")
	}
	if err = e.requireConnected(); err != nil {
		return err
	}

	_, oldCapacity := e.members.Count(conversationID)
	if err = e.members.SetCapacity(conversationID,
		settings.MaxParticipants); err != nil {
		return err
	}
	title = strings.TrimSpace(title)
	err = e.session.Send(conversationID, wire.SettingsChanged{
		Title:    title,
		Settings: settings,
	})
	if err != nil {
		if restoreErr := e.members.SetCapacity(conversationID,
			oldCapacity); restoreErr != nil {
			jww.WARN.Printf("Failed to restore capacity of %s: %+v",
				conversationID, restoreErr)
		}
		return err
	}
	e.directory.ApplySettings(conversationID, title, settings, false)
	return nil
}

// EndLiveSession ends a live session for everyone. Only the host, an admin
// or the owner may end it.
func (e *Engine) EndLiveSession(sessionID string) error {
	r, err := e.guard(sessionID)
	if err != nil {
		return err
	}
	defer r.mux.Unlock()

	conv, err := e.directory.Get(sessionID)
	if err != nil {
		return err
	} else if !conv.IsLive() {
		return errors.Wrapf(model.ErrConflict, "%s is not a running live "+
			"session", sessionID)
	}
	if err = e.canManageSession(conv); err != nil {
		return err
	}
	if err = e.session.Send(sessionID, wire.SettingsChanged{Ended: true}); err != nil {
		return err
	}
	e.sessionEnded(sessionID)
	return nil
}

func (e *Engine) sessionEnded(sessionID string) {
	e.directory.ApplySettings(sessionID, "", model.Settings{}, true)
	e.mux.Lock()
	inCall := e.callConv == sessionID
	e.mux.Unlock()
	if inCall && e.call != nil {
		e.call.End(call.ReasonSessionEnded)
	}
}

func (e *Engine) canManageSession(conv model.Conversation) error {
	if conv.IsHost(e.self) {
		return nil
	}
	role, _ := e.members.Role(conv.ID, e.self)
	if !role.CanManage() {
		return ErrNotHost
	}
	return nil
}

// SyncConversations refreshes the directory from the backend.
func (e *Engine) SyncConversations(ctx context.Context) error {
	return e.directory.Sync(ctx)
}

// Conversations returns the active conversations, most recent first.
func (e *Engine) Conversations() []model.Conversation {
	return e.directory.List()
}

// Discover returns the live sessions that can be joined.
func (e *Engine) Discover() []model.Conversation {
	return e.directory.Discoverable()
}

// Conversation returns one conversation from the directory.
func (e *Engine) Conversation(conversationID string) (model.Conversation, error) {
	return e.directory.Get(conversationID)
}

// Participants returns the roster of a conversation.
func (e *Engine) Participants(conversationID string) []model.Participant {
	return e.members.Participants(conversationID)
}

// external classifies an error from an external collaborator that carries
// no kind of its own as an ExternalService failure.
func external(err error, msg string) error {
	if model.KindOf(err) == model.KindUnknown {
		err = errors.Wrapf(model.ErrExternalService, "%v", err)
	}
	return errors.WithMessage(err, msg)
}
