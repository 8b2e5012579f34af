////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"context"

	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/heartline/convsync/ledger"
	"gitlab.com/heartline/convsync/model"
)

// SendText sends a text message. It appears immediately with status sending
// and is reconciled when the server acknowledges it.
func (e *Engine) SendText(conversationID, text string,
	replyTo uint64) (model.Message, error) {
	r, err := e.guard(conversationID)
	if err != nil {
		return model.Message{}, err
	}
	defer r.mux.Unlock()

	m, err := e.ledger.Send(conversationID, e.self, model.Text{Body: text},
		replyTo)
	if err != nil {
		return model.Message{}, err
	}
	e.afterSend(conversationID)
	return m, nil
}

// SendMedia sends an image, video, audio or file message. The file is
// uploaded in the background before the message is dispatched.
func (e *Engine) SendMedia(ctx context.Context, conversationID,
	localPath string, kind model.MessageType, caption string,
	replyTo uint64) (model.Message, error) {
	r, err := e.guard(conversationID)
	if err != nil {
		return model.Message{}, err
	}
	defer r.mux.Unlock()

	m, err := e.ledger.SendMedia(ctx, conversationID, e.self, localPath,
		kind, caption, replyTo)
	if err != nil {
		return model.Message{}, err
	}
	e.afterSend(conversationID)
	return m, nil
}

func (e *Engine) afterSend(conversationID string) {
	e.presence.SetTyping(conversationID, false)
	e.directory.Touch(conversationID, netTime.Now())
}

// Resend retries a failed message.
func (e *Engine) Resend(ctx context.Context, conversationID,
	tempID string) (model.Message, error) {
	r, err := e.guard(conversationID)
	if err != nil {
		return model.Message{}, err
	}
	defer r.mux.Unlock()
	return e.ledger.Resend(ctx, conversationID, tempID)
}

// Edit replaces the content of one of the local user's messages.
func (e *Engine) Edit(conversationID string, serverID uint64,
	payload model.Payload) error {
	r, err := e.guard(conversationID)
	if err != nil {
		return err
	}
	defer r.mux.Unlock()
	return e.ledger.Edit(conversationID, serverID, e.self, payload)
}

// Delete deletes a message for the local user only, or for everyone if the
// local user sent it or moderates the conversation.
func (e *Engine) Delete(conversationID string, serverID uint64,
	forEveryone bool) error {
	r, err := e.guard(conversationID)
	if err != nil {
		return err
	}
	defer r.mux.Unlock()

	role, _ := e.members.Role(conversationID, e.self)
	return e.ledger.Delete(conversationID, serverID, e.self, role,
		forEveryone)
}

// React toggles the local user's reaction on a message and returns whether
// it is now present.
func (e *Engine) React(conversationID string, serverID uint64,
	reaction string) (bool, error) {
	r, err := e.guard(conversationID)
	if err != nil {
		return false, err
	}
	defer r.mux.Unlock()
	return e.ledger.React(conversationID, serverID, e.self, reaction)
}

// MarkRead tells the other participants that everything up to upTo has been
// read.
func (e *Engine) MarkRead(conversationID string, upTo uint64) error {
	r, err := e.guard(conversationID)
	if err != nil {
		return err
	}
	defer r.mux.Unlock()
	return e.ledger.MarkRead(conversationID, e.self, upTo)
}

// SetTyping reports local typing activity. Typing stops automatically when
// it is not refreshed.
func (e *Engine) SetTyping(conversationID string, isTyping bool) error {
	r, err := e.guard(conversationID)
	if err != nil {
		return err
	}
	defer r.mux.Unlock()
	e.presence.SetTyping(conversationID, isTyping)
	return nil
}

// FetchHistory pulls a page of older messages, newest first. A zero
// beforeID fetches the newest page.
func (e *Engine) FetchHistory(ctx context.Context, conversationID string,
	beforeID uint64, limit int) ([]model.Message, error) {
	// The room lock is not held across the backend call
	r, err := e.guard(conversationID)
	if err != nil {
		return nil, err
	}
	r.mux.Unlock()
	return e.ledger.FetchHistory(ctx, conversationID, beforeID, limit)
}

// Search finds loaded messages matching the query.
func (e *Engine) Search(conversationID string,
	q ledger.Query) ([]model.Message, error) {
	return e.ledger.Search(conversationID, q)
}

// Messages returns the ordered messages of a conversation.
func (e *Engine) Messages(conversationID string) []model.Message {
	return e.ledger.Messages(conversationID)
}

// TypingUsers returns the remote users typing in a conversation.
func (e *Engine) TypingUsers(conversationID string) []string {
	return e.presence.TypingUsers(conversationID)
}

// Online returns the users present in a conversation's room.
func (e *Engine) Online(conversationID string) []string {
	return e.presence.Online(conversationID)
}
